package preprocess

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// yamlConfig is the on-disk shape of a scipp.yaml Global Configuration
// document: a convenience alternative to constructing Options by hand.
type yamlConfig struct {
	IncludeDirs     []string          `yaml:"includedir"`
	Macros          map[string]string `yaml:"macros"`
	Undef           []string          `yaml:"undef"`
	ExpandMacros    *bool             `yaml:"expand_macros"`
	ExcludeComments bool              `yaml:"exclude_comments"`
}

// LoadYAML reads a scipp.yaml-style configuration file and returns the
// equivalent Options.
func LoadYAML(path string) (*Options, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", path)
	}

	var doc yamlConfig
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrapf(err, "parsing %s", path)
	}

	opts := &Options{
		IncludePaths:    doc.IncludeDirs,
		Defines:         doc.Macros,
		Undefines:       doc.Undef,
		ExpandMacros:    true,
		ExcludeComments: doc.ExcludeComments,
	}
	if doc.ExpandMacros != nil {
		opts.ExpandMacros = *doc.ExpandMacros
	}
	return opts, nil
}
