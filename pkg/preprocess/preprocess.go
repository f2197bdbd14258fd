// Package preprocess is the library-API layer over pkg/pp: a thin wrapper
// that accepts a file path or an in-memory string and returns preprocessed
// text, diagnostics, and a success/failure result.
package preprocess

import (
	"bytes"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/scipp-dev/scipp/pkg/pp"
)

// Options configures a preprocessing run. It mirrors pp.Config with
// command-line-shaped fields (Defines as a map, like -D NAME=VALUE) for
// callers that don't want to build pp.MacroDef values by hand.
type Options struct {
	IncludePaths    []string          // -I directories
	Defines         map[string]string // -D macros: name -> value, empty for a bare define
	Undefines       []string          // -U macros, applied after Defines
	ExpandMacros    bool              // copied as is; only a nil *Options expands by default; see pp.Config
	ExcludeComments bool
}

func (o *Options) toConfig() pp.Config {
	cfg := pp.Config{ExpandMacros: true}
	if o == nil {
		return cfg
	}
	cfg.IncludeDirs = o.IncludePaths
	cfg.Undef = o.Undefines
	cfg.ExpandMacros = o.ExpandMacros
	cfg.ExcludeComments = o.ExcludeComments
	for name, value := range o.Defines {
		cfg.Macros = append(cfg.Macros, pp.MacroDef{Name: name, Value: value})
	}
	return cfg
}

// Result carries the preprocessed output alongside any diagnostics
// accumulated while producing it.
type Result struct {
	Output      string
	Diagnostics []pp.Diagnostic
}

// now is overridable by tests that need a stable __DATE__/__TIME__.
var now = time.Now

// Preprocess runs the preprocessor over filename and returns the result.
func Preprocess(filename string, opts *Options) (Result, error) {
	f, err := os.Open(filename)
	if err != nil {
		return Result{}, errors.Wrapf(err, "opening %s", filename)
	}
	defer f.Close()

	proc, err := pp.NewPreprocessor(opts.toConfig(), now())
	if err != nil {
		return Result{}, err
	}

	var out bytes.Buffer
	diags, err := proc.Run(pp.NewLineSource(f, filename), &out)
	if err != nil {
		return Result{Output: out.String(), Diagnostics: diags}, err
	}
	return Result{Output: out.String(), Diagnostics: diags}, nil
}

// PreprocessString runs the preprocessor over source, attributing
// diagnostics and __FILE__/__LINE__ to filename without touching disk.
// filename is also used to resolve relative #include directives, so the
// caller should pass a plausible path even for purely in-memory input.
func PreprocessString(source, filename string, opts *Options) (Result, error) {
	proc, err := pp.NewPreprocessor(opts.toConfig(), now())
	if err != nil {
		return Result{}, err
	}

	var out bytes.Buffer
	diags, err := proc.Run(pp.NewLineSourceString(source, filename), &out)
	if err != nil {
		return Result{Output: out.String(), Diagnostics: diags}, err
	}
	return Result{Output: out.String(), Diagnostics: diags}, nil
}
