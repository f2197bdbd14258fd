package pp

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// IncludeKind distinguishes the quoted "file" form from the angled <file> form.
type IncludeKind int

const (
	IncludeQuoted IncludeKind = iota
	IncludeAngled
)

// MaxIncludeDepth bounds include nesting across distinct files. A file that
// includes itself while still open is reported earlier, by Enter's cycle
// check, as a CircularIncludeError.
const MaxIncludeDepth = 200

// IncludeError reports that an include target could not be located on the
// search path.
type IncludeError struct {
	Filename string
	Kind     IncludeKind
}

func (e *IncludeError) Error() string {
	kindStr := "quoted"
	if e.Kind == IncludeAngled {
		kindStr = "angled"
	}
	return "include file not found: " + e.Filename + " (" + kindStr + ")"
}

// CircularIncludeError reports a file including itself, directly or
// transitively.
type CircularIncludeError struct {
	Path  string
	Stack []string
}

func (e *CircularIncludeError) Error() string {
	var sb strings.Builder
	sb.WriteString("circular include detected: ")
	sb.WriteString(e.Path)
	sb.WriteString("\ninclude stack:\n")
	for i, f := range e.Stack {
		sb.WriteString(strings.Repeat("  ", i+1))
		sb.WriteString(filepath.Base(f))
		sb.WriteString("\n")
	}
	return sb.String()
}

// ErrIncludeTooDeep is returned once the include stack exceeds MaxIncludeDepth.
var ErrIncludeTooDeep = errors.New("include nesting exceeds MaxIncludeDepth")

// Includes resolves include targets along a search path and tracks the
// currently-open file stack for cycle detection, #pragma once, and the
// include-guard short circuit (component C6).
type Includes struct {
	UserPaths  []string // -I directories, searched in order
	CurrentDir string   // directory of the file presently being processed

	stack      []string        // absolute paths of files currently open
	pragmaOnce map[string]bool // files marked with #pragma once
	guardSeen  map[string]string // file -> guard macro name once its #ifndef guard is confirmed
}

// NewIncludes returns an empty resolver.
func NewIncludes() *Includes {
	return &Includes{
		pragmaOnce: make(map[string]bool),
		guardSeen:  make(map[string]string),
	}
}

// AddUserPath appends a directory to the user include search path.
func (r *Includes) AddUserPath(path string) {
	r.UserPaths = append(r.UserPaths, path)
}

// SetCurrentFile records the directory of the file currently being read,
// used to resolve quoted includes relative to it.
func (r *Includes) SetCurrentFile(filename string) {
	r.CurrentDir = filepath.Dir(filename)
}

// Resolve locates filename on the search path appropriate to kind and
// returns its absolute path.
func (r *Includes) Resolve(filename string, kind IncludeKind) (string, error) {
	if filepath.IsAbs(filename) {
		if _, err := os.Stat(filename); err == nil {
			return filename, nil
		}
		return "", &IncludeError{Filename: filename, Kind: kind}
	}

	var searchPaths []string
	if kind == IncludeQuoted && r.CurrentDir != "" {
		searchPaths = append(searchPaths, r.CurrentDir)
	}
	searchPaths = append(searchPaths, r.UserPaths...)

	for _, dir := range searchPaths {
		full := filepath.Join(dir, filename)
		if _, err := os.Stat(full); err == nil {
			abs, err := filepath.Abs(full)
			if err != nil {
				abs = full
			}
			return abs, nil
		}
	}
	return "", &IncludeError{Filename: filename, Kind: kind}
}

// Enter pushes path onto the open-file stack, failing on a cycle or on
// exceeding MaxIncludeDepth. It reports (skip=true, nil) without pushing
// when path is already guarded by #pragma once, or by a confirmed include
// guard whose macro is still defined in macros, so the caller skips
// re-reading the file entirely.
func (r *Includes) Enter(path string, macros *MacroTable) (skip bool, err error) {
	abs, aerr := filepath.Abs(path)
	if aerr != nil {
		abs = path
	}
	if r.pragmaOnce[abs] {
		return true, nil
	}
	if guard, guarded := r.guardSeen[abs]; guarded && macros.IsDefined(guard) {
		return true, nil
	}
	for _, f := range r.stack {
		if f == abs {
			return false, &CircularIncludeError{Path: abs, Stack: append(append([]string{}, r.stack...), abs)}
		}
	}
	if len(r.stack) >= MaxIncludeDepth {
		return false, errors.Wrapf(ErrIncludeTooDeep, "including %s", abs)
	}
	r.stack = append(r.stack, abs)
	return false, nil
}

// Exit pops the most recently entered file.
func (r *Includes) Exit() {
	if len(r.stack) > 0 {
		r.stack = r.stack[:len(r.stack)-1]
	}
}

// Depth returns the current include nesting depth.
func (r *Includes) Depth() int { return len(r.stack) }

// MarkPragmaOnce records that path must never be read again this run.
func (r *Includes) MarkPragmaOnce(path string) {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	r.pragmaOnce[abs] = true
}

// ConfirmGuard records that path's entire body is wrapped in
// #ifndef GUARD / #define GUARD ... #endif, so a later re-include can be
// short-circuited the moment GUARD is seen still defined, without
// re-reading the file's contents.
func (r *Includes) ConfirmGuard(path, guardMacro string) {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	r.guardSeen[abs] = guardMacro
}
