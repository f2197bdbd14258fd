package pp

import "fmt"

// Severity classifies a Diagnostic.
type Severity int

const (
	SevWarning Severity = iota
	SevError
)

func (s Severity) String() string {
	if s == SevError {
		return "error"
	}
	return "warning"
}

// Diagnostic is a single non-fatal finding accumulated while processing.
// Diagnostics are data, not output: the core never writes them to a
// terminal, it only returns them for a caller to render.
type Diagnostic struct {
	Severity Severity
	Pos      Pos
	Message  string
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s:%d: %s: %s", d.Pos.File, d.Pos.Line, d.Severity, d.Message)
}
