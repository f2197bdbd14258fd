package pp

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDiagnosticString(t *testing.T) {
	d := Diagnostic{Severity: SevError, Pos: Pos{File: "main.F", Line: 12}, Message: "bad expression"}
	assert.Equal(t, "main.F:12: error: bad expression", d.String())

	d.Severity = SevWarning
	assert.Equal(t, "main.F:12: warning: bad expression", d.String())
}
