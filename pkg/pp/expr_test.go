package pp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func eval(t *testing.T, text string, macros *MacroTable) int64 {
	t.Helper()
	toks, err := Tokenize(Line{Text: text}, "f.F")
	require.NoError(t, err)
	val, err := Evaluate(toks, macros)
	require.NoError(t, err)
	return val
}

func TestEvaluateArithmeticPrecedence(t *testing.T) {
	cases := map[string]int64{
		"1 + 2 * 3":    7,
		"(1 + 2) * 3":  9,
		"2 ** 3 ** 2":  512, // right-associative: 2**(3**2)
		"10 % 3":       1,
		"10 / 3":       3,
		"1 << 4":       16,
		"256 >> 4":     16,
		"5 & 3":        1,
		"5 | 2":        7,
		"5 ^ 1":        4,
		"~0":           -1,
		"-(-3)":        3,
		"!0":           1,
		"!5":           0,
		"1 == 1 && 2 != 3": 1,
		"1 > 2 || 3 >= 3":  1,
	}
	for expr, want := range cases {
		assert.Equal(t, want, eval(t, expr, nil), "expr %q", expr)
	}
}

func TestEvaluateDivisionByZeroFails(t *testing.T) {
	toks, err := Tokenize(Line{Text: "1 / 0"}, "f.F")
	require.NoError(t, err)
	_, err = Evaluate(toks, nil)
	assert.ErrorIs(t, err, ErrEvalFailed)
}

func TestEvaluateUndefinedIdentifierIsZero(t *testing.T) {
	macros := NewMacroTable()
	assert.Equal(t, int64(0), eval(t, "UNDEF_NAME", macros))
}

func TestEvaluateDefined(t *testing.T) {
	macros := NewMacroTable()
	macros.Insert(&Macro{Name: "FOO"})
	assert.Equal(t, int64(1), eval(t, "defined(FOO)", macros))
	assert.Equal(t, int64(1), eval(t, "defined FOO", macros))
	assert.Equal(t, int64(0), eval(t, "defined(BAR)", macros))
}

func TestEvaluateTrailingGarbageFails(t *testing.T) {
	toks, err := Tokenize(Line{Text: "1 2"}, "f.F")
	require.NoError(t, err)
	_, err = Evaluate(toks, nil)
	assert.ErrorIs(t, err, ErrEvalFailed)
}

func TestSubstituteDefinedReplacesWithLiterals(t *testing.T) {
	macros := NewMacroTable()
	macros.Insert(&Macro{Name: "FOO"})
	toks, err := Tokenize(Line{Text: "defined(FOO) && defined(BAR)"}, "f.F")
	require.NoError(t, err)

	out, err := SubstituteDefined(toks, macros)
	require.NoError(t, err)

	var nums []string
	for _, tok := range out {
		if tok.Kind == Number {
			nums = append(nums, tok.Text)
		}
	}
	assert.Equal(t, []string{"1", "0"}, nums)
}

func TestParseIntLiteralBases(t *testing.T) {
	v, err := parseIntLiteral("0x2A")
	require.NoError(t, err)
	assert.EqualValues(t, 42, v)

	v, err = parseIntLiteral("052")
	require.NoError(t, err)
	assert.EqualValues(t, 42, v)

	v, err = parseIntLiteral("42")
	require.NoError(t, err)
	assert.EqualValues(t, 42, v)
}
