package pp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseDir(t *testing.T, text string) *Directive {
	t.Helper()
	toks, err := Tokenize(Line{Text: text, Number: 1}, "f.F")
	require.NoError(t, err)
	dir, err := ParseDirective(toks, Pos{File: "f.F", Line: 1})
	require.NoError(t, err)
	return dir
}

func TestParseDirectiveDefineObjectLike(t *testing.T) {
	dir := parseDir(t, "#define N 10")
	require.Equal(t, DirDefine, dir.Kind)
	assert.Equal(t, "N", dir.MacroName)
	assert.Nil(t, dir.Params)
	assert.Equal(t, "10", TokensText(dir.Body))
}

func TestParseDirectiveDefineFunctionLike(t *testing.T) {
	dir := parseDir(t, "#define ADD(a,b) a+b")
	require.Equal(t, DirDefine, dir.Kind)
	assert.Equal(t, []string{"a", "b"}, dir.Params)
	assert.False(t, dir.Variadic)
	assert.Equal(t, "a+b", TokensText(dir.Body))
}

func TestParseDirectiveDefineVariadic(t *testing.T) {
	dir := parseDir(t, "#define LOG(fmt, ...) print *, fmt, __VA_ARGS__")
	require.Equal(t, DirDefine, dir.Kind)
	assert.Equal(t, []string{"fmt"}, dir.Params)
	assert.True(t, dir.Variadic)
}

func TestParseDirectiveDefineBareEllipsis(t *testing.T) {
	dir := parseDir(t, "#define LOG(...) print *, __VA_ARGS__")
	require.Equal(t, DirDefine, dir.Kind)
	assert.Empty(t, dir.Params)
	assert.True(t, dir.Variadic)
}

func TestParseDirectiveFunctionLikeRequiresAdjacentParen(t *testing.T) {
	dir := parseDir(t, "#define NAME (x)")
	require.Equal(t, DirDefine, dir.Kind)
	assert.Nil(t, dir.Params, "a space before ( makes this object-like")
	assert.Equal(t, "(x)", TokensText(dir.Body))
}

func TestParseDirectiveUndef(t *testing.T) {
	dir := parseDir(t, "#undef FOO")
	assert.Equal(t, DirUndef, dir.Kind)
	assert.Equal(t, "FOO", dir.Identifier)
}

func TestParseDirectiveIncludeQuoted(t *testing.T) {
	dir := parseDir(t, `#include "common.inc"`)
	assert.Equal(t, DirInclude, dir.Kind)
	assert.Equal(t, "common.inc", dir.HeaderName)
	assert.Equal(t, IncludeQuoted, dir.IncludeKind)
}

func TestParseDirectiveIncludeAngled(t *testing.T) {
	dir := parseDir(t, "#include <common.inc>")
	assert.Equal(t, DirInclude, dir.Kind)
	assert.Equal(t, "common.inc", dir.HeaderName)
	assert.Equal(t, IncludeAngled, dir.IncludeKind)
}

func TestParseDirectiveIncludeMacroExpandedDefersExpression(t *testing.T) {
	dir := parseDir(t, "#include HEADER_NAME")
	assert.Equal(t, DirInclude, dir.Kind)
	assert.Empty(t, dir.HeaderName)
	assert.Equal(t, "HEADER_NAME", TokensText(dir.Expression))
}

func TestParseDirectiveIfAndElif(t *testing.T) {
	dir := parseDir(t, "#if V*2 > 5")
	assert.Equal(t, DirIf, dir.Kind)
	assert.Equal(t, "V*2 > 5", TokensText(dir.Expression))

	dir = parseDir(t, "#elif V == 1")
	assert.Equal(t, DirElif, dir.Kind)
}

func TestParseDirectiveIfdefIfndef(t *testing.T) {
	dir := parseDir(t, "#ifdef FOO")
	assert.Equal(t, DirIfdef, dir.Kind)
	assert.Equal(t, "FOO", dir.Identifier)

	dir = parseDir(t, "#ifndef BAR")
	assert.Equal(t, DirIfndef, dir.Kind)
	assert.Equal(t, "BAR", dir.Identifier)
}

func TestParseDirectiveElseEndif(t *testing.T) {
	assert.Equal(t, DirElse, parseDir(t, "#else").Kind)
	assert.Equal(t, DirEndif, parseDir(t, "#endif").Kind)
}

func TestParseDirectiveErrorAndWarningCaptureMessage(t *testing.T) {
	dir := parseDir(t, "#error unsupported configuration")
	assert.Equal(t, DirError, dir.Kind)
	assert.Equal(t, "unsupported configuration", dir.Message)

	dir = parseDir(t, "#warning check this")
	assert.Equal(t, DirWarning, dir.Kind)
	assert.Equal(t, "check this", dir.Message)
}

func TestParseDirectiveLine(t *testing.T) {
	dir := parseDir(t, `#line 100 "renamed.F"`)
	assert.Equal(t, DirLine, dir.Kind)
	assert.Equal(t, 100, dir.LineNum)
	assert.Equal(t, "renamed.F", dir.FileName)
}

func TestParseDirectiveLineWithoutFilename(t *testing.T) {
	dir := parseDir(t, "#line 42")
	assert.Equal(t, DirLine, dir.Kind)
	assert.Equal(t, 42, dir.LineNum)
	assert.Empty(t, dir.FileName)
}

func TestParseDirectivePragma(t *testing.T) {
	dir := parseDir(t, "#pragma once")
	assert.Equal(t, DirPragma, dir.Kind)
	assert.Equal(t, "once", TokensText(dir.PragmaTokens))
}

func TestParseDirectiveEmpty(t *testing.T) {
	dir := parseDir(t, "#")
	assert.Equal(t, DirEmpty, dir.Kind)
}

func TestParseDirectiveUnknownNameErrors(t *testing.T) {
	toks, err := Tokenize(Line{Text: "#bogus"}, "f.F")
	require.NoError(t, err)
	_, err = ParseDirective(toks, Pos{File: "f.F", Line: 1})
	assert.ErrorIs(t, err, ErrBadDirective)
}

func TestParseDirectiveNotStartingWithHashErrors(t *testing.T) {
	toks, err := Tokenize(Line{Text: "x = 1"}, "f.F")
	require.NoError(t, err)
	_, err = ParseDirective(toks, Pos{File: "f.F", Line: 1})
	assert.ErrorIs(t, err, ErrBadDirective)
}
