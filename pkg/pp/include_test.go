package pp

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTemp(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestIncludesResolveQuotedPrefersCurrentDir(t *testing.T) {
	dir := t.TempDir()
	writeTemp(t, dir, "common.inc", "x = 1\n")

	r := NewIncludes()
	r.SetCurrentFile(filepath.Join(dir, "main.F"))

	resolved, err := r.Resolve("common.inc", IncludeQuoted)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "common.inc"), resolved)
}

func TestIncludesResolveSearchesUserPaths(t *testing.T) {
	dir := t.TempDir()
	writeTemp(t, dir, "shared.inc", "y = 2\n")

	r := NewIncludes()
	r.AddUserPath(dir)

	resolved, err := r.Resolve("shared.inc", IncludeAngled)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "shared.inc"), resolved)
}

func TestIncludesResolveMissingFileErrors(t *testing.T) {
	r := NewIncludes()
	_, err := r.Resolve("nope.inc", IncludeQuoted)
	var ierr *IncludeError
	assert.ErrorAs(t, err, &ierr)
}

func TestIncludesEnterDetectsCircularInclude(t *testing.T) {
	dir := t.TempDir()
	path := writeTemp(t, dir, "self.inc", "")

	r := NewIncludes()
	macros := NewMacroTable()

	skip, err := r.Enter(path, macros)
	require.NoError(t, err)
	assert.False(t, skip)

	_, err = r.Enter(path, macros)
	var cerr *CircularIncludeError
	assert.ErrorAs(t, err, &cerr)
}

func TestIncludesPragmaOnceSkipsSecondEntry(t *testing.T) {
	dir := t.TempDir()
	path := writeTemp(t, dir, "once.inc", "")

	r := NewIncludes()
	macros := NewMacroTable()

	skip, err := r.Enter(path, macros)
	require.NoError(t, err)
	require.False(t, skip)
	r.MarkPragmaOnce(path)
	r.Exit()

	skip, err = r.Enter(path, macros)
	require.NoError(t, err)
	assert.True(t, skip)
}

func TestIncludesGuardShortCircuitsWhileGuardMacroDefined(t *testing.T) {
	dir := t.TempDir()
	path := writeTemp(t, dir, "guarded.inc", "")

	r := NewIncludes()
	macros := NewMacroTable()
	macros.Insert(&Macro{Name: "GUARDED_INC"})

	skip, err := r.Enter(path, macros)
	require.NoError(t, err)
	require.False(t, skip)
	r.ConfirmGuard(path, "GUARDED_INC")
	r.Exit()

	skip, err = r.Enter(path, macros)
	require.NoError(t, err)
	assert.True(t, skip, "guard macro still defined, second include should be skipped")

	macros.Remove("GUARDED_INC")
	skip, err = r.Enter(path, macros)
	require.NoError(t, err)
	assert.False(t, skip, "guard macro undef'd, file must be re-read")
}

func TestIncludesExitUnwindsStack(t *testing.T) {
	dir := t.TempDir()
	a := writeTemp(t, dir, "a.inc", "")
	b := writeTemp(t, dir, "b.inc", "")

	r := NewIncludes()
	macros := NewMacroTable()

	_, err := r.Enter(a, macros)
	require.NoError(t, err)
	assert.Equal(t, 1, r.Depth())

	_, err = r.Enter(b, macros)
	require.NoError(t, err)
	assert.Equal(t, 2, r.Depth())

	r.Exit()
	assert.Equal(t, 1, r.Depth())
	r.Exit()
	assert.Equal(t, 0, r.Depth())
}
