package safepath

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveRejectsAbsolute(t *testing.T) {
	dir := t.TempDir()
	_, err := Resolve(dir, "/etc/passwd")
	require.Error(t, err)
}

func TestResolveRejectsTraversal(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "sub")
	require.NoError(t, os.Mkdir(sub, 0o755))
	_, err := Resolve(sub, "../../outside.txt")
	require.Error(t, err)
}

func TestResolveAllowsNestedNewFile(t *testing.T) {
	dir := t.TempDir()
	got, err := Resolve(dir, filepath.Join("a", "b", "c.txt"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "a", "b", "c.txt"), got)
}

func TestResolveRejectsSymlinkEscape(t *testing.T) {
	dir := t.TempDir()
	outside := t.TempDir()
	link := filepath.Join(dir, "escape")
	require.NoError(t, os.Symlink(outside, link))
	_, err := Resolve(dir, filepath.Join("escape", "file.txt"))
	require.Error(t, err)
}
