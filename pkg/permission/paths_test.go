package permission

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveInsideRoot(t *testing.T) {
	root := t.TempDir()
	r := NewPathResolver([]string{root})

	resolved, err := r.Resolve(filepath.Join(root, "sub", "file.txt"))
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(resolved))
}

func TestResolveTraversalEscape(t *testing.T) {
	root := t.TempDir()
	r := NewPathResolver([]string{root})

	tests := []struct {
		name string
		path string
	}{
		{"dotdot escape", filepath.Join(root, "..", "outside.txt")},
		{"deep dotdot escape", filepath.Join(root, "a", "..", "..", "..", "etc", "passwd")},
		{"absolute outside", "/etc/passwd"},
		{"root parent", filepath.Dir(root)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Resolve(tt.path)
			assert.Error(t, err)
		})
	}
}

func TestResolveSymlinkEscape(t *testing.T) {
	base := t.TempDir()
	root := filepath.Join(base, "root")
	outside := filepath.Join(base, "outside")
	require.NoError(t, os.MkdirAll(root, 0o755))
	require.NoError(t, os.MkdirAll(outside, 0o755))

	// A symlink inside the root pointing outside must not smuggle
	// its targets past the containment check.
	link := filepath.Join(root, "sneaky")
	require.NoError(t, os.Symlink(outside, link))

	r := NewPathResolver([]string{root})
	_, err := r.Resolve(filepath.Join(link, "secret.txt"))
	assert.Error(t, err)

	// A symlink that stays inside the root is fine.
	inner := filepath.Join(root, "data")
	require.NoError(t, os.MkdirAll(inner, 0o755))
	okLink := filepath.Join(root, "alias")
	require.NoError(t, os.Symlink(inner, okLink))

	resolved, err := r.Resolve(filepath.Join(okLink, "file.txt"))
	require.NoError(t, err)
	assert.Contains(t, resolved, "data")
}

func TestResolveNonexistentTarget(t *testing.T) {
	root := t.TempDir()
	r := NewPathResolver([]string{root})

	// Writing a new file: the target does not exist yet but its
	// ancestors confine it.
	resolved, err := r.Resolve(filepath.Join(root, "new", "note.md"))
	require.NoError(t, err)
	assert.True(t, isDescendant(root, resolved))
}

func TestResolveEmptyPath(t *testing.T) {
	r := NewPathResolver([]string{t.TempDir()})
	_, err := r.Resolve("")
	assert.Error(t, err)
}

func TestIsDescendant(t *testing.T) {
	assert.True(t, isDescendant("/a/b", "/a/b"))
	assert.True(t, isDescendant("/a/b", "/a/b/c"))
	assert.False(t, isDescendant("/a/b", "/a/bc"))
	assert.False(t, isDescendant("/a/b", "/a"))
	assert.False(t, isDescendant("/a/b", "/x"))
}
