package receiver

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRemoveTree_DeepTree(t *testing.T) {
	root := t.TempDir()
	depth := 2000
	deep := filepath.Join(root, "top")
	parts := make([]string, 0, depth)
	for i := 0; i < depth; i++ {
		parts = append(parts, "d")
	}
	leafDir := filepath.Join(append([]string{deep}, parts...)...)
	if err := os.MkdirAll(leafDir, 0o755); err != nil {
		t.Skipf("filesystem refused deep tree: %v", err)
	}
	require.NoError(t, os.WriteFile(filepath.Join(leafDir, "leaf"), []byte("x"), 0o644))

	require.NoError(t, removeTree(deep))
	_, err := os.Stat(deep)
	require.True(t, os.IsNotExist(err))
}

func TestRemoveTree_MixedContents(t *testing.T) {
	root := t.TempDir()
	top := filepath.Join(root, "top")
	require.NoError(t, os.MkdirAll(filepath.Join(top, "a", "b"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(top, "c"), 0o755))
	for _, p := range []string{"f1", "a/f2", "a/b/f3", "c/f4"} {
		full := filepath.Join(top, filepath.FromSlash(p))
		require.NoError(t, os.WriteFile(full, []byte(strings.Repeat("x", 10)), 0o644))
	}

	require.NoError(t, removeTree(top))
	_, err := os.Stat(top)
	require.True(t, os.IsNotExist(err))
}

func TestClearOutputDir_KeepsSentinelOnly(t *testing.T) {
	root := t.TempDir()
	sentinel, err := createSentinel(root)
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Join(root, "nested", "dir"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "nested", "dir", "f"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "loose"), []byte("y"), 0o644))

	require.NoError(t, clearOutputDir(root))

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, filepath.Base(sentinel), entries[0].Name())
}

func TestClearOutputDir_EmptyDir(t *testing.T) {
	require.NoError(t, clearOutputDir(t.TempDir()))
}
