package walker

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dirbeam/dirbeam/pkg/protocol"
)

func collect(t *testing.T, root string) (dirs, files []string) {
	t.Helper()
	for ent := range Walk(context.Background(), root, nil) {
		if ent.IsDir {
			dirs = append(dirs, ent.RelPath)
		} else {
			files = append(files, ent.RelPath)
		}
	}
	return dirs, files
}

func TestWalk_NestedTree(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "x", "y", "z"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "x", "y", "z", "file.bin"), []byte("data"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "top.txt"), []byte("hello"), 0o644))

	dirs, files := collect(t, root)
	require.ElementsMatch(t, []string{"x", "x/y", "x/y/z"}, dirs)
	require.ElementsMatch(t, []string{"x/y/z/file.bin", "top.txt"}, files)
}

func TestWalk_ParentBeforeChild(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "a", "b"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "a", "b", "f"), nil, 0o644))

	seen := map[string]int{}
	order := 0
	for ent := range Walk(context.Background(), root, nil) {
		seen[ent.RelPath] = order
		order++
	}
	require.Less(t, seen["a"], seen["a/b"])
	require.Less(t, seen["a/b"], seen["a/b/f"])
}

func TestWalk_SkipsSymlinksAndSentinel(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, protocol.SentinelName), []byte("123"), 0o644))
	require.NoError(t, os.Symlink(filepath.Join(root, "a"), filepath.Join(root, "link")))

	dirs, files := collect(t, root)
	require.Empty(t, dirs)
	require.Equal(t, []string{"a"}, files)
}

func TestWalk_EmptyRoot(t *testing.T) {
	dirs, files := collect(t, t.TempDir())
	require.Empty(t, dirs)
	require.Empty(t, files)
}

func TestWalk_ReportsUnreadableDirAndContinues(t *testing.T) {
	if runtime.GOOS == "windows" || os.Getuid() == 0 {
		t.Skip("permission bits are not enforced")
	}
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, "locked"), 0o000))
	t.Cleanup(func() { _ = os.Chmod(filepath.Join(root, "locked"), 0o755) })
	require.NoError(t, os.WriteFile(filepath.Join(root, "ok"), []byte("x"), 0o644))

	var errPaths []string
	var files []string
	for ent := range Walk(context.Background(), root, func(rel string, err error) {
		errPaths = append(errPaths, rel)
	}) {
		if !ent.IsDir {
			files = append(files, ent.RelPath)
		}
	}
	require.Equal(t, []string{"locked"}, errPaths)
	require.Equal(t, []string{"ok"}, files)
}

func TestWalk_DeepTree(t *testing.T) {
	root := t.TempDir()
	depth := 2000
	parts := make([]string, 0, depth)
	for i := 0; i < depth; i++ {
		parts = append(parts, "d")
	}
	deep := filepath.Join(append([]string{root}, parts...)...)
	if err := os.MkdirAll(deep, 0o755); err != nil {
		t.Skipf("filesystem refused deep tree: %v", err)
	}
	require.NoError(t, os.WriteFile(filepath.Join(deep, "leaf"), []byte("x"), 0o644))

	dirs, files := collect(t, root)
	require.Len(t, dirs, depth)
	require.Len(t, files, 1)
	wantLeaf := strings.Repeat("d/", depth) + "leaf"
	require.Equal(t, wantLeaf, files[0])
}

func TestWalk_CancelStopsEarly(t *testing.T) {
	root := t.TempDir()
	for i := 0; i < 50; i++ {
		require.NoError(t, os.WriteFile(filepath.Join(root, fmt.Sprintf("f%02d", i)), []byte("x"), 0o644))
	}

	ctx, cancel := context.WithCancel(context.Background())
	ch := Walk(ctx, root, nil)
	<-ch
	cancel()

	count := 0
	for range ch {
		count++
	}
	require.Less(t, count, 49)
}
