package receiver

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/dirbeam/dirbeam/pkg/protocol"
)

// clearOutputDir removes every entry under root except the sentinel.
func clearOutputDir(root string) error {
	entries, err := os.ReadDir(root)
	if err != nil {
		return fmt.Errorf("read output dir: %w", err)
	}
	for _, ent := range entries {
		if ent.Name() == protocol.SentinelName {
			continue
		}
		path := filepath.Join(root, ent.Name())
		if ent.IsDir() {
			if err := removeTree(path); err != nil {
				return err
			}
			continue
		}
		if err := os.Remove(path); err != nil {
			return fmt.Errorf("remove %s: %w", path, err)
		}
	}
	return nil
}

// removeTree deletes a directory tree using an explicit post-order worklist
// so arbitrarily deep trees cannot exhaust the stack. Files are removed when
// their parent is expanded; directories are removed on the second visit,
// after their contents are gone.
func removeTree(root string) error {
	type frame struct {
		path     string
		expanded bool
	}
	stack := []frame{{path: root}}

	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		if top.expanded {
			if err := os.Remove(top.path); err != nil {
				return fmt.Errorf("remove dir %s: %w", top.path, err)
			}
			stack = stack[:len(stack)-1]
			continue
		}
		top.expanded = true

		entries, err := os.ReadDir(top.path)
		if err != nil {
			return fmt.Errorf("read dir %s: %w", top.path, err)
		}
		for _, ent := range entries {
			path := filepath.Join(top.path, ent.Name())
			if ent.IsDir() {
				stack = append(stack, frame{path: path})
				continue
			}
			if err := os.Remove(path); err != nil {
				return fmt.Errorf("remove %s: %w", path, err)
			}
		}
	}
	return nil
}
