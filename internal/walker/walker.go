// Package walker produces the stream of filesystem entries a sync session
// transmits: one record per directory and per regular file under the source
// root, parent directories before their contents.
package walker

import (
	"context"
	"os"
	"path/filepath"

	"github.com/dirbeam/dirbeam/pkg/protocol"
)

// Entry is one walked filesystem object. RelPath uses forward slashes
// regardless of host OS; AbsPath is the host path for opening the file.
type Entry struct {
	RelPath string
	AbsPath string
	IsDir   bool
	Size    int64
}

// skipNames are entries never transmitted: the receiver's sentinel and
// OS metadata droppings.
var skipNames = map[string]bool{
	protocol.SentinelName: true,
	".DS_Store":           true,
	"Thumbs.db":           true,
	"desktop.ini":         true,
}

// Walk traverses the tree rooted at root and sends one Entry per directory
// and regular file on the returned channel. Symlinks, sockets, devices and
// the reserved names are skipped. Unreadable directories are reported via
// onErr and skipped; the walk continues. The traversal uses an explicit
// worklist so arbitrarily deep trees cannot exhaust the stack.
//
// The channel is closed when the walk is exhausted or ctx is cancelled. The
// sequence is lazy, finite and not restartable.
func Walk(ctx context.Context, root string, onErr func(relPath string, err error)) <-chan Entry {
	out := make(chan Entry)
	if onErr == nil {
		onErr = func(string, error) {}
	}

	go func() {
		defer close(out)

		type dir struct {
			rel string
			abs string
		}
		worklist := []dir{{rel: "", abs: root}}

		for len(worklist) > 0 {
			d := worklist[len(worklist)-1]
			worklist = worklist[:len(worklist)-1]

			entries, err := os.ReadDir(d.abs)
			if err != nil {
				onErr(d.rel, err)
				continue
			}

			for _, ent := range entries {
				name := ent.Name()
				if skipNames[name] {
					continue
				}
				rel := name
				if d.rel != "" {
					rel = d.rel + "/" + name
				}
				abs := filepath.Join(d.abs, name)

				mode := ent.Type()
				switch {
				case mode.IsDir():
					select {
					case out <- Entry{RelPath: rel, AbsPath: abs, IsDir: true}:
					case <-ctx.Done():
						return
					}
					worklist = append(worklist, dir{rel: rel, abs: abs})
				case mode.IsRegular():
					info, err := ent.Info()
					if err != nil {
						onErr(rel, err)
						continue
					}
					select {
					case out <- Entry{RelPath: rel, AbsPath: abs, Size: info.Size()}:
					case <-ctx.Done():
						return
					}
				default:
					// symlink, socket, device, fifo
				}
			}
		}
	}()

	return out
}
