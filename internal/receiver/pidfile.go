package receiver

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"github.com/dirbeam/dirbeam/pkg/protocol"
)

// ErrAlreadyRunning reports that another receiver owns the output directory.
var ErrAlreadyRunning = errors.New("output directory in use by another receiver")

// createSentinel creates the single-instance sentinel exclusively and writes
// the current pid into it. An existing sentinel means another receiver is
// alive (or died without cleanup) and startup must fail.
func createSentinel(outputDir string) (string, error) {
	path := filepath.Join(outputDir, protocol.SentinelName)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return "", fmt.Errorf("%w: %s", ErrAlreadyRunning, path)
		}
		return "", fmt.Errorf("create sentinel: %w", err)
	}

	if _, err := f.WriteString(strconv.Itoa(os.Getpid())); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return "", fmt.Errorf("write sentinel: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("close sentinel: %w", err)
	}
	return path, nil
}

// removeSentinel deletes the sentinel. A missing file is not an error.
func removeSentinel(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
