package protocol

import (
	"fmt"
	"strings"
)

// ValidatePath checks a wire path against the relative-path rules: forward
// slashes, non-empty, never absolute, and no empty, "." or ".." components.
// Backslashes are rejected outright so Windows-style separators cannot smuggle
// traversal past the component check.
func ValidatePath(path string) error {
	if path == "" {
		return fmt.Errorf("%w: empty path", ErrMalformedMessage)
	}
	if strings.HasPrefix(path, "/") {
		return fmt.Errorf("%w: absolute path %q", ErrMalformedMessage, path)
	}
	if strings.ContainsRune(path, '\\') {
		return fmt.Errorf("%w: backslash in path %q", ErrMalformedMessage, path)
	}
	if len(path) >= 2 && path[1] == ':' {
		return fmt.Errorf("%w: drive-qualified path %q", ErrMalformedMessage, path)
	}
	for _, part := range strings.Split(path, "/") {
		switch part {
		case "":
			return fmt.Errorf("%w: empty component in path %q", ErrMalformedMessage, path)
		case ".", "..":
			return fmt.Errorf("%w: %q component in path %q", ErrMalformedMessage, part, path)
		}
	}
	return nil
}
