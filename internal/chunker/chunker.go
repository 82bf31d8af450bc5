// Package chunker turns one regular file into an ordered sequence of wire
// chunks: seq 0,1,2,... with the final slice flagged, and exactly one empty
// final chunk for an empty file.
package chunker

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/dirbeam/dirbeam/pkg/protocol"
)

// DefaultChunkSize is the payload cap per chunk.
const DefaultChunkSize = 64 * 1024

// ReadError reports a failure reading the source file. The file is abandoned
// mid-stream (no final chunk is emitted); the orchestrator decides policy.
type ReadError struct {
	Path string
	Err  error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("read %s: %v", e.Path, e.Err)
}

func (e *ReadError) Unwrap() error { return e.Err }

// Stream reads the file at absPath in chunkSize slices and calls emit for
// each chunk in strictly increasing seq order. The final slice carries EOF;
// an empty file yields exactly one empty final chunk.
//
// Errors from emit are returned unchanged so the caller can tell transport
// failures from *ReadError. The file handle is released on every exit path.
func Stream(ctx context.Context, absPath, relPath string, fileID uint64, chunkSize int, emit func(protocol.FileChunk) error) error {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	file, err := os.Open(absPath)
	if err != nil {
		return &ReadError{Path: relPath, Err: err}
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return &ReadError{Path: relPath, Err: err}
	}

	remaining := info.Size()
	var seq int64

	if remaining == 0 {
		return emit(protocol.FileChunk{
			FileID: fileID,
			Path:   relPath,
			Seq:    0,
			Data:   []byte{},
			EOF:    true,
		})
	}

	for remaining > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}

		n := int64(chunkSize)
		if n > remaining {
			n = remaining
		}
		buf := make([]byte, n)
		if _, err := io.ReadFull(file, buf); err != nil {
			return &ReadError{Path: relPath, Err: err}
		}
		remaining -= n

		chunk := protocol.FileChunk{
			FileID: fileID,
			Path:   relPath,
			Seq:    seq,
			Data:   buf,
			EOF:    remaining == 0,
		}
		if err := emit(chunk); err != nil {
			return err
		}
		seq++
	}

	return nil
}
