package receiver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/dirbeam/dirbeam/pkg/protocol"
)

// ErrProtocol reports a message that violates the session state machine. It
// is fatal: the connection is closed with a policy-violation code.
var ErrProtocol = errors.New("protocol violation")

// ErrOutOfOrder reports a chunk whose seq does not match the expected next
// index for its file.
var ErrOutOfOrder = fmt.Errorf("%w: out-of-order chunk", ErrProtocol)

// errByeReceived stops the read loop on a clean end-of-transfer.
var errByeReceived = errors.New("bye received")

// sessionConn is the subset of wsconn.Conn a session drives.
type sessionConn interface {
	Send(env protocol.Envelope) error
	ReadLoop(ctx context.Context, onEnv func(env protocol.Envelope) error) error
	Close() error
	CloseWithCode(code int, reason string) error
}

// session is the per-connection assembly engine. All state is owned by the
// goroutine draining the inbound stream, so no locking is needed.
//
// openFiles holds an append handle for every path whose first chunk has been
// written and whose final chunk has not been seen; expectedNext tracks the
// next seq per in-flight file id.
type session struct {
	id     string
	root   string
	conn   sessionConn
	logger *slog.Logger

	cleared      bool
	openFiles    map[string]*os.File
	expectedNext map[uint64]int64
}

func newSession(root string, conn sessionConn, logger *slog.Logger) *session {
	id := uuid.NewString()[:8]
	return &session{
		id:           id,
		root:         root,
		conn:         conn,
		logger:       logger.With("session", id),
		openFiles:    make(map[string]*os.File),
		expectedNext: make(map[uint64]int64),
	}
}

// run drains the inbound stream until the sender says bye, the peer closes,
// or a fatal error occurs. Teardown always runs: open handles are closed and
// partial files are left for the next session's directory reset.
func (s *session) run(ctx context.Context) {
	defer s.cleanup()

	err := s.conn.ReadLoop(ctx, s.handle)
	switch {
	case err == nil || errors.Is(err, errByeReceived):
		s.logger.Info("session complete")
		_ = s.conn.Close()
	case errors.Is(err, ErrProtocol) || errors.Is(err, protocol.ErrMalformedMessage):
		s.logger.Error("closing session", "error", err)
		_ = s.conn.CloseWithCode(websocket.ClosePolicyViolation, "protocol violation")
	case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway):
		s.logger.Info("peer closed connection")
		_ = s.conn.Close()
	case errors.Is(err, context.Canceled):
		s.logger.Info("session cancelled")
		_ = s.conn.Close()
	default:
		s.logger.Error("session aborted", "error", err)
		_ = s.conn.Close()
	}
}

func (s *session) cleanup() {
	// Idempotent: releases the connection (and with it the sender permit)
	// even when run did not reach its own close.
	_ = s.conn.Close()
	for path, f := range s.openFiles {
		if err := f.Close(); err != nil {
			s.logger.Warn("close file", "path", path, "error", err)
		}
	}
	s.openFiles = make(map[string]*os.File)
	s.expectedNext = make(map[uint64]int64)
}

// handle dispatches one inbound envelope. A non-nil return tears the session
// down; per-chunk filesystem failures are reported via acks instead.
func (s *session) handle(env protocol.Envelope) error {
	switch env.Type {
	case protocol.TypeClearDir:
		return s.handleClearDir()
	case protocol.TypeMkdir:
		if !s.cleared {
			return fmt.Errorf("%w: mkdir before clear_dir", ErrProtocol)
		}
		return s.handleMkdir(env)
	case protocol.TypeFileChunk:
		if !s.cleared {
			return fmt.Errorf("%w: file_chunk before clear_dir", ErrProtocol)
		}
		return s.handleChunk(env)
	case protocol.TypeBye:
		return errByeReceived
	default:
		return fmt.Errorf("%w: unexpected message type %q", ErrProtocol, env.Type)
	}
}

// handleClearDir empties the output root, keeping the sentinel. Repeated
// resets in one session are ignored.
func (s *session) handleClearDir() error {
	if s.cleared {
		s.logger.Debug("duplicate clear_dir ignored")
		return nil
	}
	if err := clearOutputDir(s.root); err != nil {
		return fmt.Errorf("clear output dir: %w", err)
	}
	s.cleared = true
	s.logger.Info("output directory cleared")
	return nil
}

func (s *session) handleMkdir(env protocol.Envelope) error {
	m, err := env.MkdirPayload()
	if err != nil {
		return err
	}
	abs := filepath.Join(s.root, filepath.FromSlash(m.Path))
	if err := os.MkdirAll(abs, 0o755); err != nil {
		s.logger.Error("mkdir failed", "path", m.Path, "error", err)
		return nil
	}
	s.logger.Debug("mkdir", "path", m.Path)
	return nil
}

func (s *session) handleChunk(env protocol.Envelope) error {
	c, err := env.FileChunkPayload()
	if err != nil {
		return err
	}

	want, tracked := s.expectedNext[c.FileID]
	if !tracked {
		if c.Seq != 0 {
			return fmt.Errorf("%w: file %d chunk %d arrived before chunk 0", ErrOutOfOrder, c.FileID, c.Seq)
		}
	} else if c.Seq != want {
		return fmt.Errorf("%w: file %d got seq %d, want %d", ErrOutOfOrder, c.FileID, c.Seq, want)
	}

	writeErr := s.writeChunk(c)
	if writeErr != nil {
		s.logger.Error("write chunk failed", "path", c.Path, "file_id", c.FileID, "seq", c.Seq, "error", writeErr)
	}

	// Bookkeeping advances even on a failed write so later chunks of the
	// same file keep passing the ordering check and keep reporting errors.
	if c.EOF {
		if f, ok := s.openFiles[c.Path]; ok {
			if err := f.Close(); err != nil && writeErr == nil {
				writeErr = err
			}
			delete(s.openFiles, c.Path)
		}
		delete(s.expectedNext, c.FileID)
		if writeErr == nil {
			s.logger.Debug("file complete", "path", c.Path, "file_id", c.FileID, "chunks", c.Seq+1)
		}
	} else {
		s.expectedNext[c.FileID] = c.Seq + 1
	}

	return s.sendAck(c, writeErr)
}

// writeChunk appends the payload, opening the file in append mode on the
// first chunk. Sequential append is the whole assembly strategy: with
// per-file ordering guaranteed, the on-disk size grows monotonically and no
// buffering is needed.
func (s *session) writeChunk(c protocol.FileChunk) error {
	f, ok := s.openFiles[c.Path]
	if !ok {
		abs := filepath.Join(s.root, filepath.FromSlash(c.Path))
		var err error
		f, err = os.OpenFile(abs, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
		if err != nil {
			return err
		}
		s.openFiles[c.Path] = f
	}
	if len(c.Data) == 0 {
		return nil
	}
	_, err := f.Write(c.Data)
	return err
}

func (s *session) sendAck(c protocol.FileChunk, writeErr error) error {
	ack := protocol.Ack{FileID: c.FileID, Seq: c.Seq, OK: writeErr == nil}
	if writeErr != nil {
		ack.Error = writeErr.Error()
	}
	env, err := protocol.NewAck(ack)
	if err != nil {
		return err
	}
	return s.conn.Send(env)
}
