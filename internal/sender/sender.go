// Package sender implements the transmitting side of a sync: it walks the
// source tree, fans files across a bounded pool of chunker workers, and
// funnels every message through one outbound queue onto the WebSocket.
package sender

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/dirbeam/dirbeam/internal/chunker"
	"github.com/dirbeam/dirbeam/internal/config"
	"github.com/dirbeam/dirbeam/internal/walker"
	"github.com/dirbeam/dirbeam/internal/wsconn"
	"github.com/dirbeam/dirbeam/pkg/protocol"
)

// Error kinds, mapped to exit codes by the CLI.
var (
	ErrConnect   = errors.New("connect failed")
	ErrSource    = errors.New("source directory unreadable")
	ErrTransport = errors.New("transport failed")
)

// Sender mirrors one source directory to one receiver.
type Sender struct {
	cfg    config.Sender
	logger *slog.Logger
}

// New validates the source directory and returns a sender ready to run.
func New(cfg config.Sender, logger *slog.Logger) (*Sender, error) {
	info, err := os.Stat(cfg.From)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSource, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrSource, cfg.From)
	}
	return &Sender{cfg: cfg, logger: logger}, nil
}

// Run performs one sync session: connect, clear_dir, stream the tree, bye,
// close. Per-file errors are logged and skipped; transport errors abort.
// A cancelled context (the interrupt path) returns ctx.Err().
func (s *Sender) Run(ctx context.Context) error {
	transferID := uuid.NewString()[:8]
	logger := s.logger.With("transfer", transferID)
	start := time.Now()

	conn, err := wsconn.Dial(ctx, s.cfg.To, s.cfg.QueueCapacity, logger)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w: %v", ErrConnect, err)
	}
	defer conn.Close()
	logger.Info("connected", "to", s.cfg.To, "from", s.cfg.From)

	// Acks are advisory: drain them so the peer's writes never block, log
	// failures, and keep counts for the summary.
	var ackOK, ackErr atomic.Int64
	acksDone := make(chan struct{})
	go func() {
		defer close(acksDone)
		_ = conn.ReadLoop(ctx, func(env protocol.Envelope) error {
			if env.Type != protocol.TypeAck {
				return nil
			}
			ack, err := env.AckPayload()
			if err != nil {
				return err
			}
			if ack.OK {
				ackOK.Add(1)
			} else {
				ackErr.Add(1)
				logger.Warn("peer rejected chunk", "file_id", ack.FileID, "seq", ack.Seq, "error", ack.Error)
			}
			return nil
		})
	}()

	clearEnv, err := protocol.NewClearDir()
	if err != nil {
		return err
	}
	if err := conn.Send(clearEnv); err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}

	var filesSent, filesSkipped, bytesSent atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.ParallelFiles)

	entries := walker.Walk(gctx, s.cfg.From, func(rel string, err error) {
		logger.Warn("skipping unreadable entry", "path", rel, "error", err)
	})

	var nextFileID uint64
	dispatchErr := func() error {
		for ent := range entries {
			if ent.IsDir {
				env, err := protocol.NewMkdir(ent.RelPath)
				if err != nil {
					logger.Warn("skipping directory", "path", ent.RelPath, "error", err)
					continue
				}
				if err := conn.Send(env); err != nil {
					return fmt.Errorf("%w: %v", ErrTransport, err)
				}
				continue
			}

			nextFileID++
			id := nextFileID
			ent := ent
			g.Go(func() error {
				err := chunker.Stream(gctx, ent.AbsPath, ent.RelPath, id, s.cfg.ChunkSize, func(c protocol.FileChunk) error {
					env, err := protocol.NewFileChunk(c)
					if err != nil {
						return err
					}
					if err := conn.Send(env); err != nil {
						return err
					}
					bytesSent.Add(int64(len(c.Data)))
					return nil
				})
				switch {
				case err == nil:
					filesSent.Add(1)
					return nil
				case isReadError(err):
					// The file is abandoned mid-stream; the receiver keeps
					// whatever arrived until the next session's reset.
					filesSkipped.Add(1)
					logger.Warn("skipping file", "path", ent.RelPath, "error", err)
					return nil
				case gctx.Err() != nil:
					return gctx.Err()
				default:
					return fmt.Errorf("%w: %v", ErrTransport, err)
				}
			})
		}
		return nil
	}()

	waitErr := g.Wait()
	if err := ctx.Err(); err != nil {
		return err
	}
	if dispatchErr != nil {
		return dispatchErr
	}
	if waitErr != nil {
		return waitErr
	}

	// Best effort: on bye the receiver applies everything queued before it
	// and closes the connection, which ends the ack reader. Closing our end
	// first would reset the connection under frames it has not read yet.
	if env, err := protocol.NewBye(); err == nil && conn.Send(env) == nil {
		select {
		case <-acksDone:
		case <-ctx.Done():
		case <-time.After(10 * time.Second):
		}
	}
	if err := conn.Close(); err != nil {
		logger.Debug("close", "error", err)
	}

	logger.Info("sync complete",
		"files", filesSent.Load(),
		"skipped", filesSkipped.Load(),
		"bytes", humanize.Bytes(uint64(bytesSent.Load())),
		"acked", ackOK.Load(),
		"nacked", ackErr.Load(),
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
	return nil
}

func isReadError(err error) bool {
	var readErr *chunker.ReadError
	return errors.As(err, &readErr)
}
