// Package receiver implements the listening side of a sync: single-instance
// admission on the output directory, a one-sender-at-a-time accept loop, and
// the per-session assembly engine that materializes the mirrored tree.
package receiver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/semaphore"

	"github.com/dirbeam/dirbeam/internal/config"
	"github.com/dirbeam/dirbeam/internal/wsconn"
)

// ErrBind reports a failure to obtain the listening socket, including
// reserved-port rejection.
var ErrBind = errors.New("bind failed")

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Receiver owns the listener, the output directory and its sentinel.
type Receiver struct {
	cfg      config.Receiver
	logger   *slog.Logger
	root     string
	sentinel string
	listener net.Listener

	// One permit: at most one sender is served at a time. The accept loop
	// itself waits for the permit, so excess senders queue in the OS accept
	// backlog instead of getting upgraded and then stalled.
	senders *semaphore.Weighted
}

// New resolves and prepares the output directory, claims the sentinel and
// binds the listener. A bind failure removes the sentinel again so a
// half-started receiver does not block the next one; the output directory,
// once created, is kept.
func New(cfg config.Receiver, logger *slog.Logger) (*Receiver, error) {
	root, err := filepath.Abs(cfg.OutputDir)
	if err != nil {
		return nil, fmt.Errorf("resolve output dir: %w", err)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	sentinel, err := createSentinel(root)
	if err != nil {
		return nil, err
	}

	// Port 0 picks an ephemeral port; otherwise reserved ports are refused.
	if cfg.Port != 0 && cfg.Port < 1024 {
		_ = removeSentinel(sentinel)
		return nil, fmt.Errorf("%w: system reserved port %d", ErrBind, cfg.Port)
	}
	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Port))
	if err != nil {
		_ = removeSentinel(sentinel)
		return nil, fmt.Errorf("%w: %v", ErrBind, err)
	}

	return &Receiver{
		cfg:      cfg,
		logger:   logger,
		root:     root,
		sentinel: sentinel,
		listener: listener,
		senders:  semaphore.NewWeighted(1),
	}, nil
}

// Run serves sync sessions until ctx is cancelled, then removes the sentinel.
// Cancellation (the interrupt path) is a clean shutdown and returns nil.
func (r *Receiver) Run(ctx context.Context) error {
	defer func() {
		if err := removeSentinel(r.sentinel); err != nil {
			r.logger.Error("remove sentinel", "error", err)
		}
	}()

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, req *http.Request) {
		r.handleSync(ctx, w, req)
	})
	srv := &http.Server{Handler: mux}

	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()

	r.logger.Info("listening", "addr", r.listener.Addr().String(), "output_dir", r.root)

	gated := &gatedListener{Listener: r.listener, sem: r.senders, ctx: ctx}
	err := srv.Serve(gated)
	if ctx.Err() != nil || errors.Is(err, http.ErrServerClosed) {
		r.logger.Info("receiver stopped")
		return nil
	}
	return fmt.Errorf("serve: %w", err)
}

// Addr returns the bound listener address, for logs and tests.
func (r *Receiver) Addr() net.Addr {
	return r.listener.Addr()
}

func (r *Receiver) handleSync(ctx context.Context, w http.ResponseWriter, req *http.Request) {
	conn, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Error("websocket upgrade failed", "remote", req.RemoteAddr, "error", err)
		return
	}
	r.logger.Info("sender connected", "remote", req.RemoteAddr)

	sess := newSession(r.root, wsconn.Wrap(conn, r.cfg.QueueCapacity, r.logger), r.logger)
	sess.run(ctx)
}

// gatedListener acquires the single-sender permit before each accept. The
// permit travels with the accepted connection and is released when that
// connection closes, which is also when its session ends.
type gatedListener struct {
	net.Listener
	sem *semaphore.Weighted
	ctx context.Context
}

func (l *gatedListener) Accept() (net.Conn, error) {
	if err := l.sem.Acquire(l.ctx, 1); err != nil {
		return nil, err
	}
	conn, err := l.Listener.Accept()
	if err != nil {
		l.sem.Release(1)
		return nil, err
	}
	return &permitConn{Conn: conn, sem: l.sem}, nil
}

type permitConn struct {
	net.Conn
	sem  *semaphore.Weighted
	once sync.Once
}

func (c *permitConn) Close() error {
	err := c.Conn.Close()
	c.once.Do(func() { c.sem.Release(1) })
	return err
}
