// Package wsconn wraps a WebSocket connection at the envelope level: one
// writer goroutine serializes all outbound frames, and a read loop delivers
// decoded envelopes to a callback. Both sides of a sync session use it.
package wsconn

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dirbeam/dirbeam/pkg/protocol"
)

const (
	writeTimeout = 10 * time.Second
	readTimeout  = 60 * time.Second
	pingInterval = 30 * time.Second
)

// ErrClosed is returned by Send after the connection has been closed.
var ErrClosed = errors.New("connection closed")

// Conn is an envelope-level WebSocket connection. Send queues envelopes on a
// bounded channel drained by a single writer goroutine, which doubles as the
// sender's outbound queue: producers suspend when it is full, which is the
// back-pressure path that bounds memory.
type Conn struct {
	conn    *websocket.Conn
	logger  *slog.Logger
	sendCh  chan protocol.Envelope
	quit    chan struct{}
	done    chan struct{}
	writeMu sync.Mutex

	closeOnce sync.Once
	closeErr  error
}

var dialer = websocket.Dialer{
	HandshakeTimeout: 5 * time.Second,
}

// Dial establishes a WebSocket connection to wsURL. queueCap bounds the
// outbound queue.
func Dial(ctx context.Context, wsURL string, queueCap int, logger *slog.Logger) (*Conn, error) {
	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, err
	}

	conn, resp, err := dialer.DialContext(ctx, u.String(), http.Header{})
	if err != nil {
		if resp != nil {
			body, _ := io.ReadAll(resp.Body)
			_ = resp.Body.Close()
			if len(body) > 0 {
				return nil, fmt.Errorf("websocket upgrade failed (%d): %s", resp.StatusCode, string(body))
			}
			return nil, fmt.Errorf("websocket upgrade failed (%d)", resp.StatusCode)
		}
		return nil, err
	}

	return newConn(conn, queueCap, logger), nil
}

// Wrap adopts an already-upgraded server-side connection.
func Wrap(conn *websocket.Conn, queueCap int, logger *slog.Logger) *Conn {
	return newConn(conn, queueCap, logger)
}

func newConn(conn *websocket.Conn, queueCap int, logger *slog.Logger) *Conn {
	if queueCap < 1 {
		queueCap = 32
	}
	c := &Conn{
		conn:   conn,
		logger: logger,
		sendCh: make(chan protocol.Envelope, queueCap),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go c.writeLoop()
	return c
}

// Send queues an envelope for transmission, blocking while the outbound
// queue is full. Returns ErrClosed once the connection is shut down.
func (c *Conn) Send(env protocol.Envelope) error {
	select {
	case <-c.quit:
		return ErrClosed
	case <-c.done:
		return ErrClosed
	default:
	}
	select {
	case c.sendCh <- env:
		return nil
	case <-c.quit:
		return ErrClosed
	case <-c.done:
		// The writer died on a transport error; unblock producers.
		return ErrClosed
	}
}

// ReadLoop reads frames until the peer closes, ctx is cancelled, or onEnv
// returns an error, which is propagated to the caller. Malformed frames are
// returned as errors wrapping protocol.ErrMalformedMessage.
func (c *Conn) ReadLoop(ctx context.Context, onEnv func(env protocol.Envelope) error) error {
	_ = c.conn.SetReadDeadline(time.Now().Add(readTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	go c.pingLoop(ctx)

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			// Closing the connection forces ReadMessage to unblock.
			_ = c.conn.Close()
		case <-stop:
		}
	}()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		messageType, frame, err := c.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		if messageType != websocket.TextMessage {
			continue
		}

		env, err := protocol.Decode(frame)
		if err != nil {
			return err
		}
		if err := onEnv(env); err != nil {
			return err
		}
	}
}

func (c *Conn) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.quit:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			err := c.conn.WriteMessage(websocket.PingMessage, nil)
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

func (c *Conn) writeLoop() {
	defer close(c.done)
	for {
		select {
		case env := <-c.sendCh:
			if err := c.writeEnvelope(env); err != nil {
				if c.logger != nil {
					c.logger.Error("websocket write failed", "error", err)
				}
				return
			}
		case <-c.quit:
			// Flush whatever is already queued, then stop.
			for {
				select {
				case env := <-c.sendCh:
					if err := c.writeEnvelope(env); err != nil {
						return
					}
				default:
					return
				}
			}
		}
	}
}

func (c *Conn) writeEnvelope(env protocol.Envelope) error {
	frame, err := env.Encode()
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, frame)
}

// Close drains the outbound queue, sends a close frame with a normal-closure
// code and tears down the transport without waiting for the peer's close
// reply. Safe to call more than once.
func (c *Conn) Close() error {
	return c.CloseWithCode(websocket.CloseNormalClosure, "")
}

// CloseWithCode is Close with an explicit close code, used for protocol
// violations.
func (c *Conn) CloseWithCode(code int, reason string) error {
	c.closeOnce.Do(func() {
		close(c.quit)
		<-c.done

		c.writeMu.Lock()
		msg := websocket.FormatCloseMessage(code, reason)
		_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		c.writeMu.Unlock()

		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}
