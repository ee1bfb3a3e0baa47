package frame

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	defaultWriteTimeout = 10 * time.Second
	pongWait            = 60 * time.Second
	pingInterval        = (pongWait * 9) / 10
	maxMessageSize      = 1 << 20
)

// ErrClosed is returned when posting to a connection that has gone away.
var ErrClosed = errors.New("frame connection closed")

// Conn is a Window backed by a frame's WebSocket connection.
type Conn struct {
	ws           *websocket.Conn
	origin       string
	writeTimeout time.Duration
	log          *slog.Logger

	writeMu   sync.Mutex
	done      chan struct{}
	closeOnce sync.Once
}

func NewConn(ws *websocket.Conn, origin string, log *slog.Logger) *Conn {
	if log == nil {
		log = slog.Default()
	}

	return &Conn{
		ws:           ws,
		origin:       OriginOf(origin),
		writeTimeout: defaultWriteTimeout,
		log:          log.With("component", "frame.conn", "origin", origin),
		done:         make(chan struct{}),
	}
}

// Origin returns the normalized origin the frame connected from.
func (c *Conn) Origin() string {
	return c.origin
}

// PostMessage serializes msg and writes it to the frame, provided targetOrigin
// matches the frame's own origin.
func (c *Conn) PostMessage(msg any, targetOrigin string) error {
	if !TargetMatches(targetOrigin, c.origin) {
		return fmt.Errorf("%w: target %q, window %q", ErrTargetOrigin, targetOrigin, c.origin)
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	return c.write(websocket.TextMessage, data)
}

func (c *Conn) write(messageType int, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	if err := c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}
	if err := c.ws.WriteMessage(messageType, data); err != nil {
		return fmt.Errorf("write message: %w", err)
	}

	return nil
}

// ReadLoop delivers every data message to fn until the peer disconnects, the
// context ends, or Close is called. A normal close returns nil.
func (c *Conn) ReadLoop(ctx context.Context, fn func([]byte)) error {
	if ctx == nil {
		ctx = context.Background()
	}

	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	go c.pinger(ctx)

	for {
		messageType, data, err := c.ws.ReadMessage()
		if err != nil {
			c.Close()
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			if errors.Is(err, websocket.ErrCloseSent) {
				return nil
			}
			return fmt.Errorf("read message: %w", err)
		}

		if messageType != websocket.TextMessage && messageType != websocket.BinaryMessage {
			continue
		}

		fn(data)
	}
}

func (c *Conn) pinger(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.Close()
			return
		case <-c.done:
			return
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				c.log.Debug("Ping failed", "error", err)
				c.Close()
				return
			}
		}
	}
}

// Close sends a close frame and releases the socket. Safe to call repeatedly.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		_ = c.ws.SetWriteDeadline(time.Now().Add(time.Second))
		_ = c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		close(c.done)
		c.writeMu.Unlock()
		err = c.ws.Close()
	})
	return err
}
