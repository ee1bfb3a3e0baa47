// Package client is the frame side of the bridge: it attaches to a shell
// gateway and issues correlated calls against the broker.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"shellbridge/pkg/protocol"
)

const (
	writeTimeout    = 10 * time.Second
	broadcastBuffer = 32
)

// ErrClosed is returned by calls made on, or pending when, the connection
// goes away.
var ErrClosed = errors.New("client closed")

type Options struct {
	URL    string
	Origin string
	Src    string
	Header http.Header
	Dialer *websocket.Dialer
	Logger *slog.Logger
}

type Client struct {
	ws  *websocket.Conn
	log *slog.Logger

	writeMu sync.Mutex

	pendingMu sync.Mutex
	pending   map[string]chan protocol.Envelope

	broadcasts chan protocol.Broadcast
	done       chan struct{}
	closeOnce  sync.Once
	err        error
}

// Dial attaches to the gateway as a frame loaded from opts.Src, presenting
// opts.Origin as its origin.
func Dial(ctx context.Context, opts Options) (*Client, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	target, err := url.Parse(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("parse gateway url: %w", err)
	}
	if opts.Src != "" {
		query := target.Query()
		query.Set("src", opts.Src)
		target.RawQuery = query.Encode()
	}

	header := http.Header{}
	if opts.Header != nil {
		header = opts.Header.Clone()
	}
	if opts.Origin != "" {
		header.Set("Origin", opts.Origin)
	}

	dialer := opts.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}

	ws, resp, err := dialer.DialContext(ctx, target.String(), header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("dial gateway: %w", err)
	}

	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	c := &Client{
		ws:         ws,
		log:        log.With("component", "client", "origin", opts.Origin),
		pending:    make(map[string]chan protocol.Envelope),
		broadcasts: make(chan protocol.Broadcast, broadcastBuffer),
		done:       make(chan struct{}),
	}
	go c.listen()

	return c, nil
}

// Call sends one request and waits for the reply carrying the same
// messageId. A reply with success false is returned as-is, not as an error.
func (c *Client) Call(ctx context.Context, apiName string, data any) (protocol.Envelope, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	raw, err := marshalData(data)
	if err != nil {
		return protocol.Envelope{}, err
	}

	id := uuid.NewString()
	ch := make(chan protocol.Envelope, 1)

	c.pendingMu.Lock()
	select {
	case <-c.done:
		c.pendingMu.Unlock()
		return protocol.Envelope{}, ErrClosed
	default:
	}
	c.pending[id] = ch
	c.pendingMu.Unlock()

	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
	}()

	if err := c.write(protocol.InboundMessage{APIName: apiName, MessageID: id, Data: raw}); err != nil {
		return protocol.Envelope{}, err
	}

	select {
	case reply := <-ch:
		return reply, nil
	case <-ctx.Done():
		return protocol.Envelope{}, ctx.Err()
	case <-c.done:
		return protocol.Envelope{}, ErrClosed
	}
}

// CallEvent invokes an event-bus entry registered on the shell.
func (c *Client) CallEvent(ctx context.Context, eventName string, eventData any) (protocol.Envelope, error) {
	raw, err := marshalData(eventData)
	if err != nil {
		return protocol.Envelope{}, err
	}

	return c.Call(ctx, string(protocol.APIEventBus), protocol.EventBusPayload{EventName: eventName, EventData: raw})
}

// Broadcasts delivers shell pushes. The channel is closed when the
// connection ends; pushes are dropped while it is full.
func (c *Client) Broadcasts() <-chan protocol.Broadcast {
	return c.broadcasts
}

// Done is closed once the connection has ended.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Err reports why the connection ended, or nil while it is open or after a
// clean close.
func (c *Client) Err() error {
	select {
	case <-c.done:
		return c.err
	default:
		return nil
	}
}

func (c *Client) Close() error {
	c.writeMu.Lock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(time.Second))
	_ = c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.writeMu.Unlock()

	c.shutdown(nil)
	return nil
}

func (c *Client) shutdown(err error) {
	c.closeOnce.Do(func() {
		c.pendingMu.Lock()
		c.err = err
		close(c.done)
		c.pendingMu.Unlock()
		_ = c.ws.Close()
	})
}

func (c *Client) write(msg protocol.InboundMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	if err := c.ws.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}
	if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("write request: %w", err)
	}
	return nil
}

func (c *Client) listen() {
	defer close(c.broadcasts)

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
			default:
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					err = nil
				}
				c.shutdown(err)
			}
			return
		}

		var env protocol.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			c.log.Warn("Dropping undecodable message", "error", err)
			continue
		}

		if env.IsBroadcast() {
			c.deliverBroadcast(env)
			continue
		}

		c.pendingMu.Lock()
		ch, ok := c.pending[env.MessageID]
		c.pendingMu.Unlock()
		if !ok {
			c.log.Debug("Reply for unknown message, dropping", "message_id", env.MessageID, "message", env.Message)
			continue
		}

		select {
		case ch <- env:
		default:
		}
	}
}

func (c *Client) deliverBroadcast(env protocol.Envelope) {
	push := protocol.Broadcast{MasterOrigin: env.MasterOrigin, Type: env.Type, Data: env.Data}
	select {
	case c.broadcasts <- push:
	default:
		c.log.Warn("Broadcast buffer full, dropping push")
	}
}

func marshalData(data any) (json.RawMessage, error) {
	switch value := data.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return value, nil
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode data: %w", err)
	}
	return raw, nil
}
