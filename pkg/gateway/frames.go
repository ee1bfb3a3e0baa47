package gateway

import (
	"context"
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"

	"shellbridge/pkg/bus"
	"shellbridge/pkg/frame"
)

// frameManager owns the live frame connections attached to the shell.
type frameManager struct {
	ctx      context.Context
	cancel   context.CancelFunc
	registry *frame.Registry
	bus      *bus.MessageBus
	log      *slog.Logger

	mu    sync.RWMutex
	conns map[string]*frame.Conn
	wg    sync.WaitGroup
}

func newFrameManager(registry *frame.Registry, mb *bus.MessageBus, log *slog.Logger) *frameManager {
	if log == nil {
		log = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &frameManager{
		ctx:      ctx,
		cancel:   cancel,
		registry: registry,
		bus:      mb,
		log:      log.With("component", "gateway.frames"),
		conns:    make(map[string]*frame.Conn),
	}
}

// serve attaches ws as a frame and pumps its messages into the inbound queue
// until the connection ends. It blocks for the lifetime of the frame.
func (m *frameManager) serve(ws *websocket.Conn, origin string, src string) {
	if !m.acquire() {
		_ = ws.Close()
		return
	}
	defer m.release()

	conn := frame.NewConn(ws, origin, m.log)
	f := m.registry.Attach(src, conn.Origin(), conn)

	m.mu.Lock()
	m.conns[f.ID] = conn
	m.mu.Unlock()

	m.log.Info("Frame attached", "frame_id", f.ID, "src", src, "origin", origin)
	m.bus.PublishEvent(m.ctx, bus.Event{
		Type:    bus.EventFrameAttached,
		Origin:  origin,
		FrameID: f.ID,
		Payload: map[string]string{"src": src},
	})

	err := conn.ReadLoop(m.ctx, func(data []byte) {
		env := bus.Envelope{Origin: origin, FrameID: f.ID, Source: conn, Data: data}
		if !m.bus.PublishInbound(m.ctx, env) {
			m.log.Warn("Inbound queue closed, dropping frame message", "frame_id", f.ID)
		}
	})

	m.registry.Detach(f.ID)
	m.mu.Lock()
	delete(m.conns, f.ID)
	m.mu.Unlock()

	event := bus.Event{Type: bus.EventFrameDetached, Origin: origin, FrameID: f.ID}
	if err != nil {
		event.Error = err.Error()
		m.log.Warn("Frame connection ended with error", "frame_id", f.ID, "error", err)
	} else {
		m.log.Info("Frame detached", "frame_id", f.ID)
	}
	m.bus.PublishEvent(context.Background(), event)
}

// acquire registers one connection goroutine with the manager. It reports
// false once Close has started.
func (m *frameManager) acquire() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ctx.Err() != nil {
		return false
	}
	m.wg.Add(1)
	return true
}

func (m *frameManager) release() {
	m.wg.Done()
}

// disconnect closes one frame's connection. It reports false for unknown ids.
func (m *frameManager) disconnect(id string) bool {
	m.mu.RLock()
	conn, ok := m.conns[id]
	m.mu.RUnlock()
	if !ok {
		return false
	}

	_ = conn.Close()
	return true
}

// Close disconnects every frame and waits for their read loops to exit.
func (m *frameManager) Close() {
	m.mu.Lock()
	m.cancel()
	conns := make([]*frame.Conn, 0, len(m.conns))
	for _, conn := range m.conns {
		conns = append(conns, conn)
	}
	m.mu.Unlock()

	for _, conn := range conns {
		_ = conn.Close()
	}
	m.wg.Wait()
}
