package gateway

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"shellbridge/pkg/bus"
)

const (
	eventStreamBuffer = 64
	eventWriteWait    = 5 * time.Second
)

var knownEventTypes = map[bus.EventType]struct{}{
	bus.EventMessageReceived: {},
	bus.EventOriginRejected:  {},
	bus.EventReplySent:       {},
	bus.EventReplyDropped:    {},
	bus.EventBroadcast:       {},
	bus.EventFrameAttached:   {},
	bus.EventFrameDetached:   {},
}

// parseEventFilter reads a comma separated ?type= list. An empty list
// matches every event.
func parseEventFilter(raw string) (map[bus.EventType]struct{}, error) {
	filter := make(map[bus.EventType]struct{})
	for _, part := range strings.Split(raw, ",") {
		name := bus.EventType(strings.TrimSpace(part))
		if name == "" {
			continue
		}
		if _, ok := knownEventTypes[name]; !ok {
			return nil, fmt.Errorf("unknown event type %q", name)
		}
		filter[name] = struct{}{}
	}
	return filter, nil
}

// handleEvents streams broker and frame events to an operator as JSON text
// messages. The subscription is taken before the upgrade so nothing published
// after the handshake completes is missed.
func (s *Service) handleEvents(w http.ResponseWriter, r *http.Request) {
	filter, err := parseEventFilter(r.URL.Query().Get("type"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !s.frames.acquire() {
		s.respondError(w, http.StatusServiceUnavailable, "gateway is shutting down")
		return
	}
	defer s.frames.release()

	ctx, cancel := context.WithCancel(s.frames.ctx)
	defer cancel()

	events, unsubscribe := s.bus.SubscribeEvents(ctx, eventStreamBuffer)
	defer unsubscribe()

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("Event stream upgrade failed", "error", err)
		return
	}
	defer ws.Close()

	log := s.log.With("remote", r.RemoteAddr)
	log.Info("Event stream opened", "filter", r.URL.Query().Get("type"))

	// The peer never sends anything; reads only notice it going away.
	go func() {
		defer cancel()
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			_ = ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			log.Info("Event stream closed")
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			if len(filter) > 0 {
				if _, want := filter[event.Type]; !want {
					continue
				}
			}
			_ = ws.SetWriteDeadline(time.Now().Add(eventWriteWait))
			if err := ws.WriteJSON(event); err != nil {
				log.Warn("Event stream write failed", "error", err)
				return
			}
		}
	}
}
