package bridge

import (
	"context"

	"shellbridge/pkg/bus"
	"shellbridge/pkg/frame"
	"shellbridge/pkg/protocol"
)

type replyParams struct {
	source    frame.Window
	origin    string
	frameID   string
	apiName   string
	messageID string
	success   bool
	message   string
	data      any
}

// reply posts a correlated answer to the window that asked. The origin is
// checked again here, independently of the receive-side check.
func (b *Broker) reply(ctx context.Context, p replyParams) {
	if !b.guard.IsAllowed(p.origin) {
		b.dropped(ctx, p, protocol.MessageUnauthorizedOrigin)
		b.log.Error("Unauthorized origin trying to access", "origin", p.origin, "message_id", p.messageID)
		return
	}
	if p.source == nil {
		return
	}
	if w, ok := p.source.(*selfWindow); ok && w == b.self {
		return
	}

	data := p.data
	if data == nil {
		data = emptyData()
	}

	out := protocol.Reply{
		MasterOrigin: b.selfOrigin,
		MessageID:    p.messageID,
		Success:      p.success,
		Message:      p.message,
		Data:         data,
	}
	if err := p.source.PostMessage(out, p.origin); err != nil {
		b.dropped(ctx, p, err.Error())
		b.log.Warn("reply not delivered", "origin", p.origin, "message_id", p.messageID, "error", err)
		return
	}

	b.stats.repliesSent.Add(1)
	b.publish(ctx, bus.Event{
		Type:      bus.EventReplySent,
		Origin:    p.origin,
		FrameID:   p.frameID,
		APIName:   p.apiName,
		MessageID: p.messageID,
		Payload:   map[string]string{"message": p.message, "success": boolString(p.success)},
	})
}

func (b *Broker) dropped(ctx context.Context, p replyParams, reason string) {
	b.stats.repliesDropped.Add(1)
	b.publish(ctx, bus.Event{
		Type:      bus.EventReplyDropped,
		Origin:    p.origin,
		FrameID:   p.frameID,
		APIName:   p.apiName,
		MessageID: p.messageID,
		Error:     reason,
	})
}

func boolString(v bool) string {
	if v {
		return "true"
	}
	return "false"
}
