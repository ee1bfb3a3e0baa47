package bridge

import (
	"context"

	"shellbridge/pkg/frame"
	"shellbridge/pkg/protocol"
)

type request struct {
	msg     protocol.InboundMessage
	source  frame.Window
	origin  string
	frameID string
}

func (r request) params() replyParams {
	return replyParams{
		source:    r.source,
		origin:    r.origin,
		frameID:   r.frameID,
		apiName:   r.msg.APIName,
		messageID: r.msg.MessageID,
	}
}

func (r request) fail(message string) replyParams {
	p := r.params()
	p.message = message
	return p
}

func (r request) ok(data any) replyParams {
	p := r.params()
	p.success = true
	p.data = data
	return p
}

func (b *Broker) snapshot() (protocol.SessionSnapshot, bool) {
	if b.sessions == nil {
		return protocol.SessionSnapshot{}, false
	}
	return b.sessions.Snapshot()
}

func (b *Broker) getUserInfo(ctx context.Context, call request) {
	if !b.guard.IsAllowed(call.origin) {
		b.reply(ctx, call.fail(protocol.MessageUnauthorizedOrigin))
		return
	}

	snap, ok := b.snapshot()
	if !ok {
		b.reply(ctx, call.fail(protocol.MessageNoLogin))
		return
	}
	b.reply(ctx, call.ok(snap))
}

func (b *Broker) getLanguage(ctx context.Context, call request) {
	if !b.guard.IsAllowed(call.origin) {
		b.reply(ctx, call.fail(protocol.MessageUnauthorizedOrigin))
		return
	}

	if _, ok := b.snapshot(); !ok {
		b.reply(ctx, call.fail(protocol.MessageNoLogin))
		return
	}
	b.reply(ctx, call.ok(protocol.Language{Lng: b.language()}))
}

func (b *Broker) language() string {
	if b.cookies != nil && b.localeCookie != "" {
		if lng, ok := b.cookies.Get(b.localeCookie); ok {
			return lng
		}
	}
	return b.defaultLocale
}

// runEventBus resolves the named callback and runs it off the dispatch loop,
// so a slow callback does not hold up other frames.
func (b *Broker) runEventBus(ctx context.Context, call request) {
	payload := protocol.DecodeEventBusPayload(call.msg.Data)

	fn, ok := b.events.lookup(payload.EventName)
	if !ok {
		b.log.Debug("event not registered", "event", payload.EventName, "message_id", call.msg.MessageID)
		b.reply(ctx, call.fail(protocol.MessageEventNotRegister))
		return
	}

	b.stats.eventCalls.Add(1)
	b.inflight.Add(1)
	go func() {
		defer b.inflight.Done()

		result, err := invokeEvent(ctx, fn, payload.EventData)
		if err != nil {
			b.log.Warn("event callback failed", "event", payload.EventName, "message_id", call.msg.MessageID, "error", err)
			b.reply(ctx, call.fail(err.Error()))
			return
		}
		b.reply(ctx, call.ok(orEmpty(result)))
	}()
}
