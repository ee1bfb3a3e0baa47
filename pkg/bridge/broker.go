// Package bridge routes messages between the shell and its embedded frames.
package bridge

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"shellbridge/pkg/bus"
	"shellbridge/pkg/config"
	"shellbridge/pkg/frame"
	"shellbridge/pkg/protocol"
	"shellbridge/pkg/session"
)

var ErrAlreadyRunning = errors.New("broker loop already running")

const disposeGrace = 5 * time.Second

// CookieReader is the read side of the shell's cookie jar.
type CookieReader interface {
	Get(name string) (string, bool)
}

// FrameLister enumerates the frames currently attached to the shell.
type FrameLister interface {
	Frames() []*frame.Frame
}

type Options struct {
	SelfOrigin     string
	AllowedOrigins []string
	LocaleCookie   string
	DefaultLocale  string
}

// OptionsFromConfig collects broker options from the loaded configuration.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		SelfOrigin:     cfg.Bridge.SelfOrigin,
		AllowedOrigins: cfg.Bridge.AllowedOrigins,
		LocaleCookie:   cfg.Locale.CookieName,
		DefaultLocale:  cfg.Locale.Default,
	}
}

type Deps struct {
	Sessions session.Store
	Cookies  CookieReader
	Frames   FrameLister
	Bus      *bus.MessageBus
}

// Stats counts broker activity since construction.
type Stats struct {
	Received       int64 `json:"messages_received"`
	Rejected       int64 `json:"origins_rejected"`
	RepliesSent    int64 `json:"replies_sent"`
	RepliesDropped int64 `json:"replies_dropped"`
	Broadcasts     int64 `json:"broadcasts"`
	EventCalls     int64 `json:"event_dispatches"`
	Running        bool  `json:"running"`
	QueueSize      int   `json:"queue_size"`
}

type counters struct {
	received       atomic.Int64
	rejected       atomic.Int64
	repliesSent    atomic.Int64
	repliesDropped atomic.Int64
	broadcasts     atomic.Int64
	eventCalls     atomic.Int64
}

type Broker struct {
	selfOrigin    string
	guard         Guard
	localeCookie  string
	defaultLocale string

	self     *selfWindow
	sessions session.Store
	cookies  CookieReader
	frames   FrameLister
	bus      *bus.MessageBus
	log      *slog.Logger

	events *eventRegistry
	stats  counters

	mu       sync.Mutex
	running  bool
	inflight sync.WaitGroup
}

// selfWindow stands for the shell's own window. Replies addressed to it are
// discarded.
type selfWindow struct{}

func (*selfWindow) PostMessage(any, string) error { return nil }

func New(opts Options, deps Deps, log *slog.Logger) *Broker {
	if log == nil {
		log = slog.Default()
	}

	allowed := append([]string(nil), opts.AllowedOrigins...)
	return &Broker{
		selfOrigin:    opts.SelfOrigin,
		guard:         NewGuard(opts.SelfOrigin, allowed),
		localeCookie:  opts.LocaleCookie,
		defaultLocale: opts.DefaultLocale,
		self:          &selfWindow{},
		sessions:      deps.Sessions,
		cookies:       deps.Cookies,
		frames:        deps.Frames,
		bus:           deps.Bus,
		log:           log.With("component", "bridge.broker"),
		events:        newEventRegistry(),
	}
}

// SelfWindow returns the handle representing the shell itself.
func (b *Broker) SelfWindow() frame.Window {
	return b.self
}

func (b *Broker) SelfOrigin() string {
	return b.selfOrigin
}

// Init starts the dispatch loop over the bus inbound queue. The returned
// function stops the loop and cancels the context of in-flight event
// callbacks. It then waits up to disposeGrace for those callbacks to reply;
// callbacks that ignore cancellation are left running. Registered events
// survive it.
func (b *Broker) Init(ctx context.Context) (func(), error) {
	if b.bus == nil {
		return nil, errors.New("broker has no message bus")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	b.mu.Lock()
	if b.running {
		b.mu.Unlock()
		return nil, ErrAlreadyRunning
	}
	b.running = true
	b.mu.Unlock()

	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		b.log.Info("broker loop started", "self_origin", b.selfOrigin)
		for {
			env, ok := b.bus.ConsumeInbound(loopCtx)
			if !ok {
				b.log.Info("broker loop stopped")
				return
			}
			b.OnMessage(loopCtx, env)
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			<-done
			if !b.waitInflight(disposeGrace) {
				b.log.Warn("event callbacks still running after dispose", "grace", disposeGrace)
			}
			b.mu.Lock()
			b.running = false
			b.mu.Unlock()
		})
	}, nil
}

// waitInflight reports whether every running event callback finished within
// timeout.
func (b *Broker) waitInflight(timeout time.Duration) bool {
	finished := make(chan struct{})
	go func() {
		b.inflight.Wait()
		close(finished)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-finished:
		return true
	case <-timer.C:
		return false
	}
}

func (b *Broker) Running() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.running
}

func (b *Broker) Stats() Stats {
	stats := Stats{
		Received:       b.stats.received.Load(),
		Rejected:       b.stats.rejected.Load(),
		RepliesSent:    b.stats.repliesSent.Load(),
		RepliesDropped: b.stats.repliesDropped.Load(),
		Broadcasts:     b.stats.broadcasts.Load(),
		EventCalls:     b.stats.eventCalls.Load(),
		Running:        b.Running(),
	}
	if b.bus != nil {
		stats.QueueSize = b.bus.Pending()
	}
	return stats
}

// OnMessage handles one message event. It never panics and never returns an
// error: failures become replies or log lines.
func (b *Broker) OnMessage(ctx context.Context, env bus.Envelope) {
	if !b.guard.IsAllowed(env.Origin) {
		b.stats.rejected.Add(1)
		b.log.Error("Unauthorized origin trying to access", "origin", env.Origin, "frame_id", env.FrameID)
		b.publish(ctx, bus.Event{Type: bus.EventOriginRejected, Origin: env.Origin, FrameID: env.FrameID})
		return
	}
	if env.Source == nil {
		return
	}

	msg := protocol.DecodeInbound(env.Data)
	if !msg.Valid() {
		b.reply(ctx, replyParams{
			source:    env.Source,
			origin:    env.Origin,
			frameID:   env.FrameID,
			messageID: msg.MessageID,
			message:   protocol.MessageParamsError,
		})
		return
	}

	b.stats.received.Add(1)
	b.log.Debug("message received", "api", msg.APIName, "message_id", msg.MessageID, "origin", env.Origin)
	b.publish(ctx, bus.Event{
		Type:      bus.EventMessageReceived,
		Origin:    env.Origin,
		FrameID:   env.FrameID,
		APIName:   msg.APIName,
		MessageID: msg.MessageID,
	})

	api, ok := protocol.ParseAPIName(msg.APIName)
	if !ok {
		b.reply(ctx, replyParams{
			source:    env.Source,
			origin:    env.Origin,
			frameID:   env.FrameID,
			apiName:   msg.APIName,
			messageID: msg.MessageID,
			message:   protocol.MessageFunctionNotDeclare,
		})
		return
	}

	call := request{msg: msg, source: env.Source, origin: env.Origin, frameID: env.FrameID}
	switch api {
	case protocol.APIUserGetInfo:
		b.getUserInfo(ctx, call)
	case protocol.APIEventBus:
		b.runEventBus(ctx, call)
	case protocol.APIGetLanguage:
		b.getLanguage(ctx, call)
	}
}

func (b *Broker) publish(ctx context.Context, event bus.Event) {
	if b.bus == nil {
		return
	}
	b.bus.PublishEvent(ctx, event)
}
