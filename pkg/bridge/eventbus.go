package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strings"
	"sync"
)

var (
	ErrEventExists  = errors.New("event already registered")
	ErrNilEventFunc = errors.New("event callback is nil")
	ErrEmptyEvent   = errors.New("event name is empty")
)

// EventFunc handles one EVENT_BUS request. The returned value becomes the
// reply data; a falsy value is replaced by an empty object.
type EventFunc func(ctx context.Context, data json.RawMessage) (any, error)

type eventEntry struct {
	seq uint64
	fn  EventFunc
}

type eventRegistry struct {
	mu      sync.RWMutex
	seq     uint64
	entries map[string]eventEntry
}

func newEventRegistry() *eventRegistry {
	return &eventRegistry{entries: make(map[string]eventEntry)}
}

func (r *eventRegistry) add(name string, fn EventFunc) (uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[name]; exists {
		return 0, fmt.Errorf("register %q: %w", name, ErrEventExists)
	}
	r.seq++
	r.entries[name] = eventEntry{seq: r.seq, fn: fn}
	return r.seq, nil
}

// remove deletes name. A non-zero seq only removes the entry created by that
// registration.
func (r *eventRegistry) remove(name string, seq uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[name]
	if !ok || (seq != 0 && entry.seq != seq) {
		return false
	}
	delete(r.entries, name)
	return true
}

func (r *eventRegistry) lookup(name string) (EventFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.entries[name]
	return entry.fn, ok
}

func (r *eventRegistry) names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	r.mu.RUnlock()

	sort.Strings(names)
	return names
}

// Register installs fn under name. The returned function removes this
// registration and is safe to call more than once.
func (b *Broker) Register(name string, fn EventFunc) (func(), error) {
	if strings.TrimSpace(name) == "" {
		b.log.Error("event registration rejected", "error", ErrEmptyEvent)
		return nil, ErrEmptyEvent
	}
	if fn == nil {
		b.log.Error("event registration rejected", "event", name, "error", ErrNilEventFunc)
		return nil, fmt.Errorf("register %q: %w", name, ErrNilEventFunc)
	}

	seq, err := b.events.add(name, fn)
	if err != nil {
		b.log.Error("event already registered", "event", name)
		return nil, err
	}
	b.log.Debug("event registered", "event", name)

	var once sync.Once
	return func() {
		once.Do(func() {
			if b.events.remove(name, seq) {
				b.log.Debug("event unregistered", "event", name)
			}
		})
	}, nil
}

// Unregister removes name whatever registered it. Unknown names are ignored.
func (b *Broker) Unregister(name string) {
	if b.events.remove(name, 0) {
		b.log.Debug("event unregistered", "event", name)
	}
}

// Names lists the registered event names in sorted order.
func (b *Broker) Names() []string {
	return b.events.names()
}

// invokeEvent runs fn and turns a panic into an error so a broken callback
// still gets a reply.
func invokeEvent(ctx context.Context, fn EventFunc, data json.RawMessage) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("event callback panicked: %v", r)
		}
	}()
	return fn(ctx, data)
}

func emptyData() map[string]any {
	return map[string]any{}
}

// orEmpty replaces falsy callback results with an empty object.
func orEmpty(v any) any {
	switch value := v.(type) {
	case nil:
		return emptyData()
	case json.RawMessage:
		if rawFalsy(value) {
			return emptyData()
		}
		return value
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func, reflect.Chan:
		if rv.IsNil() {
			return emptyData()
		}
	case reflect.Bool, reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		if rv.IsZero() {
			return emptyData()
		}
	case reflect.Float32, reflect.Float64:
		if f := rv.Float(); f == 0 || math.IsNaN(f) {
			return emptyData()
		}
	}
	return v
}

// rawFalsy applies the same rules to undecoded JSON. Every spelling of zero
// ("0.0", "-0", "0e0") counts.
func rawFalsy(raw json.RawMessage) bool {
	text := strings.TrimSpace(string(raw))
	switch text {
	case "", "null", "false", `""`:
		return true
	}
	if c := text[0]; c == '-' || (c >= '0' && c <= '9') {
		var f float64
		if err := json.Unmarshal([]byte(text), &f); err == nil {
			return f == 0
		}
	}
	return false
}
