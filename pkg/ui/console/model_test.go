package console

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"shellbridge/pkg/protocol"
)

type fakeCaller struct {
	api   string
	event string
	data  any
	reply protocol.Envelope
	err   error
	ch    chan protocol.Broadcast
}

func (f *fakeCaller) Call(_ context.Context, apiName string, data any) (protocol.Envelope, error) {
	f.api = apiName
	f.data = data
	return f.reply, f.err
}

func (f *fakeCaller) CallEvent(_ context.Context, eventName string, eventData any) (protocol.Envelope, error) {
	f.api = string(protocol.APIEventBus)
	f.event = eventName
	f.data = eventData
	return f.reply, f.err
}

func (f *fakeCaller) Broadcasts() <-chan protocol.Broadcast {
	return f.ch
}

func TestParseCommand(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input   string
		api     string
		event   string
		data    string
		wantErr bool
	}{
		{input: "USER_GET_INFO", api: "USER_GET_INFO"},
		{input: "  get_language  ", api: "GET_LANGUAGE"},
		{input: "EVENT_BUS ping", api: "EVENT_BUS", event: "ping"},
		{input: `EVENT_BUS ping {"x":1}`, api: "EVENT_BUS", event: "ping", data: `{"x":1}`},
		{input: `SOMETHING_ELSE [1,2]`, api: "SOMETHING_ELSE", data: `[1,2]`},
		{input: "EVENT_BUS", wantErr: true},
		{input: "EVENT_BUS ping {oops", wantErr: true},
		{input: "   ", wantErr: true},
	}

	for _, tt := range tests {
		got, err := parseCommand(tt.input)
		if tt.wantErr {
			if err == nil {
				t.Fatalf("parseCommand(%q) expected error", tt.input)
			}
			continue
		}
		if err != nil {
			t.Fatalf("parseCommand(%q) error = %v", tt.input, err)
		}
		if got.api != tt.api || got.event != tt.event || string(got.data) != tt.data {
			t.Fatalf("parseCommand(%q) = %+v", tt.input, got)
		}
	}
}

func TestSendCommandRoutesEventCalls(t *testing.T) {
	t.Parallel()

	caller := &fakeCaller{reply: protocol.Envelope{MessageID: "m", Success: true, Data: json.RawMessage(`{"x":1}`)}}

	msg := sendCommandCmd(context.Background(), caller, command{api: "EVENT_BUS", event: "ping", data: json.RawMessage(`{"x":1}`)})()
	reply, ok := msg.(replyMsg)
	if !ok {
		t.Fatalf("msg = %T, want replyMsg", msg)
	}
	if caller.event != "ping" {
		t.Fatalf("event = %q, want ping", caller.event)
	}
	if !reply.reply.Success {
		t.Fatal("expected successful reply")
	}

	_ = sendCommandCmd(context.Background(), caller, command{api: "GET_LANGUAGE"})()
	if caller.api != "GET_LANGUAGE" || caller.data != nil {
		t.Fatalf("call = %q %v, want GET_LANGUAGE without data", caller.api, caller.data)
	}
}

func TestRecordReplyCountsOutcomes(t *testing.T) {
	t.Parallel()

	m := newModel(context.Background(), nil, Info{})
	m.isLoading = true

	m.Update(replyMsg{reply: protocol.Envelope{Success: true, Data: json.RawMessage(`{"lng":"zh"}`)}})
	m.Update(replyMsg{reply: protocol.Envelope{Success: false, Message: protocol.MessageNoLogin}})
	m.Update(replyMsg{err: errors.New("client closed")})

	if m.isLoading {
		t.Fatal("expected loading to stop after reply")
	}
	if m.succeeded != 1 || m.failed != 2 {
		t.Fatalf("succeeded/failed = %d/%d, want 1/2", m.succeeded, m.failed)
	}
	if len(m.entries) != 3 || m.entries[1].content != protocol.MessageNoLogin {
		t.Fatalf("unexpected entries: %+v", m.entries)
	}
	if m.lastErr != "client closed" {
		t.Fatalf("lastErr = %q", m.lastErr)
	}
}

func TestBroadcastMsgAppendsEntryAndResubscribes(t *testing.T) {
	t.Parallel()

	caller := &fakeCaller{ch: make(chan protocol.Broadcast, 1)}
	m := newModel(context.Background(), caller, Info{})

	_, cmd := m.Update(broadcastMsg{push: protocol.Broadcast{Type: protocol.TypeBroadcast, Data: json.RawMessage(`{"reload":true}`)}})
	if cmd == nil {
		t.Fatal("expected a follow-up subscription command")
	}
	if m.broadcasts != 1 || m.entries[0].kind != entryBroadcast {
		t.Fatalf("unexpected state: broadcasts=%d entries=%+v", m.broadcasts, m.entries)
	}
	if !strings.Contains(m.entries[0].content, `"reload": true`) {
		t.Fatalf("content = %q", m.entries[0].content)
	}

	close(caller.ch)
	if _, ok := cmd().(detachedMsg); !ok {
		t.Fatal("expected detachedMsg once the broadcast channel closes")
	}
}

func TestSubmitRejectsInvalidInput(t *testing.T) {
	t.Parallel()

	m := newModel(context.Background(), &fakeCaller{}, Info{})
	m.booting = false
	m.input.SetValue("EVENT_BUS")

	if cmd := m.submit(); cmd != nil {
		t.Fatal("expected no command for invalid input")
	}
	if m.calls != 0 || m.lastErr == "" {
		t.Fatalf("calls=%d lastErr=%q", m.calls, m.lastErr)
	}
	if m.input.Value() != "" {
		t.Fatal("expected input to be cleared")
	}
}

func TestSubmitStartsCall(t *testing.T) {
	t.Parallel()

	m := newModel(context.Background(), &fakeCaller{}, Info{})
	m.booting = false
	m.input.SetValue("USER_GET_INFO")

	if cmd := m.submit(); cmd == nil {
		t.Fatal("expected a command for a valid call")
	}
	if !m.isLoading || m.calls != 1 || m.entries[0].kind != entryRequest {
		t.Fatalf("unexpected state: loading=%v calls=%d entries=%+v", m.isLoading, m.calls, m.entries)
	}
	if cmd := m.submit(); cmd != nil {
		t.Fatal("expected submit to be ignored while a call is in flight")
	}
}

func TestHandleViewportMouseWheelUpDisablesFollowLog(t *testing.T) {
	t.Parallel()

	m := newModel(context.Background(), nil, Info{})
	m.viewport.Width = 40
	m.viewport.Height = 5
	m.viewport.SetContent(strings.Repeat("line\n", 40))
	m.viewport.GotoBottom()
	m.followLog = true

	previousOffset := m.viewport.YOffset
	handled := m.handleViewportMouse(tea.MouseMsg{Action: tea.MouseActionPress, Button: tea.MouseButtonWheelUp})
	if !handled {
		t.Fatal("expected wheel-up mouse event to be handled")
	}
	if m.followLog {
		t.Fatal("expected followLog to be disabled after wheel-up scroll")
	}
	if m.viewport.YOffset >= previousOffset {
		t.Fatalf("expected YOffset to decrease after wheel-up scroll, got %d want < %d", m.viewport.YOffset, previousOffset)
	}
}

func TestHandleViewportMouseWheelDownAtBottomEnablesFollowLog(t *testing.T) {
	t.Parallel()

	m := newModel(context.Background(), nil, Info{})
	m.viewport.Width = 40
	m.viewport.Height = 5
	m.viewport.SetContent(strings.Repeat("line\n", 40))
	m.viewport.GotoBottom()

	maxOffset := m.viewport.TotalLineCount() - m.viewport.Height
	m.viewport.SetYOffset(max(0, maxOffset-1))
	m.followLog = false

	handled := m.handleViewportMouse(tea.MouseMsg{Action: tea.MouseActionPress, Button: tea.MouseButtonWheelDown})
	if !handled {
		t.Fatal("expected wheel-down mouse event to be handled")
	}
	if !m.viewport.AtBottom() {
		t.Fatalf("expected viewport to reach bottom, got YOffset=%d", m.viewport.YOffset)
	}
	if !m.followLog {
		t.Fatal("expected followLog to re-enable when wheel-down reaches bottom")
	}
}

func TestHandleViewportMouseIgnoresNonWheelEvents(t *testing.T) {
	t.Parallel()

	m := newModel(context.Background(), nil, Info{})
	handled := m.handleViewportMouse(tea.MouseMsg{Action: tea.MouseActionPress, Button: tea.MouseButtonLeft})
	if handled {
		t.Fatal("expected non-wheel mouse event to be ignored")
	}
}
