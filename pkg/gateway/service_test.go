package gateway

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"shellbridge/pkg/bridge"
	"shellbridge/pkg/bus"
	"shellbridge/pkg/config"
	"shellbridge/pkg/frame"
	"shellbridge/pkg/session"
)

type testEnv struct {
	cfg      *config.Config
	bus      *bus.MessageBus
	registry *frame.Registry
	store    *session.FileStore
	cookies  *session.Cookies
	broker   *bridge.Broker
	svc      *Service
}

func quietLog() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEnv(t *testing.T, allowed []string) *testEnv {
	t.Helper()

	cfg := config.Default()
	cfg.Bridge.SelfOrigin = "http://shell.test"
	cfg.Bridge.AllowedOrigins = allowed
	cfg.Session.Path = filepath.Join(t.TempDir(), "session.json")

	log := quietLog()
	env := &testEnv{
		cfg:      cfg,
		bus:      bus.NewMessageBusSize(cfg.Bridge.QueueSize),
		registry: frame.NewRegistry(),
		store:    session.NewFileStore(cfg.Session.Path, log),
		cookies:  session.NewCookies(nil),
	}
	t.Cleanup(env.bus.Close)

	env.broker = bridge.New(bridge.OptionsFromConfig(cfg), bridge.Deps{
		Sessions: env.store,
		Cookies:  env.cookies,
		Frames:   env.registry,
		Bus:      env.bus,
	}, log)

	svc, err := NewService(cfg, Deps{
		Broker:   env.broker,
		Bus:      env.bus,
		Frames:   env.registry,
		Sessions: env.store,
		Cookies:  env.cookies,
	}, log)
	require.NoError(t, err)
	t.Cleanup(svc.frames.Close)
	env.svc = svc

	return env
}

func (e *testEnv) do(t *testing.T, method string, target string, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	e.svc.Handler().ServeHTTP(rec, req)
	return rec
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	log := quietLog()
	mb := bus.NewMessageBus()
	defer mb.Close()
	broker := bridge.New(bridge.OptionsFromConfig(cfg), bridge.Deps{Bus: mb}, log)

	tests := []struct {
		name string
		cfg  *config.Config
		deps Deps
	}{
		{name: "config", cfg: nil, deps: Deps{Broker: broker, Bus: mb, Frames: frame.NewRegistry()}},
		{name: "broker", cfg: cfg, deps: Deps{Bus: mb, Frames: frame.NewRegistry()}},
		{name: "bus", cfg: cfg, deps: Deps{Broker: broker, Frames: frame.NewRegistry()}},
		{name: "registry", cfg: cfg, deps: Deps{Broker: broker, Bus: mb}},
	}

	for _, tt := range tests {
		if _, err := NewService(tt.cfg, tt.deps, log); err == nil {
			t.Fatalf("missing %s: expected error", tt.name)
		}
	}
}

func TestServiceRegistersBuiltinEvents(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, []string{"*"})
	require.Equal(t, []string{EventFrames, EventPing}, env.broker.Names())

	_, err := NewService(env.cfg, Deps{Broker: env.broker, Bus: env.bus, Frames: env.registry}, quietLog())
	require.ErrorIs(t, err, bridge.ErrEventExists)
}

func TestReadyFollowsBrokerLoop(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, []string{"*"})

	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/healthz", "").Code)
	require.Equal(t, http.StatusServiceUnavailable, env.do(t, http.MethodGet, "/readyz", "").Code)

	dispose, err := env.broker.Init(context.Background())
	require.NoError(t, err)
	defer dispose()

	rec := env.do(t, http.MethodGet, "/readyz", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var status statusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	require.Equal(t, "ready", status.Status)
	require.Equal(t, []string{EventFrames, EventPing}, status.Events)
	require.True(t, status.Broker.Running)
}

func TestBroadcastRejectsInvalidBody(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, []string{"*"})

	require.Equal(t, http.StatusBadRequest, env.do(t, http.MethodPost, "/broadcast", "").Code)
	require.Equal(t, http.StatusBadRequest, env.do(t, http.MethodPost, "/broadcast", "{nope").Code)

	rec := env.do(t, http.MethodPost, "/broadcast", `{"refresh":true}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"delivered":0,"skipped":0,"failed":0}`, rec.Body.String())
}

func TestLocaleUpdatesCookieJar(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, []string{"*"})

	require.Equal(t, http.StatusBadRequest, env.do(t, http.MethodPut, "/locale", `{"lng":"  "}`).Code)

	rec := env.do(t, http.MethodPut, "/locale", `{"lng":"en"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Header().Get("Set-Cookie"), "NEXT_LOCALE=en")

	lng, ok := env.cookies.Get("NEXT_LOCALE")
	require.True(t, ok)
	require.Equal(t, "en", lng)

	rec = env.do(t, http.MethodDelete, "/locale", "")
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Contains(t, rec.Header().Get("Set-Cookie"), "Max-Age=0")

	_, ok = env.cookies.Get("NEXT_LOCALE")
	require.False(t, ok)
}

func TestEventStreamRejectsUnknownType(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, []string{"*"})

	rec := env.do(t, http.MethodGet, "/events?type=reply_sent,nonsense", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "nonsense")
}

func TestFrameManagerRefusesWorkAfterClose(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, []string{"*"})
	require.True(t, env.svc.frames.acquire())
	env.svc.frames.release()

	env.svc.frames.Close()
	require.False(t, env.svc.frames.acquire())

	rec := env.do(t, http.MethodGet, "/events", "")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestSessionPutAndDelete(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, []string{"*"})

	require.Equal(t, http.StatusBadRequest, env.do(t, http.MethodPut, "/session", `{"token":""}`).Code)

	rec := env.do(t, http.MethodPut, "/session", `{"token":"t","kubeconfig":"k","user":{"userId":"u1","name":"Ada"}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"id":"u1","k8sUsername":"","name":"Ada","avatar":"","nsid":""}`, rec.Body.String())

	snap, ok := env.store.Snapshot()
	require.True(t, ok)
	require.Equal(t, "t", snap.Token)

	require.Equal(t, http.StatusNoContent, env.do(t, http.MethodDelete, "/session", "").Code)
	_, ok = env.store.Snapshot()
	require.False(t, ok)
}

func TestFrameRoutes(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, []string{"*"})
	f := env.registry.Attach("https://app.test/", "https://app.test", frameWindowStub{})

	rec := env.do(t, http.MethodGet, "/frames", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var frames []frame.Frame
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &frames))
	require.Len(t, frames, 1)
	require.Equal(t, f.ID, frames[0].ID)

	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/frames/"+f.ID, "").Code)
	require.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/frames/missing", "").Code)
	require.Equal(t, http.StatusNotFound, env.do(t, http.MethodDelete, "/frames/missing", "").Code)
	require.Equal(t, http.StatusMethodNotAllowed, env.do(t, http.MethodPost, "/frames", "").Code)
}

func TestPingEventEchoes(t *testing.T) {
	t.Parallel()

	got, err := ping(context.Background(), json.RawMessage(`{"x":1}`))
	require.NoError(t, err)
	require.Equal(t, json.RawMessage(`{"x":1}`), got)
}

type frameWindowStub struct{}

func (frameWindowStub) PostMessage(any, string) error { return nil }
