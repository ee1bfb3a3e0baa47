package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"shellbridge/pkg/bridge"
	"shellbridge/pkg/bus"
	"shellbridge/pkg/config"
	"shellbridge/pkg/frame"
	"shellbridge/pkg/protocol"
	"shellbridge/pkg/session"
)

const (
	defaultHost       = "0.0.0.0"
	defaultPort       = 18790
	defaultBridgePath = "/bridge"
	maxBodyBytes      = 1 << 20
)

// SessionWriter persists the shell's login.
type SessionWriter interface {
	Save(sess session.Session) error
	Clear() error
}

type Deps struct {
	Broker   *bridge.Broker
	Bus      *bus.MessageBus
	Frames   *frame.Registry
	Sessions SessionWriter
	Cookies  *session.Cookies
}

type Service struct {
	cfg      *config.Config
	log      *slog.Logger
	broker   *bridge.Broker
	bus      *bus.MessageBus
	registry *frame.Registry
	sessions SessionWriter
	cookies  *session.Cookies
	frames   *frameManager
	upgrader websocket.Upgrader
	router   *mux.Router

	mu        sync.RWMutex
	startedAt time.Time
}

type statusResponse struct {
	Status        string       `json:"status"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	Frames        int          `json:"frames"`
	Events        []string     `json:"events"`
	Broker        bridge.Stats `json:"broker"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func NewService(cfg *config.Config, deps Deps, log *slog.Logger) (*Service, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if deps.Broker == nil {
		return nil, errors.New("broker is required")
	}
	if deps.Bus == nil {
		return nil, errors.New("message bus is required")
	}
	if deps.Frames == nil {
		return nil, errors.New("frame registry is required")
	}
	if log == nil {
		log = slog.Default()
	}

	s := &Service{
		cfg:      cfg,
		log:      log.With("component", "gateway.service"),
		broker:   deps.Broker,
		bus:      deps.Bus,
		registry: deps.Frames,
		sessions: deps.Sessions,
		cookies:  deps.Cookies,
		frames:   newFrameManager(deps.Frames, deps.Bus, log),
		// Origins are checked per message by the broker, not at the handshake.
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
	s.router = s.routes()

	if err := s.registerBuiltinEvents(); err != nil {
		return nil, err
	}

	return s, nil
}

// Handler exposes the gateway routes.
func (s *Service) Handler() http.Handler {
	return s.router
}

func (s *Service) routes() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/readyz", s.handleReady).Methods(http.MethodGet)
	r.HandleFunc(s.bridgePath(), s.handleBridge).Methods(http.MethodGet)
	r.HandleFunc("/broadcast", s.handleBroadcast).Methods(http.MethodPost)
	r.HandleFunc("/frames", s.handleFrames).Methods(http.MethodGet)
	r.HandleFunc("/frames/{id}", s.handleFrame).Methods(http.MethodGet)
	r.HandleFunc("/frames/{id}", s.handleDisconnect).Methods(http.MethodDelete)
	r.HandleFunc("/events", s.handleEvents).Methods(http.MethodGet)
	r.HandleFunc("/locale", s.handleLocale).Methods(http.MethodPut)
	r.HandleFunc("/locale", s.handleLocaleDelete).Methods(http.MethodDelete)
	r.HandleFunc("/session", s.handleSessionPut).Methods(http.MethodPut)
	r.HandleFunc("/session", s.handleSessionDelete).Methods(http.MethodDelete)
	return r
}

// Run starts the broker loop and the HTTP server, and blocks until ctx ends
// or the server fails.
func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	dispose, err := s.broker.Init(ctx)
	if err != nil {
		return fmt.Errorf("start broker: %w", err)
	}
	defer dispose()

	s.mu.Lock()
	s.startedAt = time.Now().UTC()
	s.mu.Unlock()

	serverErrors := make(chan error, 1)
	go s.runServer(ctx, serverErrors)

	select {
	case <-ctx.Done():
		s.frames.Close()
		return nil
	case err := <-serverErrors:
		s.frames.Close()
		return err
	}
}

func (s *Service) Addr() string {
	host := strings.TrimSpace(s.cfg.Gateway.Host)
	if host == "" {
		host = defaultHost
	}

	port := s.cfg.Gateway.Port
	if port <= 0 {
		port = defaultPort
	}

	return host + ":" + strconv.Itoa(port)
}

func (s *Service) bridgePath() string {
	path := strings.TrimSpace(s.cfg.Gateway.Path)
	if path == "" {
		return defaultBridgePath
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return path
}

func (s *Service) runServer(ctx context.Context, errCh chan<- error) {
	addr := s.Addr()
	server := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	s.log.Info("Gateway server started", "address", addr, "bridge_path", s.bridgePath())
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		errCh <- fmt.Errorf("start gateway server: %w", err)
	}
}

func (s *Service) handleBridge(w http.ResponseWriter, r *http.Request) {
	origin := r.Header.Get("Origin")
	src := r.URL.Query().Get("src")

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("WebSocket upgrade failed", "origin", origin, "error", err)
		return
	}

	s.frames.serve(ws, origin, src)
}

func (s *Service) handleBroadcast(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "read body: "+err.Error())
		return
	}
	if len(body) == 0 || !json.Valid(body) {
		s.respondError(w, http.StatusBadRequest, "body must be valid JSON")
		return
	}

	result := s.broker.BroadcastToAll(r.Context(), protocol.Broadcast{
		MasterOrigin: s.broker.SelfOrigin(),
		Type:         protocol.TypeBroadcast,
		Data:         json.RawMessage(body),
	})
	s.respondJSON(w, http.StatusOK, result)
}

func (s *Service) handleFrames(w http.ResponseWriter, _ *http.Request) {
	s.respondJSON(w, http.StatusOK, s.registry.Frames())
}

func (s *Service) handleFrame(w http.ResponseWriter, r *http.Request) {
	f, ok := s.registry.Get(mux.Vars(r)["id"])
	if !ok {
		s.respondError(w, http.StatusNotFound, "frame not found")
		return
	}
	s.respondJSON(w, http.StatusOK, f)
}

func (s *Service) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	if !s.frames.disconnect(mux.Vars(r)["id"]) {
		s.respondError(w, http.StatusNotFound, "frame not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Service) handleLocale(w http.ResponseWriter, r *http.Request) {
	if s.cookies == nil {
		s.respondError(w, http.StatusServiceUnavailable, "cookie jar not configured")
		return
	}

	var body protocol.Language
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&body); err != nil {
		s.respondError(w, http.StatusBadRequest, "decode locale: "+err.Error())
		return
	}
	lng := strings.TrimSpace(body.Lng)
	if lng == "" {
		s.respondError(w, http.StatusBadRequest, "lng is required")
		return
	}

	s.cookies.Absorb(r)
	s.cookies.Set(s.cfg.Locale.CookieName, lng)
	http.SetCookie(w, &http.Cookie{Name: s.cfg.Locale.CookieName, Value: lng, Path: "/"})
	s.log.Info("Locale updated", "lng", lng)
	s.respondJSON(w, http.StatusOK, protocol.Language{Lng: lng})
}

// handleLocaleDelete drops the locale cookie so GET_LANGUAGE falls back to
// the configured default.
func (s *Service) handleLocaleDelete(w http.ResponseWriter, _ *http.Request) {
	if s.cookies == nil {
		s.respondError(w, http.StatusServiceUnavailable, "cookie jar not configured")
		return
	}

	s.cookies.Delete(s.cfg.Locale.CookieName)
	http.SetCookie(w, &http.Cookie{Name: s.cfg.Locale.CookieName, Value: "", Path: "/", MaxAge: -1})
	s.log.Info("Locale cleared", "default", s.cfg.Locale.Default)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Service) handleSessionPut(w http.ResponseWriter, r *http.Request) {
	if s.sessions == nil {
		s.respondError(w, http.StatusServiceUnavailable, "session store not configured")
		return
	}

	var sess session.Session
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&sess); err != nil {
		s.respondError(w, http.StatusBadRequest, "decode session: "+err.Error())
		return
	}
	if strings.TrimSpace(sess.Token) == "" {
		s.respondError(w, http.StatusBadRequest, "token is required")
		return
	}

	if err := s.sessions.Save(sess); err != nil {
		s.log.Error("Failed to save session", "error", err)
		s.respondError(w, http.StatusInternalServerError, "save session failed")
		return
	}
	if s.cookies != nil {
		s.cookies.Absorb(r)
	}

	s.log.Info("Session saved", "user", sess.User.UserID)
	s.respondJSON(w, http.StatusOK, session.Project(sess).User)
}

func (s *Service) handleSessionDelete(w http.ResponseWriter, _ *http.Request) {
	if s.sessions == nil {
		s.respondError(w, http.StatusServiceUnavailable, "session store not configured")
		return
	}
	if err := s.sessions.Clear(); err != nil {
		s.log.Error("Failed to clear session", "error", err)
		s.respondError(w, http.StatusInternalServerError, "clear session failed")
		return
	}

	s.log.Info("Session cleared")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Service) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.respondJSON(w, http.StatusOK, s.currentStatus("ok"))
}

func (s *Service) handleReady(w http.ResponseWriter, _ *http.Request) {
	statusCode := http.StatusOK
	status := "ready"
	if !s.isReady() {
		statusCode = http.StatusServiceUnavailable
		status = "not_ready"
	}

	s.respondJSON(w, statusCode, s.currentStatus(status))
}

func (s *Service) respondJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log.Error("Failed to write response", "error", err)
	}
}

func (s *Service) respondError(w http.ResponseWriter, statusCode int, message string) {
	s.respondJSON(w, statusCode, errorResponse{Error: message})
}

func (s *Service) currentStatus(status string) statusResponse {
	s.mu.RLock()
	startedAt := s.startedAt
	s.mu.RUnlock()

	uptime := int64(0)
	if !startedAt.IsZero() {
		uptime = int64(time.Since(startedAt).Seconds())
	}

	return statusResponse{
		Status:        status,
		UptimeSeconds: uptime,
		Frames:        s.registry.Len(),
		Events:        s.broker.Names(),
		Broker:        s.broker.Stats(),
	}
}

func (s *Service) isReady() bool {
	return s.broker.Running()
}
