package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"shellbridge/pkg/protocol"
)

// Store exposes the locally persisted login, if any.
type Store interface {
	Snapshot() (protocol.SessionSnapshot, bool)
}

// User is the persisted user record.
type User struct {
	UserID      string `json:"userId"`
	K8sUsername string `json:"k8s_username"`
	Name        string `json:"name"`
	Avatar      string `json:"avatar"`
	NSID        string `json:"nsid"`
}

// Session is the persisted login.
type Session struct {
	Token      string `json:"token"`
	Kubeconfig string `json:"kubeconfig"`
	User       User   `json:"user"`
}

// document mirrors the persisted {"state":{"session":...}} layout.
type document struct {
	State struct {
		Session *Session `json:"session"`
	} `json:"state"`
}

// Project converts a persisted session into the shape handed to frames.
func Project(s Session) protocol.SessionSnapshot {
	return protocol.SessionSnapshot{
		User: protocol.User{
			ID:          s.User.UserID,
			K8sUsername: s.User.K8sUsername,
			Name:        s.User.Name,
			Avatar:      s.User.Avatar,
			NSID:        s.User.NSID,
		},
		Token:      s.Token,
		Kubeconfig: s.Kubeconfig,
	}
}

// FileStore reads the session document from disk on every lookup, so changes
// written by other processes are picked up immediately.
type FileStore struct {
	path string
	log  *slog.Logger
	mu   sync.Mutex
}

func NewFileStore(path string, log *slog.Logger) *FileStore {
	if log == nil {
		log = slog.Default()
	}

	return &FileStore{
		path: path,
		log:  log.With("component", "session.file_store"),
	}
}

// Snapshot returns the current login. A missing, empty, or unreadable
// document means nobody is logged in.
func (s *FileStore) Snapshot() (protocol.SessionSnapshot, bool) {
	sess, err := s.Load()
	if err != nil {
		s.log.Warn("Failed to read session document", "path", s.path, "error", err)
		return protocol.SessionSnapshot{}, false
	}
	if sess == nil {
		return protocol.SessionSnapshot{}, false
	}

	return Project(*sess), true
}

// Load returns the persisted session, or nil when none is stored.
func (s *FileStore) Load() (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	content, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read session file: %w", err)
	}
	if strings.TrimSpace(string(content)) == "" {
		return nil, nil
	}

	var doc document
	if err := json.Unmarshal(content, &doc); err != nil {
		return nil, fmt.Errorf("parse session file: %w", err)
	}

	return doc.State.Session, nil
}

// Save persists sess, replacing any previous login.
func (s *FileStore) Save(sess Session) error {
	var doc document
	doc.State.Session = &sess
	return s.write(doc)
}

// Clear removes the stored login.
func (s *FileStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove session file: %w", err)
	}

	return nil
}

func (s *FileStore) write(doc document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create session directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".session-*.json")
	if err != nil {
		return fmt.Errorf("create temp session file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write temp session file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close temp session file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("replace session file: %w", err)
	}

	return nil
}
