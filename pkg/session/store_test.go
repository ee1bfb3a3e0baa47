package session

import (
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const persistedSession = `{
  "state": {
    "session": {
      "token": "tok-1",
      "kubeconfig": "apiVersion: v1",
      "user": {"userId": "u-1", "k8s_username": "alice-k8s", "name": "Alice", "avatar": "a.png", "nsid": "ns-alice"}
    }
  },
  "version": 0
}`

func TestFileStoreSnapshotProjectsPersistedSession(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	require.NoError(t, os.WriteFile(path, []byte(persistedSession), 0o600))

	store := NewFileStore(path, nil)
	snap, ok := store.Snapshot()
	require.True(t, ok)
	require.Equal(t, "u-1", snap.User.ID)
	require.Equal(t, "alice-k8s", snap.User.K8sUsername)
	require.Equal(t, "Alice", snap.User.Name)
	require.Equal(t, "a.png", snap.User.Avatar)
	require.Equal(t, "ns-alice", snap.User.NSID)
	require.Equal(t, "tok-1", snap.Token)
	require.Equal(t, "apiVersion: v1", snap.Kubeconfig)
}

func TestFileStoreNoLogin(t *testing.T) {
	tests := []struct {
		name    string
		content *string
	}{
		{name: "missing file"},
		{name: "empty file", content: ptr("  \n")},
		{name: "null session", content: ptr(`{"state":{"session":null}}`)},
		{name: "no state", content: ptr(`{}`)},
		{name: "malformed json", content: ptr(`{"state":`)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "session.json")
			if tt.content != nil {
				require.NoError(t, os.WriteFile(path, []byte(*tt.content), 0o600))
			}

			_, ok := NewFileStore(path, nil).Snapshot()
			require.False(t, ok)
		})
	}
}

func TestFileStoreSaveAndClear(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "session.json")
	store := NewFileStore(path, nil)

	require.NoError(t, store.Save(Session{Token: "tok-2", User: User{UserID: "u-2", Name: "Bob"}}))

	snap, ok := store.Snapshot()
	require.True(t, ok)
	require.Equal(t, "tok-2", snap.Token)
	require.Equal(t, "Bob", snap.User.Name)

	loaded, err := store.Load()
	require.NoError(t, err)
	require.NotNil(t, loaded)
	require.Equal(t, "u-2", loaded.User.UserID)

	require.NoError(t, store.Clear())
	_, ok = store.Snapshot()
	require.False(t, ok)

	// Clearing twice is fine.
	require.NoError(t, store.Clear())
}

func TestCookies(t *testing.T) {
	jar := NewCookies(map[string]string{"NEXT_LOCALE": "en", "EMPTY": ""})

	value, ok := jar.Get("NEXT_LOCALE")
	require.True(t, ok)
	require.Equal(t, "en", value)

	_, ok = jar.Get("EMPTY")
	require.False(t, ok)

	jar.Set("NEXT_LOCALE", "fr")
	value, _ = jar.Get("NEXT_LOCALE")
	require.Equal(t, "fr", value)

	jar.Delete("NEXT_LOCALE")
	_, ok = jar.Get("NEXT_LOCALE")
	require.False(t, ok)

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Cookie", "NEXT_LOCALE=de; theme=dark")
	jar.Absorb(req)
	value, ok = jar.Get("NEXT_LOCALE")
	require.True(t, ok)
	require.Equal(t, "de", value)
}

func ptr(s string) *string { return &s }
