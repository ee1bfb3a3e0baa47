package session

import (
	"net/http"
	"strings"
	"sync"
)

// Cookies is the shell's own cookie jar. Frames never read it directly; the
// broker consults it when answering GET_LANGUAGE.
type Cookies struct {
	mu     sync.RWMutex
	values map[string]string
}

func NewCookies(seed map[string]string) *Cookies {
	values := make(map[string]string, len(seed))
	for name, value := range seed {
		values[name] = value
	}

	return &Cookies{values: values}
}

// Get returns the cookie value; empty values count as absent.
func (c *Cookies) Get(name string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	value, ok := c.values[name]
	if !ok || strings.TrimSpace(value) == "" {
		return "", false
	}

	return value, true
}

func (c *Cookies) Set(name string, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[name] = value
}

func (c *Cookies) Delete(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.values, name)
}

// Absorb copies cookies sent with a shell request into the jar.
func (c *Cookies) Absorb(r *http.Request) {
	if r == nil {
		return
	}

	cookies := r.Cookies()
	if len(cookies) == 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, cookie := range cookies {
		c.values[cookie.Name] = cookie.Value
	}
}
