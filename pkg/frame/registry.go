package frame

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Frame is one embedded sub-application attached to the shell.
type Frame struct {
	ID         string    `json:"id"`
	Src        string    `json:"src"`
	Origin     string    `json:"origin"`
	AttachedAt time.Time `json:"attached_at"`
	Window     Window    `json:"-"`
}

// Registry tracks the frames currently attached to the shell document.
type Registry struct {
	mu     sync.RWMutex
	frames map[string]*Frame
}

func NewRegistry() *Registry {
	return &Registry{frames: make(map[string]*Frame)}
}

// Attach records a frame and returns its assigned id.
func (r *Registry) Attach(src string, origin string, window Window) *Frame {
	f := &Frame{
		ID:         uuid.NewString(),
		Src:        src,
		Origin:     origin,
		AttachedAt: time.Now().UTC(),
		Window:     window,
	}

	r.mu.Lock()
	r.frames[f.ID] = f
	r.mu.Unlock()

	return f
}

// Detach removes a frame. Unknown ids are ignored.
func (r *Registry) Detach(id string) {
	r.mu.Lock()
	delete(r.frames, id)
	r.mu.Unlock()
}

func (r *Registry) Get(id string) (*Frame, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.frames[id]
	return f, ok
}

// Frames returns the attached frames in attach order.
func (r *Registry) Frames() []*Frame {
	r.mu.RLock()
	out := make([]*Frame, 0, len(r.frames))
	for _, f := range r.frames {
		out = append(out, f)
	}
	r.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].AttachedAt.Equal(out[j].AttachedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].AttachedAt.Before(out[j].AttachedAt)
	})

	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.frames)
}
