package stream

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Viewer is one connected stream client.
type Viewer struct {
	ID     uuid.UUID
	Remote string
	Kind   string // "mjpeg", "grpc"
	Since  time.Time

	frames atomic.Uint64
}

// Sent records one delivered frame.
func (v *Viewer) Sent() { v.frames.Add(1) }

// Frames returns the number of frames delivered so far.
func (v *Viewer) Frames() uint64 { return v.frames.Load() }

// ViewerInfo is a point-in-time copy of a Viewer.
type ViewerInfo struct {
	ID     string    `json:"id"`
	Remote string    `json:"remote"`
	Kind   string    `json:"kind"`
	Since  time.Time `json:"since"`
	Frames uint64    `json:"frames"`
}

// Hub tracks active viewers.
type Hub struct {
	mu      sync.Mutex
	viewers map[uuid.UUID]*Viewer
	now     func() time.Time
}

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{viewers: make(map[uuid.UUID]*Viewer), now: time.Now}
}

// Join registers a viewer. Call the returned function when it disconnects.
func (h *Hub) Join(remote, kind string) (*Viewer, func()) {
	v := &Viewer{ID: uuid.New(), Remote: remote, Kind: kind, Since: h.now()}
	h.mu.Lock()
	h.viewers[v.ID] = v
	h.mu.Unlock()

	var once sync.Once
	return v, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.viewers, v.ID)
			h.mu.Unlock()
		})
	}
}

// Count returns the number of connected viewers.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.viewers)
}

// Snapshot lists connected viewers, oldest first.
func (h *Hub) Snapshot() []ViewerInfo {
	h.mu.Lock()
	out := make([]ViewerInfo, 0, len(h.viewers))
	for _, v := range h.viewers {
		out = append(out, ViewerInfo{
			ID:     v.ID.String(),
			Remote: v.Remote,
			Kind:   v.Kind,
			Since:  v.Since,
			Frames: v.Frames(),
		})
	}
	h.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Since.Equal(out[j].Since) {
			return out[i].ID < out[j].ID
		}
		return out[i].Since.Before(out[j].Since)
	})
	return out
}
