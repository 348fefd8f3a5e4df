package room

import (
	"log/slog"
	"sync"

	"classroom-stream/origin/internal/domain"
)

// Registry lazily creates one Hub per stream key. A Hub is removed only by
// Destroy, which the orchestrator calls once a stream's cleanup grace period
// elapses; Destroy does not check whether participants are still joined,
// and nothing removes a room when its last participant leaves.
type Registry struct {
	mu            sync.Mutex
	rooms         map[domain.StreamKey]*Hub
	chatRetention int
}

// Option configures a Registry at construction time.
type Option func(*Registry)

// WithChatRetention caps how many chat messages each room created by this
// registry keeps in memory. Omit to use the Hub package default.
func WithChatRetention(n int) Option {
	return func(r *Registry) { r.chatRetention = n }
}

func NewRegistry(opts ...Option) *Registry {
	r := &Registry{rooms: make(map[domain.StreamKey]*Hub)}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// GetOrCreate returns the Hub for key, creating it with policy if absent.
// policy is only used on creation; an existing Hub keeps its own policy
// until SetCodecPolicy is called.
func (r *Registry) GetOrCreate(key domain.StreamKey, policy domain.CodecPolicy) *Hub {
	r.mu.Lock()
	defer r.mu.Unlock()

	if h, ok := r.rooms[key]; ok {
		return h
	}
	h := NewHub(key, policy)
	h.SetChatRetention(r.chatRetention)
	r.rooms[key] = h
	slog.Info("room created", "stream_key", key)
	return h
}

// Get returns the Hub for key, if one exists.
func (r *Registry) Get(key domain.StreamKey) (*Hub, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.rooms[key]
	return h, ok
}

// Destroy removes the Hub for key from the registry. Chat and poll state
// for the room is discarded, as spec'd: rooms are not durable.
func (r *Registry) Destroy(key domain.StreamKey) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rooms[key]; ok {
		delete(r.rooms, key)
		slog.Info("room destroyed", "stream_key", key)
	}
}

// Count returns the number of active rooms, for status reporting.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms)
}
