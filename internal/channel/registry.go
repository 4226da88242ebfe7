package channel

import (
	"log/slog"
	"sort"
	"sync"
)

// Channel is one tracked channel record.
type Channel struct {
	Name       string
	Subscribed bool
}

// Registry tracks channel subscription state. Safe for concurrent use.
type Registry struct {
	logger *slog.Logger

	mu       sync.RWMutex
	channels map[string]*Channel
}

// NewRegistry creates an empty channel registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		logger:   logger,
		channels: make(map[string]*Channel),
	}
}

// Add registers a channel for tracking. Adding an existing name is a
// no-op that preserves its current subscription state.
func (r *Registry) Add(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.channels[name]; exists {
		return
	}
	r.channels[name] = &Channel{Name: name}
	r.logger.Debug("channel tracked", "channel", name)
}

// Remove drops a channel from tracking.
func (r *Registry) Remove(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.channels, name)
}

// Get returns a snapshot of one channel record.
func (r *Registry) Get(name string) (Channel, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ch, ok := r.channels[name]
	if !ok {
		return Channel{}, false
	}
	return *ch, true
}

// All returns a snapshot of every tracked channel, ordered by name.
func (r *Registry) All() []Channel {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Channel, 0, len(r.channels))
	for _, ch := range r.channels {
		out = append(out, *ch)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// MarkSubscribed flips a channel's record to active.
func (r *Registry) MarkSubscribed(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if ch, ok := r.channels[name]; ok {
		ch.Subscribed = true
	}
}

// MarkUnsubscribed flips a channel's record to inactive.
func (r *Registry) MarkUnsubscribed(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if ch, ok := r.channels[name]; ok {
		ch.Subscribed = false
	}
}

// MarkAllUnsubscribed sweeps every tracked record to inactive and
// returns the number of records that were active. Invoked once per
// disconnect so the upper layer knows to resubscribe after reconnect.
func (r *Registry) MarkAllUnsubscribed() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	swept := 0
	for _, ch := range r.channels {
		if ch.Subscribed {
			swept++
		}
		ch.Subscribed = false
	}
	return swept
}

// SubscribedCount returns the number of channels currently active.
func (r *Registry) SubscribedCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, ch := range r.channels {
		if ch.Subscribed {
			n++
		}
	}
	return n
}

// Len returns the number of tracked channels.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.channels)
}
