package conversion

import (
	"errors"
	"sync"

	"github.com/tinoosan/tubeconv/internal/data"
	"github.com/tinoosan/tubeconv/internal/metrics"
)

// ErrTokenInUse is returned when registering a token that is already held.
var ErrTokenInUse = errors.New("token already registered")

// Registry maps conversion tokens to live supervisors. A supervisor is
// reachable from the time it is registered until it deletes itself.
type Registry struct {
	mu    sync.RWMutex
	items map[string]*Supervisor
}

func NewRegistry() *Registry {
	return &Registry{items: make(map[string]*Supervisor)}
}

// Register adds s under its token.
func (r *Registry) Register(s *Supervisor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[s.Token()]; ok {
		return ErrTokenInUse
	}
	r.items[s.Token()] = s
	metrics.ActiveConversions.Set(float64(len(r.items)))
	return nil
}

// Lookup returns the supervisor for token.
func (r *Registry) Lookup(token string) (*Supervisor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.items[token]
	return s, ok
}

// Remove drops token. Unknown tokens are ignored.
func (r *Registry) Remove(token string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[token]; !ok {
		return
	}
	delete(r.items, token)
	metrics.ActiveConversions.Set(float64(len(r.items)))
}

// Replay returns the notification a subscriber arriving now should
// receive: the last one emitted, or "starting" if none was.
func (r *Registry) Replay(token string) (data.Notification, error) {
	s, ok := r.Lookup(token)
	if !ok {
		return data.Notification{}, data.ErrNotFound
	}
	return s.LastNotification(), nil
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items)
}

// Close deletes every registered conversion.
func (r *Registry) Close() {
	r.mu.RLock()
	all := make([]*Supervisor, 0, len(r.items))
	for _, s := range r.items {
		all = append(all, s)
	}
	r.mu.RUnlock()
	for _, s := range all {
		s.Delete()
	}
}
