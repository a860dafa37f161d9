package conversation

import (
	"errors"
	"sort"
	"sync"

	"github.com/google/uuid"

	"ragchat/internal/metrics"
)

// ErrSessionNotFound is returned for unknown session ids.
var ErrSessionNotFound = errors.New("session not found")

// Registry holds the open sessions of a process.
type Registry struct {
	answerer Answerer

	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewRegistry(answerer Answerer) *Registry {
	return &Registry{answerer: answerer, sessions: make(map[string]*Session)}
}

// Create opens a new session with a random id.
func (r *Registry) Create() *Session {
	s := NewSession(uuid.NewString(), r.answerer)
	r.mu.Lock()
	r.sessions[s.ID] = s
	r.mu.Unlock()
	metrics.ActiveSessions.Inc()
	return s
}

func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// List returns the open sessions, oldest first.
func (r *Registry) List() []*Session {
	r.mu.RLock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Delete tears a session down. A turn already running completes, but its
// session is no longer reachable.
func (r *Registry) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; !ok {
		return ErrSessionNotFound
	}
	delete(r.sessions, id)
	metrics.ActiveSessions.Dec()
	return nil
}
