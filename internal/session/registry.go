package session

import (
	"context"
	"errors"
	"sort"
	"sync"
)

// ErrDuplicateCall is returned when a call id is already running.
var ErrDuplicateCall = errors.New("call already has an active session")

// Registry tracks live sessions by call id.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	wg       sync.WaitGroup
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// Register adds s and removes it again once it is done.
func (r *Registry) Register(s *Session) error {
	r.mu.Lock()
	if _, exists := r.sessions[s.ID()]; exists {
		r.mu.Unlock()
		return ErrDuplicateCall
	}
	r.sessions[s.ID()] = s
	r.wg.Add(1)
	r.mu.Unlock()

	go func() {
		<-s.Done()
		r.unregister(s)
	}()
	return nil
}

func (r *Registry) unregister(s *Session) {
	r.mu.Lock()
	if r.sessions[s.ID()] == s {
		delete(r.sessions, s.ID())
	}
	r.mu.Unlock()
	r.wg.Done()
}

func (r *Registry) Get(callID string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[callID]
	return s, ok
}

// List returns the live sessions, oldest first.
func (r *Registry) List() []Info {
	r.mu.RLock()
	out := make([]Info, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s.Info())
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].CallID < out[j].CallID
		}
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// CancelAll asks every session to end.
func (r *Registry) CancelAll() {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.sessions {
		s.Cancel()
	}
}

// Wait blocks until every registered session has ended or ctx is done.
func (r *Registry) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
