// Package repository holds in-memory storage for incident sessions.
package repository

import (
	"context"
	"sync"
	"time"

	"github.com/okian/rcagrade/internal/domain/session"
	"github.com/okian/rcagrade/pkg/metrics"
)

// SessionStore is an in-memory session.Store. Sessions idle longer than the
// configured TTL are dropped by a background sweeper.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]session.State

	idleTTL               time.Duration
	metricsUpdateInterval time.Duration
	now                   func() time.Time

	stopOnce sync.Once
	stopChan chan struct{}
}

var _ session.Store = (*SessionStore)(nil)

// NewSessionStore creates a store and starts its background loop, which
// exits when ctx is done or Close is called.
func NewSessionStore(ctx context.Context, opts ...Option) *SessionStore {
	s := &SessionStore{
		sessions:              make(map[string]session.State),
		metricsUpdateInterval: 5 * time.Second,
		now:                   time.Now,
		stopChan:              make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.startMaintenance(ctx)
	return s
}

// Get returns the session for id or session.ErrNotFound.
func (s *SessionStore) Get(_ context.Context, id string) (session.State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.sessions[id]
	if !ok {
		metrics.RecordError("repository", "not_found")
		return session.State{}, session.ErrNotFound
	}
	return st, nil
}

// Update applies fn under the write lock. The state is stored only when fn
// succeeds.
func (s *SessionStore) Update(_ context.Context, id string, fn func(session.State) (session.State, error)) (session.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.sessions[id]
	if !ok {
		st = session.State{IncidentID: id}
	}
	next, err := fn(st)
	if err != nil {
		return session.State{}, err
	}
	next.IncidentID = id
	s.sessions[id] = next
	return next, nil
}

// Count returns the number of sessions held.
func (s *SessionStore) Count(_ context.Context) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Close stops the background loop. It is safe to call more than once.
func (s *SessionStore) Close() error {
	s.stopOnce.Do(func() { close(s.stopChan) })
	return nil
}

func (s *SessionStore) startMaintenance(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(s.metricsUpdateInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopChan:
				return
			case <-ticker.C:
				s.sweep()
				metrics.UpdateSessionsActive(s.Count(ctx))
			}
		}
	}()
}

// sweep drops sessions whose last update is older than the idle TTL.
func (s *SessionStore) sweep() int {
	if s.idleTTL <= 0 {
		return 0
	}
	cutoff := s.now().Add(-s.idleTTL)

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, st := range s.sessions {
		if st.UpdatedAt.Before(cutoff) {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}
