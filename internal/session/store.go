package session

import (
	"context"
	"sync"

	"github.com/kombuchalyzer/kbclient/pkg/kbsdk"
)

// UserSource probes the service for the current user. Implemented by
// *kbsdk.Client; the probe never fails, it degrades to nil.
type UserSource interface {
	CurrentUser(ctx context.Context) *kbsdk.User
}

// Store is the single-slot cache for the current session's user. It is the
// only mutable shared state in the client: every writer (login success,
// TOTP success, logout, TOTP enable/disable, explicit refresh) funnels
// through it, and no other component mutates identity directly.
//
// The cached value is replaced wholesale, never field-patched.
type Store struct {
	src UserSource

	mu       sync.Mutex
	user     *kbsdk.User
	loaded   bool
	gen      uint64
	inflight chan struct{}
}

// NewStore creates an empty store. The slot is unresolved (not loaded)
// until the first Refresh or Set.
func NewStore(src UserSource) *Store {
	return &Store{src: src}
}

// Read returns the cached user and whether the slot has ever been resolved.
// It never triggers network activity. The user is nil for an anonymous
// session.
func (s *Store) Read() (*kbsdk.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user, s.loaded
}

// Set overrides the slot directly, used after login and logout to avoid a
// redundant round trip. It also advances the generation so that any
// refresh already in flight cannot overwrite this value when its response
// lands: a logout must not be resurrected by a slow /me response.
func (s *Store) Set(user *kbsdk.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = user
	s.loaded = true
	s.gen++
}

// Refresh drops trust in the cached value and re-probes the service,
// replacing the slot atomically on completion. Concurrent calls coalesce:
// only one upstream probe is in flight at a time, and its result is
// broadcast to every waiter. The previous value stays readable while the
// probe runs.
//
// The returned user is the slot's value after the probe settles, which may
// differ from the probe's own response if a Set won the race.
func (s *Store) Refresh(ctx context.Context) *kbsdk.User {
	s.mu.Lock()
	if ch := s.inflight; ch != nil {
		// Another refresh is already running; wait for its broadcast.
		s.mu.Unlock()
		<-ch
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.user
	}

	ch := make(chan struct{})
	s.inflight = ch
	gen := s.gen
	s.mu.Unlock()

	user := s.src.CurrentUser(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen == gen {
		s.user = user
		s.loaded = true
	}
	s.inflight = nil
	close(ch)
	return s.user
}
