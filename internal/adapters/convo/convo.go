// Package convo keeps short-lived conversational state per phone address so
// a player's next reply can be routed to the decision it answers.
package convo

import (
	"context"
	"errors"
	"sync"
	"time"
)

// State names.
const (
	AwaitingBroaden = "awaiting_broaden"
)

const defaultTTL = 24 * time.Hour

// ErrNoState is returned when an address has no live state.
var ErrNoState = errors.New("no conversational state")

// State is what an address is currently waiting to answer.
type State struct {
	Name    string    `json:"name"`
	MatchID string    `json:"match_id,omitempty"`
	SetAt   time.Time `json:"set_at"`
}

// Store is a TTL key-value store keyed by address.
type Store interface {
	Set(ctx context.Context, address string, st State) error
	// Get returns ErrNoState when nothing is stored or the entry expired.
	Get(ctx context.Context, address string) (State, error)
	Clear(ctx context.Context, address string) error
}

// Option configures a MemoryStore.
type Option func(*MemoryStore)

// WithTTL sets how long state lives.
func WithTTL(ttl time.Duration) Option {
	return func(s *MemoryStore) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithClock injects the time source.
func WithClock(now func() time.Time) Option {
	return func(s *MemoryStore) {
		if now != nil {
			s.now = now
		}
	}
}

type entry struct {
	state   State
	expires time.Time
}

// MemoryStore keeps state in process memory. Expired entries are dropped
// lazily on read.
type MemoryStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]entry
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore(opts ...Option) *MemoryStore {
	s := &MemoryStore{ttl: defaultTTL, now: time.Now, entries: make(map[string]entry)}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStore) Set(ctx context.Context, address string, st State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if st.SetAt.IsZero() {
		st.SetAt = now
	}
	s.entries[address] = entry{state: st, expires: now.Add(s.ttl)}
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, address string) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[address]
	if !ok {
		return State{}, ErrNoState
	}
	if !s.now().Before(e.expires) {
		delete(s.entries, address)
		return State{}, ErrNoState
	}
	return e.state, nil
}

func (s *MemoryStore) Clear(ctx context.Context, address string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, address)
	return nil
}
