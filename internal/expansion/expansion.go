// Package expansion tracks which threads the user has expanded.
package expansion

import (
	"context"
	"maps"
	gosync "sync"

	"github.com/rs/zerolog"
)

// Saver persists the full expansion map.
type Saver interface {
	SaveExpansion(ctx context.Context, state map[string]bool) error
}

// Store maps threadId to its expanded flag. Every mutation writes the whole
// map through the Saver; a failed write is logged and the in-memory state
// is kept. Entries for threads that are no longer in the mailbox are never
// pruned, so a thread that reappears keeps its state.
type Store struct {
	mu     gosync.RWMutex
	state  map[string]bool
	saver  Saver
	logger zerolog.Logger
}

// New returns an empty Store.
func New(saver Saver, logger zerolog.Logger) *Store {
	return &Store{
		state:  make(map[string]bool),
		saver:  saver,
		logger: logger.With().Str("component", "expansion").Logger(),
	}
}

// Load replaces the in-memory state without writing it back.
func (s *Store) Load(state map[string]bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = maps.Clone(state)
	if s.state == nil {
		s.state = make(map[string]bool)
	}
}

// Get reports whether threadID is expanded. Unknown threads are collapsed.
func (s *Store) Get(threadID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state[threadID]
}

// Toggle flips threadID and returns the new state.
func (s *Store) Toggle(ctx context.Context, threadID string) bool {
	s.mu.Lock()
	next := !s.state[threadID]
	s.state[threadID] = next
	snapshot := maps.Clone(s.state)
	s.mu.Unlock()

	s.save(ctx, snapshot)
	return next
}

// Set stores an explicit state for threadID.
func (s *Store) Set(ctx context.Context, threadID string, expanded bool) {
	s.mu.Lock()
	s.state[threadID] = expanded
	snapshot := maps.Clone(s.state)
	s.mu.Unlock()

	s.save(ctx, snapshot)
}

// Snapshot returns a copy of the current map.
func (s *Store) Snapshot() map[string]bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.state)
}

// Reset forgets every entry in memory. Clearing the persisted copy is the
// caller's job.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = make(map[string]bool)
}

func (s *Store) save(ctx context.Context, state map[string]bool) {
	if s.saver == nil {
		return
	}
	if err := s.saver.SaveExpansion(ctx, state); err != nil {
		s.logger.Warn().Err(err).Msg("persisting expansion state failed; keeping it in memory")
	}
}
