// Package mailbox owns the authoritative mailbox snapshot. All mutations go
// through one Session so results from a cancelled or logged-out generation
// can never overwrite newer state.
package mailbox

import (
	"context"
	"errors"
	"iter"
	gosync "sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/nhle/mailbox/internal/expansion"
	"github.com/nhle/mailbox/internal/feed"
	"github.com/nhle/mailbox/internal/model"
	"github.com/nhle/mailbox/internal/reconcile"
)

// ErrStaleResult is returned when a result belongs to an older generation.
// Callers drop it silently.
var ErrStaleResult = errors.New("stale result discarded")

// Generation identifies a session epoch. It increases on logout and
// teardown.
type Generation uint64

// Persister is the durable side of the session.
type Persister interface {
	SaveSnapshot(ctx context.Context, snap model.Snapshot) (bool, error)
	LoadSnapshot(ctx context.Context) (model.Snapshot, bool, error)
	LoadExpansion(ctx context.Context) (map[string]bool, error)
	ClearAll(ctx context.Context) error
}

// Change summarizes an applied mutation.
type Change struct {
	Before int
	After  int
	// NewItems lists feed ids that are new or gained messages. It is empty
	// when the previous snapshot was empty.
	NewItems []string
}

// Session is the single writer of the mailbox snapshot. Readers never block
// and always observe a complete snapshot.
type Session struct {
	mu        gosync.Mutex
	snap      atomic.Pointer[model.Snapshot]
	user      atomic.Pointer[model.UserIdentity]
	gen       atomic.Uint64
	persist   Persister
	expansion *expansion.Store
	logger    zerolog.Logger
}

// New returns a Session holding an empty snapshot.
func New(p Persister, exp *expansion.Store, logger zerolog.Logger) *Session {
	s := &Session{
		persist:   p,
		expansion: exp,
		logger:    logger.With().Str("component", "mailbox").Logger(),
	}
	s.snap.Store(&model.Snapshot{})
	return s
}

// Generation returns the current generation. Capture it before starting an
// operation whose result will be applied later.
func (s *Session) Generation() Generation {
	return Generation(s.gen.Load())
}

// Snapshot returns the current snapshot.
func (s *Session) Snapshot() model.Snapshot {
	return *s.snap.Load()
}

// Feed projects the current snapshot.
func (s *Session) Feed() iter.Seq[feed.Item] {
	return feed.Project(s.Snapshot())
}

// Expansion returns the thread expansion store.
func (s *Session) Expansion() *expansion.Store {
	return s.expansion
}

// User returns the authenticated user, or nil.
func (s *Session) User() *model.UserIdentity {
	return s.user.Load()
}

// SetUser records the authenticated user fetched in generation gen.
func (s *Session) SetUser(gen Generation, u *model.UserIdentity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.Generation() {
		return ErrStaleResult
	}
	s.user.Store(u)
	return nil
}

// Hydrate restores the persisted snapshot and expansion map. A snapshot
// already installed by a fetch is never replaced. Storage errors are logged
// and the session continues in memory. It reports whether a snapshot was
// restored.
func (s *Session) Hydrate(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.expansion != nil {
		state, err := s.persist.LoadExpansion(ctx)
		if err != nil {
			s.logger.Warn().Err(err).Msg("could not restore expansion state")
		}
		s.expansion.Load(state)
	}

	if !s.Snapshot().IsEmpty() {
		return false
	}

	snap, ok, err := s.persist.LoadSnapshot(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("could not restore snapshot")
		return false
	}
	if !ok {
		return false
	}

	s.snap.Store(&snap)
	s.logger.Info().Int("items", snap.TotalCount()).Msg("restored cached mailbox")
	return true
}

// Replace installs a full-fetch snapshot produced in generation gen.
func (s *Session) Replace(ctx context.Context, gen Generation, snap model.Snapshot) (Change, error) {
	return s.apply(ctx, gen, func(model.Snapshot) model.Snapshot { return snap })
}

// Merge reconciles delta into the current snapshot if gen is current.
func (s *Session) Merge(ctx context.Context, gen Generation, delta model.Snapshot) (Change, error) {
	return s.apply(ctx, gen, func(cur model.Snapshot) model.Snapshot {
		return reconcile.Merge(cur, delta)
	})
}

func (s *Session) apply(
	ctx context.Context,
	gen Generation,
	next func(model.Snapshot) model.Snapshot,
) (Change, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.Generation() {
		s.logger.Debug().
			Uint64("result_gen", uint64(gen)).
			Uint64("current_gen", uint64(s.Generation())).
			Msg("discarding stale result")
		return Change{}, ErrStaleResult
	}

	before := s.Snapshot()
	after := next(before)
	s.snap.Store(&after)

	change := Change{
		Before:   before.TotalCount(),
		After:    after.TotalCount(),
		NewItems: newItems(before, after),
	}

	if _, err := s.persist.SaveSnapshot(ctx, after); err != nil {
		s.logger.Warn().Err(err).Msg("persisting snapshot failed; continuing in memory")
	}
	return change, nil
}

// Logout ends the session: outstanding results become stale, the snapshot,
// user and expansion state are cleared, and both persisted keys are
// removed. The in-memory state is cleared even if storage fails.
func (s *Session) Logout(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.gen.Add(1)
	s.snap.Store(&model.Snapshot{})
	s.user.Store(nil)
	if s.expansion != nil {
		s.expansion.Reset()
	}

	if err := s.persist.ClearAll(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("clearing persisted mailbox failed")
		return err
	}
	return nil
}

// Invalidate makes every outstanding result stale without touching state.
// It is called on teardown.
func (s *Session) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen.Add(1)
}

func newItems(before, after model.Snapshot) []string {
	if before.IsEmpty() {
		return nil
	}

	counts := make(map[string]int, before.TotalCount())
	for it := range feed.Project(before) {
		counts[it.ID()] = len(it.Messages())
	}

	var added []string
	for it := range feed.Project(after) {
		if n, ok := counts[it.ID()]; !ok || len(it.Messages()) > n {
			added = append(added, it.ID())
		}
	}
	return added
}
