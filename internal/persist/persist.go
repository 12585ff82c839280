// Package persist saves and restores the mailbox snapshot and the thread
// expansion map under two independent keys of a durable key-value store.
package persist

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/nhle/mailbox/internal/ingest"
	"github.com/nhle/mailbox/internal/model"
	"github.com/nhle/mailbox/internal/store"
)

const (
	// SnapshotKey holds the last known mailbox snapshot.
	SnapshotKey = "email_data"

	// ExpansionKey holds the threadId -> expanded map.
	ExpansionKey = "expanded_threads"
)

// persistedSnapshot is the bundle shape, so a stored snapshot goes back
// through the same normalizer as a network fetch.
type persistedSnapshot struct {
	Threads          []model.Thread  `json:"threads"`
	IndividualEmails []model.Message `json:"individual_emails"`
	TotalCount       int             `json:"total_count"`
}

// Adapter persists mailbox state in a store.KV.
type Adapter struct {
	kv     store.KV
	logger zerolog.Logger
}

// NewAdapter returns an Adapter backed by kv.
func NewAdapter(kv store.KV, logger zerolog.Logger) *Adapter {
	return &Adapter{
		kv:     kv,
		logger: logger.With().Str("component", "persist").Logger(),
	}
}

// SaveSnapshot writes snap unless it is empty. An empty snapshot never
// overwrites a previously saved one; the returned bool reports whether a
// write happened.
func (a *Adapter) SaveSnapshot(ctx context.Context, snap model.Snapshot) (bool, error) {
	if snap.TotalCount() == 0 {
		a.logger.Debug().Msg("skipping save of empty snapshot")
		return false, nil
	}

	data, err := json.Marshal(persistedSnapshot{
		Threads:          snap.Threads,
		IndividualEmails: snap.IndividualEmails,
		TotalCount:       snap.TotalCount(),
	})
	if err != nil {
		return false, fmt.Errorf("encoding snapshot: %w", err)
	}
	if err := a.kv.Set(ctx, SnapshotKey, string(data)); err != nil {
		return false, fmt.Errorf("saving snapshot: %w", err)
	}
	return true, nil
}

// LoadSnapshot returns the saved snapshot, if any. The stored value is
// re-validated; invalid entries are dropped and logged.
func (a *Adapter) LoadSnapshot(ctx context.Context) (model.Snapshot, bool, error) {
	raw, ok, err := a.kv.Get(ctx, SnapshotKey)
	if err != nil {
		return model.Snapshot{}, false, fmt.Errorf("loading snapshot: %w", err)
	}
	if !ok {
		return model.Snapshot{}, false, nil
	}

	payload, err := ingest.Decode([]byte(raw))
	if err != nil {
		return model.Snapshot{}, false, fmt.Errorf("decoding saved snapshot: %w", err)
	}
	res := ingest.Normalize(payload)
	if w := res.Warning(); w != nil {
		a.logger.Warn().Err(w).Msg("saved snapshot had invalid entries")
	}
	return res.Snapshot, true, nil
}

// SaveExpansion always writes the map, including an empty one.
func (a *Adapter) SaveExpansion(ctx context.Context, state map[string]bool) error {
	if state == nil {
		state = map[string]bool{}
	}
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encoding expansion state: %w", err)
	}
	if err := a.kv.Set(ctx, ExpansionKey, string(data)); err != nil {
		return fmt.Errorf("saving expansion state: %w", err)
	}
	return nil
}

// LoadExpansion returns the saved expansion map, or an empty map.
func (a *Adapter) LoadExpansion(ctx context.Context) (map[string]bool, error) {
	state := map[string]bool{}

	raw, ok, err := a.kv.Get(ctx, ExpansionKey)
	if err != nil {
		return state, fmt.Errorf("loading expansion state: %w", err)
	}
	if !ok {
		return state, nil
	}
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		return map[string]bool{}, fmt.Errorf("decoding expansion state: %w", err)
	}
	return state, nil
}

// ClearAll removes both keys. It bypasses the empty-snapshot rule.
func (a *Adapter) ClearAll(ctx context.Context) error {
	var firstErr error
	for _, key := range []string{SnapshotKey, ExpansionKey} {
		if err := a.kv.Remove(ctx, key); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("clearing %s: %w", key, err)
		}
	}
	return firstErr
}
