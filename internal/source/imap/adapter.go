package imap

import (
	"context"
	gosync "sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/nhle/mailbox/internal/ingest"
	"github.com/nhle/mailbox/internal/model"
	"github.com/nhle/mailbox/internal/source"
)

// defaultWindow bounds how far back a full fetch looks.
const defaultWindow = 30 * 24 * time.Hour

// Adapter implements source.Fetcher for an IMAP INBOX. Deltas are
// computed from the highest UID seen so far.
type Adapter struct {
	client   *IMAPClient
	username string
	limit    int
	window   time.Duration
	logger   zerolog.Logger

	mu        gosync.Mutex
	validity  uint32
	highWater uint32
	known     map[string]bool
}

// NewAdapter creates a new IMAP source adapter.
func NewAdapter(
	host, port string,
	username, password string,
	useTLS bool,
	limit int,
	logger zerolog.Logger,
) *Adapter {
	return &Adapter{
		client:   NewIMAPClient(host, port, username, password, useTLS),
		username: username,
		limit:    limit,
		window:   defaultWindow,
		logger:   logger.With().Str("component", "imap").Logger(),
		known:    make(map[string]bool),
	}
}

// Type returns the source type identifier for IMAP.
func (a *Adapter) Type() source.SourceType {
	return source.SourceTypeIMAP
}

// FetchAll reads the newest messages of the INBOX and threads them.
func (a *Adapter) FetchAll(ctx context.Context) (ingest.Payload, error) {
	res, err := a.client.FetchSince(ctx, 0, a.window, a.limit)
	if err != nil {
		return ingest.Payload{}, err
	}

	a.mu.Lock()
	a.validity = res.UIDValidity
	a.highWater = 0
	a.known = make(map[string]bool)
	a.record(res.Messages)
	a.mu.Unlock()

	return bundle(res.Messages), nil
}

// CheckNew reads messages that arrived after the last fetch.
func (a *Adapter) CheckNew(ctx context.Context) (ingest.DeltaPayload, error) {
	a.mu.Lock()
	after := a.highWater
	a.mu.Unlock()

	res, err := a.client.FetchSince(ctx, after, a.window, a.limit)
	if err != nil {
		return ingest.DeltaPayload{}, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.validity != 0 && res.UIDValidity != a.validity {
		// UIDs were renumbered; re-read the window. Message-ID keys keep
		// the merge idempotent.
		a.logger.Warn().
			Uint32("old", a.validity).
			Uint32("new", res.UIDValidity).
			Msg("UIDVALIDITY changed; rescanning")
		res, err = a.client.FetchSince(ctx, 0, a.window, a.limit)
		if err != nil {
			return ingest.DeltaPayload{}, err
		}
		a.highWater = 0
	}
	a.validity = res.UIDValidity

	d := delta(res.Messages, a.known)
	a.record(res.Messages)
	return d, nil
}

// Me returns the account's login as the user identity.
func (a *Adapter) Me(context.Context) (*model.UserIdentity, error) {
	return &model.UserIdentity{Email: a.username, Name: a.username}, nil
}

// record advances the UID high-water mark and remembers thread keys.
// Callers hold a.mu.
func (a *Adapter) record(msgs []ParsedMessage) {
	for _, m := range msgs {
		if m.UID > a.highWater {
			a.highWater = m.UID
		}
		a.known[threadKey(m)] = true
	}
}
