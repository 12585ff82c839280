package gmail

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	gmailv1 "google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/nhle/mailbox/internal/ingest"
	"github.com/nhle/mailbox/internal/model"
	"github.com/nhle/mailbox/internal/source"
	"github.com/nhle/mailbox/internal/store"
)

const user = "me"

// HistoryKey is the KV key holding the last seen mailbox history id.
func HistoryKey(accountID string) string { return "gmail_history_id:" + accountID }

// Adapter implements source.Fetcher on the Gmail API. Deltas come from the
// history feed since the last stored history id.
type Adapter struct {
	svc        *gmailv1.Service
	kv         store.KV
	tokens     TokenStore
	tokenKey   string
	historyKey string
	maxResults int64
	logger     zerolog.Logger
}

// Options configures an Adapter.
type Options struct {
	AccountID  string
	TokenKey   string
	MaxResults int
}

// NewAdapter builds a Gmail adapter from a stored OAuth token.
func NewAdapter(
	ctx context.Context,
	cfg *oauth2.Config,
	tokens TokenStore,
	kv store.KV,
	opts Options,
	logger zerolog.Logger,
) (*Adapter, error) {
	tok, err := loadToken(tokens, opts.TokenKey)
	if err != nil {
		return nil, &source.AuthError{
			SourceType: source.SourceTypeGmail,
			Message:    fmt.Sprintf("no stored token: %v", err),
		}
	}

	ts := &persistingSource{
		base:  cfg.TokenSource(ctx, tok),
		store: tokens,
		key:   opts.TokenKey,
		last:  tok.AccessToken,
	}
	svc, err := gmailv1.NewService(ctx, option.WithTokenSource(oauth2.ReuseTokenSource(tok, ts)))
	if err != nil {
		return nil, fmt.Errorf("create gmail service: %w", err)
	}

	return newAdapter(svc, tokens, kv, opts, logger), nil
}

func newAdapter(
	svc *gmailv1.Service,
	tokens TokenStore,
	kv store.KV,
	opts Options,
	logger zerolog.Logger,
) *Adapter {
	limit := int64(opts.MaxResults)
	if limit <= 0 {
		limit = 50
	}
	return &Adapter{
		svc:        svc,
		kv:         kv,
		tokens:     tokens,
		tokenKey:   opts.TokenKey,
		historyKey: HistoryKey(opts.AccountID),
		maxResults: limit,
		logger:     logger.With().Str("component", "gmail").Logger(),
	}
}

// Type returns the source type identifier for Gmail.
func (a *Adapter) Type() source.SourceType {
	return source.SourceTypeGmail
}

// FetchAll lists the newest INBOX threads and loads each of them. The
// current history id is recorded as the start of the next delta.
func (a *Adapter) FetchAll(ctx context.Context) (ingest.Payload, error) {
	profile, err := a.svc.Users.GetProfile(user).Context(ctx).Do()
	if err != nil {
		return ingest.Payload{}, mapError(err)
	}

	resp, err := a.svc.Users.Threads.List(user).
		LabelIds(inboxLabel).
		MaxResults(a.maxResults).
		Context(ctx).
		Do()
	if err != nil {
		return ingest.Payload{}, mapError(err)
	}

	ids := make([]string, 0, len(resp.Threads))
	for _, t := range resp.Threads {
		ids = append(ids, t.Id)
	}
	threads, err := a.getThreads(ctx, ids)
	if err != nil {
		return ingest.Payload{}, err
	}

	a.saveHistoryID(ctx, profile.HistoryId)
	return bundleFromThreads(threads), nil
}

// CheckNew reads the history feed for INBOX additions and reloads every
// thread that gained a message. Threads are split the same way FetchAll
// splits them.
func (a *Adapter) CheckNew(ctx context.Context) (ingest.DeltaPayload, error) {
	start, ok := a.historyID(ctx)
	if !ok {
		profile, err := a.svc.Users.GetProfile(user).Context(ctx).Do()
		if err != nil {
			return ingest.DeltaPayload{}, mapError(err)
		}
		a.saveHistoryID(ctx, profile.HistoryId)
		return ingest.DeltaPayload{}, nil
	}

	call := a.svc.Users.History.List(user).
		StartHistoryId(start).
		HistoryTypes("messageAdded").
		LabelId(inboxLabel)

	var history []*gmailv1.History
	newest := start
	for {
		resp, err := call.Context(ctx).Do()
		if err != nil {
			if isStatus(err, http.StatusNotFound) {
				// The start id is too old; resume from now.
				a.logger.Warn().Uint64("history_id", start).Msg("history id expired")
				_ = a.kv.Remove(ctx, a.historyKey)
				return ingest.DeltaPayload{}, nil
			}
			return ingest.DeltaPayload{}, mapError(err)
		}
		history = append(history, resp.History...)
		if resp.HistoryId > newest {
			newest = resp.HistoryId
		}
		if resp.NextPageToken == "" {
			break
		}
		call = call.PageToken(resp.NextPageToken)
	}

	ids := addedThreadIDs(history)
	threads, err := a.getThreads(ctx, ids)
	if err != nil {
		return ingest.DeltaPayload{}, err
	}

	a.saveHistoryID(ctx, newest)

	return deltaFromThreads(threads), nil
}

// Me returns the mailbox owner.
func (a *Adapter) Me(ctx context.Context) (*model.UserIdentity, error) {
	profile, err := a.svc.Users.GetProfile(user).Context(ctx).Do()
	if err != nil {
		if isStatus(err, http.StatusUnauthorized) {
			return nil, nil
		}
		return nil, mapError(err)
	}
	return &model.UserIdentity{Email: profile.EmailAddress, Name: profile.EmailAddress}, nil
}

// Logout forgets the stored token and history id.
func (a *Adapter) Logout(ctx context.Context) error {
	if err := a.kv.Remove(ctx, a.historyKey); err != nil {
		a.logger.Warn().Err(err).Msg("clearing history id failed")
	}
	if err := a.tokens.Delete(a.tokenKey); err != nil {
		return fmt.Errorf("deleting gmail token: %w", err)
	}
	return nil
}

func (a *Adapter) getThreads(ctx context.Context, ids []string) ([]*gmailv1.Thread, error) {
	threads := make([]*gmailv1.Thread, 0, len(ids))
	for _, id := range ids {
		t, err := a.svc.Users.Threads.Get(user, id).Format("full").Context(ctx).Do()
		if err != nil {
			if isStatus(err, http.StatusNotFound) {
				a.logger.Debug().Str("thread", id).Msg("thread vanished before fetch")
				continue
			}
			return nil, mapError(err)
		}
		threads = append(threads, t)
	}
	return threads, nil
}

func (a *Adapter) historyID(ctx context.Context) (uint64, bool) {
	raw, ok, err := a.kv.Get(ctx, a.historyKey)
	if err != nil || !ok {
		return 0, false
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return id, true
}

func (a *Adapter) saveHistoryID(ctx context.Context, id uint64) {
	if id == 0 {
		return
	}
	if err := a.kv.Set(ctx, a.historyKey, strconv.FormatUint(id, 10)); err != nil {
		a.logger.Warn().Err(err).Msg("saving history id failed")
	}
}

func isStatus(err error, code int) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == code
}

// mapError converts Gmail client errors to source errors.
func mapError(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		if apiErr.Code == http.StatusUnauthorized || apiErr.Code == http.StatusForbidden {
			return &source.AuthError{SourceType: source.SourceTypeGmail, Message: apiErr.Message}
		}
		return &source.ServerError{
			SourceType: source.SourceTypeGmail,
			Status:     apiErr.Code,
			Message:    apiErr.Message,
		}
	}

	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		return &source.AuthError{SourceType: source.SourceTypeGmail, Message: retrieveErr.Error()}
	}

	var urlErr *url.Error
	var netErr net.Error
	if errors.As(err, &urlErr) || errors.As(err, &netErr) {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return &source.TransportError{SourceType: source.SourceTypeGmail, Err: err}
	}
	return err
}
