package sync

import (
	"context"
	"errors"
	"fmt"
	gosync "sync"
	"sync/atomic"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"

	"github.com/nhle/mailbox/internal/feed"
	"github.com/nhle/mailbox/internal/ingest"
	"github.com/nhle/mailbox/internal/mailbox"
	"github.com/nhle/mailbox/internal/model"
	"github.com/nhle/mailbox/internal/reconcile"
	"github.com/nhle/mailbox/internal/source"
	"github.com/nhle/mailbox/internal/store"
)

// PollerState is the lifecycle state of the poller.
type PollerState int

const (
	PollerIdle PollerState = iota
	PollerActive
)

// SyncState represents the state of the most recent refresh.
type SyncState int

const (
	SyncIdle SyncState = iota
	SyncRunning
	SyncError
)

// SyncStatus holds the sync state of the mailbox source.
type SyncStatus struct {
	SourceType source.SourceType
	State      SyncState
	LastSync   time.Time
	Error      error
}

// SyncResultMsg is a tea.Msg sent when a refresh cycle completes.
type SyncResultMsg struct {
	Source source.SourceType
	Manual bool
	Full   bool
	// Skipped is set when the cycle did not run because another one was
	// still outstanding.
	Skipped bool
	// Stale is set when the result was discarded because the session moved
	// on while the request was in flight.
	Stale     bool
	Error     error
	AuthError *AuthErrorMsg
	NewCount  int
	Dropped   int
	Total     int
}

// AuthErrorMsg is a tea.Msg sent when the source returns an authentication error.
type AuthErrorMsg struct {
	SourceType source.SourceType
	Message    string
}

// fetchTimeout is the maximum time allowed for a single fetch operation.
const fetchTimeout = 30 * time.Second

// DefaultInterval is the background poll interval.
const DefaultInterval = 30 * time.Second

// Config configures a Poller.
type Config struct {
	Interval time.Duration
	Mode     model.SyncMode
}

// Poller refreshes the mailbox session in the background and on demand.
// At most one refresh runs at a time; a trigger that arrives while one is
// outstanding is dropped.
type Poller struct {
	session       *mailbox.Session
	fetcher       source.Fetcher
	notifications store.NotificationStore
	logger        zerolog.Logger
	interval      time.Duration
	mode          model.SyncMode

	busy   atomic.Bool
	primed atomic.Bool

	resultCh chan SyncResultMsg
	stopCh   chan struct{}
	ctx      context.Context
	cancel   context.CancelFunc

	mu      gosync.Mutex
	running bool
	status  SyncStatus
}

// New creates a Poller for the given session and fetcher. notifications may
// be nil.
func New(
	session *mailbox.Session,
	fetcher source.Fetcher,
	notifications store.NotificationStore,
	cfg Config,
	logger zerolog.Logger,
) *Poller {
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	mode := cfg.Mode
	if mode != model.SyncModeFull {
		mode = model.SyncModeDelta
	}

	return &Poller{
		session:       session,
		fetcher:       fetcher,
		notifications: notifications,
		logger:        logger.With().Str("component", "poller").Logger(),
		interval:      interval,
		mode:          mode,
		resultCh:      make(chan SyncResultMsg, 16),
		status:        SyncStatus{SourceType: fetcher.Type(), State: SyncIdle},
	}
}

// Start moves the poller to Active and returns a tea.Cmd that waits on
// the result channel. The first cycle runs immediately and is always a
// full fetch.
func (p *Poller) Start() tea.Cmd {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.ctx, p.cancel = context.WithCancel(context.Background())
	p.primed.Store(false)
	ctx, stopCh := p.ctx, p.stopCh
	p.mu.Unlock()

	go p.loop(ctx, stopCh)

	return p.waitForResult()
}

// Stop moves the poller to Idle. In-flight requests are cancelled and any
// result they still produce is discarded by the session.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return
	}

	close(p.stopCh)
	p.cancel()
	p.session.Invalidate()
	p.running = false
}

// State returns the lifecycle state.
func (p *Poller) State() PollerState {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return PollerActive
	}
	return PollerIdle
}

// Refresh returns a tea.Cmd that performs a user-initiated full fetch.
// Unlike background cycles, its errors are reported in the result.
func (p *Poller) Refresh() tea.Cmd {
	return func() tea.Msg {
		return p.runCycle(p.baseContext(), true)
	}
}

// GetStatus returns the current sync status.
func (p *Poller) GetStatus() SyncStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// WaitForNextResult returns a tea.Cmd that waits for the next background
// result. It should be called after processing a SyncResultMsg to continue
// listening.
func (p *Poller) WaitForNextResult() tea.Cmd {
	return p.waitForResult()
}

func (p *Poller) baseContext() context.Context {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ctx == nil {
		return context.Background()
	}
	return p.ctx
}

// loop runs the ticker until stopCh is closed.
func (p *Poller) loop(ctx context.Context, stopCh chan struct{}) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.background(ctx)

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			p.background(ctx)
		}
	}
}

func (p *Poller) background(ctx context.Context) {
	res := p.runCycle(ctx, false)
	if res.Skipped || res.Stale {
		return
	}
	p.sendResult(res)
}

// runCycle performs one refresh. Manual refreshes always fetch the full
// mailbox; background cycles use the configured mode once primed.
func (p *Poller) runCycle(base context.Context, manual bool) SyncResultMsg {
	st := p.fetcher.Type()

	if !p.busy.CompareAndSwap(false, true) {
		p.logger.Debug().Bool("manual", manual).Msg("refresh already in flight; skipping")
		return SyncResultMsg{Source: st, Manual: manual, Skipped: true}
	}
	defer p.busy.Store(false)

	prev := p.GetStatus()
	p.setStatus(SyncRunning, nil)

	gen := p.session.Generation()
	full := manual || !p.primed.Load() || p.mode == model.SyncModeFull

	ctx, cancel := context.WithTimeout(base, fetchTimeout)
	defer cancel()

	var (
		change  mailbox.Change
		dropped int
		err     error
	)
	if full {
		change, dropped, err = p.fetchAll(ctx, gen)
	} else {
		change, dropped, full, err = p.checkNew(ctx, gen)
	}

	if errors.Is(err, mailbox.ErrStaleResult) || (err != nil && base.Err() != nil) {
		p.restoreStatus(prev)
		return SyncResultMsg{Source: st, Manual: manual, Full: full, Stale: true}
	}

	if err != nil {
		p.setStatus(SyncError, err)
		p.logger.Warn().Err(err).Bool("manual", manual).Bool("full", full).Msg("refresh failed")

		msg := SyncResultMsg{Source: st, Manual: manual, Full: full}
		if source.IsAuthError(err) {
			msg.AuthError = &AuthErrorMsg{
				SourceType: st,
				Message: fmt.Sprintf(
					"%s: authentication expired. Press 'a' to sign in again.",
					st,
				),
			}
		}
		if manual {
			msg.Error = err
		}
		return msg
	}

	if full {
		p.primed.Store(true)
	}
	p.notify(ctx, change.NewItems)
	p.setStatus(SyncIdle, nil)

	return SyncResultMsg{
		Source:   st,
		Manual:   manual,
		Full:     full,
		NewCount: len(change.NewItems),
		Dropped:  dropped,
		Total:    p.session.Snapshot().TotalCount(),
	}
}

func (p *Poller) fetchAll(ctx context.Context, gen mailbox.Generation) (mailbox.Change, int, error) {
	payload, err := p.fetcher.FetchAll(ctx)
	if err != nil {
		return mailbox.Change{}, 0, fmt.Errorf("fetching mailbox: %w", err)
	}

	res := ingest.Normalize(payload)
	if w := res.Warning(); w != nil {
		p.logger.Warn().Err(w).Msg("dropped invalid items")
	}

	change, err := p.session.Replace(ctx, gen, res.Snapshot)
	return change, res.Dropped, err
}

// checkNew merges the incremental delta. When the delta regroups mail the
// session already holds, it refetches in full instead and reports full.
func (p *Poller) checkNew(ctx context.Context, gen mailbox.Generation) (mailbox.Change, int, bool, error) {
	payload, err := p.fetcher.CheckNew(ctx)
	if err != nil {
		return mailbox.Change{}, 0, false, fmt.Errorf("checking for new mail: %w", err)
	}

	res := ingest.NormalizeDelta(payload)
	if w := res.Warning(); w != nil {
		p.logger.Warn().Err(w).Msg("dropped invalid items")
	}
	if !res.HasNew {
		if gen != p.session.Generation() {
			return mailbox.Change{}, res.Dropped, false, mailbox.ErrStaleResult
		}
		return mailbox.Change{}, res.Dropped, false, nil
	}

	delta := res.Snapshot()
	if reconcile.Regroups(p.session.Snapshot(), delta) {
		p.logger.Debug().Msg("delta regroups known mail; fetching in full")
		change, dropped, err := p.fetchAll(ctx, gen)
		return change, res.Dropped + dropped, true, err
	}

	change, err := p.session.Merge(ctx, gen, delta)
	return change, res.Dropped, false, err
}

// notify records a notification for every new or updated feed item.
func (p *Poller) notify(ctx context.Context, ids []string) {
	if p.notifications == nil || len(ids) == 0 {
		return
	}

	wanted := make(map[string]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}

	for it := range p.session.Feed() {
		if !wanted[it.ID()] {
			continue
		}
		n := model.Notification{
			ItemID:    it.ID(),
			Message:   notificationText(it),
			CreatedAt: time.Now(),
		}
		if err := p.notifications.CreateNotification(ctx, n); err != nil {
			p.logger.Warn().Err(err).Str("item", it.ID()).Msg("recording notification failed")
		}
	}
}

func notificationText(it feed.Item) string {
	latest := it.Latest()
	from := latest.Sender
	if from == "" {
		from = latest.SenderEmail
	}
	return fmt.Sprintf("New mail from %s: %s", from, it.Subject())
}

// setStatus updates the sync status.
func (p *Poller) setStatus(state SyncState, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.status.State = state
	p.status.Error = err
	if state == SyncIdle && err == nil {
		p.status.LastSync = time.Now()
	}
}

// restoreStatus puts back the status from before a discarded cycle, so
// LastSync only moves when a result was applied.
func (p *Poller) restoreStatus(prev SyncStatus) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.status = prev
}

// sendResult sends a SyncResultMsg on the result channel without blocking.
func (p *Poller) sendResult(msg SyncResultMsg) {
	select {
	case p.resultCh <- msg:
	default:
		// Drop if channel is full to avoid blocking the poller
	}
}

// waitForResult returns a tea.Cmd that waits for the next result from
// the result channel. The command returns nil once the poller is stopped.
func (p *Poller) waitForResult() tea.Cmd {
	p.mu.Lock()
	running, stopCh := p.running, p.stopCh
	p.mu.Unlock()
	if !running {
		return nil
	}

	return func() tea.Msg {
		select {
		case result := <-p.resultCh:
			return result
		case <-stopCh:
			return nil
		}
	}
}
