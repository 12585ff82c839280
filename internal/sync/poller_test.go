package sync

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"

	"github.com/nhle/mailbox/internal/expansion"
	"github.com/nhle/mailbox/internal/ingest"
	"github.com/nhle/mailbox/internal/mailbox"
	"github.com/nhle/mailbox/internal/model"
	"github.com/nhle/mailbox/internal/persist"
	"github.com/nhle/mailbox/internal/source"
	"github.com/nhle/mailbox/internal/store"
)

type fakeFetcher struct {
	full  ingest.Payload
	delta ingest.DeltaPayload
	err   error

	// entered receives once per call when set; release gates the return.
	entered chan struct{}
	release chan struct{}

	fullCalls  atomic.Int32
	deltaCalls atomic.Int32
}

func (f *fakeFetcher) Type() source.SourceType { return source.SourceTypeBackend }

func (f *fakeFetcher) FetchAll(ctx context.Context) (ingest.Payload, error) {
	f.fullCalls.Add(1)
	if err := f.wait(ctx); err != nil {
		return ingest.Payload{}, err
	}
	return f.full, f.err
}

func (f *fakeFetcher) CheckNew(ctx context.Context) (ingest.DeltaPayload, error) {
	f.deltaCalls.Add(1)
	if err := f.wait(ctx); err != nil {
		return ingest.DeltaPayload{}, err
	}
	return f.delta, f.err
}

func (f *fakeFetcher) Me(context.Context) (*model.UserIdentity, error) { return nil, nil }

func (f *fakeFetcher) wait(ctx context.Context) error {
	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.release == nil {
		return nil
	}
	select {
	case <-f.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func bundle() ingest.Payload {
	return ingest.Payload{
		Kind: ingest.KindBundle,
		Threads: []ingest.RawThread{{
			ThreadID: "t1",
			Subject:  "Lunch",
			Messages: []ingest.RawMessage{
				{ID: "m1", ThreadID: "t1", SenderEmail: "a@example.com", InternalDate: 100},
				{ID: "m2", ThreadID: "t1", SenderEmail: "b@example.com", InternalDate: 200},
			},
		}},
		IndividualEmails: []ingest.RawMessage{
			{ID: "e1", SenderEmail: "c@example.com", InternalDate: 300},
		},
	}
}

func newTestPoller(t *testing.T, f *fakeFetcher, mode model.SyncMode) (*Poller, *mailbox.Session, *store.MemoryStore) {
	t.Helper()
	st := store.NewMemoryStore()
	p := persist.NewAdapter(st, zerolog.Nop())
	session := mailbox.New(p, expansion.New(p, zerolog.Nop()), zerolog.Nop())
	poller := New(session, f, st, Config{Interval: time.Hour, Mode: mode}, zerolog.Nop())
	t.Cleanup(poller.Stop)
	return poller, session, st
}

func result(t *testing.T, msg tea.Msg) SyncResultMsg {
	t.Helper()
	res, ok := msg.(SyncResultMsg)
	if !ok {
		t.Fatalf("msg = %T, want SyncResultMsg", msg)
	}
	return res
}

func TestFirstCycleIsFullThenDelta(t *testing.T) {
	f := &fakeFetcher{
		full: bundle(),
		delta: ingest.DeltaPayload{
			HasNew:    true,
			NewEmails: []ingest.RawMessage{{ID: "e2", SenderEmail: "d@example.com", Subject: "Hi", InternalDate: 500}},
		},
	}
	p, session, st := newTestPoller(t, f, model.SyncModeDelta)
	ctx := context.Background()

	first := p.runCycle(ctx, false)
	if !first.Full || first.Total != 2 || first.Error != nil {
		t.Fatalf("first cycle = %+v", first)
	}

	second := p.runCycle(ctx, false)
	if second.Full || second.Total != 3 || second.NewCount != 1 {
		t.Fatalf("second cycle = %+v", second)
	}
	if f.fullCalls.Load() != 1 || f.deltaCalls.Load() != 1 {
		t.Fatalf("calls: full=%d delta=%d", f.fullCalls.Load(), f.deltaCalls.Load())
	}
	if session.Snapshot().TotalCount() != 3 {
		t.Fatalf("TotalCount() = %d", session.Snapshot().TotalCount())
	}

	notes, err := st.GetUnreadNotifications(ctx)
	if err != nil {
		t.Fatalf("GetUnreadNotifications: %v", err)
	}
	if len(notes) != 1 || notes[0].ItemID != "e2" {
		t.Fatalf("notifications = %+v", notes)
	}
}

func TestDeltaWithoutNewMailLeavesSnapshot(t *testing.T) {
	f := &fakeFetcher{full: bundle(), delta: ingest.DeltaPayload{HasNew: false}}
	p, session, _ := newTestPoller(t, f, model.SyncModeDelta)
	ctx := context.Background()

	p.runCycle(ctx, false)
	before := session.Snapshot()

	res := p.runCycle(ctx, false)
	if res.Error != nil || res.NewCount != 0 || res.Total != 2 {
		t.Fatalf("result = %+v", res)
	}
	if session.Snapshot().TotalCount() != before.TotalCount() {
		t.Fatal("snapshot changed without new mail")
	}
}

func TestFullModeAlwaysRefetches(t *testing.T) {
	f := &fakeFetcher{full: bundle()}
	p, _, _ := newTestPoller(t, f, model.SyncModeFull)

	for range 3 {
		p.runCycle(context.Background(), false)
	}
	if f.fullCalls.Load() != 3 || f.deltaCalls.Load() != 0 {
		t.Fatalf("calls: full=%d delta=%d", f.fullCalls.Load(), f.deltaCalls.Load())
	}
}

func TestOverlappingTriggerIsSkipped(t *testing.T) {
	f := &fakeFetcher{
		full:    bundle(),
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	p, _, _ := newTestPoller(t, f, model.SyncModeDelta)

	done := make(chan tea.Msg, 1)
	go func() { done <- p.Refresh()() }()
	<-f.entered

	overlap := result(t, p.Refresh()())
	if !overlap.Skipped {
		t.Fatalf("overlapping refresh = %+v, want Skipped", overlap)
	}
	if bg := p.runCycle(context.Background(), false); !bg.Skipped {
		t.Fatalf("overlapping tick = %+v, want Skipped", bg)
	}

	close(f.release)
	first := result(t, <-done)
	if first.Skipped || first.Error != nil || first.Total != 2 {
		t.Fatalf("first refresh = %+v", first)
	}
	if f.fullCalls.Load() != 1 {
		t.Fatalf("FetchAll called %d times, want 1", f.fullCalls.Load())
	}
}

func TestLateResultAfterLogoutIsDiscarded(t *testing.T) {
	f := &fakeFetcher{
		full:    bundle(),
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	p, session, _ := newTestPoller(t, f, model.SyncModeDelta)

	done := make(chan tea.Msg, 1)
	go func() { done <- p.Refresh()() }()
	<-f.entered

	if err := session.Logout(context.Background()); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	close(f.release)

	res := result(t, <-done)
	if !res.Stale {
		t.Fatalf("result = %+v, want Stale", res)
	}
	if !session.Snapshot().IsEmpty() {
		t.Fatal("late result mutated the snapshot")
	}
}

func TestBackgroundErrorsAreNotSurfaced(t *testing.T) {
	boom := &source.TransportError{SourceType: source.SourceTypeBackend, Err: errors.New("dial tcp: refused")}
	f := &fakeFetcher{err: boom}
	p, _, _ := newTestPoller(t, f, model.SyncModeDelta)

	bg := p.runCycle(context.Background(), false)
	if bg.Error != nil {
		t.Fatalf("background error surfaced: %v", bg.Error)
	}
	if st := p.GetStatus(); st.State != SyncError || st.Error == nil {
		t.Fatalf("status = %+v, want SyncError", st)
	}

	manual := result(t, p.Refresh()())
	if !source.IsTransportError(manual.Error) {
		t.Fatalf("manual error = %v, want TransportError", manual.Error)
	}
}

func TestAuthErrorIsFlagged(t *testing.T) {
	f := &fakeFetcher{err: &source.AuthError{SourceType: source.SourceTypeBackend, Message: "401"}}
	p, _, _ := newTestPoller(t, f, model.SyncModeDelta)

	res := p.runCycle(context.Background(), false)
	if res.AuthError == nil {
		t.Fatalf("result = %+v, want AuthError", res)
	}
}

func TestStartAndStop(t *testing.T) {
	f := &fakeFetcher{full: bundle()}
	p, session, _ := newTestPoller(t, f, model.SyncModeDelta)

	cmd := p.Start()
	if cmd == nil {
		t.Fatal("Start returned nil")
	}
	if p.State() != PollerActive {
		t.Fatal("poller should be active")
	}
	if again := p.Start(); again != nil {
		t.Fatal("second Start should be a no-op")
	}

	res := result(t, cmd())
	if !res.Full || res.Total != 2 {
		t.Fatalf("initial cycle = %+v", res)
	}

	gen := session.Generation()
	p.Stop()
	if p.State() != PollerIdle {
		t.Fatal("poller should be idle")
	}
	if session.Generation() == gen {
		t.Fatal("Stop should invalidate outstanding results")
	}
}

func TestStopCancelsInFlightFetch(t *testing.T) {
	f := &fakeFetcher{
		full:    bundle(),
		entered: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	p, session, _ := newTestPoller(t, f, model.SyncModeDelta)

	p.Start()
	<-f.entered
	p.Stop()

	// The cycle returns once its context is cancelled; wait for the busy
	// flag to clear.
	deadline := time.Now().Add(5 * time.Second)
	for p.busy.Load() {
		if time.Now().After(deadline) {
			t.Fatal("cycle did not observe cancellation")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if !session.Snapshot().IsEmpty() {
		t.Fatal("cancelled cycle mutated the snapshot")
	}
	if st := p.GetStatus(); st.State == SyncError {
		t.Fatalf("cancellation reported as error: %+v", st)
	}
}

func TestDeltaThatRegroupsMailRefetches(t *testing.T) {
	f := &fakeFetcher{
		full: ingest.Payload{
			Kind: ingest.KindBundle,
			IndividualEmails: []ingest.RawMessage{
				{ID: "e1", ThreadID: "x1", SenderEmail: "c@example.com", Subject: "Plans", InternalDate: 300},
			},
		},
		delta: ingest.DeltaPayload{
			HasNew: true,
			UpdatedThreads: []ingest.RawThread{{
				ThreadID: "x1",
				Messages: []ingest.RawMessage{
					{ID: "e1", ThreadID: "x1", SenderEmail: "c@example.com", InternalDate: 300},
					{ID: "r1", ThreadID: "x1", SenderEmail: "me@example.com", InternalDate: 400},
				},
			}},
		},
	}
	p, session, _ := newTestPoller(t, f, model.SyncModeDelta)
	ctx := context.Background()

	p.runCycle(ctx, false)
	f.full = ingest.Payload{Kind: ingest.KindBundle, Threads: f.delta.UpdatedThreads}

	res := p.runCycle(ctx, false)
	if !res.Full || res.Error != nil || res.Total != 1 {
		t.Fatalf("result = %+v", res)
	}
	if f.fullCalls.Load() != 2 || f.deltaCalls.Load() != 1 {
		t.Fatalf("calls: full=%d delta=%d", f.fullCalls.Load(), f.deltaCalls.Load())
	}

	snap := session.Snapshot()
	if len(snap.IndividualEmails) != 0 || len(snap.Threads) != 1 || snap.Threads[0].MessageCount() != 2 {
		t.Fatalf("snapshot = %+v", snap)
	}
}

func TestDiscardedCycleKeepsLastSync(t *testing.T) {
	f := &fakeFetcher{full: bundle()}
	p, session, _ := newTestPoller(t, f, model.SyncModeDelta)

	p.runCycle(context.Background(), false)
	synced := p.GetStatus().LastSync
	if synced.IsZero() {
		t.Fatal("LastSync should be set after an applied cycle")
	}

	f.entered = make(chan struct{})
	f.release = make(chan struct{})
	done := make(chan tea.Msg, 1)
	go func() { done <- p.Refresh()() }()
	<-f.entered

	if err := session.Logout(context.Background()); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	close(f.release)

	if res := result(t, <-done); !res.Stale {
		t.Fatalf("result = %+v, want Stale", res)
	}
	st := p.GetStatus()
	if !st.LastSync.Equal(synced) || st.State != SyncIdle {
		t.Fatalf("status = %+v, want LastSync %v", st, synced)
	}
}

func TestStopReleasesResultWaiters(t *testing.T) {
	f := &fakeFetcher{full: bundle()}
	p, _, _ := newTestPoller(t, f, model.SyncModeDelta)

	result(t, p.Start()())

	wait := p.WaitForNextResult()
	done := make(chan tea.Msg, 1)
	go func() { done <- wait() }()

	p.Stop()
	select {
	case msg := <-done:
		if msg != nil {
			t.Fatalf("msg = %#v, want nil", msg)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("waiter still blocked after Stop")
	}

	if cmd := p.WaitForNextResult(); cmd != nil {
		t.Fatal("a stopped poller has nothing to wait for")
	}
}
