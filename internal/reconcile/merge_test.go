package reconcile

import (
	"reflect"
	"testing"

	"github.com/nhle/mailbox/internal/model"
)

func msg(id, threadID string, ts int64) model.Message {
	return model.Message{ID: id, ThreadID: threadID, InternalDate: ts, Subject: "subject " + id}
}

func thread(id string, msgs ...model.Message) model.Thread {
	sorted := append([]model.Message(nil), msgs...)
	model.SortNewestFirst(sorted)
	return model.Thread{ThreadID: id, Subject: "thread " + id, Messages: sorted}
}

func messageIDs(t model.Thread) []string {
	ids := make([]string, 0, len(t.Messages))
	for _, m := range t.Messages {
		ids = append(ids, m.ID)
	}
	return ids
}

func baseSnapshot() model.Snapshot {
	return model.Snapshot{
		Threads: []model.Thread{
			thread("t1", msg("m1", "t1", 100), msg("m2", "t1", 150)),
			thread("t2", msg("m3", "t2", 120)),
		},
		IndividualEmails: []model.Message{msg("e1", "x1", 200)},
	}
}

func TestMergeIsIdempotent(t *testing.T) {
	s := baseSnapshot()
	deltas := []model.Snapshot{
		{Threads: []model.Thread{thread("t1", msg("m4", "t1", 300))}},
		{Threads: []model.Thread{thread("t9", msg("m9", "t9", 50))}},
		{IndividualEmails: []model.Message{msg("e2", "x2", 10), msg("e1", "x1", 200)}},
		{
			Threads:          []model.Thread{thread("x1", msg("r1", "x1", 400))},
			IndividualEmails: []model.Message{msg("e3", "t2", 500)},
		},
	}

	for i, d := range deltas {
		once := Merge(s, d)
		twice := Merge(once, d)
		if !reflect.DeepEqual(once, twice) {
			t.Errorf("delta %d: merge not idempotent\nonce:  %+v\ntwice: %+v", i, once, twice)
		}
	}
}

func TestMergeKeepsUnionOnOverlap(t *testing.T) {
	s := baseSnapshot()
	// The delta knows only one of t1's two messages plus a new one.
	d := model.Snapshot{Threads: []model.Thread{thread("t1", msg("m2", "t1", 150), msg("m5", "t1", 160))}}

	got := Merge(s, d)
	t1, ok := got.FindThread("t1")
	if !ok {
		t.Fatal("t1 missing after merge")
	}
	want := []string{"m5", "m2", "m1"}
	if !reflect.DeepEqual(messageIDs(t1), want) {
		t.Fatalf("t1 messages = %v, want %v", messageIDs(t1), want)
	}
	if t1.MessageCount() != 3 {
		t.Fatalf("MessageCount() = %d, want 3", t1.MessageCount())
	}
}

func TestMergeDedupByKey(t *testing.T) {
	s := baseSnapshot()

	overlapping := model.Snapshot{Threads: []model.Thread{thread("t2", msg("m3", "t2", 120))}}
	got := Merge(s, overlapping)
	if len(got.Threads) >= len(s.Threads)+len(overlapping.Threads) {
		t.Fatalf("overlap should collapse: got %d threads", len(got.Threads))
	}

	disjoint := model.Snapshot{Threads: []model.Thread{thread("t7", msg("m7", "t7", 1))}}
	got = Merge(s, disjoint)
	if len(got.Threads) != len(s.Threads)+len(disjoint.Threads) {
		t.Fatalf("disjoint merge: got %d threads, want %d", len(got.Threads), len(s.Threads)+1)
	}
}

func TestMergeKnownThreadKeepsTotalCount(t *testing.T) {
	s := baseSnapshot()
	d := model.Snapshot{Threads: []model.Thread{thread("t1", msg("m6", "t1", 999))}}

	got := Merge(s, d)
	if got.TotalCount() != s.TotalCount() {
		t.Fatalf("TotalCount() = %d, want %d", got.TotalCount(), s.TotalCount())
	}
}

func TestMergeNewKeysIncreaseTotalCount(t *testing.T) {
	s := baseSnapshot()
	d := model.Snapshot{
		Threads:          []model.Thread{thread("t1", msg("m6", "t1", 999)), thread("t8", msg("m8", "t8", 5))},
		IndividualEmails: []model.Message{msg("e1", "x1", 200), msg("e5", "x5", 7)},
	}

	got := Merge(s, d)
	if got.TotalCount() != s.TotalCount()+2 {
		t.Fatalf("TotalCount() = %d, want %d", got.TotalCount(), s.TotalCount()+2)
	}
}

func TestMergeEmptyDeltaIsNoOp(t *testing.T) {
	s := baseSnapshot()
	if got := Merge(s, model.Snapshot{}); !reflect.DeepEqual(got, s) {
		t.Fatalf("empty delta changed snapshot: %+v", got)
	}
}

func TestMergeDoesNotMutateInputs(t *testing.T) {
	s := baseSnapshot()
	before := baseSnapshot()
	d := model.Snapshot{
		Threads:          []model.Thread{thread("t1", msg("m0", "t1", 10))},
		IndividualEmails: []model.Message{msg("e9", "x9", 1)},
	}

	_ = Merge(s, d)
	if !reflect.DeepEqual(s, before) {
		t.Fatal("Merge mutated the existing snapshot")
	}
}

func TestMergePreservesInsertionOrder(t *testing.T) {
	s := baseSnapshot()
	d := model.Snapshot{Threads: []model.Thread{thread("t3", msg("a", "t3", 1)), thread("t1", msg("b", "t1", 2))}}

	got := Merge(s, d)
	order := []string{got.Threads[0].ThreadID, got.Threads[1].ThreadID, got.Threads[2].ThreadID}
	if !reflect.DeepEqual(order, []string{"t1", "t2", "t3"}) {
		t.Fatalf("thread order = %v", order)
	}
}

func TestMergeKeepsThreadAndEmailKeysApart(t *testing.T) {
	s := baseSnapshot() // e1 belongs to thread x1
	d := model.Snapshot{Threads: []model.Thread{thread("x1", msg("r1", "x1", 400))}}

	got := Merge(s, d)
	if got.TotalCount() != s.TotalCount()+1 {
		t.Fatalf("TotalCount() = %d, want %d", got.TotalCount(), s.TotalCount()+1)
	}
	if len(got.IndividualEmails) != 1 || got.IndividualEmails[0].ID != "e1" {
		t.Fatalf("emails = %v", got.IndividualEmails)
	}
	x1, ok := got.FindThread("x1")
	if !ok || !reflect.DeepEqual(messageIDs(x1), []string{"r1"}) {
		t.Fatalf("x1 = %+v", x1)
	}
}

func TestMergeEmailForKnownThreadIsNewKey(t *testing.T) {
	s := baseSnapshot()
	d := model.Snapshot{IndividualEmails: []model.Message{msg("e3", "t2", 500)}}

	got := Merge(s, d)
	if got.TotalCount() != s.TotalCount()+1 {
		t.Fatalf("TotalCount() = %d, want %d", got.TotalCount(), s.TotalCount()+1)
	}
	t2, _ := got.FindThread("t2")
	if !reflect.DeepEqual(messageIDs(t2), []string{"m3"}) {
		t.Fatalf("t2 messages = %v", messageIDs(t2))
	}
}

func TestRegroups(t *testing.T) {
	s := baseSnapshot()
	tests := []struct {
		name  string
		delta model.Snapshot
		want  bool
	}{
		{"reply to individual email", model.Snapshot{Threads: []model.Thread{thread("x1", msg("r1", "x1", 400))}}, true},
		{"email in known thread", model.Snapshot{IndividualEmails: []model.Message{msg("e3", "t2", 500)}}, true},
		{"update to known thread", model.Snapshot{Threads: []model.Thread{thread("t1", msg("m6", "t1", 999))}}, false},
		{"unrelated new mail", model.Snapshot{
			Threads:          []model.Thread{thread("t9", msg("m9", "t9", 1))},
			IndividualEmails: []model.Message{msg("e9", "x9", 2)},
		}, false},
		{"empty", model.Snapshot{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Regroups(s, tt.delta); got != tt.want {
				t.Fatalf("Regroups() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMergeThreadSubjectFollowsNewerSide(t *testing.T) {
	a := thread("t", msg("1", "t", 10))
	a.Subject = "old"
	b := thread("t", msg("2", "t", 20))
	b.Subject = "new"

	if got := MergeThread(a, b).Subject; got != "new" {
		t.Fatalf("subject = %q, want new", got)
	}
	if got := MergeThread(b, a).Subject; got != "new" {
		t.Fatalf("subject = %q, want new", got)
	}
}

func TestMergeThreadParticipantsCanonical(t *testing.T) {
	a := model.Thread{ThreadID: "t", Participants: []string{"alice@gmail.com"}}
	b := model.Thread{ThreadID: "t", Participants: []string{"a.lice@gmail.com", "bob@example.com"}}

	got := MergeThread(a, b).Participants
	if !reflect.DeepEqual(got, []string{"alice@gmail.com", "bob@example.com"}) {
		t.Fatalf("participants = %v", got)
	}
}
