package feed

import (
	"slices"
	"testing"

	"github.com/nhle/mailbox/internal/ingest"
	"github.com/nhle/mailbox/internal/model"
)

func ids(seq func(func(Item) bool)) []string {
	var out []string
	for it := range seq {
		out = append(out, it.ID())
	}
	return out
}

func TestProjectMixedBundle(t *testing.T) {
	raw := []byte(`{
		"threads": [{"threadId": "t1", "messages": [{"id": "m1", "date": 100}], "latestMessage": {"id": "m1", "date": 100}}],
		"individual_emails": [{"id": "e1", "internalDate": "200"}],
		"total_count": 2
	}`)

	p, err := ingest.Decode(raw)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	res := ingest.Normalize(p)

	var got []Item
	for it := range Project(res.Snapshot) {
		got = append(got, it)
	}
	if len(got) != 2 {
		t.Fatalf("got %d items, want 2", len(got))
	}
	if got[0].Kind != KindEmail || got[0].ID() != "e1" || got[0].Key != 200 {
		t.Errorf("first item = %+v, want e1 with key 200", got[0])
	}
	if got[1].Kind != KindThread || got[1].ID() != "t1" || got[1].Key != 100 {
		t.Errorf("second item = %+v, want t1 with key 100", got[1])
	}
}

func TestProjectIsMonotonic(t *testing.T) {
	s := model.Snapshot{
		Threads: []model.Thread{
			{ThreadID: "a", Messages: []model.Message{{ID: "a1", InternalDate: 50}}},
			{ThreadID: "b", Messages: []model.Message{{ID: "b1", Date: "Mon, 02 Jan 2006 15:04:05 +0000"}}},
			{ThreadID: "c", Messages: []model.Message{{ID: "c1", InternalDate: 900}}},
		},
		IndividualEmails: []model.Message{
			{ID: "x", InternalDate: 70},
			{ID: "y"},
			{ID: "z", Date: "not a date"},
			{ID: "w", InternalDate: 900},
		},
	}

	var prev *Item
	for it := range Project(s) {
		if prev != nil && prev.Key < it.Key {
			t.Fatalf("order violated: %s(%d) before %s(%d)", prev.ID(), prev.Key, it.ID(), it.Key)
		}
		cur := it
		prev = &cur
	}
}

func TestProjectStableOnTies(t *testing.T) {
	s := model.Snapshot{
		Threads: []model.Thread{
			{ThreadID: "t1", Messages: []model.Message{{ID: "m1", InternalDate: 10}}},
			{ThreadID: "t2", Messages: []model.Message{{ID: "m2", InternalDate: 10}}},
		},
		IndividualEmails: []model.Message{
			{ID: "e1", InternalDate: 10},
			{ID: "e2"},
			{ID: "e3"},
		},
	}

	want := []string{"t1", "t2", "e1", "e2", "e3"}
	for range 3 {
		if got := ids(Project(s)); !slices.Equal(got, want) {
			t.Fatalf("Project() = %v, want %v", got, want)
		}
	}
}

func TestProjectIsRestartable(t *testing.T) {
	s := model.Snapshot{IndividualEmails: []model.Message{{ID: "a", InternalDate: 2}, {ID: "b", InternalDate: 1}}}
	seq := Project(s)

	for it := range seq {
		if it.ID() != "a" {
			t.Fatalf("first = %s", it.ID())
		}
		break
	}
	if got := ids(seq); !slices.Equal(got, []string{"a", "b"}) {
		t.Fatalf("second pass = %v", got)
	}
}

func TestFilter(t *testing.T) {
	s := model.Snapshot{
		Threads:          []model.Thread{{ThreadID: "t", Messages: []model.Message{{ID: "m", InternalDate: 3}}}},
		IndividualEmails: []model.Message{{ID: "e", InternalDate: 5}},
	}
	onlyThreads := Filter(Project(s), func(it Item) bool { return it.Kind == KindThread })
	if got := ids(onlyThreads); !slices.Equal(got, []string{"t"}) {
		t.Fatalf("Filter() = %v", got)
	}
}

func TestItemAccessors(t *testing.T) {
	th := Item{Kind: KindThread, Thread: model.Thread{ThreadID: "t", Subject: "S", Messages: []model.Message{{ID: "m"}}}}
	if th.Subject() != "S" || th.Latest().ID != "m" || len(th.Messages()) != 1 {
		t.Fatalf("thread accessors wrong: %+v", th)
	}
	em := Item{Kind: KindEmail, Email: model.Message{ID: "e", Subject: "E"}}
	if em.Subject() != "E" || em.Latest().ID != "e" || len(em.Messages()) != 1 {
		t.Fatalf("email accessors wrong: %+v", em)
	}
}
