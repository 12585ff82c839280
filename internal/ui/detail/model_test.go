package detail

import (
	"slices"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/nhle/mailbox/internal/feed"
	"github.com/nhle/mailbox/internal/keys"
	"github.com/nhle/mailbox/internal/model"
)

func thread() feed.Item {
	return feed.Item{
		Kind: feed.KindThread,
		Thread: model.Thread{
			ThreadID: "t1",
			Subject:  "Plans",
			Messages: []model.Message{
				{ID: "m2", Sender: "Bob", Body: "<p>Sure &amp; thanks</p>", BodyType: model.BodyHTML, InternalDate: 2000},
				{
					ID:           "m1",
					Sender:       "Alice",
					SenderEmail:  "alice@example.com",
					To:           []string{"bob@example.com"},
					Body:         "Dinner at eight?",
					InternalDate: 1000,
					Attachments:  []model.Attachment{{Filename: "menu.pdf", Size: 2048}},
				},
			},
		},
	}
}

func TestRendersThreadOldestFirst(t *testing.T) {
	m := New(keys.DefaultKeyMap(), 80, 40)
	m.SetItem(thread(), "")

	out := m.renderContent()
	first := strings.Index(out, "Dinner at eight?")
	second := strings.Index(out, "Sure & thanks")
	if first < 0 || second < 0 || first > second {
		t.Fatalf("bodies out of order:\n%s", out)
	}
	for _, want := range []string{"Plans", "2 messages", "Alice <alice@example.com>", "bob@example.com", "menu.pdf"} {
		if !strings.Contains(out, want) {
			t.Errorf("content missing %q", want)
		}
	}
	if m.offsets["m1"] >= m.offsets["m2"] {
		t.Fatalf("offsets = %v", m.offsets)
	}
}

func TestBackKey(t *testing.T) {
	m := New(keys.DefaultKeyMap(), 80, 40)
	m.SetItem(thread(), "m1")

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	if cmd == nil {
		t.Fatal("esc should produce a command")
	}
	if _, ok := cmd().(BackMsg); !ok {
		t.Fatal("esc should go back")
	}
}

func TestEmptyView(t *testing.T) {
	m := New(keys.DefaultKeyMap(), 80, 40)
	if !strings.Contains(m.View(), "No message selected") {
		t.Fatal("empty detail should say so")
	}
	m.SetItem(thread(), "")
	m.Clear()
	if _, ok := m.Item(); ok {
		t.Fatal("Clear should drop the item")
	}
}

func TestThreadSummaryLeavesOutUser(t *testing.T) {
	th := thread().Thread
	th.Messages = append(th.Messages, model.Message{
		ID:           "m3",
		SenderEmail:  "carol@example.com",
		InternalDate: 1500,
		Attachments:  []model.Attachment{{Filename: "map.png", Size: 1000}},
	})

	s := summarize(th, &model.UserIdentity{Email: "bob@example.com", Name: "Bob"})
	if s.Messages != 3 {
		t.Fatalf("Messages = %d, want 3", s.Messages)
	}
	if want := []string{"alice@example.com", "carol@example.com"}; !slices.Equal(s.Participants, want) {
		t.Fatalf("Participants = %v, want %v", s.Participants, want)
	}
	if !s.Oldest.Equal(time.UnixMilli(1000)) || !s.Newest.Equal(time.UnixMilli(2000)) {
		t.Fatalf("range = %v .. %v", s.Oldest, s.Newest)
	}
	if s.Attachments != 2 || s.AttachBytes != 3048 {
		t.Fatalf("attachments = %d (%d bytes)", s.Attachments, s.AttachBytes)
	}

	out := strings.Join(s.render(80), "\n")
	for _, want := range []string{"3 messages", "2 participants", "With: alice@example.com, carol@example.com", "Active: ", "2 attachments (3.0 kB)"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
}

func TestDetailShowsSummaryForUser(t *testing.T) {
	m := New(keys.DefaultKeyMap(), 80, 40)
	m.SetItem(thread(), "")
	if !strings.Contains(m.renderContent(), "2 participants") {
		t.Fatal("without a user every participant is listed")
	}

	m.SetUser(&model.UserIdentity{Email: "bob@example.com", Name: "Bob"})
	out := m.renderContent()
	if !strings.Contains(out, "1 participant") || !strings.Contains(out, "With: alice@example.com") {
		t.Fatalf("summary should leave out the user:\n%s", out)
	}
}
