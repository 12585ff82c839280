package filter

import (
	"testing"

	"github.com/rs/zerolog"

	"github.com/nhle/mailbox/internal/feed"
	"github.com/nhle/mailbox/internal/model"
)

func TestClassify(t *testing.T) {
	c := New(model.DefaultFilterConfig(), zerolog.Nop())

	tests := []struct {
		name     string
		msg      model.Message
		wantJob  bool
		wantType RuleType
	}{
		{
			name:     "subject keyword",
			msg:      model.Message{ID: "1", Subject: "Your Interview schedule", SenderEmail: "hr@acme.com"},
			wantJob:  true,
			wantType: RuleKeyword,
		},
		{
			name:     "sender domain",
			msg:      model.Message{ID: "2", Subject: "Weekly digest", SenderEmail: "news@linkedin.com"},
			wantJob:  true,
			wantType: RuleDomain,
		},
		{
			name:     "sender subdomain",
			msg:      model.Message{ID: "3", Subject: "Weekly digest", SenderEmail: "no-reply@mail.greenhouse.io"},
			wantJob:  true,
			wantType: RuleDomain,
		},
		{
			name:    "unrelated",
			msg:     model.Message{ID: "4", Subject: "Dinner tonight", SenderEmail: "friend@example.com"},
			wantJob: false,
		},
		{
			name:    "lookalike domain",
			msg:     model.Message{ID: "5", Subject: "Hello", SenderEmail: "x@notlinkedin.com"},
			wantJob: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job, matches := c.Classify(tt.msg)
			if job != tt.wantJob {
				t.Fatalf("job = %v, want %v (matches %+v)", job, tt.wantJob, matches)
			}
			if !tt.wantJob {
				return
			}
			found := false
			for _, m := range matches {
				if m.Type == tt.wantType {
					found = true
				}
			}
			if !found {
				t.Fatalf("expected a %s match, got %+v", tt.wantType, matches)
			}
		})
	}
}

func TestMinConfidence(t *testing.T) {
	cfg := model.FilterConfig{
		Keywords:          []string{"offer"},
		KeywordConfidence: 0.5,
		MinConfidence:     0.8,
	}
	c := New(cfg, zerolog.Nop())

	job, matches := c.Classify(model.Message{ID: "1", Subject: "Special offer"})
	if job || len(matches) != 1 {
		t.Fatalf("job = %v, matches = %+v; low confidence must not classify", job, matches)
	}
}

func TestInvalidPatternIsSkipped(t *testing.T) {
	cfg := model.FilterConfig{
		Patterns:        []string{"(unclosed", `\bhiring\b`},
		RegexConfidence: 0.85,
		MinConfidence:   0.8,
	}
	c := New(cfg, zerolog.Nop())
	if len(c.Rules()) != 1 {
		t.Fatalf("rules = %d, want 1", len(c.Rules()))
	}
	if !c.IsJob(model.Message{ID: "1", Subject: "We are HIRING"}) {
		t.Fatal("regex rule should match case-insensitively")
	}
}

func TestThreadIsJobWhenAnyMessageIs(t *testing.T) {
	c := New(model.DefaultFilterConfig(), zerolog.Nop())
	th := model.Thread{
		ThreadID: "t1",
		Messages: []model.Message{
			{ID: "a", Subject: "Re: lunch", SenderEmail: "bob@example.com"},
			{ID: "b", Subject: "lunch", SenderEmail: "talent@lever.co"},
		},
	}
	if !c.IsJobItem(feed.Item{Kind: feed.KindThread, Thread: th}) {
		t.Fatal("thread with a job message should be a job thread")
	}

	plain := feed.Item{Kind: feed.KindEmail, Email: model.Message{ID: "c", Subject: "lunch"}}
	if c.IsJobItem(plain) {
		t.Fatal("plain email should not be a job email")
	}
}
