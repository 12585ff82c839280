package mailtext

import (
	"testing"

	"github.com/nhle/mailbox/internal/model"
)

func TestStripHTML(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"paragraphs", "<p>Hello</p><p>World</p>", "Hello\nWorld"},
		{"entities", "Tom &amp; Jerry &lt;3", "Tom & Jerry <3"},
		{"style dropped", "<style>p{color:red}</style><b>Hi</b>", "Hi"},
		{"breaks", "a<br>b<br />c", "a\nb\nc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StripHTML(tt.in); got != tt.want {
				t.Errorf("StripHTML(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestPlain(t *testing.T) {
	html := model.Message{Body: "<div>Hi</div>", BodyType: model.BodyHTML}
	if got := Plain(html); got != "Hi" {
		t.Errorf("Plain(html) = %q", got)
	}
	text := model.Message{Body: "  <b>kept</b>\n", BodyType: model.BodyPlain}
	if got := Plain(text); got != "<b>kept</b>" {
		t.Errorf("Plain(text) = %q", got)
	}
}

func TestSnippet(t *testing.T) {
	if got := Snippet("a  b\n\tc", 10); got != "a b c" {
		t.Errorf("Snippet = %q", got)
	}
	if got := Snippet("héllo world", 5); got != "héllo…" {
		t.Errorf("Snippet = %q", got)
	}
}
