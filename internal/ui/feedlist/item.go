package feedlist

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/x/ansi"

	"github.com/nhle/mailbox/internal/feed"
	"github.com/nhle/mailbox/internal/model"
	"github.com/nhle/mailbox/internal/theme"
)

// Row is one line of the feed list. Top-level rows stand for a feed item;
// child rows are the messages of an expanded thread.
type Row struct {
	Item    feed.Item
	Message model.Message
	Child   bool

	Expanded bool
	Job      bool
	New      bool
	// People is the display list of the other participants of a thread.
	People []string
}

// ID returns the feed item id for a top-level row and the message id for a
// child row.
func (r Row) ID() string {
	if r.Child {
		return r.Message.ID
	}
	return r.Item.ID()
}

// FilterValue returns the string used for fuzzy filtering.
func (r Row) FilterValue() string {
	return r.Message.Subject + " " + r.Message.Sender
}

// Title returns the row subject.
func (r Row) Title() string {
	if r.Child {
		return r.Message.Sender
	}
	return r.Item.Subject()
}

// Description returns a short summary line for the list.
func (r Row) Description() string {
	parts := []string{
		r.Message.Sender,
		relativeTime(r.Message.Timestamp()),
	}
	return strings.Join(parts, " | ")
}

// ItemDelegate implements list.ItemDelegate for rendering feed rows.
type ItemDelegate struct{}

// Height returns the number of lines each item takes.
func (d ItemDelegate) Height() int { return 1 }

// Spacing returns the number of blank lines between items.
func (d ItemDelegate) Spacing() int { return 0 }

// Update handles per-item messages (unused for now).
func (d ItemDelegate) Update(_ tea.Msg, _ *list.Model) tea.Cmd {
	return nil
}

// Render draws a single feed row.
func (d ItemDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	row, ok := item.(Row)
	if !ok {
		return
	}

	isSelected := index == m.Index()
	width := max(m.Width()-4, 10)

	var line string
	if row.Child {
		line = renderChild(row, width-4)
		if isSelected {
			line = theme.SelectedChildStyle.Render(line)
		} else {
			line = theme.ChildItemStyle.Render(line)
		}
	} else {
		line = renderTop(row, width)
		if isSelected {
			line = theme.SelectedItemStyle.Render(line)
		} else {
			line = theme.ListItemStyle.Render(line)
		}
	}

	fmt.Fprint(w, line)
}

// renderTop draws a feed item: marker, sender, subject, count and time.
func renderTop(row Row, width int) string {
	marker := " "
	if row.Item.Kind == feed.KindThread {
		marker = "▸"
		if row.Expanded {
			marker = "▾"
		}
	}

	badges := ""
	if row.New {
		badges += theme.NewBadgeStyle.Render("●") + " "
	}
	if row.Job {
		badges += theme.JobBadgeStyle.Render("JOB") + " "
	}

	who := row.Message.Sender
	if len(row.People) > 0 {
		who = strings.Join(row.People, ", ")
	}
	who = ansi.Truncate(who, 24, "…")

	count := ""
	if n := len(row.Item.Messages()); row.Item.Kind == feed.KindThread && n > 1 {
		count = theme.CountBadgeStyle.Render(fmt.Sprintf(" (%d)", n))
	}

	when := theme.DimmedStyle.Render(relativeTime(row.Item.Key))

	head := fmt.Sprintf(
		"%s %s%s  ",
		marker, badges, theme.SenderStyle.Render(who),
	)
	room := width - ansi.StringWidth(head) - ansi.StringWidth(count) - ansi.StringWidth(when) - 2
	subject := row.Item.Subject()
	if snippet := row.Message.Snippet; snippet != "" {
		subject += theme.DimmedStyle.Render(" - " + snippet)
	}
	subject = ansi.Truncate(subject, max(room, 0), "…")

	return head + subject + count + "  " + when
}

// renderChild draws one message of an expanded thread.
func renderChild(row Row, width int) string {
	m := row.Message
	head := theme.SenderStyle.Render(ansi.Truncate(m.Sender, 20, "…")) + "  "
	when := theme.DimmedStyle.Render(relativeTime(m.Timestamp()))

	room := width - ansi.StringWidth(head) - ansi.StringWidth(when) - 2
	body := theme.DimmedStyle.Render(ansi.Truncate(m.Snippet, max(room, 0), "…"))

	return head + body + "  " + when
}

// relativeTime returns a human-friendly relative time string for an epoch
// millisecond timestamp.
func relativeTime(millis int64) string {
	if millis <= 0 {
		return ""
	}

	d := time.Since(time.UnixMilli(millis))
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		mins := int(d.Minutes())
		if mins == 1 {
			return "1m ago"
		}
		return fmt.Sprintf("%dm ago", mins)
	case d < 24*time.Hour:
		hrs := int(d.Hours())
		if hrs == 1 {
			return "1h ago"
		}
		return fmt.Sprintf("%dh ago", hrs)
	case d < 7*24*time.Hour:
		days := int(d.Hours() / 24)
		if days == 1 {
			return "1d ago"
		}
		return fmt.Sprintf("%dd ago", days)
	default:
		return time.UnixMilli(millis).Format("Jan 02")
	}
}
