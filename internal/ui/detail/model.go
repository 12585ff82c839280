package detail

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/dustin/go-humanize"

	"github.com/nhle/mailbox/internal/feed"
	"github.com/nhle/mailbox/internal/identity"
	"github.com/nhle/mailbox/internal/keys"
	"github.com/nhle/mailbox/internal/mailtext"
	"github.com/nhle/mailbox/internal/model"
	"github.com/nhle/mailbox/internal/theme"
)

// BackMsg signals the parent to navigate back to the feed.
type BackMsg struct{}

// Model is the message detail view. It shows every message of a feed item
// oldest first so a thread reads top to bottom.
type Model struct {
	item     *feed.Item
	user     *model.UserIdentity
	focus    string
	offsets  map[string]int
	viewport viewport.Model
	keys     *keys.KeyMap
	width    int
	height   int
}

// New creates a new detail view model.
func New(keys *keys.KeyMap, width, height int) Model {
	vp := viewport.New(width, height-2)
	vp.Style = lipgloss.NewStyle()

	return Model{
		viewport: vp,
		keys:     keys,
		width:    width,
		height:   height,
	}
}

// Init returns the initial command for the detail view.
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles messages for the detail view.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok && key.Matches(msg, m.keys.Back) {
		return m, func() tea.Msg {
			return BackMsg{}
		}
	}

	// Delegate to viewport for scrolling (j/k, up/down, pgup/pgdn)
	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

// View renders the detail view.
func (m Model) View() string {
	if m.item == nil {
		emptyStyle := lipgloss.NewStyle().
			Width(m.width).
			Height(m.height).
			Align(lipgloss.Center, lipgloss.Center).
			Foreground(theme.ColorGray)
		return emptyStyle.Render("No message selected")
	}

	return m.viewport.View()
}

// SetItem shows it and scrolls to the message named focus, or to the latest
// message when focus is empty.
func (m *Model) SetItem(it feed.Item, focus string) {
	m.item = &it
	m.focus = focus
	if m.focus == "" {
		m.focus = it.Latest().ID
	}
	m.refresh()
}

// SetUser sets the signed-in user, who is left out of thread participants.
func (m *Model) SetUser(u *model.UserIdentity) {
	m.user = u
	if m.item != nil {
		m.refresh()
	}
}

// Item returns the item on display.
func (m Model) Item() (feed.Item, bool) {
	if m.item == nil {
		return feed.Item{}, false
	}
	return *m.item, true
}

// Clear drops the item on display.
func (m *Model) Clear() {
	m.item = nil
	m.focus = ""
	m.viewport.SetContent("")
}

func (m *Model) refresh() {
	content := m.renderContent()
	m.viewport.SetContent(content)
	m.viewport.SetYOffset(m.offsets[m.focus])
}

// renderContent builds the full detail content string for the viewport and
// records the line offset of each message.
func (m *Model) renderContent() string {
	m.offsets = make(map[string]int)
	if m.item == nil {
		return ""
	}

	width := max(m.width-4, 20)
	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(theme.ColorWhite)
	sepStyle := lipgloss.NewStyle().Foreground(theme.ColorSubtle)
	separator := sepStyle.Render(strings.Repeat("─", min(width, 80)))

	var lines []string
	lines = append(lines, titleStyle.Render(ansi.Wrap(m.item.Subject(), width, "")))

	msgs := m.item.Messages()
	if m.item.Kind == feed.KindThread && len(msgs) > 1 {
		lines = append(lines, summarize(m.item.Thread, m.user).render(width)...)
	}
	lines = append(lines, "")

	for i := len(msgs) - 1; i >= 0; i-- {
		msg := msgs[i]
		m.offsets[msg.ID] = countLines(lines)
		lines = append(lines, renderMessage(msg, width)...)
		if i > 0 {
			lines = append(lines, "", separator, "")
		}
	}

	return strings.Join(lines, "\n")
}

// renderMessage draws the headers, attachments and body of one message.
func renderMessage(msg model.Message, width int) []string {
	metaStyle := lipgloss.NewStyle().Foreground(theme.ColorGray)
	valStyle := lipgloss.NewStyle().Foreground(theme.ColorWhite)

	field := func(label, value string) string {
		return fmt.Sprintf("%s %s", metaStyle.Render(fmt.Sprintf("%-8s", label+":")), valStyle.Render(value))
	}

	from := msg.Sender
	if msg.SenderEmail != "" && msg.SenderEmail != msg.Sender {
		from = fmt.Sprintf("%s <%s>", msg.Sender, msg.SenderEmail)
	}

	lines := []string{field("From", from)}
	if len(msg.To) > 0 {
		lines = append(lines, field("To", ansi.Wrap(strings.Join(msg.To, ", "), width-9, ",")))
	}
	if len(msg.Cc) > 0 {
		lines = append(lines, field("Cc", ansi.Wrap(strings.Join(msg.Cc, ", "), width-9, ",")))
	}
	if ts := msg.Timestamp(); ts > 0 {
		t := time.UnixMilli(ts)
		lines = append(lines, field("Date", fmt.Sprintf(
			"%s (%s)", t.Format("Mon, 02 Jan 2006 15:04"), humanize.Time(t),
		)))
	}
	for _, a := range msg.Attachments {
		size := ""
		if a.Size > 0 {
			size = " " + humanize.Bytes(uint64(a.Size))
		}
		lines = append(lines, field("Attach", a.Filename+metaStyle.Render(size)))
	}
	lines = append(lines, "")

	body := mailtext.Plain(msg)
	if body == "" {
		body = msg.Snippet
	}
	if body == "" {
		body = lipgloss.NewStyle().
			Foreground(theme.ColorGray).
			Italic(true).
			Render("No content")
	}
	lines = append(lines, ansi.Wrap(body, width, ""))
	return lines
}

// threadSummary is the overview shown above a thread's messages.
type threadSummary struct {
	Messages     int
	Participants []string
	Oldest       time.Time
	Newest       time.Time
	Attachments  int
	AttachBytes  int64
}

func summarize(th model.Thread, user *model.UserIdentity) threadSummary {
	s := threadSummary{Messages: len(th.Messages)}

	people := append([]string(nil), th.Participants...)
	for _, msg := range th.Messages {
		if msg.SenderEmail != "" {
			people = append(people, msg.SenderEmail)
		} else if msg.Sender != "" {
			people = append(people, msg.Sender)
		}

		if ts := msg.Timestamp(); ts > 0 {
			t := time.UnixMilli(ts)
			if s.Oldest.IsZero() || t.Before(s.Oldest) {
				s.Oldest = t
			}
			if t.After(s.Newest) {
				s.Newest = t
			}
		}

		s.Attachments += len(msg.Attachments)
		for _, a := range msg.Attachments {
			s.AttachBytes += a.Size
		}
	}

	s.Participants = identity.Participants(people...)
	if user != nil {
		s.Participants = identity.Others(s.Participants, *user)
	}
	return s
}

func (s threadSummary) render(width int) []string {
	metaStyle := lipgloss.NewStyle().Foreground(theme.ColorGray)

	head := fmt.Sprintf("%d messages", s.Messages)
	if n := len(s.Participants); n > 0 {
		head += fmt.Sprintf(" · %d %s", n, plural(n, "participant", "participants"))
	}
	lines := []string{theme.CountBadgeStyle.Render(head)}

	if len(s.Participants) > 0 {
		lines = append(lines, metaStyle.Render(ansi.Wrap("With: "+strings.Join(s.Participants, ", "), width, ",")))
	}
	if !s.Oldest.IsZero() {
		span := humanize.Time(s.Newest)
		if !s.Oldest.Equal(s.Newest) {
			span = fmt.Sprintf("%s to %s", humanize.Time(s.Oldest), humanize.Time(s.Newest))
		}
		lines = append(lines, metaStyle.Render("Active: "+span))
	}
	if s.Attachments > 0 {
		files := fmt.Sprintf("%d %s", s.Attachments, plural(s.Attachments, "attachment", "attachments"))
		if s.AttachBytes > 0 {
			files += " (" + humanize.Bytes(uint64(s.AttachBytes)) + ")"
		}
		lines = append(lines, metaStyle.Render(files))
	}
	return lines
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

func countLines(lines []string) int {
	n := 0
	for _, l := range lines {
		n += strings.Count(l, "\n") + 1
	}
	return n
}

// SetSize updates the detail view dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.viewport.Width = width
	m.viewport.Height = height - 2
	if m.item != nil {
		m.refresh()
	}
}
