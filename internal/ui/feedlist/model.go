package feedlist

import (
	"context"
	"iter"
	"slices"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/mailbox/internal/feed"
	"github.com/nhle/mailbox/internal/identity"
	"github.com/nhle/mailbox/internal/keys"
	"github.com/nhle/mailbox/internal/model"
	"github.com/nhle/mailbox/internal/theme"
)

// OpenMsg is sent when the user opens a feed item. MessageID names the
// message to focus; it is empty when the whole item was opened.
type OpenMsg struct {
	Item      feed.Item
	MessageID string
}

// Expander holds the expanded state of threads.
type Expander interface {
	Get(threadID string) bool
	Toggle(ctx context.Context, threadID string) bool
}

// Classifier tells job related items apart.
type Classifier interface {
	IsJobItem(it feed.Item) bool
}

// Model is the feed list view component.
type Model struct {
	list        list.Model
	keys        *keys.KeyMap
	expander    Expander
	classifier  Classifier
	items       []feed.Item
	user        *model.UserIdentity
	unread      map[string]bool
	jobsOnly    bool
	query       string
	searchMode  bool
	searchInput textinput.Model
	width       int
	height      int
}

// New creates a new feed list model. classifier may be nil, in which case
// nothing counts as job related.
func New(k *keys.KeyMap, exp Expander, classifier Classifier, width, height int) Model {
	l := list.New([]list.Item{}, ItemDelegate{}, width, height-2)
	l.Title = "Inbox"
	l.SetShowStatusBar(true)
	l.SetShowHelp(false)
	l.SetFilteringEnabled(false)
	l.KeyMap.Quit.SetEnabled(false)
	l.Styles.Title = theme.HeaderStyle
	l.SetStatusBarItemName("item", "items")

	si := textinput.New()
	si.Placeholder = "search mail..."
	si.Prompt = "/ "
	si.Width = width - 4

	return Model{
		list:        l,
		keys:        k,
		expander:    exp,
		classifier:  classifier,
		unread:      make(map[string]bool),
		searchInput: si,
		width:       width,
		height:      height,
	}
}

// Init returns the initial command.
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles messages for the feed list view.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		if m.searchMode {
			return m.handleSearchKeys(msg)
		}
		return m.handleNormalKeys(msg)
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

// handleSearchKeys processes key input while in search mode.
func (m Model) handleSearchKeys(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		m.searchMode = false
		m.query = strings.TrimSpace(m.searchInput.Value())
		return m, m.rebuild()

	case "esc":
		m.searchMode = false
		m.searchInput.Reset()
		m.query = ""
		return m, m.rebuild()
	}

	var cmd tea.Cmd
	m.searchInput, cmd = m.searchInput.Update(msg)
	return m, cmd
}

// handleNormalKeys processes key input in normal (non-search) mode.
func (m Model) handleNormalKeys(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Select):
		row, ok := m.SelectedRow()
		if !ok {
			return m, nil
		}
		open := OpenMsg{Item: row.Item}
		if row.Child {
			open.MessageID = row.Message.ID
		}
		return m, func() tea.Msg { return open }

	case key.Matches(msg, m.keys.Expand):
		row, ok := m.SelectedRow()
		if !ok || row.Item.Kind != feed.KindThread {
			return m, nil
		}
		m.expander.Toggle(context.Background(), row.Item.ID())
		m.selectID(row.Item.ID())
		return m, m.rebuild()

	case key.Matches(msg, m.keys.Search):
		m.searchMode = true
		m.searchInput.Reset()
		return m, m.searchInput.Focus()

	case key.Matches(msg, m.keys.Jobs):
		return m, m.ToggleJobsOnly()

	case key.Matches(msg, m.keys.Back):
		if m.query == "" && !m.jobsOnly {
			return m, nil
		}
		m.query = ""
		m.jobsOnly = false
		return m, m.rebuild()
	}

	// Delegate to the list for navigation keys (up/down/pgup/pgdn)
	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

// SetItems replaces the projected feed and rebuilds the rows, keeping the
// selection on the same item when it still exists.
func (m *Model) SetItems(items iter.Seq[feed.Item]) tea.Cmd {
	m.items = slices.Collect(items)
	return m.rebuild()
}

// SetUser records the mailbox owner so threads list the other people.
func (m *Model) SetUser(u *model.UserIdentity) {
	m.user = u
}

// SetUnread marks the given item ids as new.
func (m *Model) SetUnread(ids []string) tea.Cmd {
	m.unread = make(map[string]bool, len(ids))
	for _, id := range ids {
		m.unread[id] = true
	}
	return m.rebuild()
}

// ToggleJobsOnly switches between the full feed and job related items.
func (m *Model) ToggleJobsOnly() tea.Cmd {
	m.jobsOnly = !m.jobsOnly
	return m.rebuild()
}

// SetJobsOnly sets the jobs-only filter.
func (m *Model) SetJobsOnly(on bool) tea.Cmd {
	m.jobsOnly = on
	return m.rebuild()
}

// JobsOnly reports whether the jobs-only filter is active.
func (m Model) JobsOnly() bool {
	return m.jobsOnly
}

// Searching reports whether the search input has focus.
func (m Model) Searching() bool {
	return m.searchMode
}

// Rows returns the rows currently shown.
func (m Model) Rows() []Row {
	rows := make([]Row, 0, len(m.list.Items()))
	for _, it := range m.list.Items() {
		if r, ok := it.(Row); ok {
			rows = append(rows, r)
		}
	}
	return rows
}

// SelectedRow returns the focused row.
func (m Model) SelectedRow() (Row, bool) {
	r, ok := m.list.SelectedItem().(Row)
	return r, ok
}

// Select moves the cursor to the row at index.
func (m *Model) Select(index int) {
	m.list.Select(index)
}

// FilterSummary describes the active filters, or "" when none is active.
func (m Model) FilterSummary() string {
	var parts []string
	if m.jobsOnly {
		parts = append(parts, "jobs only")
	}
	if m.query != "" {
		parts = append(parts, "search: "+m.query)
	}
	return strings.Join(parts, " | ")
}

// selectID remembers id so the next rebuild keeps the cursor on it.
func (m *Model) selectID(id string) {
	for i, r := range m.Rows() {
		if !r.Child && r.ID() == id {
			m.list.Select(i)
			return
		}
	}
}

// rebuild recomputes the rows from the items, filters, expansion state and
// unread set.
func (m *Model) rebuild() tea.Cmd {
	prev, hadPrev := m.SelectedRow()

	visible := feed.Filter(slices.Values(m.items), m.keep)

	var rows []list.Item
	for it := range visible {
		expanded := it.Kind == feed.KindThread && m.expander != nil && m.expander.Get(it.ID())
		top := Row{
			Item:     it,
			Message:  it.Latest(),
			Expanded: expanded,
			Job:      m.isJob(it),
			New:      m.unread[it.ID()],
		}
		if it.Kind == feed.KindThread {
			top.People = m.people(it.Thread)
		}
		rows = append(rows, top)

		if !expanded {
			continue
		}
		for _, msg := range it.Messages() {
			rows = append(rows, Row{Item: it, Message: msg, Child: true})
		}
	}

	cmd := m.list.SetItems(rows)

	if hadPrev {
		for i, r := range rows {
			if rr := r.(Row); rr.Child == prev.Child && rr.ID() == prev.ID() {
				m.list.Select(i)
				break
			}
		}
	}
	return cmd
}

func (m Model) keep(it feed.Item) bool {
	if m.jobsOnly && !m.isJob(it) {
		return false
	}
	if m.query == "" {
		return true
	}
	q := strings.ToLower(m.query)
	for _, msg := range it.Messages() {
		for _, field := range []string{msg.Subject, msg.Sender, msg.SenderEmail, msg.Snippet} {
			if strings.Contains(strings.ToLower(field), q) {
				return true
			}
		}
	}
	return false
}

func (m Model) isJob(it feed.Item) bool {
	return m.classifier != nil && m.classifier.IsJobItem(it)
}

// people returns the thread's participants without the mailbox owner,
// shown by display name where one is known.
func (m Model) people(t model.Thread) []string {
	others := t.Participants
	if m.user != nil {
		others = identity.Others(t.Participants, *m.user)
	}

	names := make(map[string]string)
	for _, msg := range t.Messages {
		if msg.SenderEmail != "" && msg.Sender != "" {
			names[identity.Normalize(msg.SenderEmail)] = msg.Sender
		}
	}

	out := make([]string, 0, len(others))
	for _, p := range others {
		if name, ok := names[identity.Normalize(p)]; ok {
			out = append(out, name)
			continue
		}
		out = append(out, p)
	}
	return out
}

// View renders the feed list view.
func (m Model) View() string {
	if m.searchMode {
		searchBar := lipgloss.NewStyle().
			Foreground(theme.ColorWhite).
			Padding(0, 1).
			Render(m.searchInput.View())
		return lipgloss.JoinVertical(lipgloss.Left, searchBar, m.list.View())
	}

	if len(m.list.Items()) == 0 {
		return m.renderEmptyState()
	}

	return m.list.View()
}

// renderEmptyState shows guidance text when no mail is available.
func (m Model) renderEmptyState() string {
	style := lipgloss.NewStyle().
		Width(m.width).
		Height(m.height).
		Align(lipgloss.Center, lipgloss.Center).
		Foreground(theme.ColorGray)

	if m.jobsOnly || m.query != "" {
		return style.Render("No matching mail.\nPress J or esc to clear filters.")
	}

	if len(m.items) == 0 {
		return style.Render(
			"Your inbox is empty.\n\n" +
				"Press r to refresh or : then type 'logout' to switch accounts.",
		)
	}
	return style.Render("Nothing to show.")
}

// SetSize updates the list dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.list.SetSize(width, height-2)
	m.searchInput.Width = width - 4
}
