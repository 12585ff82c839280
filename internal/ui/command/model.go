package command

import (
	"fmt"
	"slices"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/mailbox/internal/theme"
)

// Palette command names.
const (
	Refresh = "refresh"
	Logout  = "logout"
	Jobs    = "jobs"
	Setup   = "setup"
	Help    = "help"
	Quit    = "quit"
)

// aliases maps alternative spellings to command names.
var aliases = map[string]string{
	"sync":    Refresh,
	"r":       Refresh,
	"signout": Logout,
	"job":     Jobs,
	"account": Setup,
	"q":       Quit,
	"exit":    Quit,
}

// CommandMsg is emitted when the user executes a known command.
type CommandMsg string

// CancelMsg is emitted when the palette is dismissed.
type CancelMsg struct{}

// Resolve maps user input to a command name. ok is false for unknown input.
func Resolve(input string, names []string) (string, bool) {
	input = strings.ToLower(strings.TrimSpace(input))
	if alias, ok := aliases[input]; ok {
		input = alias
	}
	if slices.Contains(names, input) {
		return input, true
	}
	return "", false
}

// Model is the command palette view.
type Model struct {
	input  textinput.Model
	names  []string
	err    string
	width  int
	height int
}

// New creates a new command palette accepting names.
func New(names []string, width, height int) Model {
	ti := textinput.New()
	ti.Placeholder = "type a command..."
	ti.Prompt = ": "
	ti.ShowSuggestions = true
	ti.SetSuggestions(names)
	ti.Focus()
	ti.Width = width - 6

	return Model{
		input:  ti,
		names:  names,
		width:  width,
		height: height,
	}
}

// Init returns the initial command.
func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

// Update handles messages for the command palette.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "enter":
			raw := strings.TrimSpace(m.input.Value())
			if raw == "" {
				return m, nil
			}
			name, ok := Resolve(raw, m.names)
			if !ok {
				m.err = fmt.Sprintf("unknown command %q", raw)
				return m, nil
			}
			m.input.Reset()
			m.err = ""
			return m, func() tea.Msg {
				return CommandMsg(name)
			}

		case "esc":
			m.input.Reset()
			m.err = ""
			return m, func() tea.Msg {
				return CancelMsg{}
			}
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// View renders the command palette.
func (m Model) View() string {
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.ColorWhite).
		MarginBottom(1)

	sections := []string{
		titleStyle.Render("Command Palette"),
		m.input.View(),
	}
	if m.err != "" {
		sections = append(sections, theme.ErrorStyle.Render(m.err))
	}
	sections = append(sections, theme.HelpStyle.Render(strings.Join(m.names, " · ")))

	return theme.DetailPanelStyle.
		Width(m.width - 4).
		Render(lipgloss.JoinVertical(lipgloss.Left, sections...))
}

// SetSize updates the command palette dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.input.Width = width - 6
}

// Focus gives keyboard focus to the text input.
func (m *Model) Focus() tea.Cmd {
	return m.input.Focus()
}
