package help

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/mailbox/internal/keys"
	"github.com/nhle/mailbox/internal/theme"
)

// Command describes one command palette entry.
type Command struct {
	Name        string
	Description string
}

// Model is the help overlay view.
type Model struct {
	keys     *keys.KeyMap
	help     help.Model
	commands []Command
	account  string
	width    int
	height   int
}

// New creates a new help view model listing keys and palette commands.
func New(keys *keys.KeyMap, commands []Command, width, height int) Model {
	h := help.New()
	h.Width = width
	return Model{
		keys:     keys,
		help:     h,
		commands: commands,
		width:    width,
		height:   height,
	}
}

// Init returns the initial command.
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles messages for the help view.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	return m, nil
}

// SetAccount sets the account line shown at the bottom of the overlay.
func (m *Model) SetAccount(desc string) {
	m.account = desc
}

// View renders the help overlay.
func (m Model) View() string {
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.ColorWhite).
		MarginBottom(1)

	m.help.Width = m.width - 4
	m.help.ShowAll = true

	sections := []string{
		titleStyle.Render("Keyboard Shortcuts"),
		m.help.View(m.keys),
		"",
		titleStyle.Render("Commands"),
	}

	nameStyle := lipgloss.NewStyle().Foreground(theme.ColorBlue).Bold(true)
	var cmds []string
	for _, c := range m.commands {
		cmds = append(cmds, fmt.Sprintf("%s  %s",
			nameStyle.Render(fmt.Sprintf(":%-8s", c.Name)),
			theme.DimmedStyle.Render(c.Description),
		))
	}
	sections = append(sections, strings.Join(cmds, "\n"))

	if m.account != "" {
		sections = append(sections, "", theme.HelpStyle.Render(m.account))
	}

	return theme.DetailPanelStyle.
		Width(m.width - 4).
		Height(m.height - 4).
		Render(lipgloss.JoinVertical(lipgloss.Left, sections...))
}

// SetSize updates the help view dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.help.Width = width - 4
}
