package setup

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"

	"github.com/nhle/mailbox/internal/model"
	"github.com/nhle/mailbox/internal/theme"
)

// Mode represents the current state of the setup view.
type Mode int

const (
	ModeSelectType Mode = iota // Choose the account type
	ModeForm                   // Account-specific form
	ModeWorking                // Signing in
	ModeFailed                 // Show the sign-in error
)

// SubmitMsg carries a completed account form. Secret is the password for
// backend and imap accounts and empty for gmail.
type SubmitMsg struct {
	Account model.AccountConfig
	Secret  string
}

// CancelMsg signals the setup view should close without changes.
type CancelMsg struct{}

// fields holds the values the huh forms bind to. It lives behind a pointer
// so copies of Model share it.
type fields struct {
	accountType string

	name     string
	baseURL  string
	email    string
	password string

	host     string
	port     string
	username string
	useTLS   bool

	clientSecret string
}

// Model is the Bubble Tea model for the account setup flow.
type Model struct {
	mode       Mode
	typeSelect *huh.Form
	form       *huh.Form
	f          *fields
	existingID string

	status  string
	authURL string
	err     error
	spinner spinner.Model

	width, height int
}

// New creates a new setup view model.
func New(width, height int) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return Model{
		mode:    ModeSelectType,
		f:       &fields{},
		spinner: sp,
		width:   width,
		height:  height,
	}
}

// Start resets the flow. When existing is set its values prefill the form
// and its id is kept.
func (m *Model) Start(existing *model.AccountConfig) tea.Cmd {
	m.f = &fields{useTLS: true, port: "993"}
	m.existingID = ""
	m.err = nil
	m.status = ""
	m.authURL = ""

	if existing != nil {
		m.existingID = existing.ID
		m.f.accountType = existing.Type
		m.f.name = existing.Name
		m.f.baseURL = existing.BaseURL
		m.f.host = existing.BaseURL
		if existing.Config != nil {
			m.f.email = existing.Config["email"]
			m.f.username = existing.Config["username"]
			if p := existing.Config["port"]; p != "" {
				m.f.port = p
			}
			m.f.useTLS = existing.Config["tls"] != "false"
			m.f.clientSecret = existing.Config["client_secret"]
		}
	}

	m.mode = ModeSelectType
	m.typeSelect = m.buildTypeSelectForm()
	return m.typeSelect.Init()
}

// SetWorking shows a spinner with status while the parent signs in.
func (m *Model) SetWorking(status string) tea.Cmd {
	m.mode = ModeWorking
	m.status = status
	m.err = nil
	return m.spinner.Tick
}

// SetAuthURL shows the URL the user must open to grant access.
func (m *Model) SetAuthURL(u string) {
	m.authURL = u
}

// SetError shows a failed sign-in.
func (m *Model) SetError(err error) {
	m.mode = ModeFailed
	m.err = err
	m.authURL = ""
}

// Mode returns the current mode.
func (m Model) Mode() Mode {
	return m.mode
}

// Update handles messages and dispatches based on current mode.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case spinner.TickMsg:
		if m.mode == ModeWorking {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			return m, cmd
		}
		return m, nil

	case tea.KeyMsg:
		switch m.mode {
		case ModeFailed:
			switch msg.String() {
			case "enter", "r":
				return m, m.Start(m.current())
			case "esc":
				return m, func() tea.Msg { return CancelMsg{} }
			}
			return m, nil
		case ModeWorking:
			return m, nil
		}
	}

	switch m.mode {
	case ModeSelectType:
		return m.updateTypeSelect(msg)
	case ModeForm:
		return m.updateForm(msg)
	}
	return m, nil
}

// --- Type Selection ---

func (m Model) buildTypeSelectForm() *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Select Account Type").
				Description("Choose where your mail comes from").
				Options(
					huh.NewOption("Gmail - Google account via OAuth", string(model.AccountGmail)),
					huh.NewOption("IMAP - Any IMAP mailbox", string(model.AccountIMAP)),
					huh.NewOption("Backend - Mail service with email and password", string(model.AccountBackend)),
				).
				Value(&m.f.accountType),
		),
	).WithWidth(m.formWidth())
}

func (m Model) updateTypeSelect(msg tea.Msg) (Model, tea.Cmd) {
	if m.typeSelect == nil {
		return m, nil
	}

	mdl, cmd := m.typeSelect.Update(msg)
	if f, ok := mdl.(*huh.Form); ok {
		m.typeSelect = f
	}

	if m.typeSelect.State == huh.StateCompleted {
		return m.handleTypeSelected()
	}
	if m.typeSelect.State == huh.StateAborted {
		return m, func() tea.Msg { return CancelMsg{} }
	}

	return m, cmd
}

func (m Model) handleTypeSelected() (Model, tea.Cmd) {
	switch model.AccountType(m.f.accountType) {
	case model.AccountBackend:
		m.form = m.buildBackendForm()
	case model.AccountIMAP:
		m.form = m.buildIMAPForm()
	case model.AccountGmail:
		if m.f.clientSecret == "" {
			m.f.clientSecret = filepath.Join(model.ConfigDir(), "client_secret.json")
		}
		m.form = m.buildGmailForm()
	default:
		return m, func() tea.Msg { return CancelMsg{} }
	}
	m.mode = ModeForm
	return m, m.form.Init()
}

// --- Account forms ---

func (m Model) buildBackendForm() *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Name").
				Description("A label for this account").
				Placeholder("Work").
				Value(&m.f.name).
				Validate(validateRequired("Name")),
			huh.NewInput().
				Title("Server URL").
				Description("Mail service URL (e.g., https://mail.example.com)").
				Placeholder("https://mail.example.com").
				Value(&m.f.baseURL).
				Validate(validateURL),
			huh.NewInput().
				Title("Email").
				Placeholder("you@example.com").
				Value(&m.f.email).
				Validate(validateRequired("Email")),
			huh.NewInput().
				Title("Password").
				EchoMode(huh.EchoModePassword).
				Value(&m.f.password).
				Validate(validateRequired("Password")),
		),
	).WithWidth(m.formWidth())
}

func (m Model) buildIMAPForm() *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Name").
				Description("A label for this mailbox").
				Placeholder("Personal").
				Value(&m.f.name).
				Validate(validateRequired("Name")),
			huh.NewInput().
				Title("IMAP Host").
				Description("IMAP server hostname").
				Placeholder("imap.example.com").
				Value(&m.f.host).
				Validate(validateRequired("IMAP Host")),
			huh.NewInput().
				Title("IMAP Port").
				Description("IMAP server port (e.g., 993)").
				Placeholder("993").
				Value(&m.f.port).
				Validate(validatePort),
			huh.NewInput().
				Title("Username").
				Description("Mailbox username, usually the address").
				Placeholder("user@example.com").
				Value(&m.f.username).
				Validate(validateRequired("Username")),
			huh.NewInput().
				Title("Password").
				Description("Account password or app password").
				EchoMode(huh.EchoModePassword).
				Value(&m.f.password).
				Validate(validateRequired("Password")),
			huh.NewConfirm().
				Title("Use TLS").
				Description("Enable TLS encryption for connections").
				Affirmative("Yes").
				Negative("No").
				Value(&m.f.useTLS),
		),
	).WithWidth(m.formWidth())
}

func (m Model) buildGmailForm() *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Name").
				Description("A label for this account").
				Placeholder("Gmail").
				Value(&m.f.name).
				Validate(validateRequired("Name")),
			huh.NewInput().
				Title("OAuth client file").
				Description("Path to the client_secret.json of a Google desktop app").
				Value(&m.f.clientSecret).
				Validate(validateRequired("OAuth client file")),
		),
	).WithWidth(m.formWidth())
}

func (m Model) updateForm(msg tea.Msg) (Model, tea.Cmd) {
	if m.form == nil {
		return m, nil
	}

	mdl, cmd := m.form.Update(msg)
	if f, ok := mdl.(*huh.Form); ok {
		m.form = f
	}

	if m.form.State == huh.StateCompleted {
		submit := SubmitMsg{Account: m.account(), Secret: m.f.password}
		m.f.password = ""
		return m, func() tea.Msg { return submit }
	}
	if m.form.State == huh.StateAborted {
		return m, func() tea.Msg { return CancelMsg{} }
	}

	return m, cmd
}

// account builds the account config from the form values.
func (m Model) account() model.AccountConfig {
	acct := model.AccountConfig{
		ID:      m.existingID,
		Type:    m.f.accountType,
		Name:    strings.TrimSpace(m.f.name),
		Enabled: true,
		Config:  make(map[string]string),
	}
	if acct.ID == "" {
		acct.ID = uuid.New().String()
	}

	switch model.AccountType(m.f.accountType) {
	case model.AccountBackend:
		acct.BaseURL = strings.TrimSpace(m.f.baseURL)
		acct.Config["email"] = strings.TrimSpace(m.f.email)
	case model.AccountIMAP:
		acct.BaseURL = strings.TrimSpace(m.f.host)
		acct.Config["port"] = strings.TrimSpace(m.f.port)
		acct.Config["username"] = strings.TrimSpace(m.f.username)
		acct.Config["tls"] = strconv.FormatBool(m.f.useTLS)
	case model.AccountGmail:
		acct.Config["client_secret"] = strings.TrimSpace(m.f.clientSecret)
	}
	return acct
}

// current returns the account being edited so a retry keeps the values.
func (m Model) current() *model.AccountConfig {
	if m.f.accountType == "" {
		return nil
	}
	acct := m.account()
	return &acct
}

// --- View ---

// View renders the setup UI based on the current mode.
func (m Model) View() string {
	switch m.mode {
	case ModeSelectType:
		return m.viewForm(m.typeSelect)
	case ModeForm:
		return m.viewForm(m.form)
	case ModeWorking:
		return m.viewWorking()
	case ModeFailed:
		return m.viewFailed()
	default:
		return ""
	}
}

func (m Model) viewForm(f *huh.Form) string {
	if f == nil {
		return ""
	}

	title := lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.ColorWhite).
		MarginBottom(1).
		Render("Account Setup")

	return lipgloss.NewStyle().
		Padding(1, 2).
		Width(m.width).
		Height(m.height).
		Render(lipgloss.JoinVertical(lipgloss.Left, title, f.View()))
}

func (m Model) viewWorking() string {
	style := lipgloss.NewStyle().
		Padding(1, 2).
		Width(m.width).
		Height(m.height)

	content := fmt.Sprintf("%s %s", m.spinner.View(), m.status)
	if m.authURL != "" {
		content += "\n\nOpen this URL in your browser to grant access:\n\n" +
			lipgloss.NewStyle().Foreground(theme.ColorBlue).Render(m.authURL)
	}

	return style.Render(content)
}

func (m Model) viewFailed() string {
	style := lipgloss.NewStyle().
		Padding(1, 2).
		Width(m.width).
		Height(m.height)

	msg := "unknown error"
	if m.err != nil {
		msg = m.err.Error()
	}
	content := theme.ErrorStyle.Render("Sign-in failed") + "\n\n" +
		msg + "\n\n" +
		lipgloss.NewStyle().Foreground(theme.ColorGray).
			Render("enter retry | esc back")

	return style.Render(content)
}

// --- Helpers ---

// SetSize updates the view dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
}

func (m Model) formWidth() int {
	return min(max(m.width-4, 40), 100)
}

// --- Validators ---

func validateRequired(fieldName string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", fieldName)
		}
		return nil
	}
}

func validateURL(s string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("URL is required")
	}
	parsed, err := url.Parse(strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("URL must include scheme and host (e.g., https://example.com)")
	}
	return nil
}

func validatePort(s string) error {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("port must be a number")
	}
	if n < 1 || n > 65535 {
		return fmt.Errorf("port must be between 1 and 65535")
	}
	return nil
}
