package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"

	"github.com/nhle/mailbox/internal/filter"
	"github.com/nhle/mailbox/internal/keys"
	"github.com/nhle/mailbox/internal/mailbox"
	"github.com/nhle/mailbox/internal/model"
	"github.com/nhle/mailbox/internal/source"
	"github.com/nhle/mailbox/internal/store"
	appsync "github.com/nhle/mailbox/internal/sync"
	"github.com/nhle/mailbox/internal/theme"
	"github.com/nhle/mailbox/internal/ui"
	"github.com/nhle/mailbox/internal/ui/command"
	"github.com/nhle/mailbox/internal/ui/detail"
	"github.com/nhle/mailbox/internal/ui/feedlist"
	helpview "github.com/nhle/mailbox/internal/ui/help"
	"github.com/nhle/mailbox/internal/ui/setup"
)

// unreadMsg carries the ids of items with unread notifications.
type unreadMsg struct {
	ids []string
}

// openSetupMsg asks the root model to show the account setup flow.
type openSetupMsg struct{}

// ViewState represents the current active view in the application.
type ViewState int

const (
	ViewFeed ViewState = iota
	ViewDetail
	ViewSetup
	ViewHelp
	ViewCommand
)

// Deps holds what the root model needs from main.
type Deps struct {
	Config     *model.AppConfig
	ConfigPath string
	Session    *mailbox.Session
	Store      store.Store
	Secrets    Secrets
	// Connect overrides how accounts are signed in. It defaults to the
	// backend, imap and gmail adapters.
	Connect ConnectFunc
	Logger  zerolog.Logger
}

// Model is the root Bubble Tea model that manages view routing,
// layout, and the account session.
type Model struct {
	currentView  ViewState
	previousView ViewState
	layout       ui.Layout
	ready        bool
	keys         *keys.KeyMap

	cfg       *model.AppConfig
	cfgPath   string
	session   *mailbox.Session
	store     store.Store
	secrets   Secrets
	connectFn ConnectFunc
	logger    zerolog.Logger

	feed        feedlist.Model
	detail      detail.Model
	helpView    helpview.Model
	commandView command.Model
	setupView   setup.Model

	account    model.AccountConfig
	fetcher    source.Fetcher
	poller     *appsync.Poller
	connecting bool

	unreadCount      int
	notice           string
	errMessage       string
	authErrorMessage string
}

// New creates the root model. The session should already be hydrated so
// the cached mailbox shows while the account connects.
func New(d Deps) Model {
	k := keys.DefaultKeyMap()
	logger := d.Logger.With().Str("component", "app").Logger()

	connectFn := d.Connect
	if connectFn == nil {
		connectFn = connector{
			secrets: d.Secrets,
			kv:      d.Store,
			sync:    d.Config.Sync,
			logger:  d.Logger,
		}.Connect
	}

	m := Model{
		currentView: ViewFeed,
		keys:        k,
		cfg:         d.Config,
		cfgPath:     d.ConfigPath,
		session:     d.Session,
		store:       d.Store,
		secrets:     d.Secrets,
		connectFn:   connectFn,
		logger:      logger,
		feed:        feedlist.New(k, d.Session.Expansion(), filter.New(d.Config.Filter, d.Logger), 80, 24),
		detail:      detail.New(k, 80, 24),
		helpView:    helpview.New(k, commands, 80, 24),
		commandView: command.New(commandNames(), 80, 24),
		setupView:   setup.New(80, 24),
	}

	if acct, ok := d.Config.ActiveAccount(); ok {
		m.account = acct
		m.connecting = true
	}
	m.feed.SetUser(d.Session.User())
	m.detail.SetUser(d.Session.User())
	m.feed.SetJobsOnly(d.Config.Display.JobsOnly)
	m.feed.SetItems(d.Session.Feed())
	m.helpView.SetAccount(accountLabel(m.account, nil))

	return m
}

// Init loads unread notifications and connects the active account, or
// opens setup when there is none.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.feed.Init(), m.fetchUnread()}
	if m.account.ID == "" {
		cmds = append(cmds, func() tea.Msg { return openSetupMsg{} })
	} else {
		cmds = append(cmds, m.connect(m.account, false))
	}
	return tea.Batch(cmds...)
}

// Update handles messages and dispatches to the active view.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.layout = ui.NewLayout(msg.Width, msg.Height)
		m.ready = true
		contentWidth := m.layout.ContentWidth()
		contentHeight := m.layout.ContentHeight()
		m.feed.SetSize(contentWidth, contentHeight)
		m.detail.SetSize(contentWidth, contentHeight)
		m.helpView.SetSize(contentWidth, contentHeight)
		m.commandView.SetSize(contentWidth, contentHeight)
		m.setupView.SetSize(contentWidth, contentHeight)
		// Forward to active view so huh forms can calculate their layout.
		return m.updateActiveView(msg)

	case openSetupMsg:
		return m, m.openSetup(nil)

	case connectedMsg:
		return m.handleConnected(msg)

	case connectFailedMsg:
		m.connecting = false
		if msg.fromSetup || source.IsAuthError(msg.err) {
			cmd := m.openSetup(&msg.account)
			m.setupView.SetError(msg.err)
			return m, cmd
		}
		// The cached mailbox stays visible; r retries.
		m.errMessage = errorText(msg.err)
		return m, nil

	case setup.SubmitMsg:
		return m.handleSubmit(msg)

	case authURLMsg:
		m.setupView.SetAuthURL(msg.url)
		return m, nil

	case authorizedMsg:
		if msg.err != nil {
			m.setupView.SetError(msg.err)
			return m, nil
		}
		m.connecting = true
		return m, tea.Batch(
			m.setupView.SetWorking("Loading mailbox"),
			m.connect(msg.account, true),
		)

	case setup.CancelMsg:
		m.currentView = ViewFeed
		return m, nil

	case loggedOutMsg:
		disableAccount(m.cfg, msg.account.ID)
		if err := model.SaveConfig(m.cfgPath, m.cfg); err != nil {
			m.logger.Error().Err(err).Msg("saving config failed")
		}
		m.notice = ""
		m.unreadCount = 0
		m.feed.SetUser(nil)
		m.detail.SetUser(nil)
		m.helpView.SetAccount("")
		return m, tea.Batch(
			m.feed.SetItems(m.session.Feed()),
			m.feed.SetUnread(nil),
			m.openSetup(&msg.account),
		)

	case appsync.SyncResultMsg:
		return m.handleSyncResult(msg)

	case unreadMsg:
		m.unreadCount = len(msg.ids)
		return m, m.feed.SetUnread(msg.ids)

	case feedlist.OpenMsg:
		m.detail.SetItem(msg.Item, msg.MessageID)
		m.previousView = m.currentView
		m.currentView = ViewDetail
		return m, m.markRead(msg.Item.ID())

	case detail.BackMsg:
		m.currentView = ViewFeed
		return m, nil

	case command.CommandMsg:
		m.currentView = m.previousView
		return m, m.executeCommand(string(msg))

	case command.CancelMsg:
		m.currentView = m.previousView
		return m, nil

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			m.stop()
			return m, tea.Quit
		}
		if m.capturesKeys() {
			break
		}

		switch {
		case key.Matches(msg, m.keys.Quit):
			if m.currentView == ViewFeed {
				m.stop()
				return m, tea.Quit
			}

		case key.Matches(msg, m.keys.Help):
			if m.currentView == ViewHelp {
				m.currentView = m.previousView
				return m, nil
			}
			m.previousView = m.currentView
			m.currentView = ViewHelp
			return m, nil

		case key.Matches(msg, m.keys.Command):
			m.previousView = m.currentView
			m.currentView = ViewCommand
			return m, m.commandView.Focus()

		case key.Matches(msg, m.keys.Refresh):
			if m.currentView == ViewFeed {
				return m, m.refresh()
			}

		case key.Matches(msg, m.keys.Setup):
			if m.currentView == ViewFeed {
				return m, m.openSetup(&m.account)
			}

		case key.Matches(msg, m.keys.Back):
			if m.currentView == ViewHelp {
				m.currentView = m.previousView
				return m, nil
			}
		}
	}

	// Delegate to active sub-view
	return m.updateActiveView(msg)
}

// capturesKeys reports whether the active view takes raw text input, in
// which case global shortcuts are not applied.
func (m Model) capturesKeys() bool {
	switch m.currentView {
	case ViewSetup, ViewCommand:
		return true
	case ViewFeed:
		return m.feed.Searching()
	}
	return false
}

func (m Model) handleConnected(msg connectedMsg) (tea.Model, tea.Cmd) {
	m.connecting = false
	if err := m.session.SetUser(msg.gen, msg.user); err != nil {
		m.logger.Debug().Str("account", msg.account.ID).Msg("dropping connection from an ended session")
		return m, nil
	}

	if m.poller != nil {
		m.poller.Stop()
	}
	m.account = msg.account
	m.fetcher = msg.fetcher
	m.poller = appsync.New(m.session, msg.fetcher, m.store, appsync.Config{
		Interval: time.Duration(m.cfg.Sync.PollIntervalSec) * time.Second,
		Mode:     model.SyncMode(m.cfg.Sync.Mode),
	}, m.logger)

	m.errMessage = ""
	m.authErrorMessage = ""
	m.feed.SetUser(msg.user)
	m.detail.SetUser(msg.user)
	m.helpView.SetAccount(accountLabel(msg.account, msg.user))

	if msg.fromSetup {
		upsertAccount(m.cfg, msg.account)
		if err := model.SaveConfig(m.cfgPath, m.cfg); err != nil {
			m.logger.Error().Err(err).Msg("saving config failed")
			m.errMessage = errorText(err)
		}
		m.currentView = ViewFeed
	}

	return m, tea.Batch(
		m.poller.Start(),
		m.feed.SetItems(m.session.Feed()),
	)
}

func (m Model) handleSubmit(msg setup.SubmitMsg) (tea.Model, tea.Cmd) {
	acct := msg.Account
	if m.account.ID != "" && m.account.ID != acct.ID {
		m.switchAccount()
	}

	if msg.Secret != "" {
		if err := m.secrets.Set(secretKey(acct), msg.Secret); err != nil {
			m.setupView.SetError(err)
			return m, nil
		}
	}

	if model.AccountType(acct.Type) == model.AccountGmail {
		if _, err := m.secrets.Get(secretKey(acct)); err != nil {
			urls := make(chan string, 1)
			return m, tea.Batch(
				m.setupView.SetWorking("Waiting for Google authorization"),
				m.authorize(acct, urls),
				waitForAuthURL(urls),
			)
		}
	}

	m.connecting = true
	return m, tea.Batch(
		m.setupView.SetWorking("Signing in"),
		m.connect(acct, true),
	)
}

func (m Model) handleSyncResult(msg appsync.SyncResultMsg) (tea.Model, tea.Cmd) {
	if m.poller == nil {
		return m, nil
	}

	var cmds []tea.Cmd
	if !msg.Manual {
		cmds = append(cmds, m.poller.WaitForNextResult())
	}

	switch {
	case msg.Skipped:
		if msg.Manual {
			m.notice = "refresh already running"
		}
	case msg.Stale:
	case msg.AuthError != nil:
		m.authErrorMessage = msg.AuthError.Message
	case msg.Error != nil:
		m.errMessage = errorText(msg.Error)
	default:
		m.errMessage = ""
		m.authErrorMessage = ""
		m.notice = ""
		if msg.NewCount > 0 {
			m.notice = fmt.Sprintf("%d new", msg.NewCount)
		}
		if msg.Dropped > 0 {
			m.logger.Warn().Int("dropped", msg.Dropped).Msg("server sent invalid items")
		}
		cmds = append(cmds, m.feed.SetItems(m.session.Feed()), m.fetchUnread())
	}

	return m, tea.Batch(cmds...)
}

// updateActiveView dispatches the message to the currently active view.
func (m Model) updateActiveView(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch m.currentView {
	case ViewFeed:
		m.feed, cmd = m.feed.Update(msg)
	case ViewDetail:
		m.detail, cmd = m.detail.Update(msg)
	case ViewSetup:
		m.setupView, cmd = m.setupView.Update(msg)
	case ViewHelp:
		m.helpView, cmd = m.helpView.Update(msg)
	case ViewCommand:
		m.commandView, cmd = m.commandView.Update(msg)
	}

	return m, cmd
}

// View renders the full terminal UI using the layout manager.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}

	title := "Mailbox"
	if label := accountLabel(m.account, m.session.User()); label != "" {
		title += " " + label
	}
	if m.unreadCount > 0 {
		title += fmt.Sprintf(" [%d new]", m.unreadCount)
	}

	header := m.layout.RenderHeader(title, syncLabel(m.poller, m.connecting))
	content := m.renderContent()
	statusBar := m.layout.RenderStatusBar(m.keyHints(), m.statusInfo())

	return m.layout.RenderWithFrame(header, content, statusBar)
}

// renderContent returns the rendered string for the current active view.
func (m Model) renderContent() string {
	switch m.currentView {
	case ViewFeed:
		return m.feed.View()
	case ViewDetail:
		return m.detail.View()
	case ViewSetup:
		return m.setupView.View()
	case ViewHelp:
		return m.helpView.View()
	case ViewCommand:
		return m.commandView.View()
	default:
		return ""
	}
}

// keyHints returns keyboard shortcut hints for the status bar.
func (m Model) keyHints() string {
	// Show auth error prominently when present.
	if m.authErrorMessage != "" && m.currentView == ViewFeed {
		return m.authErrorMessage
	}

	switch m.currentView {
	case ViewHelp:
		return "? close help | esc back"
	case ViewCommand:
		return "enter execute | tab complete | esc back"
	case ViewDetail:
		return "esc back | j/k scroll"
	case ViewSetup:
		return "enter next | esc cancel"
	default:
		if summary := m.feed.FilterSummary(); summary != "" {
			return summary + " | esc clear"
		}
		return "q quit | ? help | enter open | space expand | / search | J jobs | r refresh | : command"
	}
}

// statusInfo returns the right side of the status bar.
func (m Model) statusInfo() string {
	parts := []string{itemCount(m.session.Snapshot().TotalCount())}
	if m.notice != "" {
		parts = append(parts, theme.NewBadgeStyle.Render(m.notice))
	}
	if m.errMessage != "" {
		parts = append(parts, theme.ErrorStyle.Render(m.errMessage))
	}
	return strings.Join(parts, " | ")
}

// fetchUnread returns a tea.Cmd that queries the store for the ids
// of items with unread notifications.
func (m Model) fetchUnread() tea.Cmd {
	s := m.store
	return func() tea.Msg {
		notifications, err := s.GetUnreadNotifications(context.Background())
		if err != nil {
			return unreadMsg{}
		}
		ids := make([]string, 0, len(notifications))
		for _, n := range notifications {
			ids = append(ids, n.ItemID)
		}
		return unreadMsg{ids: ids}
	}
}

// markRead clears the notifications of itemID and reloads the unread set.
func (m Model) markRead(itemID string) tea.Cmd {
	s := m.store
	logger := m.logger
	unread := m.fetchUnread()
	return func() tea.Msg {
		if err := s.MarkItemRead(context.Background(), itemID); err != nil {
			logger.Warn().Err(err).Str("item", itemID).Msg("marking item read failed")
		}
		return unread()
	}
}

// openSetup shows the setup flow, prefilled from acct when it names an
// account.
func (m *Model) openSetup(acct *model.AccountConfig) tea.Cmd {
	if m.currentView != ViewSetup {
		m.previousView = m.currentView
	}
	m.currentView = ViewSetup

	var existing *model.AccountConfig
	if acct != nil && acct.ID != "" {
		a := *acct
		existing = &a
	}
	return m.setupView.Start(existing)
}

// refresh runs a manual full fetch, or reconnects when the account is
// not connected.
func (m *Model) refresh() tea.Cmd {
	if m.poller != nil {
		m.notice = ""
		return m.poller.Refresh()
	}
	if m.account.ID == "" || m.connecting {
		return nil
	}
	m.connecting = true
	m.errMessage = ""
	return m.connect(m.account, false)
}

// startLogout stops polling and clears the session in the background.
func (m *Model) startLogout() tea.Cmd {
	m.stop()
	m.poller = nil
	acct, f := m.account, m.fetcher
	m.account = model.AccountConfig{}
	m.fetcher = nil
	m.notice = "signing out"
	return m.logout(acct, f)
}

// switchAccount drops the current account's mailbox before another one
// is connected.
func (m *Model) switchAccount() {
	m.stop()
	m.poller = nil
	m.fetcher = nil
	m.account = model.AccountConfig{}

	ctx := context.Background()
	if err := m.session.Logout(ctx); err != nil {
		m.logger.Warn().Err(err).Msg("clearing mailbox failed")
	}
	if err := m.store.ClearNotifications(ctx); err != nil {
		m.logger.Warn().Err(err).Msg("clearing notifications failed")
	}
	m.unreadCount = 0
	m.feed.SetUser(nil)
	m.detail.SetUser(nil)
	m.feed.SetItems(m.session.Feed())
	m.feed.SetUnread(nil)
}

// stop halts background polling.
func (m *Model) stop() {
	if m.poller != nil {
		m.poller.Stop()
	}
}

// executeCommand handles a command from the command palette.
func (m *Model) executeCommand(name string) tea.Cmd {
	switch name {
	case command.Refresh:
		return m.refresh()
	case command.Logout:
		return m.startLogout()
	case command.Jobs:
		return m.feed.ToggleJobsOnly()
	case command.Setup:
		return m.openSetup(&m.account)
	case command.Help:
		m.previousView = m.currentView
		m.currentView = ViewHelp
		return nil
	case command.Quit:
		m.stop()
		return tea.Quit
	default:
		return nil
	}
}
