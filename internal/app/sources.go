package app

import (
	"context"
	"fmt"
	"strconv"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"

	"github.com/nhle/mailbox/internal/credential"
	"github.com/nhle/mailbox/internal/mailbox"
	"github.com/nhle/mailbox/internal/model"
	"github.com/nhle/mailbox/internal/source"
	"github.com/nhle/mailbox/internal/source/backend"
	"github.com/nhle/mailbox/internal/source/gmail"
	"github.com/nhle/mailbox/internal/source/imap"
	"github.com/nhle/mailbox/internal/store"
)

const (
	connectTimeout   = 30 * time.Second
	authorizeTimeout = 5 * time.Minute
)

// Secrets stores per-account credentials.
type Secrets interface {
	Get(key string) (string, error)
	Set(key string, value string) error
	Delete(key string) error
}

// ConnectFunc builds a signed-in fetcher for an account.
type ConnectFunc func(ctx context.Context, acct model.AccountConfig) (source.Fetcher, *model.UserIdentity, error)

// connectedMsg is sent when an account has a ready fetcher.
type connectedMsg struct {
	account   model.AccountConfig
	fetcher   source.Fetcher
	user      *model.UserIdentity
	gen       mailbox.Generation
	fromSetup bool
}

// connectFailedMsg is sent when signing in to an account failed.
type connectFailedMsg struct {
	account   model.AccountConfig
	err       error
	fromSetup bool
}

// authURLMsg carries the Google consent URL to the setup view.
type authURLMsg struct {
	url string
}

// authorizedMsg is sent when the Google consent flow finished.
type authorizedMsg struct {
	account model.AccountConfig
	err     error
}

// loggedOutMsg is sent once the session and credentials are cleared.
type loggedOutMsg struct {
	account model.AccountConfig
}

// connector builds fetchers from account configs, loading secrets from
// the keyring.
type connector struct {
	secrets Secrets
	kv      store.KV
	sync    model.SyncConfig
	logger  zerolog.Logger
}

// Connect dispatches on the account type.
func (c connector) Connect(ctx context.Context, acct model.AccountConfig) (source.Fetcher, *model.UserIdentity, error) {
	switch model.AccountType(acct.Type) {
	case model.AccountBackend:
		return c.backend(ctx, acct)
	case model.AccountIMAP:
		return c.imap(ctx, acct)
	case model.AccountGmail:
		return c.gmail(ctx, acct)
	default:
		return nil, nil, fmt.Errorf("unknown account type %q", acct.Type)
	}
}

// backend checks for a live cookie session and logs in with the stored
// password when there is none.
func (c connector) backend(ctx context.Context, acct model.AccountConfig) (source.Fetcher, *model.UserIdentity, error) {
	password, err := c.secret(credential.BackendPasswordKey(acct.ID), source.SourceTypeBackend)
	if err != nil {
		return nil, nil, err
	}

	a := backend.NewAdapter(acct.BaseURL, "", c.logger)
	u, err := a.Me(ctx)
	if err != nil {
		return nil, nil, err
	}
	if u == nil {
		u, err = a.Login(ctx, acct.Config["email"], password)
		if err != nil {
			return nil, nil, fmt.Errorf("signing in: %w", err)
		}
	}
	return a, u, nil
}

func (c connector) imap(ctx context.Context, acct model.AccountConfig) (source.Fetcher, *model.UserIdentity, error) {
	password, err := c.secret(credential.IMAPPasswordKey(acct.ID), source.SourceTypeIMAP)
	if err != nil {
		return nil, nil, err
	}

	port := acct.Config["port"]
	if port == "" {
		port = "993"
	}
	useTLS := true
	if v, err := strconv.ParseBool(acct.Config["tls"]); err == nil {
		useTLS = v
	}

	a := imap.NewAdapter(acct.BaseURL, port, acct.Config["username"], password, useTLS, c.sync.MaxResults, c.logger)
	u, err := a.Me(ctx)
	if err != nil {
		return nil, nil, err
	}
	return a, u, nil
}

func (c connector) gmail(ctx context.Context, acct model.AccountConfig) (source.Fetcher, *model.UserIdentity, error) {
	cfg, err := gmail.LoadOAuthConfig(acct.Config["client_secret"])
	if err != nil {
		return nil, nil, err
	}

	// The token source refreshes for the life of the adapter, so it must
	// not inherit the connect deadline.
	a, err := gmail.NewAdapter(context.Background(), cfg, c.secrets, c.kv, gmail.Options{
		AccountID:  acct.ID,
		TokenKey:   credential.GmailTokenKey(acct.ID),
		MaxResults: c.sync.MaxResults,
	}, c.logger)
	if err != nil {
		return nil, nil, err
	}

	u, err := a.Me(ctx)
	if err != nil {
		return nil, nil, err
	}
	if u == nil {
		return nil, nil, &source.AuthError{SourceType: source.SourceTypeGmail, Message: "token was rejected"}
	}
	return a, u, nil
}

func (c connector) secret(key string, st source.SourceType) (string, error) {
	v, err := c.secrets.Get(key)
	if credential.IsNotFound(err) {
		return "", &source.AuthError{SourceType: st, Message: "no stored credentials"}
	}
	if err != nil {
		return "", err
	}
	return v, nil
}

// secretKey returns the keyring entry holding the account's secret.
func secretKey(acct model.AccountConfig) string {
	switch model.AccountType(acct.Type) {
	case model.AccountBackend:
		return credential.BackendPasswordKey(acct.ID)
	case model.AccountIMAP:
		return credential.IMAPPasswordKey(acct.ID)
	case model.AccountGmail:
		return credential.GmailTokenKey(acct.ID)
	default:
		return ""
	}
}

// connect returns a command that signs in to acct. The session generation
// is captured first so a result that outlives a logout is dropped.
func (m Model) connect(acct model.AccountConfig, fromSetup bool) tea.Cmd {
	gen := m.session.Generation()
	connectFn := m.connectFn
	logger := m.logger

	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
		defer cancel()

		f, u, err := connectFn(ctx, acct)
		if err != nil {
			logger.Warn().Err(err).Str("account", acct.ID).Msg("connecting account failed")
			return connectFailedMsg{account: acct, err: err, fromSetup: fromSetup}
		}
		logger.Info().Str("account", acct.ID).Str("type", acct.Type).Msg("account connected")
		return connectedMsg{account: acct, fetcher: f, user: u, gen: gen, fromSetup: fromSetup}
	}
}

// authorize runs the Google consent flow for acct. The consent URL is
// delivered separately through urls so the setup view can show it while
// the flow waits for the redirect. urls is closed when the flow ends.
func (m Model) authorize(acct model.AccountConfig, urls chan<- string) tea.Cmd {
	secrets := m.secrets

	return func() tea.Msg {
		defer close(urls)

		cfg, err := gmail.LoadOAuthConfig(acct.Config["client_secret"])
		if err != nil {
			return authorizedMsg{account: acct, err: err}
		}

		ctx, cancel := context.WithTimeout(context.Background(), authorizeTimeout)
		defer cancel()

		err = gmail.Authorize(ctx, cfg, secrets, credential.GmailTokenKey(acct.ID), func(u string) {
			select {
			case urls <- u:
			default:
			}
		})
		return authorizedMsg{account: acct, err: err}
	}
}

// waitForAuthURL returns a command that delivers the next consent URL.
func waitForAuthURL(urls <-chan string) tea.Cmd {
	return func() tea.Msg {
		u, ok := <-urls
		if !ok {
			return nil
		}
		return authURLMsg{url: u}
	}
}

// logout ends the server session, clears the mailbox and forgets the
// account's secret.
func (m Model) logout(acct model.AccountConfig, f source.Fetcher) tea.Cmd {
	session := m.session
	notifications := m.store
	secrets := m.secrets
	logger := m.logger

	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
		defer cancel()

		if n, ok := f.(source.LogoutNotifier); ok {
			if err := n.Logout(ctx); err != nil {
				logger.Warn().Err(err).Msg("server logout failed")
			}
		}
		if err := session.Logout(ctx); err != nil {
			logger.Warn().Err(err).Msg("clearing mailbox failed")
		}
		if err := notifications.ClearNotifications(ctx); err != nil {
			logger.Warn().Err(err).Msg("clearing notifications failed")
		}
		if key := secretKey(acct); key != "" {
			if err := secrets.Delete(key); err != nil {
				logger.Warn().Err(err).Msg("deleting credentials failed")
			}
		}
		return loggedOutMsg{account: acct}
	}
}
