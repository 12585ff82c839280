package app

import (
	"fmt"
	"strings"

	"github.com/nhle/mailbox/internal/model"
	appsync "github.com/nhle/mailbox/internal/sync"
	"github.com/nhle/mailbox/internal/theme"
	"github.com/nhle/mailbox/internal/ui/command"
	helpview "github.com/nhle/mailbox/internal/ui/help"
)

// commands lists the palette commands in the order help shows them.
var commands = []helpview.Command{
	{Name: command.Refresh, Description: "fetch the whole mailbox now"},
	{Name: command.Jobs, Description: "toggle the jobs-only feed"},
	{Name: command.Setup, Description: "add or change the mail account"},
	{Name: command.Logout, Description: "sign out and clear the local mailbox"},
	{Name: command.Help, Description: "show this help"},
	{Name: command.Quit, Description: "exit"},
}

func commandNames() []string {
	names := make([]string, 0, len(commands))
	for _, c := range commands {
		names = append(names, c.Name)
	}
	return names
}

// upsertAccount makes acct the single enabled account of cfg.
func upsertAccount(cfg *model.AppConfig, acct model.AccountConfig) {
	acct.Enabled = true
	found := false
	for i := range cfg.Accounts {
		if cfg.Accounts[i].ID == acct.ID {
			cfg.Accounts[i] = acct
			found = true
			continue
		}
		cfg.Accounts[i].Enabled = false
	}
	if !found {
		cfg.Accounts = append(cfg.Accounts, acct)
	}
}

// disableAccount marks the account with id as signed out.
func disableAccount(cfg *model.AppConfig, id string) {
	for i := range cfg.Accounts {
		if cfg.Accounts[i].ID == id {
			cfg.Accounts[i].Enabled = false
		}
	}
}

// accountLabel describes the account for the header.
func accountLabel(acct model.AccountConfig, user *model.UserIdentity) string {
	if acct.ID == "" {
		return ""
	}
	name := acct.Name
	if user != nil && user.Email != "" {
		name = user.Email
	}
	return theme.AccountLabelStyle(acct.Type).Render(acct.Type) + " " + name
}

// syncLabel renders the poller state for the header.
func syncLabel(p *appsync.Poller, connecting bool) string {
	if connecting {
		return theme.SyncStyle("syncing").Render("connecting")
	}
	if p == nil {
		return theme.SyncStyle("offline").Render("offline")
	}

	st := p.GetStatus()
	switch st.State {
	case appsync.SyncRunning:
		return theme.SyncStyle("syncing").Render("syncing")
	case appsync.SyncError:
		return theme.SyncStyle("error").Render("sync failed")
	}
	if st.LastSync.IsZero() {
		return theme.SyncStyle("idle").Render("idle")
	}
	return theme.SyncStyle("idle").Render("synced " + st.LastSync.Format("15:04"))
}

// itemCount formats the number of feed items.
func itemCount(n int) string {
	if n == 1 {
		return "1 item"
	}
	return fmt.Sprintf("%d items", n)
}

// errorText shortens err for the status bar.
func errorText(err error) string {
	msg := err.Error()
	if i := strings.IndexByte(msg, '\n'); i >= 0 {
		msg = msg[:i]
	}
	return msg
}
