package imap

import (
	"context"
	"fmt"
	"time"

	goimap "github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"

	"github.com/nhle/mailbox/internal/source"
)

// IMAPClient wraps go-imap v2 for connecting to and reading an INBOX.
type IMAPClient struct {
	host     string
	port     string
	username string
	password string
	tls      bool
}

// NewIMAPClient creates a new IMAP client configuration.
func NewIMAPClient(
	host, port, username, password string, tls bool,
) *IMAPClient {
	return &IMAPClient{
		host:     host,
		port:     port,
		username: username,
		password: password,
		tls:      tls,
	}
}

// Connect establishes a connection to the IMAP server, authenticates,
// and returns the connected client. The connection is closed if ctx is
// cancelled before the caller logs out.
func (c *IMAPClient) Connect(
	ctx context.Context,
) (*imapclient.Client, func(), error) {
	addr := c.host + ":" + c.port

	var client *imapclient.Client
	var err error

	if c.tls {
		client, err = imapclient.DialTLS(addr, nil)
	} else {
		client, err = imapclient.DialStartTLS(addr, nil)
	}
	if err != nil {
		return nil, nil, &source.TransportError{
			SourceType: source.SourceTypeIMAP,
			Err:        fmt.Errorf("connecting to IMAP %s: %w", addr, err),
		}
	}

	stop := context.AfterFunc(ctx, func() { _ = client.Close() })
	release := func() {
		stop()
		_ = client.Logout().Wait()
	}

	if err := client.Login(c.username, c.password).Wait(); err != nil {
		release()
		return nil, nil, &source.AuthError{
			SourceType: source.SourceTypeIMAP,
			Message: fmt.Sprintf(
				"authentication failed for %s: %v",
				c.username, err,
			),
		}
	}

	return client, release, nil
}

// FetchSince selects INBOX and returns messages with a UID greater than
// afterUID. When afterUID is zero it returns the newest limit messages
// received within window instead.
func (c *IMAPClient) FetchSince(
	ctx context.Context,
	afterUID uint32,
	window time.Duration,
	limit int,
) (FetchResult, error) {
	client, release, err := c.Connect(ctx)
	if err != nil {
		return FetchResult{}, err
	}
	defer release()

	sel, err := client.Select("INBOX", &goimap.SelectOptions{ReadOnly: true}).Wait()
	if err != nil {
		return FetchResult{}, fmt.Errorf("selecting INBOX: %w", err)
	}
	res := FetchResult{UIDValidity: sel.UIDValidity}

	criteria := &goimap.SearchCriteria{}
	if afterUID > 0 {
		criteria.UID = []goimap.UIDSet{{
			goimap.UIDRange{Start: goimap.UID(afterUID + 1), Stop: 0},
		}}
	} else {
		criteria.Since = time.Now().Add(-window)
	}

	searchData, err := client.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return res, fmt.Errorf("searching messages: %w", err)
	}

	// "n:*" always matches the highest UID, even when it is below n.
	var uids []goimap.UID
	for _, uid := range searchData.AllUIDs() {
		if uint32(uid) > afterUID {
			uids = append(uids, uid)
		}
	}
	if len(uids) == 0 {
		return res, nil
	}

	// Limit the number of UIDs to fetch (take most recent)
	if limit > 0 && len(uids) > limit {
		uids = uids[len(uids)-limit:]
	}

	bodySection := &goimap.FetchItemBodySection{Peek: true}
	fetchCmd := client.Fetch(goimap.UIDSetNum(uids...), &goimap.FetchOptions{
		Flags:       true,
		UID:         true,
		BodySection: []*goimap.FetchItemBodySection{bodySection},
	})
	defer fetchCmd.Close()

	for {
		msg := fetchCmd.Next()
		if msg == nil {
			break
		}

		buf, err := msg.Collect()
		if err != nil {
			continue
		}

		raw := buf.FindBodySection(bodySection)
		if raw == nil {
			continue
		}

		flags := make([]string, 0, len(buf.Flags))
		for _, f := range buf.Flags {
			flags = append(flags, string(f))
		}

		parsed, err := parseMessage(uint32(buf.UID), flags, raw)
		if err != nil {
			continue
		}
		res.Messages = append(res.Messages, parsed)
	}

	if err := fetchCmd.Close(); err != nil {
		return res, fmt.Errorf("fetching messages: %w", err)
	}

	return res, nil
}
