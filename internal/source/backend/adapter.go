package backend

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/nhle/mailbox/internal/ingest"
	"github.com/nhle/mailbox/internal/model"
	"github.com/nhle/mailbox/internal/source"
)

const (
	pathFetch    = "/fetch-emails"
	pathCheckNew = "/check-new-emails"
	pathMe       = "/me"
	pathLogin    = "/login"
	pathLogout   = "/logout"
)

// Adapter implements source.Fetcher for the HTTP mail backend.
type Adapter struct {
	client *Client
}

// NewAdapter creates a backend source adapter.
func NewAdapter(baseURL, token string, logger zerolog.Logger) *Adapter {
	return &Adapter{client: NewClient(baseURL, token, logger)}
}

// Type returns the source type identifier for the backend.
func (a *Adapter) Type() source.SourceType {
	return source.SourceTypeBackend
}

// FetchAll retrieves the complete mailbox, either a flat message list or a
// thread bundle.
func (a *Adapter) FetchAll(ctx context.Context) (ingest.Payload, error) {
	body, err := a.client.Get(ctx, pathFetch)
	if err != nil {
		return ingest.Payload{}, err
	}
	payload, err := ingest.Decode(body)
	if err != nil {
		return ingest.Payload{}, fmt.Errorf("decoding %s: %w", pathFetch, err)
	}
	return payload, nil
}

// CheckNew asks the backend for changes since its last check.
func (a *Adapter) CheckNew(ctx context.Context) (ingest.DeltaPayload, error) {
	body, err := a.client.Get(ctx, pathCheckNew)
	if err != nil {
		return ingest.DeltaPayload{}, err
	}
	delta, err := ingest.DecodeDelta(body)
	if err != nil {
		return ingest.DeltaPayload{}, fmt.Errorf("decoding %s: %w", pathCheckNew, err)
	}
	return delta, nil
}

// Me returns the signed-in user. A 401 means no session and yields nil.
func (a *Adapter) Me(ctx context.Context) (*model.UserIdentity, error) {
	body, err := a.client.Get(ctx, pathMe)
	if isUnauthenticated(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return ingest.DecodeUser(body)
}

// Login starts a cookie session with email and password.
func (a *Adapter) Login(ctx context.Context, email, password string) (*model.UserIdentity, error) {
	body, err := a.client.Post(ctx, pathLogin, map[string]string{
		"email":    email,
		"password": password,
	})
	if err != nil {
		return nil, err
	}
	u, err := ingest.DecodeUser(body)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, &source.AuthError{SourceType: source.SourceTypeBackend, Message: "login returned no user"}
	}
	return u, nil
}

// Logout ends the server-side session.
func (a *Adapter) Logout(ctx context.Context) error {
	if _, err := a.client.Post(ctx, pathLogout, struct{}{}); err != nil {
		return fmt.Errorf("logging out: %w", err)
	}
	return nil
}
