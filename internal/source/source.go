package source

import (
	"context"
	"errors"
	"fmt"

	"github.com/nhle/mailbox/internal/ingest"
	"github.com/nhle/mailbox/internal/model"
)

// AuthError indicates that authentication has failed or expired for a source.
// It is returned by source clients when a 401 response is received.
type AuthError struct {
	SourceType SourceType
	Message    string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth error (%s): %s", e.SourceType, e.Message)
}

// IsAuthError reports whether err (or any error in its chain) is an AuthError.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

// TransportError means the mail server could not be reached at all.
type TransportError struct {
	SourceType SourceType
	Err        error
}

func (e *TransportError) Error() string {
	return "Unable to connect to the server"
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsTransportError reports whether err (or any error in its chain) is a
// TransportError.
func IsTransportError(err error) bool {
	var tErr *TransportError
	return errors.As(err, &tErr)
}

// ServerError is an error reported by the server in its response body.
type ServerError struct {
	SourceType SourceType
	Status     int
	Message    string
}

func (e *ServerError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s server error (HTTP %d)", e.SourceType, e.Status)
	}
	return fmt.Sprintf("%s server error (HTTP %d): %s", e.SourceType, e.Status, e.Message)
}

// IsServerError reports whether err (or any error in its chain) is a
// ServerError.
func IsServerError(err error) bool {
	var sErr *ServerError
	return errors.As(err, &sErr)
}

// SourceType identifies the kind of mail provider.
type SourceType string

const (
	SourceTypeBackend SourceType = "backend"
	SourceTypeIMAP    SourceType = "imap"
	SourceTypeGmail   SourceType = "gmail"
)

// Fetcher defines the contract that every mail provider must implement.
// Implementations return raw payloads; validation and normalization happen
// in the ingest package.
type Fetcher interface {
	// Type returns the source type identifier.
	Type() SourceType

	// FetchAll retrieves the complete mailbox.
	FetchAll(ctx context.Context) (ingest.Payload, error)

	// CheckNew retrieves what changed since the previous call.
	CheckNew(ctx context.Context) (ingest.DeltaPayload, error)

	// Me returns the authenticated user, or nil when the provider has no
	// active session.
	Me(ctx context.Context) (*model.UserIdentity, error)
}

// LogoutNotifier is implemented by fetchers that hold a server-side session.
type LogoutNotifier interface {
	Logout(ctx context.Context) error
}
