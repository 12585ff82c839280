package gmail

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	gosync "sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmailv1 "google.golang.org/api/gmail/v1"
)

// TokenStore persists the OAuth token of one account.
type TokenStore interface {
	Get(key string) (string, error)
	Set(key string, value string) error
	Delete(key string) error
}

// LoadOAuthConfig reads a Google client_secret.json.
func LoadOAuthConfig(path string) (*oauth2.Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read credentials at %s: %w", path, err)
	}
	cfg, err := google.ConfigFromJSON(b, gmailv1.GmailReadonlyScope)
	if err != nil {
		return nil, fmt.Errorf("parse oauth config: %w", err)
	}
	return cfg, nil
}

func loadToken(store TokenStore, key string) (*oauth2.Token, error) {
	data, err := store.Get(key)
	if err != nil {
		return nil, err
	}
	var tok oauth2.Token
	if err := json.Unmarshal([]byte(data), &tok); err != nil {
		return nil, fmt.Errorf("decoding stored token: %w", err)
	}
	return &tok, nil
}

func saveToken(store TokenStore, key string, tok *oauth2.Token) error {
	data, err := json.Marshal(tok)
	if err != nil {
		return fmt.Errorf("encoding token: %w", err)
	}
	return store.Set(key, string(data))
}

// persistingSource writes refreshed tokens back to the store.
type persistingSource struct {
	base  oauth2.TokenSource
	store TokenStore
	key   string

	mu   gosync.Mutex
	last string
}

func (s *persistingSource) Token() (*oauth2.Token, error) {
	tok, err := s.base.Token()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if tok.AccessToken != s.last {
		s.last = tok.AccessToken
		_ = saveToken(s.store, s.key, tok)
	}
	return tok, nil
}

// Authorize runs the browser consent flow with a loopback redirect and
// stores the resulting token. show receives the URL the user must open.
func Authorize(
	ctx context.Context,
	cfg *oauth2.Config,
	store TokenStore,
	key string,
	show func(authURL string),
) error {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return fmt.Errorf("listen on loopback: %w", err)
	}

	local := *cfg
	local.RedirectURL = fmt.Sprintf("http://127.0.0.1:%d/", ln.Addr().(*net.TCPAddr).Port)

	type result struct {
		code string
		err  error
	}
	resCh := make(chan result, 1)

	mux := http.NewServeMux()
	srv := &http.Server{
		ReadHeaderTimeout: 5 * time.Second,
		Handler:           mux,
	}
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		code := r.URL.Query().Get("code")
		if code == "" {
			http.Error(w, "Missing 'code' parameter", http.StatusBadRequest)
			select {
			case resCh <- result{err: errors.New("authorization was denied")}:
			default:
			}
			return
		}
		fmt.Fprintln(w, "Authentication complete. You can close this window.")
		select {
		case resCh <- result{code: code}:
		default:
		}
	})
	go func() { _ = srv.Serve(ln) }()
	defer func() { _ = srv.Shutdown(context.Background()) }()

	show(local.AuthCodeURL("state-token", oauth2.AccessTypeOffline, oauth2.ApprovalForce))

	select {
	case <-ctx.Done():
		return ctx.Err()
	case r := <-resCh:
		if r.err != nil {
			return r.err
		}
		tok, err := local.Exchange(ctx, r.code)
		if err != nil {
			return fmt.Errorf("token exchange: %w", err)
		}
		return saveToken(store, key, tok)
	}
}
