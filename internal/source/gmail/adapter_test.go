package gmail

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	gmailv1 "google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/nhle/mailbox/internal/ingest"
	"github.com/nhle/mailbox/internal/model"
	"github.com/nhle/mailbox/internal/source"
	"github.com/nhle/mailbox/internal/store"
)

func b64(s string) string { return base64.URLEncoding.EncodeToString([]byte(s)) }

func TestExtractBestBodyPrefersHTML(t *testing.T) {
	part := &gmailv1.MessagePart{
		MimeType: "multipart/alternative",
		Parts: []*gmailv1.MessagePart{
			{MimeType: "text/plain", Body: &gmailv1.MessagePartBody{Data: b64("plain")}},
			{MimeType: "text/html", Body: &gmailv1.MessagePartBody{Data: b64("<b>html</b>")}},
		},
	}
	body, kind := extractBestBody(part)
	if body != "<b>html</b>" || kind != model.BodyHTML {
		t.Fatalf("extractBestBody = %q, %q", body, kind)
	}

	part.Parts = part.Parts[:1]
	body, kind = extractBestBody(part)
	if body != "plain" || kind != model.BodyPlain {
		t.Fatalf("extractBestBody = %q, %q", body, kind)
	}
}

func TestMessageToRaw(t *testing.T) {
	m := &gmailv1.Message{
		Id:           "m1",
		ThreadId:     "t1",
		InternalDate: 1700000000000,
		LabelIds:     []string{"INBOX", "UNREAD"},
		Payload: &gmailv1.MessagePart{
			MimeType: "multipart/mixed",
			Headers: []*gmailv1.MessagePartHeader{
				{Name: "From", Value: "Alice <alice@example.com>"},
				{Name: "To", Value: "bob@example.com, \"Carol, C\" <carol@example.com>"},
				{Name: "Subject", Value: "Quarterly"},
			},
			Parts: []*gmailv1.MessagePart{
				{MimeType: "text/plain", Body: &gmailv1.MessagePartBody{Data: b64("numbers")}},
				{
					MimeType: "application/pdf",
					Filename: "q3.pdf",
					Body:     &gmailv1.MessagePartBody{AttachmentId: "att1", Size: 2048},
				},
			},
		},
	}

	raw := messageToRaw(m)
	if raw.ID != "m1" || raw.ThreadID != "t1" || raw.Subject != "Quarterly" {
		t.Fatalf("raw = %+v", raw)
	}
	if len(raw.To) != 2 || raw.To[1] != "carol@example.com" {
		t.Fatalf("To = %v", raw.To)
	}
	if len(raw.Attachments) != 1 || raw.Attachments[0].AttachmentID != "att1" {
		t.Fatalf("attachments = %+v", raw.Attachments)
	}

	msg, ok := ingest.NormalizeMessage(raw)
	if !ok || msg.Sender != "Alice" || msg.SenderEmail != "alice@example.com" || msg.Timestamp() != 1700000000000 {
		t.Fatalf("normalized = %+v", msg)
	}
}

func TestBundleSplitsSingleMessageThreads(t *testing.T) {
	threads := []*gmailv1.Thread{
		{Id: "t1", Messages: []*gmailv1.Message{{Id: "a", ThreadId: "t1"}, {Id: "b", ThreadId: "t1"}}},
		{Id: "t2", Messages: []*gmailv1.Message{{Id: "c", ThreadId: "t2"}}},
		{Id: "t3"},
	}
	p := bundleFromThreads(threads)
	if len(p.Threads) != 1 || p.Threads[0].ThreadID != "t1" {
		t.Fatalf("threads = %+v", p.Threads)
	}
	if len(p.IndividualEmails) != 1 || p.IndividualEmails[0].ID != "c" {
		t.Fatalf("emails = %+v", p.IndividualEmails)
	}
}

func TestAddedThreadIDs(t *testing.T) {
	history := []*gmailv1.History{
		{MessagesAdded: []*gmailv1.HistoryMessageAdded{
			{Message: &gmailv1.Message{Id: "1", ThreadId: "t1", LabelIds: []string{"INBOX"}}},
			{Message: &gmailv1.Message{Id: "2", ThreadId: "t2", LabelIds: []string{"SENT"}}},
		}},
		{MessagesAdded: []*gmailv1.HistoryMessageAdded{
			{Message: &gmailv1.Message{Id: "3", ThreadId: "t1", LabelIds: []string{"INBOX"}}},
			{Message: &gmailv1.Message{Id: "4", ThreadId: "t3", LabelIds: []string{"INBOX"}}},
			{Message: nil},
		}},
	}
	got := addedThreadIDs(history)
	if strings.Join(got, ",") != "t1,t3" {
		t.Fatalf("addedThreadIDs = %v", got)
	}
}

func TestMapError(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		check func(error) bool
	}{
		{"unauthorized", &googleapi.Error{Code: 401}, source.IsAuthError},
		{"forbidden", &googleapi.Error{Code: 403}, source.IsAuthError},
		{"server", &googleapi.Error{Code: 500, Message: "backend"}, source.IsServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := mapError(fmt.Errorf("wrapped: %w", tt.err)); !tt.check(got) {
				t.Fatalf("mapError = %v (%T)", got, got)
			}
		})
	}

	plain := errors.New("other")
	if mapError(plain) != plain {
		t.Fatal("unrecognized errors pass through")
	}
}

// fakeGmail serves the subset of the Gmail REST API the adapter uses.
func fakeGmail(t *testing.T) *httptest.Server {
	t.Helper()
	msg := func(id, thread, from string, ts int) string {
		return fmt.Sprintf(`{"id":%q,"threadId":%q,"internalDate":"%d","labelIds":["INBOX"],
			"payload":{"mimeType":"text/plain","headers":[{"name":"From","value":%q},{"name":"Subject","value":"Hi"}],
			"body":{"data":%q}}}`, id, thread, ts, from, b64("hello"))
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/gmail/v1/users/me/profile", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"emailAddress":"me@gmail.com","historyId":"100"}`)
	})
	mux.HandleFunc("/gmail/v1/users/me/threads", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"threads":[{"id":"t1"},{"id":"t2"}]}`)
	})
	mux.HandleFunc("/gmail/v1/users/me/threads/t1", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"id":"t1","messages":[%s,%s]}`,
			msg("m1", "t1", "Alice <alice@example.com>", 1000),
			msg("m2", "t1", "Bob <bob@example.com>", 2000))
	})
	mux.HandleFunc("/gmail/v1/users/me/threads/t2", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"id":"t2","messages":[%s]}`, msg("m3", "t2", "Carol <carol@example.com>", 3000))
	})
	mux.HandleFunc("/gmail/v1/users/me/history", func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("startHistoryId"); got != "100" {
			t.Errorf("startHistoryId = %q, want 100", got)
		}
		fmt.Fprint(w, `{"history":[{"id":"150","messagesAdded":[{"message":{"id":"m3","threadId":"t2","labelIds":["INBOX"]}},{"message":{"id":"m2","threadId":"t1","labelIds":["INBOX"]}}]}],"historyId":"160"}`)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

type memTokens map[string]string

func (m memTokens) Get(key string) (string, error) {
	v, ok := m[key]
	if !ok {
		return "", errors.New("not found")
	}
	return v, nil
}
func (m memTokens) Set(key, value string) error { m[key] = value; return nil }
func (m memTokens) Delete(key string) error     { delete(m, key); return nil }

func newTestAdapter(t *testing.T) (*Adapter, *store.MemoryStore, memTokens) {
	t.Helper()
	srv := fakeGmail(t)
	svc, err := gmailv1.NewService(context.Background(),
		option.WithHTTPClient(srv.Client()),
		option.WithEndpoint(srv.URL+"/"),
	)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	kv := store.NewMemoryStore()
	tokens := memTokens{"gmail-token-a1": `{"access_token":"x"}`}
	return newAdapter(svc, tokens, kv, Options{AccountID: "a1", TokenKey: "gmail-token-a1"}, zerolog.Nop()), kv, tokens
}

func TestAdapterFetchAndDelta(t *testing.T) {
	a, kv, tokens := newTestAdapter(t)
	ctx := context.Background()

	p, err := a.FetchAll(ctx)
	if err != nil {
		t.Fatalf("FetchAll: %v", err)
	}
	res := ingest.Normalize(p)
	if len(res.Snapshot.Threads) != 1 || len(res.Snapshot.IndividualEmails) != 1 {
		t.Fatalf("snapshot = %+v", res.Snapshot)
	}
	if hid, _, _ := kv.Get(ctx, HistoryKey("a1")); hid != "100" {
		t.Fatalf("history id = %q, want 100", hid)
	}

	d, err := a.CheckNew(ctx)
	if err != nil {
		t.Fatalf("CheckNew: %v", err)
	}
	if !d.HasNew || len(d.UpdatedThreads) != 1 || d.UpdatedThreads[0].ThreadID != "t1" {
		t.Fatalf("delta = %+v", d)
	}
	// t2 holds one message, so it arrives as an email just as FetchAll
	// presents it.
	if len(d.NewEmails) != 1 || d.NewEmails[0].ID != "m3" {
		t.Fatalf("new emails = %+v", d.NewEmails)
	}
	delta := ingest.NormalizeDelta(d).Snapshot()
	if len(delta.IndividualEmails) != 1 || delta.IndividualEmails[0].ID != "m3" {
		t.Fatalf("m3 should stay an individual email: %+v", delta)
	}
	if hid, _, _ := kv.Get(ctx, HistoryKey("a1")); hid != "160" {
		t.Fatalf("history id = %q, want 160", hid)
	}

	u, err := a.Me(ctx)
	if err != nil || u == nil || u.Email != "me@gmail.com" {
		t.Fatalf("Me = %+v, %v", u, err)
	}

	if err := a.Logout(ctx); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if _, ok := tokens["gmail-token-a1"]; ok {
		t.Fatal("token should be deleted on logout")
	}
	if _, ok, _ := kv.Get(ctx, HistoryKey("a1")); ok {
		t.Fatal("history id should be cleared on logout")
	}
}

func TestCheckNewWithoutHistoryPrimes(t *testing.T) {
	a, kv, _ := newTestAdapter(t)
	ctx := context.Background()

	d, err := a.CheckNew(ctx)
	if err != nil || d.HasNew {
		t.Fatalf("CheckNew = %+v, %v", d, err)
	}
	if hid, _, _ := kv.Get(ctx, HistoryKey("a1")); hid != "100" {
		t.Fatalf("history id = %q, want 100", hid)
	}
}
