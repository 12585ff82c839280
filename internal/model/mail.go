package model

import (
	"cmp"
	"net/mail"
	"slices"
	"strconv"
	"strings"
	"time"
)

// BodyType identifies how a message body is encoded.
type BodyType string

const (
	BodyPlain BodyType = "plain"
	BodyHTML  BodyType = "html"
)

// Attachment holds metadata about a message attachment. Content is never
// transferred.
type Attachment struct {
	Filename     string `json:"filename"`
	MIMEType     string `json:"mimeType,omitempty"`
	Size         int64  `json:"size,omitempty"`
	AttachmentID string `json:"attachmentId,omitempty"`
}

// Message is a single email. It is immutable once ingested.
type Message struct {
	ID           string       `json:"id"`
	ThreadID     string       `json:"threadId,omitempty"`
	Sender       string       `json:"sender,omitempty"`
	SenderEmail  string       `json:"sender_email,omitempty"`
	SenderPhoto  string       `json:"sender_photo,omitempty"`
	Subject      string       `json:"subject,omitempty"`
	Snippet      string       `json:"snippet,omitempty"`
	Body         string       `json:"body,omitempty"`
	BodyType     BodyType     `json:"body_type,omitempty"`
	Date         string       `json:"date,omitempty"`
	InternalDate int64        `json:"internalDate,omitempty"`
	To           []string     `json:"to,omitempty"`
	Cc           []string     `json:"cc,omitempty"`
	LabelIDs     []string     `json:"labelIds,omitempty"`
	Attachments  []Attachment `json:"attachments,omitempty"`
}

// Timestamp returns the ordering key of the message in epoch millis:
// InternalDate when set, otherwise the parsed Date field, otherwise 0.
func (m Message) Timestamp() int64 {
	if m.InternalDate != 0 {
		return m.InternalDate
	}
	return ParseDate(m.Date)
}

// dateLayouts are tried in order after net/mail's own RFC 5322 parser.
var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	time.RFC1123Z,
	time.RFC1123,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseDate converts a raw date field to epoch millis. All-digit values are
// taken as millis already. Unparseable input yields 0.
func ParseDate(s string) int64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	if t, err := mail.ParseDate(s); err == nil {
		return t.UnixMilli()
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UnixMilli()
		}
	}
	return 0
}

// SortNewestFirst orders messages by descending timestamp. Ties keep their
// relative order.
func SortNewestFirst(msgs []Message) {
	slices.SortStableFunc(msgs, func(a, b Message) int {
		return cmp.Compare(b.Timestamp(), a.Timestamp())
	})
}

// Thread is a conversation. Messages are ordered newest first.
type Thread struct {
	ThreadID     string    `json:"threadId"`
	Subject      string    `json:"subject,omitempty"`
	Participants []string  `json:"participants,omitempty"`
	Messages     []Message `json:"messages"`
}

// MessageCount is always the live length of Messages.
func (t Thread) MessageCount() int {
	return len(t.Messages)
}

// LatestMessage returns the newest message of the thread.
func (t Thread) LatestMessage() (Message, bool) {
	if len(t.Messages) == 0 {
		return Message{}, false
	}
	return t.Messages[0], true
}

// LatestTimestamp is the ordering key of the thread.
func (t Thread) LatestTimestamp() int64 {
	latest, ok := t.LatestMessage()
	if !ok {
		return 0
	}
	return latest.Timestamp()
}

// HasMessage reports whether a message with the given id is in the thread.
func (t Thread) HasMessage(id string) bool {
	for _, m := range t.Messages {
		if m.ID == id {
			return true
		}
	}
	return false
}

// Snapshot is the authoritative client-side mailbox state. Both slices are
// deduplicated by key and kept in insertion order.
type Snapshot struct {
	Threads          []Thread  `json:"threads"`
	IndividualEmails []Message `json:"individual_emails"`
}

// TotalCount is the number of top-level items in the snapshot.
func (s Snapshot) TotalCount() int {
	return len(s.Threads) + len(s.IndividualEmails)
}

// IsEmpty reports whether the snapshot has no items.
func (s Snapshot) IsEmpty() bool {
	return s.TotalCount() == 0
}

// FindThread returns the thread with the given id.
func (s Snapshot) FindThread(threadID string) (Thread, bool) {
	for _, t := range s.Threads {
		if t.ThreadID == threadID {
			return t, true
		}
	}
	return Thread{}, false
}

// UserIdentity is the authenticated user as reported by the provider.
type UserIdentity struct {
	Email   string   `json:"email"`
	Name    string   `json:"name,omitempty"`
	Photo   string   `json:"photo,omitempty"`
	Aliases []string `json:"aliases,omitempty"`
}
