package ingest

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/nhle/mailbox/internal/identity"
	"github.com/nhle/mailbox/internal/model"
)

// FlexString decodes a JSON string or number into its text form.
type FlexString string

func (f *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = FlexString(n.String())
	return nil
}

// FlexInt decodes epoch millis sent either as a number or a numeric string.
// Non-numeric strings decode to 0.
type FlexInt int64

func (f *FlexInt) UnmarshalJSON(data []byte) error {
	var s FlexString
	if err := s.UnmarshalJSON(data); err != nil {
		return err
	}
	text := strings.TrimSpace(string(s))
	if text == "" {
		*f = 0
		return nil
	}
	if n, err := strconv.ParseInt(text, 10, 64); err == nil {
		*f = FlexInt(n)
		return nil
	}
	if fl, err := strconv.ParseFloat(text, 64); err == nil {
		*f = FlexInt(int64(fl))
		return nil
	}
	*f = 0
	return nil
}

// FlexList decodes either a JSON array of strings or a single address
// header string such as "a@x.com, B <b@y.com>".
type FlexList []string

func (f *FlexList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var list []string
		if err := json.Unmarshal(data, &list); err != nil {
			return err
		}
		*f = list
		return nil
	}
	var s FlexString
	if err := s.UnmarshalJSON(data); err != nil {
		return err
	}
	*f = identity.SplitAddressList(string(s))
	return nil
}

// RawMessage is a message as it arrives from a collaborator, before
// validation.
type RawMessage struct {
	ID           string             `json:"id"`
	ThreadID     string             `json:"threadId"`
	Sender       string             `json:"sender"`
	From         string             `json:"from"`
	SenderEmail  string             `json:"sender_email"`
	SenderPhoto  string             `json:"sender_photo"`
	Subject      string             `json:"subject"`
	Snippet      string             `json:"snippet"`
	Body         string             `json:"body"`
	BodyType     string             `json:"body_type"`
	Date         FlexString         `json:"date"`
	InternalDate FlexInt            `json:"internalDate"`
	To           FlexList           `json:"to"`
	Cc           FlexList           `json:"cc"`
	LabelIDs     []string           `json:"labelIds"`
	Attachments  []model.Attachment `json:"attachments"`
}

// RawThread is a thread as it arrives from a collaborator. Counts and
// timestamps sent alongside are ignored and recomputed.
type RawThread struct {
	ThreadID      string       `json:"threadId"`
	Subject       string       `json:"subject"`
	Participants  []string     `json:"participants"`
	Messages      []RawMessage `json:"messages"`
	LatestMessage *RawMessage  `json:"latestMessage"`
}

// Kind tags the top-level shape of a full fetch payload.
type Kind int

const (
	KindFlat Kind = iota
	KindBundle
)

func (k Kind) String() string {
	switch k {
	case KindFlat:
		return "flat"
	case KindBundle:
		return "bundle"
	default:
		return "unknown"
	}
}

// Payload is a full fetch response resolved to its tagged variant. Messages
// is set for KindFlat; Threads and IndividualEmails for KindBundle. Invalid
// counts elements that could not be decoded at all.
type Payload struct {
	Kind             Kind
	Messages         []RawMessage
	Threads          []RawThread
	IndividualEmails []RawMessage
	Invalid          int
}

// DeltaPayload is an incremental check response.
type DeltaPayload struct {
	HasNew         bool
	NewThreads     []RawThread
	NewEmails      []RawMessage
	UpdatedThreads []RawThread
	Invalid        int
}

type bundleWire struct {
	Threads          []json.RawMessage `json:"threads"`
	IndividualEmails []json.RawMessage `json:"individual_emails"`
}

type deltaWire struct {
	HasNew         bool              `json:"has_new"`
	NewThreads     []json.RawMessage `json:"new_threads"`
	NewEmails      []json.RawMessage `json:"new_emails"`
	UpdatedThreads []json.RawMessage `json:"updated_threads"`
}

// Decode resolves a full fetch response once: a JSON array is a flat
// message list, a JSON object is a thread bundle. Any other top-level value
// is a SchemaError.
func Decode(data []byte) (Payload, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return Payload{}, &SchemaError{Reason: "empty payload"}
	}

	switch trimmed[0] {
	case '[':
		var elems []json.RawMessage
		if err := json.Unmarshal(trimmed, &elems); err != nil {
			return Payload{}, &SchemaError{Reason: "decoding message list: " + err.Error()}
		}
		msgs, invalid := decodeElems[RawMessage](elems)
		return Payload{Kind: KindFlat, Messages: msgs, Invalid: invalid}, nil

	case '{':
		var b bundleWire
		if err := json.Unmarshal(trimmed, &b); err != nil {
			return Payload{}, &SchemaError{Reason: "decoding bundle: " + err.Error()}
		}
		threads, badThreads := decodeElems[RawThread](b.Threads)
		emails, badEmails := decodeElems[RawMessage](b.IndividualEmails)
		return Payload{
			Kind:             KindBundle,
			Threads:          threads,
			IndividualEmails: emails,
			Invalid:          badThreads + badEmails,
		}, nil

	default:
		return Payload{}, &SchemaError{Reason: "top level is neither an object nor an array"}
	}
}

// DecodeDelta decodes an incremental check response, which must be a JSON
// object.
func DecodeDelta(data []byte) (DeltaPayload, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return DeltaPayload{}, &SchemaError{Reason: "delta is not an object"}
	}

	var w deltaWire
	if err := json.Unmarshal(trimmed, &w); err != nil {
		return DeltaPayload{}, &SchemaError{Reason: "decoding delta: " + err.Error()}
	}

	newThreads, bad1 := decodeElems[RawThread](w.NewThreads)
	newEmails, bad2 := decodeElems[RawMessage](w.NewEmails)
	updated, bad3 := decodeElems[RawThread](w.UpdatedThreads)

	return DeltaPayload{
		HasNew:         w.HasNew,
		NewThreads:     newThreads,
		NewEmails:      newEmails,
		UpdatedThreads: updated,
		Invalid:        bad1 + bad2 + bad3,
	}, nil
}

type userWire struct {
	Email   string   `json:"email"`
	Name    string   `json:"name"`
	Photo   string   `json:"photo"`
	Picture string   `json:"picture"`
	Aliases []string `json:"aliases"`
}

// DecodeUser decodes the authenticated user, either wrapped as {"user": ...}
// or bare. A null or address-less user means unauthenticated and yields nil.
func DecodeUser(data []byte) (*model.UserIdentity, error) {
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, &SchemaError{Reason: "user is not an object"}
	}

	var env struct {
		User json.RawMessage `json:"user"`
	}
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return nil, &SchemaError{Reason: "decoding user: " + err.Error()}
	}

	body := trimmed
	if len(env.User) > 0 {
		body = env.User
		if bytes.Equal(bytes.TrimSpace(body), []byte("null")) {
			return nil, nil
		}
	}

	var u userWire
	if err := json.Unmarshal(body, &u); err != nil {
		return nil, &SchemaError{Reason: "decoding user: " + err.Error()}
	}
	if strings.TrimSpace(u.Email) == "" {
		return nil, nil
	}

	photo := u.Photo
	if photo == "" {
		photo = u.Picture
	}
	name := u.Name
	if name == "" {
		name = u.Email
	}
	return &model.UserIdentity{
		Email:   u.Email,
		Name:    name,
		Photo:   photo,
		Aliases: u.Aliases,
	}, nil
}

// decodeElems decodes each element independently so one malformed element
// does not fail its siblings.
func decodeElems[T any](elems []json.RawMessage) ([]T, int) {
	out := make([]T, 0, len(elems))
	invalid := 0
	for _, e := range elems {
		var v T
		if err := json.Unmarshal(e, &v); err != nil {
			invalid++
			continue
		}
		out = append(out, v)
	}
	return out, invalid
}
