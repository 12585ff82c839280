package imap

import (
	"fmt"
	"strings"
	"time"

	"github.com/nhle/mailbox/internal/ingest"
	"github.com/nhle/mailbox/internal/mailtext"
	"github.com/nhle/mailbox/internal/model"
)

const snippetLength = 200

// threadKey returns the id shared by every message of a conversation: the
// first References entry, else In-Reply-To, else the message's own id.
func threadKey(m ParsedMessage) string {
	if len(m.References) > 0 {
		return m.References[0]
	}
	if len(m.InReplyTo) > 0 {
		return m.InReplyTo[0]
	}
	return messageID(m)
}

// messageID falls back to the UID when the Message-ID header is missing.
func messageID(m ParsedMessage) string {
	if m.MessageID != "" {
		return m.MessageID
	}
	return fmt.Sprintf("uid-%d", m.UID)
}

// group partitions messages by thread key, preserving first-seen order.
func group(msgs []ParsedMessage) ([]string, map[string][]ParsedMessage) {
	var order []string
	groups := make(map[string][]ParsedMessage)
	for _, m := range msgs {
		key := threadKey(m)
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], m)
	}
	return order, groups
}

// bundle builds a full fetch payload. Conversations with more than one
// message become threads; the rest are individual emails.
func bundle(msgs []ParsedMessage) ingest.Payload {
	p := ingest.Payload{Kind: ingest.KindBundle}
	order, groups := group(msgs)
	for _, key := range order {
		g := groups[key]
		if len(g) == 1 {
			p.IndividualEmails = append(p.IndividualEmails, toRaw(g[0]))
			continue
		}
		p.Threads = append(p.Threads, toRawThread(key, g))
	}
	return p
}

// delta builds an incremental payload. A message that continues a known
// conversation updates it, even if the conversation was a single email.
func delta(msgs []ParsedMessage, known map[string]bool) ingest.DeltaPayload {
	d := ingest.DeltaPayload{HasNew: len(msgs) > 0}
	order, groups := group(msgs)
	for _, key := range order {
		g := groups[key]
		switch {
		case known[key]:
			d.UpdatedThreads = append(d.UpdatedThreads, toRawThread(key, g))
		case len(g) > 1:
			d.NewThreads = append(d.NewThreads, toRawThread(key, g))
		default:
			d.NewEmails = append(d.NewEmails, toRaw(g[0]))
		}
	}
	return d
}

func toRawThread(key string, msgs []ParsedMessage) ingest.RawThread {
	t := ingest.RawThread{ThreadID: key}
	for _, m := range msgs {
		t.Messages = append(t.Messages, toRaw(m))
	}
	return t
}

func toRaw(m ParsedMessage) ingest.RawMessage {
	body, bodyType := m.TextBody, model.BodyPlain
	if strings.TrimSpace(body) == "" && m.HTMLBody != "" {
		body, bodyType = m.HTMLBody, model.BodyHTML
	}

	snippetSource := body
	if bodyType == model.BodyHTML {
		snippetSource = mailtext.StripHTML(body)
	}

	raw := ingest.RawMessage{
		ID:       messageID(m),
		ThreadID: threadKey(m),
		From:     m.From,
		Subject:  m.Subject,
		Snippet:  mailtext.Snippet(snippetSource, snippetLength),
		Body:     body,
		BodyType: string(bodyType),
		To:       ingest.FlexList(m.To),
		Cc:       ingest.FlexList(m.Cc),
		LabelIDs: m.Flags,
	}
	if !m.Date.IsZero() {
		raw.Date = ingest.FlexString(m.Date.Format(time.RFC1123Z))
		raw.InternalDate = ingest.FlexInt(m.Date.UnixMilli())
	}
	for _, a := range m.Attachments {
		raw.Attachments = append(raw.Attachments, model.Attachment{
			Filename: a.Filename,
			MIMEType: a.MIMEType,
			Size:     a.Size,
		})
	}
	return raw
}
