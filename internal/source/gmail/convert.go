package gmail

import (
	"encoding/base64"
	"slices"
	"strings"

	gmailv1 "google.golang.org/api/gmail/v1"

	"github.com/nhle/mailbox/internal/identity"
	"github.com/nhle/mailbox/internal/ingest"
	"github.com/nhle/mailbox/internal/model"
)

const inboxLabel = "INBOX"

// bundleFromThreads converts fetched threads into a full payload. A thread
// holding a single message is presented as an individual email.
func bundleFromThreads(threads []*gmailv1.Thread) ingest.Payload {
	p := ingest.Payload{Kind: ingest.KindBundle}
	for _, t := range threads {
		if t == nil || len(t.Messages) == 0 {
			continue
		}
		if len(t.Messages) == 1 {
			p.IndividualEmails = append(p.IndividualEmails, messageToRaw(t.Messages[0]))
			continue
		}
		p.Threads = append(p.Threads, threadToRaw(t))
	}
	return p
}

// deltaFromThreads converts reloaded threads into a delta, using the same
// single-message split as bundleFromThreads.
func deltaFromThreads(threads []*gmailv1.Thread) ingest.DeltaPayload {
	b := bundleFromThreads(threads)
	return ingest.DeltaPayload{
		HasNew:         len(b.Threads)+len(b.IndividualEmails) > 0,
		NewEmails:      b.IndividualEmails,
		UpdatedThreads: b.Threads,
	}
}

func threadToRaw(t *gmailv1.Thread) ingest.RawThread {
	rt := ingest.RawThread{ThreadID: t.Id}
	for _, m := range t.Messages {
		if m == nil {
			continue
		}
		rt.Messages = append(rt.Messages, messageToRaw(m))
	}
	return rt
}

// addedThreadIDs returns the threads that gained an INBOX message, in
// first-seen order.
func addedThreadIDs(history []*gmailv1.History) []string {
	var ids []string
	seen := make(map[string]bool)
	for _, h := range history {
		if h == nil {
			continue
		}
		for _, added := range h.MessagesAdded {
			if added == nil || added.Message == nil {
				continue
			}
			m := added.Message
			if !slices.Contains(m.LabelIds, inboxLabel) || seen[m.ThreadId] {
				continue
			}
			seen[m.ThreadId] = true
			ids = append(ids, m.ThreadId)
		}
	}
	return ids
}

// messageToRaw extracts the fields of a Gmail message.
func messageToRaw(m *gmailv1.Message) ingest.RawMessage {
	raw := ingest.RawMessage{
		ID:           m.Id,
		ThreadID:     m.ThreadId,
		Snippet:      m.Snippet,
		LabelIDs:     m.LabelIds,
		InternalDate: ingest.FlexInt(m.InternalDate),
	}
	if m.Payload == nil {
		return raw
	}

	headers := headerMap(m.Payload.Headers)
	raw.From = headers["from"]
	raw.Subject = headers["subject"]
	raw.Date = ingest.FlexString(headers["date"])
	raw.To = ingest.FlexList(identity.SplitAddressList(headers["to"]))
	raw.Cc = ingest.FlexList(identity.SplitAddressList(headers["cc"]))

	body, bodyType := extractBestBody(m.Payload)
	raw.Body = body
	raw.BodyType = string(bodyType)
	raw.Attachments = findAttachments(m.Payload, nil)
	return raw
}

func headerMap(headers []*gmailv1.MessagePartHeader) map[string]string {
	out := make(map[string]string, len(headers))
	for _, h := range headers {
		if h == nil {
			continue
		}
		out[strings.ToLower(h.Name)] = h.Value
	}
	return out
}

// extractBestBody walks a MIME part tree and returns the first text/html
// body, falling back to the first text/plain body.
func extractBestBody(part *gmailv1.MessagePart) (string, model.BodyType) {
	if part == nil {
		return "", model.BodyPlain
	}

	mime := strings.ToLower(part.MimeType)
	if part.Body != nil && part.Body.Data != "" {
		switch mime {
		case "text/html":
			return decodeBase64URL(part.Body.Data), model.BodyHTML
		case "text/plain":
			return decodeBase64URL(part.Body.Data), model.BodyPlain
		}
	}

	var plain string
	for _, sub := range part.Parts {
		body, kind := extractBestBody(sub)
		if body == "" {
			continue
		}
		if kind == model.BodyHTML {
			return body, model.BodyHTML
		}
		if plain == "" {
			plain = body
		}
	}
	return plain, model.BodyPlain
}

// findAttachments collects metadata for every part that carries a filename
// and an attachment id.
func findAttachments(part *gmailv1.MessagePart, acc []model.Attachment) []model.Attachment {
	if part == nil {
		return acc
	}
	if part.Filename != "" && part.Body != nil && part.Body.AttachmentId != "" {
		acc = append(acc, model.Attachment{
			Filename:     part.Filename,
			MIMEType:     part.MimeType,
			Size:         part.Body.Size,
			AttachmentID: part.Body.AttachmentId,
		})
	}
	for _, sub := range part.Parts {
		acc = findAttachments(sub, acc)
	}
	return acc
}

func decodeBase64URL(data string) string {
	b, err := base64.URLEncoding.DecodeString(data)
	if err != nil {
		// Gmail uses unpadded base64url
		b, err = base64.RawURLEncoding.DecodeString(data)
		if err != nil {
			return ""
		}
	}
	return string(b)
}
