// Package ingest validates raw collaborator payloads and converts them into
// the canonical mailbox model.
package ingest

import (
	"net/mail"
	"strings"

	"github.com/nhle/mailbox/internal/identity"
	"github.com/nhle/mailbox/internal/model"
	"github.com/nhle/mailbox/internal/reconcile"
)

// noSubject is the placeholder some providers send for a missing subject.
const noSubject = "No Subject"

// Result is a normalized full fetch.
type Result struct {
	Kind     Kind
	Snapshot model.Snapshot
	Dropped  int
}

// Warning returns a PartialDataWarning when items were dropped, else nil.
func (r Result) Warning() error {
	if r.Dropped == 0 {
		return nil
	}
	return &PartialDataWarning{Dropped: r.Dropped}
}

// DeltaResult is a normalized incremental check.
type DeltaResult struct {
	HasNew         bool
	NewThreads     []model.Thread
	NewEmails      []model.Message
	UpdatedThreads []model.Thread
	Dropped        int
}

// Warning returns a PartialDataWarning when items were dropped, else nil.
func (d DeltaResult) Warning() error {
	if d.Dropped == 0 {
		return nil
	}
	return &PartialDataWarning{Dropped: d.Dropped}
}

// Snapshot folds the delta into a snapshot suitable for reconcile.Merge.
// New threads come before updated ones; a thread listed in both is merged.
func (d DeltaResult) Snapshot() model.Snapshot {
	var threads []model.Thread
	threads = appendThreads(threads, d.NewThreads)
	threads = appendThreads(threads, d.UpdatedThreads)
	return model.Snapshot{
		Threads:          threads,
		IndividualEmails: append([]model.Message(nil), d.NewEmails...),
	}
}

// Normalize converts a decoded payload into a snapshot. Invalid threads and
// messages are dropped and counted; the rest always succeeds.
func Normalize(p Payload) Result {
	res := Result{Kind: p.Kind, Dropped: p.Invalid}

	switch p.Kind {
	case KindFlat:
		emails, dropped := normalizeEmails(p.Messages)
		res.Snapshot.IndividualEmails = emails
		res.Dropped += dropped

	case KindBundle:
		threads, dropped := normalizeThreads(p.Threads)
		res.Snapshot.Threads = threads
		res.Dropped += dropped

		emails, dropped := normalizeEmails(p.IndividualEmails)
		res.Snapshot.IndividualEmails = emails
		res.Dropped += dropped
	}

	return res
}

// NormalizeDelta converts a decoded delta the same way Normalize does.
func NormalizeDelta(p DeltaPayload) DeltaResult {
	res := DeltaResult{HasNew: p.HasNew, Dropped: p.Invalid}

	var dropped int
	res.NewThreads, dropped = normalizeThreads(p.NewThreads)
	res.Dropped += dropped
	res.UpdatedThreads, dropped = normalizeThreads(p.UpdatedThreads)
	res.Dropped += dropped
	res.NewEmails, dropped = normalizeEmails(p.NewEmails)
	res.Dropped += dropped

	return res
}

// NormalizeThread validates a single thread. It fails when the thread has
// no id, an empty message list or no message with an id. LatestMessage only
// adds to a thread that already has messages.
func NormalizeThread(raw RawThread) (model.Thread, bool) {
	threadID := strings.TrimSpace(raw.ThreadID)
	if threadID == "" || len(raw.Messages) == 0 {
		return model.Thread{}, false
	}

	candidates := raw.Messages
	if raw.LatestMessage != nil {
		candidates = append(append([]RawMessage(nil), raw.Messages...), *raw.LatestMessage)
	}

	seen := make(map[string]bool, len(candidates))
	msgs := make([]model.Message, 0, len(candidates))
	for _, rm := range candidates {
		m, ok := NormalizeMessage(rm)
		if !ok || seen[m.ID] {
			continue
		}
		seen[m.ID] = true
		m.ThreadID = threadID
		msgs = append(msgs, m)
	}
	if len(msgs) == 0 {
		return model.Thread{}, false
	}
	model.SortNewestFirst(msgs)

	subject := strings.TrimSpace(raw.Subject)
	if subject == "" || subject == noSubject {
		if s := msgs[0].Subject; s != "" {
			subject = s
		}
	}

	people := append([]string(nil), raw.Participants...)
	for _, m := range msgs {
		people = append(people, messageParticipants(m)...)
	}

	return model.Thread{
		ThreadID:     threadID,
		Subject:      subject,
		Participants: identity.Participants(people...),
		Messages:     msgs,
	}, true
}

// NormalizeMessage validates a single message. It fails only when the
// message has no id.
func NormalizeMessage(raw RawMessage) (model.Message, bool) {
	id := strings.TrimSpace(raw.ID)
	if id == "" {
		return model.Message{}, false
	}

	sender, senderEmail := raw.Sender, raw.SenderEmail
	if raw.From != "" && (sender == "" || senderEmail == "") {
		name, addr := splitFrom(raw.From)
		if sender == "" {
			sender = name
		}
		if senderEmail == "" {
			senderEmail = addr
		}
	}
	if sender == "" {
		sender = senderEmail
	}

	bodyType := model.BodyPlain
	if strings.EqualFold(raw.BodyType, string(model.BodyHTML)) {
		bodyType = model.BodyHTML
	}

	return model.Message{
		ID:           id,
		ThreadID:     strings.TrimSpace(raw.ThreadID),
		Sender:       sender,
		SenderEmail:  senderEmail,
		SenderPhoto:  identity.Photo(raw.SenderPhoto, senderEmail),
		Subject:      raw.Subject,
		Snippet:      raw.Snippet,
		Body:         raw.Body,
		BodyType:     bodyType,
		Date:         string(raw.Date),
		InternalDate: int64(raw.InternalDate),
		To:           []string(raw.To),
		Cc:           []string(raw.Cc),
		LabelIDs:     raw.LabelIDs,
		Attachments:  raw.Attachments,
	}, true
}

func normalizeThreads(raws []RawThread) ([]model.Thread, int) {
	threads := make([]model.Thread, 0, len(raws))
	index := make(map[string]int, len(raws))
	dropped := 0

	for _, rt := range raws {
		th, ok := NormalizeThread(rt)
		if !ok {
			dropped++
			continue
		}
		if i, dup := index[th.ThreadID]; dup {
			threads[i] = reconcile.MergeThread(threads[i], th)
			continue
		}
		index[th.ThreadID] = len(threads)
		threads = append(threads, th)
	}
	return threads, dropped
}

func normalizeEmails(raws []RawMessage) ([]model.Message, int) {
	emails := make([]model.Message, 0, len(raws))
	seen := make(map[string]bool, len(raws))
	dropped := 0

	for _, rm := range raws {
		m, ok := NormalizeMessage(rm)
		if !ok {
			dropped++
			continue
		}
		if seen[m.ID] {
			continue
		}
		seen[m.ID] = true
		emails = append(emails, m)
	}
	return emails, dropped
}

func appendThreads(dst, src []model.Thread) []model.Thread {
	for _, th := range src {
		merged := false
		for i := range dst {
			if dst[i].ThreadID == th.ThreadID {
				dst[i] = reconcile.MergeThread(dst[i], th)
				merged = true
				break
			}
		}
		if !merged {
			dst = append(dst, th)
		}
	}
	return dst
}

func messageParticipants(m model.Message) []string {
	out := make([]string, 0, 1+len(m.To)+len(m.Cc))
	if m.SenderEmail != "" {
		out = append(out, m.SenderEmail)
	} else if m.Sender != "" {
		out = append(out, m.Sender)
	}
	out = append(out, m.To...)
	out = append(out, m.Cc...)
	return out
}

// splitFrom splits a From header into display name and address.
func splitFrom(from string) (string, string) {
	addr, err := mail.ParseAddress(from)
	if err != nil {
		if strings.Contains(from, "@") {
			return "", strings.TrimSpace(from)
		}
		return strings.TrimSpace(from), ""
	}
	return addr.Name, addr.Address
}
