// Package reconcile merges incremental mailbox updates into an existing
// snapshot. Merges never mutate their inputs and never drop a message that
// was already seen.
package reconcile

import (
	"github.com/nhle/mailbox/internal/identity"
	"github.com/nhle/mailbox/internal/model"
)

// Merge unions delta into existing by key and returns a new snapshot.
//
// Existing items keep their positions and new keys are appended in delta
// order. Threads present on both sides are merged with MergeThread; an
// individual email already present is kept as is. Every unknown key adds
// exactly one item, so TotalCount grows by the number of new keys. Merging
// the same delta twice is the same as merging it once.
func Merge(existing, delta model.Snapshot) model.Snapshot {
	if delta.IsEmpty() {
		return existing
	}

	threads := make([]model.Thread, 0, len(existing.Threads)+len(delta.Threads))
	index := make(map[string]int, cap(threads))
	for _, t := range existing.Threads {
		index[t.ThreadID] = len(threads)
		threads = append(threads, t)
	}
	for _, t := range delta.Threads {
		if i, ok := index[t.ThreadID]; ok {
			threads[i] = MergeThread(threads[i], t)
			continue
		}
		index[t.ThreadID] = len(threads)
		threads = append(threads, t)
	}

	emails := make([]model.Message, 0, len(existing.IndividualEmails)+len(delta.IndividualEmails))
	known := make(map[string]bool, cap(emails))
	for _, e := range existing.IndividualEmails {
		known[e.ID] = true
		emails = append(emails, e)
	}
	for _, e := range delta.IndividualEmails {
		if known[e.ID] {
			continue
		}
		known[e.ID] = true
		emails = append(emails, e)
	}

	return model.Snapshot{
		Threads:          threads,
		IndividualEmails: emails,
	}
}

// Regroups reports whether delta changes how existing mail is grouped: a
// delta thread continues an existing individual email, or a delta email
// belongs to a known thread. Merge keeps such items under separate keys,
// so callers that want the regrouped view should refetch in full.
func Regroups(existing, delta model.Snapshot) bool {
	threads := make(map[string]bool, len(existing.Threads))
	for _, t := range existing.Threads {
		threads[t.ThreadID] = true
	}
	for _, e := range delta.IndividualEmails {
		if e.ThreadID != "" && threads[e.ThreadID] {
			return true
		}
	}

	single := make(map[string]bool, len(existing.IndividualEmails))
	for _, e := range existing.IndividualEmails {
		if e.ThreadID != "" {
			single[e.ThreadID] = true
		}
	}
	for _, t := range delta.Threads {
		if single[t.ThreadID] && !threads[t.ThreadID] {
			return true
		}
	}
	return false
}

// MergeThread combines two versions of the same thread. The result holds the
// union of both message sets, deduplicated by id with a's copy kept, sorted
// newest first. Subject comes from the side with the newer latest message;
// ties keep a's. Participants are unioned by canonical identity.
func MergeThread(a, b model.Thread) model.Thread {
	msgs := make([]model.Message, 0, len(a.Messages)+len(b.Messages))
	seen := make(map[string]bool, cap(msgs))
	for _, side := range [][]model.Message{a.Messages, b.Messages} {
		for _, m := range side {
			if seen[m.ID] {
				continue
			}
			seen[m.ID] = true
			msgs = append(msgs, m)
		}
	}
	model.SortNewestFirst(msgs)

	subject := a.Subject
	if b.Subject != "" && (subject == "" || b.LatestTimestamp() > a.LatestTimestamp()) {
		subject = b.Subject
	}

	people := make([]string, 0, len(a.Participants)+len(b.Participants))
	people = append(people, a.Participants...)
	people = append(people, b.Participants...)

	threadID := a.ThreadID
	if threadID == "" {
		threadID = b.ThreadID
	}

	return model.Thread{
		ThreadID:     threadID,
		Subject:      subject,
		Participants: identity.Participants(people...),
		Messages:     msgs,
	}
}
