// Package feed projects a mailbox snapshot into the single newest-first
// list of threads and standalone emails shown to the user.
package feed

import (
	"cmp"
	"iter"
	"slices"

	"github.com/nhle/mailbox/internal/model"
)

// Kind tags an Item as a thread or a standalone email.
type Kind int

const (
	KindThread Kind = iota
	KindEmail
)

// Item is one entry of the unified feed. Exactly one of Thread or Email is
// meaningful, as selected by Kind.
type Item struct {
	Kind   Kind
	Thread model.Thread
	Email  model.Message
	Key    int64
}

// ID returns the thread id or the email id.
func (i Item) ID() string {
	if i.Kind == KindThread {
		return i.Thread.ThreadID
	}
	return i.Email.ID
}

// Subject returns the display subject of the item.
func (i Item) Subject() string {
	if i.Kind == KindThread {
		return i.Thread.Subject
	}
	return i.Email.Subject
}

// Latest returns the message that represents the item in a list row.
func (i Item) Latest() model.Message {
	if i.Kind == KindThread {
		m, _ := i.Thread.LatestMessage()
		return m
	}
	return i.Email
}

// Messages returns every message of the item, newest first.
func (i Item) Messages() []model.Message {
	if i.Kind == KindThread {
		return i.Thread.Messages
	}
	return []model.Message{i.Email}
}

// Project returns the snapshot's items sorted by descending key. Ties keep
// insertion order: threads first, then individual emails, each in snapshot
// order. The sequence is recomputed on every iteration.
func Project(s model.Snapshot) iter.Seq[Item] {
	return func(yield func(Item) bool) {
		items := make([]Item, 0, s.TotalCount())
		for _, t := range s.Threads {
			items = append(items, Item{Kind: KindThread, Thread: t, Key: t.LatestTimestamp()})
		}
		for _, e := range s.IndividualEmails {
			items = append(items, Item{Kind: KindEmail, Email: e, Key: e.Timestamp()})
		}

		slices.SortStableFunc(items, func(a, b Item) int {
			return cmp.Compare(b.Key, a.Key)
		})

		for _, it := range items {
			if !yield(it) {
				return
			}
		}
	}
}

// Filter lazily keeps the items for which keep returns true.
func Filter(seq iter.Seq[Item], keep func(Item) bool) iter.Seq[Item] {
	return func(yield func(Item) bool) {
		for it := range seq {
			if !keep(it) {
				continue
			}
			if !yield(it) {
				return
			}
		}
	}
}
