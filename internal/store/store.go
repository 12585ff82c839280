package store

import (
	"context"

	"github.com/nhle/mailbox/internal/model"
)

// KV is a durable string key-value store that survives process restarts.
type KV interface {
	// Get returns the value for key and whether it was present.
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}

// NotificationStore persists new-mail notifications.
type NotificationStore interface {
	CreateNotification(ctx context.Context, n model.Notification) error
	GetUnreadNotifications(ctx context.Context) ([]model.Notification, error)
	MarkItemRead(ctx context.Context, itemID string) error
	ClearNotifications(ctx context.Context) error
}

// Store is everything the application persists locally.
type Store interface {
	KV
	NotificationStore
	Close() error
}
