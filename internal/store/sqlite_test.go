package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/nhle/mailbox/internal/model"
	"github.com/nhle/mailbox/internal/store"
	"github.com/nhle/mailbox/tests/testutil"
)

func TestKVRoundTrip(t *testing.T) {
	for name, s := range map[string]store.Store{
		"sqlite": testutil.NewTestStore(t),
		"memory": store.NewMemoryStore(),
	} {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			if _, ok, err := s.Get(ctx, "missing"); err != nil || ok {
				t.Fatalf("Get(missing) = %v, %v", ok, err)
			}

			if err := s.Set(ctx, "k", "v1"); err != nil {
				t.Fatalf("Set: %v", err)
			}
			if err := s.Set(ctx, "k", "v2"); err != nil {
				t.Fatalf("Set overwrite: %v", err)
			}
			v, ok, err := s.Get(ctx, "k")
			if err != nil || !ok || v != "v2" {
				t.Fatalf("Get(k) = %q, %v, %v", v, ok, err)
			}

			if err := s.Remove(ctx, "k"); err != nil {
				t.Fatalf("Remove: %v", err)
			}
			if _, ok, _ := s.Get(ctx, "k"); ok {
				t.Fatal("key still present after Remove")
			}
			if err := s.Remove(ctx, "k"); err != nil {
				t.Fatalf("Remove of missing key: %v", err)
			}
		})
	}
}

func TestNotifications(t *testing.T) {
	for name, s := range map[string]store.Store{
		"sqlite": testutil.NewTestStore(t),
		"memory": store.NewMemoryStore(),
	} {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			now := time.Now()

			for i, item := range []string{"t1", "e1", "t1"} {
				err := s.CreateNotification(ctx, model.Notification{
					ItemID:    item,
					Message:   "new mail",
					CreatedAt: now.Add(time.Duration(i) * time.Second),
				})
				if err != nil {
					t.Fatalf("CreateNotification: %v", err)
				}
			}

			unread, err := s.GetUnreadNotifications(ctx)
			if err != nil {
				t.Fatalf("GetUnreadNotifications: %v", err)
			}
			if len(unread) != 3 {
				t.Fatalf("unread = %d, want 3", len(unread))
			}
			if unread[0].ID == "" {
				t.Fatal("notification id should be generated")
			}

			if err := s.MarkItemRead(ctx, "t1"); err != nil {
				t.Fatalf("MarkItemRead: %v", err)
			}
			unread, _ = s.GetUnreadNotifications(ctx)
			if len(unread) != 1 || unread[0].ItemID != "e1" {
				t.Fatalf("unread after mark = %+v", unread)
			}

			if err := s.ClearNotifications(ctx); err != nil {
				t.Fatalf("ClearNotifications: %v", err)
			}
			unread, _ = s.GetUnreadNotifications(ctx)
			if len(unread) != 0 {
				t.Fatalf("unread after clear = %d", len(unread))
			}
		})
	}
}

func TestMigrationsAreReentrant(t *testing.T) {
	path := t.TempDir() + "/mail.db"

	s, err := store.NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	if err := s.Set(context.Background(), "k", "v"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	s.Close()

	s, err = store.NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("second open: %v", err)
	}
	defer s.Close()

	if v, ok, _ := s.Get(context.Background(), "k"); !ok || v != "v" {
		t.Fatalf("value lost across reopen: %q %v", v, ok)
	}
}
