package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/nhle/mailbox/internal/store"
)

func TestOpenStoreFallsBackToMemory(t *testing.T) {
	file := filepath.Join(t.TempDir(), "not-a-dir")
	if err := os.WriteFile(file, []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}

	db := openStore(filepath.Join(file, "mailbox"), zerolog.Nop())
	defer db.Close()
	if _, ok := db.(*store.MemoryStore); !ok {
		t.Fatalf("store = %T, want *store.MemoryStore", db)
	}
}

func TestOpenStoreUsesSQLite(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "mailbox")

	db := openStore(dir, zerolog.Nop())
	defer db.Close()
	if _, ok := db.(*store.SQLiteStore); !ok {
		t.Fatalf("store = %T, want *store.SQLiteStore", db)
	}
	if _, err := os.Stat(filepath.Join(dir, "mailbox.db")); err != nil {
		t.Fatalf("database file: %v", err)
	}
}
