package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"

	"github.com/nhle/mailbox/internal/app"
	"github.com/nhle/mailbox/internal/credential"
	"github.com/nhle/mailbox/internal/expansion"
	"github.com/nhle/mailbox/internal/mailbox"
	"github.com/nhle/mailbox/internal/model"
	"github.com/nhle/mailbox/internal/persist"
	"github.com/nhle/mailbox/internal/store"
)

func main() {
	configPath := flag.String("config", model.DefaultConfigPath(), "path to config.yaml")
	flag.Parse()

	cfg, err := model.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Cannot load config: %v\n", err)
		os.Exit(1)
	}

	logger, closeLog := openLogger(cfg.Log)
	defer closeLog()

	db := openStore(model.ConfigDir(), logger)
	defer db.Close()

	vault, err := credential.Open()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Cannot open keyring: %v\n", err)
		os.Exit(1)
	}

	p := persist.NewAdapter(db, logger)
	session := mailbox.New(p, expansion.New(p, logger), logger)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	session.Hydrate(ctx)
	cancel()

	root := app.New(app.Deps{
		Config:     cfg,
		ConfigPath: *configPath,
		Session:    session,
		Store:      db,
		Secrets:    vault,
		Logger:     logger,
	})

	if _, err := tea.NewProgram(root, tea.WithAltScreen()).Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Alas, there's been an error: %v\n", err)
		os.Exit(1)
	}
}

// openLogger writes JSON lines to the configured log file, since the
// terminal belongs to the UI.
func openLogger(cfg model.LogConfig) (zerolog.Logger, func()) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}

	var w io.Writer = io.Discard
	closeFn := func() {}
	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err == nil {
			f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
			if err == nil {
				w = f
				closeFn = func() { _ = f.Close() }
			}
		}
	}

	logger := zerolog.New(w).Level(level).With().Timestamp().Logger()
	return logger, closeFn
}

// openStore opens the SQLite database in dir, falling back to memory when
// the directory or the file cannot be used.
func openStore(dir string, logger zerolog.Logger) store.Store {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		logger.Warn().Err(err).Str("dir", dir).Msg("cannot create data dir; mailbox will not persist")
		return store.NewMemoryStore()
	}

	db, err := store.NewSQLiteStore(filepath.Join(dir, "mailbox.db"))
	if err != nil {
		logger.Warn().Err(err).Msg("sqlite unavailable; mailbox will not persist")
		return store.NewMemoryStore()
	}
	return db
}
