package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/user/webterm/internal/config"
	"github.com/user/webterm/internal/hub"
	"github.com/user/webterm/internal/server"
	"github.com/user/webterm/internal/session"
	"github.com/user/webterm/internal/store"
)

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))

	if err := run(); err != nil {
		slog.Error("webterm failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var recorder session.Recorder
	if cfg.DBPath != "" {
		st, err := store.Open(ctx, cfg.DBPath)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer st.Close()
		recorder = st
	}

	cmd, err := cfg.SpawnCommand()
	if err != nil {
		return err
	}

	mode := session.ModeShared
	if cfg.Mode == config.ModePerClient {
		mode = session.ModePerClient
	}

	manager := session.NewManager(session.Options{
		Mode:         mode,
		Command:      cmd,
		Rows:         uint16(cfg.Rows),
		Cols:         uint16(cfg.Cols),
		HistoryBytes: cfg.HistoryBytes,
		Recorder:     recorder,
	})
	defer manager.Shutdown()

	fmt.Printf("\nwebterm running at http://%s:%d (websocket on /ws)\n\n", cfg.Addr, cfg.Port)

	srv := server.New(cfg, hub.NewHandler(manager))
	return srv.Start(ctx)
}
