package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jaminalder/tictactoe-arena/internal/ai"
	"github.com/jaminalder/tictactoe-arena/internal/app"
	"github.com/jaminalder/tictactoe-arena/internal/config"
	"github.com/jaminalder/tictactoe-arena/internal/domain"
	"github.com/jaminalder/tictactoe-arena/internal/history"
	"github.com/jaminalder/tictactoe-arena/internal/leaderboard"
	"github.com/jaminalder/tictactoe-arena/internal/ledger"
	"github.com/jaminalder/tictactoe-arena/internal/web"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	log := cfg.NewLogger(os.Stderr)
	if err := run(cfg, log); err != nil {
		log.Error("server stopped", "err", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	l := ledger.New(cfg.Ledger(), nil)
	board := leaderboard.NewStore(nil)
	deps := app.Deps{
		Session:     domain.NewSession(0),
		Opponent:    ai.New(cfg.Policy, nil),
		Ledger:      l,
		Leaderboard: board,
	}
	var archive *history.Writer
	if cfg.ArchiveDir != "" {
		w, err := history.NewWriter(cfg.ArchiveDir, cfg.ArchiveFlush)
		if err != nil {
			return fmt.Errorf("open archive: %w", err)
		}
		archive = w
		deps.Archive = w
	}

	svc := app.NewService(deps, app.Options{ThinkDelay: cfg.ThinkDelay, Logger: log})
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           web.NewServer(svc, board, web.Options{Fee: l.Fee(), Logger: log}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Info("starting server",
		"addr", cfg.Addr,
		"think_delay", cfg.ThinkDelay,
		"entry_fee", cfg.EntryFee,
		"daily_limit", cfg.DailyLimit,
		"archive_dir", cfg.ArchiveDir)

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		log.Info("shutdown requested")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", "err", err)
	}
	svc.Wait()
	if archive != nil {
		if err := archive.Close(); err != nil {
			return fmt.Errorf("flush archive: %w", err)
		}
		log.Info("archive flushed", "files", len(archive.Files()))
	}
	log.Info("shutdown complete", "treasury", l.Treasury())
	return nil
}
