package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bananatrade/internal/api"
	"bananatrade/internal/config"
	"bananatrade/internal/db"
	"bananatrade/internal/game"
	"bananatrade/internal/leaderboard"
	"bananatrade/internal/market"
	"bananatrade/internal/store"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadAPIFromEnv()
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	st, err := store.ConnectRedis(ctx, cfg.Redis)
	if err != nil {
		logger.Error("redis connect failed", "err", err)
		os.Exit(1)
	}
	defer st.Close()

	marketClient := market.NewClient(cfg.MarketURL, cfg.MarketTimeout)

	var finalizer game.Finalizer
	switch {
	case cfg.DatabaseURL != "":
		pool, err := db.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("db connect failed", "err", err)
			os.Exit(1)
		}
		defer pool.Close()
		archive := leaderboard.NewArchive(pool, logger)
		if err := archive.EnsureSchema(ctx); err != nil {
			logger.Error("standings schema init failed", "err", err)
			os.Exit(1)
		}
		finalizer = archive
	case cfg.MarketResultsURL != "":
		finalizer = leaderboard.NewHTTPFinalizer(cfg.MarketResultsURL, cfg.MarketTimeout)
	default:
		logger.Warn("no finalizer configured, ended sessions are not archived")
	}

	gameSvc := game.NewService(st, marketClient, finalizer, logger, cfg.Rules)
	server := api.New(logger, gameSvc, st)
	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	logger.Info("bananatrade api listening", "addr", cfg.Addr)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server failed", "err", err)
		os.Exit(1)
	}
}
