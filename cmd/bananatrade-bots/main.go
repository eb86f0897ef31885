package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"bananatrade/internal/botrunner"
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

	cfg, err := config.LoadBotsFromEnv()
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

	// The expiry sweep ends sessions, so the worker finalizes standings
	// exactly like the API does.
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
		logger.Warn("no finalizer configured, expired sessions are not archived")
	}

	gameSvc := game.NewService(st, marketClient, finalizer, logger, cfg.Rules)
	runner := botrunner.NewRunner(gameSvc, marketClient, logger)

	runOnce := strings.EqualFold(strings.TrimSpace(os.Getenv("BANANA_BOTS_RUN_ONCE")), "true")
	if runOnce {
		if err := runner.Tick(ctx); err != nil {
			logger.Error("tick failed", "err", err)
			os.Exit(1)
		}
		logger.Info("bot runner run-once completed")
		return
	}

	runner.Run(ctx, cfg.TickEvery)
}
