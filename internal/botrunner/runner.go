// Package botrunner drives bot trading on a timer. Each tick it walks
// the known sessions, expires those whose clock ran out, and lets every
// active bot's strategy take one decision against the current price.
package botrunner

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"bananatrade/internal/game"
)

type Runner struct {
	svc    *game.Service
	market game.PriceSource
	log    *slog.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

func NewRunner(svc *game.Service, market game.PriceSource, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		svc:    svc,
		market: market,
		log:    logger,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Run ticks until the context is cancelled.
func (r *Runner) Run(ctx context.Context, tickEvery time.Duration) {
	ticker := time.NewTicker(tickEvery)
	defer ticker.Stop()

	r.log.Info("bot runner started", "tick_every", tickEvery.String())
	for {
		select {
		case <-ctx.Done():
			r.log.Info("bot runner shutdown")
			return
		case <-ticker.C:
			if err := r.Tick(ctx); err != nil {
				r.log.Error("tick failed", "err", err)
			}
		}
	}
}

// Tick processes every session once.
func (r *Runner) Tick(ctx context.Context) error {
	ids, err := r.svc.SessionIDs(ctx)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if err := r.tickSession(ctx, id); err != nil {
			if errors.Is(err, game.ErrSessionNotFound) {
				continue
			}
			r.log.Warn("session tick failed", "session_id", id, "err", err)
		}
	}
	return nil
}

func (r *Runner) tickSession(ctx context.Context, sessionID string) error {
	expired, err := r.svc.ExpireIfDue(ctx, sessionID)
	if err != nil {
		return err
	}
	if expired {
		r.log.Info("session expired", "session_id", sessionID)
		return nil
	}

	sess, err := r.svc.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess.State != game.StateStarted {
		return nil
	}

	quote, err := r.market.CurrentPrice(ctx, sessionID)
	if err != nil {
		// Strategies need a real quote; skip the tick rather than
		// trade against nothing.
		r.log.Warn("price unavailable, skipping bots", "session_id", sessionID, "err", err)
		return nil
	}

	bots, err := r.svc.Bots(ctx, sessionID, "")
	if err != nil {
		return err
	}
	for _, bot := range bots {
		if !bot.Active {
			continue
		}
		d := decide(bot, quote, r.nextRand())
		if d.Hold() || d.QuantityUnits <= 0 {
			continue
		}
		_, err := r.svc.TradeBot(ctx, game.BotTradeInput{
			SessionID:     sessionID,
			BotID:         bot.BotID,
			Direction:     d.Direction,
			QuantityUnits: d.QuantityUnits,
		})
		switch {
		case err == nil:
		case errors.Is(err, game.ErrInsufficientFunds),
			errors.Is(err, game.ErrInsufficientCoins),
			errors.Is(err, game.ErrBotInactive),
			errors.Is(err, game.ErrSessionNotActive):
			// Expected per-bot outcomes, not tick failures.
		default:
			r.log.Warn("bot trade failed", "session_id", sessionID, "bot_id", bot.BotID, "err", err)
		}
	}
	return nil
}

// nextRand hands strategies the shared source behind a lock so Tick is
// safe to call from tests running sessions in parallel.
func (r *Runner) nextRand() *rand.Rand {
	r.mu.Lock()
	defer r.mu.Unlock()
	return rand.New(rand.NewSource(r.rng.Int63()))
}
