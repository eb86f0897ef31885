package botrunner

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"bananatrade/internal/game"
	"bananatrade/internal/store"
)

type staticFeed struct {
	quote game.PriceQuote
}

func (f staticFeed) CurrentPrice(ctx context.Context, sessionID string) (game.PriceQuote, error) {
	return f.quote, nil
}

func (f staticFeed) StartFeed(ctx context.Context, sessionID string, durationSeconds int64) error {
	return nil
}

type recordingFinalizer struct {
	mu    sync.Mutex
	calls []game.FinalizeRecord
}

func (f *recordingFinalizer) Finalize(ctx context.Context, rec game.FinalizeRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, rec)
	return nil
}

func (f *recordingFinalizer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestTickExpiresOverdueSessionsAndFinalizes(t *testing.T) {
	ctx := context.Background()
	feed := staticFeed{quote: game.PriceQuote{PriceMicros: game.MicrosPerUSD}}
	finalizer := &recordingFinalizer{}
	svc := game.NewService(store.NewMemory(), feed, finalizer, discardLogger(), game.DefaultRules())

	sess, err := svc.CreateSession(ctx, game.CreateSessionInput{
		CreatorID: "alice", MaxPlayers: 2, DurationSeconds: 1,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.Start(ctx, sess.ID, "alice"); err != nil {
		t.Fatalf("start: %v", err)
	}

	runner := NewRunner(svc, feed, discardLogger())

	// Before the deadline the sweep leaves the session alone.
	if err := runner.Tick(ctx); err != nil {
		t.Fatalf("tick: %v", err)
	}
	got, _ := svc.GetSession(ctx, sess.ID)
	if got.State != game.StateStarted {
		t.Fatalf("fresh session swept early: %q", got.State)
	}

	time.Sleep(1100 * time.Millisecond)
	if err := runner.Tick(ctx); err != nil {
		t.Fatalf("tick after deadline: %v", err)
	}
	got, _ = svc.GetSession(ctx, sess.ID)
	if got.State != game.StateEnded {
		t.Fatalf("overdue session not ended: %q", got.State)
	}
	if finalizer.count() != 1 {
		t.Fatalf("finalizer ran %d times", finalizer.count())
	}

	// Later sweeps leave the ended session alone.
	if err := runner.Tick(ctx); err != nil {
		t.Fatalf("tick on ended session: %v", err)
	}
	if finalizer.count() != 1 {
		t.Fatalf("finalizer re-ran on a later sweep")
	}
}

func TestTickDrivesActiveBots(t *testing.T) {
	ctx := context.Background()
	history := make([]int64, 30)
	for i := range history {
		history[i] = int64(1_000_000 + i*50_000)
	}
	feed := staticFeed{quote: game.PriceQuote{
		PriceMicros:   history[len(history)-1],
		HistoryMicros: history,
	}}
	svc := game.NewService(store.NewMemory(), feed, nil, discardLogger(), game.DefaultRules())

	sess, err := svc.CreateSession(ctx, game.CreateSessionInput{
		CreatorID: "alice", MaxPlayers: 2, DurationSeconds: 600,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	bot, err := svc.PurchaseBot(ctx, game.PurchaseBotInput{
		SessionID: sess.ID, PlayerID: "alice", Kind: "momentum",
	})
	if err != nil {
		t.Fatalf("purchase: %v", err)
	}
	if _, err := svc.Start(ctx, sess.ID, "alice"); err != nil {
		t.Fatalf("start: %v", err)
	}

	runner := NewRunner(svc, feed, discardLogger())
	// Momentum occasionally holds; several ticks make a trade certain
	// enough for a steady uptrend.
	for i := 0; i < 20; i++ {
		if err := runner.Tick(ctx); err != nil {
			t.Fatalf("tick %d: %v", i, err)
		}
	}

	page, err := svc.Transactions(ctx, sess.ID, bot.BotID, 0, 100)
	if err != nil {
		t.Fatalf("transactions: %v", err)
	}
	if page.Total == 0 {
		t.Fatalf("bot never traded across ticks")
	}
	for _, txn := range page.Transactions {
		if txn.ActorKind != game.ActorBot {
			t.Fatalf("bot trade logged with kind %q", txn.ActorKind)
		}
	}
}
