package game

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sync"
	"testing"
	"time"

	"bananatrade/internal/store"
)

type fakeMarket struct {
	mu    sync.Mutex
	quote PriceQuote
	err   error
	slow  time.Duration

	feedCalls int
}

func (m *fakeMarket) CurrentPrice(ctx context.Context, sessionID string) (PriceQuote, error) {
	m.mu.Lock()
	quote, err, slow := m.quote, m.err, m.slow
	m.mu.Unlock()
	if slow > 0 {
		select {
		case <-ctx.Done():
			return PriceQuote{}, ctx.Err()
		case <-time.After(slow):
		}
	}
	if err != nil {
		return PriceQuote{}, err
	}
	return quote, nil
}

func (m *fakeMarket) StartFeed(ctx context.Context, sessionID string, durationSeconds int64) error {
	m.mu.Lock()
	m.feedCalls++
	m.mu.Unlock()
	return nil
}

func (m *fakeMarket) setQuote(q PriceQuote) {
	m.mu.Lock()
	m.quote = q
	m.mu.Unlock()
}

type countingFinalizer struct {
	mu    sync.Mutex
	calls []FinalizeRecord
	err   error
}

func (f *countingFinalizer) Finalize(ctx context.Context, rec FinalizeRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, rec)
	return f.err
}

func (f *countingFinalizer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestService(t *testing.T) (*Service, *fakeMarket, *countingFinalizer) {
	t.Helper()
	market := &fakeMarket{quote: PriceQuote{PriceMicros: MicrosPerUSD}}
	finalizer := &countingFinalizer{}
	svc := NewService(store.NewMemory(), market, finalizer, testLogger(), DefaultRules())
	return svc, market, finalizer
}

func mustCreate(t *testing.T, svc *Service, creator string, maxPlayers int, duration int64) *Session {
	t.Helper()
	sess, err := svc.CreateSession(context.Background(), CreateSessionInput{
		CreatorID:       creator,
		MaxPlayers:      maxPlayers,
		DurationSeconds: duration,
	})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	return sess
}

func mustStart(t *testing.T, svc *Service, sessionID, creator string) {
	t.Helper()
	if _, err := svc.Start(context.Background(), sessionID, creator); err != nil {
		t.Fatalf("start session: %v", err)
	}
}

func TestCreateSessionDefaults(t *testing.T) {
	svc, _, _ := newTestService(t)
	sess := mustCreate(t, svc, "alice", 2, 60)

	if sess.State != StateOpen {
		t.Fatalf("new session state %q", sess.State)
	}
	if len(sess.Players) != 1 || sess.Players[0].PlayerID != "alice" {
		t.Fatalf("creator not seated: %+v", sess.Players)
	}
	if sess.Players[0].UsdMicros != 10_000*MicrosPerUSD {
		t.Fatalf("starter balance %d", sess.Players[0].UsdMicros)
	}
	if sess.Version != 1 {
		t.Fatalf("initial version %d", sess.Version)
	}

	got, err := svc.GetSession(context.Background(), sess.ID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if got.ID != sess.ID || got.MaxPlayers != 2 || got.DurationSeconds != 60 {
		t.Fatalf("persisted session mismatch: %+v", got)
	}
}

func TestCreateSessionValidation(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	cases := []CreateSessionInput{
		{CreatorID: "", MaxPlayers: 2, DurationSeconds: 60},
		{CreatorID: "alice", MaxPlayers: 0, DurationSeconds: 60},
		{CreatorID: "alice", MaxPlayers: 200, DurationSeconds: 60},
		{CreatorID: "alice", MaxPlayers: 2, DurationSeconds: 0},
		{CreatorID: "alice", MaxPlayers: 2, DurationSeconds: -5},
		{CreatorID: "alice", MaxPlayers: 2, DurationSeconds: 60, StartingUsdMicros: -1},
	}
	for i, in := range cases {
		if _, err := svc.CreateSession(ctx, in); !errors.Is(err, ErrInvalidConfig) {
			t.Fatalf("case %d: expected ErrInvalidConfig, got %v", i, err)
		}
	}
}

func TestGetSessionNotFound(t *testing.T) {
	svc, _, _ := newTestService(t)
	if _, err := svc.GetSession(context.Background(), "nope"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestJoinRules(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	sess := mustCreate(t, svc, "alice", 2, 60)

	if _, err := svc.Join(ctx, JoinInput{SessionID: sess.ID, PlayerID: "alice"}); !errors.Is(err, ErrDuplicateMember) {
		t.Fatalf("rejoin: expected ErrDuplicateMember, got %v", err)
	}

	joined, err := svc.Join(ctx, JoinInput{SessionID: sess.ID, PlayerID: "bob", DisplayName: "Bob"})
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if len(joined.Players) != 2 {
		t.Fatalf("player count %d", len(joined.Players))
	}
	if joined.Players[1].UsdMicros != sess.StakeUsdMicros {
		t.Fatalf("joiner stake %d want %d", joined.Players[1].UsdMicros, sess.StakeUsdMicros)
	}

	if _, err := svc.Join(ctx, JoinInput{SessionID: sess.ID, PlayerID: "carol"}); !errors.Is(err, ErrSessionFull) {
		t.Fatalf("full: expected ErrSessionFull, got %v", err)
	}

	mustStart(t, svc, sess.ID, "alice")
	if _, err := svc.Join(ctx, JoinInput{SessionID: sess.ID, PlayerID: "dave"}); !errors.Is(err, ErrAlreadyStarted) {
		t.Fatalf("late join: expected ErrAlreadyStarted, got %v", err)
	}
}

func TestJoinLastSlotRace(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	sess := mustCreate(t, svc, "alice", 2, 60)

	const contenders = 16
	var wg sync.WaitGroup
	wg.Add(contenders)
	results := make(chan error, contenders)
	for i := 0; i < contenders; i++ {
		go func(i int) {
			defer wg.Done()
			_, err := svc.Join(ctx, JoinInput{SessionID: sess.ID, PlayerID: fmt.Sprintf("p%d", i)})
			results <- err
		}(i)
	}
	wg.Wait()
	close(results)

	wins := 0
	for err := range results {
		if err == nil {
			wins++
		} else if !errors.Is(err, ErrSessionFull) {
			t.Fatalf("unexpected join error: %v", err)
		}
	}
	if wins != 1 {
		t.Fatalf("expected exactly one winner for the last seat, got %d", wins)
	}
	got, _ := svc.GetSession(ctx, sess.ID)
	if len(got.Players) != 2 {
		t.Fatalf("seat count %d", len(got.Players))
	}
}

func TestMutatePlayerGuards(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	sess := mustCreate(t, svc, "alice", 2, 60)

	if _, err := svc.MutatePlayer(ctx, MutatePlayerInput{SessionID: sess.ID, PlayerID: "ghost"}); !errors.Is(err, ErrPlayerNotFound) {
		t.Fatalf("expected ErrPlayerNotFound, got %v", err)
	}
	if _, err := svc.MutatePlayer(ctx, MutatePlayerInput{
		SessionID: sess.ID, PlayerID: "alice", UsdDeltaMicros: -20_000 * MicrosPerUSD,
	}); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	if _, err := svc.MutatePlayer(ctx, MutatePlayerInput{
		SessionID: sess.ID, PlayerID: "alice", CoinDeltaUnits: -1,
	}); !errors.Is(err, ErrInsufficientCoins) {
		t.Fatalf("expected ErrInsufficientCoins, got %v", err)
	}

	p, err := svc.MutatePlayer(ctx, MutatePlayerInput{
		SessionID: sess.ID, PlayerID: "alice",
		UsdDeltaMicros: -500 * MicrosPerUSD, CoinDeltaUnits: 500 * CoinScale,
	})
	if err != nil {
		t.Fatalf("mutate: %v", err)
	}
	if p.UsdMicros != 9_500*MicrosPerUSD || p.CoinUnits != 500*CoinScale {
		t.Fatalf("balances %d/%d", p.UsdMicros, p.CoinUnits)
	}
}

func TestMutatePlayerRejectionLeavesStateUnchanged(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	sess := mustCreate(t, svc, "alice", 2, 60)
	before, _ := svc.GetSession(ctx, sess.ID)

	_, err := svc.MutatePlayer(ctx, MutatePlayerInput{
		SessionID: sess.ID, PlayerID: "alice",
		UsdDeltaMicros: -20_000 * MicrosPerUSD, CoinDeltaUnits: 100,
	})
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected rejection, got %v", err)
	}
	after, _ := svc.GetSession(ctx, sess.ID)
	if after.Version != before.Version {
		t.Fatalf("rejected mutation must not commit, version %d -> %d", before.Version, after.Version)
	}
	if after.Players[0].UsdMicros != before.Players[0].UsdMicros || after.Players[0].CoinUnits != before.Players[0].CoinUnits {
		t.Fatalf("balances changed after rejection")
	}
}

func TestBuyScenario(t *testing.T) {
	svc, market, _ := newTestService(t)
	ctx := context.Background()
	market.setQuote(PriceQuote{PriceMicros: MicrosPerUSD})

	sess := mustCreate(t, svc, "alice", 2, 60)
	mustStart(t, svc, sess.ID, "alice")

	out, err := svc.Trade(ctx, TradeInput{
		SessionID: sess.ID, PlayerID: "alice",
		Direction: DirectionBuy, QuantityUnits: 500 * CoinScale,
	})
	if err != nil {
		t.Fatalf("trade: %v", err)
	}
	if out.UsdMicros != 9_500*MicrosPerUSD {
		t.Fatalf("usd after buy %d", out.UsdMicros)
	}
	if out.CoinUnits != 500*CoinScale {
		t.Fatalf("coins after buy %d", out.CoinUnits)
	}
	if out.Transaction.ActorKind != ActorPlayer || out.Transaction.Direction != DirectionBuy {
		t.Fatalf("transaction tags %+v", out.Transaction)
	}

	page, err := svc.Transactions(ctx, sess.ID, "", 0, 10)
	if err != nil {
		t.Fatalf("transactions: %v", err)
	}
	if page.Total != 1 || len(page.Transactions) != 1 {
		t.Fatalf("expected exactly one log entry, got %d", page.Total)
	}
	if page.Transactions[0].PriceMicros != MicrosPerUSD {
		t.Fatalf("logged price %d", page.Transactions[0].PriceMicros)
	}
}

func TestSellScenario(t *testing.T) {
	svc, market, _ := newTestService(t)
	ctx := context.Background()
	sess := mustCreate(t, svc, "alice", 2, 60)
	mustStart(t, svc, sess.ID, "alice")

	market.setQuote(PriceQuote{PriceMicros: MicrosPerUSD})
	if _, err := svc.Trade(ctx, TradeInput{
		SessionID: sess.ID, PlayerID: "alice", Direction: DirectionBuy, QuantityUnits: 100 * CoinScale,
	}); err != nil {
		t.Fatalf("buy: %v", err)
	}

	// Price doubles before the sell.
	market.setQuote(PriceQuote{PriceMicros: 2 * MicrosPerUSD})
	out, err := svc.Trade(ctx, TradeInput{
		SessionID: sess.ID, PlayerID: "alice", Direction: DirectionSell, QuantityUnits: 100 * CoinScale,
	})
	if err != nil {
		t.Fatalf("sell: %v", err)
	}
	if out.CoinUnits != 0 {
		t.Fatalf("coins after sell %d", out.CoinUnits)
	}
	if out.UsdMicros != 10_100*MicrosPerUSD {
		t.Fatalf("usd after round trip %d", out.UsdMicros)
	}
}

func TestTradeRejections(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	sess := mustCreate(t, svc, "alice", 2, 60)

	if _, err := svc.Trade(ctx, TradeInput{
		SessionID: sess.ID, PlayerID: "alice", Direction: DirectionBuy, QuantityUnits: 1,
	}); !errors.Is(err, ErrSessionNotActive) {
		t.Fatalf("trade before start: expected ErrSessionNotActive, got %v", err)
	}

	mustStart(t, svc, sess.ID, "alice")

	if _, err := svc.Trade(ctx, TradeInput{
		SessionID: sess.ID, PlayerID: "alice", Direction: DirectionBuy, QuantityUnits: 0,
	}); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("zero quantity: expected ErrInvalidAmount, got %v", err)
	}
	if _, err := svc.Trade(ctx, TradeInput{
		SessionID: sess.ID, PlayerID: "alice", Direction: "short", QuantityUnits: 1,
	}); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("bad direction: expected ErrInvalidAmount, got %v", err)
	}
	if _, err := svc.Trade(ctx, TradeInput{
		SessionID: sess.ID, PlayerID: "ghost", Direction: DirectionBuy, QuantityUnits: 1,
	}); !errors.Is(err, ErrPlayerNotFound) {
		t.Fatalf("unknown player: expected ErrPlayerNotFound, got %v", err)
	}
	if _, err := svc.Trade(ctx, TradeInput{
		SessionID: sess.ID, PlayerID: "alice", Direction: DirectionBuy, QuantityUnits: 100_000 * CoinScale,
	}); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("overspend: expected ErrInsufficientFunds, got %v", err)
	}
	if _, err := svc.Trade(ctx, TradeInput{
		SessionID: sess.ID, PlayerID: "alice", Direction: DirectionSell, QuantityUnits: 1,
	}); !errors.Is(err, ErrInsufficientCoins) {
		t.Fatalf("oversell: expected ErrInsufficientCoins, got %v", err)
	}

	// Nothing above may have written a log entry.
	page, _ := svc.Transactions(ctx, sess.ID, "", 0, 10)
	if page.Total != 0 {
		t.Fatalf("rejected trades logged %d entries", page.Total)
	}
}

func TestTradeRejectsOversizedQuantity(t *testing.T) {
	svc, market, _ := newTestService(t)
	ctx := context.Background()
	market.setQuote(PriceQuote{PriceMicros: MicrosPerUSD})

	sess := mustCreate(t, svc, "alice", 2, 60)
	mustStart(t, svc, sess.ID, "alice")
	before, _ := svc.GetSession(ctx, sess.ID)

	// Quantities this large used to wrap the notional negative, which
	// turned a buy into a deposit.
	for _, qty := range []int64{maxTradeUnits + 1, 4_000_000_000_000_000_000, math.MaxInt64} {
		_, err := svc.Trade(ctx, TradeInput{
			SessionID: sess.ID, PlayerID: "alice",
			Direction: DirectionBuy, QuantityUnits: qty,
		})
		if !errors.Is(err, ErrInvalidAmount) {
			t.Fatalf("quantity %d: expected ErrInvalidAmount, got %v", qty, err)
		}
		_, err = svc.TradeBot(ctx, BotTradeInput{
			SessionID: sess.ID, BotID: "any",
			Direction: DirectionBuy, QuantityUnits: qty,
		})
		if !errors.Is(err, ErrInvalidAmount) {
			t.Fatalf("bot quantity %d: expected ErrInvalidAmount, got %v", qty, err)
		}
	}

	after, _ := svc.GetSession(ctx, sess.ID)
	if after.Players[0].UsdMicros != before.Players[0].UsdMicros || after.Players[0].CoinUnits != before.Players[0].CoinUnits {
		t.Fatalf("oversized order changed balances: %+v", after.Players[0])
	}
	page, _ := svc.Transactions(ctx, sess.ID, "", 0, 10)
	if page.Total != 0 {
		t.Fatalf("oversized orders logged %d entries", page.Total)
	}
}

func TestTradeFallsBackToSnapshotPrice(t *testing.T) {
	svc, market, _ := newTestService(t)
	ctx := context.Background()
	svc.rules.PriceTimeout = 30 * time.Millisecond

	sess := mustCreate(t, svc, "alice", 2, 60)
	mustStart(t, svc, sess.ID, "alice")

	market.mu.Lock()
	market.slow = time.Second
	market.mu.Unlock()

	out, err := svc.Trade(ctx, TradeInput{
		SessionID: sess.ID, PlayerID: "alice", Direction: DirectionBuy, QuantityUnits: 10 * CoinScale,
	})
	if err != nil {
		t.Fatalf("trade: %v", err)
	}
	if !out.PriceStale {
		t.Fatalf("expected stale price flag")
	}
	// Session snapshot starts at the configured initial price.
	if out.Transaction.PriceMicros != svc.rules.InitialPriceMicros {
		t.Fatalf("fallback price %d want %d", out.Transaction.PriceMicros, svc.rules.InitialPriceMicros)
	}
}

func TestConcurrentTradesMatchLog(t *testing.T) {
	svc, market, _ := newTestService(t)
	ctx := context.Background()
	market.setQuote(PriceQuote{PriceMicros: MicrosPerUSD})

	sess := mustCreate(t, svc, "alice", 4, 60)
	if _, err := svc.Join(ctx, JoinInput{SessionID: sess.ID, PlayerID: "bob"}); err != nil {
		t.Fatalf("join: %v", err)
	}
	mustStart(t, svc, sess.ID, "alice")

	const perPlayer = 20
	var wg sync.WaitGroup
	var mu sync.Mutex
	successes := 0
	for _, player := range []string{"alice", "bob"} {
		wg.Add(1)
		go func(player string) {
			defer wg.Done()
			for i := 0; i < perPlayer; i++ {
				_, err := svc.Trade(ctx, TradeInput{
					SessionID: sess.ID, PlayerID: player,
					Direction: DirectionBuy, QuantityUnits: CoinScale,
				})
				if err == nil {
					mu.Lock()
					successes++
					mu.Unlock()
				}
			}
		}(player)
	}
	wg.Wait()

	page, err := svc.Transactions(ctx, sess.ID, "", 0, 100)
	if err != nil {
		t.Fatalf("transactions: %v", err)
	}
	if page.Total != int64(successes) {
		t.Fatalf("log has %d entries for %d successful trades", page.Total, successes)
	}

	got, _ := svc.GetSession(ctx, sess.ID)
	for _, p := range got.Players {
		spent := int64(p.CoinUnits/CoinScale) * MicrosPerUSD
		if p.UsdMicros != 10_000*MicrosPerUSD-spent {
			t.Fatalf("player %s books do not balance: usd=%d coins=%d", p.PlayerID, p.UsdMicros, p.CoinUnits)
		}
	}
}

func TestTransactionsPaginationNewestFirst(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	sess := mustCreate(t, svc, "alice", 2, 60)

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 7; i++ {
		err := svc.AppendTransaction(ctx, sess.ID, Transaction{
			ActorID: "alice", ActorName: "Alice", ActorKind: ActorPlayer,
			Direction: DirectionBuy, QuantityUnits: int64(i+1) * CoinScale,
			PriceMicros: MicrosPerUSD, Timestamp: base.Add(time.Duration(i) * time.Second),
		})
		if err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	page, err := svc.Transactions(ctx, sess.ID, "", 0, 3)
	if err != nil {
		t.Fatalf("page 1: %v", err)
	}
	if page.Total != 7 || len(page.Transactions) != 3 {
		t.Fatalf("page 1 shape: total=%d len=%d", page.Total, len(page.Transactions))
	}
	if page.Transactions[0].QuantityUnits != 7*CoinScale {
		t.Fatalf("newest first violated: %+v", page.Transactions[0])
	}

	page2, err := svc.Transactions(ctx, sess.ID, "", 3, 3)
	if err != nil {
		t.Fatalf("page 2: %v", err)
	}
	if page2.Transactions[0].QuantityUnits != 4*CoinScale {
		t.Fatalf("offset paging broken: %+v", page2.Transactions[0])
	}

	empty, err := svc.Transactions(ctx, sess.ID, "", 99, 3)
	if err != nil {
		t.Fatalf("past end: %v", err)
	}
	if len(empty.Transactions) != 0 {
		t.Fatalf("expected empty page past the end")
	}
}

func TestTransactionsActorFilter(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	sess := mustCreate(t, svc, "alice", 2, 60)

	for i, actor := range []string{"alice", "bot-1", "alice", "bot-1", "bot-1"} {
		kind := ActorPlayer
		if actor != "alice" {
			kind = ActorBot
		}
		err := svc.AppendTransaction(ctx, sess.ID, Transaction{
			ActorID: actor, ActorKind: kind, Direction: DirectionBuy,
			QuantityUnits: int64(i+1) * CoinScale, PriceMicros: MicrosPerUSD,
		})
		if err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	page, err := svc.Transactions(ctx, sess.ID, "bot-1", 0, 10)
	if err != nil {
		t.Fatalf("filtered page: %v", err)
	}
	if page.Total != 3 || len(page.Transactions) != 3 {
		t.Fatalf("filter shape: total=%d len=%d", page.Total, len(page.Transactions))
	}
	for _, txn := range page.Transactions {
		if txn.ActorID != "bot-1" {
			t.Fatalf("filter leaked actor %q", txn.ActorID)
		}
	}
}

func TestStats(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	sess := mustCreate(t, svc, "alice", 2, 60)

	entries := []Transaction{
		{ActorID: "alice", ActorKind: ActorPlayer, Direction: DirectionBuy, QuantityUnits: 2 * CoinScale, PriceMicros: MicrosPerUSD},
		{ActorID: "alice", ActorKind: ActorPlayer, Direction: DirectionSell, QuantityUnits: CoinScale, PriceMicros: MicrosPerUSD},
		{ActorID: "bot-1", ActorKind: ActorBot, Direction: DirectionBuy, QuantityUnits: 3 * CoinScale, PriceMicros: MicrosPerUSD},
	}
	for _, e := range entries {
		if err := svc.AppendTransaction(ctx, sess.ID, e); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	stats, err := svc.Stats(ctx, sess.ID)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Total != 3 || stats.Buys != 2 || stats.Sells != 1 {
		t.Fatalf("counts %+v", stats)
	}
	if stats.PlayerCount != 2 || stats.BotCount != 1 {
		t.Fatalf("actor split %+v", stats)
	}
	if stats.VolumeUnits != 6*CoinScale {
		t.Fatalf("volume %d", stats.VolumeUnits)
	}
}

// conflictStore forces Apply to report exhausted optimistic retries.
type conflictStore struct {
	store.Store
}

func (c conflictStore) Apply(ctx context.Context, keys []string, fn func(map[string]store.Record) (*store.Mutation, error)) error {
	return fmt.Errorf("apply game: %w", store.ErrConflict)
}

func TestContentionSurfacesAsTypedError(t *testing.T) {
	mem := store.NewMemory()
	svc := NewService(mem, nil, nil, testLogger(), DefaultRules())
	sess := mustCreate(t, svc, "alice", 2, 60)

	contended := NewService(conflictStore{mem}, nil, nil, testLogger(), DefaultRules())
	_, err := contended.Join(context.Background(), JoinInput{SessionID: sess.ID, PlayerID: "bob"})
	if !errors.Is(err, ErrContention) {
		t.Fatalf("expected ErrContention, got %v", err)
	}
}

func TestSnapshot(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	sess := mustCreate(t, svc, "alice", 2, 300)
	mustStart(t, svc, sess.ID, "alice")

	now := time.Now().UTC()
	svc.now = func() time.Time { return now }

	snap, err := svc.Snapshot(ctx, sess.ID)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snap.Session.ID != sess.ID || len(snap.Standings) != 1 {
		t.Fatalf("snapshot shape %+v", snap)
	}
	if snap.SecondsRemaining <= 0 || snap.SecondsRemaining > 300 {
		t.Fatalf("seconds remaining %d", snap.SecondsRemaining)
	}
}

func TestSessionIDsIndex(t *testing.T) {
	svc, _, _ := newTestService(t)
	a := mustCreate(t, svc, "alice", 2, 60)
	b := mustCreate(t, svc, "bob", 2, 60)

	ids, err := svc.SessionIDs(context.Background())
	if err != nil {
		t.Fatalf("session ids: %v", err)
	}
	found := map[string]bool{}
	for _, id := range ids {
		found[id] = true
	}
	if !found[a.ID] || !found[b.ID] {
		t.Fatalf("index missing sessions: %v", ids)
	}
}
