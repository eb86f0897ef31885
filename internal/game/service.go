package game

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"bananatrade/internal/store"
)

const maxSessionPlayers = 64

// Rules are the tunable economy parameters for new sessions.
type Rules struct {
	StarterUsdMicros   int64
	StarterCoinUnits   int64
	BotPriceMicros     int64
	BotFundingMicros   int64
	InitialPriceMicros int64
	// PriceTimeout bounds the live price lookup before a trade falls
	// back to the session's cached snapshot.
	PriceTimeout time.Duration
}

func DefaultRules() Rules {
	return Rules{
		StarterUsdMicros:   10_000 * MicrosPerUSD,
		StarterCoinUnits:   0,
		BotPriceMicros:     1_000 * MicrosPerUSD,
		BotFundingMicros:   2_000 * MicrosPerUSD,
		InitialPriceMicros: 1 * MicrosPerUSD,
		PriceTimeout:       300 * time.Millisecond,
	}
}

// PriceQuote is one observation from the market feed.
type PriceQuote struct {
	PriceMicros   int64   `json:"price_micros"`
	VolatilityBps int64   `json:"volatility_bps"`
	HistoryMicros []int64 `json:"history_micros,omitempty"`
}

// PriceSource serves the live coin price. CurrentPrice must respect
// context cancellation so trades can bound the lookup.
type PriceSource interface {
	CurrentPrice(ctx context.Context, sessionID string) (PriceQuote, error)
	StartFeed(ctx context.Context, sessionID string, durationSeconds int64) error
}

// Finalizer receives a session's closing standings exactly once.
type Finalizer interface {
	Finalize(ctx context.Context, rec FinalizeRecord) error
}

type Service struct {
	store    store.Store
	market   PriceSource
	finalize Finalizer
	log      *slog.Logger
	rules    Rules

	// now is replaceable in tests.
	now func() time.Time
}

func NewService(st store.Store, market PriceSource, finalize Finalizer, logger *slog.Logger, rules Rules) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:    st,
		market:   market,
		finalize: finalize,
		log:      logger,
		rules:    rules,
		now:      time.Now,
	}
}

func (s *Service) CreateSession(ctx context.Context, in CreateSessionInput) (*Session, error) {
	in.CreatorID = strings.TrimSpace(in.CreatorID)
	if in.CreatorID == "" {
		return nil, fmt.Errorf("%w: creator id is required", ErrInvalidConfig)
	}
	if in.MaxPlayers < 1 || in.MaxPlayers > maxSessionPlayers {
		return nil, fmt.Errorf("%w: max players must be between 1 and %d", ErrInvalidConfig, maxSessionPlayers)
	}
	if in.DurationSeconds <= 0 {
		return nil, fmt.Errorf("%w: duration must be positive", ErrInvalidConfig)
	}
	starterUsd := in.StartingUsdMicros
	if starterUsd == 0 {
		starterUsd = s.rules.StarterUsdMicros
	}
	if starterUsd < 0 {
		return nil, fmt.Errorf("%w: starting balance cannot be negative", ErrInvalidConfig)
	}
	starterCoins := in.StartingCoinUnits
	if starterCoins == 0 {
		starterCoins = s.rules.StarterCoinUnits
	}
	if starterCoins < 0 {
		return nil, fmt.Errorf("%w: starting coins cannot be negative", ErrInvalidConfig)
	}

	now := s.now().UTC()
	session := &Session{
		ID:              uuid.NewString(),
		CreatorID:       in.CreatorID,
		State:           StateOpen,
		MaxPlayers:      in.MaxPlayers,
		DurationSeconds: in.DurationSeconds,
		StakeUsdMicros:  starterUsd,
		StakeCoinUnits:  starterCoins,
		CreatedAt:       now,
		Players: []Player{{
			PlayerID:    in.CreatorID,
			DisplayName: displayNameOr(in.DisplayName, in.CreatorID),
			UsdMicros:   starterUsd,
			CoinUnits:   starterCoins,
		}},
		Price:   PriceSnapshot{PriceMicros: s.rules.InitialPriceMicros, ObservedAt: now},
		Version: 1,
	}

	rec, err := sessionRecord(session)
	if err != nil {
		return nil, err
	}
	err = s.store.Apply(ctx, nil, func(map[string]store.Record) (*store.Mutation, error) {
		mut := store.NewMutation()
		mut.Set[gameKey(session.ID)] = rec
		mut.AddTo[sessionsIndexKey] = []string{session.ID}
		return mut, nil
	})
	if err != nil {
		return nil, storeErr(err)
	}
	s.log.Info("session created",
		"session_id", session.ID,
		"creator_id", session.CreatorID,
		"max_players", session.MaxPlayers,
		"duration_seconds", session.DurationSeconds)
	return session, nil
}

func (s *Service) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	rec, err := s.store.Get(ctx, gameKey(sessionID))
	if err != nil {
		return nil, storeErr(err)
	}
	return sessionFromRecord(rec)
}

func (s *Service) Join(ctx context.Context, in JoinInput) (*Session, error) {
	in.PlayerID = strings.TrimSpace(in.PlayerID)
	if in.PlayerID == "" {
		return nil, fmt.Errorf("%w: player id is required", ErrInvalidConfig)
	}
	var joined *Session
	err := s.mutateSession(ctx, in.SessionID, func(sess *Session) ([]Transaction, error) {
		if sess.State != StateOpen {
			if sess.State == StateStarted {
				return nil, ErrAlreadyStarted
			}
			return nil, ErrSessionNotActive
		}
		if sess.player(in.PlayerID) != nil {
			return nil, ErrDuplicateMember
		}
		if len(sess.Players) >= sess.MaxPlayers {
			return nil, ErrSessionFull
		}
		sess.Players = append(sess.Players, Player{
			PlayerID:    in.PlayerID,
			DisplayName: displayNameOr(in.DisplayName, in.PlayerID),
			UsdMicros:   sess.StakeUsdMicros,
			CoinUnits:   sess.StakeCoinUnits,
		})
		joined = sess
		return nil, nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("player joined", "session_id", in.SessionID, "player_id", in.PlayerID)
	return joined, nil
}

// MutatePlayer applies wallet deltas atomically. Negative results are
// rejected and nothing is written.
func (s *Service) MutatePlayer(ctx context.Context, in MutatePlayerInput) (*Player, error) {
	var out Player
	err := s.mutateSession(ctx, in.SessionID, func(sess *Session) ([]Transaction, error) {
		p := sess.player(in.PlayerID)
		if p == nil {
			return nil, ErrPlayerNotFound
		}
		nextUsd := p.UsdMicros + in.UsdDeltaMicros
		nextCoins := p.CoinUnits + in.CoinDeltaUnits
		if nextUsd < 0 {
			return nil, ErrInsufficientFunds
		}
		if nextCoins < 0 {
			return nil, ErrInsufficientCoins
		}
		p.UsdMicros = nextUsd
		p.CoinUnits = nextCoins
		out = *p
		return nil, nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// AppendTransaction writes one entry to the session's append-only log.
// Prior entries are never rewritten.
func (s *Service) AppendTransaction(ctx context.Context, sessionID string, t Transaction) error {
	if t.QuantityUnits <= 0 {
		return ErrInvalidAmount
	}
	if t.Direction != DirectionBuy && t.Direction != DirectionSell {
		return fmt.Errorf("%w: direction must be buy or sell", ErrInvalidAmount)
	}
	if t.Timestamp.IsZero() {
		t.Timestamp = s.now().UTC()
	}
	return s.mutateSession(ctx, sessionID, func(sess *Session) ([]Transaction, error) {
		return []Transaction{t}, nil
	})
}

// Transactions pages the session log newest first. A non-empty actorID
// restricts the page to that actor's entries.
func (s *Service) Transactions(ctx context.Context, sessionID, actorID string, offset, limit int64) (*TransactionPage, error) {
	if _, err := s.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	if actorID != "" {
		return s.actorTransactions(ctx, sessionID, actorID, offset, limit)
	}
	total, err := s.store.ListLen(ctx, txnsKey(sessionID))
	if err != nil {
		return nil, storeErr(err)
	}
	page := &TransactionPage{Transactions: []Transaction{}, Total: total, Offset: offset}
	if offset >= total {
		return page, nil
	}
	// The log is stored oldest first; the page reads newest first.
	stop := total - 1 - offset
	start := stop - limit + 1
	if start < 0 {
		start = 0
	}
	raw, err := s.store.ListRange(ctx, txnsKey(sessionID), start, stop)
	if err != nil {
		return nil, storeErr(err)
	}
	for i := len(raw) - 1; i >= 0; i-- {
		t, err := decodeTransaction(raw[i])
		if err != nil {
			return nil, err
		}
		page.Transactions = append(page.Transactions, t)
	}
	return page, nil
}

func (s *Service) actorTransactions(ctx context.Context, sessionID, actorID string, offset, limit int64) (*TransactionPage, error) {
	raw, err := s.store.ListRange(ctx, txnsKey(sessionID), 0, -1)
	if err != nil {
		return nil, storeErr(err)
	}
	matched := make([]Transaction, 0)
	for i := len(raw) - 1; i >= 0; i-- {
		t, err := decodeTransaction(raw[i])
		if err != nil {
			return nil, err
		}
		if t.ActorID == actorID {
			matched = append(matched, t)
		}
	}
	page := &TransactionPage{Transactions: []Transaction{}, Total: int64(len(matched)), Offset: offset}
	for i := offset; i < int64(len(matched)) && int64(len(page.Transactions)) < limit; i++ {
		page.Transactions = append(page.Transactions, matched[i])
	}
	return page, nil
}

func (s *Service) Stats(ctx context.Context, sessionID string) (*TransactionStats, error) {
	if _, err := s.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	raw, err := s.store.ListRange(ctx, txnsKey(sessionID), 0, -1)
	if err != nil {
		return nil, storeErr(err)
	}
	stats := &TransactionStats{}
	for _, entry := range raw {
		t, err := decodeTransaction(entry)
		if err != nil {
			return nil, err
		}
		stats.Total++
		stats.VolumeUnits += t.QuantityUnits
		if t.Direction == DirectionBuy {
			stats.Buys++
		} else {
			stats.Sells++
		}
		if t.ActorKind == ActorBot {
			stats.BotCount++
		} else {
			stats.PlayerCount++
		}
	}
	return stats, nil
}

func (s *Service) SessionIDs(ctx context.Context) ([]string, error) {
	ids, err := s.store.SetMembers(ctx, sessionsIndexKey)
	if err != nil {
		return nil, storeErr(err)
	}
	return ids, nil
}

// Snapshot assembles the poll view: session, standings, log length and
// time remaining.
func (s *Service) Snapshot(ctx context.Context, sessionID string) (*SessionSnapshot, error) {
	sess, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	total, err := s.store.ListLen(ctx, txnsKey(sessionID))
	if err != nil {
		return nil, storeErr(err)
	}
	snap := &SessionSnapshot{
		Session:          sess,
		Standings:        standingsFromSession(sess),
		TransactionCount: total,
	}
	if sess.State == StateStarted {
		if remaining := sess.Deadline().Sub(s.now()); remaining > 0 {
			snap.SecondsRemaining = int64(remaining.Seconds())
		}
	}
	return snap, nil
}

// errSessionUnchanged tells mutateSession to commit nothing. fn returns
// it when the session is already in the requested state.
var errSessionUnchanged = errors.New("session unchanged")

// mutateSession is the one write path for session records. It reads
// the session under watch, applies fn, bumps the version, and commits
// the rewritten record together with any transactions fn returns.
// fn returning errSessionUnchanged skips the write entirely, leaving
// the record and its version untouched.
func (s *Service) mutateSession(ctx context.Context, sessionID string, fn func(*Session) ([]Transaction, error)) error {
	key := gameKey(sessionID)
	err := s.store.Apply(ctx, []string{key}, func(view map[string]store.Record) (*store.Mutation, error) {
		sess, err := sessionFromRecord(view[key])
		if err != nil {
			return nil, err
		}
		txns, err := fn(sess)
		if err != nil {
			if errors.Is(err, errSessionUnchanged) {
				return nil, nil
			}
			return nil, err
		}
		sess.Version++
		rec, err := sessionRecord(sess)
		if err != nil {
			return nil, err
		}
		mut := store.NewMutation()
		mut.Set[key] = rec
		for _, t := range txns {
			raw, err := encodeTransaction(t)
			if err != nil {
				return nil, err
			}
			mut.Append[txnsKey(sessionID)] = append(mut.Append[txnsKey(sessionID)], raw)
		}
		return mut, nil
	})
	return storeErr(err)
}

func storeErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, store.ErrConflict) {
		return fmt.Errorf("%w: %v", ErrContention, err)
	}
	return err
}

func displayNameOr(name, fallback string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return fallback
	}
	if len(name) > 48 {
		return name[:48]
	}
	return name
}
