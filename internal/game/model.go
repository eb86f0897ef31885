// Package game implements the session ledger: authoritative trading
// sessions, player wallets, bot wallets, and the append-only
// transaction log, all persisted through a shared record store.
package game

import (
	"errors"
	"math"
	"math/big"
	"strings"
	"time"
)

const (
	MicrosPerUSD = int64(1_000_000)

	// CoinScale converts whole coins to coin units. 1 coin = 10_000 units.
	CoinScale = int64(10_000)
)

// Session lifecycle states.
const (
	StateOpen    = "open"
	StateStarted = "started"
	StateEnded   = "ended"
)

// Transaction actor kinds, recorded explicitly at write time.
const (
	ActorPlayer = "player"
	ActorBot    = "bot"
)

// Trade directions.
const (
	DirectionBuy  = "buy"
	DirectionSell = "sell"
)

// Bot strategy kinds.
const (
	BotRandom        = "random"
	BotMomentum      = "momentum"
	BotMeanReversion = "mean_reversion"
	BotMarketMaker   = "market_maker"
	BotHedger        = "hedger"
)

var (
	ErrSessionNotFound   = errors.New("session not found")
	ErrPlayerNotFound    = errors.New("player not found")
	ErrBotNotFound       = errors.New("bot not found")
	ErrInvalidConfig     = errors.New("invalid session config")
	ErrInvalidAmount     = errors.New("amount must be a positive quantity")
	ErrAlreadyStarted    = errors.New("session already started")
	ErrSessionNotActive  = errors.New("session is not active")
	ErrSessionFull       = errors.New("session is full")
	ErrDuplicateMember   = errors.New("player already joined")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInsufficientCoins = errors.New("insufficient coins")
	ErrForbidden         = errors.New("operation not permitted for this player")
	ErrContention        = errors.New("session record contended, retry")
	ErrBotInactive       = errors.New("bot is inactive")
)

// botKindAliases maps the storefront bot labels onto strategy kinds.
var botKindAliases = map[string]string{
	"hodler":    BotMeanReversion,
	"scalper":   BotMomentum,
	"swing":     BotMomentum,
	"arbitrage": BotMarketMaker,
	"dip":       BotMeanReversion,
	"premade":   BotRandom,
	"custom":    BotRandom,
}

// ParseBotKind resolves a requested bot type, including storefront
// aliases, to a canonical strategy kind.
func ParseBotKind(raw string) (string, bool) {
	kind := strings.ToLower(strings.TrimSpace(raw))
	switch kind {
	case BotRandom, BotMomentum, BotMeanReversion, BotMarketMaker, BotHedger:
		return kind, true
	}
	if mapped, ok := botKindAliases[kind]; ok {
		return mapped, true
	}
	return "", false
}

type Session struct {
	ID              string `json:"id"`
	CreatorID       string `json:"creator_id"`
	State           string `json:"state"`
	MaxPlayers      int    `json:"max_players"`
	DurationSeconds int64  `json:"duration_seconds"`

	// Stake is what every joining player starts with.
	StakeUsdMicros int64 `json:"stake_usd_micros"`
	StakeCoinUnits int64 `json:"stake_coin_units"`

	CreatedAt time.Time     `json:"created_at"`
	StartedAt *time.Time    `json:"started_at,omitempty"`
	EndedAt   *time.Time    `json:"ended_at,omitempty"`
	Players   []Player      `json:"players"`
	Price     PriceSnapshot `json:"price"`

	// Version is bumped on every committed mutation of the session record.
	Version int64 `json:"version"`
}

func (s *Session) player(playerID string) *Player {
	for i := range s.Players {
		if s.Players[i].PlayerID == playerID {
			return &s.Players[i]
		}
	}
	return nil
}

// Deadline reports when a started session expires. The zero time means
// the session has no deadline yet.
func (s *Session) Deadline() time.Time {
	if s.StartedAt == nil {
		return time.Time{}
	}
	return s.StartedAt.Add(time.Duration(s.DurationSeconds) * time.Second)
}

type Player struct {
	PlayerID        string   `json:"player_id"`
	DisplayName     string   `json:"display_name"`
	UsdMicros       int64    `json:"usd_micros"`
	CoinUnits       int64    `json:"coin_units"`
	Bots            []BotRef `json:"bots,omitempty"`
	LastActionUnits int64    `json:"last_action_units"`
	LastActionAt    int64    `json:"last_action_at"`
}

func (p *Player) botRef(botID string) *BotRef {
	for i := range p.Bots {
		if p.Bots[i].BotID == botID {
			return &p.Bots[i]
		}
	}
	return nil
}

// BotRef is the per-player roster entry for an owned bot. The bot's
// wallet lives in its own record.
type BotRef struct {
	BotID  string `json:"bot_id"`
	Name   string `json:"name"`
	Active bool   `json:"active"`
}

type Bot struct {
	BotID             string    `json:"bot_id"`
	SessionID         string    `json:"session_id"`
	OwnerPlayerID     string    `json:"owner_player_id"`
	Kind              string    `json:"kind"`
	DisplayName       string    `json:"display_name"`
	UsdMicros         int64     `json:"usd_micros"`
	CoinUnits         int64     `json:"coin_units"`
	StartingUsdMicros int64     `json:"starting_usd_micros"`
	Active            bool      `json:"active"`
	BehaviorBps       int64     `json:"behavior_bps"`
	CreatedAt         time.Time `json:"created_at"`
}

type Transaction struct {
	ActorID       string    `json:"actor_id"`
	ActorName     string    `json:"actor_name"`
	ActorKind     string    `json:"actor_kind"`
	Direction     string    `json:"direction"`
	QuantityUnits int64     `json:"quantity_units"`
	PriceMicros   int64     `json:"price_micros"`
	Timestamp     time.Time `json:"timestamp"`
}

// PriceSnapshot is the last price the session observed, kept on the
// session record so trades can fall back to it when the live feed is
// slow or down.
type PriceSnapshot struct {
	PriceMicros   int64     `json:"price_micros"`
	VolatilityBps int64     `json:"volatility_bps"`
	ObservedAt    time.Time `json:"observed_at"`
}

var errNotionalOverflow = errors.New("notional overflows int64")

// NotionalMicros computes quantityUnits * priceMicros / CoinScale with
// big.Int intermediates. A product that does not fit an int64 is an
// error, never a wrapped value.
func NotionalMicros(quantityUnits, priceMicros int64) (int64, error) {
	n := new(big.Int).Mul(big.NewInt(quantityUnits), big.NewInt(priceMicros))
	n.Quo(n, big.NewInt(CoinScale))
	if !n.IsInt64() {
		return 0, errNotionalOverflow
	}
	return n.Int64(), nil
}

func USDToMicros(v float64) int64 {
	return int64(math.Round(v * float64(MicrosPerUSD)))
}

func MicrosToUSD(v int64) float64 {
	return float64(v) / float64(MicrosPerUSD)
}

func CoinsToUnits(v float64) int64 {
	return int64(math.Round(v * float64(CoinScale)))
}

func UnitsToCoins(v int64) float64 {
	return float64(v) / float64(CoinScale)
}
