package game

import "time"

type CreateSessionInput struct {
	CreatorID   string
	DisplayName string
	MaxPlayers  int
	// DurationSeconds is how long the session runs once started.
	DurationSeconds int64
	// StartingUsdMicros and StartingCoinUnits default from Rules when zero.
	StartingUsdMicros int64
	StartingCoinUnits int64
}

type JoinInput struct {
	SessionID   string
	PlayerID    string
	DisplayName string
}

// MutatePlayerInput applies signed deltas to one player's wallet. Both
// deltas land in the same committed write.
type MutatePlayerInput struct {
	SessionID      string
	PlayerID       string
	UsdDeltaMicros int64
	CoinDeltaUnits int64
}

type TradeInput struct {
	SessionID     string
	PlayerID      string
	Direction     string
	QuantityUnits int64
}

type TradeResult struct {
	Transaction Transaction `json:"transaction"`
	UsdMicros   int64       `json:"usd_micros"`
	CoinUnits   int64       `json:"coin_units"`
	// PriceStale is set when the live feed timed out and the trade
	// executed against the session's cached snapshot.
	PriceStale bool `json:"price_stale"`
}

type PurchaseBotInput struct {
	SessionID string
	PlayerID  string
	Kind      string
	Name      string
}

type BotTradeInput struct {
	SessionID     string
	BotID         string
	Direction     string
	QuantityUnits int64
}

type BotTradeResult struct {
	Transaction Transaction `json:"transaction"`
	UsdMicros   int64       `json:"usd_micros"`
	CoinUnits   int64       `json:"coin_units"`
	PriceStale  bool        `json:"price_stale"`
}

// TransactionPage is a most-recent-first slice of the session log.
type TransactionPage struct {
	Transactions []Transaction `json:"transactions"`
	Total        int64         `json:"total"`
	Offset       int64         `json:"offset"`
}

type TransactionStats struct {
	Total       int64 `json:"total"`
	Buys        int64 `json:"buys"`
	Sells       int64 `json:"sells"`
	PlayerCount int64 `json:"player_count"`
	BotCount    int64 `json:"bot_count"`
	VolumeUnits int64 `json:"volume_units"`
}

// Standing is one leaderboard row. Wealth is USD plus coins valued at
// the session's last observed price.
type Standing struct {
	Rank         int    `json:"rank"`
	PlayerID     string `json:"player_id"`
	DisplayName  string `json:"display_name"`
	UsdMicros    int64  `json:"usd_micros"`
	CoinUnits    int64  `json:"coin_units"`
	WealthMicros int64  `json:"wealth_micros"`
}

// SessionSnapshot is the read model served to clients: the session
// plus derived fields the UI polls for.
type SessionSnapshot struct {
	Session          *Session   `json:"session"`
	Standings        []Standing `json:"standings"`
	TransactionCount int64      `json:"transaction_count"`
	SecondsRemaining int64      `json:"seconds_remaining"`
}

// FinalizeRecord is handed to the finalizer exactly once when a
// session ends.
type FinalizeRecord struct {
	SessionID string     `json:"session_id"`
	EndedAt   time.Time  `json:"ended_at"`
	Standings []Standing `json:"standings"`
}
