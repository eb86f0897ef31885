package game

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"bananatrade/internal/store"
)

// Record store key scheme. One hash per session, one list per
// transaction log, one hash per bot wallet plus a per-session roster
// set, and a global index of session IDs.
const sessionsIndexKey = "sessions"

func gameKey(sessionID string) string { return "game:" + sessionID }
func txnsKey(sessionID string) string { return "transactions:" + sessionID }
func botsKey(sessionID string) string { return "bots:" + sessionID }

func botKey(sessionID, botID string) string {
	return "bot:" + sessionID + ":" + botID
}

func sessionRecord(s *Session) (store.Record, error) {
	players, err := json.Marshal(s.Players)
	if err != nil {
		return nil, fmt.Errorf("encode players: %w", err)
	}
	rec := store.Record{
		"id":                s.ID,
		"creator_id":        s.CreatorID,
		"state":             s.State,
		"max_players":       strconv.Itoa(s.MaxPlayers),
		"duration_seconds":  strconv.FormatInt(s.DurationSeconds, 10),
		"stake_usd_micros":  strconv.FormatInt(s.StakeUsdMicros, 10),
		"stake_coin_units":  strconv.FormatInt(s.StakeCoinUnits, 10),
		"created_at":        s.CreatedAt.UTC().Format(time.RFC3339Nano),
		"players":           string(players),
		"price_micros":      strconv.FormatInt(s.Price.PriceMicros, 10),
		"volatility_bps":    strconv.FormatInt(s.Price.VolatilityBps, 10),
		"price_observed_at": s.Price.ObservedAt.UTC().Format(time.RFC3339Nano),
		"version":           strconv.FormatInt(s.Version, 10),
	}
	if s.StartedAt != nil {
		rec["started_at"] = s.StartedAt.UTC().Format(time.RFC3339Nano)
	}
	if s.EndedAt != nil {
		rec["ended_at"] = s.EndedAt.UTC().Format(time.RFC3339Nano)
	}
	return rec, nil
}

func sessionFromRecord(rec store.Record) (*Session, error) {
	if len(rec) == 0 {
		return nil, ErrSessionNotFound
	}
	s := &Session{
		ID:        rec["id"],
		CreatorID: rec["creator_id"],
		State:     rec["state"],
	}
	var err error
	if s.MaxPlayers, err = strconv.Atoi(rec["max_players"]); err != nil {
		return nil, fmt.Errorf("decode max_players: %w", err)
	}
	if s.DurationSeconds, err = parseInt(rec, "duration_seconds"); err != nil {
		return nil, err
	}
	if s.StakeUsdMicros, err = parseInt(rec, "stake_usd_micros"); err != nil {
		return nil, err
	}
	if s.StakeCoinUnits, err = parseInt(rec, "stake_coin_units"); err != nil {
		return nil, err
	}
	if s.CreatedAt, err = parseTime(rec, "created_at"); err != nil {
		return nil, err
	}
	if v := rec["started_at"]; v != "" {
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return nil, fmt.Errorf("decode started_at: %w", err)
		}
		s.StartedAt = &t
	}
	if v := rec["ended_at"]; v != "" {
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return nil, fmt.Errorf("decode ended_at: %w", err)
		}
		s.EndedAt = &t
	}
	if v := rec["players"]; v != "" {
		if err := json.Unmarshal([]byte(v), &s.Players); err != nil {
			return nil, fmt.Errorf("decode players: %w", err)
		}
	}
	if s.Price.PriceMicros, err = parseInt(rec, "price_micros"); err != nil {
		return nil, err
	}
	if s.Price.VolatilityBps, err = parseInt(rec, "volatility_bps"); err != nil {
		return nil, err
	}
	if v := rec["price_observed_at"]; v != "" {
		if s.Price.ObservedAt, err = parseTime(rec, "price_observed_at"); err != nil {
			return nil, err
		}
	}
	if s.Version, err = parseInt(rec, "version"); err != nil {
		return nil, err
	}
	return s, nil
}

func botRecord(b *Bot) store.Record {
	return store.Record{
		"bot_id":              b.BotID,
		"session_id":          b.SessionID,
		"owner_player_id":     b.OwnerPlayerID,
		"kind":                b.Kind,
		"display_name":        b.DisplayName,
		"usd_micros":          strconv.FormatInt(b.UsdMicros, 10),
		"coin_units":          strconv.FormatInt(b.CoinUnits, 10),
		"starting_usd_micros": strconv.FormatInt(b.StartingUsdMicros, 10),
		"active":              strconv.FormatBool(b.Active),
		"behavior_bps":        strconv.FormatInt(b.BehaviorBps, 10),
		"created_at":          b.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func botFromRecord(rec store.Record) (*Bot, error) {
	if len(rec) == 0 {
		return nil, ErrBotNotFound
	}
	b := &Bot{
		BotID:         rec["bot_id"],
		SessionID:     rec["session_id"],
		OwnerPlayerID: rec["owner_player_id"],
		Kind:          rec["kind"],
		DisplayName:   rec["display_name"],
	}
	var err error
	if b.UsdMicros, err = parseInt(rec, "usd_micros"); err != nil {
		return nil, err
	}
	if b.CoinUnits, err = parseInt(rec, "coin_units"); err != nil {
		return nil, err
	}
	if b.StartingUsdMicros, err = parseInt(rec, "starting_usd_micros"); err != nil {
		return nil, err
	}
	if b.Active, err = strconv.ParseBool(rec["active"]); err != nil {
		return nil, fmt.Errorf("decode active: %w", err)
	}
	if b.BehaviorBps, err = parseInt(rec, "behavior_bps"); err != nil {
		return nil, err
	}
	if b.CreatedAt, err = parseTime(rec, "created_at"); err != nil {
		return nil, err
	}
	return b, nil
}

func encodeTransaction(t Transaction) (string, error) {
	raw, err := json.Marshal(t)
	if err != nil {
		return "", fmt.Errorf("encode transaction: %w", err)
	}
	return string(raw), nil
}

func decodeTransaction(raw string) (Transaction, error) {
	var t Transaction
	if err := json.Unmarshal([]byte(raw), &t); err != nil {
		return Transaction{}, fmt.Errorf("decode transaction: %w", err)
	}
	return t, nil
}

func parseInt(rec store.Record, field string) (int64, error) {
	v, err := strconv.ParseInt(rec[field], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("decode %s: %w", field, err)
	}
	return v, nil
}

func parseTime(rec store.Record, field string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, rec[field])
	if err != nil {
		return time.Time{}, fmt.Errorf("decode %s: %w", field, err)
	}
	return t.UTC(), nil
}
