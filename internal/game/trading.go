package game

import (
	"context"
	"fmt"
	"time"
)

// Trade executes a player buy or sell at the live price, falling back
// to the session's cached snapshot when the feed is slow. The balance
// change and the log entry commit together.
func (s *Service) Trade(ctx context.Context, in TradeInput) (*TradeResult, error) {
	if err := validateTrade(in.Direction, in.QuantityUnits); err != nil {
		return nil, err
	}

	quote, stale := s.lookupPrice(ctx, in.SessionID)

	var out TradeResult
	err := s.mutateSession(ctx, in.SessionID, func(sess *Session) ([]Transaction, error) {
		if sess.State != StateStarted {
			return nil, ErrSessionNotActive
		}
		p := sess.player(in.PlayerID)
		if p == nil {
			return nil, ErrPlayerNotFound
		}
		px := quote.PriceMicros
		if stale {
			px = sess.Price.PriceMicros
		}
		notional, err := NotionalMicros(in.QuantityUnits, px)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidAmount, err)
		}
		switch in.Direction {
		case DirectionBuy:
			if p.UsdMicros < notional {
				return nil, ErrInsufficientFunds
			}
			p.UsdMicros -= notional
			p.CoinUnits += in.QuantityUnits
		case DirectionSell:
			if p.CoinUnits < in.QuantityUnits {
				return nil, ErrInsufficientCoins
			}
			p.CoinUnits -= in.QuantityUnits
			p.UsdMicros += notional
		}
		now := s.now().UTC()
		p.LastActionUnits = in.QuantityUnits
		p.LastActionAt = now.Unix()
		if !stale {
			sess.Price = PriceSnapshot{
				PriceMicros:   px,
				VolatilityBps: quote.VolatilityBps,
				ObservedAt:    now,
			}
		}
		out = TradeResult{
			Transaction: Transaction{
				ActorID:       p.PlayerID,
				ActorName:     p.DisplayName,
				ActorKind:     ActorPlayer,
				Direction:     in.Direction,
				QuantityUnits: in.QuantityUnits,
				PriceMicros:   px,
				Timestamp:     now,
			},
			UsdMicros:  p.UsdMicros,
			CoinUnits:  p.CoinUnits,
			PriceStale: stale,
		}
		return []Transaction{out.Transaction}, nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("trade executed",
		"session_id", in.SessionID,
		"player_id", in.PlayerID,
		"direction", in.Direction,
		"quantity_units", in.QuantityUnits,
		"price_micros", out.Transaction.PriceMicros,
		"price_stale", out.PriceStale)
	return &out, nil
}

// lookupPrice asks the feed for the current price under the configured
// timeout. It reports stale=true when the feed is unavailable, in
// which case the caller uses the session snapshot instead.
func (s *Service) lookupPrice(ctx context.Context, sessionID string) (PriceQuote, bool) {
	if s.market == nil {
		return PriceQuote{}, true
	}
	timeout := s.rules.PriceTimeout
	if timeout <= 0 {
		timeout = 300 * time.Millisecond
	}
	priceCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	quote, err := s.market.CurrentPrice(priceCtx, sessionID)
	if err != nil || quote.PriceMicros <= 0 {
		if err != nil {
			s.log.Warn("price lookup failed, using cached snapshot",
				"session_id", sessionID, "error", err)
		}
		return PriceQuote{}, true
	}
	return quote, false
}

// maxTradeUnits caps one order at a billion coins so wallet additions
// cannot wrap int64.
const maxTradeUnits = 1_000_000_000 * CoinScale

func validateTrade(direction string, quantityUnits int64) error {
	if quantityUnits <= 0 {
		return ErrInvalidAmount
	}
	if quantityUnits > maxTradeUnits {
		return fmt.Errorf("%w: quantity exceeds maximum order size", ErrInvalidAmount)
	}
	if direction != DirectionBuy && direction != DirectionSell {
		return fmt.Errorf("%w: direction must be buy or sell", ErrInvalidAmount)
	}
	return nil
}
