package game

import (
	"context"
	"math"
	"sort"
)

// Standings returns the session's live wealth ranking.
func (s *Service) Standings(ctx context.Context, sessionID string) ([]Standing, error) {
	sess, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return standingsFromSession(sess), nil
}

// standingsFromSession values every player at the session's last
// observed price and ranks by total wealth, richest first. Ties keep
// join order.
func standingsFromSession(sess *Session) []Standing {
	out := make([]Standing, 0, len(sess.Players))
	for _, p := range sess.Players {
		// Rankings saturate rather than fail on absurd valuations.
		wealth := int64(math.MaxInt64)
		if notional, err := NotionalMicros(p.CoinUnits, sess.Price.PriceMicros); err == nil {
			wealth = p.UsdMicros + notional
		}
		out = append(out, Standing{
			PlayerID:     p.PlayerID,
			DisplayName:  p.DisplayName,
			UsdMicros:    p.UsdMicros,
			CoinUnits:    p.CoinUnits,
			WealthMicros: wealth,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].WealthMicros > out[j].WealthMicros
	})
	for i := range out {
		out[i].Rank = i + 1
	}
	return out
}
