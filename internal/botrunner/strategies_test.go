package botrunner

import (
	"math/rand"
	"testing"

	"bananatrade/internal/game"
)

func testBot(kind string) *game.Bot {
	return &game.Bot{
		BotID:       "bot-fixed-id",
		Kind:        kind,
		UsdMicros:   2_000 * game.MicrosPerUSD,
		CoinUnits:   0,
		BehaviorBps: 10_000,
		Active:      true,
	}
}

func flatHistory(priceMicros int64, n int) []int64 {
	out := make([]int64, n)
	for i := range out {
		out[i] = priceMicros
	}
	return out
}

func TestDecideHoldsWithoutPrice(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	d := decide(testBot(game.BotMomentum), game.PriceQuote{}, rng)
	if !d.Hold() {
		t.Fatalf("expected hold on zero price, got %+v", d)
	}
}

func TestMomentumBuysOnUptrend(t *testing.T) {
	history := make([]int64, 30)
	for i := range history {
		history[i] = int64(1_000_000 + i*50_000)
	}
	quote := game.PriceQuote{PriceMicros: history[len(history)-1], HistoryMicros: history}

	bot := testBot(game.BotMomentum)
	sawBuy := false
	for seed := int64(0); seed < 20; seed++ {
		d := decide(bot, quote, rand.New(rand.NewSource(seed)))
		if d.Direction == game.DirectionSell {
			t.Fatalf("momentum must not sell into a strong uptrend")
		}
		if d.Direction == game.DirectionBuy {
			if d.QuantityUnits <= 0 {
				t.Fatalf("buy decision with no quantity")
			}
			sawBuy = true
		}
	}
	if !sawBuy {
		t.Fatalf("expected at least one buy across seeds")
	}
}

func TestMomentumHoldsOnFlatMarket(t *testing.T) {
	quote := game.PriceQuote{PriceMicros: 1_000_000, HistoryMicros: flatHistory(1_000_000, 30)}
	d := decide(testBot(game.BotMomentum), quote, rand.New(rand.NewSource(7)))
	if !d.Hold() {
		t.Fatalf("expected hold on flat market, got %+v", d)
	}
}

func TestMeanReversionSellsAboveBand(t *testing.T) {
	// Noisy history around 1.00, current price far above it.
	history := make([]int64, 30)
	for i := range history {
		history[i] = 1_000_000 + int64((i%5)-2)*10_000
	}
	quote := game.PriceQuote{PriceMicros: 2_000_000, HistoryMicros: history}

	bot := testBot(game.BotMeanReversion)
	sawSell := false
	for seed := int64(0); seed < 20; seed++ {
		d := decide(bot, quote, rand.New(rand.NewSource(seed)))
		if d.Direction == game.DirectionBuy {
			t.Fatalf("mean reversion must not buy far above the mean")
		}
		if d.Direction == game.DirectionSell {
			sawSell = true
		}
	}
	if !sawSell {
		t.Fatalf("expected at least one sell across seeds")
	}
}

func TestMarketMakerRebalancesTowardTarget(t *testing.T) {
	// All USD, no coins: far below any coin-ratio target, so the only
	// possible action is a buy.
	bot := testBot(game.BotMarketMaker)
	quote := game.PriceQuote{PriceMicros: 1_000_000, HistoryMicros: flatHistory(1_000_000, 10)}

	sawBuy := false
	for seed := int64(0); seed < 20; seed++ {
		d := decide(bot, quote, rand.New(rand.NewSource(seed)))
		if d.Direction == game.DirectionSell {
			t.Fatalf("market maker with zero coins cannot sell")
		}
		if d.Direction == game.DirectionBuy {
			sawBuy = true
		}
	}
	if !sawBuy {
		t.Fatalf("expected rebalancing buy")
	}
}

func TestHedgerPrefersCoinsInCalmMarket(t *testing.T) {
	bot := testBot(game.BotHedger)
	quote := game.PriceQuote{PriceMicros: 1_000_000, HistoryMicros: flatHistory(1_000_000, 20)}

	sawBuy := false
	for seed := int64(0); seed < 20; seed++ {
		d := decide(bot, quote, rand.New(rand.NewSource(seed)))
		if d.Direction == game.DirectionSell {
			t.Fatalf("hedger with zero coins cannot sell")
		}
		if d.Direction == game.DirectionBuy {
			sawBuy = true
		}
	}
	if !sawBuy {
		t.Fatalf("expected calm-market buy toward the high coin ratio")
	}
}

func TestRandomStrategyRespectsProbability(t *testing.T) {
	bot := testBot(game.BotRandom)
	quote := game.PriceQuote{PriceMicros: 1_000_000}

	trades := 0
	const rounds = 2000
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < rounds; i++ {
		d := decide(bot, quote, rng)
		if !d.Hold() {
			if d.QuantityUnits <= 0 {
				t.Fatalf("trade decision with no quantity")
			}
			trades++
		}
	}
	// Trade probability is 0.3 at personality 1.0.
	if trades < rounds/5 || trades > rounds/2 {
		t.Fatalf("trade rate %d/%d outside expected band", trades, rounds)
	}
}

func TestVariationIsStableAndBounded(t *testing.T) {
	a := variation("bot-1", "threshold", 0.8, 1.2)
	if a != variation("bot-1", "threshold", 0.8, 1.2) {
		t.Fatalf("variation must be deterministic")
	}
	if a < 0.8 || a > 1.2 {
		t.Fatalf("variation %f out of bounds", a)
	}
	if a == variation("bot-2", "threshold", 0.8, 1.2) && a == variation("bot-3", "threshold", 0.8, 1.2) {
		t.Fatalf("variation should differ across bots")
	}
}
