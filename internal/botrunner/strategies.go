package botrunner

import (
	"hash/fnv"
	"math"
	"math/rand"

	"bananatrade/internal/game"
)

// Decision is one tick's verdict for a bot. An empty direction means
// hold.
type Decision struct {
	Direction     string
	QuantityUnits int64
}

func (d Decision) Hold() bool { return d.Direction == "" }

var hold = Decision{}

// decide evaluates the bot's strategy against the price history. All
// per-bot parameter variation is derived from the bot ID so a bot
// keeps one personality across ticks.
func decide(bot *game.Bot, quote game.PriceQuote, rng *rand.Rand) Decision {
	if quote.PriceMicros <= 0 {
		return hold
	}
	personality := float64(bot.BehaviorBps) / 10_000
	switch bot.Kind {
	case game.BotRandom:
		return decideRandom(personality, rng)
	case game.BotMomentum:
		return decideMomentum(bot, quote, personality, rng)
	case game.BotMeanReversion:
		return decideMeanReversion(bot, quote, rng)
	case game.BotMarketMaker:
		return decideMarketMaker(bot, quote, rng)
	case game.BotHedger:
		return decideHedger(bot, quote, rng)
	}
	return hold
}

func decideRandom(personality float64, rng *rand.Rand) Decision {
	const baseProbability = 0.3
	if rng.Float64() > baseProbability*personality {
		return hold
	}
	direction := game.DirectionBuy
	if rng.Float64() < 0.5 {
		direction = game.DirectionSell
	}
	minCoins := 0.5 * personality
	maxCoins := 3.0 * personality
	coins := minCoins + rng.Float64()*(maxCoins-minCoins)
	return Decision{Direction: direction, QuantityUnits: game.CoinsToUnits(coins)}
}

func decideMomentum(bot *game.Bot, quote game.PriceQuote, personality float64, rng *rand.Rand) Decision {
	prices := quote.HistoryMicros
	if len(prices) < 2 {
		return hold
	}
	shortWindow := int(math.Max(3, 5*personality))
	longWindow := int(math.Max(float64(shortWindow+1), 20*personality))
	if len(prices) < shortWindow {
		return hold
	}
	shortMA := meanTail(prices, shortWindow)
	longMA := meanTail(prices, longWindow)

	threshold := 0.015 + variation(bot.BotID, "threshold", 0, 0.010)
	coins := 2.0 * variation(bot.BotID, "amount", 0.8, 1.2)
	if rng.Float64() < 0.05 {
		return hold
	}
	qty := game.CoinsToUnits(coins)
	switch {
	case shortMA > longMA*(1+threshold):
		return Decision{Direction: game.DirectionBuy, QuantityUnits: qty}
	case shortMA < longMA*(1-threshold):
		return Decision{Direction: game.DirectionSell, QuantityUnits: qty}
	}
	return hold
}

func decideMeanReversion(bot *game.Bot, quote game.PriceQuote, rng *rand.Rand) Decision {
	lookback := int(math.Max(5, 20*variation(bot.BotID, "lookback", 0.8, 1.2)))
	prices := tail(quote.HistoryMicros, lookback)
	if len(prices) < 2 {
		return hold
	}
	mean := meanTail(prices, len(prices))
	var variance float64
	for _, p := range prices {
		d := float64(p) - mean
		variance += d * d
	}
	variance /= float64(len(prices))
	stdDev := math.Sqrt(variance)
	if stdDev == 0 {
		return hold
	}
	zScore := (float64(quote.PriceMicros) - mean) / stdDev

	threshold := 1.5 * variation(bot.BotID, "threshold", 0.8, 1.2)
	coins := 2.5 * variation(bot.BotID, "amount", 0.7, 1.3)
	if rng.Float64() < 0.03 {
		return hold
	}
	qty := game.CoinsToUnits(coins)
	switch {
	case zScore > threshold:
		return Decision{Direction: game.DirectionSell, QuantityUnits: qty}
	case zScore < -threshold:
		return Decision{Direction: game.DirectionBuy, QuantityUnits: qty}
	}
	return hold
}

// decideMarketMaker rebalances toward a target coin share of the bot's
// total wealth.
func decideMarketMaker(bot *game.Bot, quote game.PriceQuote, rng *rand.Rand) Decision {
	coinValue, err := game.NotionalMicros(bot.CoinUnits, quote.PriceMicros)
	if err != nil {
		return hold
	}
	total := bot.UsdMicros + coinValue
	if total == 0 {
		return hold
	}
	ratio := float64(coinValue) / float64(total)

	target := 0.5 * variation(bot.BotID, "target", 0.8, 1.2)
	threshold := 0.1 * variation(bot.BotID, "threshold", 0.8, 1.2)
	coins := 1.5 * variation(bot.BotID, "size", 0.6, 1.4)
	if rng.Float64() < 0.05 {
		return hold
	}
	qty := game.CoinsToUnits(coins)
	switch {
	case ratio < target-threshold:
		return Decision{Direction: game.DirectionBuy, QuantityUnits: qty}
	case ratio > target+threshold:
		return Decision{Direction: game.DirectionSell, QuantityUnits: qty}
	}
	return hold
}

// decideHedger holds mostly coins in calm markets and mostly USD in
// volatile ones.
func decideHedger(bot *game.Bot, quote game.PriceQuote, rng *rand.Rand) Decision {
	window := int(math.Max(5, 10*variation(bot.BotID, "window", 0.7, 1.3)))
	prices := tail(quote.HistoryMicros, window)
	if len(prices) < 2 {
		return hold
	}
	returns := make([]float64, 0, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		if prices[i-1] > 0 {
			returns = append(returns, float64(prices[i]-prices[i-1])/float64(prices[i-1]))
		}
	}
	if len(returns) == 0 {
		return hold
	}
	var meanReturn float64
	for _, r := range returns {
		meanReturn += r
	}
	meanReturn /= float64(len(returns))
	var variance float64
	for _, r := range returns {
		d := r - meanReturn
		variance += d * d
	}
	variance /= float64(len(returns))
	volatility := math.Sqrt(variance)

	coinValue, err := game.NotionalMicros(bot.CoinUnits, quote.PriceMicros)
	if err != nil {
		return hold
	}
	total := bot.UsdMicros + coinValue
	if total == 0 {
		return hold
	}
	ratio := float64(coinValue) / float64(total)

	volThreshold := 0.05 * variation(bot.BotID, "vol_threshold", 0.8, 1.2)
	var target float64
	if volatility > volThreshold {
		target = 0.3 * variation(bot.BotID, "high_vol", 0.8, 1.2)
	} else {
		target = 0.7 * variation(bot.BotID, "low_vol", 0.8, 1.2)
	}
	rebalance := 0.1 * variation(bot.BotID, "rebalance", 0.8, 1.2)
	coins := 2.0 * variation(bot.BotID, "size", 0.7, 1.3)
	if rng.Float64() < 0.04 {
		return hold
	}
	qty := game.CoinsToUnits(coins)
	switch {
	case ratio < target-rebalance:
		return Decision{Direction: game.DirectionBuy, QuantityUnits: qty}
	case ratio > target+rebalance:
		return Decision{Direction: game.DirectionSell, QuantityUnits: qty}
	}
	return hold
}

// variation maps a salted hash of the bot ID onto [lo, hi], giving
// each bot stable parameter offsets.
func variation(botID, salt string, lo, hi float64) float64 {
	h := fnv.New32a()
	h.Write([]byte(botID))
	h.Write([]byte(salt))
	frac := float64(h.Sum32()%1000) / 999
	return lo + frac*(hi-lo)
}

func tail(prices []int64, n int) []int64 {
	if len(prices) <= n {
		return prices
	}
	return prices[len(prices)-n:]
}

func meanTail(prices []int64, n int) float64 {
	t := tail(prices, n)
	if len(t) == 0 {
		return 0
	}
	var sum float64
	for _, p := range t {
		sum += float64(p)
	}
	return sum / float64(len(t))
}
