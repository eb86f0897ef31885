package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"bananatrade/internal/game"
	"bananatrade/internal/store"
)

type APIConfig struct {
	Addr  string
	Redis store.RedisConfig
	// DatabaseURL is optional; without it the standings archive is
	// disabled and finalize goes to MarketResultsURL if set.
	DatabaseURL      string
	MarketURL        string
	MarketResultsURL string
	MarketTimeout    time.Duration
	Rules            game.Rules
}

type BotsConfig struct {
	Redis store.RedisConfig
	// The worker's expiry sweep ends overdue sessions, so it needs the
	// same finalizer wiring as the API.
	DatabaseURL      string
	MarketURL        string
	MarketResultsURL string
	MarketTimeout    time.Duration
	TickEvery        time.Duration
	Rules            game.Rules
}

type CLIConfig struct {
	APIBaseURL string
}

// LoadAPIFromEnv reads API server configuration. A .env file in the
// working directory is loaded first when present.
func LoadAPIFromEnv() (APIConfig, error) {
	loadDotEnv()

	addr := os.Getenv("PORT")
	if addr != "" {
		if !strings.HasPrefix(addr, ":") {
			addr = ":" + addr
		}
	} else {
		addr = envDefault("BANANA_API_ADDR", ":8080")
	}

	cfg := APIConfig{
		Addr:             addr,
		Redis:            redisFromEnv(),
		DatabaseURL:      strings.TrimSpace(os.Getenv("DATABASE_URL")),
		MarketURL:        strings.TrimRight(strings.TrimSpace(os.Getenv("MARKET_URL")), "/"),
		MarketResultsURL: strings.TrimRight(strings.TrimSpace(os.Getenv("MARKET_RESULTS_URL")), "/"),
		MarketTimeout:    envDurationDefault("BANANA_MARKET_TIMEOUT", 5*time.Second),
		Rules:            rulesFromEnv(),
	}
	if cfg.MarketURL == "" {
		return cfg, fmt.Errorf("MARKET_URL is required")
	}
	return cfg, nil
}

func LoadBotsFromEnv() (BotsConfig, error) {
	loadDotEnv()

	cfg := BotsConfig{
		Redis:            redisFromEnv(),
		DatabaseURL:      strings.TrimSpace(os.Getenv("DATABASE_URL")),
		MarketURL:        strings.TrimRight(strings.TrimSpace(os.Getenv("MARKET_URL")), "/"),
		MarketResultsURL: strings.TrimRight(strings.TrimSpace(os.Getenv("MARKET_RESULTS_URL")), "/"),
		MarketTimeout:    envDurationDefault("BANANA_MARKET_TIMEOUT", 5*time.Second),
		TickEvery:        envDurationDefault("BANANA_BOT_TICK_EVERY", 3*time.Second),
		Rules:            rulesFromEnv(),
	}
	if cfg.MarketURL == "" {
		return cfg, fmt.Errorf("MARKET_URL is required")
	}
	return cfg, nil
}

func LoadCLIFromEnv() CLIConfig {
	loadDotEnv()
	return CLIConfig{
		APIBaseURL: strings.TrimRight(envDefault("BNT_API_BASE_URL", "http://localhost:8080"), "/"),
	}
}

func redisFromEnv() store.RedisConfig {
	return store.RedisConfig{
		Addr:     envDefault("REDIS_IP", "localhost") + ":" + envDefault("REDIS_PORT", "6379"),
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       envIntDefault("REDIS_DB", 0),
	}
}

func rulesFromEnv() game.Rules {
	rules := game.DefaultRules()
	rules.StarterUsdMicros = envMoneyDefault("BANANA_STARTER_USD", rules.StarterUsdMicros)
	rules.BotPriceMicros = envMoneyDefault("BANANA_BOT_PRICE_USD", rules.BotPriceMicros)
	rules.BotFundingMicros = envMoneyDefault("BANANA_BOT_FUNDING_USD", rules.BotFundingMicros)
	rules.InitialPriceMicros = envPriceDefault("BANANA_INITIAL_PRICE_USD", rules.InitialPriceMicros)
	rules.PriceTimeout = envDurationDefault("BANANA_PRICE_TIMEOUT", rules.PriceTimeout)
	return rules
}

func loadDotEnv() {
	// Missing .env is the normal case outside local dev.
	_ = godotenv.Load()
}

func envDefault(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func envDurationDefault(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func envIntDefault(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

// envMoneyDefault reads a whole-USD amount and returns micros.
func envMoneyDefault(key string, fallbackMicros int64) int64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallbackMicros
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f < 0 {
		return fallbackMicros
	}
	return game.USDToMicros(f)
}

// envPriceDefault is envMoneyDefault for prices, where zero is as
// invalid as negative: a zero snapshot price would let trades execute
// for free whenever the feed is down.
func envPriceDefault(key string, fallbackMicros int64) int64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallbackMicros
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f <= 0 {
		return fallbackMicros
	}
	return game.USDToMicros(f)
}
