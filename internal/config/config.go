package config

import (
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Addr string

	// HeartbeatInterval is what connected clients are expected to
	// send at; ReapTimeout must stay strictly greater so a single
	// missed beat is tolerated.
	HeartbeatInterval time.Duration
	ReapTimeout       time.Duration
	SweepInterval     time.Duration
	ReconnectDelay    time.Duration

	CoinGeckoURL string
	BinanceURL   string
	CacheSoftTTL time.Duration
	CacheHardTTL time.Duration
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getDurationEnv(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

// Load reads an optional .env file, then the environment.
func Load() *Config {
	_ = godotenv.Load()

	cfg := &Config{
		Addr: getEnv("PRESENCE_ADDR", ":8080"),

		HeartbeatInterval: getDurationEnv("PRESENCE_HEARTBEAT_INTERVAL", 10*time.Second),
		ReapTimeout:       getDurationEnv("PRESENCE_REAP_TIMEOUT", 30*time.Second),
		SweepInterval:     getDurationEnv("PRESENCE_SWEEP_INTERVAL", 5*time.Second),
		ReconnectDelay:    getDurationEnv("PRESENCE_RECONNECT_DELAY", 3*time.Second),

		CoinGeckoURL: getEnv("MARKET_COINGECKO_URL", "https://api.coingecko.com/api/v3"),
		BinanceURL:   getEnv("MARKET_BINANCE_URL", "https://api.binance.com"),
		CacheSoftTTL: getDurationEnv("MARKET_CACHE_SOFT_TTL", time.Minute),
		CacheHardTTL: getDurationEnv("MARKET_CACHE_HARD_TTL", 10*time.Minute),
	}

	// The reap timeout must exceed the heartbeat interval, or a
	// single missed beat evicts every client. Clamp to the default
	// ratio of three beats per window.
	if cfg.ReapTimeout <= cfg.HeartbeatInterval {
		clamped := 3 * cfg.HeartbeatInterval
		log.Printf("PRESENCE_REAP_TIMEOUT %v <= heartbeat interval %v, clamping to %v",
			cfg.ReapTimeout, cfg.HeartbeatInterval, clamped)
		cfg.ReapTimeout = clamped
	}
	return cfg
}
