// Package config loads application configuration from the environment,
// with an optional .env file for local development.
package config

import (
	"log"
	"strconv"
	"strings"
	"time"

	"os"

	"github.com/joho/godotenv"
)

// Config holds all application configuration.
type Config struct {
	// Market data
	StreamURL      string        // WebSocket trade-stream endpoint
	Symbols        string        // comma-separated exchange pairs, e.g. "BTCUSDT,ETHUSDT,SOLUSDT"
	ReconnectDelay time.Duration // fixed wait between stream reconnects

	// Session
	InitialBalance float64 // virtual USDT stake at the funding event
	FundFromWallet bool    // reconcile the stake against the wallet's token balance

	// Wallet display
	EthRPCURL    string // Ethereum JSON-RPC endpoint
	USDTContract string // ERC-20 token contract whose balance is displayed

	// Serving
	ListenAddr        string
	MetricsAddr       string
	BroadcastInterval time.Duration
	LogLevel          string
}

// Load reads configuration from the environment with sensible defaults.
// A .env file in the working directory is applied first if present.
func Load() *Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("[config] skipping .env: %v", err)
	}

	return &Config{
		StreamURL:      getEnv("STREAM_URL", "wss://stream.binance.com:9443/ws"),
		Symbols:        getEnv("SYMBOLS", "BTCUSDT,ETHUSDT,SOLUSDT"),
		ReconnectDelay: getEnvDuration("RECONNECT_DELAY", 3*time.Second),

		InitialBalance: getEnvFloat("INITIAL_BALANCE", 10000),
		FundFromWallet: getEnvBool("FUND_FROM_WALLET", false),

		EthRPCURL:    getEnv("ETH_RPC_URL", "https://cloudflare-eth.com"),
		USDTContract: getEnv("USDT_CONTRACT", "0xdAC17F958D2ee523a2206206994597C13D831ec7"),

		ListenAddr:        getEnv("LISTEN_ADDR", ":8080"),
		MetricsAddr:       getEnv("METRICS_ADDR", ":9090"),
		BroadcastInterval: getEnvDuration("BROADCAST_INTERVAL", time.Second),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
	}
}

// ParseSymbols splits the Symbols value into uppercase exchange pairs,
// skipping empty entries.
func (c *Config) ParseSymbols() []string {
	parts := strings.Split(c.Symbols, ",")
	pairs := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.ToUpper(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		pairs = append(pairs, p)
	}
	return pairs
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Printf("[config] invalid float for %s: %q, using %v", key, v, fallback)
		return fallback
	}
	return f
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Printf("[config] invalid bool for %s: %q, using %v", key, v, fallback)
		return fallback
	}
	return b
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		log.Printf("[config] invalid duration for %s: %q, using %v", key, v, fallback)
		return fallback
	}
	return d
}
