package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()

	if cfg.StreamURL != "wss://stream.binance.com:9443/ws" {
		t.Errorf("StreamURL: %q", cfg.StreamURL)
	}
	if cfg.Symbols != "BTCUSDT,ETHUSDT,SOLUSDT" {
		t.Errorf("Symbols: %q", cfg.Symbols)
	}
	if cfg.ReconnectDelay != 3*time.Second {
		t.Errorf("ReconnectDelay: %v", cfg.ReconnectDelay)
	}
	if cfg.InitialBalance != 10000 {
		t.Errorf("InitialBalance: %v", cfg.InitialBalance)
	}
	if cfg.FundFromWallet {
		t.Error("FundFromWallet defaults to true")
	}
	if cfg.ListenAddr != ":8080" || cfg.MetricsAddr != ":9090" {
		t.Errorf("addrs: %q %q", cfg.ListenAddr, cfg.MetricsAddr)
	}
	if cfg.BroadcastInterval != time.Second {
		t.Errorf("BroadcastInterval: %v", cfg.BroadcastInterval)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel: %q", cfg.LogLevel)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("SYMBOLS", "BTCUSDT")
	t.Setenv("RECONNECT_DELAY", "5s")
	t.Setenv("INITIAL_BALANCE", "2500.50")
	t.Setenv("FUND_FROM_WALLET", "true")
	t.Setenv("BROADCAST_INTERVAL", "250ms")

	cfg := Load()
	if cfg.Symbols != "BTCUSDT" {
		t.Errorf("Symbols: %q", cfg.Symbols)
	}
	if cfg.ReconnectDelay != 5*time.Second {
		t.Errorf("ReconnectDelay: %v", cfg.ReconnectDelay)
	}
	if cfg.InitialBalance != 2500.50 {
		t.Errorf("InitialBalance: %v", cfg.InitialBalance)
	}
	if !cfg.FundFromWallet {
		t.Error("FundFromWallet not parsed")
	}
	if cfg.BroadcastInterval != 250*time.Millisecond {
		t.Errorf("BroadcastInterval: %v", cfg.BroadcastInterval)
	}
}

func TestLoad_BadValuesFallBack(t *testing.T) {
	t.Setenv("INITIAL_BALANCE", "lots")
	t.Setenv("RECONNECT_DELAY", "soon")
	t.Setenv("FUND_FROM_WALLET", "maybe")

	cfg := Load()
	if cfg.InitialBalance != 10000 {
		t.Errorf("InitialBalance: %v", cfg.InitialBalance)
	}
	if cfg.ReconnectDelay != 3*time.Second {
		t.Errorf("ReconnectDelay: %v", cfg.ReconnectDelay)
	}
	if cfg.FundFromWallet {
		t.Error("FundFromWallet should fall back to false")
	}
}

func TestParseSymbols(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"default_list", "BTCUSDT,ETHUSDT,SOLUSDT", []string{"BTCUSDT", "ETHUSDT", "SOLUSDT"}},
		{"lowercase_and_spaces", " btcusdt , ethusdt ", []string{"BTCUSDT", "ETHUSDT"}},
		{"empty_entries_skipped", "BTCUSDT,,ETHUSDT,", []string{"BTCUSDT", "ETHUSDT"}},
		{"single", "BTCUSDT", []string{"BTCUSDT"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{Symbols: tt.in}
			got := cfg.ParseSymbols()
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Errorf("got %v, want %v", got, tt.want)
					break
				}
			}
		})
	}
}
