package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const validConfig = `
[app]
staleness_ttl_sec = 45

[arbitrage]
min_spread_pct = 0.1

[server]
addr = ":9000"

[exchanges.binance]
enabled = true

[exchanges.deribit]
enabled = true
ws_url = "wss://test.deribit.com/ws/api/v2"

[symbols]
btc = { Binance = "BTCUSDT", deribit = "BTC-PERPETUAL" }
ETH = { binance = "ETHUSDT" }
`

func TestLoadAppliesDefaultsAndNormalizes(t *testing.T) {
	cfg, err := Load(writeConfig(t, validConfig))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.App.StalenessTTLSec != 45 {
		t.Fatalf("staleness = %d", cfg.App.StalenessTTLSec)
	}
	if cfg.App.SweepEverySec != 30 || cfg.App.SummaryEverySec != 10 {
		t.Fatalf("sweep/summary defaults = %d/%d", cfg.App.SweepEverySec, cfg.App.SummaryEverySec)
	}
	if cfg.Arbitrage.MinSpreadPct != 0.1 {
		t.Fatalf("min_spread_pct = %v", cfg.Arbitrage.MinSpreadPct)
	}
	if cfg.Arbitrage.CooldownSec != 300 || cfg.Arbitrage.TopN != 5 {
		t.Fatalf("arbitrage defaults = %d/%d", cfg.Arbitrage.CooldownSec, cfg.Arbitrage.TopN)
	}
	if cfg.Server.Addr != ":9000" {
		t.Fatalf("addr = %s", cfg.Server.Addr)
	}
	if cfg.Storage.Driver != "none" {
		t.Fatalf("storage driver default = %s", cfg.Storage.Driver)
	}

	btc, ok := cfg.Symbols["BTC"]
	if !ok {
		t.Fatal("btc not uppercased to BTC")
	}
	if btc["binance"] != "BTCUSDT" {
		t.Fatalf("exchange key not lowercased: %v", btc)
	}

	enabled := cfg.EnabledExchanges()
	if len(enabled) != 2 || enabled[0] != "binance" || enabled[1] != "deribit" {
		t.Fatalf("enabled = %v", enabled)
	}
}

func TestLoadRejectsEmptySymbols(t *testing.T) {
	body := `
[exchanges.binance]
enabled = true
`
	if _, err := Load(writeConfig(t, body)); err == nil {
		t.Fatal("expected error for empty symbols table")
	}
}

func TestLoadRejectsNoEnabledExchange(t *testing.T) {
	body := `
[exchanges.binance]
enabled = false

[symbols]
BTC = { binance = "BTCUSDT" }
`
	if _, err := Load(writeConfig(t, body)); err == nil {
		t.Fatal("expected error when every exchange is disabled")
	}
}

func TestLoadRejectsUnknownExchange(t *testing.T) {
	body := `
[exchanges.wexchange]
enabled = true

[symbols]
BTC = { wexchange = "BTCUSDT" }
`
	if _, err := Load(writeConfig(t, body)); err == nil {
		t.Fatal("expected error for unknown exchange name")
	}
}

func TestLoadRejectsIncompleteStorage(t *testing.T) {
	body := `
[storage]
driver = "sqlite"

[exchanges.binance]
enabled = true

[symbols]
BTC = { binance = "BTCUSDT" }
`
	if _, err := Load(writeConfig(t, body)); err == nil {
		t.Fatal("expected error for sqlite driver without path")
	}
}

func TestStorageDriversSplitsList(t *testing.T) {
	body := `
[storage]
driver = "sqlite, redis"
path = "data/test.db"
addr = "localhost:6379"

[exchanges.binance]
enabled = true

[symbols]
BTC = { binance = "BTCUSDT" }
`
	cfg, err := Load(writeConfig(t, body))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	drivers := cfg.StorageDrivers()
	if len(drivers) != 2 || drivers[0] != "sqlite" || drivers[1] != "redis" {
		t.Fatalf("drivers = %v", drivers)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.toml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
