package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// knownExchanges is the set of connector names the factory can build.
var knownExchanges = map[string]struct{}{
	"binance": {}, "bybit": {}, "okx": {}, "kucoin": {}, "deribit": {},
	"bitget": {}, "gateio": {}, "mexc": {}, "bitmex": {}, "phemex": {},
	"hyperliquid": {}, "dydx": {}, "coindcx": {},
}

type Config struct {
	App struct {
		LogLevel        string `toml:"log_level"`
		StalenessTTLSec int    `toml:"staleness_ttl_sec"`
		SweepEverySec   int    `toml:"sweep_every_sec"`
		SummaryEverySec int    `toml:"summary_every_sec"`
	} `toml:"app"`

	Arbitrage struct {
		MinSpreadPct float64 `toml:"min_spread_pct"`
		CooldownSec  int     `toml:"cooldown_sec"`
		TopN         int     `toml:"top_n"`
	} `toml:"arbitrage"`

	Server struct {
		Addr string `toml:"addr"`
	} `toml:"server"`

	Storage struct {
		Driver string `toml:"driver"`
		Path   string `toml:"path"`
		DSN    string `toml:"dsn"`
		Addr   string `toml:"addr"`
		Prefix string `toml:"prefix"`
	} `toml:"storage"`

	Exchanges map[string]Exchange `toml:"exchanges"`

	// Symbols maps canonical symbol to per-exchange native instrument ids,
	// e.g. BTC = { binance = "BTCUSDT", deribit = "BTC-PERPETUAL" }.
	Symbols map[string]map[string]string `toml:"symbols"`
}

type Exchange struct {
	Enabled  bool   `toml:"enabled"`
	WsURL    string `toml:"ws_url"`
	RestURL  string `toml:"rest_url"`
	TokenURL string `toml:"token_url"`
	PollSec  int    `toml:"poll_sec"`
}

func Load(path string) (*Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.App.StalenessTTLSec <= 0 {
		cfg.App.StalenessTTLSec = 60
	}
	if cfg.App.SweepEverySec <= 0 {
		cfg.App.SweepEverySec = 30
	}
	if cfg.App.SummaryEverySec <= 0 {
		cfg.App.SummaryEverySec = 10
	}
	if cfg.Arbitrage.MinSpreadPct <= 0 {
		cfg.Arbitrage.MinSpreadPct = 0.05
	}
	if cfg.Arbitrage.CooldownSec <= 0 {
		cfg.Arbitrage.CooldownSec = 300
	}
	if cfg.Arbitrage.TopN <= 0 {
		cfg.Arbitrage.TopN = 5
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8000"
	}
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = "none"
	}
}

func validate(cfg *Config) error {
	normalizeSymbols(cfg)
	if len(cfg.Symbols) == 0 {
		return errors.New("symbols table is empty")
	}

	for _, driver := range cfg.StorageDrivers() {
		switch driver {
		case "none":
		case "sqlite":
			if strings.TrimSpace(cfg.Storage.Path) == "" {
				return errors.New("storage.path empty but driver is sqlite")
			}
		case "postgres":
			if strings.TrimSpace(cfg.Storage.DSN) == "" {
				return errors.New("storage.dsn empty but driver is postgres")
			}
		case "redis":
			if strings.TrimSpace(cfg.Storage.Addr) == "" {
				return errors.New("storage.addr empty but driver is redis")
			}
		default:
			return fmt.Errorf("unknown storage.driver %q", driver)
		}
	}

	enabled := 0
	for name, ex := range cfg.Exchanges {
		lower := strings.ToLower(name)
		if _, ok := knownExchanges[lower]; !ok {
			return fmt.Errorf("unknown exchange %q in [exchanges]", name)
		}
		if ex.Enabled {
			enabled++
		}
	}
	if enabled == 0 {
		return errors.New("no exchange enabled")
	}

	for sym, perExchange := range cfg.Symbols {
		for ex := range perExchange {
			if _, ok := knownExchanges[strings.ToLower(ex)]; !ok {
				return fmt.Errorf("symbol %s maps unknown exchange %q", sym, ex)
			}
		}
	}
	return nil
}

// normalizeSymbols uppercases canonical symbols and lowercases exchange keys
// so lookups elsewhere never depend on config casing.
func normalizeSymbols(cfg *Config) {
	symbols := make(map[string]map[string]string, len(cfg.Symbols))
	for sym, perExchange := range cfg.Symbols {
		canon := strings.ToUpper(strings.TrimSpace(sym))
		if canon == "" {
			continue
		}
		m := make(map[string]string, len(perExchange))
		for ex, native := range perExchange {
			native = strings.TrimSpace(native)
			if native == "" {
				continue
			}
			m[strings.ToLower(strings.TrimSpace(ex))] = native
		}
		if len(m) > 0 {
			symbols[canon] = m
		}
	}
	cfg.Symbols = symbols

	exchanges := make(map[string]Exchange, len(cfg.Exchanges))
	for name, ex := range cfg.Exchanges {
		exchanges[strings.ToLower(strings.TrimSpace(name))] = ex
	}
	cfg.Exchanges = exchanges
}

// StorageDrivers splits storage.driver on commas so several mirrors can run
// side by side, e.g. "sqlite,redis".
func (c *Config) StorageDrivers() []string {
	var out []string
	for _, d := range strings.Split(c.Storage.Driver, ",") {
		d = strings.ToLower(strings.TrimSpace(d))
		if d != "" {
			out = append(out, d)
		}
	}
	if len(out) == 0 {
		out = []string{"none"}
	}
	return out
}

// EnabledExchanges lists the enabled connector names sorted by name.
func (c *Config) EnabledExchanges() []string {
	out := make([]string, 0, len(c.Exchanges))
	for name, ex := range c.Exchanges {
		if ex.Enabled {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

func (c *Config) StalenessTTL() time.Duration { return time.Duration(c.App.StalenessTTLSec) * time.Second }
func (c *Config) SweepEvery() time.Duration   { return time.Duration(c.App.SweepEverySec) * time.Second }
func (c *Config) SummaryEvery() time.Duration { return time.Duration(c.App.SummaryEverySec) * time.Second }
func (c *Config) Cooldown() time.Duration     { return time.Duration(c.Arbitrage.CooldownSec) * time.Second }
