package model

import (
	"errors"
	"math"
	"strings"
)

// Known exchange identifiers (lowercase, wire format).
const (
	ExchangeBinance     = "binance"
	ExchangeBybit       = "bybit"
	ExchangeOKX         = "okx"
	ExchangeKucoin      = "kucoin"
	ExchangeDeribit     = "deribit"
	ExchangeBitget      = "bitget"
	ExchangeGateio      = "gateio"
	ExchangeMexc        = "mexc"
	ExchangeBitmex      = "bitmex"
	ExchangePhemex      = "phemex"
	ExchangeHyperliquid = "hyperliquid"
	ExchangeDydx        = "dydx"
	ExchangeCoindcx     = "coindcx"
)

var (
	ErrInvalidPrice = errors.New("tick price must be positive and finite")
	ErrCrossedQuote = errors.New("tick bid exceeds ask")
	ErrEmptyKey     = errors.New("tick symbol and exchange must be set")
)

// PriceTick is one exchange's current quote for one canonical symbol.
// Bid/Ask are nil when the exchange frame omits them.
type PriceTick struct {
	Symbol    string   `json:"symbol"`
	Exchange  string   `json:"exchange"`
	Price     float64  `json:"price"`
	Bid       *float64 `json:"bid"`
	Ask       *float64 `json:"ask"`
	Timestamp int64    `json:"timestamp"` // unix ms
}

// Validate rejects ticks that must never reach the price store.
func (t *PriceTick) Validate() error {
	if strings.TrimSpace(t.Symbol) == "" || strings.TrimSpace(t.Exchange) == "" {
		return ErrEmptyKey
	}
	if t.Price <= 0 || math.IsInf(t.Price, 0) || math.IsNaN(t.Price) {
		return ErrInvalidPrice
	}
	if t.Bid != nil && t.Ask != nil && *t.Bid > *t.Ask {
		return ErrCrossedQuote
	}
	return nil
}

// Float64Ptr is a convenience for optional bid/ask fields.
func Float64Ptr(v float64) *float64 { return &v }

// MarketSummary aggregates store cardinalities for consumers.
type MarketSummary struct {
	TotalSymbols   int      `json:"total_symbols"`
	TotalExchanges int      `json:"total_exchanges"`
	Symbols        []string `json:"symbols"`
	Exchanges      []string `json:"exchanges"`
	PriceCount     int      `json:"price_count"`
	LastUpdate     int64    `json:"last_update"` // unix ms
}

// BestQuote is one side of the cross-exchange book top.
type BestQuote struct {
	Price     float64 `json:"price"`
	Exchange  string  `json:"exchange"`
	Timestamp int64   `json:"timestamp"`
}

// BestPrices reports the tightest marketable spread across exchanges:
// best bid = max bid anywhere, best ask = min ask anywhere. The spread can be
// negative when venues are crossed; this is a different notion from the
// detector's pairwise arbitrage spread and must stay separate.
type BestPrices struct {
	Symbol           string     `json:"symbol"`
	BestBid          *BestQuote `json:"best_bid"`
	BestAsk          *BestQuote `json:"best_ask"`
	Spread           *float64   `json:"spread"`
	SpreadPercentage *float64   `json:"spread_percentage"`
}
