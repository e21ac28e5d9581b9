package model

// ArbitrageOpportunity is a detected cross-exchange spread for one symbol at
// one instant. Always derived from the current store snapshot, never stored.
type ArbitrageOpportunity struct {
	Symbol           string  `json:"symbol"`
	BuyExchange      string  `json:"buy_exchange"`
	SellExchange     string  `json:"sell_exchange"`
	BuyPrice         float64 `json:"buy_price"`
	SellPrice        float64 `json:"sell_price"`
	Spread           float64 `json:"spread"`
	SpreadPercentage float64 `json:"spread_percentage"`
	PotentialProfit  float64 `json:"potential_profit"`
	Profitable       bool    `json:"profitable"`
	Timestamp        int64   `json:"timestamp"` // unix ms, time of computation
}

// PairSpread is the raw spread between two named exchanges for a symbol.
type PairSpread struct {
	Symbol           string   `json:"symbol"`
	Exchanges        []string `json:"exchanges"`
	Spread           float64  `json:"spread"`
	SpreadPercentage float64  `json:"spread_percentage"`
	Higher           string   `json:"higher"`
	Lower            string   `json:"lower"`
	HigherPrice      float64  `json:"higher_price"`
	LowerPrice       float64  `json:"lower_price"`
	Timestamp        int64    `json:"timestamp"`
}

// AlertStatus reports per-symbol alert rate-limit state.
type AlertStatus struct {
	Symbol                string  `json:"symbol"`
	CanAlertNow           bool    `json:"can_alert_now"`
	SecondsUntilNextAlert float64 `json:"seconds_until_next_alert"`
}
