// Package service derives cross-exchange arbitrage opportunities from the
// price store and enforces alert hygiene.
package service

import (
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"tickarb/internal/domain/model"
	"tickarb/internal/domain/store"
)

const (
	// DefaultMinSpreadPct filters opportunities below 0.05%.
	DefaultMinSpreadPct = 0.05
	// DefaultCooldown limits alert-worthy notifications to one per symbol
	// per window.
	DefaultCooldown = 300 * time.Second
)

// Detector recomputes pairwise spreads from the store snapshot on demand.
// The cooldown map is its only mutable state and is serialized by mu.
type Detector struct {
	store        *store.Store
	minSpreadPct float64
	cooldown     time.Duration

	mu        sync.Mutex
	lastAlert map[string]time.Time

	now func() time.Time
}

func NewDetector(s *store.Store, minSpreadPct float64, cooldown time.Duration) *Detector {
	if minSpreadPct <= 0 {
		minSpreadPct = DefaultMinSpreadPct
	}
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &Detector{
		store:        s,
		minSpreadPct: minSpreadPct,
		cooldown:     cooldown,
		lastAlert:    make(map[string]time.Time),
		now:          time.Now,
	}
}

// MinSpreadPct returns the configured default threshold (percent).
func (d *Detector) MinSpreadPct() float64 { return d.minSpreadPct }

// SpreadBetween computes the spread between two exchanges for a symbol, or
// nil when either side has no current price.
func (d *Detector) SpreadBetween(symbol, ex1, ex2 string) *model.PairSpread {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	ex1 = strings.ToLower(strings.TrimSpace(ex1))
	ex2 = strings.ToLower(strings.TrimSpace(ex2))

	ticks := d.store.GetBySymbol(symbol)
	t1, ok1 := ticks[ex1]
	t2, ok2 := ticks[ex2]
	if !ok1 || !ok2 {
		return nil
	}

	spread := math.Abs(t1.Price - t2.Price)
	lower, higher := t1, t2
	lowerEx, higherEx := ex1, ex2
	if t2.Price < t1.Price {
		lower, higher = t2, t1
		lowerEx, higherEx = ex2, ex1
	}
	pct := 0.0
	if lower.Price > 0 {
		pct = spread / lower.Price * 100
	}
	ts := t1.Timestamp
	if t2.Timestamp > ts {
		ts = t2.Timestamp
	}
	return &model.PairSpread{
		Symbol:           symbol,
		Exchanges:        []string{ex1, ex2},
		Spread:           spread,
		SpreadPercentage: pct,
		Higher:           higherEx,
		Lower:            lowerEx,
		HigherPrice:      higher.Price,
		LowerPrice:       lower.Price,
		Timestamp:        ts,
	}
}

// ForSymbol enumerates all unordered exchange pairs currently holding a price
// for the symbol and returns the opportunities at or above minSpreadPct,
// sorted descending by spread percentage. minSpreadPct <= 0 falls back to the
// detector default.
func (d *Detector) ForSymbol(symbol string, minSpreadPct float64) []model.ArbitrageOpportunity {
	if minSpreadPct <= 0 {
		minSpreadPct = d.minSpreadPct
	}
	symbol = strings.ToUpper(strings.TrimSpace(symbol))

	ticks := d.store.GetBySymbol(symbol)
	if len(ticks) < 2 {
		return nil
	}
	exchanges := make([]string, 0, len(ticks))
	for ex := range ticks {
		exchanges = append(exchanges, ex)
	}
	sort.Strings(exchanges)

	now := d.now().UnixMilli()
	var out []model.ArbitrageOpportunity
	for i := 0; i < len(exchanges); i++ {
		for j := i + 1; j < len(exchanges); j++ {
			ps := d.SpreadBetween(symbol, exchanges[i], exchanges[j])
			if ps == nil || ps.SpreadPercentage < minSpreadPct {
				continue
			}
			out = append(out, model.ArbitrageOpportunity{
				Symbol:           symbol,
				BuyExchange:      ps.Lower,
				SellExchange:     ps.Higher,
				BuyPrice:         ps.LowerPrice,
				SellPrice:        ps.HigherPrice,
				Spread:           ps.Spread,
				SpreadPercentage: ps.SpreadPercentage,
				PotentialProfit:  ps.SpreadPercentage,
				Profitable:       ps.SpreadPercentage >= d.minSpreadPct,
				Timestamp:        now,
			})
		}
	}
	sort.Slice(out, func(a, b int) bool {
		return out[a].SpreadPercentage > out[b].SpreadPercentage
	})
	return out
}

// ListAll scans every symbol in the store and returns the top opportunities
// across the whole market, descending by spread percentage. limit <= 0 means
// no limit.
func (d *Detector) ListAll(minSpreadPct float64, limit int) []model.ArbitrageOpportunity {
	var all []model.ArbitrageOpportunity
	for _, sym := range d.store.Summary().Symbols {
		all = append(all, d.ForSymbol(sym, minSpreadPct)...)
	}
	sort.Slice(all, func(a, b int) bool {
		return all[a].SpreadPercentage > all[b].SpreadPercentage
	})
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all
}

// TryAlert consumes the per-symbol cooldown. It returns true at most once per
// symbol per cooldown window, independent of how many qualifying opportunities
// were computed inside that window.
func (d *Detector) TryAlert(symbol string) bool {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	now := d.now()

	d.mu.Lock()
	defer d.mu.Unlock()
	if last, ok := d.lastAlert[symbol]; ok && now.Sub(last) < d.cooldown {
		return false
	}
	d.lastAlert[symbol] = now
	return true
}

// AlertStatus reports whether an alert may fire for the symbol right now and
// how long until the next window opens.
func (d *Detector) AlertStatus(symbol string) model.AlertStatus {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	now := d.now()

	d.mu.Lock()
	last, ok := d.lastAlert[symbol]
	d.mu.Unlock()

	st := model.AlertStatus{Symbol: symbol, CanAlertNow: true}
	if ok {
		remaining := d.cooldown - now.Sub(last)
		if remaining > 0 {
			st.CanAlertNow = false
			st.SecondsUntilNextAlert = remaining.Seconds()
		}
	}
	return st
}
