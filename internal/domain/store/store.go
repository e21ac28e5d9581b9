// Package store holds the canonical in-memory table of the latest tick per
// (symbol, exchange) pair. It is the only state shared between connectors and
// consumers; every mutation goes through Update or SweepStale.
package store

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"tickarb/internal/domain/model"
)

const eventBuffer = 1024

// Store is safe for concurrent use. Reads return deep copies so no caller can
// mutate an entry outside the Update path.
type Store struct {
	mu         sync.RWMutex
	prices     map[string]map[string]model.PriceTick // symbol -> exchange -> tick
	lastUpdate int64                                 // unix ms of last accepted tick
	events     chan model.PriceTick
	dropped    uint64

	now func() time.Time
}

func New() *Store {
	return &Store{
		prices: make(map[string]map[string]model.PriceTick),
		events: make(chan model.PriceTick, eventBuffer),
		now:    time.Now,
	}
}

// Events yields one event per accepted update. The channel is bounded; if the
// consumer falls behind, events are dropped rather than blocking producers.
func (s *Store) Events() <-chan model.PriceTick { return s.events }

// Update applies a tick if it is valid and not older than the stored entry for
// the same (symbol, exchange). Returns true when the tick was accepted.
func (s *Store) Update(tick model.PriceTick) bool {
	if err := tick.Validate(); err != nil {
		log.Debug().Err(err).
			Str("exchange", tick.Exchange).
			Str("symbol", tick.Symbol).
			Msg("tick rejected by validation")
		return false
	}

	tick.Symbol = strings.ToUpper(tick.Symbol)
	tick.Exchange = strings.ToLower(tick.Exchange)
	if tick.Timestamp <= 0 {
		tick.Timestamp = s.now().UnixMilli()
	}

	s.mu.Lock()
	byExchange, ok := s.prices[tick.Symbol]
	if !ok {
		byExchange = make(map[string]model.PriceTick)
		s.prices[tick.Symbol] = byExchange
	}
	if prev, ok := byExchange[tick.Exchange]; ok && prev.Timestamp >= tick.Timestamp {
		s.mu.Unlock()
		return false
	}
	byExchange[tick.Exchange] = tick
	s.lastUpdate = s.now().UnixMilli()
	s.mu.Unlock()

	select {
	case s.events <- tick:
	default:
		s.mu.Lock()
		s.dropped++
		s.mu.Unlock()
	}
	return true
}

// GetAll returns a deep copy of the full table.
func (s *Store) GetAll() map[string]map[string]model.PriceTick {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]map[string]model.PriceTick, len(s.prices))
	for sym, byEx := range s.prices {
		cp := make(map[string]model.PriceTick, len(byEx))
		for ex, t := range byEx {
			cp[ex] = t
		}
		out[sym] = cp
	}
	return out
}

// GetBySymbol returns the per-exchange ticks for one symbol, or nil when the
// symbol has no current data.
func (s *Store) GetBySymbol(symbol string) map[string]model.PriceTick {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))

	s.mu.RLock()
	defer s.mu.RUnlock()

	byEx, ok := s.prices[symbol]
	if !ok || len(byEx) == 0 {
		return nil
	}
	cp := make(map[string]model.PriceTick, len(byEx))
	for ex, t := range byEx {
		cp[ex] = t
	}
	return cp
}

// BestPrices reports best bid (max across exchanges) and best ask (min across
// exchanges). Exchanges without a bid or ask are skipped on that side. Returns
// nil when the symbol is unknown.
func (s *Store) BestPrices(symbol string) *model.BestPrices {
	ticks := s.GetBySymbol(symbol)
	if ticks == nil {
		return nil
	}

	bp := &model.BestPrices{Symbol: strings.ToUpper(strings.TrimSpace(symbol))}
	for ex, t := range ticks {
		if t.Bid != nil && (bp.BestBid == nil || *t.Bid > bp.BestBid.Price) {
			bp.BestBid = &model.BestQuote{Price: *t.Bid, Exchange: ex, Timestamp: t.Timestamp}
		}
		if t.Ask != nil && (bp.BestAsk == nil || *t.Ask < bp.BestAsk.Price) {
			bp.BestAsk = &model.BestQuote{Price: *t.Ask, Exchange: ex, Timestamp: t.Timestamp}
		}
	}

	if bp.BestBid != nil && bp.BestAsk != nil && bp.BestBid.Price > 0 {
		spread := bp.BestAsk.Price - bp.BestBid.Price
		pct := spread / bp.BestBid.Price * 100
		bp.Spread = &spread
		bp.SpreadPercentage = &pct
	}
	return bp
}

// Summary returns market cardinalities over the current table.
func (s *Store) Summary() model.MarketSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	symbols := make([]string, 0, len(s.prices))
	exchangeSet := make(map[string]struct{})
	count := 0
	for sym, byEx := range s.prices {
		symbols = append(symbols, sym)
		count += len(byEx)
		for ex := range byEx {
			exchangeSet[ex] = struct{}{}
		}
	}
	exchanges := make([]string, 0, len(exchangeSet))
	for ex := range exchangeSet {
		exchanges = append(exchanges, ex)
	}
	sort.Strings(symbols)
	sort.Strings(exchanges)

	return model.MarketSummary{
		TotalSymbols:   len(symbols),
		TotalExchanges: len(exchanges),
		Symbols:        symbols,
		Exchanges:      exchanges,
		PriceCount:     count,
		LastUpdate:     s.lastUpdate,
	}
}

// SweepStale removes entries whose age exceeds ttl. Pruning is silent: no
// events are emitted, but subsequent reads see the smaller table. Returns the
// number of removed entries.
func (s *Store) SweepStale(ttl time.Duration) int {
	cutoff := s.now().Add(-ttl).UnixMilli()

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for sym, byEx := range s.prices {
		for ex, t := range byEx {
			if t.Timestamp < cutoff {
				delete(byEx, ex)
				removed++
			}
		}
		if len(byEx) == 0 {
			delete(s.prices, sym)
		}
	}
	if removed > 0 {
		log.Info().Int("removed", removed).Msg("stale price entries swept")
	}
	return removed
}

// RunSweeper sweeps every interval until the channel is closed. Typical wiring
// starts this in its own goroutine and closes stop on shutdown.
func (s *Store) RunSweeper(stop <-chan struct{}, interval, ttl time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.SweepStale(ttl)
		}
	}
}

// DroppedEvents reports how many change events were discarded because the
// consumer fell behind.
func (s *Store) DroppedEvents() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dropped
}
