// Package service glues the price store, the arbitrage detector, the
// subscriber hub and the state mirror together.
package service

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"tickarb/internal/application/hub"
	"tickarb/internal/application/port"
	"tickarb/internal/domain/model"
	"tickarb/internal/domain/service"
	"tickarb/internal/domain/store"
)

// DefaultTopN caps how many ranked opportunities are pushed per recomputation.
const DefaultTopN = 5

type EngineDeps struct {
	Store        *store.Store
	Detector     *service.Detector
	Hub          *hub.Hub
	Repo         port.Repository
	TopN         int
	SummaryEvery time.Duration
}

// Engine consumes store change events, recomputes opportunities for the
// affected symbol, and publishes both to the hub. Derived work never fails the
// producing update: repository and detector errors are logged and dropped.
type Engine struct {
	deps EngineDeps
}

func NewEngine(deps EngineDeps) *Engine {
	if deps.TopN <= 0 {
		deps.TopN = DefaultTopN
	}
	if deps.SummaryEvery <= 0 {
		deps.SummaryEvery = 15 * time.Second
	}
	return &Engine{deps: deps}
}

// Run blocks until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	summaryTicker := time.NewTicker(e.deps.SummaryEvery)
	defer summaryTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-summaryTicker.C:
			e.deps.Hub.Publish(port.Event{
				Type: port.EventMarketSummary,
				Data: e.deps.Store.Summary(),
			})

		case tick := <-e.deps.Store.Events():
			e.handleTick(ctx, tick)
		}
	}
}

func (e *Engine) handleTick(ctx context.Context, pt model.PriceTick) {
	symbol := pt.Symbol

	e.deps.Hub.Publish(port.Event{Type: port.EventPriceUpdate, Data: pt})

	if err := e.deps.Repo.UpsertLatestPrice(ctx, pt); err != nil {
		log.Warn().Err(err).Str("exchange", pt.Exchange).Str("symbol", symbol).
			Msg("latest price mirror failed")
	}

	opps := e.deps.Detector.ForSymbol(symbol, 0)
	if len(opps) == 0 {
		return
	}
	top := opps
	if len(top) > e.deps.TopN {
		top = top[:e.deps.TopN]
	}
	e.deps.Hub.Publish(port.Event{Type: port.EventArbitrage, Data: top})

	best := top[0]
	if err := e.deps.Repo.UpsertOpportunity(ctx, best); err != nil {
		log.Warn().Err(err).Str("symbol", symbol).Msg("opportunity mirror failed")
	}

	if best.Profitable && e.deps.Detector.TryAlert(symbol) {
		log.Info().
			Str("symbol", best.Symbol).
			Str("buy", best.BuyExchange).
			Str("sell", best.SellExchange).
			Float64("buy_price", best.BuyPrice).
			Float64("sell_price", best.SellPrice).
			Float64("spread_pct", best.SpreadPercentage).
			Msg("arbitrage opportunity detected")
	}
}

// SnapshotEvents builds the hub's new-subscriber snapshot: the current market
// summary followed by the full price table.
func SnapshotEvents(s *store.Store) func() []port.Event {
	return func() []port.Event {
		return []port.Event{
			{Type: port.EventMarketSummary, Data: s.Summary()},
			{Type: port.EventInitialPrices, Data: s.GetAll()},
		}
	}
}
