// Package storage provides state-mirror repositories. Each backend keeps only
// the latest price per (exchange, symbol) and the latest opportunity per
// symbol for external readers; the in-process store stays the source of truth.
package storage

import (
	"context"

	"tickarb/internal/application/port"
	"tickarb/internal/domain/model"
)

// Noop discards everything. Used when no mirror backend is configured.
type Noop struct{}

func NewNoop() *Noop { return &Noop{} }

func (Noop) UpsertLatestPrice(ctx context.Context, t model.PriceTick) error { return nil }

func (Noop) UpsertOpportunity(ctx context.Context, opp model.ArbitrageOpportunity) error {
	return nil
}

func (Noop) Close() error { return nil }

var _ port.Repository = (*Noop)(nil)
