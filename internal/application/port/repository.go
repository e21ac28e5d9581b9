package port

import (
	"context"

	"tickarb/internal/domain/model"
)

// Repository mirrors the latest canonical state to an external store so
// dashboards can read it without touching the in-process price table. Only
// the latest row per key is kept; this is a point-in-time mirror, not history.
type Repository interface {
	UpsertLatestPrice(ctx context.Context, t model.PriceTick) error
	UpsertOpportunity(ctx context.Context, opp model.ArbitrageOpportunity) error
	Close() error
}
