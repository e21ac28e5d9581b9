package postgres

import (
	"context"
	"database/sql"

	_ "github.com/jackc/pgx/v5/stdlib"

	"tickarb/internal/application/port"
	"tickarb/internal/domain/model"
)

type Repo struct {
	db *sql.DB
}

func New(dsn string) (*Repo, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)

	r := &Repo{db: db}
	if err := r.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

func (r *Repo) Close() error { return r.db.Close() }

func (r *Repo) migrate(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS latest_prices (
  exchange TEXT NOT NULL,
  symbol TEXT NOT NULL,
  price DOUBLE PRECISION NOT NULL,
  bid DOUBLE PRECISION,
  ask DOUBLE PRECISION,
  ts_ms BIGINT NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  PRIMARY KEY (exchange, symbol)
);

CREATE TABLE IF NOT EXISTS latest_opportunities (
  symbol TEXT PRIMARY KEY,
  buy_exchange TEXT NOT NULL,
  sell_exchange TEXT NOT NULL,
  buy_price DOUBLE PRECISION NOT NULL,
  sell_price DOUBLE PRECISION NOT NULL,
  spread DOUBLE PRECISION NOT NULL,
  spread_pct DOUBLE PRECISION NOT NULL,
  ts_ms BIGINT NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`)
	return err
}

func (r *Repo) UpsertLatestPrice(ctx context.Context, t model.PriceTick) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO latest_prices(exchange, symbol, price, bid, ask, ts_ms, updated_at)
VALUES($1, $2, $3, $4, $5, $6, now())
ON CONFLICT (exchange, symbol) DO UPDATE SET
  price = EXCLUDED.price, bid = EXCLUDED.bid, ask = EXCLUDED.ask,
  ts_ms = EXCLUDED.ts_ms, updated_at = now()
`, t.Exchange, t.Symbol, t.Price, t.Bid, t.Ask, t.Timestamp)
	return err
}

func (r *Repo) UpsertOpportunity(ctx context.Context, opp model.ArbitrageOpportunity) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO latest_opportunities(symbol, buy_exchange, sell_exchange, buy_price, sell_price, spread, spread_pct, ts_ms, updated_at)
VALUES($1, $2, $3, $4, $5, $6, $7, $8, now())
ON CONFLICT (symbol) DO UPDATE SET
  buy_exchange = EXCLUDED.buy_exchange, sell_exchange = EXCLUDED.sell_exchange,
  buy_price = EXCLUDED.buy_price, sell_price = EXCLUDED.sell_price,
  spread = EXCLUDED.spread, spread_pct = EXCLUDED.spread_pct,
  ts_ms = EXCLUDED.ts_ms, updated_at = now()
`, opp.Symbol, opp.BuyExchange, opp.SellExchange, opp.BuyPrice, opp.SellPrice,
		opp.Spread, opp.SpreadPercentage, opp.Timestamp)
	return err
}

var _ port.Repository = (*Repo)(nil)
