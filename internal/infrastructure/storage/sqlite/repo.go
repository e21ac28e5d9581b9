package sqlite

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"tickarb/internal/application/port"
	"tickarb/internal/domain/model"
)

type Repo struct {
	db *sql.DB
}

func New(path string) (*Repo, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		_ = os.MkdirAll(dir, 0o755)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

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
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  exchange TEXT NOT NULL,
  symbol TEXT NOT NULL,
  price REAL NOT NULL,
  bid REAL,
  ask REAL,
  ts_ms INTEGER NOT NULL,
  updated_at INTEGER NOT NULL,
  UNIQUE(exchange, symbol)
);
CREATE INDEX IF NOT EXISTS idx_latest_prices_symbol ON latest_prices(symbol);

CREATE TABLE IF NOT EXISTS latest_opportunities (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  symbol TEXT NOT NULL,
  buy_exchange TEXT NOT NULL,
  sell_exchange TEXT NOT NULL,
  buy_price REAL NOT NULL,
  sell_price REAL NOT NULL,
  spread REAL NOT NULL,
  spread_pct REAL NOT NULL,
  ts_ms INTEGER NOT NULL,
  updated_at INTEGER NOT NULL,
  UNIQUE(symbol)
);
`)
	return err
}

func (r *Repo) UpsertLatestPrice(ctx context.Context, t model.PriceTick) error {
	var bid, ask any
	if t.Bid != nil {
		bid = *t.Bid
	}
	if t.Ask != nil {
		ask = *t.Ask
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO latest_prices(exchange, symbol, price, bid, ask, ts_ms, updated_at)
VALUES(?, ?, ?, ?, ?, ?, strftime('%s','now')*1000)
ON CONFLICT(exchange, symbol) DO UPDATE SET
  price=excluded.price, bid=excluded.bid, ask=excluded.ask,
  ts_ms=excluded.ts_ms, updated_at=excluded.updated_at
`, t.Exchange, t.Symbol, t.Price, bid, ask, t.Timestamp)
	return err
}

func (r *Repo) UpsertOpportunity(ctx context.Context, opp model.ArbitrageOpportunity) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO latest_opportunities(symbol, buy_exchange, sell_exchange, buy_price, sell_price, spread, spread_pct, ts_ms, updated_at)
VALUES(?, ?, ?, ?, ?, ?, ?, ?, strftime('%s','now')*1000)
ON CONFLICT(symbol) DO UPDATE SET
  buy_exchange=excluded.buy_exchange, sell_exchange=excluded.sell_exchange,
  buy_price=excluded.buy_price, sell_price=excluded.sell_price,
  spread=excluded.spread, spread_pct=excluded.spread_pct,
  ts_ms=excluded.ts_ms, updated_at=excluded.updated_at
`, opp.Symbol, opp.BuyExchange, opp.SellExchange, opp.BuyPrice, opp.SellPrice,
		opp.Spread, opp.SpreadPercentage, opp.Timestamp)
	return err
}

var _ port.Repository = (*Repo)(nil)
