package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"tickarb/internal/application/port"
	"tickarb/internal/domain/model"
)

// Repo mirrors latest state into Redis: a hash of latest prices keyed
// "<exchange>:<symbol>" and a pub/sub channel carrying opportunities for
// external listeners.
type Repo struct {
	rdb       *redis.Client
	prefix    string
	ttl       time.Duration
	keyLatest string
	oppChan   string
}

func New(rdb *redis.Client, prefix string, ttl time.Duration) *Repo {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "tickarb"
	}
	return &Repo{
		rdb:       rdb,
		prefix:    prefix,
		ttl:       ttl,
		keyLatest: prefix + ":latest",
		oppChan:   prefix + ":opportunities",
	}
}

func (r *Repo) UpsertLatestPrice(ctx context.Context, t model.PriceTick) error {
	b, err := json.Marshal(t)
	if err != nil {
		return err
	}

	field := fmt.Sprintf("%s:%s", t.Exchange, t.Symbol)
	pipe := r.rdb.Pipeline()
	pipe.HSet(ctx, r.keyLatest, field, string(b))
	if r.ttl > 0 {
		pipe.Expire(ctx, r.keyLatest, r.ttl)
	}
	_, err = pipe.Exec(ctx)
	return err
}

func (r *Repo) UpsertOpportunity(ctx context.Context, opp model.ArbitrageOpportunity) error {
	b, err := json.Marshal(opp)
	if err != nil {
		return err
	}

	key := fmt.Sprintf("%s:opp:%s", r.prefix, opp.Symbol)
	pipe := r.rdb.Pipeline()
	pipe.Set(ctx, key, string(b), r.ttl)
	pipe.Publish(ctx, r.oppChan, string(b))
	_, err = pipe.Exec(ctx)
	return err
}

func (r *Repo) Close() error { return r.rdb.Close() }

var _ port.Repository = (*Repo)(nil)
