package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"tickarb/internal/application/port"
	"tickarb/internal/domain/model"
)

const (
	coindcxRESTURL      = "https://api.coindcx.com/exchange/ticker"
	coindcxPollInterval = 5 * time.Second
	coindcxMaxFailures  = 3
)

// CoinDCX exposes no public websocket, so this connector polls the ticker
// endpoint instead. It still satisfies port.Connector: a run of consecutive
// request failures ends the session and hands reconnection to the supervisor.
type CoinDCX struct {
	url      string
	poll     time.Duration
	client   *http.Client
	mapper   *Mapper
	failures int
}

func NewCoinDCX(url string, poll time.Duration, client *http.Client, mapper *Mapper) *CoinDCX {
	if url == "" {
		url = coindcxRESTURL
	}
	if poll <= 0 {
		poll = coindcxPollInterval
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &CoinDCX{url: url, poll: poll, client: client, mapper: mapper}
}

func (c *CoinDCX) Name() string { return model.ExchangeCoindcx }

func (c *CoinDCX) Run(ctx context.Context, natives []string, sink port.Sink) error {
	if len(natives) == 0 {
		return ErrNoSymbols
	}
	wanted := make(map[string]struct{}, len(natives))
	for _, n := range natives {
		wanted[n] = struct{}{}
	}

	c.failures = 0
	sink.Connected(c.Name())
	log.Info().Str("exchange", c.Name()).Int("symbols", len(natives)).Dur("interval", c.poll).Msg("polling started")

	ticker := time.NewTicker(c.poll)
	defer ticker.Stop()

	// First fetch immediately so a fresh session is not blind for a full
	// interval.
	if err := c.fetchOnce(ctx, wanted, sink); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := c.fetchOnce(ctx, wanted, sink); err != nil {
				return err
			}
		}
	}
}

func (c *CoinDCX) fetchOnce(ctx context.Context, wanted map[string]struct{}, sink port.Sink) error {
	ticks, err := c.fetch(ctx, wanted)
	if err != nil {
		c.failures++
		log.Warn().Str("exchange", c.Name()).Int("consecutive", c.failures).Err(err).Msg("poll failed")
		if c.failures >= coindcxMaxFailures {
			return fmt.Errorf("%s: %d consecutive poll failures: %w", c.Name(), c.failures, err)
		}
		return nil
	}
	c.failures = 0
	for _, t := range ticks {
		sink.Tick(t)
	}
	return nil
}

func (c *CoinDCX) fetch(ctx context.Context, wanted map[string]struct{}) ([]model.PriceTick, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, err
	}

	var rows []struct {
		Market    string `json:"market"`
		LastPrice string `json:"last_price"`
		Bid       string `json:"bid"`
		Ask       string `json:"ask"`
		Timestamp int64  `json:"timestamp"`
	}
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("decode ticker list: %w", err)
	}

	var ticks []model.PriceTick
	for _, r := range rows {
		if _, ok := wanted[r.Market]; !ok {
			continue
		}
		canon, ok := c.mapper.Canonical(r.Market)
		if !ok {
			continue
		}
		last, err := strconv.ParseFloat(r.LastPrice, 64)
		if err != nil || last <= 0 {
			continue
		}
		tick := model.PriceTick{
			Symbol:   canon,
			Exchange: c.Name(),
			Price:    last,
			// The ticker endpoint reports seconds.
			Timestamp: r.Timestamp * 1000,
		}
		if v, err := strconv.ParseFloat(r.Bid, 64); err == nil && v > 0 {
			tick.Bid = model.Float64Ptr(v)
		}
		if v, err := strconv.ParseFloat(r.Ask, 64); err == nil && v > 0 {
			tick.Ask = model.Float64Ptr(v)
		}
		ticks = append(ticks, tick)
	}
	return ticks, nil
}
