package exchange

import (
	"context"
	"fmt"
	"strconv"

	"tickarb/internal/domain/model"
)

const dydxWSURL = "wss://indexer.dydx.trade/v4/ws"

// dYdX v4 indexer markets channel. Subscribed and channel_data frames both
// carry a markets map keyed by native ticker.
type Dydx struct {
	url    string
	mapper *Mapper
}

func NewDydx(url string, mapper *Mapper) *Dydx {
	if url == "" {
		url = dydxWSURL
	}
	return &Dydx{url: url, mapper: mapper}
}

func (d *Dydx) Name() string { return model.ExchangeDydx }

func (d *Dydx) URL(_ context.Context) (string, error) { return d.url, nil }

func (d *Dydx) SubscribeFrames(_ []string) ([][]byte, error) {
	return [][]byte{[]byte(`{"type":"subscribe","channel":"v4_markets"}`)}, nil
}

// PingFrame is nil: the indexer keeps the socket alive with transport pings.
func (d *Dydx) PingFrame() []byte { return nil }

type dydxMarket struct {
	OraclePrice string `json:"oraclePrice"`
}

func (d *Dydx) ParseFrame(raw []byte) ([]model.PriceTick, error) {
	var msg struct {
		Type     string `json:"type"`
		Message  string `json:"message"`
		Contents struct {
			Markets map[string]dydxMarket `json:"markets"`
			Trading map[string]dydxMarket `json:"trading"`
		} `json:"contents"`
	}
	if err := parseJSON(raw, &msg); err != nil {
		return nil, err
	}
	switch msg.Type {
	case "error":
		return nil, fmt.Errorf("exchange error: %s", msg.Message)
	case "connected":
		return nil, nil
	case "subscribed", "channel_data":
	default:
		return nil, nil
	}

	markets := msg.Contents.Markets
	if len(markets) == 0 {
		markets = msg.Contents.Trading
	}
	var ticks []model.PriceTick
	for native, m := range markets {
		canon, ok := d.mapper.Canonical(native)
		if !ok || m.OraclePrice == "" {
			continue
		}
		price, err := strconv.ParseFloat(m.OraclePrice, 64)
		if err != nil || price <= 0 {
			continue
		}
		ticks = append(ticks, model.PriceTick{
			Symbol:   canon,
			Exchange: d.Name(),
			Price:    price,
		})
	}
	return ticks, nil
}
