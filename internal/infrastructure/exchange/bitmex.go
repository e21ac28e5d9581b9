package exchange

import (
	"context"
	"encoding/json"
	"fmt"

	"tickarb/internal/domain/model"
)

const bitmexWSURL = "wss://ws.bitmex.com/realtime"

// BitMEX realtime API. Quote rows carry best bid/ask, trade rows the last
// price; either table yields a tick.
type Bitmex struct {
	url    string
	mapper *Mapper
}

func NewBitmex(url string, mapper *Mapper) *Bitmex {
	if url == "" {
		url = bitmexWSURL
	}
	return &Bitmex{url: url, mapper: mapper}
}

func (b *Bitmex) Name() string { return model.ExchangeBitmex }

func (b *Bitmex) URL(_ context.Context) (string, error) { return b.url, nil }

func (b *Bitmex) SubscribeFrames(natives []string) ([][]byte, error) {
	args := make([]string, 0, 2*len(natives))
	for _, n := range natives {
		args = append(args, "quote:"+n, "trade:"+n)
	}
	frame, err := json.Marshal(map[string]any{"op": "subscribe", "args": args})
	if err != nil {
		return nil, err
	}
	return [][]byte{frame}, nil
}

// PingFrame is nil: bitmex honors transport-level pings.
func (b *Bitmex) PingFrame() []byte { return nil }

func (b *Bitmex) ParseFrame(raw []byte) ([]model.PriceTick, error) {
	var msg struct {
		Table string `json:"table"`
		Error string `json:"error"`
		Data  []struct {
			Symbol   string   `json:"symbol"`
			BidPrice *float64 `json:"bidPrice"`
			AskPrice *float64 `json:"askPrice"`
			Price    *float64 `json:"price"`
		} `json:"data"`
	}
	if err := parseJSON(raw, &msg); err != nil {
		return nil, err
	}
	if msg.Error != "" {
		return nil, fmt.Errorf("exchange error: %s", msg.Error)
	}
	if msg.Table != "quote" && msg.Table != "trade" {
		return nil, nil
	}
	var ticks []model.PriceTick
	for _, d := range msg.Data {
		canon, ok := b.mapper.Canonical(d.Symbol)
		if !ok {
			continue
		}
		tick := model.PriceTick{Symbol: canon, Exchange: b.Name()}
		switch msg.Table {
		case "quote":
			if d.BidPrice == nil || d.AskPrice == nil {
				continue
			}
			tick.Bid = d.BidPrice
			tick.Ask = d.AskPrice
			tick.Price = (*d.BidPrice + *d.AskPrice) / 2
		case "trade":
			if d.Price == nil {
				continue
			}
			tick.Price = *d.Price
		}
		ticks = append(ticks, tick)
	}
	return ticks, nil
}
