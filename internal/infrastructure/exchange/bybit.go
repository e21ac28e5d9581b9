package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"tickarb/internal/domain/model"
)

const bybitWSURL = "wss://stream.bybit.com/v5/public/linear"

// Bybit v5 linear perpetuals, level-1 orderbook channel. Delta frames may
// carry only one side; empty sides are skipped rather than zeroed.
type Bybit struct {
	url    string
	mapper *Mapper
}

func NewBybit(url string, mapper *Mapper) *Bybit {
	if url == "" {
		url = bybitWSURL
	}
	return &Bybit{url: url, mapper: mapper}
}

func (b *Bybit) Name() string { return model.ExchangeBybit }

func (b *Bybit) URL(_ context.Context) (string, error) { return b.url, nil }

func (b *Bybit) SubscribeFrames(natives []string) ([][]byte, error) {
	args := make([]string, 0, len(natives))
	for _, n := range natives {
		args = append(args, "orderbook.1."+n)
	}
	frame, err := json.Marshal(map[string]any{
		"op":     "subscribe",
		"args":   args,
		"req_id": "tickarb-sub",
	})
	if err != nil {
		return nil, err
	}
	return [][]byte{frame}, nil
}

func (b *Bybit) PingFrame() []byte {
	return []byte(`{"op":"ping","req_id":"tickarb-ping"}`)
}

func (b *Bybit) ParseFrame(raw []byte) ([]model.PriceTick, error) {
	var msg struct {
		Topic   string `json:"topic"`
		Op      string `json:"op"`
		Success *bool  `json:"success"`
		RetMsg  string `json:"ret_msg"`
		TS      int64  `json:"ts"`
		Data    struct {
			Symbol string     `json:"s"`
			Bids   [][]string `json:"b"`
			Asks   [][]string `json:"a"`
		} `json:"data"`
	}
	if err := parseJSON(raw, &msg); err != nil {
		return nil, err
	}
	if msg.Success != nil {
		if !*msg.Success {
			return nil, fmt.Errorf("subscribe rejected: %s", msg.RetMsg)
		}
		return nil, nil
	}
	if msg.Op == "pong" || msg.Topic == "" {
		return nil, nil
	}
	canon, ok := b.mapper.Canonical(msg.Data.Symbol)
	if !ok {
		return nil, nil
	}

	var bid, ask *float64
	if len(msg.Data.Bids) > 0 && len(msg.Data.Bids[0]) > 0 {
		v, err := strconv.ParseFloat(msg.Data.Bids[0][0], 64)
		if err != nil {
			return nil, fmt.Errorf("bid %q: %w", msg.Data.Bids[0][0], err)
		}
		bid = model.Float64Ptr(v)
	}
	if len(msg.Data.Asks) > 0 && len(msg.Data.Asks[0]) > 0 {
		v, err := strconv.ParseFloat(msg.Data.Asks[0][0], 64)
		if err != nil {
			return nil, fmt.Errorf("ask %q: %w", msg.Data.Asks[0][0], err)
		}
		ask = model.Float64Ptr(v)
	}

	var price float64
	switch {
	case bid != nil && ask != nil:
		price = (*bid + *ask) / 2
	case bid != nil:
		price = *bid
	case ask != nil:
		price = *ask
	default:
		return nil, nil
	}
	return []model.PriceTick{{
		Symbol:    canon,
		Exchange:  b.Name(),
		Price:     price,
		Bid:       bid,
		Ask:       ask,
		Timestamp: msg.TS,
	}}, nil
}
