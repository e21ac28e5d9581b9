package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"tickarb/internal/domain/model"
)

const binanceWSURL = "wss://fstream.binance.com/ws"

// Binance USDT-margined futures, bookTicker stream. The exchange pushes best
// bid/ask on every book change; mid price is derived locally.
type Binance struct {
	url    string
	mapper *Mapper
}

func NewBinance(url string, mapper *Mapper) *Binance {
	if url == "" {
		url = binanceWSURL
	}
	return &Binance{url: url, mapper: mapper}
}

func (b *Binance) Name() string { return model.ExchangeBinance }

func (b *Binance) URL(_ context.Context) (string, error) { return b.url, nil }

func (b *Binance) SubscribeFrames(natives []string) ([][]byte, error) {
	params := make([]string, 0, len(natives))
	for _, n := range natives {
		params = append(params, strings.ToLower(n)+"@bookTicker")
	}
	frame, err := json.Marshal(map[string]any{
		"method": "SUBSCRIBE",
		"params": params,
		"id":     1,
	})
	if err != nil {
		return nil, err
	}
	return [][]byte{frame}, nil
}

// PingFrame is nil: binance answers transport-level pings.
func (b *Binance) PingFrame() []byte { return nil }

func (b *Binance) ParseFrame(raw []byte) ([]model.PriceTick, error) {
	var msg struct {
		Event  string `json:"e"`
		Symbol string `json:"s"`
		Bid    string `json:"b"`
		Ask    string `json:"a"`
		TxTime int64  `json:"T"`
	}
	if err := parseJSON(raw, &msg); err != nil {
		return nil, err
	}
	if msg.Event != "bookTicker" {
		return nil, nil
	}
	canon, ok := b.mapper.Canonical(msg.Symbol)
	if !ok {
		return nil, nil
	}
	bid, err := strconv.ParseFloat(msg.Bid, 64)
	if err != nil {
		return nil, fmt.Errorf("bid %q: %w", msg.Bid, err)
	}
	ask, err := strconv.ParseFloat(msg.Ask, 64)
	if err != nil {
		return nil, fmt.Errorf("ask %q: %w", msg.Ask, err)
	}
	return []model.PriceTick{{
		Symbol:    canon,
		Exchange:  b.Name(),
		Price:     (bid + ask) / 2,
		Bid:       model.Float64Ptr(bid),
		Ask:       model.Float64Ptr(ask),
		Timestamp: msg.TxTime,
	}}, nil
}
