package exchange

import (
	"context"
	"strconv"

	"tickarb/internal/domain/model"
)

const hyperliquidWSURL = "wss://api.hyperliquid.xyz/ws"

// Hyperliquid allMids feed. One subscription covers every listed coin, so
// the frame fans out to all mapped symbols. Only a mid price is published;
// bid and ask stay unset.
type Hyperliquid struct {
	url    string
	mapper *Mapper
}

func NewHyperliquid(url string, mapper *Mapper) *Hyperliquid {
	if url == "" {
		url = hyperliquidWSURL
	}
	return &Hyperliquid{url: url, mapper: mapper}
}

func (h *Hyperliquid) Name() string { return model.ExchangeHyperliquid }

func (h *Hyperliquid) URL(_ context.Context) (string, error) { return h.url, nil }

func (h *Hyperliquid) SubscribeFrames(_ []string) ([][]byte, error) {
	return [][]byte{[]byte(`{"method":"subscribe","subscription":{"type":"allMids"}}`)}, nil
}

func (h *Hyperliquid) PingFrame() []byte { return []byte(`{"method":"ping"}`) }

func (h *Hyperliquid) ParseFrame(raw []byte) ([]model.PriceTick, error) {
	var msg struct {
		Channel string `json:"channel"`
		Data    struct {
			Mids map[string]string `json:"mids"`
		} `json:"data"`
	}
	if err := parseJSON(raw, &msg); err != nil {
		return nil, err
	}
	if msg.Channel != "allMids" {
		return nil, nil
	}
	var ticks []model.PriceTick
	for coin, midStr := range msg.Data.Mids {
		canon, ok := h.mapper.Canonical(coin)
		if !ok {
			continue
		}
		mid, err := strconv.ParseFloat(midStr, 64)
		if err != nil || mid <= 0 {
			continue
		}
		ticks = append(ticks, model.PriceTick{
			Symbol:   canon,
			Exchange: h.Name(),
			Price:    mid,
		})
	}
	return ticks, nil
}
