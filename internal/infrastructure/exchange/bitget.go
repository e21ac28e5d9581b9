package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"tickarb/internal/domain/model"
)

const bitgetWSURL = "wss://ws.bitget.com/v2/ws/public"

// Bitget USDT-futures ticker channel. Keepalive is a bare "ping" text frame
// answered with "pong".
type Bitget struct {
	url    string
	mapper *Mapper
}

func NewBitget(url string, mapper *Mapper) *Bitget {
	if url == "" {
		url = bitgetWSURL
	}
	return &Bitget{url: url, mapper: mapper}
}

func (b *Bitget) Name() string { return model.ExchangeBitget }

func (b *Bitget) URL(_ context.Context) (string, error) { return b.url, nil }

func (b *Bitget) SubscribeFrames(natives []string) ([][]byte, error) {
	args := make([]map[string]string, 0, len(natives))
	for _, n := range natives {
		args = append(args, map[string]string{
			"instType": "USDT-FUTURES",
			"channel":  "ticker",
			"instId":   n,
		})
	}
	frame, err := json.Marshal(map[string]any{"op": "subscribe", "args": args})
	if err != nil {
		return nil, err
	}
	return [][]byte{frame}, nil
}

func (b *Bitget) PingFrame() []byte { return []byte("ping") }

func (b *Bitget) ParseFrame(raw []byte) ([]model.PriceTick, error) {
	if string(raw) == "pong" {
		return nil, nil
	}
	var msg struct {
		Event string `json:"event"`
		Code  any    `json:"code"`
		Msg   string `json:"msg"`
		Arg   struct {
			InstID string `json:"instId"`
		} `json:"arg"`
		Data []struct {
			LastPr string `json:"lastPr"`
			BidPr  string `json:"bidPr"`
			AskPr  string `json:"askPr"`
			TS     string `json:"ts"`
		} `json:"data"`
	}
	if err := parseJSON(raw, &msg); err != nil {
		return nil, err
	}
	switch msg.Event {
	case "error":
		return nil, fmt.Errorf("exchange error: %s", msg.Msg)
	case "subscribe":
		return nil, nil
	}
	if len(msg.Data) == 0 {
		return nil, nil
	}
	canon, ok := b.mapper.Canonical(msg.Arg.InstID)
	if !ok {
		return nil, nil
	}
	d := msg.Data[0]
	last, err := strconv.ParseFloat(d.LastPr, 64)
	if err != nil {
		return nil, fmt.Errorf("last %q: %w", d.LastPr, err)
	}
	tick := model.PriceTick{
		Symbol:   canon,
		Exchange: b.Name(),
		Price:    last,
	}
	if v, err := strconv.ParseFloat(d.BidPr, 64); err == nil {
		tick.Bid = model.Float64Ptr(v)
	}
	if v, err := strconv.ParseFloat(d.AskPr, 64); err == nil {
		tick.Ask = model.Float64Ptr(v)
	}
	if v, err := strconv.ParseInt(d.TS, 10, 64); err == nil {
		tick.Timestamp = v
	}
	return []model.PriceTick{tick}, nil
}
