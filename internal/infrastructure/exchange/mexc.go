package exchange

import (
	"context"
	"encoding/json"
	"fmt"

	"tickarb/internal/domain/model"
)

const mexcWSURL = "wss://contract.mexc.com/edge"

// MEXC contract ticker channel. One sub.ticker frame per symbol; pushes
// arrive on channel "push.ticker".
type Mexc struct {
	url    string
	mapper *Mapper
}

func NewMexc(url string, mapper *Mapper) *Mexc {
	if url == "" {
		url = mexcWSURL
	}
	return &Mexc{url: url, mapper: mapper}
}

func (m *Mexc) Name() string { return model.ExchangeMexc }

func (m *Mexc) URL(_ context.Context) (string, error) { return m.url, nil }

func (m *Mexc) SubscribeFrames(natives []string) ([][]byte, error) {
	frames := make([][]byte, 0, len(natives))
	for _, n := range natives {
		frame, err := json.Marshal(map[string]any{
			"method": "sub.ticker",
			"param":  map[string]string{"symbol": n},
		})
		if err != nil {
			return nil, err
		}
		frames = append(frames, frame)
	}
	return frames, nil
}

func (m *Mexc) PingFrame() []byte { return []byte(`{"method":"ping"}`) }

func (m *Mexc) ParseFrame(raw []byte) ([]model.PriceTick, error) {
	// The ack's data field is the string "success", so data stays raw until
	// the channel is known.
	var msg struct {
		Channel string          `json:"channel"`
		Data    json.RawMessage `json:"data"`
	}
	if err := parseJSON(raw, &msg); err != nil {
		return nil, err
	}
	if msg.Channel != "push.ticker" {
		return nil, nil
	}
	var data struct {
		Symbol    string   `json:"symbol"`
		LastPrice float64  `json:"lastPrice"`
		Bid1      *float64 `json:"bid1"`
		Ask1      *float64 `json:"ask1"`
		Timestamp int64    `json:"timestamp"`
	}
	if err := json.Unmarshal(msg.Data, &data); err != nil {
		return nil, fmt.Errorf("data: %w", err)
	}
	canon, ok := m.mapper.Canonical(data.Symbol)
	if !ok {
		return nil, nil
	}
	return []model.PriceTick{{
		Symbol:    canon,
		Exchange:  m.Name(),
		Price:     data.LastPrice,
		Bid:       data.Bid1,
		Ask:       data.Ask1,
		Timestamp: data.Timestamp,
	}}, nil
}
