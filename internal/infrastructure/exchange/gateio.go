package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"tickarb/internal/domain/model"
)

const gateioWSURL = "wss://fx-ws.gateio.ws/v4/ws/usdt"

// Gate.io USDT futures ticker channel. Subscribes are one frame per contract.
type Gateio struct {
	url    string
	mapper *Mapper
	now    func() time.Time
}

func NewGateio(url string, mapper *Mapper) *Gateio {
	if url == "" {
		url = gateioWSURL
	}
	return &Gateio{url: url, mapper: mapper, now: time.Now}
}

func (g *Gateio) Name() string { return model.ExchangeGateio }

func (g *Gateio) URL(_ context.Context) (string, error) { return g.url, nil }

func (g *Gateio) SubscribeFrames(natives []string) ([][]byte, error) {
	frames := make([][]byte, 0, len(natives))
	for _, n := range natives {
		frame, err := json.Marshal(map[string]any{
			"time":    g.now().Unix(),
			"channel": "futures.tickers",
			"event":   "subscribe",
			"payload": []string{n},
		})
		if err != nil {
			return nil, err
		}
		frames = append(frames, frame)
	}
	return frames, nil
}

func (g *Gateio) PingFrame() []byte {
	frame, _ := json.Marshal(map[string]any{
		"time":    g.now().Unix(),
		"channel": "futures.ping",
	})
	return frame
}

func (g *Gateio) ParseFrame(raw []byte) ([]model.PriceTick, error) {
	// The ack's result field is an object while updates carry an array, so
	// result stays raw until the event type is known.
	var msg struct {
		Channel string `json:"channel"`
		Event   string `json:"event"`
		Error   *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
		Result json.RawMessage `json:"result"`
	}
	if err := parseJSON(raw, &msg); err != nil {
		return nil, err
	}
	if msg.Error != nil {
		return nil, fmt.Errorf("exchange error %d: %s", msg.Error.Code, msg.Error.Message)
	}
	if msg.Channel != "futures.tickers" || msg.Event != "update" {
		return nil, nil
	}
	var rows []struct {
		Contract string `json:"contract"`
		Last     string `json:"last"`
	}
	if err := json.Unmarshal(msg.Result, &rows); err != nil {
		return nil, fmt.Errorf("result: %w", err)
	}
	ts := g.now().UnixMilli()
	ticks := make([]model.PriceTick, 0, len(rows))
	for _, r := range rows {
		canon, ok := g.mapper.Canonical(r.Contract)
		if !ok {
			continue
		}
		last, err := strconv.ParseFloat(r.Last, 64)
		if err != nil {
			return nil, fmt.Errorf("last %q: %w", r.Last, err)
		}
		ticks = append(ticks, model.PriceTick{
			Symbol:    canon,
			Exchange:  g.Name(),
			Price:     last,
			Timestamp: ts,
		})
	}
	return ticks, nil
}
