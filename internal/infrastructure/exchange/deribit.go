package exchange

import (
	"context"
	"encoding/json"
	"fmt"

	"tickarb/internal/domain/model"
)

const deribitWSURL = "wss://www.deribit.com/ws/api/v2"

// Deribit JSON-RPC 2.0 API, 100ms ticker channels. Instruments use the
// exchange's coin-margined naming ("BTC-PERPETUAL").
type Deribit struct {
	url    string
	mapper *Mapper
}

func NewDeribit(url string, mapper *Mapper) *Deribit {
	if url == "" {
		url = deribitWSURL
	}
	return &Deribit{url: url, mapper: mapper}
}

func (d *Deribit) Name() string { return model.ExchangeDeribit }

func (d *Deribit) URL(_ context.Context) (string, error) { return d.url, nil }

func (d *Deribit) SubscribeFrames(natives []string) ([][]byte, error) {
	channels := make([]string, 0, len(natives))
	for _, n := range natives {
		channels = append(channels, "ticker."+n+".100ms")
	}
	frame, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "public/subscribe",
		"params":  map[string]any{"channels": channels},
	})
	if err != nil {
		return nil, err
	}
	return [][]byte{frame}, nil
}

func (d *Deribit) PingFrame() []byte {
	return []byte(`{"jsonrpc":"2.0","id":9999,"method":"public/test","params":{}}`)
}

func (d *Deribit) ParseFrame(raw []byte) ([]model.PriceTick, error) {
	var msg struct {
		Method string `json:"method"`
		Error  *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
		Params struct {
			Data struct {
				Instrument string   `json:"instrument_name"`
				LastPrice  float64  `json:"last_price"`
				BestBid    *float64 `json:"best_bid_price"`
				BestAsk    *float64 `json:"best_ask_price"`
				Timestamp  int64    `json:"timestamp"`
			} `json:"data"`
		} `json:"params"`
	}
	if err := parseJSON(raw, &msg); err != nil {
		return nil, err
	}
	if msg.Error != nil {
		return nil, fmt.Errorf("rpc error %d: %s", msg.Error.Code, msg.Error.Message)
	}
	if msg.Method != "subscription" {
		return nil, nil
	}
	data := msg.Params.Data
	canon, ok := d.mapper.Canonical(data.Instrument)
	if !ok {
		return nil, nil
	}
	price := data.LastPrice
	if price == 0 && data.BestBid != nil && data.BestAsk != nil {
		price = (*data.BestBid + *data.BestAsk) / 2
	}
	return []model.PriceTick{{
		Symbol:    canon,
		Exchange:  d.Name(),
		Price:     price,
		Bid:       data.BestBid,
		Ask:       data.BestAsk,
		Timestamp: data.Timestamp,
	}}, nil
}
