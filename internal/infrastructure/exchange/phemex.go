package exchange

import (
	"context"
	"encoding/json"
	"fmt"

	"tickarb/internal/domain/model"
)

const phemexWSURL = "wss://ws.phemex.com"

// phemexScales maps native contract to the fixed-point divisor the exchange
// uses for its *Ep price fields.
var phemexScales = map[string]float64{
	"BTCUSD": 10000,
	"ETHUSD": 10000,
	"XRPUSD": 1e8,
	"ADAUSD": 1e8,
}

const phemexDefaultScale = 10000

// Phemex coin-settled perpetuals over its JSON-RPC style API. Prices arrive
// as scaled integers and are divided back into floats per contract.
type Phemex struct {
	url    string
	mapper *Mapper
	seq    int
}

func NewPhemex(url string, mapper *Mapper) *Phemex {
	if url == "" {
		url = phemexWSURL
	}
	return &Phemex{url: url, mapper: mapper}
}

func (p *Phemex) Name() string { return model.ExchangePhemex }

func (p *Phemex) URL(_ context.Context) (string, error) { return p.url, nil }

func (p *Phemex) SubscribeFrames(natives []string) ([][]byte, error) {
	frames := make([][]byte, 0, len(natives))
	for _, n := range natives {
		p.seq++
		frame, err := json.Marshal(map[string]any{
			"id":     p.seq,
			"method": "book.subscribe",
			"params": []string{n},
		})
		if err != nil {
			return nil, err
		}
		frames = append(frames, frame)
	}
	return frames, nil
}

func (p *Phemex) PingFrame() []byte {
	return []byte(`{"id":9999,"method":"server.ping","params":[]}`)
}

func (p *Phemex) ParseFrame(raw []byte) ([]model.PriceTick, error) {
	var msg struct {
		Error *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
		Symbol string `json:"symbol"`
		Book   *struct {
			Bids [][]int64 `json:"bids"`
			Asks [][]int64 `json:"asks"`
		} `json:"book"`
		Timestamp int64 `json:"timestamp"`
	}
	if err := parseJSON(raw, &msg); err != nil {
		return nil, err
	}
	if msg.Error != nil {
		return nil, fmt.Errorf("exchange error %d: %s", msg.Error.Code, msg.Error.Message)
	}
	if msg.Book == nil || msg.Symbol == "" {
		return nil, nil
	}
	canon, ok := p.mapper.Canonical(msg.Symbol)
	if !ok {
		return nil, nil
	}
	scale, ok := phemexScales[msg.Symbol]
	if !ok {
		scale = phemexDefaultScale
	}

	var bid, ask *float64
	if len(msg.Book.Bids) > 0 && len(msg.Book.Bids[0]) > 0 {
		bid = model.Float64Ptr(float64(msg.Book.Bids[0][0]) / scale)
	}
	if len(msg.Book.Asks) > 0 && len(msg.Book.Asks[0]) > 0 {
		ask = model.Float64Ptr(float64(msg.Book.Asks[0][0]) / scale)
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
	// Timestamps arrive in nanoseconds.
	return []model.PriceTick{{
		Symbol:    canon,
		Exchange:  p.Name(),
		Price:     price,
		Bid:       bid,
		Ask:       ask,
		Timestamp: msg.Timestamp / 1e6,
	}}, nil
}
