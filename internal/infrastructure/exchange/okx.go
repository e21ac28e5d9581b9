package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"tickarb/internal/domain/model"
)

const okxWSURL = "wss://ws.okx.com:8443/ws/v5/public"

// OKX v5 public books channel for perpetual swaps.
type OKX struct {
	url    string
	mapper *Mapper
}

func NewOKX(url string, mapper *Mapper) *OKX {
	if url == "" {
		url = okxWSURL
	}
	return &OKX{url: url, mapper: mapper}
}

func (o *OKX) Name() string { return model.ExchangeOKX }

func (o *OKX) URL(_ context.Context) (string, error) { return o.url, nil }

func (o *OKX) SubscribeFrames(natives []string) ([][]byte, error) {
	args := make([]map[string]string, 0, len(natives))
	for _, n := range natives {
		args = append(args, map[string]string{"channel": "books", "instId": n})
	}
	frame, err := json.Marshal(map[string]any{"op": "subscribe", "args": args})
	if err != nil {
		return nil, err
	}
	return [][]byte{frame}, nil
}

func (o *OKX) PingFrame() []byte { return []byte(`{"op":"ping"}`) }

func (o *OKX) ParseFrame(raw []byte) ([]model.PriceTick, error) {
	var msg struct {
		Event string `json:"event"`
		Msg   string `json:"msg"`
		Arg   struct {
			InstID string `json:"instId"`
		} `json:"arg"`
		Data []struct {
			Bids [][]string `json:"bids"`
			Asks [][]string `json:"asks"`
			TS   string     `json:"ts"`
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
	canon, ok := o.mapper.Canonical(msg.Arg.InstID)
	if !ok {
		return nil, nil
	}
	book := msg.Data[0]

	var bid, ask *float64
	if len(book.Bids) > 0 && len(book.Bids[0]) > 0 {
		v, err := strconv.ParseFloat(book.Bids[0][0], 64)
		if err != nil {
			return nil, fmt.Errorf("bid %q: %w", book.Bids[0][0], err)
		}
		bid = model.Float64Ptr(v)
	}
	if len(book.Asks) > 0 && len(book.Asks[0]) > 0 {
		v, err := strconv.ParseFloat(book.Asks[0][0], 64)
		if err != nil {
			return nil, fmt.Errorf("ask %q: %w", book.Asks[0][0], err)
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

	var ts int64
	if book.TS != "" {
		v, err := strconv.ParseInt(book.TS, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("ts %q: %w", book.TS, err)
		}
		ts = v
	}
	return []model.PriceTick{{
		Symbol:    canon,
		Exchange:  o.Name(),
		Price:     price,
		Bid:       bid,
		Ask:       ask,
		Timestamp: ts,
	}}, nil
}
