package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"tickarb/internal/domain/model"
)

const kucoinTokenURL = "https://api.kucoin.com/api/v1/bullet-public"

// Kucoin futures ticker channel. Connecting requires a REST handshake first:
// a public bullet token plus the server-assigned websocket endpoint.
type Kucoin struct {
	tokenURL string
	client   *http.Client
	mapper   *Mapper
	seq      int
}

func NewKucoin(tokenURL string, client *http.Client, mapper *Mapper) *Kucoin {
	if tokenURL == "" {
		tokenURL = kucoinTokenURL
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Kucoin{tokenURL: tokenURL, client: client, mapper: mapper}
}

func (k *Kucoin) Name() string { return model.ExchangeKucoin }

func (k *Kucoin) URL(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, k.tokenURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := k.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("bullet token request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("bullet token request: status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}
	var out struct {
		Data struct {
			Token           string `json:"token"`
			InstanceServers []struct {
				Endpoint string `json:"endpoint"`
			} `json:"instanceServers"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("bullet token response: %w", err)
	}
	if out.Data.Token == "" || len(out.Data.InstanceServers) == 0 {
		return "", fmt.Errorf("bullet token response missing token or endpoint")
	}
	return out.Data.InstanceServers[0].Endpoint + "?token=" + out.Data.Token, nil
}

func (k *Kucoin) SubscribeFrames(natives []string) ([][]byte, error) {
	frames := make([][]byte, 0, len(natives))
	for _, n := range natives {
		k.seq++
		frame, err := json.Marshal(map[string]any{
			"id":             strconv.Itoa(k.seq),
			"type":           "subscribe",
			"topic":          "/contractMarket/ticker:" + n,
			"privateChannel": false,
			"response":       true,
		})
		if err != nil {
			return nil, err
		}
		frames = append(frames, frame)
	}
	return frames, nil
}

func (k *Kucoin) PingFrame() []byte {
	return []byte(`{"id":"tickarb-ping","type":"ping"}`)
}

func (k *Kucoin) ParseFrame(raw []byte) ([]model.PriceTick, error) {
	var msg struct {
		Type  string `json:"type"`
		Topic string `json:"topic"`
		Data  struct {
			Symbol string   `json:"symbol"`
			Price  float64  `json:"price"`
			Bid    *float64 `json:"bestBidPrice"`
			Ask    *float64 `json:"bestAskPrice"`
			TS     int64    `json:"ts"`
		} `json:"data"`
	}
	if err := parseJSON(raw, &msg); err != nil {
		return nil, err
	}
	switch msg.Type {
	case "welcome", "ack", "pong":
		return nil, nil
	case "error":
		return nil, fmt.Errorf("exchange error frame: %s", string(raw))
	case "message":
	default:
		return nil, nil
	}
	canon, ok := k.mapper.Canonical(msg.Data.Symbol)
	if !ok {
		return nil, nil
	}
	// Timestamps arrive in nanoseconds.
	return []model.PriceTick{{
		Symbol:    canon,
		Exchange:  k.Name(),
		Price:     msg.Data.Price,
		Bid:       msg.Data.Bid,
		Ask:       msg.Data.Ask,
		Timestamp: msg.Data.TS / 1e6,
	}}, nil
}
