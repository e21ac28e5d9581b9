// Package exchange implements the per-exchange connectors. Each exchange is a
// Protocol variant (endpoint, subscribe shape, frame schema, keepalive); the
// shared Connector drives one session of any Protocol over an injectable
// transport, so adapters stay pure parsers and tests never need a network.
package exchange

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"tickarb/internal/application/port"
	"tickarb/internal/domain/model"
)

var (
	ErrNoSymbols = errors.New("no native symbols to subscribe")
	ErrEmptyURL  = errors.New("ws url is empty")
)

const (
	readWait       = 60 * time.Second
	pingEvery      = 25 * time.Second
	connectTimeout = 10 * time.Second
	writeWait      = 5 * time.Second
)

// Conn is the minimal transport surface a connector needs. Production uses a
// gorilla/websocket connection; tests inject a fake.
type Conn interface {
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	// Ping sends a transport-level keepalive for protocols without an
	// application-level ping frame.
	Ping() error
	Close() error
}

// Dialer opens a Conn to the given URL.
type Dialer func(ctx context.Context, url string) (Conn, error)

type wsConn struct {
	c *websocket.Conn
}

func (w *wsConn) ReadMessage() ([]byte, error) {
	_, b, err := w.c.ReadMessage()
	if err == nil {
		_ = w.c.SetReadDeadline(time.Now().Add(readWait))
	}
	return b, err
}

func (w *wsConn) WriteMessage(data []byte) error {
	return w.c.WriteMessage(websocket.TextMessage, data)
}

func (w *wsConn) Ping() error {
	return w.c.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(writeWait))
}

func (w *wsConn) Close() error { return w.c.Close() }

// DialWS is the production dialer.
func DialWS(ctx context.Context, url string) (Conn, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	_ = conn.SetReadDeadline(time.Now().Add(readWait))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(readWait))
		return nil
	})
	return &wsConn{c: conn}, nil
}

// Protocol encodes one exchange's wire dialect.
type Protocol interface {
	Name() string
	// URL resolves the transport endpoint. Most exchanges return a static
	// address; kucoin performs its REST token handshake here.
	URL(ctx context.Context) (string, error)
	// SubscribeFrames builds the messages sent after connect for the given
	// native symbols.
	SubscribeFrames(natives []string) ([][]byte, error)
	// PingFrame returns the application-level keepalive message, or nil when
	// the exchange relies on transport-level ping/pong.
	PingFrame() []byte
	// ParseFrame turns one raw frame into zero or more canonical ticks.
	// Recognized non-data frames (subscription confirmations, pongs) yield
	// (nil, nil); malformed frames or embedded exchange errors yield an
	// error, which drops the frame but never the connection.
	ParseFrame(raw []byte) ([]model.PriceTick, error)
}

// Connector runs one Protocol over one connection. It implements
// port.Connector; reconnect policy lives in the supervisor.
type Connector struct {
	proto Protocol
	dial  Dialer
}

func NewConnector(proto Protocol, dial Dialer) *Connector {
	if dial == nil {
		dial = DialWS
	}
	return &Connector{proto: proto, dial: dial}
}

func (c *Connector) Name() string { return c.proto.Name() }

func (c *Connector) Run(ctx context.Context, natives []string, sink port.Sink) error {
	if len(natives) == 0 {
		return ErrNoSymbols
	}

	url, err := c.proto.URL(ctx)
	if err != nil {
		return fmt.Errorf("%s resolve url: %w", c.Name(), err)
	}
	if url == "" {
		return fmt.Errorf("%s: %w", c.Name(), ErrEmptyURL)
	}

	dctx, cancel := context.WithTimeout(ctx, connectTimeout)
	conn, err := c.dial(dctx, url)
	cancel()
	if err != nil {
		return fmt.Errorf("%s dial: %w", c.Name(), err)
	}
	defer conn.Close()

	frames, err := c.proto.SubscribeFrames(natives)
	if err != nil {
		return fmt.Errorf("%s subscribe: %w", c.Name(), err)
	}
	for _, f := range frames {
		if err := conn.WriteMessage(f); err != nil {
			return fmt.Errorf("%s subscribe write: %w", c.Name(), err)
		}
	}
	sink.Connected(c.Name())
	log.Info().Str("exchange", c.Name()).Int("symbols", len(natives)).Msg("connected and subscribed")

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		for {
			raw, err := conn.ReadMessage()
			if err != nil {
				errCh <- err
				return
			}
			c.handleFrame(raw, sink)
		}
	}()

	pingTicker := time.NewTicker(pingEvery)
	defer pingTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = conn.Close()
			<-errCh
			return nil
		case err := <-errCh:
			return fmt.Errorf("%s read: %w", c.Name(), err)
		case <-pingTicker.C:
			if pf := c.proto.PingFrame(); pf != nil {
				_ = conn.WriteMessage(pf)
			} else {
				_ = conn.Ping()
			}
		}
	}
}

func (c *Connector) handleFrame(raw []byte, sink port.Sink) {
	ticks, err := c.proto.ParseFrame(raw)
	if err != nil {
		log.Warn().Str("exchange", c.Name()).Err(err).Msg("frame dropped")
		return
	}
	for _, t := range ticks {
		sink.Tick(t)
	}
}

// parseJSON wraps unmarshalling with context for dropped-frame logs.
func parseJSON(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("json unmarshal: %w", err)
	}
	return nil
}
