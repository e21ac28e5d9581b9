package port

import (
	"context"

	"tickarb/internal/domain/model"
)

// Sink receives connector output. Implementations must be safe for calls from
// the connector's read goroutine.
type Sink interface {
	// Connected is called once per session, after the transport is up and
	// subscribe frames have been sent.
	Connected(exchange string)
	// Tick delivers one parsed, canonical tick.
	Tick(t model.PriceTick)
}

// Connector owns a single upstream connection to one exchange. Run performs
// one full session: connect, subscribe to the given native symbols, then block
// reading frames until the session ends. It returns nil on clean shutdown
// (context cancelled) and an error on any unclean disconnect; the supervisor
// decides about reconnection, the connector never retries on its own.
type Connector interface {
	Name() string
	Run(ctx context.Context, natives []string, sink Sink) error
}
