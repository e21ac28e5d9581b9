package exchange

import (
	"fmt"
	"time"

	"tickarb/internal/application/port"
	"tickarb/internal/domain/model"
)

// Options carries the per-exchange overrides from configuration. Zero values
// fall back to the exchange's production endpoints.
type Options struct {
	WSURL    string
	RESTURL  string
	TokenURL string
	Poll     time.Duration
	Dial     Dialer
}

// New builds the connector for one exchange by name. The mapper decides which
// native instruments the session subscribes to.
func New(name string, symbols SymbolMap, opts Options) (port.Connector, error) {
	mapper, err := NewMapper(name, symbols)
	if err != nil {
		return nil, err
	}
	if mapper.Len() == 0 {
		return nil, fmt.Errorf("exchange %s: no symbols mapped", name)
	}

	if name == model.ExchangeCoindcx {
		return NewCoinDCX(opts.RESTURL, opts.Poll, nil, mapper), nil
	}

	var proto Protocol
	switch name {
	case model.ExchangeBinance:
		proto = NewBinance(opts.WSURL, mapper)
	case model.ExchangeBybit:
		proto = NewBybit(opts.WSURL, mapper)
	case model.ExchangeOKX:
		proto = NewOKX(opts.WSURL, mapper)
	case model.ExchangeDeribit:
		proto = NewDeribit(opts.WSURL, mapper)
	case model.ExchangeKucoin:
		proto = NewKucoin(opts.TokenURL, nil, mapper)
	case model.ExchangeGateio:
		proto = NewGateio(opts.WSURL, mapper)
	case model.ExchangeBitget:
		proto = NewBitget(opts.WSURL, mapper)
	case model.ExchangeMexc:
		proto = NewMexc(opts.WSURL, mapper)
	case model.ExchangeBitmex:
		proto = NewBitmex(opts.WSURL, mapper)
	case model.ExchangePhemex:
		proto = NewPhemex(opts.WSURL, mapper)
	case model.ExchangeHyperliquid:
		proto = NewHyperliquid(opts.WSURL, mapper)
	case model.ExchangeDydx:
		proto = NewDydx(opts.WSURL, mapper)
	default:
		return nil, fmt.Errorf("unknown exchange %q", name)
	}
	return NewConnector(proto, opts.Dial), nil
}

// Natives resolves the native subscription list for an exchange, used by the
// supervisor to decide whether a config reload changed a connector's world.
func Natives(name string, symbols SymbolMap) ([]string, error) {
	mapper, err := NewMapper(name, symbols)
	if err != nil {
		return nil, err
	}
	return mapper.Natives(), nil
}
