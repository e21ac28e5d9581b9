package exchange

import (
	"fmt"
	"sort"
	"strings"
)

// SymbolMap maps canonical symbol -> exchange name -> native instrument id,
// e.g. "BTC" -> {"binance": "BTCUSDT", "deribit": "BTC-PERPETUAL"}.
type SymbolMap map[string]map[string]string

// Mapper resolves symbols for a single exchange in both directions. The
// reverse index is built once so hot-path lookups stay allocation free.
type Mapper struct {
	exchange  string
	toNative  map[string]string
	canonical map[string]string
}

func NewMapper(exchange string, symbols SymbolMap) (*Mapper, error) {
	m := &Mapper{
		exchange:  exchange,
		toNative:  make(map[string]string),
		canonical: make(map[string]string),
	}
	for sym, perExchange := range symbols {
		native, ok := perExchange[exchange]
		if !ok || native == "" {
			continue
		}
		canon := strings.ToUpper(sym)
		if prev, dup := m.canonical[native]; dup && prev != canon {
			return nil, fmt.Errorf("exchange %s: native symbol %q mapped to both %s and %s", exchange, native, prev, canon)
		}
		m.toNative[canon] = native
		m.canonical[native] = canon
	}
	return m, nil
}

// Natives returns the exchange's instrument ids, sorted for stable subscribe
// frames and log output.
func (m *Mapper) Natives() []string {
	out := make([]string, 0, len(m.toNative))
	for _, native := range m.toNative {
		out = append(out, native)
	}
	sort.Strings(out)
	return out
}

func (m *Mapper) Native(canonical string) (string, bool) {
	n, ok := m.toNative[strings.ToUpper(canonical)]
	return n, ok
}

func (m *Mapper) Canonical(native string) (string, bool) {
	c, ok := m.canonical[native]
	return c, ok
}

// Len reports how many symbols this exchange carries.
func (m *Mapper) Len() int { return len(m.toNative) }
