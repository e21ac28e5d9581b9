package port

// EventType identifies a push-channel event.
type EventType string

const (
	EventPriceUpdate   EventType = "price_update"
	EventArbitrage     EventType = "arbitrage_opportunities"
	EventMarketSummary EventType = "market_summary"
	EventInitialPrices EventType = "initial_prices"
)

// Event is the {type, data} envelope delivered to push subscribers.
type Event struct {
	Type EventType `json:"type"`
	Data any       `json:"data"`
}

// Droppable reports whether the hub may silently drop the oldest queued event
// of this type for a slow subscriber. High-frequency incremental events are
// droppable; summary and snapshot events are not, and a subscriber too slow
// for those is disconnected instead.
func (t EventType) Droppable() bool {
	switch t {
	case EventPriceUpdate, EventArbitrage:
		return true
	default:
		return false
	}
}
