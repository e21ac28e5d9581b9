package model

// ConnectorStatus is the supervisory state of one exchange connection.
type ConnectorStatus string

const (
	StatusConnecting   ConnectorStatus = "connecting"
	StatusConnected    ConnectorStatus = "connected"
	StatusDisconnected ConnectorStatus = "disconnected"
	StatusError        ConnectorStatus = "error"
)

// ConnectorState is the supervisor's view of one exchange connection.
// Connectors are retried, never discarded, so states live for the process
// lifetime once created.
type ConnectorState struct {
	Name              string          `json:"name"`
	Status            ConnectorStatus `json:"status"`
	ReconnectAttempts int             `json:"reconnect_attempts"`
	SubscribedSymbols []string        `json:"subscribed_symbols"`
	LastMessageAt     int64           `json:"last_message_at"` // unix ms, 0 = never
}
