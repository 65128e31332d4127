package domain

import "time"

// Event is an outbound notification produced by a watch handler.
type Event struct {
	EventType    EventType      `json:"event_type"`
	WatchID      string         `json:"watch_id"`
	Reference    string         `json:"reference"`
	TxHash       string         `json:"tx_hash,omitempty"`
	Address      string         `json:"address,omitempty"`
	BlockHash    string         `json:"block_hash"`
	Confirmation int            `json:"confirmation,omitempty"`
	EmittedAt    time.Time      `json:"emitted_at"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

type EventType string

const (
	EventTypeTransactionConfirmed   EventType = "transaction_confirmed"
	EventTypeTransactionInvalidated EventType = "transaction_invalidated"
	EventTypeTransactionRetracted   EventType = "transaction_retracted"
	EventTypeBalanceConfirmed       EventType = "balance_confirmed"
	EventTypeBalanceInvalidated     EventType = "balance_invalidated"
	EventTypeBalanceRetracted       EventType = "balance_retracted"
)
