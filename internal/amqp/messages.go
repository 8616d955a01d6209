package amqp

import (
	"encoding/json"
	"errors"
	"time"
)

// Ledger event types. Consumers re-read the group from storage; the event
// only says which group changed and at which version.
const (
	EventExpenseRecorded        = "expense.recorded"
	EventPaymentRecorded        = "payment.recorded"
	EventSettlementExecuted     = "settlement.executed"
	EventOccurrenceMaterialized = "occurrence.materialized"
)

type LedgerEvent struct {
	Type      string    `json:"type"`
	GroupID   string    `json:"group_id"`
	Version   int64     `json:"version"`
	EntityID  string    `json:"entity_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func NewLedgerEvent(eventType, groupID, entityID string, version int64) *LedgerEvent {
	return &LedgerEvent{
		Type:      eventType,
		GroupID:   groupID,
		Version:   version,
		EntityID:  entityID,
		Timestamp: time.Now(),
	}
}

func (m *LedgerEvent) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// LedgerEventFromJSON decodes an event and rejects messages without a type
// or group.
func LedgerEventFromJSON(data []byte) (*LedgerEvent, error) {
	var msg LedgerEvent
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.Type == "" || msg.GroupID == "" {
		return nil, errors.New("ledger event missing type or group_id")
	}
	return &msg, nil
}
