package models

import (
	"encoding/json"
	"time"
)

// OutboxStatus represents the status of an outbox message
type OutboxStatus string

const (
	OutboxStatusPending    OutboxStatus = "pending"
	OutboxStatusProcessing OutboxStatus = "processing"
	OutboxStatusCompleted  OutboxStatus = "completed"
	OutboxStatusFailed     OutboxStatus = "failed"
)

// Event types written to the outbox for order changes
const (
	EventOrderCreated = "order_created"
	EventOrderUpdated = "order_updated"
	EventOrderDeleted = "order_deleted"
)

// ChangeOp says what a change-feed entry does to the mirrored order
type ChangeOp string

const (
	ChangeUpsert ChangeOp = "upsert"
	ChangeDelete ChangeOp = "delete"
)

// OutboxMessage represents a message to be published from the outbox table
type OutboxMessage struct {
	ID                 int64        `db:"id" json:"id"`
	AggregateType      string       `db:"aggregate_type" json:"aggregate_type"`
	AggregateID        string       `db:"aggregate_id" json:"aggregate_id"`
	EventType          string       `db:"event_type" json:"event_type"`
	Payload            []byte       `db:"payload" json:"payload"`
	CreatedAt          time.Time    `db:"created_at" json:"created_at"`
	ProcessedAt        *time.Time   `db:"processed_at" json:"processed_at,omitempty"`
	ProcessingAttempts int          `db:"processing_attempts" json:"processing_attempts"`
	LastError          *string      `db:"last_error" json:"last_error,omitempty"`
	Status             OutboxStatus `db:"status" json:"status"`
}

// OrderChangeEvent is the change-feed payload. Order carries the full row
// after the write; for deletes only the id is meaningful.
type OrderChangeEvent struct {
	EventType  string    `json:"event_type"`
	EventID    string    `json:"event_id"`
	Op         ChangeOp  `json:"op"`
	OrderID    string    `json:"order_id"`
	OccurredAt time.Time `json:"occurred_at"`
	Order      *Order    `json:"order,omitempty"`
}

// OrderChange is one entity-level change applied to a local mirror
type OrderChange struct {
	Op    ChangeOp
	ID    string
	Order *Order
}

// Change converts the event into the entity change it describes
func (e *OrderChangeEvent) Change() OrderChange {
	return OrderChange{Op: e.Op, ID: e.OrderID, Order: e.Order}
}

// NewOrderChangedEvent builds the outbox message for an insert or update of order
func NewOrderChangedEvent(eventType string, order *Order) (*OutboxMessage, error) {
	return newOrderEvent(eventType, ChangeUpsert, order.ID, order)
}

// NewOrderDeletedEvent builds the outbox message for a hard delete
func NewOrderDeletedEvent(orderID string) (*OutboxMessage, error) {
	return newOrderEvent(EventOrderDeleted, ChangeDelete, orderID, nil)
}

func newOrderEvent(eventType string, op ChangeOp, orderID string, order *Order) (*OutboxMessage, error) {
	now := GetCurrentTime()

	event := OrderChangeEvent{
		EventType:  eventType,
		EventID:    GenerateID("evt"),
		Op:         op,
		OrderID:    orderID,
		OccurredAt: now,
		Order:      order,
	}

	payload, err := json.Marshal(event)

	if err != nil {
		return nil, err
	}

	return &OutboxMessage{
		EventType:          event.EventType,
		Payload:            payload,
		AggregateType:      "order",
		AggregateID:        orderID,
		CreatedAt:          now,
		ProcessingAttempts: 0,
		Status:             OutboxStatusPending,
	}, nil
}
