package handlers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Shopify/sarama"
	"github.com/vaidashi/bakery-production/internal/models"
	"github.com/vaidashi/bakery-production/pkg/logger"
)

// ChangeApplier folds one order change into the local board
type ChangeApplier interface {
	ApplyChange(ctx context.Context, change models.OrderChange) (bool, error)
}

// OrderEventsHandler consumes the order change feed
type OrderEventsHandler struct {
	applier ChangeApplier
	logger  logger.Logger
}

// NewOrderEventsHandler creates a new OrderEventsHandler
func NewOrderEventsHandler(applier ChangeApplier, logger logger.Logger) *OrderEventsHandler {
	return &OrderEventsHandler{
		applier: applier,
		logger:  logger,
	}
}

// HandleMessage handles incoming order events from Kafka messages
func (h *OrderEventsHandler) HandleMessage(ctx context.Context, msg *sarama.ConsumerMessage) error {
	var event models.OrderChangeEvent

	if err := json.Unmarshal(msg.Value, &event); err != nil {
		h.logger.Error("failed to unmarshal message", "error", err, "offset", msg.Offset)
		return fmt.Errorf("failed to unmarshal message: %w", err)
	}

	switch event.EventType {
	case models.EventOrderCreated, models.EventOrderUpdated, models.EventOrderDeleted:
	default:
		h.logger.Warn("unknown event type", "eventType", event.EventType)
		return nil
	}

	applied, err := h.applier.ApplyChange(ctx, event.Change())

	if err != nil {
		return fmt.Errorf("failed to apply %s for order %s: %w", event.EventType, event.OrderID, err)
	}

	h.logger.Debug("Handled order event",
		"eventType", event.EventType,
		"eventId", event.EventID,
		"orderID", event.OrderID,
		"applied", applied)

	return nil
}
