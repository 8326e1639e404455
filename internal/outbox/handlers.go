package outbox

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/vaidashi/bakery-production/internal/models"
	"github.com/vaidashi/bakery-production/pkg/logger"
)

// LoggingHandler logs and completes outbox messages. It drains the table
// when the change feed is switched off.
type LoggingHandler struct {
	logger logger.Logger
}

// NewLoggingHandler creates a new LoggingHandler
func NewLoggingHandler(logger logger.Logger) *LoggingHandler {
	return &LoggingHandler{
		logger: logger,
	}
}

// HandleMessage handles the outbox message by logging it
func (h *LoggingHandler) HandleMessage(ctx context.Context, message *models.OutboxMessage) error {
	var event models.OrderChangeEvent

	if err := json.Unmarshal(message.Payload, &event); err != nil {
		return fmt.Errorf("failed to unmarshal outbox message: %w", err)
	}

	h.logger.Info("Order changed",
		"messageID", message.ID,
		"eventType", message.EventType,
		"orderID", event.OrderID,
		"op", event.Op,
		"eventID", event.EventID,
		"occurredAt", event.OccurredAt)

	return nil
}
