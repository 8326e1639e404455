package outbox

import (
	"context"
	"fmt"

	"github.com/vaidashi/bakery-production/internal/models"
	"github.com/vaidashi/bakery-production/pkg/logger"
)

// Publisher sends one keyed message to a topic
type Publisher interface {
	Publish(ctx context.Context, topic string, key string, value []byte) error
}

// KafkaHandler publishes outbox messages to the change feed topic
type KafkaHandler struct {
	logger    logger.Logger
	publisher Publisher
	topic     string
}

// NewKafkaHandler creates a new KafkaHandler
func NewKafkaHandler(publisher Publisher, topic string, logger logger.Logger) *KafkaHandler {
	return &KafkaHandler{
		publisher: publisher,
		topic:     topic,
		logger:    logger,
	}
}

// HandleMessage publishes the message keyed by order id, so every change of
// one order lands on the same partition in write order
func (h *KafkaHandler) HandleMessage(ctx context.Context, message *models.OutboxMessage) error {
	if err := h.publisher.Publish(ctx, h.topic, message.AggregateID, message.Payload); err != nil {
		return fmt.Errorf("failed to publish message to Kafka: %w", err)
	}

	h.logger.Debug("Published order change",
		"topic", h.topic,
		"messageID", message.ID,
		"orderID", message.AggregateID,
		"eventType", message.EventType)

	return nil
}
