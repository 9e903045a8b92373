package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"checkout-service/internal/models"

	"github.com/segmentio/kafka-go"
)

// EventPublisher handles publishing transaction lifecycle events
type EventPublisher struct {
	producer *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

// PublishTransactionCreated publishes a TransactionCreated event
func (ep *EventPublisher) PublishTransactionCreated(ctx context.Context, event *models.TransactionCreatedEvent) error {
	key := fmt.Sprintf("transaction-%d", event.TransactionID)
	return ep.producer.PublishEvent(ctx, key, event)
}

// PublishTransactionStatus publishes a terminal-status event
func (ep *EventPublisher) PublishTransactionStatus(ctx context.Context, event *models.TransactionStatusEvent) error {
	key := fmt.Sprintf("transaction-%d", event.TransactionID)
	return ep.producer.PublishEvent(ctx, key, event)
}

// PublishStockDecremented publishes a StockDecremented event
func (ep *EventPublisher) PublishStockDecremented(ctx context.Context, event *models.StockDecrementedEvent) error {
	key := fmt.Sprintf("transaction-%d", event.TransactionID)
	return ep.producer.PublishEvent(ctx, key, event)
}

// EventHandler routes incoming lifecycle events to registered callbacks
type EventHandler struct {
	onTransactionStatus func(context.Context, *models.TransactionStatusEvent) error
	onStockDecremented  func(context.Context, *models.StockDecrementedEvent) error
	onAnyEvent          func(context.Context, *models.BaseEvent) error
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{}
}

// OnTransactionStatus registers a handler for terminal-status events
func (eh *EventHandler) OnTransactionStatus(handler func(context.Context, *models.TransactionStatusEvent) error) {
	eh.onTransactionStatus = handler
}

// OnStockDecremented registers a handler for StockDecremented events
func (eh *EventHandler) OnStockDecremented(handler func(context.Context, *models.StockDecrementedEvent) error) {
	eh.onStockDecremented = handler
}

// OnAnyEvent registers a handler invoked for every event before routing
func (eh *EventHandler) OnAnyEvent(handler func(context.Context, *models.BaseEvent) error) {
	eh.onAnyEvent = handler
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("failed to unmarshal base event: %w", err)
	}

	if eh.onAnyEvent != nil {
		if err := eh.onAnyEvent(ctx, &baseEvent); err != nil {
			return err
		}
	}

	switch baseEvent.EventType {
	case models.EventTypeTransactionApproved,
		models.EventTypeTransactionDeclined,
		models.EventTypeTransactionErrored:
		if eh.onTransactionStatus != nil {
			var event models.TransactionStatusEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal transaction status event: %w", err)
			}
			return eh.onTransactionStatus(ctx, &event)
		}

	case models.EventTypeStockDecremented:
		if eh.onStockDecremented != nil {
			var event models.StockDecrementedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal StockDecremented event: %w", err)
			}
			return eh.onStockDecremented(ctx, &event)
		}

	case models.EventTypeTransactionCreated:
		// Creation events are recorded by the audit pass only.

	default:
		log.Printf("Unhandled event type: %s", baseEvent.EventType)
	}

	return nil
}
