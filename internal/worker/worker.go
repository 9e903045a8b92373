package worker

import (
	"context"
	"log"

	"checkout-service/internal/broker"
	"checkout-service/internal/models"
	"checkout-service/internal/store"
	"checkout-service/internal/util"

	"go.uber.org/zap"
)

// AuditWorker consumes transaction lifecycle events and records them in
// processed_events, keeping an operator-visible trail of every status change
// and stock movement.
type AuditWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	store        *store.Store
	logger       *zap.Logger
}

// NewAuditWorker creates a new audit worker
func NewAuditWorker(consumer *broker.Consumer, st *store.Store) *AuditWorker {
	w := &AuditWorker{
		consumer: consumer,
		store:    st,
		logger:   util.GetLogger(),
	}

	eventHandler := broker.NewEventHandler()
	eventHandler.OnAnyEvent(w.recordEvent)
	eventHandler.OnTransactionStatus(w.logStatusEvent)
	eventHandler.OnStockDecremented(w.logStockEvent)
	w.eventHandler = eventHandler

	return w
}

// Start starts the worker
func (w *AuditWorker) Start(ctx context.Context) error {
	log.Println("Starting audit worker...")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *AuditWorker) Stop() error {
	log.Println("Stopping audit worker...")
	return w.consumer.Close()
}

func (w *AuditWorker) recordEvent(ctx context.Context, event *models.BaseEvent) error {
	processed, err := w.store.IsEventProcessed(ctx, event.EventID)
	if err != nil {
		return err
	}
	if processed {
		w.logger.Debug("Event already recorded", zap.String("event_id", event.EventID))
		return nil
	}
	return w.store.MarkEventProcessed(ctx, event.EventID, event.EventType)
}

func (w *AuditWorker) logStatusEvent(ctx context.Context, event *models.TransactionStatusEvent) error {
	w.logger.Info("Transaction status event",
		zap.Int64("transaction_id", event.TransactionID),
		zap.String("transaction_number", event.TransactionNumber),
		zap.String("status", event.Status),
		zap.String("provider_transaction_id", event.ProviderTransactionID))
	return nil
}

func (w *AuditWorker) logStockEvent(ctx context.Context, event *models.StockDecrementedEvent) error {
	w.logger.Info("Stock decremented event",
		zap.Int64("transaction_id", event.TransactionID),
		zap.Int64("product_id", event.ProductID),
		zap.Int("quantity", event.Quantity))
	return nil
}
