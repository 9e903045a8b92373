package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"checkout-service/internal/models"
	"checkout-service/internal/store"
	"checkout-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ReconcileStore is the slice of the entity store webhook reconciliation
// needs. FinalizeTransaction is the single atomic unit that applies the
// terminal status and the stock decrement together.
type ReconcileStore interface {
	FindTransactionByProviderID(ctx context.Context, providerTxID string) (*models.Transaction, error)
	FindTransactionByPaymentLinkID(ctx context.Context, linkID string) (*models.Transaction, error)
	FindTransactionByNumber(ctx context.Context, number string) (*models.Transaction, error)
	UpdateTransactionProviderID(ctx context.Context, id int64, providerTxID string) error
	FinalizeTransaction(ctx context.Context, txID int64, status, providerTxID string, productID int64, quantity int) (store.FinalizeOutcome, error)
}

// WebhookGuard holds short-lived processing locks around webhook handling.
// It is an optimization only: the database compare-and-set in
// FinalizeTransaction remains the correctness mechanism.
type WebhookGuard interface {
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, key string) error
}

// WebhookNotification is the normalized webhook payload: the provider's
// transaction id and status, plus optional out-of-band hints extracted from
// provider-specific nesting by the HTTP layer.
type WebhookNotification struct {
	ProviderTransactionID string
	Status                string
	Reference             string
	PaymentLinkID         string
}

// ReconcileService matches asynchronous gateway callbacks to their
// originating transaction and applies the resulting state change exactly once.
type ReconcileService struct {
	store  ReconcileStore
	guard  WebhookGuard // nil disables locking
	events EventPublisher
	logger *zap.Logger
}

// NewReconcileService creates a new reconciliation service. guard may be nil.
func NewReconcileService(store ReconcileStore, guard WebhookGuard, events EventPublisher) *ReconcileService {
	return &ReconcileService{
		store:  store,
		guard:  guard,
		events: events,
		logger: util.GetLogger(),
	}
}

// HandleWebhook processes one status notification. Unknown statuses are
// acknowledged as no-ops with a nil transaction. Duplicate deliveries of a
// terminal status are idempotent and never re-decrement stock. An
// unresolvable notification returns ErrTransactionNotFound with zero writes.
func (s *ReconcileService) HandleWebhook(ctx context.Context, n *WebhookNotification) (*models.Transaction, error) {
	ctx, span := util.StartSpan(ctx, "ReconcileService.HandleWebhook")
	defer span.End()

	util.WebhooksReceivedTotal.Inc()

	status := strings.ToUpper(strings.TrimSpace(n.Status))
	if !models.IsTerminalStatus(status) {
		util.WebhooksIgnoredTotal.Inc()
		s.logger.Info("Ignoring webhook with non-terminal status",
			zap.String("provider_transaction_id", n.ProviderTransactionID),
			zap.String("status", n.Status))
		return nil, nil
	}

	if s.guard != nil {
		lockKey := fmt.Sprintf("webhook:%s", n.ProviderTransactionID)
		acquired, err := s.guard.AcquireLock(ctx, lockKey, 30*time.Second)
		if err != nil {
			s.logger.Warn("Webhook lock unavailable, relying on database compare-and-set",
				zap.String("provider_transaction_id", n.ProviderTransactionID),
				zap.Error(err))
		} else if acquired {
			defer func() {
				if err := s.guard.ReleaseLock(context.WithoutCancel(ctx), lockKey); err != nil {
					s.logger.Warn("Failed to release webhook lock", zap.Error(err))
				}
			}()
		}
	}

	tx, err := s.resolveTransaction(ctx, n)
	if err != nil {
		return nil, err
	}
	if tx == nil {
		util.WebhooksUnmatchedTotal.Inc()
		s.logger.Warn("Webhook matched no transaction",
			zap.String("provider_transaction_id", n.ProviderTransactionID),
			zap.String("reference", n.Reference),
			zap.String("payment_link_id", n.PaymentLinkID))
		return nil, ErrTransactionNotFound
	}

	if models.IsTerminalStatus(tx.Status) {
		s.logger.Info("Webhook for already-finalized transaction, nothing to do",
			zap.Int64("transaction_id", tx.ID),
			zap.String("current_status", tx.Status),
			zap.String("incoming_status", status))
		return tx, nil
	}

	outcome, err := s.store.FinalizeTransaction(ctx, tx.ID, status, n.ProviderTransactionID, tx.ProductID, tx.Quantity)
	if err != nil {
		return nil, fmt.Errorf("failed to finalize transaction: %w", err)
	}
	if !outcome.StatusApplied {
		// Lost the race to a concurrent delivery; treat as a duplicate.
		s.logger.Info("Transaction finalized concurrently",
			zap.Int64("transaction_id", tx.ID),
			zap.String("incoming_status", status))
		return tx, nil
	}

	tx.Status = status
	if tx.ProviderTransactionID == "" {
		tx.ProviderTransactionID = n.ProviderTransactionID
	}

	util.WebhooksProcessedTotal.WithLabelValues(status).Inc()
	s.logger.Info("Transaction finalized",
		zap.Int64("transaction_id", tx.ID),
		zap.String("transaction_number", tx.TransactionNumber),
		zap.String("status", status),
		zap.Bool("stock_decremented", outcome.StockDecremented))

	if status == models.TxStatusApproved {
		if outcome.StockDecremented {
			util.StockDecrementsTotal.Inc()
			s.publishStockDecremented(ctx, tx)
		} else {
			// Stock drained by a concurrent approval. The webhook still
			// succeeds; inventory shortfall is an operator concern.
			util.StockDecrementsSkippedTotal.Inc()
			s.logger.Warn("Approved transaction found insufficient stock, decrement skipped",
				zap.Int64("transaction_id", tx.ID),
				zap.Int64("product_id", tx.ProductID),
				zap.Int("quantity", tx.Quantity))
		}
	}

	s.publishStatus(ctx, tx)

	return tx, nil
}

// resolveTransaction walks the ordered identifier fallback chain: provider id
// first, then the payment-link hint, then the reference hint. Finding the
// transaction via a hint backfills a missing provider id — the mechanism by
// which a payment-link order acquires its provider correlation on the first
// webhook. An already-set provider id is never overwritten.
func (s *ReconcileService) resolveTransaction(ctx context.Context, n *WebhookNotification) (*models.Transaction, error) {
	// An empty provider id must not reach the database: the unset sentinel is
	// the empty string, so the query would match an arbitrary uncorrelated row.
	if n.ProviderTransactionID != "" {
		tx, err := s.store.FindTransactionByProviderID(ctx, n.ProviderTransactionID)
		if err != nil {
			return nil, fmt.Errorf("lookup by provider id: %w", err)
		}
		if tx != nil {
			return tx, nil
		}
	}

	if n.PaymentLinkID != "" {
		tx, err := s.store.FindTransactionByPaymentLinkID(ctx, n.PaymentLinkID)
		if err != nil {
			return nil, fmt.Errorf("lookup by payment link id: %w", err)
		}
		if tx != nil {
			return tx, s.backfillProviderID(ctx, tx, n.ProviderTransactionID)
		}
	}

	if n.Reference != "" {
		tx, err := s.store.FindTransactionByNumber(ctx, n.Reference)
		if err != nil {
			return nil, fmt.Errorf("lookup by reference: %w", err)
		}
		if tx != nil {
			return tx, s.backfillProviderID(ctx, tx, n.ProviderTransactionID)
		}
	}

	return nil, nil
}

func (s *ReconcileService) backfillProviderID(ctx context.Context, tx *models.Transaction, providerTxID string) error {
	if tx.ProviderTransactionID != "" || providerTxID == "" {
		return nil
	}
	if err := s.store.UpdateTransactionProviderID(ctx, tx.ID, providerTxID); err != nil {
		return fmt.Errorf("failed to backfill provider id: %w", err)
	}
	tx.ProviderTransactionID = providerTxID
	s.logger.Info("Backfilled provider transaction id",
		zap.Int64("transaction_id", tx.ID),
		zap.String("provider_transaction_id", providerTxID))
	return nil
}

func (s *ReconcileService) publishStatus(ctx context.Context, tx *models.Transaction) {
	eventType := models.EventTypeTransactionApproved
	switch tx.Status {
	case models.TxStatusDeclined:
		eventType = models.EventTypeTransactionDeclined
	case models.TxStatusError:
		eventType = models.EventTypeTransactionErrored
	}

	event := &models.TransactionStatusEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: eventType,
			Timestamp: time.Now(),
		},
		TransactionID:         tx.ID,
		TransactionNumber:     tx.TransactionNumber,
		Status:                tx.Status,
		ProviderTransactionID: tx.ProviderTransactionID,
	}
	if err := s.events.PublishTransactionStatus(ctx, event); err != nil {
		s.logger.Error("Failed to publish transaction status event", zap.Error(err))
	}
}

func (s *ReconcileService) publishStockDecremented(ctx context.Context, tx *models.Transaction) {
	event := &models.StockDecrementedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeStockDecremented,
			Timestamp: time.Now(),
		},
		TransactionID: tx.ID,
		ProductID:     tx.ProductID,
		Quantity:      tx.Quantity,
	}
	if err := s.events.PublishStockDecremented(ctx, event); err != nil {
		s.logger.Error("Failed to publish stock decremented event", zap.Error(err))
	}
}
