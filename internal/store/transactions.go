package store

import (
	"context"
	"database/sql"
	"fmt"

	"checkout-service/internal/models"
)

// CreateTransaction inserts a new transaction row
func (s *Store) CreateTransaction(ctx context.Context, tx *models.Transaction) error {
	query := `
		INSERT INTO transactions (
			transaction_number, product_id, customer_id, delivery_id,
			quantity, amount_cents, base_fee_cents, delivery_fee_cents,
			total_cents, status
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at, updated_at`

	return s.db.GetContext(ctx, tx, query,
		tx.TransactionNumber, tx.ProductID, tx.CustomerID, tx.DeliveryID,
		tx.Quantity, tx.AmountCents, tx.BaseFeeCents, tx.DeliveryFeeCents,
		tx.TotalCents, tx.Status)
}

// FindTransactionByProviderID looks up a transaction by the gateway's
// transaction id. Returns (nil, nil) when absent.
func (s *Store) FindTransactionByProviderID(ctx context.Context, providerTxID string) (*models.Transaction, error) {
	return s.findTransaction(ctx,
		"SELECT * FROM transactions WHERE provider_transaction_id = $1", providerTxID)
}

// FindTransactionByPaymentLinkID looks up a transaction by the hosted payment
// link id. Returns (nil, nil) when absent.
func (s *Store) FindTransactionByPaymentLinkID(ctx context.Context, linkID string) (*models.Transaction, error) {
	return s.findTransaction(ctx,
		"SELECT * FROM transactions WHERE payment_link_id = $1", linkID)
}

// FindTransactionByNumber looks up a transaction by its transaction number,
// which doubles as the gateway reference. Returns (nil, nil) when absent.
func (s *Store) FindTransactionByNumber(ctx context.Context, number string) (*models.Transaction, error) {
	return s.findTransaction(ctx,
		"SELECT * FROM transactions WHERE transaction_number = $1", number)
}

func (s *Store) findTransaction(ctx context.Context, query string, arg string) (*models.Transaction, error) {
	var tx models.Transaction
	err := s.db.GetContext(ctx, &tx, query, arg)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

// UpdateTransactionProviderID backfills the provider transaction id. Only an
// unset id is written; an already-correlated transaction is left untouched.
func (s *Store) UpdateTransactionProviderID(ctx context.Context, id int64, providerTxID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE transactions SET provider_transaction_id = $1, updated_at = NOW()
		 WHERE id = $2 AND provider_transaction_id = ''`,
		providerTxID, id)
	return err
}

// UpdateTransactionPaymentLinkID attaches the hosted payment link id
func (s *Store) UpdateTransactionPaymentLinkID(ctx context.Context, id int64, linkID string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE transactions SET payment_link_id = $1, updated_at = NOW() WHERE id = $2",
		linkID, id)
	return err
}

// FinalizeOutcome reports what a FinalizeTransaction call actually changed.
type FinalizeOutcome struct {
	StatusApplied    bool
	StockDecremented bool
}

// FinalizeTransaction moves a PENDING transaction to a terminal status and, on
// approval, deducts stock — all within one database transaction. The status
// update is a compare-and-set on status = PENDING, so a duplicate webhook
// delivery racing this one finds zero affected rows and decrements nothing.
func (s *Store) FinalizeTransaction(ctx context.Context, txID int64, status, providerTxID string, productID int64, quantity int) (FinalizeOutcome, error) {
	var outcome FinalizeOutcome

	dbTx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return outcome, err
	}
	defer dbTx.Rollback()

	res, err := dbTx.ExecContext(ctx,
		`UPDATE transactions SET
			status = $1,
			provider_transaction_id = CASE
				WHEN provider_transaction_id = '' AND $2 <> '' THEN $2
				ELSE provider_transaction_id
			END,
			updated_at = NOW()
		 WHERE id = $3 AND status = $4`,
		status, providerTxID, txID, models.TxStatusPending)
	if err != nil {
		return outcome, fmt.Errorf("failed to apply status: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return outcome, err
	}
	if affected == 0 {
		return outcome, dbTx.Commit()
	}
	outcome.StatusApplied = true

	if status == models.TxStatusApproved {
		decremented, err := decrementStock(ctx, dbTx, productID, quantity)
		if err != nil {
			return FinalizeOutcome{}, err
		}
		outcome.StockDecremented = decremented
	}

	if err := dbTx.Commit(); err != nil {
		return FinalizeOutcome{}, err
	}
	return outcome, nil
}
