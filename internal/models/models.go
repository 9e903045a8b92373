package models

import (
	"time"

	"github.com/lib/pq"
)

// Product represents a product in the catalog. Stock is mutated only by the
// webhook reconciliation flow; order creation reads it as an optimistic guard.
type Product struct {
	ID          int64          `db:"id" json:"id"`
	Name        string         `db:"name" json:"name"`
	Description string         `db:"description" json:"description"`
	PriceCents  int64          `db:"price_cents" json:"price_cents"`
	Stock       int            `db:"stock" json:"stock"`
	ImageURLs   pq.StringArray `db:"image_urls" json:"image_urls"`
	CreatedAt   time.Time      `db:"created_at" json:"created_at"`
}

// Customer is keyed by email; lookups upsert by email.
type Customer struct {
	ID        int64     `db:"id" json:"id"`
	Email     string    `db:"email" json:"email"`
	FullName  string    `db:"full_name" json:"full_name"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Delivery is created fresh per order, never deduplicated.
type Delivery struct {
	ID         int64     `db:"id" json:"id"`
	Address    string    `db:"address" json:"address"`
	City       string    `db:"city" json:"city"`
	Region     string    `db:"region" json:"region,omitempty"`
	Phone      string    `db:"phone" json:"phone"`
	PostalCode string    `db:"postal_code" json:"postal_code,omitempty"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// Transaction is the payment record for an order. TransactionNumber is the
// gateway-visible reference; ProviderTransactionID and PaymentLinkID correlate
// it with the external gateway once known.
type Transaction struct {
	ID                    int64     `db:"id" json:"id"`
	TransactionNumber     string    `db:"transaction_number" json:"transaction_number"`
	ProductID             int64     `db:"product_id" json:"product_id"`
	CustomerID            int64     `db:"customer_id" json:"customer_id"`
	DeliveryID            int64     `db:"delivery_id" json:"delivery_id"`
	Quantity              int       `db:"quantity" json:"quantity"`
	AmountCents           int64     `db:"amount_cents" json:"amount_cents"`
	BaseFeeCents          int64     `db:"base_fee_cents" json:"base_fee_cents"`
	DeliveryFeeCents      int64     `db:"delivery_fee_cents" json:"delivery_fee_cents"`
	TotalCents            int64     `db:"total_cents" json:"total_cents"`
	Status                string    `db:"status" json:"status"`
	ProviderTransactionID string    `db:"provider_transaction_id" json:"provider_transaction_id,omitempty"`
	PaymentLinkID         string    `db:"payment_link_id" json:"payment_link_id,omitempty"`
	CreatedAt             time.Time `db:"created_at" json:"created_at"`
	UpdatedAt             time.Time `db:"updated_at" json:"updated_at"`
}

// Transaction statuses. The set is closed: unknown incoming statuses are
// acknowledged without being stored.
const (
	TxStatusPending  = "PENDING"
	TxStatusApproved = "APPROVED"
	TxStatusDeclined = "DECLINED"
	TxStatusError    = "ERROR"
)

// IsTerminalStatus reports whether status is one a transaction never leaves.
func IsTerminalStatus(status string) bool {
	switch status {
	case TxStatusApproved, TxStatusDeclined, TxStatusError:
		return true
	}
	return false
}

// ProcessedEvent records lifecycle events handled by the audit worker.
type ProcessedEvent struct {
	EventID     string    `db:"event_id"`
	EventType   string    `db:"event_type"`
	ProcessedAt time.Time `db:"processed_at"`
}
