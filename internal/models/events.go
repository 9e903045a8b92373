package models

import "time"

// Event types
const (
	EventTypeTransactionCreated  = "TRANSACTION_CREATED"
	EventTypeTransactionApproved = "TRANSACTION_APPROVED"
	EventTypeTransactionDeclined = "TRANSACTION_DECLINED"
	EventTypeTransactionErrored  = "TRANSACTION_ERROR"
	EventTypeStockDecremented    = "STOCK_DECREMENTED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// TransactionCreatedEvent published when a pending transaction is persisted
type TransactionCreatedEvent struct {
	BaseEvent
	TransactionID     int64  `json:"transaction_id"`
	TransactionNumber string `json:"transaction_number"`
	ProductID         int64  `json:"product_id"`
	Quantity          int    `json:"quantity"`
	TotalCents        int64  `json:"total_cents"`
}

// TransactionStatusEvent published when a transaction reaches a terminal status
type TransactionStatusEvent struct {
	BaseEvent
	TransactionID         int64  `json:"transaction_id"`
	TransactionNumber     string `json:"transaction_number"`
	Status                string `json:"status"`
	ProviderTransactionID string `json:"provider_transaction_id"`
}

// StockDecrementedEvent published when an approval deducts product stock
type StockDecrementedEvent struct {
	BaseEvent
	TransactionID int64 `json:"transaction_id"`
	ProductID     int64 `json:"product_id"`
	Quantity      int   `json:"quantity"`
}
