package service

import "errors"

// Business-rule errors surfaced to callers. The messages are part of the API
// contract with the storefront, hence the capitalization.
var (
	ErrProductNotFound         = errors.New("Product not found")
	ErrInsufficientStock       = errors.New("Insufficient stock")
	ErrTransactionNotFound     = errors.New("Transaction not found")
	ErrPaymentLinksUnsupported = errors.New("Payment links not supported")
)
