package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"checkout-service/internal/gateway"
	"checkout-service/internal/models"
	"checkout-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CheckoutStore is the slice of the entity store order creation needs.
type CheckoutStore interface {
	FindProductByID(ctx context.Context, id int64) (*models.Product, error)
	FindOrCreateCustomer(ctx context.Context, email, fullName string) (*models.Customer, error)
	CreateDelivery(ctx context.Context, delivery *models.Delivery) error
	CreateTransaction(ctx context.Context, tx *models.Transaction) error
	UpdateTransactionProviderID(ctx context.Context, id int64, providerTxID string) error
	UpdateTransactionPaymentLinkID(ctx context.Context, id int64, linkID string) error
}

// EventPublisher publishes transaction lifecycle events for downstream
// consumers. Publishing is best-effort everywhere: a broker outage never
// fails an order.
type EventPublisher interface {
	PublishTransactionCreated(ctx context.Context, event *models.TransactionCreatedEvent) error
	PublishTransactionStatus(ctx context.Context, event *models.TransactionStatusEvent) error
	PublishStockDecremented(ctx context.Context, event *models.StockDecrementedEvent) error
}

// CheckoutConfig carries the fee defaults and redirect target for order
// creation. Explicit fees on a request win over the configured defaults.
type CheckoutConfig struct {
	BaseFeeCents           int64
	DeliveryFeeCents       int64
	PaymentRedirectBaseURL string
}

// CheckoutService creates orders: it persists a PENDING transaction and then
// either charges a tokenized card or creates a hosted payment link.
type CheckoutService struct {
	store     CheckoutStore
	submitter gateway.TransactionSubmitter
	links     gateway.LinkCreator // nil when the deployment has no link capability
	events    EventPublisher
	cfg       CheckoutConfig
	newNumber func() string
	sign      SignatureFunc
	logger    *zap.Logger
}

// NewCheckoutService creates a new checkout service. links may be nil for
// deployments whose gateway supports only immediate transactions.
func NewCheckoutService(
	store CheckoutStore,
	submitter gateway.TransactionSubmitter,
	links gateway.LinkCreator,
	events EventPublisher,
	cfg CheckoutConfig,
	sign SignatureFunc,
) *CheckoutService {
	return &CheckoutService{
		store:     store,
		submitter: submitter,
		links:     links,
		events:    events,
		cfg:       cfg,
		newNumber: GenerateTransactionNumber,
		sign:      sign,
		logger:    util.GetLogger(),
	}
}

// DeliveryRequest is the delivery address collected at checkout.
type DeliveryRequest struct {
	Address    string `json:"address" binding:"required"`
	City       string `json:"city" binding:"required"`
	Region     string `json:"region"`
	Phone      string `json:"phone" binding:"required"`
	PostalCode string `json:"postal_code"`
}

// CreatePaymentRequest is a direct card payment: the storefront already holds
// an acceptance token and a tokenized card.
type CreatePaymentRequest struct {
	ProductID          int64           `json:"product_id" binding:"required"`
	Quantity           int             `json:"quantity" binding:"required,min=1"`
	AmountCents        int64           `json:"amount_cents" binding:"required,min=1"`
	BaseFeeCents       int64           `json:"base_fee_cents"`
	DeliveryFeeCents   int64           `json:"delivery_fee_cents"`
	CustomerEmail      string          `json:"customer_email" binding:"required,email"`
	CustomerFullName   string          `json:"customer_full_name" binding:"required"`
	Delivery           DeliveryRequest `json:"delivery" binding:"required"`
	AcceptanceToken    string          `json:"acceptance_token" binding:"required"`
	PaymentMethodToken string          `json:"payment_method_token" binding:"required"`
	Installments       int             `json:"installments"`
}

// CreatePaymentResponse reports the persisted transaction and the gateway's
// immediate answer.
type CreatePaymentResponse struct {
	TransactionID         int64  `json:"transaction_id"`
	TransactionNumber     string `json:"transaction_number"`
	Status                string `json:"status"`
	TotalCents            int64  `json:"total_cents"`
	Quantity              int    `json:"quantity"`
	ProviderTransactionID string `json:"provider_transaction_id"`
	ProviderStatus        string `json:"provider_status"`
}

// CreatePaymentLinkRequest is a hosted-checkout order; the amount is derived
// from the product price.
type CreatePaymentLinkRequest struct {
	ProductID        int64           `json:"product_id" binding:"required"`
	Quantity         int             `json:"quantity" binding:"required,min=1"`
	BaseFeeCents     int64           `json:"base_fee_cents"`
	DeliveryFeeCents int64           `json:"delivery_fee_cents"`
	CustomerEmail    string          `json:"customer_email" binding:"required,email"`
	CustomerFullName string          `json:"customer_full_name" binding:"required"`
	Delivery         DeliveryRequest `json:"delivery" binding:"required"`
}

// CreatePaymentLinkResponse carries the hosted checkout URL.
type CreatePaymentLinkResponse struct {
	TransactionID     int64  `json:"transaction_id"`
	TransactionNumber string `json:"transaction_number"`
	PaymentLinkURL    string `json:"payment_link_url"`
}

// CreatePayment runs the direct-payment pipeline. The PENDING transaction is
// persisted before the gateway is contacted, so a gateway failure still
// leaves an auditable record; the row is never deleted on failure.
func (s *CheckoutService) CreatePayment(ctx context.Context, req *CreatePaymentRequest) (*CreatePaymentResponse, error) {
	ctx, span := util.StartSpan(ctx, "CheckoutService.CreatePayment")
	defer span.End()

	product, err := s.loadProduct(ctx, req.ProductID, req.Quantity)
	if err != nil {
		return nil, err
	}

	baseFee, deliveryFee := s.resolveFees(req.BaseFeeCents, req.DeliveryFeeCents)

	tx, err := s.persistOrder(ctx, product, req.Quantity, req.AmountCents, baseFee, deliveryFee,
		req.CustomerEmail, req.CustomerFullName, req.Delivery)
	if err != nil {
		return nil, err
	}

	signature := s.sign(tx.TransactionNumber, tx.TotalCents)

	result, err := s.submitter.SubmitTransaction(ctx, &gateway.SubmitRequest{
		AcceptanceToken:    req.AcceptanceToken,
		AmountCents:        tx.TotalCents,
		CustomerEmail:      req.CustomerEmail,
		PaymentMethodToken: req.PaymentMethodToken,
		Installments:       req.Installments,
		Reference:          tx.TransactionNumber,
		Signature:          signature,
	})
	if err != nil {
		util.PaymentsFailedTotal.WithLabelValues("gateway_error").Inc()
		s.logger.Warn("Gateway rejected payment; PENDING transaction kept for reconciliation",
			zap.String("transaction_number", tx.TransactionNumber),
			zap.Error(err))
		return nil, err
	}

	if err := s.store.UpdateTransactionProviderID(ctx, tx.ID, result.TransactionID); err != nil {
		return nil, fmt.Errorf("failed to persist provider transaction id: %w", err)
	}

	util.PaymentsCreatedTotal.Inc()
	s.logger.Info("Payment submitted",
		zap.Int64("transaction_id", tx.ID),
		zap.String("transaction_number", tx.TransactionNumber),
		zap.String("provider_transaction_id", result.TransactionID),
		zap.String("provider_status", result.Status))

	return &CreatePaymentResponse{
		TransactionID:         tx.ID,
		TransactionNumber:     tx.TransactionNumber,
		Status:                tx.Status,
		TotalCents:            tx.TotalCents,
		Quantity:              tx.Quantity,
		ProviderTransactionID: result.TransactionID,
		ProviderStatus:        result.Status,
	}, nil
}

// CreatePaymentLink runs the hosted-checkout pipeline. The capability check
// comes before any lookup or persistence so an unsupported deployment leaves
// no orphaned customer or delivery rows behind.
func (s *CheckoutService) CreatePaymentLink(ctx context.Context, req *CreatePaymentLinkRequest) (*CreatePaymentLinkResponse, error) {
	ctx, span := util.StartSpan(ctx, "CheckoutService.CreatePaymentLink")
	defer span.End()

	if s.links == nil {
		util.PaymentsFailedTotal.WithLabelValues("links_unsupported").Inc()
		return nil, ErrPaymentLinksUnsupported
	}

	product, err := s.loadProduct(ctx, req.ProductID, req.Quantity)
	if err != nil {
		return nil, err
	}

	amount := product.PriceCents * int64(req.Quantity)
	baseFee, deliveryFee := s.resolveFees(req.BaseFeeCents, req.DeliveryFeeCents)

	tx, err := s.persistOrder(ctx, product, req.Quantity, amount, baseFee, deliveryFee,
		req.CustomerEmail, req.CustomerFullName, req.Delivery)
	if err != nil {
		return nil, err
	}

	redirectURL := strings.TrimRight(s.cfg.PaymentRedirectBaseURL, "/") + "/api/v1/payments/redirect"
	expiresAt := time.Now().UTC().Add(24 * time.Hour).Format(time.RFC3339)

	link, err := s.links.CreatePaymentLink(ctx, &gateway.LinkRequest{
		Name:        fmt.Sprintf("Pago %s", product.Name),
		Description: fmt.Sprintf("%s x %d - %s", product.Name, req.Quantity, tx.TransactionNumber),
		AmountCents: tx.TotalCents,
		Reference:   tx.TransactionNumber,
		RedirectURL: redirectURL,
		ExpiresAt:   expiresAt,
	})
	if err != nil {
		util.PaymentsFailedTotal.WithLabelValues("gateway_error").Inc()
		s.logger.Warn("Gateway rejected payment link; PENDING transaction kept for reconciliation",
			zap.String("transaction_number", tx.TransactionNumber),
			zap.Error(err))
		return nil, err
	}

	if err := s.store.UpdateTransactionPaymentLinkID(ctx, tx.ID, link.LinkID); err != nil {
		return nil, fmt.Errorf("failed to persist payment link id: %w", err)
	}

	util.PaymentLinksCreatedTotal.Inc()
	s.logger.Info("Payment link created",
		zap.Int64("transaction_id", tx.ID),
		zap.String("transaction_number", tx.TransactionNumber),
		zap.String("payment_link_id", link.LinkID))

	return &CreatePaymentLinkResponse{
		TransactionID:     tx.ID,
		TransactionNumber: tx.TransactionNumber,
		PaymentLinkURL:    link.PaymentLinkURL,
	}, nil
}

// loadProduct validates the two fail-fast preconditions in order: the product
// exists, then the requested quantity fits current stock. The stock check is
// optimistic only — no reservation is taken, and stock is checked again at
// approval time.
func (s *CheckoutService) loadProduct(ctx context.Context, productID int64, quantity int) (*models.Product, error) {
	product, err := s.store.FindProductByID(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("failed to load product: %w", err)
	}
	if product == nil {
		util.PaymentsFailedTotal.WithLabelValues("product_not_found").Inc()
		return nil, ErrProductNotFound
	}
	if product.Stock < quantity {
		util.PaymentsFailedTotal.WithLabelValues("insufficient_stock").Inc()
		return nil, ErrInsufficientStock
	}
	return product, nil
}

// persistOrder resolves the customer and delivery and persists the PENDING
// transaction, all before any gateway contact.
func (s *CheckoutService) persistOrder(
	ctx context.Context,
	product *models.Product,
	quantity int,
	amountCents, baseFeeCents, deliveryFeeCents int64,
	customerEmail, customerFullName string,
	deliveryReq DeliveryRequest,
) (*models.Transaction, error) {
	customer, err := s.store.FindOrCreateCustomer(ctx, customerEmail, customerFullName)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve customer: %w", err)
	}

	delivery := &models.Delivery{
		Address:    deliveryReq.Address,
		City:       deliveryReq.City,
		Region:     deliveryReq.Region,
		Phone:      deliveryReq.Phone,
		PostalCode: deliveryReq.PostalCode,
	}
	if err := s.store.CreateDelivery(ctx, delivery); err != nil {
		return nil, fmt.Errorf("failed to create delivery: %w", err)
	}

	tx := &models.Transaction{
		TransactionNumber: s.newNumber(),
		ProductID:         product.ID,
		CustomerID:        customer.ID,
		DeliveryID:        delivery.ID,
		Quantity:          quantity,
		AmountCents:       amountCents,
		BaseFeeCents:      baseFeeCents,
		DeliveryFeeCents:  deliveryFeeCents,
		TotalCents:        amountCents + baseFeeCents + deliveryFeeCents,
		Status:            models.TxStatusPending,
	}
	if err := s.store.CreateTransaction(ctx, tx); err != nil {
		util.PaymentsFailedTotal.WithLabelValues("db_error").Inc()
		return nil, fmt.Errorf("failed to create transaction: %w", err)
	}

	event := &models.TransactionCreatedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeTransactionCreated,
			Timestamp: time.Now(),
		},
		TransactionID:     tx.ID,
		TransactionNumber: tx.TransactionNumber,
		ProductID:         tx.ProductID,
		Quantity:          tx.Quantity,
		TotalCents:        tx.TotalCents,
	}
	if err := s.events.PublishTransactionCreated(ctx, event); err != nil {
		s.logger.Error("Failed to publish TransactionCreated event", zap.Error(err))
	}

	return tx, nil
}

func (s *CheckoutService) resolveFees(baseFee, deliveryFee int64) (int64, int64) {
	if baseFee <= 0 {
		baseFee = s.cfg.BaseFeeCents
	}
	if deliveryFee <= 0 {
		deliveryFee = s.cfg.DeliveryFeeCents
	}
	return baseFee, deliveryFee
}
