package service

import (
	"context"
	"errors"
	"testing"

	"checkout-service/internal/gateway"
	"checkout-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCheckoutStore struct {
	products     map[int64]*models.Product
	customers    []*models.Customer
	deliveries   []*models.Delivery
	transactions []*models.Transaction
	providerIDs  map[int64]string
	linkIDs      map[int64]string
	nextID       int64
}

func newFakeCheckoutStore(products ...*models.Product) *fakeCheckoutStore {
	st := &fakeCheckoutStore{
		products:    make(map[int64]*models.Product),
		providerIDs: make(map[int64]string),
		linkIDs:     make(map[int64]string),
	}
	for _, p := range products {
		st.products[p.ID] = p
	}
	return st
}

func (st *fakeCheckoutStore) FindProductByID(_ context.Context, id int64) (*models.Product, error) {
	return st.products[id], nil
}

func (st *fakeCheckoutStore) FindOrCreateCustomer(_ context.Context, email, fullName string) (*models.Customer, error) {
	for _, c := range st.customers {
		if c.Email == email {
			return c, nil
		}
	}
	st.nextID++
	c := &models.Customer{ID: st.nextID, Email: email, FullName: fullName}
	st.customers = append(st.customers, c)
	return c, nil
}

func (st *fakeCheckoutStore) CreateDelivery(_ context.Context, d *models.Delivery) error {
	st.nextID++
	d.ID = st.nextID
	st.deliveries = append(st.deliveries, d)
	return nil
}

func (st *fakeCheckoutStore) CreateTransaction(_ context.Context, tx *models.Transaction) error {
	st.nextID++
	tx.ID = st.nextID
	st.transactions = append(st.transactions, tx)
	return nil
}

func (st *fakeCheckoutStore) UpdateTransactionProviderID(_ context.Context, id int64, providerTxID string) error {
	st.providerIDs[id] = providerTxID
	return nil
}

func (st *fakeCheckoutStore) UpdateTransactionPaymentLinkID(_ context.Context, id int64, linkID string) error {
	st.linkIDs[id] = linkID
	return nil
}

type fakePublisher struct {
	created []*models.TransactionCreatedEvent
	status  []*models.TransactionStatusEvent
	stock   []*models.StockDecrementedEvent
	err     error
}

func (p *fakePublisher) PublishTransactionCreated(_ context.Context, e *models.TransactionCreatedEvent) error {
	p.created = append(p.created, e)
	return p.err
}

func (p *fakePublisher) PublishTransactionStatus(_ context.Context, e *models.TransactionStatusEvent) error {
	p.status = append(p.status, e)
	return p.err
}

func (p *fakePublisher) PublishStockDecremented(_ context.Context, e *models.StockDecrementedEvent) error {
	p.stock = append(p.stock, e)
	return p.err
}

type fakeSubmitter struct {
	lastReq *gateway.SubmitRequest
	result  *gateway.SubmitResult
	err     error
}

func (s *fakeSubmitter) SubmitTransaction(_ context.Context, req *gateway.SubmitRequest) (*gateway.SubmitResult, error) {
	s.lastReq = req
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

type fakeLinkCreator struct {
	lastReq *gateway.LinkRequest
	result  *gateway.LinkResult
	err     error
}

func (l *fakeLinkCreator) CreatePaymentLink(_ context.Context, req *gateway.LinkRequest) (*gateway.LinkResult, error) {
	l.lastReq = req
	if l.err != nil {
		return nil, l.err
	}
	return l.result, nil
}

func testCheckoutService(st CheckoutStore, sub gateway.TransactionSubmitter, links gateway.LinkCreator, events EventPublisher) *CheckoutService {
	svc := NewCheckoutService(st, sub, links, events, CheckoutConfig{
		BaseFeeCents:           500,
		DeliveryFeeCents:       1500,
		PaymentRedirectBaseURL: "http://localhost:3001",
	}, BuildSignatureFunc("integrity-key", "COP"))
	svc.newNumber = func() string { return "TXN-TEST-0001" }
	return svc
}

func validPaymentRequest() *CreatePaymentRequest {
	return &CreatePaymentRequest{
		ProductID:          1,
		Quantity:           2,
		AmountCents:        10000,
		CustomerEmail:      "buyer@example.com",
		CustomerFullName:   "Test Buyer",
		Delivery:           DeliveryRequest{Address: "Calle 1 #2-3", City: "Bogota", Phone: "3001234567"},
		AcceptanceToken:    "acc-token",
		PaymentMethodToken: "card-token",
		Installments:       1,
	}
}

func TestCreatePayment(t *testing.T) {
	st := newFakeCheckoutStore(&models.Product{ID: 1, Name: "Widget", PriceCents: 5000, Stock: 5})
	submitter := &fakeSubmitter{result: &gateway.SubmitResult{TransactionID: "prov-123", Status: "PENDING"}}
	events := &fakePublisher{}
	svc := testCheckoutService(st, submitter, nil, events)

	resp, err := svc.CreatePayment(context.Background(), validPaymentRequest())
	require.NoError(t, err)

	assert.Equal(t, "TXN-TEST-0001", resp.TransactionNumber)
	assert.Equal(t, models.TxStatusPending, resp.Status)
	assert.Equal(t, int64(10000+500+1500), resp.TotalCents)
	assert.Equal(t, "prov-123", resp.ProviderTransactionID)
	assert.Equal(t, "PENDING", resp.ProviderStatus)

	require.Len(t, st.transactions, 1)
	tx := st.transactions[0]
	assert.Equal(t, models.TxStatusPending, tx.Status)
	assert.Equal(t, "prov-123", st.providerIDs[tx.ID])

	require.NotNil(t, submitter.lastReq)
	assert.Equal(t, tx.TotalCents, submitter.lastReq.AmountCents)
	assert.Equal(t, "TXN-TEST-0001", submitter.lastReq.Reference)
	assert.NotEmpty(t, submitter.lastReq.Signature)

	require.Len(t, events.created, 1)
	assert.Equal(t, models.EventTypeTransactionCreated, events.created[0].EventType)
}

func TestCreatePaymentExplicitFeesWin(t *testing.T) {
	st := newFakeCheckoutStore(&models.Product{ID: 1, PriceCents: 5000, Stock: 5})
	submitter := &fakeSubmitter{result: &gateway.SubmitResult{TransactionID: "prov-1", Status: "PENDING"}}
	svc := testCheckoutService(st, submitter, nil, &fakePublisher{})

	req := validPaymentRequest()
	req.BaseFeeCents = 900
	req.DeliveryFeeCents = 2000

	resp, err := svc.CreatePayment(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, int64(10000+900+2000), resp.TotalCents)
}

func TestCreatePaymentProductNotFound(t *testing.T) {
	st := newFakeCheckoutStore()
	svc := testCheckoutService(st, &fakeSubmitter{}, nil, &fakePublisher{})

	_, err := svc.CreatePayment(context.Background(), validPaymentRequest())
	assert.ErrorIs(t, err, ErrProductNotFound)
	assert.Empty(t, st.transactions)
}

func TestCreatePaymentInsufficientStock(t *testing.T) {
	st := newFakeCheckoutStore(&models.Product{ID: 1, PriceCents: 5000, Stock: 1})
	svc := testCheckoutService(st, &fakeSubmitter{}, nil, &fakePublisher{})

	_, err := svc.CreatePayment(context.Background(), validPaymentRequest())
	assert.ErrorIs(t, err, ErrInsufficientStock)
	assert.Empty(t, st.transactions)
	assert.Empty(t, st.customers)
}

func TestCreatePaymentGatewayFailureKeepsPendingTransaction(t *testing.T) {
	st := newFakeCheckoutStore(&models.Product{ID: 1, PriceCents: 5000, Stock: 5})
	submitter := &fakeSubmitter{err: errors.New("INVALID_ACCEPTANCE_TOKEN")}
	svc := testCheckoutService(st, submitter, nil, &fakePublisher{})

	_, err := svc.CreatePayment(context.Background(), validPaymentRequest())
	require.Error(t, err)
	assert.Equal(t, "INVALID_ACCEPTANCE_TOKEN", err.Error())

	require.Len(t, st.transactions, 1)
	assert.Equal(t, models.TxStatusPending, st.transactions[0].Status)
	assert.Empty(t, st.providerIDs)
}

func TestCreatePaymentReusesCustomerByEmail(t *testing.T) {
	st := newFakeCheckoutStore(&models.Product{ID: 1, PriceCents: 5000, Stock: 10})
	submitter := &fakeSubmitter{result: &gateway.SubmitResult{TransactionID: "prov-1", Status: "PENDING"}}
	svc := testCheckoutService(st, submitter, nil, &fakePublisher{})

	_, err := svc.CreatePayment(context.Background(), validPaymentRequest())
	require.NoError(t, err)
	_, err = svc.CreatePayment(context.Background(), validPaymentRequest())
	require.NoError(t, err)

	assert.Len(t, st.customers, 1)
	assert.Len(t, st.transactions, 2)
}

func TestCreatePaymentLink(t *testing.T) {
	st := newFakeCheckoutStore(&models.Product{ID: 1, Name: "Widget", PriceCents: 5000, Stock: 5})
	links := &fakeLinkCreator{result: &gateway.LinkResult{
		LinkID:         "link-abc",
		PaymentLinkURL: "https://checkout.wompi.co/l/link-abc",
	}}
	svc := testCheckoutService(st, &fakeSubmitter{}, links, &fakePublisher{})

	resp, err := svc.CreatePaymentLink(context.Background(), &CreatePaymentLinkRequest{
		ProductID:        1,
		Quantity:         2,
		CustomerEmail:    "buyer@example.com",
		CustomerFullName: "Test Buyer",
		Delivery:         DeliveryRequest{Address: "Calle 1 #2-3", City: "Bogota", Phone: "3001234567"},
	})
	require.NoError(t, err)

	assert.Equal(t, "https://checkout.wompi.co/l/link-abc", resp.PaymentLinkURL)

	require.Len(t, st.transactions, 1)
	tx := st.transactions[0]
	// Amount is derived from the catalog price, never trusted from the client.
	assert.Equal(t, int64(2*5000), tx.AmountCents)
	assert.Equal(t, int64(2*5000+500+1500), tx.TotalCents)
	assert.Equal(t, "link-abc", st.linkIDs[tx.ID])

	require.NotNil(t, links.lastReq)
	assert.Equal(t, tx.TotalCents, links.lastReq.AmountCents)
	assert.Equal(t, "http://localhost:3001/api/v1/payments/redirect", links.lastReq.RedirectURL)
	assert.NotEmpty(t, links.lastReq.ExpiresAt)
}

func TestCreatePaymentLinkUnsupported(t *testing.T) {
	st := newFakeCheckoutStore(&models.Product{ID: 1, PriceCents: 5000, Stock: 5})
	svc := testCheckoutService(st, &fakeSubmitter{}, nil, &fakePublisher{})

	_, err := svc.CreatePaymentLink(context.Background(), &CreatePaymentLinkRequest{
		ProductID:        1,
		Quantity:         1,
		CustomerEmail:    "buyer@example.com",
		CustomerFullName: "Test Buyer",
		Delivery:         DeliveryRequest{Address: "Calle 1 #2-3", City: "Bogota", Phone: "3001234567"},
	})
	assert.ErrorIs(t, err, ErrPaymentLinksUnsupported)

	// The capability check fires before any persistence.
	assert.Empty(t, st.customers)
	assert.Empty(t, st.deliveries)
	assert.Empty(t, st.transactions)
}

func TestCreatePaymentLinkGatewayFailureKeepsPendingTransaction(t *testing.T) {
	st := newFakeCheckoutStore(&models.Product{ID: 1, PriceCents: 5000, Stock: 5})
	links := &fakeLinkCreator{err: errors.New("link limit reached")}
	svc := testCheckoutService(st, &fakeSubmitter{}, links, &fakePublisher{})

	_, err := svc.CreatePaymentLink(context.Background(), &CreatePaymentLinkRequest{
		ProductID:        1,
		Quantity:         1,
		CustomerEmail:    "buyer@example.com",
		CustomerFullName: "Test Buyer",
		Delivery:         DeliveryRequest{Address: "Calle 1 #2-3", City: "Bogota", Phone: "3001234567"},
	})
	require.Error(t, err)

	require.Len(t, st.transactions, 1)
	assert.Equal(t, models.TxStatusPending, st.transactions[0].Status)
	assert.Empty(t, st.linkIDs)
}
