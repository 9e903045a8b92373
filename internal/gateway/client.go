package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"checkout-service/internal/util"

	"go.uber.org/zap"
)

// ErrNotConfigured is returned before any outbound call when the gateway
// credentials are missing.
var ErrNotConfigured = errors.New("payment gateway not configured")

// TransactionSubmitter is the immediate card-transaction capability.
type TransactionSubmitter interface {
	SubmitTransaction(ctx context.Context, req *SubmitRequest) (*SubmitResult, error)
}

// LinkCreator is the hosted payment-link capability. A deployment may wire a
// gateway that supports only TransactionSubmitter; callers must check for this
// capability explicitly before relying on it.
type LinkCreator interface {
	CreatePaymentLink(ctx context.Context, req *LinkRequest) (*LinkResult, error)
}

// SubmitRequest carries everything the gateway needs for an immediate charge.
type SubmitRequest struct {
	AcceptanceToken    string
	AmountCents        int64
	CustomerEmail      string
	PaymentMethodToken string
	Installments       int
	Reference          string
	Signature          string
}

// SubmitResult is the normalized success shape of an immediate charge.
type SubmitResult struct {
	TransactionID string
	Status        string
}

// LinkRequest carries everything the gateway needs for a hosted payment link.
type LinkRequest struct {
	Name        string
	Description string
	AmountCents int64
	Reference   string
	RedirectURL string
	ExpiresAt   string
}

// LinkResult is the normalized success shape of a payment-link creation.
type LinkResult struct {
	LinkID         string
	PaymentLinkURL string
}

// Merchant holds the presigned acceptance tokens the storefront needs before
// tokenizing a card.
type Merchant struct {
	AcceptanceToken       string `json:"acceptance_token"`
	PersonalAuthToken     string `json:"personal_auth_token"`
	PolicyPermalink       string `json:"policy_permalink"`
	PersonalDataPermalink string `json:"personal_data_permalink"`
}

// Config holds the gateway connection settings.
type Config struct {
	BaseURL    string
	PublicKey  string
	PrivateKey string
	Currency   string
	Timeout    time.Duration
}

// Client talks to the external payment gateway. Every method performs exactly
// one outbound call; retry policy belongs to callers and none exists.
type Client struct {
	baseURL    string
	publicKey  string
	privateKey string
	currency   string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a gateway client with a bounded request timeout.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		publicKey:  cfg.PublicKey,
		privateKey: cfg.PrivateKey,
		currency:   cfg.Currency,
		httpClient: &http.Client{Timeout: timeout},
		logger:     util.GetLogger(),
	}
}

type gatewayEnvelope struct {
	Data struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	} `json:"data"`
	Error json.RawMessage `json:"error"`
}

// SubmitTransaction charges a tokenized card through the gateway.
func (c *Client) SubmitTransaction(ctx context.Context, req *SubmitRequest) (*SubmitResult, error) {
	if c.privateKey == "" {
		return nil, ErrNotConfigured
	}

	installments := req.Installments
	if installments < 1 {
		installments = 1
	}

	body := map[string]interface{}{
		"acceptance_token": req.AcceptanceToken,
		"amount_in_cents":  req.AmountCents,
		"currency":         c.currency,
		"customer_email":   req.CustomerEmail,
		"payment_method": map[string]interface{}{
			"type":         "CARD",
			"token":        req.PaymentMethodToken,
			"installments": installments,
		},
		"payment_method_type": "CARD",
		"reference":           req.Reference,
		"signature":           req.Signature,
	}

	var envelope gatewayEnvelope
	if err := c.post(ctx, "submit_transaction", "/transactions", body, &envelope); err != nil {
		return nil, err
	}

	if envelope.Data.ID == "" {
		return nil, errors.New("no transaction id in gateway response")
	}

	status := envelope.Data.Status
	if status == "" {
		status = "PENDING"
	}

	return &SubmitResult{TransactionID: envelope.Data.ID, Status: status}, nil
}

// CreatePaymentLink creates a single-use hosted checkout page.
func (c *Client) CreatePaymentLink(ctx context.Context, req *LinkRequest) (*LinkResult, error) {
	if c.privateKey == "" {
		return nil, ErrNotConfigured
	}

	sku := req.Reference
	if len(sku) > 36 {
		sku = sku[:36]
	}

	body := map[string]interface{}{
		"name":             req.Name,
		"description":      req.Description,
		"single_use":       true,
		"collect_shipping": false,
		"currency":         c.currency,
		"amount_in_cents":  req.AmountCents,
		"redirect_url":     req.RedirectURL,
		"sku":              sku,
	}
	if req.ExpiresAt != "" {
		body["expires_at"] = req.ExpiresAt
	}

	var envelope gatewayEnvelope
	if err := c.post(ctx, "create_payment_link", "/payment_links", body, &envelope); err != nil {
		return nil, err
	}

	if envelope.Data.ID == "" {
		return nil, errors.New("no payment link id in gateway response")
	}

	return &LinkResult{
		LinkID:         envelope.Data.ID,
		PaymentLinkURL: fmt.Sprintf("https://checkout.wompi.co/l/%s", envelope.Data.ID),
	}, nil
}

// FetchMerchant retrieves the presigned acceptance tokens for the public key.
func (c *Client) FetchMerchant(ctx context.Context) (*Merchant, error) {
	if c.publicKey == "" || c.baseURL == "" {
		return nil, ErrNotConfigured
	}

	url := fmt.Sprintf("%s/merchants/%s", c.baseURL, c.publicKey)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.publicKey)

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	util.GatewayRequestLatency.WithLabelValues("fetch_merchant").Observe(time.Since(start).Seconds())
	if err != nil {
		util.GatewayRequestsFailed.WithLabelValues("fetch_merchant").Inc()
		return nil, fmt.Errorf("merchant request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var payload struct {
		Data struct {
			PresignedAcceptance struct {
				AcceptanceToken string `json:"acceptance_token"`
				Permalink       string `json:"permalink"`
			} `json:"presigned_acceptance"`
			PresignedPersonalDataAuth struct {
				AcceptanceToken string `json:"acceptance_token"`
				Permalink       string `json:"permalink"`
			} `json:"presigned_personal_data_auth"`
		} `json:"data"`
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil && resp.StatusCode < 300 {
		return nil, fmt.Errorf("failed to decode merchant response: %w", err)
	}
	if resp.StatusCode >= 300 {
		util.GatewayRequestsFailed.WithLabelValues("fetch_merchant").Inc()
		return nil, errors.New(extractError(payload.Error, raw, resp.StatusCode, "merchant"))
	}

	return &Merchant{
		AcceptanceToken:       payload.Data.PresignedAcceptance.AcceptanceToken,
		PersonalAuthToken:     payload.Data.PresignedPersonalDataAuth.AcceptanceToken,
		PolicyPermalink:       payload.Data.PresignedAcceptance.Permalink,
		PersonalDataPermalink: payload.Data.PresignedPersonalDataAuth.Permalink,
	}, nil
}

func (c *Client) post(ctx context.Context, operation, path string, body interface{}, out *gatewayEnvelope) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal gateway request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.privateKey)

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	util.GatewayRequestLatency.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	if err != nil {
		util.GatewayRequestsFailed.WithLabelValues(operation).Inc()
		return fmt.Errorf("gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	// Tolerate non-JSON bodies; the status code decides success.
	_ = json.Unmarshal(raw, out)

	if resp.StatusCode >= 300 {
		util.GatewayRequestsFailed.WithLabelValues(operation).Inc()
		msg := extractError(out.Error, raw, resp.StatusCode, operation)
		c.logger.Warn("Gateway call rejected",
			zap.String("operation", operation),
			zap.Int("status_code", resp.StatusCode),
			zap.String("error", msg))
		return errors.New(msg)
	}

	return nil
}

// extractError digs a human-readable message out of the gateway's error
// payload, which may be a bare string or an object carrying reason/message.
func extractError(rawErr json.RawMessage, rawBody []byte, statusCode int, operation string) string {
	if len(rawErr) > 0 {
		var asString string
		if err := json.Unmarshal(rawErr, &asString); err == nil && asString != "" {
			return asString
		}
		var asObject struct {
			Reason  string `json:"reason"`
			Message string `json:"message"`
		}
		if err := json.Unmarshal(rawErr, &asObject); err == nil {
			if asObject.Reason != "" {
				return asObject.Reason
			}
			if asObject.Message != "" {
				return asObject.Message
			}
		}
	}
	if len(rawBody) > 0 && len(rawBody) < 500 {
		return string(rawBody)
	}
	return fmt.Sprintf("gateway %s error %d", operation, statusCode)
}
