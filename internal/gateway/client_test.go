package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(baseURL string) *Client {
	return NewClient(Config{
		BaseURL:    baseURL,
		PublicKey:  "pub_test_key",
		PrivateKey: "prv_test_key",
		Currency:   "COP",
		Timeout:    2 * time.Second,
	})
}

func TestSubmitTransaction(t *testing.T) {
	var gotBody map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/transactions", r.URL.Path)
		assert.Equal(t, "Bearer prv_test_key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"data":{"id":"prov-123","status":"PENDING"}}`))
	}))
	defer srv.Close()

	result, err := testClient(srv.URL).SubmitTransaction(context.Background(), &SubmitRequest{
		AcceptanceToken:    "acc",
		AmountCents:        11500,
		CustomerEmail:      "buyer@example.com",
		PaymentMethodToken: "tok_test",
		Reference:          "TXN-REF-1",
		Signature:          "sig",
	})
	require.NoError(t, err)

	assert.Equal(t, "prov-123", result.TransactionID)
	assert.Equal(t, "PENDING", result.Status)

	assert.Equal(t, "COP", gotBody["currency"])
	assert.Equal(t, float64(11500), gotBody["amount_in_cents"])
	assert.Equal(t, "CARD", gotBody["payment_method_type"])
	method := gotBody["payment_method"].(map[string]interface{})
	// Installments below 1 are clamped to a single installment.
	assert.Equal(t, float64(1), method["installments"])
}

func TestSubmitTransactionDefaultsEmptyStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":{"id":"prov-123"}}`))
	}))
	defer srv.Close()

	result, err := testClient(srv.URL).SubmitTransaction(context.Background(), &SubmitRequest{Reference: "TXN-REF-1"})
	require.NoError(t, err)
	assert.Equal(t, "PENDING", result.Status)
}

func TestSubmitTransactionErrorExtraction(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"string error", `{"error":"INVALID_ACCEPTANCE_TOKEN"}`, "INVALID_ACCEPTANCE_TOKEN"},
		{"object reason", `{"error":{"reason":"card declined"}}`, "card declined"},
		{"object message", `{"error":{"message":"bad request"}}`, "bad request"},
		{"raw body fallback", `plain text failure`, "plain text failure"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusUnprocessableEntity)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := testClient(srv.URL).SubmitTransaction(context.Background(), &SubmitRequest{Reference: "TXN-REF-1"})
			require.Error(t, err)
			assert.Equal(t, tt.want, err.Error())
		})
	}
}

func TestSubmitTransactionNotConfigured(t *testing.T) {
	client := NewClient(Config{BaseURL: "http://localhost:9999"})
	_, err := client.SubmitTransaction(context.Background(), &SubmitRequest{})
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestCreatePaymentLink(t *testing.T) {
	var gotBody map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/payment_links", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_, _ = w.Write([]byte(`{"data":{"id":"link-abc"}}`))
	}))
	defer srv.Close()

	longRef := "TXN-0123456789012345678901234567890123456789"
	result, err := testClient(srv.URL).CreatePaymentLink(context.Background(), &LinkRequest{
		Name:        "Pago Widget",
		AmountCents: 11500,
		Reference:   longRef,
		RedirectURL: "http://localhost:3001/api/v1/payments/redirect",
		ExpiresAt:   "2026-09-01T00:00:00Z",
	})
	require.NoError(t, err)

	assert.Equal(t, "link-abc", result.LinkID)
	assert.Equal(t, "https://checkout.wompi.co/l/link-abc", result.PaymentLinkURL)

	assert.Equal(t, true, gotBody["single_use"])
	assert.Equal(t, false, gotBody["collect_shipping"])
	assert.Equal(t, "2026-09-01T00:00:00Z", gotBody["expires_at"])
	// The SKU is the reference truncated to the gateway's 36-char limit.
	assert.Equal(t, longRef[:36], gotBody["sku"])
}

func TestCreatePaymentLinkMissingID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":{}}`))
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).CreatePaymentLink(context.Background(), &LinkRequest{Reference: "TXN-REF-1"})
	require.Error(t, err)
}

func TestFetchMerchant(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/merchants/pub_test_key", r.URL.Path)
		assert.Equal(t, "Bearer pub_test_key", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"data":{
			"presigned_acceptance":{"acceptance_token":"acc-tok","permalink":"https://example.com/policy"},
			"presigned_personal_data_auth":{"acceptance_token":"pd-tok","permalink":"https://example.com/personal"}
		}}`))
	}))
	defer srv.Close()

	merchant, err := testClient(srv.URL).FetchMerchant(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "acc-tok", merchant.AcceptanceToken)
	assert.Equal(t, "pd-tok", merchant.PersonalAuthToken)
	assert.Equal(t, "https://example.com/policy", merchant.PolicyPermalink)
	assert.Equal(t, "https://example.com/personal", merchant.PersonalDataPermalink)
}

func TestFetchMerchantNotConfigured(t *testing.T) {
	client := NewClient(Config{})
	_, err := client.FetchMerchant(context.Background())
	assert.ErrorIs(t, err, ErrNotConfigured)
}
