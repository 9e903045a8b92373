package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"checkout-service/config"
	"checkout-service/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebhookPayloadNormalizeNested(t *testing.T) {
	raw := `{
		"event": "transaction.updated",
		"data": {
			"transaction": {
				"id": "prov-123",
				"status": "APPROVED",
				"reference": "TXN-REF-1",
				"payment_link_id": "link-abc"
			}
		}
	}`

	var payload webhookPayload
	require.NoError(t, json.Unmarshal([]byte(raw), &payload))

	n := payload.normalize()
	assert.Equal(t, "prov-123", n.ProviderTransactionID)
	assert.Equal(t, "APPROVED", n.Status)
	assert.Equal(t, "TXN-REF-1", n.Reference)
	assert.Equal(t, "link-abc", n.PaymentLinkID)
}

func TestWebhookPayloadNormalizeFlat(t *testing.T) {
	raw := `{
		"event": "transaction.updated",
		"data": {
			"id": "prov-456",
			"status": "DECLINED",
			"reference": "TXN-REF-2"
		}
	}`

	var payload webhookPayload
	require.NoError(t, json.Unmarshal([]byte(raw), &payload))

	n := payload.normalize()
	assert.Equal(t, "prov-456", n.ProviderTransactionID)
	assert.Equal(t, "DECLINED", n.Status)
	assert.Equal(t, "TXN-REF-2", n.Reference)
	assert.Empty(t, n.PaymentLinkID)
}

func TestWebhookPayloadNestedWinsOverFlat(t *testing.T) {
	raw := `{
		"data": {
			"id": "outer",
			"status": "ERROR",
			"transaction": {"id": "inner", "status": "APPROVED"}
		}
	}`

	var payload webhookPayload
	require.NoError(t, json.Unmarshal([]byte(raw), &payload))

	n := payload.normalize()
	assert.Equal(t, "inner", n.ProviderTransactionID)
	assert.Equal(t, "APPROVED", n.Status)
}

func TestFlexStringToleratesNumbers(t *testing.T) {
	raw := `{"data": {"transaction": {"id": "prov-1", "status": "APPROVED", "payment_link_id": 987654}}}`

	var payload webhookPayload
	require.NoError(t, json.Unmarshal([]byte(raw), &payload))

	assert.Equal(t, "987654", payload.normalize().PaymentLinkID)
}

func TestPaymentRedirect(t *testing.T) {
	gin.SetMode(gin.TestMode)

	h := &Handler{cfg: &config.Config{
		URLs: config.URLConfig{StorefrontBaseURL: "https://shop.example.com/"},
	}}

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/api/v1/payments/redirect?id=prov-1&env=test", nil)

	h.paymentRedirect(c)

	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "https://shop.example.com/resultado-pago?id=prov-1&env=test", w.Header().Get("Location"))
}

func TestBusinessErrorStatus(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, businessErrorStatus(service.ErrProductNotFound))
	assert.Equal(t, http.StatusBadRequest, businessErrorStatus(service.ErrInsufficientStock))
	assert.Equal(t, http.StatusBadRequest, businessErrorStatus(service.ErrPaymentLinksUnsupported))
	assert.Equal(t, http.StatusBadGateway, businessErrorStatus(assert.AnError))
}
