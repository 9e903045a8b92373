package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"checkout-service/config"
	"checkout-service/internal/gateway"
	"checkout-service/internal/redisclient"
	"checkout-service/internal/service"
	"checkout-service/internal/store"
	"checkout-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Handler contains HTTP handlers
type Handler struct {
	checkout  *service.CheckoutService
	reconcile *service.ReconcileService
	store     *store.Store
	gateway   *gateway.Client
	redis     *redisclient.Client
	cfg       *config.Config
	logger    *zap.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(
	checkout *service.CheckoutService,
	reconcile *service.ReconcileService,
	st *store.Store,
	gw *gateway.Client,
	redis *redisclient.Client,
	cfg *config.Config,
) *Handler {
	return &Handler{
		checkout:  checkout,
		reconcile: reconcile,
		store:     st,
		gateway:   gw,
		redis:     redis,
		cfg:       cfg,
		logger:    util.GetLogger(),
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.GET("/products", h.listProducts)
		v1.GET("/products/:id", h.getProduct)
		v1.POST("/payments", h.createPayment)
		v1.POST("/payments/create-link", h.createPaymentLink)
		v1.GET("/payments/redirect", h.paymentRedirect)
		v1.GET("/transactions/status", h.transactionStatus)
		v1.GET("/config", h.getConfig)
		v1.GET("/gateway/merchant", h.getMerchant)
		v1.POST("/webhooks/payment", h.handleWebhook)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck handles readiness check requests
func (h *Handler) readinessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// listProducts returns the product catalog
func (h *Handler) listProducts(c *gin.Context) {
	products, err := h.store.GetProducts(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load products"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"products": products})
}

// getProduct returns one product by id
func (h *Handler) getProduct(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid product ID"})
		return
	}

	product, err := h.store.FindProductByID(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load product"})
		return
	}
	if product == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Product not found"})
		return
	}
	c.JSON(http.StatusOK, product)
}

// createPayment handles a direct card payment
func (h *Handler) createPayment(c *gin.Context) {
	var req service.CreatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	resp, err := h.checkout.CreatePayment(c.Request.Context(), &req)
	if err != nil {
		c.JSON(businessErrorStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// createPaymentLink handles a hosted-checkout order
func (h *Handler) createPaymentLink(c *gin.Context) {
	var req service.CreatePaymentLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	resp, err := h.checkout.CreatePaymentLink(c.Request.Context(), &req)
	if err != nil {
		c.JSON(businessErrorStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// paymentRedirect bounces the gateway's browser redirect to the storefront
// result page, carrying the query string through untouched.
func (h *Handler) paymentRedirect(c *gin.Context) {
	base := strings.TrimRight(h.cfg.URLs.StorefrontBaseURL, "/")
	target := base + "/resultado-pago"
	if raw := c.Request.URL.RawQuery; raw != "" {
		target += "?" + raw
	}
	c.Redirect(http.StatusFound, target)
}

// transactionStatus returns the status for a provider transaction id
func (h *Handler) transactionStatus(c *gin.Context) {
	providerID := strings.TrimSpace(c.Query("providerId"))
	if providerID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing providerId"})
		return
	}

	tx, err := h.store.FindTransactionByProviderID(c.Request.Context(), providerID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load transaction"})
		return
	}
	if tx == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Transaction not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":             tx.Status,
		"transaction_number": tx.TransactionNumber,
	})
}

// getConfig exposes the fee defaults and the public half of the gateway
// configuration to the storefront.
func (h *Handler) getConfig(c *gin.Context) {
	payload := gin.H{
		"base_fee_cents":     h.cfg.Fees.BaseFeeCents,
		"delivery_fee_cents": h.cfg.Fees.DeliveryFeeCents,
	}
	if h.cfg.Gateway.PublicKey != "" && h.cfg.Gateway.BaseURL != "" {
		payload["gateway_public_key"] = h.cfg.Gateway.PublicKey
		payload["gateway_base_url"] = strings.TrimRight(h.cfg.Gateway.BaseURL, "/")
	}
	c.JSON(http.StatusOK, payload)
}

// getMerchant proxies the gateway's presigned acceptance tokens
func (h *Handler) getMerchant(c *gin.Context) {
	merchant, err := h.gateway.FetchMerchant(c.Request.Context())
	if err != nil {
		if errors.Is(err, gateway.ErrNotConfigured) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Payment gateway not configured"})
			return
		}
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, merchant)
}

// flexString tolerates identifiers sent as JSON numbers.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

// webhookPayload mirrors the provider's event shape: identifiers may sit
// under data.transaction or directly under data depending on the event kind.
type webhookPayload struct {
	Event string `json:"event"`
	Data  struct {
		ID            flexString `json:"id"`
		Status        flexString `json:"status"`
		Reference     flexString `json:"reference"`
		PaymentLinkID flexString `json:"payment_link_id"`
		Transaction   struct {
			ID            flexString `json:"id"`
			Status        flexString `json:"status"`
			Reference     flexString `json:"reference"`
			PaymentLinkID flexString `json:"payment_link_id"`
		} `json:"transaction"`
	} `json:"data"`
}

// normalize flattens the payload into the reconciliation input, preferring
// the nested transaction object over top-level data fields.
func (p *webhookPayload) normalize() *service.WebhookNotification {
	pick := func(nested, flat flexString) string {
		if nested != "" {
			return string(nested)
		}
		return string(flat)
	}
	return &service.WebhookNotification{
		ProviderTransactionID: pick(p.Data.Transaction.ID, p.Data.ID),
		Status:                pick(p.Data.Transaction.Status, p.Data.Status),
		Reference:             pick(p.Data.Transaction.Reference, p.Data.Reference),
		PaymentLinkID:         pick(p.Data.Transaction.PaymentLinkID, p.Data.PaymentLinkID),
	}
}

// handleWebhook receives asynchronous status notifications from the gateway.
// Whatever happens beyond a malformed payload, the provider gets a 200 —
// returning an error status would only trigger a redelivery storm.
func (h *Handler) handleWebhook(c *gin.Context) {
	var payload webhookPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid webhook payload"})
		return
	}

	notification := payload.normalize()
	if notification.ProviderTransactionID == "" || notification.Status == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing transaction id or status"})
		return
	}

	ctx := c.Request.Context()

	// Fast-drop recent duplicates; the reconciliation compare-and-set is
	// still the correctness backstop when Redis is cold or unavailable.
	if h.redis != nil {
		seen, err := h.redis.WasWebhookSeen(ctx, notification.ProviderTransactionID)
		if err == nil && seen {
			c.JSON(http.StatusOK, gin.H{"message": "Webhook received"})
			return
		}
	}

	tx, err := h.reconcile.HandleWebhook(ctx, notification)
	if err != nil {
		if errors.Is(err, service.ErrTransactionNotFound) {
			// Acknowledge anyway; surface the miss for operators.
			c.JSON(http.StatusOK, gin.H{
				"message": "Webhook received",
				"warning": err.Error(),
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process webhook"})
		return
	}

	if tx == nil {
		// Non-terminal status, acknowledged without processing.
		c.JSON(http.StatusOK, gin.H{"message": "Webhook received"})
		return
	}

	if h.redis != nil {
		if err := h.redis.MarkWebhookSeen(ctx, notification.ProviderTransactionID, time.Hour); err != nil {
			h.logger.Warn("Failed to record webhook delivery", zap.Error(err))
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"message":        "Webhook received",
		"transaction_id": tx.ID,
	})
}

func businessErrorStatus(err error) int {
	switch {
	case errors.Is(err, service.ErrProductNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrInsufficientStock),
		errors.Is(err, service.ErrPaymentLinksUnsupported):
		return http.StatusBadRequest
	default:
		return http.StatusBadGateway
	}
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
