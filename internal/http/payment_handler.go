package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"coglex/internal/service"
)

// maxWebhookBytes limita el body de los eventos de Stripe.
const maxWebhookBytes = 65536

// PaymentHandler expone checkout, suscripciones y webhooks de Stripe.
type PaymentHandler struct {
	logger   *zap.Logger
	payments *service.PaymentService
}

func NewPaymentHandler(logger *zap.Logger, payments *service.PaymentService) *PaymentHandler {
	return &PaymentHandler{logger: logger, payments: payments}
}

// Checkout maneja POST /checkout.
func (h *PaymentHandler) Checkout(c *gin.Context) {
	var req struct {
		Mode       string             `json:"mode" binding:"required"`
		SuccessURL string             `json:"success_url" binding:"required"`
		CancelURL  string             `json:"cancel_url" binding:"required"`
		Email      string             `json:"email"`
		LineData   []service.LineItem `json:"linedata" binding:"required"`
		Metadata   map[string]string  `json:"metadata"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid checkout request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	sess, err := h.payments.Checkout(c.Request.Context(), service.CheckoutInput{
		Mode:       req.Mode,
		SuccessURL: req.SuccessURL,
		CancelURL:  req.CancelURL,
		Email:      req.Email,
		LineItems:  req.LineData,
		Metadata:   req.Metadata,
	})
	if err != nil {
		respondError(c, h.logger, "checkout", err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

// Subscription maneja POST /subscription.
func (h *PaymentHandler) Subscription(c *gin.Context) {
	var req struct {
		Email    string             `json:"email" binding:"required"`
		LineData []service.LineItem `json:"linedata" binding:"required"`
		Due      int64              `json:"due"`
		Metadata map[string]string  `json:"metadata"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid subscription request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	sub, err := h.payments.Subscribe(c.Request.Context(), service.SubscriptionInput{
		Email:     req.Email,
		LineItems: req.LineData,
		DueDays:   req.Due,
		Metadata:  req.Metadata,
	})
	if err != nil {
		respondError(c, h.logger, "subscription", err)
		return
	}
	c.JSON(http.StatusOK, sub)
}

// Webhook maneja POST /webhook. La firma se valida sobre el body crudo.
func (h *PaymentHandler) Webhook(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBytes)
	payload, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	event, err := h.payments.ParseWebhook(payload, c.GetHeader("Stripe-Signature"))
	if err != nil {
		respondError(c, h.logger, "stripe webhook", err)
		return
	}
	h.logger.Info("stripe event received", zap.String("id", event.ID), zap.String("type", string(event.Type)))
	c.JSON(http.StatusOK, gin.H{"id": event.ID, "type": event.Type})
}
