package handlers

import (
	"io"
	"net/http"

	apperrors "truefantix/internal/errors"
	"truefantix/internal/models"

	"github.com/gin-gonic/gin"
)

// maxWebhookBody - Stripe не присылает события больше 64KB
const maxWebhookBody = 65536

// CreatePaymentIntent - POST /api/payments/create-intent
func (h *Handlers) CreatePaymentIntent(c *gin.Context) {
	var req models.CreateIntentRequest
	if !bindJSON(c, &req, false) {
		return
	}

	result, err := h.services.Payments.CreateIntent(c.Request.Context(), currentUser(c), &req)
	if err != nil {
		fail(c, err, "create payment intent")
		return
	}
	ok(c, http.StatusOK, gin.H{
		"clientSecret":    result.ClientSecret,
		"paymentIntentId": result.PaymentIntentID,
		"amountCents":     result.AmountCents,
		"currency":        result.Currency,
	})
}

// StripeWebhook - POST /api/webhooks/stripe
// Тело читается как есть: подпись считается по сырым байтам
func (h *Handlers) StripeWebhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		fail(c, apperrors.Validation("Failed to read request body."), "read webhook body")
		return
	}

	if err := h.services.Payments.HandleWebhook(c.Request.Context(), payload, c.GetHeader("Stripe-Signature")); err != nil {
		fail(c, err, "handle stripe webhook")
		return
	}
	c.JSON(http.StatusOK, gin.H{"received": true})
}
