package handlers

import (
	"net/http"
	"strings"

	"truefantix/internal/models"

	"github.com/gin-gonic/gin"
)

// Checkout - POST /api/orders/checkout
// Резервирует билеты и создает заказ PENDING
func (h *Handlers) Checkout(c *gin.Context) {
	var req models.CheckoutRequest
	if !bindJSON(c, &req, false) {
		return
	}
	if key := strings.TrimSpace(c.GetHeader("Idempotency-Key")); key != "" {
		req.IdempotencyKey = key
	}

	result, err := h.services.Orders.Checkout(c.Request.Context(), currentUser(c), &req)
	if err != nil {
		fail(c, err, "checkout")
		return
	}

	if result.Replay {
		ok(c, http.StatusOK, gin.H{"replay": true, "order": result.Order})
		return
	}
	ok(c, http.StatusCreated, gin.H{"order": result.Order, "reservedUntil": result.ReservedUntil})
}

// ListOrders - GET /api/orders
func (h *Handlers) ListOrders(c *gin.Context) {
	orders, err := h.services.Orders.List(c.Request.Context(), currentUser(c))
	if err != nil {
		fail(c, err, "list orders")
		return
	}
	ok(c, http.StatusOK, gin.H{"orders": orders})
}

// GetOrder - GET /api/orders/:id
func (h *Handlers) GetOrder(c *gin.Context) {
	view, err := h.services.Orders.Get(c.Request.Context(), currentUser(c), c.Param("id"))
	if err != nil {
		fail(c, err, "get order")
		return
	}
	ok(c, http.StatusOK, gin.H{"order": view.Order, "payment": view.Payment, "escrowState": view.EscrowState})
}

// CaptureOrder - POST /api/admin/orders/:id/capture
func (h *Handlers) CaptureOrder(c *gin.Context) {
	result, err := h.services.Orders.Capture(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err, "capture order")
		return
	}
	transition(c, result)
}

// DeliverOrder - POST /api/admin/orders/:id/deliver
func (h *Handlers) DeliverOrder(c *gin.Context) {
	result, err := h.services.Orders.Deliver(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err, "deliver order")
		return
	}
	transition(c, result)
}

// CompleteOrder - POST /api/admin/orders/:id/complete
func (h *Handlers) CompleteOrder(c *gin.Context) {
	result, err := h.services.Orders.Complete(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err, "complete order")
		return
	}
	transition(c, result)
}

// ReverseOrder - POST /api/orders/:id/reverse
func (h *Handlers) ReverseOrder(c *gin.Context) {
	var req models.ReverseRequest
	if !bindJSON(c, &req, true) {
		return
	}

	result, err := h.services.Orders.Reverse(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		fail(c, err, "reverse order")
		return
	}
	ok(c, http.StatusOK, gin.H{
		"replay":          result.Replay,
		"order":           result.Order,
		"ticketsReleased": result.TicketsReleased,
		"creditsReversed": result.CreditsReversed,
		"escrowsReleased": result.EscrowsReleased,
	})
}

// ExpireReservations - POST /api/admin/reservations/expire
func (h *Handlers) ExpireReservations(c *gin.Context) {
	result, err := h.services.Orders.ExpireReservations(c.Request.Context())
	if err != nil {
		fail(c, err, "expire reservations")
		return
	}
	ok(c, http.StatusOK, gin.H{
		"scanned":         result.Scanned,
		"affectedOrders":  result.AffectedOrders,
		"ordersCancelled": result.OrdersCancelled,
		"ticketsReleased": result.TicketsReleased,
		"orderIds":        result.OrderIDs,
	})
}

func transition(c *gin.Context, result *models.TransitionResult) {
	ok(c, http.StatusOK, gin.H{"replay": result.Replay, "order": result.Order})
}
