package handlers

import (
	"net/http"

	"truefantix/internal/models"

	"github.com/gin-gonic/gin"
)

// OrderEscrow - GET /api/orders/:id/escrow
func (h *Handlers) OrderEscrow(c *gin.Context) {
	view, err := h.services.Escrow.OrderEscrow(c.Request.Context(), currentUser(c), c.Param("id"))
	if err != nil {
		fail(c, err, "get order escrow")
		return
	}
	ok(c, http.StatusOK, gin.H{"escrow": view})
}

// TicketEscrow - GET /api/tickets/:id/escrow
// Пока билет не депонирован, state = null
func (h *Handlers) TicketEscrow(c *gin.Context) {
	escrow, err := h.services.Escrow.TicketEscrow(c.Request.Context(), currentUser(c), c.Param("id"))
	if err != nil {
		fail(c, err, "get ticket escrow")
		return
	}
	if escrow == nil {
		ok(c, http.StatusOK, gin.H{"state": nil})
		return
	}
	ok(c, http.StatusOK, gin.H{"state": escrow.State, "escrow": escrow})
}

// DepositEscrow - POST /api/tickets/:id/escrow/deposit
func (h *Handlers) DepositEscrow(c *gin.Context) {
	var req models.EscrowDepositRequest
	if !bindJSON(c, &req, true) {
		return
	}

	escrow, err := h.services.Escrow.Deposit(c.Request.Context(), currentUser(c), c.Param("id"), &req)
	if err != nil {
		fail(c, err, "deposit ticket into escrow")
		return
	}
	ok(c, http.StatusOK, gin.H{"escrow": escrow})
}

// ReleaseEscrowToBuyer - POST /api/orders/:id/escrow/release-ticket
func (h *Handlers) ReleaseEscrowToBuyer(c *gin.Context) {
	view, err := h.services.Escrow.ReleaseToBuyer(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err, "release escrow to buyer")
		return
	}
	ok(c, http.StatusOK, gin.H{"escrow": view})
}

// ReleaseEscrowBack - POST /api/orders/:id/escrow/release-back
func (h *Handlers) ReleaseEscrowBack(c *gin.Context) {
	var req models.EscrowReleaseRequest
	if !bindJSON(c, &req, true) {
		return
	}

	view, err := h.services.Escrow.ReleaseBack(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		fail(c, err, "release escrow back to seller")
		return
	}
	ok(c, http.StatusOK, gin.H{"escrow": view})
}

// EscrowTimeout - POST /api/cron/escrow-timeout
func (h *Handlers) EscrowTimeout(c *gin.Context) {
	result, err := h.services.Escrow.SweepTimeouts(c.Request.Context())
	if err != nil {
		fail(c, err, "sweep escrow timeouts")
		return
	}
	ok(c, http.StatusOK, gin.H{"processed": result.Processed, "orderIds": result.OrderIDs})
}
