package handlers

import (
	"net/http"
	"strings"

	"truefantix/internal/models"

	"github.com/gin-gonic/gin"
)

// ListTickets - GET /api/tickets
// Фильтры: status (через запятую), sellerId, eventId, verificationStatus, cursor, limit
func (h *Handlers) ListTickets(c *gin.Context) {
	limit, valid := queryInt(c, "limit", 0)
	if !valid {
		return
	}

	filter := models.TicketFilter{
		SellerID:           c.Query("sellerId"),
		EventID:            c.Query("eventId"),
		VerificationStatus: strings.ToUpper(strings.TrimSpace(c.Query("verificationStatus"))),
		Cursor:             c.Query("cursor"),
		Limit:              limit,
	}
	for _, s := range strings.Split(c.Query("status"), ",") {
		if s = strings.ToUpper(strings.TrimSpace(s)); s != "" {
			filter.Statuses = append(filter.Statuses, s)
		}
	}

	page, err := h.services.Tickets.List(c.Request.Context(), filter)
	if err != nil {
		fail(c, err, "list tickets")
		return
	}
	ok(c, http.StatusOK, gin.H{"tickets": page.Tickets, "nextCursor": page.NextCursor})
}

// SearchTickets - GET /api/tickets/search?q=
func (h *Handlers) SearchTickets(c *gin.Context) {
	limit, valid := queryInt(c, "limit", 0)
	if !valid {
		return
	}

	page, err := h.services.Tickets.Search(c.Request.Context(), c.Query("q"), limit)
	if err != nil {
		fail(c, err, "search tickets")
		return
	}
	ok(c, http.StatusOK, gin.H{"tickets": page.Tickets})
}

// GetTicket - GET /api/tickets/:id
func (h *Handlers) GetTicket(c *gin.Context) {
	ticket, err := h.services.Tickets.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err, "get ticket")
		return
	}
	ok(c, http.StatusOK, gin.H{"ticket": ticket})
}

// CreateTicket - POST /api/tickets
// Выставить билет на продажу
func (h *Handlers) CreateTicket(c *gin.Context) {
	var req models.CreateTicketRequest
	if !bindJSON(c, &req, false) {
		return
	}

	ticket, err := h.services.Tickets.Create(c.Request.Context(), currentUser(c), &req)
	if err != nil {
		fail(c, err, "create ticket")
		return
	}
	ok(c, http.StatusCreated, gin.H{"ticket": ticket})
}

// VerifyTicket - POST /api/tickets/:id/verify
func (h *Handlers) VerifyTicket(c *gin.Context) {
	var req models.VerifyTicketRequest
	if !bindJSON(c, &req, false) {
		return
	}

	ticket, err := h.services.Tickets.Verify(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		fail(c, err, "verify ticket")
		return
	}
	ok(c, http.StatusOK, gin.H{"ticket": ticket})
}

// WithdrawTicket - POST /api/tickets/:id/withdraw
func (h *Handlers) WithdrawTicket(c *gin.Context) {
	ticket, err := h.services.Tickets.Withdraw(c.Request.Context(), currentUser(c), c.Param("id"))
	if err != nil {
		fail(c, err, "withdraw ticket")
		return
	}
	ok(c, http.StatusOK, gin.H{"ticket": ticket})
}
