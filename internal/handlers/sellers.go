package handlers

import (
	"net/http"
	"strings"

	"truefantix/internal/models"

	"github.com/gin-gonic/gin"
)

// ListSellers - GET /api/sellers
func (h *Handlers) ListSellers(c *gin.Context) {
	sellers, err := h.services.Sellers.List(c.Request.Context())
	if err != nil {
		fail(c, err, "list sellers")
		return
	}
	ok(c, http.StatusOK, gin.H{"sellers": sellers})
}

// GetSeller - GET /api/sellers/:id
func (h *Handlers) GetSeller(c *gin.Context) {
	seller, err := h.services.Sellers.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err, "get seller")
		return
	}
	ok(c, http.StatusOK, gin.H{"seller": seller})
}

// ApproveSeller - POST /api/admin/sellers/:id/approve
func (h *Handlers) ApproveSeller(c *gin.Context) {
	seller, err := h.services.Sellers.Approve(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err, "approve seller")
		return
	}
	ok(c, http.StatusOK, gin.H{"seller": seller})
}

// SellerCredits - GET /api/sellers/:id/credits
// Баланс и журнал токенов доступа; cursor, limit, type, source
func (h *Handlers) SellerCredits(c *gin.Context) {
	limit, valid := queryInt(c, "limit", 0)
	if !valid {
		return
	}
	filter := models.CreditFilter{
		Type:   strings.ToUpper(strings.TrimSpace(c.Query("type"))),
		Source: strings.ToUpper(strings.TrimSpace(c.Query("source"))),
		Cursor: c.Query("cursor"),
		Limit:  limit,
	}

	page, err := h.services.Credits.Ledger(c.Request.Context(), currentUser(c), c.Param("id"), filter)
	if err != nil {
		fail(c, err, "load credit ledger")
		return
	}
	ledgerResponse(c, page)
}

// AdjustCredits - POST /api/sellers/credits
func (h *Handlers) AdjustCredits(c *gin.Context) {
	var req models.CreditAdjustmentRequest
	if !bindJSON(c, &req, false) {
		return
	}

	entry, err := h.services.Credits.Adjust(c.Request.Context(), &req)
	if err != nil {
		fail(c, err, "adjust credits")
		return
	}
	ok(c, http.StatusCreated, gin.H{"transaction": entry})
}

// AccessTokens - GET /api/account/access-tokens
func (h *Handlers) AccessTokens(c *gin.Context) {
	page, err := h.services.Credits.AccountTokens(c.Request.Context(), currentUser(c))
	if err != nil {
		fail(c, err, "load access tokens")
		return
	}
	ledgerResponse(c, page)
}

// CreditAudit - GET /api/admin/sellers/:id/credits/audit
// Сверка баланса продавца с суммой журнала
func (h *Handlers) CreditAudit(c *gin.Context) {
	audit, err := h.services.Credits.Audit(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err, "audit credits")
		return
	}
	ok(c, http.StatusOK, gin.H{"audit": audit})
}

func ledgerResponse(c *gin.Context, page *models.CreditLedgerPage) {
	ok(c, http.StatusOK, gin.H{
		"sellerId":       page.SellerID,
		"balanceCredits": page.Balance,
		"items":          page.Items,
		"nextCursor":     page.NextCursor,
	})
}
