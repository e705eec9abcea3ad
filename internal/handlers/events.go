package handlers

import (
	"net/http"

	"truefantix/internal/models"

	"github.com/gin-gonic/gin"
)

// ListEvents - GET /api/events
func (h *Handlers) ListEvents(c *gin.Context) {
	events, err := h.services.Events.List(c.Request.Context())
	if err != nil {
		fail(c, err, "list events")
		return
	}
	ok(c, http.StatusOK, gin.H{"events": events})
}

// CreateEvent - POST /api/admin/events
// Создать событие
func (h *Handlers) CreateEvent(c *gin.Context) {
	var req models.CreateEventRequest
	if !bindJSON(c, &req, false) {
		return
	}

	event, err := h.services.Events.Create(c.Request.Context(), &req)
	if err != nil {
		fail(c, err, "create event")
		return
	}
	ok(c, http.StatusCreated, gin.H{"event": event})
}

// UpdateSellout - PATCH /api/admin/events/:id/sellout
// При переходе в AVAILABLE уведомляет лист ожидания
func (h *Handlers) UpdateSellout(c *gin.Context) {
	var req models.UpdateSelloutRequest
	if !bindJSON(c, &req, false) {
		return
	}

	change, err := h.services.Events.UpdateSellout(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		fail(c, err, "update event sellout status")
		return
	}
	ok(c, http.StatusOK, gin.H{"event": change.Event, "waitlistNotified": change.Notified})
}
