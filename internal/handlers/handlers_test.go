package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"truefantix/internal/config"
	apperrors "truefantix/internal/errors"
	"truefantix/internal/models"
	"truefantix/internal/repository"
	"truefantix/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRouter(t *testing.T) (*gin.Engine, *repository.MemoryStore) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := repository.NewMemoryStore()
	services := service.NewServices(service.Deps{
		Store: store,
		Market: config.MarketplaceConfig{
			ReservationWindow:  15 * time.Minute,
			AdminFeeBps:        875,
			MaxTicketsPerOrder: 10,
		},
	})
	h := NewHandlers(services, config.AuthConfig{CookieName: "tft_session"})

	r := gin.New()
	r.GET("/health", h.Health)
	api := r.Group("/api")
	{
		api.GET("/events", h.ListEvents)
		api.GET("/tickets", h.ListTickets)
		api.GET("/tickets/search", h.SearchTickets)
		api.GET("/tickets/:id", h.GetTicket)
		api.GET("/sellers", h.ListSellers)
		api.POST("/webhooks/stripe", h.StripeWebhook)
	}
	return r, store
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	return body
}

func TestHealth(t *testing.T) {
	r, _ := setupRouter(t)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/health", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, "healthy", body["status"])
}

func TestListTicketsPublic(t *testing.T) {
	r, store := setupRouter(t)
	ctx := t.Context()
	hash := "h1"
	now := time.Now()

	for i, status := range []string{models.VerificationVerified, models.VerificationNeedsReview} {
		require.NoError(t, store.Repos().Tickets.Create(ctx, &models.Ticket{
			ID:                 fmt.Sprintf("t%d", i),
			SellerID:           "s1",
			Title:              "Leafs vs Habs",
			Venue:              "Scotiabank Arena",
			Image:              "https://img.example.com/a.png",
			PriceCents:         9900,
			Status:             models.TicketAvailable,
			VerificationStatus: status,
			BarcodeHash:        &hash,
			CreatedAt:          now.Add(time.Duration(i) * time.Second),
			UpdatedAt:          now,
		}))
	}

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/api/tickets", nil)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	tickets := body["tickets"].([]any)
	require.Len(t, tickets, 1)
	assert.Equal(t, "t0", tickets[0].(map[string]any)["id"])
	assert.Nil(t, body["nextCursor"])

	w = httptest.NewRecorder()
	req, _ = http.NewRequest(http.MethodGet, "/api/tickets?verificationStatus=needs_review", nil)
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["tickets"], 1)

	w = httptest.NewRecorder()
	req, _ = http.NewRequest(http.MethodGet, "/api/tickets?limit=abc", nil)
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, apperrors.CodeValidation, decode(t, w)["error"])

	w = httptest.NewRecorder()
	req, _ = http.NewRequest(http.MethodGet, "/api/tickets/search?q=arena", nil)
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["tickets"], 1)
}

func TestErrorEnvelope(t *testing.T) {
	r, _ := setupRouter(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
		code   string
	}{
		{"missing ticket", http.MethodGet, "/api/tickets/nope", "", http.StatusNotFound, apperrors.CodeNotFound},
		{"empty search", http.MethodGet, "/api/tickets/search?q=", "", http.StatusBadRequest, apperrors.CodeValidation},
		{"webhook without gateway", http.MethodPost, "/api/webhooks/stripe", "{}", http.StatusInternalServerError, apperrors.CodeConfig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req, _ := http.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			r.ServeHTTP(w, req)

			assert.Equal(t, tt.status, w.Code)
			body := decode(t, w)
			assert.Equal(t, false, body["ok"])
			assert.Equal(t, tt.code, body["error"])
			assert.NotEmpty(t, body["message"])
		})
	}
}

func TestFailHidesUnexpectedErrors(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest(http.MethodGet, "/", nil)

	fail(c, fmt.Errorf("failed to list tickets: %w", apperrors.ErrConflict), "list tickets")

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	body := decode(t, w)
	assert.Equal(t, apperrors.CodeServer, body["error"])
	assert.NotContains(t, body["message"], "conflict")
	assert.Len(t, c.Errors, 1)
}

func TestBindJSON(t *testing.T) {
	gin.SetMode(gin.TestMode)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest(http.MethodPost, "/", bytes.NewBufferString("{not json"))
	var req models.ReverseRequest
	assert.False(t, bindJSON(c, &req, false))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = httptest.NewRecorder()
	c, _ = gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest(http.MethodPost, "/", http.NoBody)
	assert.True(t, bindJSON(c, &req, true))

	w = httptest.NewRecorder()
	c, _ = gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest(http.MethodPost, "/", bytes.NewBufferString(`{"reason":"fraud"}`))
	require.True(t, bindJSON(c, &req, false))
	assert.Equal(t, "fraud", req.Reason)
}
