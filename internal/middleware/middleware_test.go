package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"truefantix/internal/cache"
	"truefantix/internal/config"
	apperrors "truefantix/internal/errors"
	"truefantix/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubAuth struct {
	users map[string]*models.User
	err   error
}

func (a stubAuth) Authenticate(ctx context.Context, token string) (*models.User, error) {
	return a.users[token], a.err
}

func verifiedUser(role string, canSell bool) *models.User {
	now := time.Now()
	return &models.User{ID: "u-" + role, Role: role, CanBuy: true, CanSell: canSell, EmailVerifiedAt: &now, PhoneVerifiedAt: &now}
}

func serve(r *gin.Engine, req *http.Request) (*httptest.ResponseRecorder, map[string]any) {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	var body map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	return w, body
}

func TestClientIP(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name    string
		headers map[string]string
		want    string
	}{
		{"forwarded first entry", map[string]string{"X-Forwarded-For": " 203.0.113.7 , 10.0.0.1", "X-Real-IP": "10.9.9.9"}, "203.0.113.7"},
		{"cloudflare", map[string]string{"CF-Connecting-IP": "198.51.100.4", "X-Real-IP": "10.9.9.9"}, "198.51.100.4"},
		{"real ip", map[string]string{"X-Real-IP": "192.0.2.55"}, "192.0.2.55"},
		{"remote address", nil, "192.0.2.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := gin.CreateTestContext(httptest.NewRecorder())
			c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
			for k, v := range tt.headers {
				c.Request.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, ClientIP(c))
		})
	}
}

func TestGuards(t *testing.T) {
	gin.SetMode(gin.TestMode)
	banned := verifiedUser(models.RoleUser, true)
	banned.IsBanned = true
	unverified := &models.User{ID: "fresh", Role: models.RoleUser}

	auth := stubAuth{users: map[string]*models.User{
		"buyer":      verifiedUser(models.RoleUser, false),
		"seller":     verifiedUser(models.RoleUser, true),
		"admin":      verifiedUser(models.RoleAdmin, false),
		"banned":     banned,
		"unverified": unverified,
	}}

	r := gin.New()
	r.Use(SessionAuth(auth, "tft_session"))
	okHandler := func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"ok": true, "user": CurrentUser(c).ID}) }
	r.GET("/user", RequireUser(), okHandler)
	r.GET("/verified", RequireVerified(), okHandler)
	r.GET("/seller", RequireSellerApproved(), okHandler)
	r.GET("/admin", RequireAdmin(), okHandler)

	tests := []struct {
		path   string
		token  string
		status int
		code   string
	}{
		{"/user", "", http.StatusUnauthorized, apperrors.CodeNotAuthenticated},
		{"/user", "stale-token", http.StatusUnauthorized, apperrors.CodeNotAuthenticated},
		{"/user", "unverified", http.StatusOK, ""},
		{"/verified", "unverified", http.StatusForbidden, apperrors.CodeNotVerified},
		{"/verified", "banned", http.StatusForbidden, apperrors.CodeBanned},
		{"/verified", "buyer", http.StatusOK, ""},
		{"/seller", "buyer", http.StatusForbidden, apperrors.CodeSellerNotApproved},
		{"/seller", "seller", http.StatusOK, ""},
		{"/admin", "seller", http.StatusForbidden, apperrors.CodeForbidden},
		{"/admin", "admin", http.StatusOK, ""},
	}

	for _, tt := range tests {
		t.Run(tt.path+"/"+tt.token, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.token != "" {
				req.AddCookie(&http.Cookie{Name: "tft_session", Value: tt.token})
			}
			w, body := serve(r, req)
			require.Equal(t, tt.status, w.Code)
			if tt.code != "" {
				assert.Equal(t, false, body["ok"])
				assert.Equal(t, tt.code, body["error"])
			}
		})
	}
}

func TestSessionAuthStoreFailure(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(SessionAuth(stubAuth{err: errors.New("db down")}, "tft_session"))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "tft_session", Value: "x"})
	w, body := serve(r, req)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, apperrors.CodeServer, body["error"])
}

func TestRateLimit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/register", RateLimit(cache.NewMemoryRateLimiter(), Limit{Bucket: "register", Max: 2, Window: time.Minute}), func(c *gin.Context) {
		c.Status(http.StatusCreated)
	})

	call := func(ip string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/register", nil)
		req.Header.Set("X-Real-IP", ip)
		w, _ := serve(r, req)
		return w
	}

	assert.Equal(t, http.StatusCreated, call("192.0.2.10").Code)
	assert.Equal(t, http.StatusCreated, call("192.0.2.10").Code)

	w := call("192.0.2.10")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "60", w.Header().Get("Retry-After"))

	assert.Equal(t, http.StatusCreated, call("192.0.2.11").Code)
}

func TestCronSecret(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := func(c *gin.Context) { c.Status(http.StatusOK) }

	r := gin.New()
	r.POST("/cron", CronSecret(config.AuthConfig{CronSecret: "s3cret"}), handler)
	r.POST("/unset", CronSecret(config.AuthConfig{}), handler)

	req := httptest.NewRequest(http.MethodPost, "/cron", nil)
	w, _ := serve(r, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req = httptest.NewRequest(http.MethodPost, "/cron", nil)
	req.Header.Set("x-cron-secret", "s3cret")
	w, _ = serve(r, req)
	assert.Equal(t, http.StatusOK, w.Code)

	// пустой CRON_SECRET закрывает эндпоинты полностью
	req = httptest.NewRequest(http.MethodPost, "/unset", nil)
	req.Header.Set("x-cron-secret", "")
	w, _ = serve(r, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRecoveryAndRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Recovery(), RequestID())
	r.GET("/panic", func(c *gin.Context) { panic("boom") })

	req := httptest.NewRequest(http.MethodGet, "/panic", nil)
	req.Header.Set("X-Request-ID", "req-123")
	w, body := serve(r, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, apperrors.CodeServer, body["error"])
	assert.Equal(t, "req-123", w.Header().Get("X-Request-ID"))
}

func TestCORSPreflight(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(CORS())
	r.OPTIONS("/api/orders/checkout", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodOptions, "/api/orders/checkout", nil)
	req.Header.Set("Origin", "https://truefantix.example")
	w, _ := serve(r, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://truefantix.example", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
}
