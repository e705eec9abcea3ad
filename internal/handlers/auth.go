package handlers

import (
	"net/http"
	"time"

	"truefantix/internal/middleware"
	"truefantix/internal/models"

	"github.com/gin-gonic/gin"
)

// Register - POST /api/auth/register
// Регистрация пользователя вместе с кошельком продавца
func (h *Handlers) Register(c *gin.Context) {
	var req models.RegisterRequest
	if !bindJSON(c, &req, false) {
		return
	}

	result, err := h.services.Auth.Register(c.Request.Context(), &req, sessionInfo(c))
	if err != nil {
		fail(c, err, "register user")
		return
	}

	h.setSessionCookie(c, result.Token, result.ExpiresAt)
	ok(c, http.StatusCreated, gin.H{"user": result.User})
}

// Login - POST /api/auth/login
func (h *Handlers) Login(c *gin.Context) {
	var req models.LoginRequest
	if !bindJSON(c, &req, false) {
		return
	}

	result, err := h.services.Auth.Login(c.Request.Context(), &req, sessionInfo(c))
	if err != nil {
		fail(c, err, "login")
		return
	}

	h.setSessionCookie(c, result.Token, result.ExpiresAt)
	ok(c, http.StatusOK, gin.H{"user": result.User})
}

// Logout - POST /api/auth/logout
func (h *Handlers) Logout(c *gin.Context) {
	token, _ := c.Cookie(h.auth.CookieName)
	if err := h.services.Auth.Logout(c.Request.Context(), token); err != nil {
		fail(c, err, "logout")
		return
	}

	h.clearSessionCookie(c)
	ok(c, http.StatusOK, nil)
}

// Me - GET /api/auth/me
func (h *Handlers) Me(c *gin.Context) {
	c.Header("Cache-Control", "no-store")

	view, err := h.services.Auth.Me(c.Request.Context(), currentUser(c))
	if err != nil {
		fail(c, err, "load current user")
		return
	}
	ok(c, http.StatusOK, gin.H{"user": view})
}

// SendVerification - POST /api/auth/verify/send
func (h *Handlers) SendVerification(c *gin.Context) {
	var req models.VerifySendRequest
	if !bindJSON(c, &req, false) {
		return
	}

	if err := h.services.Auth.SendVerification(c.Request.Context(), currentUser(c), &req); err != nil {
		fail(c, err, "send verification code")
		return
	}
	ok(c, http.StatusOK, gin.H{"channel": req.Channel})
}

// ConfirmVerification - POST /api/auth/verify/confirm
func (h *Handlers) ConfirmVerification(c *gin.Context) {
	var req models.VerifyConfirmRequest
	if !bindJSON(c, &req, false) {
		return
	}

	user, err := h.services.Auth.ConfirmVerification(c.Request.Context(), currentUser(c), &req)
	if err != nil {
		fail(c, err, "confirm verification code")
		return
	}
	ok(c, http.StatusOK, gin.H{"user": user})
}

func sessionInfo(c *gin.Context) models.SessionInfo {
	return models.SessionInfo{
		IP:        middleware.ClientIP(c),
		UserAgent: c.Request.UserAgent(),
	}
}

func (h *Handlers) setSessionCookie(c *gin.Context, token string, expiresAt time.Time) {
	maxAge := int(time.Until(expiresAt).Seconds())
	if maxAge <= 0 {
		maxAge = int(h.auth.SessionTTL.Seconds())
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.auth.CookieName, token, maxAge, "/", "", h.auth.CookieSecure, true)
}

func (h *Handlers) clearSessionCookie(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.auth.CookieName, "", -1, "/", "", h.auth.CookieSecure, true)
}
