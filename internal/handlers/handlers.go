package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"truefantix/internal/config"
	apperrors "truefantix/internal/errors"
	"truefantix/internal/logger"
	"truefantix/internal/middleware"
	"truefantix/internal/models"
	"truefantix/internal/service"

	"github.com/gin-gonic/gin"
)

type Handlers struct {
	services *service.Services
	auth     config.AuthConfig
}

func NewHandlers(services *service.Services, auth config.AuthConfig) *Handlers {
	return &Handlers{
		services: services,
		auth:     auth,
	}
}

// ok отдает успешный ответ в конверте {ok:true, ...}
func ok(c *gin.Context, status int, body gin.H) {
	if body == nil {
		body = gin.H{}
	}
	body["ok"] = true
	c.JSON(status, body)
}

// fail отдает ошибку сервиса. Неожиданные ошибки логируются и скрываются за SERVER_ERROR.
func fail(c *gin.Context, err error, action string) {
	apiErr, isAPI := apperrors.AsAPIError(err)
	if !isAPI {
		logger.WithContext(c.Request.Context()).Error("Failed to "+action, "error", err)
		_ = c.Error(err)
		apiErr = apperrors.New(http.StatusInternalServerError, apperrors.CodeServer, "Something went wrong. Please try again.")
	}
	c.JSON(apiErr.Status, gin.H{
		"ok":      false,
		"error":   apiErr.Code,
		"message": apiErr.Message,
	})
}

// bindJSON разбирает тело запроса; пустое тело допускается там, где allowEmpty
func bindJSON(c *gin.Context, dst any, allowEmpty bool) bool {
	if allowEmpty && c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(dst); err != nil {
		fail(c, apperrors.Validation("Invalid JSON body."), "bind request")
		return false
	}
	return true
}

func queryInt(c *gin.Context, name string, def int) (int, bool) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return def, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		fail(c, apperrors.Validation(name+" must be an integer."), "parse query")
		return 0, false
	}
	return v, true
}

func queryBool(c *gin.Context, name string) bool {
	v, _ := strconv.ParseBool(c.Query(name))
	return v
}

func currentUser(c *gin.Context) *models.User {
	return middleware.CurrentUser(c)
}

// Health - GET /health
func (h *Handlers) Health(c *gin.Context) {
	if err := h.services.Ops.Ping(c.Request.Context()); err != nil {
		logger.WithContext(c.Request.Context()).Error("Health check failed", "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"ok": false, "status": "unhealthy", "database": "unreachable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "status": "healthy", "database": "connected"})
}
