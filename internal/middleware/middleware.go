package middleware

import (
	"log/slog"
	"net/http"
	"time"

	apperrors "truefantix/internal/errors"
	"truefantix/internal/logger"
	"truefantix/internal/metrics"

	"github.com/gin-gonic/gin"
)

const requestIDHeader = "X-Request-ID"

// CORS middleware для обработки CORS запросов
func CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin == "" {
			origin = "*"
		} else {
			// cookie-сессия требует конкретного origin
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Vary", "Origin")
		}
		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Idempotency-Key, Stripe-Signature, X-Cron-Secret, X-Request-ID")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// RequestID кладет id запроса в контекст и в заголовок ответа
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" || len(id) > 64 {
			id = logger.NewRequestID()
		}
		c.Header(requestIDHeader, id)
		c.Request = c.Request.WithContext(logger.ContextWithRequestID(c.Request.Context(), id))
		c.Next()
	}
}

// Logger middleware для структурированного логирования запросов
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		latency := time.Since(start)
		logFields := []any{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status_code", c.Writer.Status(),
			"latency_ms", latency.Milliseconds(),
			"client_ip", ClientIP(c),
			"user_agent", c.Request.UserAgent(),
		}
		if user := CurrentUser(c); user != nil {
			logFields = append(logFields, "user_id", user.ID)
		}

		log := logger.WithContext(c.Request.Context())
		switch status := c.Writer.Status(); {
		case status >= http.StatusInternalServerError:
			if len(c.Errors) > 0 {
				logFields = append(logFields, "error", c.Errors.String())
			}
			log.Error("Request completed with error", logFields...)
		case status >= http.StatusBadRequest:
			log.Warn("Request rejected", logFields...)
		default:
			log.Debug("Request completed", logFields...)
		}
	}
}

// Metrics считает запросы по шаблону маршрута, а не по сырому пути
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		metrics.ObserveHTTP(c.Request.Method, c.FullPath(), c.Writer.Status(), time.Since(start))
	}
}

// Recovery middleware для восстановления после паники с детальным логированием
func Recovery() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		slog.Error("PANIC recovered",
			"panic", recovered,
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"query", c.Request.URL.RawQuery,
			"client_ip", ClientIP(c),
			"request_id", logger.RequestIDFromContext(c.Request.Context()),
		)

		if !c.Writer.Written() {
			abort(c, apperrors.New(http.StatusInternalServerError, apperrors.CodeServer, "Internal server error."))
			return
		}
		c.Abort()
	})
}

// abort отдает ошибку в общем конверте {ok:false, error, message}
func abort(c *gin.Context, err *apperrors.APIError) {
	c.AbortWithStatusJSON(err.Status, gin.H{
		"ok":      false,
		"error":   err.Code,
		"message": err.Message,
	})
}
