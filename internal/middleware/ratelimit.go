package middleware

import (
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"truefantix/internal/cache"
	apperrors "truefantix/internal/errors"
	"truefantix/internal/logger"
	"truefantix/internal/metrics"

	"github.com/gin-gonic/gin"
)

// Limit - лимит запросов с одного IP на окно
type Limit struct {
	Bucket string
	Max    int
	Window time.Duration
}

var (
	RegisterLimit = Limit{Bucket: "register", Max: 5, Window: 10 * time.Minute}
	LoginLimit    = Limit{Bucket: "login", Max: 10, Window: 10 * time.Minute}
	CheckoutLimit = Limit{Bucket: "checkout", Max: 20, Window: time.Minute}
)

// RateLimit ограничивает запросы по IP клиента.
// Ошибка счетчика не блокирует запрос.
func RateLimit(limiter cache.RateLimiter, limit Limit) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		key := limit.Bucket + ":" + ClientIP(c)

		allowed, retryAfter, err := limiter.Allow(ctx, key, limit.Max, limit.Window)
		if err != nil {
			logger.WithContext(ctx).Warn("Rate limiter unavailable", "error", err, "bucket", limit.Bucket)
		}
		if !allowed {
			metrics.RateLimited(limit.Bucket)
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(retryAfter.Seconds()))))
			abort(c, apperrors.New(http.StatusTooManyRequests, apperrors.CodeRateLimited, "Too many requests. Please try again later."))
			return
		}
		c.Next()
	}
}

// ClientIP: x-forwarded-for (первый), cf-connecting-ip, x-real-ip, затем адрес соединения
func ClientIP(c *gin.Context) string {
	if xff := c.GetHeader("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	for _, h := range []string{"CF-Connecting-IP", "X-Real-IP"} {
		if ip := strings.TrimSpace(c.GetHeader(h)); ip != "" {
			return ip
		}
	}
	return c.RemoteIP()
}
