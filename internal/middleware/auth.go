package middleware

import (
	"context"
	"crypto/subtle"
	"net/http"

	"truefantix/internal/config"
	apperrors "truefantix/internal/errors"
	"truefantix/internal/logger"
	"truefantix/internal/models"

	"github.com/gin-gonic/gin"
)

const userKey = "user"

// Authenticator находит пользователя по открытому токену сессии; nil - аноним
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*models.User, error)
}

// SessionAuth читает cookie сессии и кладет пользователя в контекст.
// Анонимный запрос пропускается дальше, ограничивают его guard'ы.
func SessionAuth(auth Authenticator, cookieName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := c.Cookie(cookieName)
		if err != nil || token == "" {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		user, err := auth.Authenticate(ctx, token)
		if err != nil {
			logger.WithContext(ctx).Error("Failed to authenticate session", "error", err)
			abort(c, apperrors.New(http.StatusInternalServerError, apperrors.CodeServer, "Internal server error."))
			return
		}
		if user != nil {
			c.Set(userKey, user)
			c.Request = c.Request.WithContext(logger.ContextWithUserID(ctx, user.ID))
		}
		c.Next()
	}
}

// CurrentUser - пользователь текущей сессии или nil
func CurrentUser(c *gin.Context) *models.User {
	v, ok := c.Get(userKey)
	if !ok {
		return nil
	}
	user, _ := v.(*models.User)
	return user
}

func RequireUser() gin.HandlerFunc {
	return guard(func(*models.User) *apperrors.APIError { return nil })
}

// RequireVerified - вход, не забанен, email и телефон подтверждены
func RequireVerified() gin.HandlerFunc {
	return guard(verified)
}

func RequireSellerApproved() gin.HandlerFunc {
	return guard(func(u *models.User) *apperrors.APIError {
		if err := verified(u); err != nil {
			return err
		}
		if !u.CanSell {
			return apperrors.New(http.StatusForbidden, apperrors.CodeSellerNotApproved, "Your seller account is not approved yet.")
		}
		return nil
	})
}

func RequireAdmin() gin.HandlerFunc {
	return guard(func(u *models.User) *apperrors.APIError {
		if !u.IsAdmin() {
			return apperrors.Forbidden("Admin access required.")
		}
		return nil
	})
}

func guard(check func(*models.User) *apperrors.APIError) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := CurrentUser(c)
		if user == nil {
			abort(c, apperrors.NotAuthenticated())
			return
		}
		if err := check(user); err != nil {
			abort(c, err)
			return
		}
		c.Next()
	}
}

func verified(u *models.User) *apperrors.APIError {
	if u.IsBanned {
		return apperrors.New(http.StatusForbidden, apperrors.CodeBanned, "This account is not permitted to use the marketplace.")
	}
	if !u.IsVerified() {
		return apperrors.New(http.StatusForbidden, apperrors.CodeNotVerified, "Please verify your email and phone first.")
	}
	return nil
}

// CronSecret пускает только вызовы планировщика с заголовком x-cron-secret
func CronSecret(cfg config.AuthConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		got := c.GetHeader("x-cron-secret")
		if cfg.CronSecret == "" || subtle.ConstantTimeCompare([]byte(got), []byte(cfg.CronSecret)) != 1 {
			abort(c, apperrors.New(http.StatusUnauthorized, apperrors.CodeNotAuthenticated, "Unauthorized."))
			return
		}
		c.Next()
	}
}
