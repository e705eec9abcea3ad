package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"math/big"
	"net/http"
	"regexp"
	"strings"
	"time"

	"truefantix/internal/cache"
	"truefantix/internal/config"
	apperrors "truefantix/internal/errors"
	"truefantix/internal/logger"
	"truefantix/internal/models"
	"truefantix/internal/repository"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const (
	verificationCodeTTL   = 15 * time.Minute
	maxVerificationTries  = 5
	minPasswordLength     = 10
	minPhoneDigits        = 7
	sessionTokenBytes     = 32
	verificationCodeSpace = 1_000_000
)

var (
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	codePattern  = regexp.MustCompile(`^\d{6}$`)
)

// AuthService - регистрация, вход и серверные сессии.
// В базе хранится только sha256(SESSION_SECRET + token).
type AuthService struct {
	*base
	cfg      config.AuthConfig
	sessions cache.SessionCache
}

// HashToken - хэш открытого токена сессии, под которым она лежит в базе и кэше
func (s *AuthService) HashToken(token string) string {
	return sha256Hex(s.cfg.SessionSecret + token)
}

func (s *AuthService) Register(ctx context.Context, req *models.RegisterRequest, info models.SessionInfo) (*models.AuthResult, error) {
	if err := validateRegistration(req); err != nil {
		return nil, err
	}

	email := normalizeEmail(req.Email)
	phone := strings.TrimSpace(req.Phone)

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.bcryptCost())
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := s.now()
	user := &models.User{
		ID:             uuid.New().String(),
		Email:          email,
		Phone:          phone,
		PasswordHash:   string(hash),
		FirstName:      strings.TrimSpace(req.FirstName),
		LastName:       strings.TrimSpace(req.LastName),
		DisplayName:    strings.TrimSpace(req.DisplayName),
		StreetAddress1: strings.TrimSpace(req.StreetAddress1),
		StreetAddress2: strings.TrimSpace(req.StreetAddress2),
		City:           strings.TrimSpace(req.City),
		Region:         strings.TrimSpace(req.Region),
		PostalCode:     strings.TrimSpace(req.PostalCode),
		Country:        strings.TrimSpace(req.Country),
		Role:           models.RoleUser,
		CanBuy:         true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	err = s.store.WithTx(ctx, func(ctx context.Context, r *repository.Repositories) error {
		if existing, err := r.Users.GetByEmail(ctx, email); err != nil {
			return fmt.Errorf("failed to check email: %w", err)
		} else if existing != nil {
			return apperrors.Conflict(apperrors.CodeEmailInUse, "That email is already in use. Log in instead.")
		}
		if existing, err := r.Users.GetByPhone(ctx, phone); err != nil {
			return fmt.Errorf("failed to check phone: %w", err)
		} else if existing != nil {
			return apperrors.Conflict(apperrors.CodePhoneInUse, "That phone number is already in use. Log in instead.")
		}

		seller := &models.Seller{
			ID:        uuid.New().String(),
			Name:      sellerName(user),
			Status:    models.SellerStatusPending,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := r.Sellers.Create(ctx, seller); err != nil {
			return fmt.Errorf("failed to create seller wallet: %w", err)
		}
		user.SellerID = &seller.ID

		if err := r.Users.Create(ctx, user); err != nil {
			if apperrors.Is(err, apperrors.ErrDuplicate) {
				return apperrors.Conflict(apperrors.CodeEmailInUse, "That email or phone is already in use.")
			}
			return fmt.Errorf("failed to create user: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return s.startSession(ctx, user, info)
}

func (s *AuthService) Login(ctx context.Context, req *models.LoginRequest, info models.SessionInfo) (*models.AuthResult, error) {
	login := strings.TrimSpace(req.EmailOrPhone)
	if login == "" {
		return nil, apperrors.Validation("Email or phone is required.")
	}
	if req.Password == "" {
		return nil, apperrors.Validation("Password is required.")
	}

	r := s.repos()
	var user *models.User
	var err error
	if strings.Contains(login, "@") {
		user, err = r.Users.GetByEmail(ctx, normalizeEmail(login))
	} else {
		user, err = r.Users.GetByPhone(ctx, login)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	invalid := apperrors.New(http.StatusUnauthorized, apperrors.CodeInvalidCredentials, "Invalid email/phone or password.")
	if user == nil {
		return nil, invalid
	}
	if user.IsBanned {
		return nil, apperrors.New(http.StatusForbidden, apperrors.CodeBanned, "This account is not permitted to log in.")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, invalid
	}

	now := s.now()
	if err := r.Users.UpdateLastLogin(ctx, user.ID, now); err != nil {
		logger.WithContext(ctx).Warn("Failed to update last login", "error", err, "user_id", user.ID)
	} else {
		user.LastLoginAt = &now
	}

	return s.startSession(ctx, user, info)
}

func (s *AuthService) startSession(ctx context.Context, user *models.User, info models.SessionInfo) (*models.AuthResult, error) {
	token, err := randomHex(sessionTokenBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to generate session token: %w", err)
	}

	now := s.now()
	session := &models.Session{
		ID:        uuid.New().String(),
		UserID:    user.ID,
		TokenHash: s.HashToken(token),
		ExpiresAt: now.Add(s.cfg.SessionTTL),
		IP:        info.IP,
		UserAgent: info.UserAgent,
		CreatedAt: now,
	}
	if err := s.repos().Sessions.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	if err := s.sessions.Set(ctx, session); err != nil {
		logger.WithContext(ctx).Warn("Failed to cache session", "error", err)
	}

	return &models.AuthResult{User: user, Token: token, ExpiresAt: session.ExpiresAt}, nil
}

// Logout удаляет сессию; неизвестный токен не ошибка
func (s *AuthService) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	hash := s.HashToken(token)
	if err := s.sessions.Delete(ctx, hash); err != nil {
		logger.WithContext(ctx).Warn("Failed to evict cached session", "error", err)
	}
	if err := s.repos().Sessions.DeleteByTokenHash(ctx, hash); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// Authenticate возвращает пользователя по токену сессии или nil для анонима.
// Сессия сначала ищется в Redis, потом в базе.
func (s *AuthService) Authenticate(ctx context.Context, token string) (*models.User, error) {
	if token == "" {
		return nil, nil
	}
	hash := s.HashToken(token)
	now := s.now()

	session, err := s.sessions.Get(ctx, hash)
	if err != nil {
		logger.WithContext(ctx).Warn("Session cache lookup failed", "error", err)
		session = nil
	}
	if session == nil {
		session, err = s.repos().Sessions.GetByTokenHash(ctx, hash)
		if err != nil {
			return nil, fmt.Errorf("failed to get session: %w", err)
		}
		if session == nil {
			return nil, nil
		}
		if session.ExpiresAt.After(now) {
			if err := s.sessions.Set(ctx, session); err != nil {
				logger.WithContext(ctx).Warn("Failed to cache session", "error", err)
			}
		}
	}
	if !session.ExpiresAt.After(now) {
		return nil, nil
	}

	user, err := s.repos().Users.GetByID(ctx, session.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// Me - пользователь с флагами доступа и кошельком
func (s *AuthService) Me(ctx context.Context, user *models.User) (*models.UserView, error) {
	view := &models.UserView{
		User:       user,
		IsVerified: user.IsVerified(),
		IsAdmin:    user.IsAdmin(),
	}
	if user.SellerID == nil {
		return view, nil
	}

	seller, err := s.repos().Sellers.GetByID(ctx, *user.SellerID)
	if err != nil {
		return nil, fmt.Errorf("failed to get seller: %w", err)
	}
	view.Seller = seller
	view.IsSellerApproved = seller != nil && seller.Status == models.SellerStatusApproved && user.CanSell
	return view, nil
}

// SendVerification создает 6-значный код и публикует его для доставки
func (s *AuthService) SendVerification(ctx context.Context, user *models.User, req *models.VerifySendRequest) error {
	channel, destination, err := verificationTarget(user, req.Channel)
	if err != nil {
		return err
	}

	code, err := randomCode()
	if err != nil {
		return fmt.Errorf("failed to generate code: %w", err)
	}

	now := s.now()
	vc := &models.VerificationCode{
		ID:        uuid.New().String(),
		UserID:    user.ID,
		Channel:   channel,
		CodeHash:  s.HashToken(code),
		ExpiresAt: now.Add(verificationCodeTTL),
		CreatedAt: now,
	}
	if err := s.repos().VerificationCodes.Create(ctx, vc); err != nil {
		return fmt.Errorf("failed to create verification code: %w", err)
	}

	s.publish(ctx, models.EventVerificationRequested, models.VerificationRequestedEvent{
		UserID:      user.ID,
		Channel:     channel,
		Destination: destination,
		Code:        code,
		ExpiresAt:   vc.ExpiresAt,
		Timestamp:   now,
	})
	return nil
}

// ConfirmVerification проверяет код и отмечает канал подтвержденным
func (s *AuthService) ConfirmVerification(ctx context.Context, user *models.User, req *models.VerifyConfirmRequest) (*models.User, error) {
	channel, _, err := verificationTarget(user, req.Channel)
	if err != nil {
		return nil, err
	}
	code := strings.TrimSpace(req.Code)
	if !codePattern.MatchString(code) {
		return nil, apperrors.Validation("Enter the 6-digit code.")
	}

	now := s.now()
	err = s.store.WithTx(ctx, func(ctx context.Context, r *repository.Repositories) error {
		vc, err := r.VerificationCodes.GetLatestActive(ctx, user.ID, channel, now)
		if err != nil {
			return fmt.Errorf("failed to get verification code: %w", err)
		}
		if vc == nil {
			return apperrors.New(http.StatusBadRequest, apperrors.CodeInvalidCode, "No active code found. Please request a new code.")
		}
		if vc.Attempts >= maxVerificationTries {
			return apperrors.New(http.StatusTooManyRequests, apperrors.CodeRateLimited, "Too many attempts. Please request a new code.")
		}

		if subtle.ConstantTimeCompare([]byte(s.HashToken(code)), []byte(vc.CodeHash)) != 1 {
			return errWrongCode{id: vc.ID}
		}

		n, err := r.VerificationCodes.Consume(ctx, vc.ID, now)
		if err != nil {
			return fmt.Errorf("failed to consume code: %w", err)
		}
		if n != 1 {
			return apperrors.New(http.StatusBadRequest, apperrors.CodeInvalidCode, "Code was already used.")
		}
		if err := r.Users.MarkVerified(ctx, user.ID, channel, now); err != nil {
			return fmt.Errorf("failed to mark verified: %w", err)
		}
		return nil
	})

	// неудачная попытка считается вне откатываемой транзакции
	var wrong errWrongCode
	if apperrors.As(err, &wrong) {
		if err := s.repos().VerificationCodes.IncrementAttempts(ctx, wrong.id); err != nil {
			logger.WithContext(ctx).Error("Failed to count verification attempt", "error", err)
		}
		return nil, apperrors.New(http.StatusBadRequest, apperrors.CodeInvalidCode, "That code is not correct.")
	}
	if err != nil {
		return nil, err
	}

	if channel == models.ChannelEmail {
		user.EmailVerifiedAt = &now
	} else {
		user.PhoneVerifiedAt = &now
	}
	return user, nil
}

type errWrongCode struct{ id string }

func (e errWrongCode) Error() string { return "verification code mismatch" }

func (s *AuthService) bcryptCost() int {
	if s.cfg.BcryptCost > 0 {
		return s.cfg.BcryptCost
	}
	return bcrypt.DefaultCost
}

func validateRegistration(req *models.RegisterRequest) error {
	email := strings.TrimSpace(req.Email)
	phone := strings.TrimSpace(req.Phone)

	switch {
	case email == "":
		return apperrors.Validation("Email is required.")
	case !emailPattern.MatchString(email):
		return apperrors.Validation("Enter a valid email address.")
	case phone == "":
		return apperrors.Validation("Phone number is required.")
	case countDigits(phone) < minPhoneDigits:
		return apperrors.Validation("Enter a valid phone number.")
	case !strongPassword(req.Password):
		return apperrors.Validation("Password must be at least 10 characters and include at least one letter and one number.")
	case strings.TrimSpace(req.FirstName) == "":
		return apperrors.Validation("First name is required.")
	case strings.TrimSpace(req.LastName) == "":
		return apperrors.Validation("Last name is required.")
	case strings.TrimSpace(req.Country) == "":
		return apperrors.Validation("Country is required.")
	case strings.TrimSpace(req.Region) == "":
		return apperrors.Validation("Province/State is required.")
	case strings.TrimSpace(req.City) == "":
		return apperrors.Validation("City is required.")
	case strings.TrimSpace(req.PostalCode) == "":
		return apperrors.Validation("Postal/ZIP code is required.")
	case strings.TrimSpace(req.StreetAddress1) == "":
		return apperrors.Validation("Street address is required.")
	case !req.AcceptTerms:
		return apperrors.Validation("You must accept the Terms of Service to continue.")
	case !req.AcceptPrivacy:
		return apperrors.Validation("You must accept the Privacy Policy to continue.")
	}
	return nil
}

func strongPassword(pw string) bool {
	if len(pw) < minPasswordLength {
		return false
	}
	var letter, digit bool
	for _, c := range pw {
		switch {
		case c >= '0' && c <= '9':
			digit = true
		case (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z'):
			letter = true
		}
	}
	return letter && digit
}

func countDigits(s string) int {
	n := 0
	for _, c := range s {
		if c >= '0' && c <= '9' {
			n++
		}
	}
	return n
}

func verificationTarget(user *models.User, channel string) (string, string, error) {
	switch strings.ToUpper(strings.TrimSpace(channel)) {
	case models.ChannelEmail:
		return models.ChannelEmail, user.Email, nil
	case models.ChannelPhone:
		return models.ChannelPhone, user.Phone, nil
	default:
		return "", "", apperrors.Validation("channel must be EMAIL or PHONE.")
	}
}

func sellerName(user *models.User) string {
	if user.DisplayName != "" {
		return user.DisplayName
	}
	return strings.TrimSpace(user.FirstName + " " + user.LastName)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func sha256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

func randomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func randomCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(verificationCodeSpace))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
