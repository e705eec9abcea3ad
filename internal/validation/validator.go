package validation

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"time"

	apperrors "truefantix/internal/errors"

	"github.com/google/uuid"
)

// APIValidator - проверка работающего API на соответствие контракту:
// конверт ответа, коды ошибок, сессионная cookie
type APIValidator struct {
	baseURL string
	client  *http.Client
}

// NewAPIValidator создает валидатор с собственной cookie-сессией
func NewAPIValidator(baseURL string) (*APIValidator, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}
	return &APIValidator{
		baseURL: baseURL,
		client:  &http.Client{Jar: jar, Timeout: 10 * time.Second},
	}, nil
}

type envelope map[string]any

func (e envelope) ok() bool {
	v, _ := e["ok"].(bool)
	return v
}

func (e envelope) code() string {
	v, _ := e["error"].(string)
	return v
}

// ValidateAll проверяет все группы эндпоинтов по очереди
func (v *APIValidator) ValidateAll() error {
	slog.Info("Начинаю валидацию API", "base_url", v.baseURL)

	steps := []struct {
		name string
		fn   func() error
	}{
		{"health", v.validateHealth},
		{"catalog", v.validateCatalog},
		{"session", v.validateSession},
		{"cron", v.validateCron},
	}
	for _, step := range steps {
		if err := step.fn(); err != nil {
			return fmt.Errorf("%s validation failed: %w", step.name, err)
		}
		slog.Info("✅ Группа эндпоинтов валидна", "group", step.name)
	}

	slog.Info("✅ Все эндпоинты прошли валидацию успешно!")
	return nil
}

func (v *APIValidator) validateHealth() error {
	status, body, err := v.request(http.MethodGet, "/health", nil, nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK || body["status"] != "healthy" {
		return fmt.Errorf("GET /health: expected 200 healthy, got %d %v", status, body["status"])
	}
	return nil
}

// validateCatalog - публичные списки доступны без сессии
func (v *APIValidator) validateCatalog() error {
	for path, key := range map[string]string{
		"/api/tickets": "tickets",
		"/api/events":  "events",
		"/api/sellers": "sellers",
	} {
		status, body, err := v.request(http.MethodGet, path, nil, nil)
		if err != nil {
			return err
		}
		if status != http.StatusOK || !body.ok() {
			return fmt.Errorf("GET %s: expected 200 ok, got %d", path, status)
		}
		if _, isList := body[key].([]any); !isList {
			return fmt.Errorf("GET %s: expected %q array", path, key)
		}
	}
	return nil
}

// validateSession - регистрация, /me, гейт верификации и выход
func (v *APIValidator) validateSession() error {
	suffix := uuid.New().String()[:8]
	digits := fmt.Sprintf("%010d", uuid.New().ID()%10000000000)
	status, body, err := v.request(http.MethodPost, "/api/auth/register", map[string]any{
		"email":          "validator-" + suffix + "@truefantix.local",
		"phone":          "+1" + digits,
		"password":       "Validate" + suffix + "1",
		"firstName":      "API",
		"lastName":       "Validator",
		"streetAddress1": "1 Validation Way",
		"city":           "Toronto",
		"region":         "ON",
		"postalCode":     "M5V 2T6",
		"country":        "CA",
		"acceptTerms":    true,
		"acceptPrivacy":  true,
	}, nil)
	if err != nil {
		return err
	}
	if status != http.StatusCreated || !body.ok() {
		return fmt.Errorf("POST /api/auth/register: expected 201, got %d %s", status, body.code())
	}

	status, body, err = v.request(http.MethodGet, "/api/auth/me", nil, nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK || body["user"] == nil {
		return fmt.Errorf("GET /api/auth/me: expected 200 with user, got %d", status)
	}

	// новый аккаунт не верифицирован
	status, body, err = v.request(http.MethodPost, "/api/orders/checkout",
		map[string]any{"ticketIds": []string{uuid.New().String()}},
		map[string]string{"Idempotency-Key": "validator-" + suffix})
	if err != nil {
		return err
	}
	if err := expectError(status, body, http.StatusForbidden, apperrors.CodeNotVerified); err != nil {
		return fmt.Errorf("POST /api/orders/checkout: %w", err)
	}

	status, _, err = v.request(http.MethodPost, "/api/auth/logout", nil, nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("POST /api/auth/logout: expected 200, got %d", status)
	}

	status, body, err = v.request(http.MethodGet, "/api/auth/me", nil, nil)
	if err != nil {
		return err
	}
	if err := expectError(status, body, http.StatusUnauthorized, apperrors.CodeNotAuthenticated); err != nil {
		return fmt.Errorf("GET /api/auth/me after logout: %w", err)
	}
	return nil
}

// validateCron - без секрета cron-эндпоинты закрыты
func (v *APIValidator) validateCron() error {
	for _, path := range []string{"/api/cron/escrow-timeout", "/api/cron/reservations/expire"} {
		status, body, err := v.request(http.MethodPost, path, nil, nil)
		if err != nil {
			return err
		}
		if err := expectError(status, body, http.StatusUnauthorized, apperrors.CodeNotAuthenticated); err != nil {
			return fmt.Errorf("POST %s: %w", path, err)
		}
	}
	return nil
}

func expectError(status int, body envelope, wantStatus int, wantCode string) error {
	if status != wantStatus {
		return fmt.Errorf("expected %d, got %d", wantStatus, status)
	}
	if body.ok() || body.code() != wantCode {
		return fmt.Errorf("expected error %s, got ok=%v error=%q", wantCode, body.ok(), body.code())
	}
	if _, hasMessage := body["message"].(string); !hasMessage {
		return fmt.Errorf("error envelope without message")
	}
	return nil
}

func (v *APIValidator) request(method, path string, payload any, headers map[string]string) (int, envelope, error) {
	var reader io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, v.baseURL+path, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("%s %s: failed to create request: %w", method, path, err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, val := range headers {
		req.Header.Set(k, val)
	}

	resp, err := v.client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("%s %s: request failed: %w", method, path, err)
	}
	defer resp.Body.Close()

	var body envelope
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return resp.StatusCode, nil, fmt.Errorf("%s %s: failed to decode response: %w", method, path, err)
	}
	return resp.StatusCode, body, nil
}
