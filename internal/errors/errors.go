package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var ErrUnauthorized = errors.New("user is not authorized")
var ErrForbidden = errors.New("operation is forbidden for user")

// Ошибки слоя хранения
var (
	ErrNotFound            = errors.New("record not found")
	ErrConflict            = errors.New("record was modified concurrently")
	ErrDuplicate           = errors.New("duplicate record")
	ErrInsufficientCredits = errors.New("insufficient credits")
)

// Коды ошибок API
const (
	CodeValidation          = "VALIDATION_ERROR"
	CodeNotAuthenticated    = "NOT_AUTHENTICATED"
	CodeNotVerified         = "NOT_VERIFIED"
	CodeBanned              = "BANNED"
	CodeSellerNotApproved   = "SELLER_NOT_APPROVED"
	CodeForbidden           = "FORBIDDEN"
	CodeNotFound            = "NOT_FOUND"
	CodeBadState            = "BAD_STATE"
	CodeInvalidStatus       = "INVALID_STATUS"
	CodeReservationExpired  = "RESERVATION_EXPIRED"
	CodeReservationMismatch = "RESERVATION_MISMATCH"
	CodeTicketUnavailable   = "TICKET_UNAVAILABLE"
	CodeTicketMissing       = "TICKET_MISSING"
	CodeTicketNotVerified   = "TICKET_NOT_VERIFIED"
	CodeDeliveryConflict    = "DELIVERY_CONFLICT"
	CodePaymentNotSucceeded = "PAYMENT_NOT_SUCCEEDED"
	CodeInsufficientCredits = "INSUFFICIENT_CREDITS"
	CodeMixedSellers        = "MIXED_SELLERS"
	CodeSelfPurchase        = "SELF_PURCHASE"
	CodeDuplicateBarcode    = "DUPLICATE_BARCODE"
	CodeEmailInUse          = "EMAIL_IN_USE"
	CodePhoneInUse          = "PHONE_IN_USE"
	CodeInvalidCredentials  = "INVALID_CREDENTIALS"
	CodeInvalidCode         = "INVALID_CODE"
	CodeRateLimited         = "RATE_LIMITED"
	CodeThreadLocked        = "THREAD_LOCKED"
	CodeNotSoldOut          = "NOT_SOLD_OUT"
	CodeMissingSignature    = "MISSING_SIGNATURE"
	CodeInvalidSignature    = "INVALID_SIGNATURE"
	CodeConfig              = "CONFIG_ERROR"
	CodeServer              = "SERVER_ERROR"
	CodeUnavailable         = "SERVICE_UNAVAILABLE"
)

// APIError - ожидаемая ошибка, которая отдается клиенту как есть
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// New создает APIError
func New(status int, code, message string) *APIError {
	return &APIError{Status: status, Code: code, Message: message}
}

func Validation(message string) *APIError {
	return New(http.StatusBadRequest, CodeValidation, message)
}

func NotFound(message string) *APIError {
	return New(http.StatusNotFound, CodeNotFound, message)
}

func BadState(message string) *APIError {
	return New(http.StatusBadRequest, CodeBadState, message)
}

func Forbidden(message string) *APIError {
	return New(http.StatusForbidden, CodeForbidden, message)
}

func Conflict(code, message string) *APIError {
	return New(http.StatusConflict, code, message)
}

func NotAuthenticated() *APIError {
	return New(http.StatusUnauthorized, CodeNotAuthenticated, "Please sign in.")
}

// AsAPIError извлекает APIError из цепочки ошибок.
// ErrNotFound из хранилища отдается как 404.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	if errors.Is(err, ErrNotFound) {
		return NotFound("Resource not found."), true
	}
	return nil, false
}

// Is и As проксируют стандартный пакет, чтобы не импортировать оба
func Is(err, target error) bool {
	return errors.Is(err, target)
}

func As(err error, target any) bool {
	return errors.As(err, target)
}
