package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAsAPIErrorUnwrapsChain(t *testing.T) {
	base := Conflict(CodeReservationExpired, "Reservation expired.")
	wrapped := fmt.Errorf("failed to capture order: %w", base)

	apiErr, ok := AsAPIError(wrapped)
	require.True(t, ok)
	assert.Equal(t, http.StatusConflict, apiErr.Status)
	assert.Equal(t, CodeReservationExpired, apiErr.Code)
}

func TestAsAPIErrorPlainError(t *testing.T) {
	_, ok := AsAPIError(fmt.Errorf("boom: %w", ErrConflict))
	assert.False(t, ok)
	assert.True(t, Is(fmt.Errorf("x: %w", ErrConflict), ErrConflict))
}

func TestAsAPIErrorStoreNotFound(t *testing.T) {
	apiErr, ok := AsAPIError(fmt.Errorf("failed to add order item: %w", fmt.Errorf("%w: invalid uuid", ErrNotFound)))
	require.True(t, ok)
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
	assert.Equal(t, CodeNotFound, apiErr.Code)
}

func TestHelpersStatus(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, Validation("x").Status)
	assert.Equal(t, http.StatusNotFound, NotFound("x").Status)
	assert.Equal(t, http.StatusForbidden, Forbidden("x").Status)
	assert.Equal(t, http.StatusUnauthorized, NotAuthenticated().Status)
	assert.Equal(t, "VALIDATION_ERROR: x", Validation("x").Error())
}
