package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppError_ErrorString(t *testing.T) {
	err := NewValidation("bad input")
	assert.Equal(t, "VALIDATION_ERROR: bad input", err.Error())

	withCause := NewDatabase(errors.New("connection refused"))
	assert.Contains(t, withCause.Error(), "caused by: connection refused")
}

func TestWithDetail(t *testing.T) {
	err := NewValidation("bad input").
		WithDetail("field", "quantity").
		WithDetail("value", int64(-1))

	assert.Equal(t, "quantity", err.Details["field"])
	assert.Equal(t, int64(-1), err.Details["value"])
}

func TestUnwrapThroughWrapping(t *testing.T) {
	base := NewInsufficientStock("unit-1", 5, 2)
	wrapped := fmt.Errorf("settle sale: %w", base)

	appErr, ok := AsAppError(wrapped)
	require.True(t, ok)
	assert.Equal(t, CodeInsufficientStock, appErr.Code)
	assert.True(t, HasCode(wrapped, CodeInsufficientStock))
	assert.False(t, HasCode(wrapped, CodeNotFound))
}

func TestGetHTTPStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{NewValidation("x"), http.StatusBadRequest},
		{NewNotFound("sale", "abc"), http.StatusNotFound},
		{NewInsufficientStock("u", 1, 0), http.StatusUnprocessableEntity},
		{NewInsufficientPoints("c", 10, 3), http.StatusUnprocessableEntity},
		{NewCreditLimitExceeded("c", 100, 50), http.StatusUnprocessableEntity},
		{NewNegativeBalance("u", -1), http.StatusUnprocessableEntity},
		{NewAlreadyVerified("e"), http.StatusConflict},
		{NewSaleVoided("s"), http.StatusConflict},
		{NewPrescriptionClosed("p", "EXPIRED"), http.StatusUnprocessableEntity},
		{NewDispenseLimitExceeded("u", 5, 2), http.StatusUnprocessableEntity},
		{NewConcurrentModification("sale", "abc"), http.StatusConflict},
		{NewUnauthorized("x"), http.StatusUnauthorized},
		{NewForbidden("x"), http.StatusForbidden},
		{NewIdempotencyConflict("key"), http.StatusConflict},
		{errors.New("plain"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, GetHTTPStatus(tc.err), "error %v", tc.err)
	}
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, IsNotFound(NewNotFound("customer", "id")))
	assert.False(t, IsNotFound(NewValidation("x")))
	assert.False(t, IsNotFound(errors.New("plain")))
}

func TestFactoryDetails(t *testing.T) {
	err := NewInsufficientStock("unit-9", 10, 4)
	assert.Equal(t, "unit-9", err.Details["stock_unit_id"])
	assert.Equal(t, int64(10), err.Details["requested"])
	assert.Equal(t, int64(4), err.Details["available"])

	closed := NewPrescriptionClosed("rx-1", "CANCELLED")
	assert.Equal(t, "CANCELLED", closed.Details["status"])
}
