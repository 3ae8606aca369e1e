package handlers

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/bazaarverse/numrent/internal/models"
)

func TestRespondError(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name   string
		err    error
		status int
		body   string
	}{
		{
			name:   "account not found",
			err:    models.ErrAccountNotFound,
			status: http.StatusNotFound,
			body:   "account not found",
		},
		{
			name:   "record not found",
			err:    models.ErrRecordNotFound,
			status: http.StatusNotFound,
			body:   "number not found",
		},
		{
			name:   "insufficient balance",
			err:    &models.InsufficientBalanceError{Required: 10.00, Available: 5.00},
			status: http.StatusBadRequest,
			body:   "insufficient balance: required 10.00, available 5.00",
		},
		{
			name:   "invalid state",
			err:    models.ErrInvalidState,
			status: http.StatusBadRequest,
			body:   "number cannot be cancelled",
		},
		{
			name:   "provider rejection passes upstream text through",
			err:    &models.ProviderRejectedError{Message: "NO_NUMBERS"},
			status: http.StatusBadRequest,
			body:   "NO_NUMBERS",
		},
		{
			name:   "validation error",
			err:    &models.ValidationError{Message: "username must be at least 3 characters"},
			status: http.StatusBadRequest,
			body:   "username must be at least 3 characters",
		},
		{
			name:   "invalid credentials",
			err:    models.ErrInvalidCredentials,
			status: http.StatusUnauthorized,
			body:   "invalid username or password",
		},
		{
			name:   "disabled account",
			err:    models.ErrAccountDisabled,
			status: http.StatusForbidden,
			body:   "account is deactivated",
		},
		{
			name:   "username taken",
			err:    models.ErrUsernameTaken,
			status: http.StatusConflict,
			body:   "username already exists",
		},
		{
			name:   "provider unavailable",
			err:    models.ErrProviderUnavailable,
			status: http.StatusBadGateway,
			body:   "sms provider is unavailable",
		},
		{
			name:   "wrapped provider unavailable",
			err:    errors.Join(models.ErrProviderUnavailable, errors.New("dial tcp: timeout")),
			status: http.StatusBadGateway,
			body:   "sms provider is unavailable",
		},
		{
			name:   "unknown error is masked",
			err:    errors.New("cursor exhausted"),
			status: http.StatusInternalServerError,
			body:   "internal server error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recorder := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(recorder)

			respondError(c, tt.err)

			assert.Equal(t, tt.status, recorder.Code)
			assert.Contains(t, recorder.Body.String(), tt.body)
		})
	}
}
