package models

import (
	"errors"
	"fmt"
)

var (
	ErrAccountNotFound = errors.New("account not found")
	ErrRecordNotFound  = errors.New("number not found")
	// ErrInvalidState is returned when a cancel targets a record that is no
	// longer WAITING. The losing side of a cancel race sees this too.
	ErrInvalidState = errors.New("number cannot be cancelled")
	// ErrProviderUnavailable wraps network and timeout failures talking to
	// the upstream provider.
	ErrProviderUnavailable = errors.New("provider unavailable")
	ErrUsernameTaken       = errors.New("username already exists")
	ErrAccountDisabled     = errors.New("account is deactivated")
	ErrInvalidCredentials  = errors.New("invalid username or password")
)

// InsufficientBalanceError reports both sides of a failed balance check.
type InsufficientBalanceError struct {
	Required  float64
	Available float64
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance: required %.2f, available %.2f", e.Required, e.Available)
}

// ProviderRejectedError carries the upstream error string verbatim. Upstream
// messages are not curated; the caller sees exactly what the provider sent.
type ProviderRejectedError struct {
	Message string
}

func (e *ProviderRejectedError) Error() string {
	return e.Message
}

// ValidationError flags rejected input on management endpoints.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}
