package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// Error codes push relays use for tokens that will never be deliverable again.
var invalidTokenCodes = map[string]struct{}{
	"UNREGISTERED":        {},
	"NOT_FOUND":           {},
	"DeviceNotRegistered": {},
	"InvalidRegistration": {},
}

// ProviderError classifies gateway failures as transient or invalid-token.
type ProviderError struct {
	StatusCode   int
	Code         string
	Message      string
	Transient    bool
	InvalidToken bool
	Cause        error
}

func (e *ProviderError) Error() string {
	if e == nil {
		return "<nil>"
	}

	parts := make([]string, 0, 5)
	parts = append(parts, "provider error")

	if e.StatusCode > 0 {
		parts = append(parts, fmt.Sprintf("status=%d", e.StatusCode))
	}
	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("code=%s", e.Code))
	}
	if msg := strings.TrimSpace(e.Message); msg != "" {
		parts = append(parts, msg)
	}
	if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}

	return strings.Join(parts, ": ")
}

func (e *ProviderError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// IsInvalidTokenCode reports whether a relay error code marks the token as gone.
func IsInvalidTokenCode(code string) bool {
	_, ok := invalidTokenCodes[strings.TrimSpace(code)]
	return ok
}

// IsInvalidToken reports whether err says the device token is permanently unusable.
func IsInvalidToken(err error) bool {
	var providerErr *ProviderError
	if errors.As(err, &providerErr) {
		return providerErr.InvalidToken
	}
	return false
}

// IsTransient reports whether err is a delivery failure that leaves the token intact.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var providerErr *ProviderError
	if errors.As(err, &providerErr) {
		return providerErr.Transient
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}

	return false
}

// Outcome is the settled result of one push attempt.
type Outcome string

const (
	OutcomeDelivered    Outcome = "delivered"
	OutcomeTransient    Outcome = "transient"
	OutcomeInvalidToken Outcome = "invalid_token"
)

func (o Outcome) String() string {
	return string(o)
}

// Classify settles a Send result. Anything not proven to be an invalid
// token is treated as transient so the token survives.
func Classify(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeDelivered
	case IsInvalidToken(err):
		return OutcomeInvalidToken
	default:
		return OutcomeTransient
	}
}
