package errors

import (
	"errors"
	"fmt"
)

// Common error types for the dashboard
var (
	// Authorization errors. All of them send the user back to the login entry point.
	ErrStateMismatch    = errors.New("oauth state mismatch")
	ErrDenied           = errors.New("authorization denied")
	ErrExchangeFailed   = errors.New("authorization code exchange failed")
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrSessionExpired   = errors.New("session expired")

	// ErrRefreshUnavailable is a refresh that failed for a reason other than a bad refresh token.
	// The stored token is left as it was.
	ErrRefreshUnavailable = errors.New("token refresh unavailable")

	// Banking API errors
	ErrUnauthorized      = errors.New("api: unauthorized")
	ErrForbidden         = errors.New("api: forbidden")
	ErrNotFound          = errors.New("api: not found")
	ErrRateLimited       = errors.New("api: rate limited")
	ErrServerError       = errors.New("api: server error")
	ErrNetwork           = errors.New("api: network error")
	ErrMalformedResponse = errors.New("api: malformed response")
	ErrCircuitOpen       = errors.New("api: circuit breaker open")

	// Session errors
	ErrSessionNotFound = errors.New("session not found")
	ErrInvalidSession  = errors.New("invalid session")

	// General errors
	ErrInternal = errors.New("internal error")
)

// IsReloginRequired reports whether err can only be resolved by sending the user through the
// authorization flow again.
func IsReloginRequired(err error) bool {
	return errors.Is(err, ErrStateMismatch) ||
		errors.Is(err, ErrDenied) ||
		errors.Is(err, ErrExchangeFailed) ||
		errors.Is(err, ErrNotAuthenticated) ||
		errors.Is(err, ErrSessionExpired)
}

// IsTransient reports whether err is an API failure worth retrying
func IsTransient(err error) bool {
	if errors.Is(err, ErrCircuitOpen) {
		return false
	}
	return errors.Is(err, ErrRateLimited) ||
		errors.Is(err, ErrServerError) ||
		errors.Is(err, ErrNetwork)
}

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
