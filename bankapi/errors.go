package bankapi

import (
	"errors"
	"fmt"
	"time"

	apperrors "github.com/jrsteele09/go-bank-dashboard/internal/errors"
)

// ErrSequenceConsumed is yielded when a transaction sequence is ranged over a second time
var ErrSequenceConsumed = errors.New("api: transaction sequence already consumed")

// Error is a classified API failure. Kind is one of the api sentinels in internal/errors, so
// errors.Is matches the kind as well as the underlying cause.
type Error struct {
	Kind       error
	StatusCode int           // 0 when no response was received
	RetryAfter time.Duration // provider hint on 429
	Err        error
}

func (e *Error) Error() string {
	msg := e.Kind.Error()
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func newError(kind error, statusCode int, err error) *Error {
	return &Error{Kind: kind, StatusCode: statusCode, Err: err}
}

// kindForStatus maps a non-200 status code to its error kind
func kindForStatus(code int) error {
	switch {
	case code == 401:
		return apperrors.ErrUnauthorized
	case code == 403:
		return apperrors.ErrForbidden
	case code == 404:
		return apperrors.ErrNotFound
	case code == 429:
		return apperrors.ErrRateLimited
	case code >= 500:
		return apperrors.ErrServerError
	default:
		return apperrors.ErrMalformedResponse
	}
}

// reason is the metrics label for a retried failure
func reason(err error) string {
	switch {
	case errors.Is(err, apperrors.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, apperrors.ErrServerError):
		return "server_error"
	case errors.Is(err, apperrors.ErrNetwork):
		return "network"
	default:
		return "other"
	}
}
