package anthropic

import (
	"errors"
	"net/http"

	sdk "github.com/anthropics/anthropic-sdk-go"
)

// IsTransient reports whether err is a retryable API failure: rate limiting,
// overload, or a server-side error. Request errors (bad request, auth) are
// permanent and must not be retried.
func IsTransient(err error) bool {
	var apiErr *sdk.Error
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.StatusCode {
	case http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout,
		529: // anthropic overloaded_error
		return true
	}
	return false
}
