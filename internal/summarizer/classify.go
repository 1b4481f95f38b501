package summarizer

import (
	"context"
	"errors"
	"strings"

	"github.com/sony/gobreaker"

	"github.com/local/chopdok/internal/ai"
	"github.com/local/chopdok/internal/apperr"
)

// isTransientError reports failures that say something about the backend's
// health: network trouble, timeouts, 5xx and rate limits.
func isTransientError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) || ai.IsRateLimited(err) {
		return true
	}

	var httpErr *ai.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode >= 500 || httpErr.StatusCode == 429
	}

	var scriptErr *ScriptError
	if errors.As(err, &scriptErr) {
		return true
	}

	// Network errors (connection issues, timeouts)
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "no such host") ||
		strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "eof")
}

// isFatalError reports requests the backend rejected as malformed; retrying
// or tripping the breaker would not help.
func isFatalError(err error) bool {
	var httpErr *ai.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode >= 400 && httpErr.StatusCode < 500 && httpErr.StatusCode != 429
	}
	return false
}

// classify turns a backend failure into an apperr kind.
func classify(backend string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return apperr.BackendUnavailable(err, "%s backend circuit open", backend)
	case isFatalError(err):
		return apperr.Validation("%s rejected the request: %v", backend, err)
	case errors.Is(err, context.Canceled):
		return apperr.BackendUnavailable(err, "%s request cancelled", backend)
	default:
		return apperr.BackendUnavailable(err, "%s backend unavailable", backend)
	}
}
