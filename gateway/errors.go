package gateway

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a provider failure for the retry and failover logic.
type Kind int

const (
	// KindUnknown covers unclassifiable failures; never retried.
	KindUnknown Kind = iota
	// KindRateLimited marks HTTP 429 class failures; retried with backoff.
	KindRateLimited
	// KindServerError marks HTTP 5xx class failures; retried with backoff.
	KindServerError
	// KindNotFound marks missing model/endpoint failures; triggers immediate
	// provider fallback without backoff.
	KindNotFound
)

// String returns the label used in logs and metrics.
func (k Kind) String() string {
	switch k {
	case KindRateLimited:
		return "rate_limited"
	case KindServerError:
		return "server_error"
	case KindNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// Error is the tagged error variant every provider failure is normalized
// into. The gateway's retry/fallback logic operates only on Kind, never on
// provider-specific fields.
type Error struct {
	Kind     Kind
	Provider string
	Status   int
	Message  string
	Err      error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s: %s (%d): %s", e.Provider, e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.Provider, e.Kind, e.Message)
}

// Unwrap exposes the underlying vendor error.
func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether the failure class is worth retrying on the same
// provider.
func (e *Error) Retryable() bool {
	return e.Kind == KindRateLimited || e.Kind == KindServerError
}

// KindFromStatus maps a numeric HTTP status to an error kind.
func KindFromStatus(status int) Kind {
	switch {
	case status == 429:
		return KindRateLimited
	case status == 404:
		return KindNotFound
	case status >= 500:
		return KindServerError
	default:
		return KindUnknown
	}
}

// KindFromMessage classifies a failure by pattern-matching its message.
// Used when no numeric status code is available.
func KindFromMessage(msg string) Kind {
	m := strings.ToLower(msg)
	switch {
	case strings.Contains(m, "rate limit"), strings.Contains(m, "too many requests"), strings.Contains(m, "429"):
		return KindRateLimited
	case strings.Contains(m, "not found"), strings.Contains(m, "does not exist"), strings.Contains(m, "404"):
		return KindNotFound
	case strings.Contains(m, "internal server"), strings.Contains(m, "overloaded"),
		strings.Contains(m, "timeout"), strings.Contains(m, "unavailable"),
		strings.Contains(m, "500"), strings.Contains(m, "502"), strings.Contains(m, "503"):
		return KindServerError
	default:
		return KindUnknown
	}
}

// Normalize converts an arbitrary provider error into a tagged *Error.
// Errors already tagged by an adapter pass through unchanged; anything else
// falls back to message pattern matching.
func Normalize(provider string, err error) *Error {
	var gwErr *Error
	if errors.As(err, &gwErr) {
		return gwErr
	}
	return &Error{
		Kind:     KindFromMessage(err.Error()),
		Provider: provider,
		Message:  err.Error(),
		Err:      err,
	}
}
