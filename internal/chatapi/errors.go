package chatapi

import (
	"errors"
	"fmt"
)

// Kind classifies an API failure so callers can choose between forcing a
// re-login, showing the server's message verbatim, or offering a retry.
type Kind int

const (
	// KindNetwork covers transport failures and request timeouts. Retryable
	// by the caller; never retried here.
	KindNetwork Kind = iota

	// KindAuthExpired is a 401: the bearer token is no longer valid. Fatal to
	// the session; must force logout upstream and must not be retried.
	KindAuthExpired

	// KindValidation is a 4xx rejection of the request payload. The server
	// message is suitable for user-facing display.
	KindValidation

	// KindConflict is a 409, e.g. creating a room that already exists.
	KindConflict

	// KindServer is any 5xx response.
	KindServer
)

// String returns a short name for the kind, used in wrapped error text.
func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindAuthExpired:
		return "auth_expired"
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindServer:
		return "server"
	default:
		return "unknown"
	}
}

// APIError is the typed error returned for every failed REST call.
type APIError struct {
	Kind       Kind
	StatusCode int    // 0 for network failures
	Message    string // server-supplied message when available
	Err        error  // underlying error for network failures
}

func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("chatapi: %s error: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("chatapi: %s error (status %d): %s", e.Kind, e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error { return e.Err }

// classify maps an HTTP status code to an error kind.
func classify(status int) Kind {
	switch {
	case status == 401:
		return KindAuthExpired
	case status == 409:
		return KindConflict
	case status >= 400 && status < 500:
		return KindValidation
	default:
		return KindServer
	}
}

// IsAuthExpired reports whether err is an authentication-expired API error.
func IsAuthExpired(err error) bool { return isKind(err, KindAuthExpired) }

// IsNetwork reports whether err is a transport-level or timeout API error.
func IsNetwork(err error) bool { return isKind(err, KindNetwork) }

// IsConflict reports whether err is a 409 conflict API error.
func IsConflict(err error) bool { return isKind(err, KindConflict) }

func isKind(err error, k Kind) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind == k
	}
	return false
}
