// Package apperr defines the closed error taxonomy the HTTP handlers report
// failures in, so that a single kind-to-status mapping governs what the
// caller sees. Collectors, the ingestion pipeline and the scheduler return
// plain Go errors; only the handlers translate failures into a Kind.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind enumerates the error taxonomy. Values are stable and appear verbatim
// in the JSON error envelope, so they must never be renamed once shipped.
type Kind string

const (
	KindConfigError       Kind = "config_error"
	KindVaultCorrupt      Kind = "vault_corrupt"
	KindStoreUnavailable  Kind = "store_unavailable"
	KindCacheUnavailable  Kind = "cache_unavailable"
	KindAuthFailed        Kind = "auth_failed"
	KindSourceUnavailable Kind = "source_unavailable"
	KindParseError        Kind = "parse_error"
	KindRateLimited       Kind = "rate_limited"
	KindValidationError   Kind = "validation_error"
	KindAlreadyRunning    Kind = "already_running"
	KindNotFound          Kind = "not_found"
)

// Error is the typed error carried through the system. Field is optional and
// set only for validation_error.
type Error struct {
	Kind    Kind
	Message string
	Field   string
	cause   error
}

func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s (field=%s)", e.Kind, e.Message, e.Field)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New creates an *Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap creates an *Error of the given kind that wraps cause. Error() does not
// include the cause's text, since that may leak internal detail to callers;
// use errors.Unwrap or logging to inspect it.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

// WithField returns a copy of e with Field set, for validation_error cases
// that need to point at a specific request parameter.
func (e *Error) WithField(field string) *Error {
	cp := *e
	cp.Field = field
	return &cp
}

// As extracts an *Error from err, if present anywhere in its chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// HTTPStatus returns the status code the given kind maps to. Kinds that are
// never surfaced directly to an HTTP caller (cache_unavailable, auth_failed,
// source_unavailable, config_error, vault_corrupt — all internal/collector
// conditions recorded on a CollectionRun rather than returned from a
// request handler) still get a sensible status for defensive completeness.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindValidationError:
		return http.StatusBadRequest
	case KindAlreadyRunning:
		return http.StatusConflict
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindParseError:
		return http.StatusUnprocessableEntity
	case KindNotFound:
		return http.StatusNotFound
	case KindStoreUnavailable, KindCacheUnavailable:
		return http.StatusServiceUnavailable
	case KindAuthFailed:
		return http.StatusUnauthorized
	case KindSourceUnavailable:
		return http.StatusBadGateway
	case KindConfigError, KindVaultCorrupt:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
