package kbsdk

import (
	"errors"
	"fmt"
)

// Kind classifies API failures so callers can branch without string
// matching. Every non-2xx response is mapped to a Kind exactly once, at the
// response boundary.
type Kind string

const (
	// KindInvalidCredentials: the primary login factor was rejected.
	KindInvalidCredentials Kind = "invalid_credentials"

	// KindInvalidTotpCode: the 2FA completion step was rejected.
	KindInvalidTotpCode Kind = "invalid_totp_code"

	// KindTotpSetupFailed: enabling TOTP (or fetching its QR) failed.
	KindTotpSetupFailed Kind = "totp_setup_failed"

	// KindTotpDisableFailed: disabling TOTP failed.
	KindTotpDisableFailed Kind = "totp_disable_failed"

	// KindValidation: the service (or the client pre-flight) rejected a
	// payload, e.g. creating a user that already exists.
	KindValidation Kind = "validation_error"

	// KindNotFound: the addressed resource does not exist.
	KindNotFound Kind = "not_found"

	// KindForbidden: the operation is not allowed for this caller.
	KindForbidden Kind = "forbidden"

	// KindRequestFailed: any other non-2xx response.
	KindRequestFailed Kind = "request_failed"
)

// APIError is a failure reported by the service. Detail carries the
// server-provided human-readable message when present, else a fixed
// per-operation fallback; it is what the caller should display.
type APIError struct {
	Kind       Kind
	StatusCode int
	Detail     string

	// Fields holds field-level messages for client-side validation
	// failures. Empty for server-reported errors.
	Fields map[string]string
}

func (e *APIError) Error() string {
	return e.Detail
}

// IsKind reports whether err is an *APIError of the given kind.
func IsKind(err error, kind Kind) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Kind == kind
}

// TransportError is a network-level failure: the request never produced a
// response. It wraps the underlying error from the HTTP client, including
// the transport's own timeout.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsTransportError reports whether err is a network-level failure rather
// than a service-reported one.
func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
