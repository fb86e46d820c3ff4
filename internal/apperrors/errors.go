// Package apperrors defines the tagged error kinds that cross component
// boundaries in the relayer, following the error-kind-over-panic discipline
// used throughout the service layer.
package apperrors

import (
	"fmt"
	"net/http"
)

// Kind classifies a RelayError for HTTP status mapping and retry decisions.
type Kind string

const (
	KindValidation          Kind = "validation_error"
	KindAuthorization       Kind = "authorization_error"
	KindAuthentication      Kind = "authentication_error"
	KindDuplicate           Kind = "duplicate"
	KindConflict            Kind = "conflict"
	KindComplianceRejected  Kind = "compliance_rejected"
	KindBlockchainTransient Kind = "blockchain_transient"
	KindBlockchainFatal     Kind = "blockchain_fatal"
	KindTimeout             Kind = "timeout"
	KindServiceUnavailable  Kind = "service_unavailable"
	KindInternal            Kind = "internal_error"
)

// HTTPStatus maps a Kind to its response status code per the error
// handling table. Kinds with no caller-facing status (recovered locally)
// map to 500 as a defensive default; callers of this mapping are only the
// HTTP handlers, which only ever see the caller-facing kinds.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindAuthorization:
		return http.StatusForbidden
	case KindAuthentication:
		return http.StatusUnauthorized
	case KindDuplicate:
		return http.StatusOK
	case KindConflict:
		return http.StatusConflict
	case KindComplianceRejected:
		return http.StatusOK
	case KindTimeout:
		return http.StatusGatewayTimeout
	case KindServiceUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// RelayError is the tagged error value returned across every component
// boundary in the relayer for recoverable conditions. Unrecoverable
// programming errors (nil dereference, invariant violation) are left to
// panic rather than wrapped here.
type RelayError struct {
	Kind    Kind
	Message string
	Err     error
}

func New(kind Kind, message string) *RelayError {
	return &RelayError{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, err error) *RelayError {
	return &RelayError{Kind: kind, Message: message, Err: err}
}

func (e *RelayError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *RelayError) Unwrap() error {
	return e.Err
}

// As reports whether err is a *RelayError and returns it.
func As(err error) (*RelayError, bool) {
	re, ok := err.(*RelayError)
	return re, ok
}
