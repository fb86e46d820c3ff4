package apperrors

import (
	"errors"
	"net/http"
	"testing"
)

func TestHTTPStatusMapping(t *testing.T) {
	cases := map[Kind]int{
		KindValidation:         http.StatusBadRequest,
		KindAuthorization:      http.StatusForbidden,
		KindAuthentication:     http.StatusUnauthorized,
		KindDuplicate:          http.StatusOK,
		KindConflict:           http.StatusConflict,
		KindComplianceRejected: http.StatusOK,
		KindTimeout:            http.StatusGatewayTimeout,
		KindServiceUnavailable: http.StatusServiceUnavailable,
		KindInternal:           http.StatusInternalServerError,
		KindBlockchainFatal:    http.StatusInternalServerError,
	}
	for kind, want := range cases {
		if got := kind.HTTPStatus(); got != want {
			t.Errorf("%s.HTTPStatus() = %d, want %d", kind, got, want)
		}
	}
}

func TestNewAndError(t *testing.T) {
	err := New(KindValidation, "nonce is malformed")
	if err.Error() != "validation_error: nonce is malformed" {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestWrapUnwrap(t *testing.T) {
	inner := errors.New("connection refused")
	err := Wrap(KindTimeout, "fetch blockhash", inner)
	if !errors.Is(err.Unwrap(), inner) {
		t.Error("Unwrap did not return the wrapped error")
	}
	if err.Error() != "timeout: fetch blockhash: connection refused" {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestAs(t *testing.T) {
	var err error = New(KindConflict, "state changed concurrently")
	relayErr, ok := As(err)
	if !ok {
		t.Fatal("As() returned false for a *RelayError")
	}
	if relayErr.Kind != KindConflict {
		t.Errorf("As() kind = %s, want %s", relayErr.Kind, KindConflict)
	}

	_, ok = As(errors.New("plain error"))
	if ok {
		t.Error("As() returned true for a non-RelayError")
	}
}
