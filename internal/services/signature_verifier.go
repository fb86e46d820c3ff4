package services

import (
	"fmt"
	"regexp"

	"github.com/mr-tron/base58"

	"solrelay/internal/apperrors"
	"solrelay/internal/clients"
)

// nonceFormat enforces the 32-64 char [A-Za-z0-9-] requirement.
var nonceFormat = regexp.MustCompile(`^[A-Za-z0-9-]{32,64}$`)

// SignatureVerifier checks the Ed25519 signature over the canonical
// signing message for every intake request.
type SignatureVerifier struct{}

func NewSignatureVerifier() *SignatureVerifier {
	return &SignatureVerifier{}
}

// CanonicalMessage builds the exact UTF-8 colon-delimited signing message:
// {from}:{to}:{amount|"confidential"}:{mint|"SOL"}:{nonce}
func CanonicalMessage(from, to, amountOrConfidential, mintOrSOL, nonce string) []byte {
	return []byte(fmt.Sprintf("%s:%s:%s:%s:%s", from, to, amountOrConfidential, mintOrSOL, nonce))
}

// Verify checks signatureB58 (base58-encoded Ed25519 signature) against
// the canonical message for fromAddress. Any failure is surfaced as an
// AuthorizationError; it is never retried.
func (v *SignatureVerifier) Verify(fromAddress string, message []byte, signatureB58 string) error {
	sig, err := base58.Decode(signatureB58)
	if err != nil {
		return apperrors.Wrap(apperrors.KindAuthorization, "signature is not valid base58", err)
	}

	ok, err := clients.VerifyCanonicalSignature(fromAddress, message, sig)
	if err != nil {
		return apperrors.Wrap(apperrors.KindAuthorization, "signature verification failed", err)
	}
	if !ok {
		return apperrors.New(apperrors.KindAuthorization, "signature does not match canonical message")
	}
	return nil
}

// ValidateNonce enforces the nonce format invariant: 32-64 characters,
// restricted to [A-Za-z0-9-].
func ValidateNonce(nonce string) error {
	if !nonceFormat.MatchString(nonce) {
		return apperrors.New(apperrors.KindValidation, "nonce must be 32-64 characters in [A-Za-z0-9-]")
	}
	return nil
}
