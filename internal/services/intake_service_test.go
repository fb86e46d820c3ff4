package services

import (
	"io"
	"strings"
	"testing"

	"github.com/mr-tron/base58"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/ed25519"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"solrelay/internal/apperrors"
	"solrelay/internal/clients"
	"solrelay/internal/models"
	"solrelay/internal/repository"
)

// newIntakeTestService wires a real IntakeService against an in-memory
// sqlite store and a mock-mode RiskClient (empty baseURL), the same
// deterministic-approve-unless-flagged contract production relies on when
// no risk provider endpoint is configured.
func newIntakeTestService(t *testing.T) *IntakeService {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&models.TransferRecord{}, &models.BlocklistEntry{}, &models.RiskProfile{}, &models.OutboxEvent{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}

	transfers := repository.NewTransferRepository(db)
	outbox := repository.NewOutboxRepository(db, nil, "")
	blocklistCache := NewBlocklistCache(repository.NewBlocklistRepository(db))
	if err := blocklistCache.Hydrate(); err != nil {
		t.Fatalf("hydrate blocklist: %v", err)
	}
	riskRepo := repository.NewRiskProfileRepository(db)
	riskClient := clients.NewRiskClient("", 0)
	gate := NewComplianceGate(blocklistCache, riskClient, riskRepo, 5)

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	return NewIntakeService(NewSignatureVerifier(), gate, transfers, outbox, logger)
}

// signedSubmitRequest builds a SubmitRequest for a fresh keypair, signing
// the canonical message so Verify succeeds.
func signedSubmitRequest(toAddress, nonce string, amount uint64) SubmitRequest {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		panic(err)
	}
	from := base58.Encode(pub)
	details := models.TransferDetails{Kind: models.TransferKindPublic, Amount: amount}
	probe := &models.TransferRecord{}
	probe.SetDetails(details)
	message := CanonicalMessage(from, toAddress, probe.AmountOrConfidentialTag(), probe.MintOrSOL(), nonce)
	sig := ed25519.Sign(priv, message)
	return SubmitRequest{
		FromAddress:  from,
		ToAddress:    toAddress,
		Details:      details,
		SignatureB58: base58.Encode(sig),
		Nonce:        nonce,
	}
}

func TestSubmitApprovesAndAdvancesToPendingSubmission(t *testing.T) {
	svc := newIntakeTestService(t)
	req := signedSubmitRequest("recipient", strings.Repeat("a", 32), 1000)

	rec, err := svc.Submit(req)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if rec.ComplianceStatus != models.ComplianceStatusApproved {
		t.Errorf("compliance_status = %q, want approved", rec.ComplianceStatus)
	}
	if rec.BlockchainStatus != models.BlockchainStatusPendingSubmission {
		t.Errorf("blockchain_status = %q, want pending_submission", rec.BlockchainStatus)
	}
}

// TestSubmitIsIdempotentOnReplay covers scenario 3: resubmitting the same
// from_address+nonce must return the already-persisted record rather than
// re-screening or creating a duplicate row.
func TestSubmitIsIdempotentOnReplay(t *testing.T) {
	svc := newIntakeTestService(t)
	req := signedSubmitRequest("recipient", strings.Repeat("b", 32), 500)

	first, err := svc.Submit(req)
	if err != nil {
		t.Fatalf("first submit: %v", err)
	}

	second, err := svc.Submit(req)
	if err != nil {
		t.Fatalf("replayed submit: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("replayed submit returned a different record id")
	}

	got, err := svc.transfers.GetByID(first.ID)
	if err != nil {
		t.Fatalf("get by id: %v", err)
	}
	if got.ComplianceStatus != models.ComplianceStatusApproved {
		t.Errorf("replay should not have re-screened, compliance_status = %q", got.ComplianceStatus)
	}
}

// TestSubmitRejectsTamperedSignature covers scenario 4: a signature that
// does not match the canonical message is rejected before any row is
// persisted.
func TestSubmitRejectsTamperedSignature(t *testing.T) {
	svc := newIntakeTestService(t)
	req := signedSubmitRequest("recipient", strings.Repeat("c", 32), 750)
	req.Details.Amount = 999999 // mutating the signed details tampers the canonical message

	_, err := svc.Submit(req)
	if err == nil {
		t.Fatal("expected tampered signature to be rejected")
	}
	relayErr, ok := apperrors.As(err)
	if !ok || relayErr.Kind != apperrors.KindAuthorization {
		t.Errorf("expected KindAuthorization, got %v", err)
	}

	if _, err := svc.transfers.GetByFromAddressAndNonce(req.FromAddress, req.Nonce); err == nil {
		t.Error("expected no record to be persisted for a rejected signature")
	}
}

func TestSubmitRejectsMalformedNonce(t *testing.T) {
	svc := newIntakeTestService(t)
	req := signedSubmitRequest("recipient", "too-short", 1)

	_, err := svc.Submit(req)
	if err == nil {
		t.Fatal("expected malformed nonce to be rejected")
	}
	relayErr, ok := apperrors.As(err)
	if !ok || relayErr.Kind != apperrors.KindValidation {
		t.Errorf("expected KindValidation, got %v", err)
	}
}

func TestSubmitRejectsMismatchedIdempotencyKey(t *testing.T) {
	svc := newIntakeTestService(t)
	req := signedSubmitRequest("recipient", strings.Repeat("d", 32), 1)
	req.IdempotencyKey = "does-not-match-nonce"

	_, err := svc.Submit(req)
	if err == nil {
		t.Fatal("expected mismatched Idempotency-Key to be rejected")
	}
	relayErr, ok := apperrors.As(err)
	if !ok || relayErr.Kind != apperrors.KindValidation {
		t.Errorf("expected KindValidation, got %v", err)
	}
}

func TestSubmitRejectsBlockedRecipient(t *testing.T) {
	svc := newIntakeTestService(t)
	req := signedSubmitRequest("hack-this-one", strings.Repeat("e", 32), 1)

	rec, err := svc.Submit(req)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if rec.ComplianceStatus != models.ComplianceStatusRejected {
		t.Errorf("compliance_status = %q, want rejected", rec.ComplianceStatus)
	}
	if rec.BlockchainStatus != models.BlockchainStatusFailed {
		t.Errorf("blockchain_status = %q, want failed", rec.BlockchainStatus)
	}
}
