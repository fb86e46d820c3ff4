package repository

import (
	"testing"
	"time"

	"solrelay/internal/apperrors"
	"solrelay/internal/models"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newTestRepo(t *testing.T) (TransferRepository, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&models.TransferRecord{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return NewTransferRepository(db), db
}

func newPendingRecord(fromAddr, nonce string) *models.TransferRecord {
	rec := &models.TransferRecord{
		FromAddress:      fromAddr,
		ToAddress:        "recipient",
		Nonce:            nonce,
		ClientSignature:  "sig",
		ComplianceStatus: models.ComplianceStatusPending,
		BlockchainStatus: models.BlockchainStatusReceived,
	}
	rec.SetDetails(models.TransferDetails{Kind: models.TransferKindPublic, Amount: 100})
	return rec
}

// forceProcessing bypasses ClaimBatch (whose raw SQL depends on
// postgres-only FOR UPDATE SKIP LOCKED / NULLS FIRST syntax sqlite does
// not support) to set up the Processing precondition the submission-worker
// transitions below it expect.
func forceProcessing(t *testing.T, db *gorm.DB, id interface{ String() string }) {
	t.Helper()
	if err := db.Model(&models.TransferRecord{}).
		Where("id = ?", id.String()).
		Update("blockchain_status", models.BlockchainStatusProcessing).Error; err != nil {
		t.Fatalf("force processing: %v", err)
	}
}

func TestCreateIsIdempotentOnDuplicateNonce(t *testing.T) {
	repo, _ := newTestRepo(t)

	first, created, err := repo.Create(newPendingRecord("alice", "nonce-1"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !created {
		t.Fatalf("expected first insert to report created=true")
	}

	second, created, err := repo.Create(newPendingRecord("alice", "nonce-1"))
	if err != nil {
		t.Fatalf("create duplicate: %v", err)
	}
	if created {
		t.Errorf("expected duplicate insert to report created=false")
	}
	if second.ID != first.ID {
		t.Errorf("expected duplicate insert to return the existing row, got different id")
	}
}

func TestRejectComplianceMovesReceivedToFailed(t *testing.T) {
	repo, _ := newTestRepo(t)
	rec, _, err := repo.Create(newPendingRecord("bob", "nonce-2"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := repo.RejectCompliance(rec.ID, "sanctioned address"); err != nil {
		t.Fatalf("reject compliance: %v", err)
	}

	got, err := repo.GetByID(rec.ID)
	if err != nil {
		t.Fatalf("get by id: %v", err)
	}
	if got.BlockchainStatus != models.BlockchainStatusFailed {
		t.Errorf("blockchain_status = %q, want %q", got.BlockchainStatus, models.BlockchainStatusFailed)
	}
	if got.ComplianceStatus != models.ComplianceStatusRejected {
		t.Errorf("compliance_status = %q, want %q", got.ComplianceStatus, models.ComplianceStatusRejected)
	}
	if got.ComplianceReason != "sanctioned address" {
		t.Errorf("compliance_reason = %q, want %q", got.ComplianceReason, "sanctioned address")
	}
}

func TestApproveComplianceMovesReceivedToPendingSubmission(t *testing.T) {
	repo, _ := newTestRepo(t)
	rec, _, err := repo.Create(newPendingRecord("carol", "nonce-3"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := repo.ApproveCompliance(rec.ID); err != nil {
		t.Fatalf("approve compliance: %v", err)
	}

	got, err := repo.GetByID(rec.ID)
	if err != nil {
		t.Fatalf("get by id: %v", err)
	}
	if got.BlockchainStatus != models.BlockchainStatusPendingSubmission {
		t.Errorf("blockchain_status = %q, want %q", got.BlockchainStatus, models.BlockchainStatusPendingSubmission)
	}
	if got.ComplianceStatus != models.ComplianceStatusApproved {
		t.Errorf("compliance_status = %q, want %q", got.ComplianceStatus, models.ComplianceStatusApproved)
	}
}

func TestRejectComplianceTwiceIsConflict(t *testing.T) {
	repo, _ := newTestRepo(t)
	rec, _, err := repo.Create(newPendingRecord("dave", "nonce-4"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := repo.RejectCompliance(rec.ID, "first reject"); err != nil {
		t.Fatalf("first reject: %v", err)
	}

	err = repo.RejectCompliance(rec.ID, "second reject")
	if err == nil {
		t.Fatal("expected second rejection of an already-terminal row to fail")
	}
	relayErr, ok := apperrors.As(err)
	if !ok || relayErr.Kind != apperrors.KindConflict {
		t.Errorf("expected KindConflict, got %v", err)
	}
}

func TestSubmittedConfirmedLifecycle(t *testing.T) {
	repo, db := newTestRepo(t)
	rec, _, err := repo.Create(newPendingRecord("erin", "nonce-5"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	forceProcessing(t, db, rec.ID)

	if err := repo.MarkSubmitted(rec.ID, "sig123"); err != nil {
		t.Fatalf("mark submitted: %v", err)
	}
	if err := repo.MarkConfirmed(rec.ID); err != nil {
		t.Fatalf("mark confirmed: %v", err)
	}

	got, err := repo.GetByID(rec.ID)
	if err != nil {
		t.Fatalf("get by id: %v", err)
	}
	if got.BlockchainStatus != models.BlockchainStatusConfirmed {
		t.Errorf("blockchain_status = %q, want %q", got.BlockchainStatus, models.BlockchainStatusConfirmed)
	}

	if err := repo.MarkExpired(rec.ID); err == nil {
		t.Error("expected MarkExpired on an already-confirmed row to fail")
	}
}

func TestGetByBlockchainSignature(t *testing.T) {
	repo, db := newTestRepo(t)
	rec, _, err := repo.Create(newPendingRecord("frank", "nonce-6"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	forceProcessing(t, db, rec.ID)
	if err := repo.MarkSubmitted(rec.ID, "unique-sig"); err != nil {
		t.Fatalf("mark submitted: %v", err)
	}

	got, err := repo.GetByBlockchainSignature("unique-sig")
	if err != nil {
		t.Fatalf("get by signature: %v", err)
	}
	if got.ID != rec.ID {
		t.Errorf("got wrong record back for signature lookup")
	}

	if _, err := repo.GetByBlockchainSignature("no-such-sig"); err == nil {
		t.Error("expected lookup of unknown signature to fail")
	}
}

func TestListSubmittedForCrankFiltersByStaleness(t *testing.T) {
	repo, db := newTestRepo(t)
	rec, _, err := repo.Create(newPendingRecord("grace", "nonce-7"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	forceProcessing(t, db, rec.ID)
	if err := repo.MarkSubmitted(rec.ID, "sig-stale"); err != nil {
		t.Fatalf("mark submitted: %v", err)
	}

	// updated_at was just set to now by MarkSubmitted; a staleAfter of
	// 1h should not yet consider it stale.
	rows, err := repo.ListSubmittedForCrank(time.Hour, 10)
	if err != nil {
		t.Fatalf("list submitted for crank: %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("expected 0 stale rows immediately after submission, got %d", len(rows))
	}

	rows, err = repo.ListSubmittedForCrank(-time.Hour, 10)
	if err != nil {
		t.Fatalf("list submitted for crank: %v", err)
	}
	if len(rows) != 1 {
		t.Errorf("expected 1 row with a negative staleAfter window, got %d", len(rows))
	}
}
