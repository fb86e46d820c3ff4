package services

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"solrelay/internal/clients"
	"solrelay/internal/models"
	"solrelay/internal/repository"
)

// fakeChainProvider returns a fixed signature status and blockhash
// validity, set by the test, and counts how many times each method ran.
type fakeChainProvider struct {
	status        clients.SignatureStatus
	blockhashOK   bool
	statusCalls   int
	blockhashCall int
}

func (f *fakeChainProvider) GetLatestBlockhash(ctx context.Context) (string, error) {
	return "blockhash", nil
}

func (f *fakeChainProvider) IsBlockhashValid(ctx context.Context, blockhash string) (bool, error) {
	f.blockhashCall++
	return f.blockhashOK, nil
}

func (f *fakeChainProvider) SubmitTransaction(ctx context.Context, serialized []byte) (*clients.SubmitResult, error) {
	return nil, nil
}

func (f *fakeChainProvider) GetSignatureStatus(ctx context.Context, signature string) (clients.SignatureStatus, error) {
	f.statusCalls++
	return f.status, nil
}

// crankTestSetup bundles a ReconciliationCrank wired against a real
// sqlite-backed repository and a fake chain provider. staleAfter is
// negative so every Submitted row qualifies regardless of its updated_at,
// since production staleness is TransferRepository's concern, already
// covered by transfer_repository_test.go.
func crankTestSetup(t *testing.T) (*ReconciliationCrank, repository.TransferRepository, *gorm.DB, *fakeChainProvider) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&models.TransferRecord{}, &models.OutboxEvent{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}

	transfers := repository.NewTransferRepository(db)
	outbox := repository.NewOutboxRepository(db, nil, "")
	chain := &fakeChainProvider{}
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	crank := NewReconciliationCrank(transfers, outbox, chain, logger, time.Hour, -time.Hour, time.Hour, 10)
	return crank, transfers, db, chain
}

// submittedRow creates a record and forces it directly into the Submitted
// state with a signature and blockhash, bypassing ClaimBatch/MarkSubmitted
// (MarkSubmitted's state-machine check is exercised separately in
// transfer_repository_test.go; ClaimBatch's postgres-only SQL is not run
// against sqlite) since the crank only cares about what happens once a
// row is already Submitted.
func submittedRow(t *testing.T, transfers repository.TransferRepository, db *gorm.DB, nonce, sig, blockhash string) *models.TransferRecord {
	t.Helper()
	rec := &models.TransferRecord{
		FromAddress:      "alice",
		ToAddress:        "bob",
		Nonce:            nonce,
		ClientSignature:  "clientsig",
		ComplianceStatus: models.ComplianceStatusApproved,
		BlockchainStatus: models.BlockchainStatusReceived,
	}
	rec.SetDetails(models.TransferDetails{Kind: models.TransferKindPublic, Amount: 1})
	persisted, _, err := transfers.Create(rec)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := db.Model(&models.TransferRecord{}).Where("id = ?", persisted.ID.String()).Updates(map[string]interface{}{
		"blockchain_status":    models.BlockchainStatusSubmitted,
		"blockchain_signature": sig,
		"blockhash_used":       blockhash,
	}).Error; err != nil {
		t.Fatalf("force submitted: %v", err)
	}

	got, err := transfers.GetByID(persisted.ID)
	if err != nil {
		t.Fatalf("get by id: %v", err)
	}
	return got
}

func TestCrankConfirmsFinalizedSubmission(t *testing.T) {
	crank, transfers, db, chain := crankTestSetup(t)
	rec := submittedRow(t, transfers, db, "nonce-a", "sig-a", "hash-a")
	chain.status = clients.SignatureStatusFinalized

	crank.runOnce()

	got, err := transfers.GetByID(rec.ID)
	if err != nil {
		t.Fatalf("get by id: %v", err)
	}
	if got.BlockchainStatus != models.BlockchainStatusConfirmed {
		t.Errorf("blockchain_status = %q, want confirmed", got.BlockchainStatus)
	}
	if chain.statusCalls != 1 {
		t.Errorf("expected 1 signature status call, got %d", chain.statusCalls)
	}
}

// TestCrankRunTwiceIsIdempotent covers the run-twice-on-the-same-row
// property: a second runOnce after a record has already resolved to a
// terminal state must not re-confirm it or double-count the resolution.
func TestCrankRunTwiceIsIdempotent(t *testing.T) {
	crank, transfers, db, chain := crankTestSetup(t)
	rec := submittedRow(t, transfers, db, "nonce-b", "sig-b", "hash-b")
	chain.status = clients.SignatureStatusFinalized

	crank.runOnce()
	crank.runOnce()

	got, err := transfers.GetByID(rec.ID)
	if err != nil {
		t.Fatalf("get by id: %v", err)
	}
	if got.BlockchainStatus != models.BlockchainStatusConfirmed {
		t.Errorf("blockchain_status = %q, want confirmed", got.BlockchainStatus)
	}

	// The second run's ListSubmittedForCrank query must not have found
	// the already-confirmed row at all.
	if chain.statusCalls != 1 {
		t.Errorf("expected exactly 1 signature status call across two runs, got %d", chain.statusCalls)
	}
}

func TestCrankMarksFailedOnChainFailure(t *testing.T) {
	crank, transfers, db, chain := crankTestSetup(t)
	rec := submittedRow(t, transfers, db, "nonce-c", "sig-c", "hash-c")
	chain.status = clients.SignatureStatusFailed

	crank.runOnce()

	got, err := transfers.GetByID(rec.ID)
	if err != nil {
		t.Fatalf("get by id: %v", err)
	}
	if got.BlockchainStatus != models.BlockchainStatusFailed {
		t.Errorf("blockchain_status = %q, want failed", got.BlockchainStatus)
	}
}

func TestCrankExpiresOnInvalidBlockhashNotFound(t *testing.T) {
	crank, transfers, db, chain := crankTestSetup(t)
	rec := submittedRow(t, transfers, db, "nonce-d", "sig-d", "hash-d")
	chain.status = clients.SignatureStatusNotFound
	chain.blockhashOK = false

	crank.runOnce()

	got, err := transfers.GetByID(rec.ID)
	if err != nil {
		t.Fatalf("get by id: %v", err)
	}
	if got.BlockchainStatus != models.BlockchainStatusExpired {
		t.Errorf("blockchain_status = %q, want expired", got.BlockchainStatus)
	}
}

func TestCrankLeavesRowUntouchedWhileBlockhashStillValid(t *testing.T) {
	crank, transfers, db, chain := crankTestSetup(t)
	rec := submittedRow(t, transfers, db, "nonce-e", "sig-e", "hash-e")
	chain.status = clients.SignatureStatusNotFound
	chain.blockhashOK = true

	crank.runOnce()

	got, err := transfers.GetByID(rec.ID)
	if err != nil {
		t.Fatalf("get by id: %v", err)
	}
	if got.BlockchainStatus != models.BlockchainStatusSubmitted {
		t.Errorf("blockchain_status = %q, want it to remain submitted while the blockhash is still valid", got.BlockchainStatus)
	}
}
