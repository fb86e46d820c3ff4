// Package repository holds the gorm-backed stores for every aggregate.
// Every mutating method on TransferRepository enforces the legal
// transition table so an illegal BlockchainStatus move is rejected at the
// store boundary rather than trusted to callers.
package repository

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"solrelay/internal/apperrors"
	"solrelay/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type TransferRepository interface {
	// Create inserts a new record. If a row already exists for
	// (from_address, nonce), the existing row is returned instead and
	// created reports false.
	Create(record *models.TransferRecord) (existing *models.TransferRecord, created bool, err error)
	GetByID(id uuid.UUID) (*models.TransferRecord, error)
	GetByFromAddressAndNonce(fromAddress, nonce string) (*models.TransferRecord, error)
	GetByBlockchainSignature(sig string) (*models.TransferRecord, error)

	// ApproveCompliance performs the Received -> PendingSubmission
	// transition, recording the compliance approval atomically.
	ApproveCompliance(id uuid.UUID) error
	// RejectCompliance performs the Received -> Failed transition,
	// persisting (compliance_status=Rejected, blockchain_status=Failed)
	// atomically as required by invariant 7.
	RejectCompliance(id uuid.UUID, reason string) error

	// ClaimBatch selects up to limit rows eligible for submission and
	// marks them Processing inside one transaction, locking them with
	// SELECT ... FOR UPDATE SKIP LOCKED so concurrent worker replicas
	// never double-claim a row. It issues three statements (select,
	// update, reload), not a single round trip.
	ClaimBatch(limit int) ([]models.TransferRecord, error)

	// MarkSubmitted performs the Processing -> Submitted transition.
	MarkSubmitted(id uuid.UUID, blockchainSignature string) error
	// SetOriginalTxSignature persists the pre-submission deterministic
	// signature and blockhash if not already set. Immutable once set.
	SetOriginalTxSignature(id uuid.UUID, originalTxSig, blockhashUsed string) error
	// ScheduleRetry performs the Processing -> PendingSubmission
	// transition and increments retry_count with the supplied backoff.
	ScheduleRetry(id uuid.UUID, errType models.LastErrorType, errMsg string, nextRetryAt time.Time) error
	// MarkFailedTerminal performs a transition to the terminal Failed
	// state (from Processing when retries exhaust or validation fails,
	// or from Submitted when the crank/webhook observes a chain failure).
	MarkFailedTerminal(id uuid.UUID, errType models.LastErrorType, errMsg string) error
	// MarkConfirmed performs the Submitted -> Confirmed transition.
	MarkConfirmed(id uuid.UUID) error
	// MarkExpired performs the Submitted -> Expired transition.
	MarkExpired(id uuid.UUID) error

	// ResetStuckProcessing resets rows that have sat in Processing past
	// threshold back to PendingSubmission, for the operator recovery tool.
	ResetStuckProcessing(threshold time.Duration) (int64, error)
	// ListSubmittedForCrank returns Submitted rows whose updated_at
	// is older than staleAfter, for the reconciliation crank to poll.
	ListSubmittedForCrank(staleAfter time.Duration, limit int) ([]models.TransferRecord, error)
}

type transferRepository struct {
	db *gorm.DB
}

func NewTransferRepository(db *gorm.DB) TransferRepository {
	return &transferRepository{db: db}
}

func (r *transferRepository) Create(record *models.TransferRecord) (*models.TransferRecord, bool, error) {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	now := time.Now()
	record.CreatedAt = now
	record.UpdatedAt = now

	err := r.db.Create(record).Error
	if err == nil {
		return record, true, nil
	}

	if isUniqueViolation(err) {
		existing, getErr := r.GetByFromAddressAndNonce(record.FromAddress, record.Nonce)
		if getErr != nil {
			return nil, false, fmt.Errorf("lookup existing after unique violation: %w", getErr)
		}
		return existing, false, nil
	}

	return nil, false, fmt.Errorf("create transfer record: %w", err)
}

func (r *transferRepository) GetByID(id uuid.UUID) (*models.TransferRecord, error) {
	var rec models.TransferRecord
	if err := r.db.Where("id = ?", id).First(&rec).Error; err != nil {
		return nil, fmt.Errorf("get transfer record by id: %w", err)
	}
	return &rec, nil
}

func (r *transferRepository) GetByFromAddressAndNonce(fromAddress, nonce string) (*models.TransferRecord, error) {
	var rec models.TransferRecord
	if err := r.db.Where("from_address = ? AND nonce = ?", fromAddress, nonce).First(&rec).Error; err != nil {
		return nil, fmt.Errorf("get transfer record by from_address/nonce: %w", err)
	}
	return &rec, nil
}

func (r *transferRepository) GetByBlockchainSignature(sig string) (*models.TransferRecord, error) {
	var rec models.TransferRecord
	if err := r.db.Where("blockchain_signature = ?", sig).First(&rec).Error; err != nil {
		return nil, fmt.Errorf("get transfer record by blockchain_signature: %w", err)
	}
	return &rec, nil
}

// transition performs a conditional UPDATE predicated on the record still
// being in fromStatus, following the same
// "WHERE id = ? AND status NOT IN (terminal)"-style optimistic locking the
// withdraw-request store uses, generalized here to the explicit legal
// transition table. Zero rows affected means either the row was already
// moved by a concurrent actor or the transition is illegal; both are
// reported as a Conflict so callers never assume success blindly.
func (r *transferRepository) transition(id uuid.UUID, from, to models.BlockchainStatus, updates map[string]interface{}) error {
	if !models.IsLegalTransition(from, to) {
		return apperrors.New(apperrors.KindConflict, fmt.Sprintf("illegal transition %s -> %s", from, to))
	}

	updates["blockchain_status"] = to
	updates["updated_at"] = time.Now()

	result := r.db.Model(&models.TransferRecord{}).
		Where("id = ? AND blockchain_status = ?", id, from).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("apply transition %s -> %s: %w", from, to, result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.New(apperrors.KindConflict, fmt.Sprintf("transfer %s not in expected state %s", id, from))
	}
	return nil
}

func (r *transferRepository) ApproveCompliance(id uuid.UUID) error {
	return r.transition(id, models.BlockchainStatusReceived, models.BlockchainStatusPendingSubmission, map[string]interface{}{
		"compliance_status": models.ComplianceStatusApproved,
	})
}

func (r *transferRepository) RejectCompliance(id uuid.UUID, reason string) error {
	return r.transition(id, models.BlockchainStatusReceived, models.BlockchainStatusFailed, map[string]interface{}{
		"compliance_status":  models.ComplianceStatusRejected,
		"compliance_reason":  reason,
		"last_error_type":    models.LastErrorTypeValidationError,
		"last_error_message": reason,
	})
}

// ClaimBatch implements the atomic claim described for the submission
// worker as one transaction: a SELECT locks up to limit eligible rows
// with FOR UPDATE SKIP LOCKED, a separate UPDATE flips them to
// Processing, and a final SELECT reloads them. The row locks are held
// until commit, so no two replicas can ever own the same row; the claim
// takes three round trips rather than one UPDATE ... RETURNING statement.
func (r *transferRepository) ClaimBatch(limit int) ([]models.TransferRecord, error) {
	var claimed []models.TransferRecord

	err := r.db.Transaction(func(tx *gorm.DB) error {
		var ids []uuid.UUID
		err := tx.Raw(`
			SELECT id FROM transfer_records
			WHERE blockchain_status = ?
			  AND compliance_status = ?
			  AND retry_count < ?
			  AND (next_retry_at IS NULL OR next_retry_at <= ?)
			ORDER BY next_retry_at ASC NULLS FIRST, created_at ASC
			LIMIT ?
			FOR UPDATE SKIP LOCKED
		`, models.BlockchainStatusPendingSubmission, models.ComplianceStatusApproved, models.MaxRetries, time.Now(), limit).
			Scan(&ids).Error
		if err != nil {
			return fmt.Errorf("select claimable rows: %w", err)
		}
		if len(ids) == 0 {
			return nil
		}

		if err := tx.Model(&models.TransferRecord{}).
			Where("id IN ?", ids).
			Updates(map[string]interface{}{
				"blockchain_status": models.BlockchainStatusProcessing,
				"updated_at":        time.Now(),
			}).Error; err != nil {
			return fmt.Errorf("mark claimed rows processing: %w", err)
		}

		if err := tx.Where("id IN ?", ids).Find(&claimed).Error; err != nil {
			return fmt.Errorf("reload claimed rows: %w", err)
		}
		return nil
	})

	if err != nil {
		return nil, err
	}
	return claimed, nil
}

func (r *transferRepository) MarkSubmitted(id uuid.UUID, blockchainSignature string) error {
	return r.transition(id, models.BlockchainStatusProcessing, models.BlockchainStatusSubmitted, map[string]interface{}{
		"blockchain_signature": blockchainSignature,
	})
}

func (r *transferRepository) SetOriginalTxSignature(id uuid.UUID, originalTxSig, blockhashUsed string) error {
	result := r.db.Model(&models.TransferRecord{}).
		Where("id = ? AND original_tx_signature IS NULL", id).
		Updates(map[string]interface{}{
			"original_tx_signature": originalTxSig,
			"blockhash_used":        blockhashUsed,
			"updated_at":            time.Now(),
		})
	if result.Error != nil {
		return fmt.Errorf("set original tx signature: %w", result.Error)
	}
	return nil
}

func (r *transferRepository) ScheduleRetry(id uuid.UUID, errType models.LastErrorType, errMsg string, nextRetryAt time.Time) error {
	err := r.db.Transaction(func(tx *gorm.DB) error {
		var rec models.TransferRecord
		if err := tx.Where("id = ?", id).First(&rec).Error; err != nil {
			return fmt.Errorf("load record for retry scheduling: %w", err)
		}

		newRetryCount := rec.RetryCount + 1
		if newRetryCount >= models.MaxRetries {
			if !models.IsLegalTransition(models.BlockchainStatusProcessing, models.BlockchainStatusFailed) {
				return apperrors.New(apperrors.KindConflict, "illegal transition to failed")
			}
			return tx.Model(&models.TransferRecord{}).
				Where("id = ? AND blockchain_status = ?", id, models.BlockchainStatusProcessing).
				Updates(map[string]interface{}{
					"blockchain_status":  models.BlockchainStatusFailed,
					"retry_count":        newRetryCount,
					"last_error_type":    errType,
					"last_error_message": errMsg,
					"updated_at":         time.Now(),
				}).Error
		}

		if !models.IsLegalTransition(models.BlockchainStatusProcessing, models.BlockchainStatusPendingSubmission) {
			return apperrors.New(apperrors.KindConflict, "illegal transition to pending_submission")
		}
		return tx.Model(&models.TransferRecord{}).
			Where("id = ? AND blockchain_status = ?", id, models.BlockchainStatusProcessing).
			Updates(map[string]interface{}{
				"blockchain_status":  models.BlockchainStatusPendingSubmission,
				"retry_count":        newRetryCount,
				"next_retry_at":      nextRetryAt,
				"last_error_type":    errType,
				"last_error_message": errMsg,
				"updated_at":         time.Now(),
			}).Error
	})
	if err != nil {
		return fmt.Errorf("schedule retry: %w", err)
	}
	return nil
}

func (r *transferRepository) MarkFailedTerminal(id uuid.UUID, errType models.LastErrorType, errMsg string) error {
	var rec models.TransferRecord
	if err := r.db.Where("id = ?", id).First(&rec).Error; err != nil {
		return fmt.Errorf("load record for terminal failure: %w", err)
	}
	return r.transition(id, rec.BlockchainStatus, models.BlockchainStatusFailed, map[string]interface{}{
		"last_error_type":    errType,
		"last_error_message": errMsg,
	})
}

func (r *transferRepository) MarkConfirmed(id uuid.UUID) error {
	return r.transition(id, models.BlockchainStatusSubmitted, models.BlockchainStatusConfirmed, map[string]interface{}{})
}

func (r *transferRepository) MarkExpired(id uuid.UUID) error {
	return r.transition(id, models.BlockchainStatusSubmitted, models.BlockchainStatusExpired, map[string]interface{}{})
}

func (r *transferRepository) ResetStuckProcessing(threshold time.Duration) (int64, error) {
	cutoff := time.Now().Add(-threshold)
	result := r.db.Model(&models.TransferRecord{}).
		Where("blockchain_status = ? AND updated_at < ?", models.BlockchainStatusProcessing, cutoff).
		Updates(map[string]interface{}{
			"blockchain_status": models.BlockchainStatusPendingSubmission,
			"updated_at":        time.Now(),
		})
	if result.Error != nil {
		return 0, fmt.Errorf("reset stuck processing rows: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func (r *transferRepository) ListSubmittedForCrank(staleAfter time.Duration, limit int) ([]models.TransferRecord, error) {
	cutoff := time.Now().Add(-staleAfter)
	var rows []models.TransferRecord
	err := r.db.Where("blockchain_status = ? AND updated_at < ?", models.BlockchainStatusSubmitted, cutoff).
		Order("updated_at ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list submitted rows for crank: %w", err)
	}
	return rows, nil
}

func isUniqueViolation(err error) bool {
	if err == nil || errors.Is(err, gorm.ErrRecordNotFound) {
		return false
	}
	// postgres unique_violation SQLSTATE is 23505; gorm's postgres driver
	// surfaces it via the underlying pgconn.PgError, but depending on the
	// pooled driver wrapping error text match is the portable check. The
	// sqlite text is matched too since the test suite runs this path
	// against an in-memory sqlite database.
	msg := err.Error()
	return strings.Contains(msg, "duplicate key value violates unique constraint") ||
		strings.Contains(msg, "23505") ||
		strings.Contains(msg, "UNIQUE constraint failed")
}
