package services

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"solrelay/internal/apperrors"
	"solrelay/internal/metrics"
	"solrelay/internal/models"
	"solrelay/internal/repository"
)

// SubmitRequest is the parsed body of a transfer intake request.
type SubmitRequest struct {
	FromAddress    string
	ToAddress      string
	Details        models.TransferDetails
	TokenMint      *string
	SignatureB58   string
	Nonce          string
	IdempotencyKey string // empty if the header was absent
}

// IntakeService implements the submission endpoint: verify, validate,
// idempotent persist, screen, and the atomic compliance transition. It
// persists before screening so a crash mid-screen still leaves an
// auditable Received row rather than losing the request.
type IntakeService struct {
	verifier  *SignatureVerifier
	gate      *ComplianceGate
	transfers repository.TransferRepository
	outbox    repository.OutboxRepository
	logger    *logrus.Logger
}

func NewIntakeService(
	verifier *SignatureVerifier,
	gate *ComplianceGate,
	transfers repository.TransferRepository,
	outbox repository.OutboxRepository,
	logger *logrus.Logger,
) *IntakeService {
	return &IntakeService{
		verifier:  verifier,
		gate:      gate,
		transfers: transfers,
		outbox:    outbox,
		logger:    logger,
	}
}

// Submit runs the full intake pipeline and returns the persisted record.
func (s *IntakeService) Submit(req SubmitRequest) (*models.TransferRecord, error) {
	probe := &models.TransferRecord{TokenMint: req.TokenMint}
	probe.SetDetails(req.Details)
	message := CanonicalMessage(req.FromAddress, req.ToAddress, probe.AmountOrConfidentialTag(), probe.MintOrSOL(), req.Nonce)

	if err := s.verifier.Verify(req.FromAddress, message, req.SignatureB58); err != nil {
		metrics.IntakeRequestsTotal.WithLabelValues("authorization_error").Inc()
		return nil, err
	}

	if err := ValidateNonce(req.Nonce); err != nil {
		metrics.IntakeRequestsTotal.WithLabelValues("validation_error").Inc()
		return nil, err
	}
	if req.IdempotencyKey != "" && req.IdempotencyKey != req.Nonce {
		metrics.IntakeRequestsTotal.WithLabelValues("validation_error").Inc()
		return nil, apperrors.New(apperrors.KindValidation, "Idempotency-Key header must equal nonce")
	}

	record := &models.TransferRecord{
		FromAddress:      req.FromAddress,
		ToAddress:        req.ToAddress,
		TokenMint:        req.TokenMint,
		Nonce:            req.Nonce,
		ClientSignature:  req.SignatureB58,
		ComplianceStatus: models.ComplianceStatusPending,
		BlockchainStatus: models.BlockchainStatusReceived,
	}
	record.SetDetails(req.Details)

	persisted, created, err := s.transfers.Create(record)
	if err != nil {
		return nil, fmt.Errorf("persist transfer record: %w", err)
	}
	if !created {
		metrics.IntakeRequestsTotal.WithLabelValues("duplicate").Inc()
		return persisted, nil
	}

	result, err := s.gate.ScreenBoth(req.FromAddress, req.ToAddress)
	if err != nil {
		return nil, fmt.Errorf("compliance screening: %w", err)
	}

	if !result.Approved {
		if err := s.transfers.RejectCompliance(persisted.ID, result.Reason); err != nil {
			return nil, fmt.Errorf("persist compliance rejection: %w", err)
		}
		if err := s.outbox.Append(persisted.ID, models.BlockchainStatusReceived, models.BlockchainStatusFailed, result.Reason); err != nil {
			s.logger.WithError(err).Warn("append outbox event for rejection")
		}
		metrics.IntakeRequestsTotal.WithLabelValues("compliance_rejected").Inc()
		persisted.ComplianceStatus = models.ComplianceStatusRejected
		persisted.BlockchainStatus = models.BlockchainStatusFailed
		persisted.ComplianceReason = result.Reason
		return persisted, nil
	}

	if err := s.transfers.ApproveCompliance(persisted.ID); err != nil {
		return nil, fmt.Errorf("persist compliance approval: %w", err)
	}
	if err := s.outbox.Append(persisted.ID, models.BlockchainStatusReceived, models.BlockchainStatusPendingSubmission, "compliance approved"); err != nil {
		s.logger.WithError(err).Warn("append outbox event for approval")
	}
	metrics.IntakeRequestsTotal.WithLabelValues("accepted").Inc()

	persisted.ComplianceStatus = models.ComplianceStatusApproved
	persisted.BlockchainStatus = models.BlockchainStatusPendingSubmission
	return persisted, nil
}
