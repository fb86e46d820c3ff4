package services

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"solrelay/internal/apperrors"
	"solrelay/internal/clients"
	"solrelay/internal/metrics"
	"solrelay/internal/models"
	"solrelay/internal/repository"
)

// SubmissionWorker claims Approved/PendingSubmission rows in batches,
// builds and submits the on-chain transaction, and applies the resulting
// state transition. Any number of worker replicas may run this loop
// concurrently: correctness depends entirely on the atomic claim in
// TransferRepository.ClaimBatch.
type SubmissionWorker struct {
	transfers    repository.TransferRepository
	outbox       repository.OutboxRepository
	chain        clients.ChainProvider
	issuer       *clients.IssuerKey
	logger       *logrus.Logger
	pollInterval time.Duration
	batchSize    int
	retryBase    time.Duration
	retryCap     time.Duration
	tipLamports  uint64
	stopCh       chan struct{}
	doneCh       chan struct{}
}

func NewSubmissionWorker(
	transfers repository.TransferRepository,
	outbox repository.OutboxRepository,
	chain clients.ChainProvider,
	issuer *clients.IssuerKey,
	logger *logrus.Logger,
	pollInterval time.Duration,
	batchSize int,
	retryBase, retryCap time.Duration,
	tipLamports uint64,
) *SubmissionWorker {
	return &SubmissionWorker{
		transfers:    transfers,
		outbox:       outbox,
		chain:        chain,
		issuer:       issuer,
		logger:       logger,
		pollInterval: pollInterval,
		batchSize:    batchSize,
		retryBase:    retryBase,
		retryCap:     retryCap,
		tipLamports:  tipLamports,
		stopCh:       make(chan struct{}),
		doneCh:       make(chan struct{}),
	}
}

// Start runs the poll loop in its own goroutine until Stop is called.
// On shutdown the worker finishes whatever record it is currently
// processing before exiting; no in-flight claim is abandoned silently.
func (w *SubmissionWorker) Start() {
	go w.loop()
}

func (w *SubmissionWorker) Stop() {
	close(w.stopCh)
	<-w.doneCh
}

func (w *SubmissionWorker) loop() {
	defer close(w.doneCh)
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.runOnce()
		case <-w.stopCh:
			w.logger.Info("submission worker stopping")
			return
		}
	}
}

func (w *SubmissionWorker) runOnce() {
	start := time.Now()
	claimed, err := w.transfers.ClaimBatch(w.batchSize)
	metrics.ClaimLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		w.logger.WithError(err).Error("claim batch failed")
		return
	}
	metrics.ClaimBatchSize.Observe(float64(len(claimed)))
	if len(claimed) == 0 {
		return
	}

	for i := range claimed {
		w.process(&claimed[i])
	}
}

// process handles a single claimed record: fetch blockhash, build/sign/
// serialize, persist the pre-submission signature, submit, and apply the
// resulting transition. It never holds a row lock across any of these
// network calls; the claim's own transaction was the only place that did.
func (w *SubmissionWorker) process(record *models.TransferRecord) {
	ctx := context.Background()

	if record.LastErrorType == models.LastErrorTypeJitoStateUnknown && record.OriginalTxSignature != nil {
		if resolved := w.resolveAmbiguousPriorSubmission(ctx, record); resolved {
			return
		}
	}

	blockhash, err := w.chain.GetLatestBlockhash(ctx)
	if err != nil {
		w.scheduleRetry(record, models.LastErrorTypeNetworkError, fmt.Sprintf("fetch blockhash: %v", err))
		return
	}

	var tipAccount *string
	if qn, ok := w.chain.(*clients.QuickNodeProvider); ok {
		pub, err := qn.TipAccount()
		if err == nil {
			s := pub.String()
			tipAccount = &s
		}
	}

	serialized, err := w.build(record, blockhash, tipAccount)
	if err != nil {
		// A build failure is a validation error, not transient: the
		// request itself cannot be repaired by retrying.
		w.terminalFail(record, models.LastErrorTypeValidationError, fmt.Sprintf("build transaction: %v", err))
		return
	}

	originalSig, err := clients.DeterministicSignature(serialized)
	if err != nil {
		w.terminalFail(record, models.LastErrorTypeValidationError, fmt.Sprintf("compute deterministic signature: %v", err))
		return
	}
	if err := w.transfers.SetOriginalTxSignature(record.ID, originalSig, blockhash); err != nil {
		w.logger.WithError(err).WithField("transfer_id", record.ID).Warn("persist original tx signature")
	}

	result, err := w.chain.SubmitTransaction(ctx, serialized)
	if err != nil {
		w.handleSubmitError(record, err)
		return
	}
	if result.Ambiguous {
		w.scheduleRetry(record, models.LastErrorTypeJitoStateUnknown, "bundle submission returned ambiguous state")
		return
	}

	if err := w.transfers.MarkSubmitted(record.ID, result.Signature); err != nil {
		w.logger.WithError(err).WithField("transfer_id", record.ID).Error("mark submitted")
		return
	}
	w.appendOutbox(record.ID, models.BlockchainStatusProcessing, models.BlockchainStatusSubmitted, "blockchain signature: "+result.Signature)
	metrics.SubmissionOutcomes.WithLabelValues("submitted").Inc()
}

func (w *SubmissionWorker) build(record *models.TransferRecord, blockhash string, tipAccount *string) ([]byte, error) {
	var tipPub *solana.PublicKey
	if tipAccount != nil {
		pk, err := solana.PublicKeyFromBase58(*tipAccount)
		if err != nil {
			return nil, fmt.Errorf("parse tip account: %w", err)
		}
		tipPub = &pk
	}

	return clients.BuildAndSignTransfer(w.issuer, blockhash, record.FromAddress, record.ToAddress, record.Details(), tipPub, w.tipLamports)
}

func (w *SubmissionWorker) handleSubmitError(record *models.TransferRecord, err error) {
	relayErr, ok := apperrors.As(err)
	if !ok {
		w.scheduleRetry(record, models.LastErrorTypeNetworkError, err.Error())
		return
	}

	switch relayErr.Kind {
	case apperrors.KindBlockchainFatal:
		w.terminalFail(record, models.LastErrorTypeTransactionFailed, relayErr.Message)
	case apperrors.KindBlockchainTransient:
		w.scheduleRetry(record, models.LastErrorTypeJitoBundleFailed, relayErr.Message)
	default:
		w.scheduleRetry(record, models.LastErrorTypeNetworkError, relayErr.Message)
	}
}

// resolveAmbiguousPriorSubmission implements the double-spend-safe check
// required before rebuilding a transaction when the prior attempt left
// the chain state unknown (ambiguous bundle result). It returns true if
// it fully resolved the record's fate (no further processing needed this
// cycle).
func (w *SubmissionWorker) resolveAmbiguousPriorSubmission(ctx context.Context, record *models.TransferRecord) bool {
	status, err := w.chain.GetSignatureStatus(ctx, *record.OriginalTxSignature)
	if err != nil {
		// Fail-open-for-safety: defer the decision, don't resubmit,
		// don't terminate.
		w.logger.WithError(err).WithField("transfer_id", record.ID).Warn("signature status check errored, deferring")
		w.scheduleRetry(record, models.LastErrorTypeJitoStateUnknown, "prior submission status check errored, deferring")
		return true
	}

	switch status {
	case clients.SignatureStatusFinalized:
		// The prior submission landed: record it as Submitted first so
		// the Submitted -> Confirmed transition is legal.
		if err := w.transfers.MarkSubmitted(record.ID, *record.OriginalTxSignature); err != nil {
			w.logger.WithError(err).WithField("transfer_id", record.ID).Error("mark submitted from ambiguous resolution")
			return true
		}
		w.appendOutbox(record.ID, models.BlockchainStatusProcessing, models.BlockchainStatusSubmitted, "blockchain signature: "+*record.OriginalTxSignature)
		if err := w.transfers.MarkConfirmed(record.ID); err != nil {
			w.logger.WithError(err).WithField("transfer_id", record.ID).Error("mark confirmed from ambiguous resolution")
		} else {
			w.appendOutbox(record.ID, models.BlockchainStatusSubmitted, models.BlockchainStatusConfirmed, "resolved ambiguous prior submission as finalized")
		}
		return true
	case clients.SignatureStatusFailed:
		// On-chain failure: safe to retry with a new blockhash.
		return false
	case clients.SignatureStatusNotFound:
		valid, err := w.chain.IsBlockhashValid(ctx, *record.BlockhashUsed)
		if err != nil {
			w.logger.WithError(err).WithField("transfer_id", record.ID).Warn("blockhash validity check errored, deferring")
			w.scheduleRetry(record, models.LastErrorTypeJitoStateUnknown, "blockhash validity check errored, deferring")
			return true
		}
		if valid {
			// Not found and blockhash still valid: it may yet land.
			// Do not resubmit, reschedule for the next tick.
			w.scheduleRetry(record, models.LastErrorTypeJitoStateUnknown, "prior submission not found, blockhash still valid")
			return true
		}
		// Not found and blockhash expired: safe to retry with a new one.
		return false
	}
	return true
}

func (w *SubmissionWorker) scheduleRetry(record *models.TransferRecord, errType models.LastErrorType, errMsg string) {
	next := backoffWithJitter(w.retryBase, w.retryCap, record.RetryCount)
	if err := w.transfers.ScheduleRetry(record.ID, errType, errMsg, time.Now().Add(next)); err != nil {
		w.logger.WithError(err).WithField("transfer_id", record.ID).Error("schedule retry")
		return
	}
	metrics.RetryCount.WithLabelValues(string(errType)).Inc()
	outcome := "retried"
	to := models.BlockchainStatusPendingSubmission
	if record.RetryCount+1 >= models.MaxRetries {
		outcome = "exhausted"
		to = models.BlockchainStatusFailed
	}
	w.appendOutbox(record.ID, models.BlockchainStatusProcessing, to, errMsg)
	metrics.SubmissionOutcomes.WithLabelValues(outcome).Inc()
}

func (w *SubmissionWorker) terminalFail(record *models.TransferRecord, errType models.LastErrorType, errMsg string) {
	if err := w.transfers.MarkFailedTerminal(record.ID, errType, errMsg); err != nil {
		w.logger.WithError(err).WithField("transfer_id", record.ID).Error("mark terminal failure")
		return
	}
	w.appendOutbox(record.ID, models.BlockchainStatusProcessing, models.BlockchainStatusFailed, errMsg)
	metrics.SubmissionOutcomes.WithLabelValues("failed").Inc()
}

// appendOutbox writes an audit row for a completed transition. A failure
// to append is logged but never rolls back the transition itself: the
// transition already committed and is the source of truth.
func (w *SubmissionWorker) appendOutbox(id uuid.UUID, from, to models.BlockchainStatus, reason string) {
	if err := w.outbox.Append(id, from, to, reason); err != nil {
		w.logger.WithError(err).WithField("transfer_id", id).Warn("append outbox event")
	}
}

// backoffWithJitter computes the next retry delay as base * 2^retryCount,
// capped, with +/-30% jitter applied.
func backoffWithJitter(base, cap time.Duration, retryCount int) time.Duration {
	exp := base
	for i := 0; i < retryCount && exp < cap; i++ {
		exp *= 2
	}
	if exp > cap {
		exp = cap
	}

	jitterFactor := 0.7 + rand.Float64()*0.6 // [0.7, 1.3)
	return time.Duration(float64(exp) * jitterFactor)
}

// ResetStuckProcessing wraps TransferRepository.ResetStuckProcessing: rows
// sitting in Processing past threshold (worker crashed mid-claim) are
// reset to PendingSubmission so a live replica can pick them back up.
func ResetStuckProcessing(transfers repository.TransferRepository, threshold time.Duration) (int64, error) {
	n, err := transfers.ResetStuckProcessing(threshold)
	if err != nil {
		return 0, fmt.Errorf("reset stuck processing rows: %w", err)
	}
	return n, nil
}
