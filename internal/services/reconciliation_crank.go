package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"solrelay/internal/clients"
	"solrelay/internal/metrics"
	"solrelay/internal/models"
	"solrelay/internal/repository"
)

// ReconciliationCrank periodically re-checks Submitted rows that have
// gone stale and resolves them to a terminal state. It is idempotent:
// running it twice never re-confirms or double-counts a record, since
// every mutation goes through the same state-machine-enforced repository
// transitions the submission worker uses.
type ReconciliationCrank struct {
	transfers         repository.TransferRepository
	outbox            repository.OutboxRepository
	chain             clients.ChainProvider
	logger            *logrus.Logger
	interval          time.Duration
	staleAfter        time.Duration
	blockhashValidity time.Duration
	batchSize         int
	stopCh            chan struct{}
	doneCh            chan struct{}
}

func NewReconciliationCrank(
	transfers repository.TransferRepository,
	outbox repository.OutboxRepository,
	chain clients.ChainProvider,
	logger *logrus.Logger,
	interval, staleAfter, blockhashValidity time.Duration,
	batchSize int,
) *ReconciliationCrank {
	return &ReconciliationCrank{
		transfers:         transfers,
		outbox:            outbox,
		chain:             chain,
		logger:            logger,
		interval:          interval,
		staleAfter:        staleAfter,
		blockhashValidity: blockhashValidity,
		batchSize:         batchSize,
		stopCh:            make(chan struct{}),
		doneCh:            make(chan struct{}),
	}
}

func (c *ReconciliationCrank) Start() {
	go c.loop()
}

func (c *ReconciliationCrank) Stop() {
	close(c.stopCh)
	<-c.doneCh
}

func (c *ReconciliationCrank) loop() {
	defer close(c.doneCh)

	c.runOnce()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.runOnce()
		case <-c.stopCh:
			c.logger.Info("reconciliation crank stopping")
			return
		}
	}
}

func (c *ReconciliationCrank) runOnce() {
	metrics.CrankRunsTotal.Inc()

	rows, err := c.transfers.ListSubmittedForCrank(c.staleAfter, c.batchSize)
	if err != nil {
		c.logger.WithError(err).Error("list submitted rows for crank")
		return
	}

	ctx := context.Background()
	for i := range rows {
		c.resolve(ctx, &rows[i])
	}
}

func (c *ReconciliationCrank) resolve(ctx context.Context, record *models.TransferRecord) {
	if record.BlockchainSignature == nil {
		c.logger.WithField("transfer_id", record.ID).Warn("submitted row has no blockchain signature, skipping")
		return
	}

	status, err := c.chain.GetSignatureStatus(ctx, *record.BlockchainSignature)
	if err != nil {
		// Status RPC errors leave the row untouched; the next tick
		// retries.
		c.logger.WithError(err).WithField("transfer_id", record.ID).Warn("signature status check errored")
		return
	}

	switch status {
	case clients.SignatureStatusFinalized:
		if err := c.transfers.MarkConfirmed(record.ID); err != nil {
			c.logger.WithError(err).WithField("transfer_id", record.ID).Error("mark confirmed")
			return
		}
		c.appendOutbox(record.ID, models.BlockchainStatusSubmitted, models.BlockchainStatusConfirmed, "crank observed finalized status")
		metrics.CrankResolutions.WithLabelValues("confirmed").Inc()

	case clients.SignatureStatusFailed:
		if err := c.transfers.MarkFailedTerminal(record.ID, models.LastErrorTypeTransactionFailed, "chain reported transaction failure"); err != nil {
			c.logger.WithError(err).WithField("transfer_id", record.ID).Error("mark failed")
			return
		}
		c.appendOutbox(record.ID, models.BlockchainStatusSubmitted, models.BlockchainStatusFailed, "chain reported transaction failure")
		metrics.CrankResolutions.WithLabelValues("failed").Inc()

	case clients.SignatureStatusNotFound:
		c.resolveNotFound(ctx, record)
	}
}

func (c *ReconciliationCrank) resolveNotFound(ctx context.Context, record *models.TransferRecord) {
	if record.BlockhashUsed == nil {
		return
	}
	valid, err := c.chain.IsBlockhashValid(ctx, *record.BlockhashUsed)
	if err != nil {
		c.logger.WithError(err).WithField("transfer_id", record.ID).Warn("blockhash validity check errored")
		return
	}
	if valid {
		// Still within its validity window: leave untouched, try next
		// tick.
		return
	}

	// Blockhash expired and the transaction never landed: terminal,
	// client must re-sign a new request with a fresh nonce.
	if err := c.transfers.MarkExpired(record.ID); err != nil {
		c.logger.WithError(err).WithField("transfer_id", record.ID).Error("mark expired")
		return
	}
	c.appendOutbox(record.ID, models.BlockchainStatusSubmitted, models.BlockchainStatusExpired, "blockhash expired before transaction landed")
	metrics.CrankResolutions.WithLabelValues("expired").Inc()
}

// appendOutbox writes an audit row for a completed transition. A failure
// to append is logged but never rolls back the transition itself: the
// transition already committed and is the source of truth.
func (c *ReconciliationCrank) appendOutbox(id uuid.UUID, from, to models.BlockchainStatus, reason string) {
	if err := c.outbox.Append(id, from, to, reason); err != nil {
		c.logger.WithError(err).WithField("transfer_id", id).Warn("append outbox event")
	}
}
