package services

import (
	"crypto/subtle"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"solrelay/internal/apperrors"
	"solrelay/internal/config"
	"solrelay/internal/metrics"
	"solrelay/internal/models"
	"solrelay/internal/repository"
)

// WebhookEvent is the provider-agnostic shape extracted from an inbound
// webhook delivery before it is applied to a TransferRecord.
type WebhookEvent struct {
	Provider  string
	Signature string
	Failed    bool
	ChainErr  string
}

// WebhookIngestor applies provider push notifications. It is idempotent:
// a delivery for a record that is no longer Submitted is skipped as a
// no-op before any write, and every transition it does apply goes through
// the repository's legal-transition enforcement, so a duplicate delivery
// is never double-counted.
type WebhookIngestor struct {
	transfers repository.TransferRepository
	outbox    repository.OutboxRepository
	logger    *logrus.Logger
	secret    string
	authMode  config.WebhookAuthMode
}

func NewWebhookIngestor(transfers repository.TransferRepository, outbox repository.OutboxRepository, logger *logrus.Logger, secret string, authMode config.WebhookAuthMode) *WebhookIngestor {
	return &WebhookIngestor{transfers: transfers, outbox: outbox, logger: logger, secret: secret, authMode: authMode}
}

// Authenticate checks the pre-shared header against the configured
// secret using constant-time exact byte equality. In strict mode (the
// default, modeled on the Helius-style provider) a mismatch is rejected.
// In lenient mode (opt-in, modeled on the QuickNode-style provider) a
// mismatch is only logged; the event is still processed.
func (w *WebhookIngestor) Authenticate(providedSecret string) error {
	match := subtle.ConstantTimeCompare([]byte(providedSecret), []byte(w.secret)) == 1
	if match {
		return nil
	}

	if w.authMode == config.WebhookAuthModeLenient {
		w.logger.Warn("webhook auth mismatch accepted under lenient auth mode")
		return nil
	}
	return apperrors.New(apperrors.KindAuthentication, "webhook shared secret mismatch")
}

// Apply maps the event to a legal transition and applies it. Events for
// a signature with no matching record are ignored: it is not this
// relayer's traffic.
func (w *WebhookIngestor) Apply(provider string, event WebhookEvent) error {
	record, err := w.transfers.GetByBlockchainSignature(event.Signature)
	if err != nil {
		metrics.WebhookEventsTotal.WithLabelValues(provider, "unmatched").Inc()
		return nil
	}

	if record.BlockchainStatus != models.BlockchainStatusSubmitted {
		// Already resolved by the crank or a prior delivery; the
		// duplicate delivery is a legitimate no-op, not an error.
		metrics.WebhookEventsTotal.WithLabelValues(provider, "already_resolved").Inc()
		return nil
	}

	if event.Failed {
		if err := w.transfers.MarkFailedTerminal(record.ID, models.LastErrorTypeTransactionFailed, event.ChainErr); err != nil {
			metrics.WebhookEventsTotal.WithLabelValues(provider, "error").Inc()
			return err
		}
		w.appendOutbox(record.ID, models.BlockchainStatusSubmitted, models.BlockchainStatusFailed, provider+" webhook reported failure: "+event.ChainErr)
		metrics.WebhookEventsTotal.WithLabelValues(provider, "failed").Inc()
		return nil
	}

	if err := w.transfers.MarkConfirmed(record.ID); err != nil {
		metrics.WebhookEventsTotal.WithLabelValues(provider, "error").Inc()
		return err
	}
	w.appendOutbox(record.ID, models.BlockchainStatusSubmitted, models.BlockchainStatusConfirmed, provider+" webhook reported confirmation")
	metrics.WebhookEventsTotal.WithLabelValues(provider, "confirmed").Inc()
	return nil
}

// appendOutbox writes an audit row for a completed transition. A failure
// to append is logged but never rolls back the transition itself: the
// transition already committed and is the source of truth.
func (w *WebhookIngestor) appendOutbox(id uuid.UUID, from, to models.BlockchainStatus, reason string) {
	if err := w.outbox.Append(id, from, to, reason); err != nil {
		w.logger.WithError(err).WithField("transfer_id", id).Warn("append outbox event")
	}
}
