package repository

import (
	"fmt"
	"time"

	"solrelay/internal/clients"
	"solrelay/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type OutboxRepository interface {
	Append(transferID uuid.UUID, from, to models.BlockchainStatus, reason string) error
}

// outboxRepository writes the durable audit row first, then mirrors it to
// NATS on a best-effort basis. publisher/subject are both empty when the
// relayer runs with no configured NATS URL: publish becomes a no-op and
// the outbox table remains the sole source of truth.
type outboxRepository struct {
	db        *gorm.DB
	publisher *clients.NATSClient
	subject   string
}

func NewOutboxRepository(db *gorm.DB, publisher *clients.NATSClient, subject string) OutboxRepository {
	return &outboxRepository{db: db, publisher: publisher, subject: subject}
}

func (r *outboxRepository) Append(transferID uuid.UUID, from, to models.BlockchainStatus, reason string) error {
	now := time.Now()
	event := models.OutboxEvent{
		ID:         uuid.New(),
		TransferID: transferID,
		FromStatus: from,
		ToStatus:   to,
		Reason:     reason,
		OccurredAt: now,
	}
	if err := r.db.Create(&event).Error; err != nil {
		return fmt.Errorf("append outbox event: %w", err)
	}

	if r.publisher != nil {
		r.publisher.PublishTransferEvent(r.subject, clients.TransferLifecycleEvent{
			TransferID: transferID.String(),
			FromStatus: from,
			ToStatus:   to,
			Reason:     reason,
			OccurredAt: now,
		})
	}
	return nil
}
