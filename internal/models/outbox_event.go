package models

import (
	"time"

	"github.com/google/uuid"
)

// OutboxEvent is an append-only log row written alongside the
// TransferRecord status transitions made by the intake service, the
// submission worker, the reconciliation crank and the webhook ingestor.
// The claim (PendingSubmission -> Processing) and the operator reset of
// stuck Processing rows write no row. It backs the audit trail and is the
// payload published to lifecycle-event subscribers.
type OutboxEvent struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	TransferID uuid.UUID `gorm:"column:transfer_id;type:uuid;not null;index" json:"transfer_id"`
	FromStatus BlockchainStatus `gorm:"column:from_status;type:varchar(24)" json:"from_status"`
	ToStatus   BlockchainStatus `gorm:"column:to_status;type:varchar(24);not null" json:"to_status"`
	Reason     string           `gorm:"column:reason;type:text" json:"reason,omitempty"`
	OccurredAt time.Time        `gorm:"column:occurred_at;not null" json:"occurred_at"`
}

func (OutboxEvent) TableName() string {
	return "outbox_events"
}
