package models

import "time"

// BlocklistEntry records an address that must never clear compliance
// screening. Entries are never deleted by automation; removal is an
// operator action.
type BlocklistEntry struct {
	Address   string    `gorm:"column:address;type:varchar(64);primaryKey" json:"address"`
	Reason    string    `gorm:"column:reason;type:text;not null" json:"reason"`
	CreatedAt time.Time `gorm:"column:created_at;not null" json:"created_at"`
}

func (BlocklistEntry) TableName() string {
	return "blocklist_entries"
}

// KnownMaliciousAddress is pre-seeded into the blocklist idempotently at
// migration time.
const KnownMaliciousAddress = "1nc1nerator11111111111111111111111111111111"
