package models

import "time"

// RiskProfileTTL is how long a cached risk provider answer remains valid
// before the compliance gate must re-query the provider.
const RiskProfileTTL = time.Hour

// RiskProfile caches a risk provider response for an address so repeated
// screenings of the same counterparty within the TTL window avoid a
// redundant external call.
type RiskProfile struct {
	Address   string    `gorm:"column:address;type:varchar(64);primaryKey" json:"address"`
	RiskScore int       `gorm:"column:risk_score;not null" json:"risk_score"`
	RiskLevel string    `gorm:"column:risk_level;type:varchar(32);not null" json:"risk_level"`
	Reasoning string    `gorm:"column:reasoning;type:text" json:"reasoning"`
	FetchedAt time.Time `gorm:"column:fetched_at;not null" json:"fetched_at"`
}

func (RiskProfile) TableName() string {
	return "risk_profiles"
}

// Expired reports whether the cached profile has outlived RiskProfileTTL.
func (r *RiskProfile) Expired(now time.Time) bool {
	return now.Sub(r.FetchedAt) > RiskProfileTTL
}
