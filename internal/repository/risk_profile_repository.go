package repository

import (
	"errors"
	"fmt"
	"time"

	"solrelay/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type RiskProfileRepository interface {
	// Get returns the cached profile for address, or (nil, nil) if
	// absent or expired relative to models.RiskProfileTTL.
	Get(address string) (*models.RiskProfile, error)
	Upsert(profile *models.RiskProfile) error
}

type riskProfileRepository struct {
	db *gorm.DB
}

func NewRiskProfileRepository(db *gorm.DB) RiskProfileRepository {
	return &riskProfileRepository{db: db}
}

func (r *riskProfileRepository) Get(address string) (*models.RiskProfile, error) {
	var profile models.RiskProfile
	err := r.db.Where("address = ?", address).First(&profile).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get risk profile: %w", err)
	}
	if profile.Expired(time.Now()) {
		return nil, nil
	}
	return &profile, nil
}

func (r *riskProfileRepository) Upsert(profile *models.RiskProfile) error {
	err := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "address"}},
		DoUpdates: clause.AssignmentColumns([]string{"risk_score", "risk_level", "reasoning", "fetched_at"}),
	}).Create(profile).Error
	if err != nil {
		return fmt.Errorf("upsert risk profile: %w", err)
	}
	return nil
}
