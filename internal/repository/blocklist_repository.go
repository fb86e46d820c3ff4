package repository

import (
	"errors"
	"fmt"
	"time"

	"solrelay/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type BlocklistRepository interface {
	Add(address, reason string) error
	Remove(address string) error
	List() ([]models.BlocklistEntry, error)
	Contains(address string) (bool, error)
}

type blocklistRepository struct {
	db *gorm.DB
}

func NewBlocklistRepository(db *gorm.DB) BlocklistRepository {
	return &blocklistRepository{db: db}
}

func (r *blocklistRepository) Add(address, reason string) error {
	entry := models.BlocklistEntry{
		Address:   address,
		Reason:    reason,
		CreatedAt: time.Now(),
	}
	err := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "address"}},
		DoUpdates: clause.AssignmentColumns([]string{"reason"}),
	}).Create(&entry).Error
	if err != nil {
		return fmt.Errorf("add blocklist entry: %w", err)
	}
	return nil
}

func (r *blocklistRepository) Remove(address string) error {
	if err := r.db.Where("address = ?", address).Delete(&models.BlocklistEntry{}).Error; err != nil {
		return fmt.Errorf("remove blocklist entry: %w", err)
	}
	return nil
}

func (r *blocklistRepository) List() ([]models.BlocklistEntry, error) {
	var entries []models.BlocklistEntry
	if err := r.db.Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("list blocklist entries: %w", err)
	}
	return entries, nil
}

func (r *blocklistRepository) Contains(address string) (bool, error) {
	var entry models.BlocklistEntry
	err := r.db.Where("address = ?", address).First(&entry).Error
	if err == nil {
		return true, nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	return false, fmt.Errorf("check blocklist entry: %w", err)
}
