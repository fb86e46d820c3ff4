// Package db owns the single gorm connection pool and the migration list
// for every aggregate the relayer persists.
package db

import (
	"fmt"
	"time"

	"solrelay/internal/config"
	"solrelay/internal/models"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

// DB is the process-wide gorm handle, assigned once by InitDB.
var DB *gorm.DB

// InitDB opens the postgres connection, applies the configured pool
// bounds, and runs AutoMigrate across every model before seeding the
// known-malicious blocklist entry.
func InitDB(cfg config.DatabaseConfig) (*gorm.DB, error) {
	gormDB, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger:                 gormlogger.Default.LogMode(gormlogger.Warn),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	sqlDB, err := gormDB.DB()
	if err != nil {
		return nil, fmt.Errorf("get underlying sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := gormDB.AutoMigrate(
		&models.TransferRecord{},
		&models.BlocklistEntry{},
		&models.RiskProfile{},
		&models.OutboxEvent{},
	); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}

	if err := seedKnownMaliciousAddress(gormDB); err != nil {
		return nil, fmt.Errorf("seed blocklist: %w", err)
	}

	DB = gormDB
	logrus.WithField("max_open_conns", cfg.MaxOpenConns).Info("database initialized")
	return gormDB, nil
}

// seedKnownMaliciousAddress idempotently inserts models.KnownMaliciousAddress
// into the blocklist at migration time.
func seedKnownMaliciousAddress(gormDB *gorm.DB) error {
	entry := models.BlocklistEntry{
		Address:   models.KnownMaliciousAddress,
		Reason:    "pre-seeded known-malicious address",
		CreatedAt: time.Now(),
	}
	return gormDB.Clauses(clause.OnConflict{DoNothing: true}).Create(&entry).Error
}
