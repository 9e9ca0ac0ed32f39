// Package db provides database connection and migration functionality.
package db

import (
	"fmt"
	"time"

	"chain-indexer/internal/config"
	applog "chain-indexer/internal/logger"
	"chain-indexer/internal/models"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const slowQueryThreshold = 500 * time.Millisecond

// Open opens a database connection using the provided configuration.
// GORM warnings (slow queries, errors) are routed through log.
func Open(cfg config.Config, log *applog.Logger) (*gorm.DB, error) {
	level := logger.Warn
	if log.DebugEnabled() {
		level = logger.Info
	}
	gormLogger := logger.New(log, logger.Config{
		SlowThreshold:             slowQueryThreshold,
		LogLevel:                  level,
		IgnoreRecordNotFoundError: true,
		Colorful:                  false,
	})

	switch cfg.DBDialect {
	case config.DatabaseSchemePostgres:
		gdb, err := gorm.Open(postgres.Open(cfg.DBDsn), &gorm.Config{Logger: gormLogger})
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		sqlDB, err := gdb.DB()
		if err != nil {
			return nil, err
		}
		// one connection per worker plus the gap detector and dashboard
		sqlDB.SetMaxOpenConns(cfg.Threads + 4)
		sqlDB.SetMaxIdleConns(cfg.Threads + 2)
		sqlDB.SetConnMaxLifetime(30 * time.Minute)
		return gdb, nil
	default:
		return nil, fmt.Errorf("unsupported DB_DIALECT: %q", cfg.DBDialect)
	}
}

// AutoMigrate runs database migrations for all models.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.SyncStatus{},
		&models.BlockSyncError{},
		&models.Block{},
		&models.Transaction{},
		&models.Delegation{},
		&models.DelegatorReward{},
		&models.ProposalVote{},
		&models.ProposalDeposit{},
		&models.HistoryProposal{},
		&models.SmartContract{},
	)
}
