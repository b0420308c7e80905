package db

import (
	"errors"
	"fmt"

	"github.com/glebarez/sqlite"
	"github.com/pysugar/cloud-nexus/internal/db/models"
	"github.com/pysugar/cloud-nexus/internal/provider"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// InitDB initializes the SQLite database connection and runs migrations.
// verbose enables gorm's SQL trace.
func InitDB(dbPath string, verbose bool) (*gorm.DB, error) {
	level := logger.Warn
	if verbose {
		level = logger.Info
	}
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(level),
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dbPath, err)
	}

	// SQLite allows one writer at a time.
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(1)
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// Migrate creates or updates every table.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&models.Account{}, &models.FileRecord{}, &models.ActivityLog{}); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// notFound maps gorm's missing-row error onto the provider taxonomy.
func notFound(op, what string, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &provider.Error{Op: op, Message: what + " not found", Err: provider.ErrNotFound}
	}
	return fmt.Errorf("%s: %w", op, err)
}
