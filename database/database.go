package database

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"intake/config"
	"intake/models"
)

// Init opens the SQLite database described by the config and migrates the
// engine's tables. DSN "memory" (or empty) selects a shared in-memory
// database, anything else is treated as a file path.
func Init(cfg config.DatabaseConfig, log *zap.Logger) (*gorm.DB, error) {
	gormConfig := &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	}

	dsn := cfg.DSN
	var db *gorm.DB
	var err error

	if dsn == "memory" || dsn == "" {
		log.Info("Initializing in-memory SQLite database")
		db, err = gorm.Open(sqlite.Open("file::memory:?cache=shared"), gormConfig)
	} else {
		dbDir := filepath.Dir(dsn)
		if dbDir != "." && dbDir != "/" {
			if mkdirErr := os.MkdirAll(dbDir, 0o755); mkdirErr != nil {
				return nil, fmt.Errorf("failed to create database directory %q: %w", dbDir, mkdirErr)
			}
		}
		log.Info("Initializing file-based SQLite database", zap.String("dsn", dsn))
		db, err = gorm.Open(sqlite.Open(dsn), gormConfig)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database (DSN %q): %w", dsn, err)
	}

	if sqlDB, dbErr := db.DB(); dbErr == nil {
		// Single-writer guarantee per assessment row relies on SQLite's
		// serialized writes; keep the pool small.
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetConnMaxLifetime(time.Hour)
	}

	if err := db.AutoMigrate(&models.Assessment{}, &models.Response{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database schema: %w", err)
	}

	log.Info("Database connection established")
	return db, nil
}
