package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"freedomain/internal/config"
	"freedomain/internal/models"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

var DB *gorm.DB

// InitDB initializes the database connection
func InitDB(cfg *config.StorageConfig) error {
	db, err := Open(cfg.Path)
	if err != nil {
		return err
	}

	DB = db
	return nil
}

// Open connects to the SQLite file at path and migrates the document table
func Open(path string) (*gorm.DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// Use pure Go SQLite driver (modernc.org/sqlite)
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Whole-document writes from several handlers; one connection avoids SQLITE_BUSY
	sqlDB.SetMaxOpenConns(1)

	db, err := gorm.Open(sqlite.Dialector{
		Conn: sqlDB,
	}, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize GORM: %w", err)
	}

	// Auto migrate the schema
	if err := db.AutoMigrate(&models.Document{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return db, nil
}

// GetDB returns the database instance
func GetDB() *gorm.DB {
	return DB
}

// Close releases the global database connection
func Close() error {
	if DB == nil {
		return nil
	}
	sqlDB, err := DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
