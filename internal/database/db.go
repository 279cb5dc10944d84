package database

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	_ "modernc.org/sqlite"
)

// Config holds database configuration
type Config struct {
	Path  string // Path to SQLite database file
	Debug bool   // Log every statement
}

// DB wraps the GORM database instance
type DB struct {
	db *gorm.DB
}

// NewDB opens the transmit log database with the pure Go SQLite driver and
// migrates the schema
func NewDB(config Config, log *log.Logger) (*DB, error) {
	// Configure GORM logger
	var gormLog logger.Interface
	if log != nil {
		level := logger.Warn
		if config.Debug {
			level = logger.Info
		}
		gormLog = logger.New(
			log,
			logger.Config{
				LogLevel:                  level,
				IgnoreRecordNotFoundError: true,
				Colorful:                  false,
			},
		)
	} else {
		gormLog = logger.Default.LogMode(logger.Silent)
	}

	if config.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}
	if dir := filepath.Dir(config.Path); dir != "." && config.Path != ":memory:" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory %s: %w", dir, err)
		}
	}

	// Create dialector with pure Go SQLite driver
	dialector := sqlite.Dialector{
		DriverName: "sqlite",
		DSN:        config.Path,
	}

	// Open database connection
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormLog,
	})
	if err != nil {
		return nil, err
	}

	// Get underlying SQL DB for PRAGMA settings
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	// Configure SQLite for optimal performance
	if err := configureSQLite(sqlDB); err != nil {
		return nil, err
	}

	// Auto-migrate database schema
	if err := db.AutoMigrate(&Transmission{}, &BERReport{}); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	if log != nil {
		log.Printf("Database initialized: %s", config.Path)
	}

	return &DB{db: db}, nil
}

// configureSQLite applies the SQLite settings used for transmit logs. The
// recorder writes from one goroutine while berstat may read.
func configureSQLite(sqlDB *sql.DB) error {
	pragmaSettings := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA temp_store=memory",
	}

	for _, pragma := range pragmaSettings {
		if _, err := sqlDB.Exec(pragma); err != nil {
			return err
		}
	}

	return nil
}

// GetDB returns the underlying GORM database instance
func (db *DB) GetDB() *gorm.DB {
	return db.db
}

// Close closes the database connection
func (db *DB) Close() error {
	sqlDB, err := db.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Health checks if the database connection is healthy
func (db *DB) Health() error {
	sqlDB, err := db.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

// Stats returns database connection statistics
func (db *DB) Stats() sql.DBStats {
	sqlDB, _ := db.db.DB()
	return sqlDB.Stats()
}