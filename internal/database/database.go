// Package database opens the ledger's PostgreSQL pool and applies schema
// migrations.
package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/Pranjal0410/real-estate-project-sub000/internal/logger"
)

const pingTimeout = 5 * time.Second

// Manager owns the connection pool for the lifetime of the process.
type Manager struct {
	db     *gorm.DB
	config *Config
}

// NewManager opens the pool, applies the configured limits and verifies the
// server is reachable.
func NewManager(config *Config) (*Manager, error) {
	db, err := gorm.Open(postgres.New(postgres.Config{
		DSN:                  config.DSN(),
		PreferSimpleProtocol: true,
	}), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying DB: %w", err)
	}
	if config.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(config.MaxOpenConns)
	}
	if config.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(config.MaxIdleConns)
	}
	if config.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(config.ConnMaxLifetime)
	}

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("database unreachable at %s:%s: %w", config.Host, config.Port, err)
	}

	logger.Named("database").Infow("Connected to database",
		"host", config.Host,
		"database", config.DBName,
		"max_open_conns", config.MaxOpenConns,
	)
	return &Manager{db: db, config: config}, nil
}

// RunMigrations applies every pending migration from the configured source.
func (m *Manager) RunMigrations() error {
	source := m.config.MigrationsSource
	if source == "" {
		source = "file://migrations"
	}
	log := logger.Named("database").With("source", source)
	log.Info("Running database migrations")

	mig, err := migrate.New(source, m.config.MigrateURL())
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	defer func() {
		srcErr, dbErr := mig.Close()
		if srcErr != nil {
			log.Warnw("Migration source close failed", "error", srcErr)
		}
		if dbErr != nil {
			log.Warnw("Migration database close failed", "error", dbErr)
		}
	}()

	if err := mig.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration failed: %w", err)
	}

	version, dirty, err := mig.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	log.Infow("Database schema up to date", "version", version, "dirty", dirty)
	return nil
}

// DB returns the GORM handle services share.
func (m *Manager) DB() *gorm.DB {
	return m.db
}

// Close releases the connection pool.
func (m *Manager) Close() error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
