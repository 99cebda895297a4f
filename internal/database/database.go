// Package database opens the gorm connections behind the board stores.
package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/planeboard/engine/internal/model"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

const pingTimeout = 5 * time.Second

// Manager connects to Postgres and falls back to a local SQLite database
// when Postgres cannot be reached.
type Manager struct {
	DB *gorm.DB

	log          zerolog.Logger
	fallbackPath string
	local        bool
}

// NewManager returns an unconnected manager. fallbackPath is the SQLite
// file used without Postgres; empty keeps that database in memory.
func NewManager(log zerolog.Logger, fallbackPath string) *Manager {
	return &Manager{log: log, fallbackPath: fallbackPath}
}

// Connected reports whether Connect succeeded.
func (m *Manager) Connected() bool { return m.DB != nil }

// Local reports whether the manager fell back to SQLite.
func (m *Manager) Local() bool { return m.local }

func (m *Manager) Connect() error {
	db, err := m.connectPostgres()
	if err == nil {
		m.DB, m.local = db, false
		m.log.Info().Msg("Connected to database")
		return nil
	}
	m.log.Error().Err(err).Msg("Failed to connect to Postgres DB, trying SQLite")

	db, err = GetSqliteDBStandalone(m.fallbackPath)
	if err != nil {
		return fmt.Errorf("failed to get local SQLite DB: %w", err)
	}
	m.DB, m.local = db, true
	if m.fallbackPath == "" {
		m.log.Info().Msg("Using local SQLite DB in memory")
	} else {
		m.log.Info().Str("path", m.fallbackPath).Msg("Using local SQLite DB")
	}
	return nil
}

func (m *Manager) connectPostgres() (*gorm.DB, error) {
	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	return ConnectPostgres(ctx)
}

// Setup migrates the board tables.
func (m *Manager) Setup() error {
	if m.DB == nil {
		return errors.New("db not connected")
	}
	m.log.Info().Msg("Migrating schema")
	if err := Migrate(m.DB); err != nil {
		return err
	}
	m.log.Info().Msg("Database setup complete")
	return nil
}

// Close releases the connection pool.
func (m *Manager) Close() error {
	if m.DB == nil {
		return nil
	}
	sqlDB, err := m.DB.DB()
	if err != nil {
		return err
	}
	m.DB = nil
	return sqlDB.Close()
}

// Migrate creates or updates the board tables.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(model.DatabaseModels...); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}
