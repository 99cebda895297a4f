// Package postgres stores boards in PostgreSQL through the gorm backend and
// adds a GIN index so revision patches can be searched by field.
package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/planeboard/engine/internal/database"
	gormstorage "github.com/planeboard/engine/internal/storage/gorm"

	"gorm.io/gorm"
)

const (
	defaultConnectTimeout = 10 * time.Second
	patchIndexSQL         = `CREATE INDEX IF NOT EXISTS idx_revision_patch ON revisions USING GIN (patch)`
)

type Dependencies struct {
	// DB is an existing connection. When nil, Init connects using the db.*
	// config keys and Close releases that connection again.
	DB             *gorm.DB
	Logger         *slog.Logger
	FlushInterval  time.Duration
	ConnectTimeout time.Duration
}

type Backend struct {
	*gormstorage.Backend
	deps   Dependencies
	db     *gorm.DB
	ownsDB bool
}

// New returns a backend that connects in Init.
func New(deps Dependencies) *Backend {
	if deps.ConnectTimeout <= 0 {
		deps.ConnectTimeout = defaultConnectTimeout
	}
	return &Backend{deps: deps}
}

func (b *Backend) Init() error {
	b.db = b.deps.DB
	if b.db == nil {
		ctx, cancel := context.WithTimeout(context.Background(), b.deps.ConnectTimeout)
		defer cancel()
		db, err := database.ConnectPostgres(ctx)
		if err != nil {
			return fmt.Errorf("failed to connect to postgres: %w", err)
		}
		b.db, b.ownsDB = db, true
	}

	b.Backend = gormstorage.New(gormstorage.Dependencies{
		DB:            b.db,
		Logger:        b.deps.Logger,
		FlushInterval: b.deps.FlushInterval,
	})
	if err := b.Backend.Init(); err != nil {
		return err
	}

	// injected test databases may be SQLite
	if b.db.Name() != "postgres" {
		return nil
	}
	if err := b.db.Exec(patchIndexSQL).Error; err != nil {
		return fmt.Errorf("failed to create revision patch index: %w", err)
	}
	return nil
}

// Close flushes the gorm backend and closes a connection opened by Init.
func (b *Backend) Close() error {
	if b.Backend == nil {
		return nil
	}
	if err := b.Backend.Close(); err != nil {
		return err
	}
	if !b.ownsDB {
		return nil
	}
	sqlDB, err := b.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
