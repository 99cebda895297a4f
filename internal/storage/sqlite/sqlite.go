// Package sqlitestorage stores boards in SQLite through the gorm backend.
// An in-memory database is dumped to disk periodically and on Close.
package sqlitestorage

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/planeboard/engine/internal/database"
	gormstorage "github.com/planeboard/engine/internal/storage/gorm"

	"gorm.io/gorm"
)

type Config struct {
	// Path opens a file database. Empty keeps the database in memory.
	Path string
	// DumpPath receives VACUUM INTO snapshots of an in-memory database
	// every DumpInterval.
	DumpPath     string
	DumpInterval time.Duration
}

// dumping reports whether the database lives in memory and has a dump file.
func (c Config) dumping() bool {
	return c.Path == "" && c.DumpPath != ""
}

type Backend struct {
	*gormstorage.Backend
	db  *gorm.DB
	cfg Config
	log *slog.Logger

	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// New opens the database; nothing is written until Init.
func New(cfg Config, logger *slog.Logger) (*Backend, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := database.GetSqliteDBStandalone(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite DB: %w", err)
	}
	return &Backend{
		Backend: gormstorage.New(gormstorage.Dependencies{DB: db, Logger: logger}),
		db:      db,
		cfg:     cfg,
		log:     logger.With("component", "sqlite-storage"),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}, nil
}

func (b *Backend) Init() error {
	if err := b.Backend.Init(); err != nil {
		return err
	}
	if b.cfg.dumping() && b.cfg.DumpInterval > 0 {
		go b.dumpLoop()
	} else {
		close(b.done)
	}
	return nil
}

// Close flushes pending revisions and then writes the final dump, so the
// file always holds the last state of the board.
func (b *Backend) Close() error {
	b.closeOnce.Do(func() {
		close(b.stop)
		<-b.done
		if err := b.Backend.Close(); err != nil {
			b.closeErr = err
			return
		}
		if b.cfg.dumping() {
			if err := b.dump(); err != nil {
				b.closeErr = fmt.Errorf("final dump: %w", err)
			}
		}
	})
	return b.closeErr
}

// GetExportedFilePath returns the database file, or the dump file for an
// in-memory database.
func (b *Backend) GetExportedFilePath() string {
	if b.cfg.Path != "" {
		return b.cfg.Path
	}
	return b.cfg.DumpPath
}

func (b *Backend) dump() error {
	start := time.Now()
	if err := database.DumpMemoryDBToDisk(b.db, b.cfg.DumpPath); err != nil {
		return err
	}
	b.log.Debug("dumped to disk", "path", b.cfg.DumpPath, "duration", time.Since(start))
	return nil
}

// dumpLoop snapshots the database every DumpInterval. VACUUM INTO reads a
// consistent snapshot, so writers keep going during a dump.
func (b *Backend) dumpLoop() {
	defer close(b.done)
	ticker := time.NewTicker(b.cfg.DumpInterval)
	defer ticker.Stop()
	for {
		select {
		case <-b.stop:
			return
		case <-ticker.C:
			if err := b.dump(); err != nil {
				b.log.Error("error dumping to disk", "error", err)
			}
		}
	}
}
