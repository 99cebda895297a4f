package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/planeboard/engine/internal/config"
	"github.com/planeboard/engine/internal/database"
	"github.com/planeboard/engine/internal/logging"
	"github.com/planeboard/engine/internal/model"
	"github.com/planeboard/engine/internal/model/convert"
	"github.com/planeboard/engine/internal/storage/memory"
	"github.com/planeboard/engine/pkg/core"

	"github.com/spf13/viper"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func connectDB() (*database.Manager, error) {
	m := database.NewManager(logging.NewZerolog(logWriter(), viper.GetString("logLevel"), "database"), "")
	if err := m.Connect(); err != nil {
		return nil, err
	}
	if err := m.Setup(); err != nil {
		m.Close()
		return nil, err
	}
	return m, nil
}

// runMigrate migrates the schema and imports every SQLite dump found in
// storage.sqlite.dumpDir into Postgres.
func runMigrate() error {
	m, err := connectDB()
	if err != nil {
		return fmt.Errorf("error connecting to database: %w", err)
	}
	defer m.Close()
	if m.Local() {
		Logger.Warn("Postgres unavailable, schema migrated on a local SQLite DB only")
		return nil
	}

	dumpDir := config.GetStorageConfig().SQLite.DumpDir
	paths, err := database.GetBackupDBPaths(dumpDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			Logger.Info("No SQLite dumps to import", "dir", dumpDir)
			return nil
		}
		return fmt.Errorf("error getting backup database paths: %w", err)
	}

	imported := make([]string, 0, len(paths))
	for _, path := range paths {
		src, err := database.GetSqliteDBStandalone(path)
		if err != nil {
			return fmt.Errorf("error opening sqlite database %s: %w", path, err)
		}
		err = m.DB.Transaction(func(tx *gorm.DB) error {
			return importSQLite(src, tx)
		})
		if sqlDB, dbErr := src.DB(); dbErr == nil {
			sqlDB.Close()
		}
		if err != nil {
			return fmt.Errorf("error importing %s: %w", path, err)
		}
		imported = append(imported, path)
	}

	Logger.Info("Imported SQLite dumps, delete them to avoid importing twice",
		"count", len(imported),
		"paths", imported)
	fmt.Printf("imported %d SQLite dump(s)\n", len(imported))
	return nil
}

func importSQLite(src, dst *gorm.DB) error {
	if _, err := migrateTable(src, dst, "boards", clause.OnConflict{DoNothing: true}, func(b *model.Board) {
		b.ID = 0
	}); err != nil {
		return err
	}
	// objects from the dump replace the stored row
	if _, err := migrateTable[model.Object](src, dst, "objects", clause.OnConflict{
		Columns:   []clause.Column{{Name: "board_id"}, {Name: "object_id"}},
		UpdateAll: true,
	}, nil); err != nil {
		return err
	}
	_, err := migrateTable(src, dst, "revisions", clause.OnConflict{DoNothing: true}, func(r *model.Revision) {
		r.ID = 0
	})
	return err
}

// migrateTable copies every row of M from src to dst. reset clears
// fields that dst assigns itself.
func migrateTable[M any](src, dst *gorm.DB, table string, onConflict clause.OnConflict, reset func(*M)) (int, error) {
	var rows []M
	if err := src.Find(&rows).Error; err != nil {
		return 0, fmt.Errorf("error reading %s: %w", table, err)
	}
	Logger.Info("Found records", "count", len(rows), "table", table)
	if len(rows) == 0 {
		return 0, nil
	}
	if reset != nil {
		for i := range rows {
			reset(&rows[i])
		}
	}
	if err := dst.Clauses(onConflict).CreateInBatches(rows, 500).Error; err != nil {
		return 0, fmt.Errorf("error migrating %s: %w", table, err)
	}
	return len(rows), nil
}

// runExport writes a stored board and its revision history to a JSON file
// in storage.memory.outputDir.
func runExport(boardID string) error {
	m, err := connectDB()
	if err != nil {
		return fmt.Errorf("error connecting to database: %w", err)
	}
	defer m.Close()
	path, err := exportBoard(m.DB, config.GetStorageConfig().Memory, boardID)
	if err != nil {
		return err
	}
	fmt.Println(path)
	return nil
}

func exportBoard(db *gorm.DB, cfg config.MemoryConfig, boardID string) (string, error) {
	var row model.Board
	if err := db.Where("board_id = ?", boardID).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", fmt.Errorf("board %s not found", boardID)
		}
		return "", fmt.Errorf("error getting board: %w", err)
	}

	var objRows []model.Object
	if err := db.Where("board_id = ?", boardID).Order("seq").Find(&objRows).Error; err != nil {
		return "", fmt.Errorf("error getting objects: %w", err)
	}
	objs := make([]core.BoardObject, 0, len(objRows))
	for _, r := range objRows {
		objs = append(objs, convert.ObjectToCore(r))
	}

	var revRows []model.Revision
	if err := db.Where("board_id = ?", boardID).Order("time, id").Find(&revRows).Error; err != nil {
		return "", fmt.Errorf("error getting revisions: %w", err)
	}
	history := make([]memory.Revision, 0, len(revRows))
	for _, r := range revRows {
		patch, err := convert.RevisionPatch(r)
		if err != nil {
			Logger.Warn("Skipping unreadable revision patch", "id", r.ID, "error", err)
		}
		history = append(history, memory.Revision{
			Time:     r.Time,
			ObjectID: r.ObjectID,
			Source:   core.RevisionSource(r.Source),
			Patch:    patch,
		})
	}

	board := convert.BoardToCore(row)
	out := memory.New(cfg)
	if err := out.Restore(board, objs, history); err != nil {
		return "", err
	}
	if _, err := out.OpenBoard(&board); err != nil {
		return "", err
	}
	if err := out.CloseBoard(); err != nil {
		return "", fmt.Errorf("error writing export: %w", err)
	}
	Logger.Info("Exported board", "boardId", boardID, "objects", len(objs), "revisions", len(history))
	return out.GetExportedFilePath(), nil
}
