package main

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/planeboard/engine/internal/config"
	"github.com/planeboard/engine/internal/storage"
	"github.com/planeboard/engine/internal/storage/memory"
	pgstorage "github.com/planeboard/engine/internal/storage/postgres"
	sqlitestorage "github.com/planeboard/engine/internal/storage/sqlite"
	wsstorage "github.com/planeboard/engine/internal/storage/websocket"
	"github.com/spf13/viper"
)

const streamPath = "/api/v1/boards/stream"

type backendFactory func(config.StorageConfig) (storage.Backend, error)

var backendFactories = map[string]backendFactory{
	"":          newMemoryBackend,
	"memory":    newMemoryBackend,
	"sqlite":    newSQLiteBackend,
	"postgres":  newPostgresBackend,
	"websocket": newWebSocketBackend,
}

func createStorageBackend(cfg config.StorageConfig) (storage.Backend, error) {
	factory, ok := backendFactories[cfg.Type]
	if !ok {
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
	b, err := factory(cfg)
	if err != nil {
		return nil, err
	}
	Logger.Info("Storage backend initialized", "type", cfg.Type)
	return b, nil
}

func newMemoryBackend(cfg config.StorageConfig) (storage.Backend, error) {
	return memory.New(cfg.Memory), nil
}

func newPostgresBackend(config.StorageConfig) (storage.Backend, error) {
	return pgstorage.New(pgstorage.Dependencies{Logger: Logger}), nil
}

// newSQLiteBackend keeps the database in memory unless a path is set and
// then dumps it into dumpDir, one file per session.
func newSQLiteBackend(cfg config.StorageConfig) (storage.Backend, error) {
	sc := sqlitestorage.Config{
		Path:         cfg.SQLite.Path,
		DumpInterval: cfg.SQLite.DumpInterval,
	}
	if sc.Path == "" {
		if err := os.MkdirAll(cfg.SQLite.DumpDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create dump directory: %w", err)
		}
		name := fmt.Sprintf("%s_%s.db", AppName, SessionStartTime.Format("20060102_150405"))
		sc.DumpPath = filepath.Join(cfg.SQLite.DumpDir, name)
	}
	b, err := sqlitestorage.New(sc, Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create SQLite backend: %w", err)
	}
	Logger.Info("SQLite database", "path", b.GetExportedFilePath())
	return b, nil
}

func newWebSocketBackend(config.StorageConfig) (storage.Backend, error) {
	base := httpToWS(viper.GetString("api.serverUrl"))
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("invalid api.serverUrl: %w", err)
	}
	Logger.Info("Streaming board changes", "url", base+streamPath)
	return wsstorage.New(wsstorage.Config{
		URL:    base + streamPath,
		Secret: viper.GetString("api.apiKey"),
	}, Logger), nil
}

// httpToWS maps an http(s) base URL onto the matching ws(s) scheme.
func httpToWS(httpURL string) string {
	s := strings.TrimRight(httpURL, "/")
	if rest, ok := strings.CutPrefix(s, "https://"); ok {
		return "wss://" + rest
	}
	if rest, ok := strings.CutPrefix(s, "http://"); ok {
		return "ws://" + rest
	}
	return s
}
