package database

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/planeboard/engine/internal/model"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetSqliteDBStandalone_MemoryIsPrivate(t *testing.T) {
	a, err := GetSqliteDBStandalone("")
	require.NoError(t, err)
	b, err := GetSqliteDBStandalone("")
	require.NoError(t, err)

	require.NoError(t, Migrate(a))
	require.NoError(t, a.Create(&model.Object{BoardID: "b", ObjectID: "x", Kind: "note"}).Error)

	assert.True(t, a.Migrator().HasTable(&model.Object{}))
	assert.False(t, b.Migrator().HasTable(&model.Object{}))
}

func TestDumpMemoryDBToDisk(t *testing.T) {
	db, err := GetSqliteDBStandalone("")
	require.NoError(t, err)
	require.NoError(t, Migrate(db))
	require.NoError(t, db.Create(&model.Object{BoardID: "b", ObjectID: "x", Kind: "note"}).Error)

	path := filepath.Join(t.TempDir(), "board.db")
	require.NoError(t, os.WriteFile(path, []byte("stale"), 0o644))

	require.NoError(t, DumpMemoryDBToDisk(db, path))

	disk, err := GetSqliteDBStandalone(path)
	require.NoError(t, err)
	var count int64
	require.NoError(t, disk.Model(&model.Object{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestDumpMemoryDBToDisk_NoPath(t *testing.T) {
	db, err := GetSqliteDBStandalone("")
	require.NoError(t, err)
	assert.Error(t, DumpMemoryDBToDisk(db, ""))
}

func TestGetBackupDBPaths(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.db", "b.db", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested.db"), 0o755))

	paths, err := GetBackupDBPaths(dir)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{filepath.Join(dir, "a.db"), filepath.Join(dir, "b.db")}, paths)
}

func TestPostgresDSN(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	viper.Set("db.host", "db.internal")
	viper.Set("db.port", "6543")
	viper.Set("db.username", "board")
	viper.Set("db.password", "secret")
	viper.Set("db.database", "boards")

	assert.Equal(t, "host=db.internal port=6543 user=board password=secret dbname=boards sslmode=disable", PostgresDSN())

	viper.Set("db.sslmode", "require")
	assert.Contains(t, PostgresDSN(), "sslmode=require")
}

func TestManager_ConnectFallsBackToSQLite(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	viper.Set("db.host", "127.0.0.1")
	viper.Set("db.port", "1")

	path := filepath.Join(t.TempDir(), "fallback.db")
	m := NewManager(zerolog.Nop(), path)
	t.Cleanup(func() { m.Close() })

	require.NoError(t, m.Connect())
	assert.True(t, m.Connected())
	assert.True(t, m.Local())

	require.NoError(t, m.Setup())
	assert.True(t, m.DB.Migrator().HasTable(&model.Revision{}))
	assert.FileExists(t, path)

	require.NoError(t, m.Close())
	assert.False(t, m.Connected())
}

func TestManager_SetupWithoutConnect(t *testing.T) {
	m := NewManager(zerolog.Nop(), "")
	assert.Error(t, m.Setup())
	assert.NoError(t, m.Close())
}
