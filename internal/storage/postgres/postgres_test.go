package postgres

import (
	"path/filepath"
	"testing"

	"github.com/planeboard/engine/internal/database"
	"github.com/planeboard/engine/internal/storage"
	"github.com/planeboard/engine/pkg/core"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Compile-time interface check
var _ storage.Backend = (*Backend)(nil)

func TestNew(t *testing.T) {
	b := New(Dependencies{})
	require.NotNil(t, b)
	assert.NoError(t, b.Close())
}

func TestInit_ConnectionRefused(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	viper.Set("db.host", "127.0.0.1")
	viper.Set("db.port", "1")

	b := New(Dependencies{})
	err := b.Init()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres")
}

func TestInit_InjectedDB(t *testing.T) {
	db, err := database.GetSqliteDBStandalone(filepath.Join(t.TempDir(), "board.db"))
	require.NoError(t, err)

	b := New(Dependencies{DB: db})
	require.NoError(t, b.Init())
	t.Cleanup(func() { _ = b.Close() })

	_, err = b.OpenBoard(&core.Board{ID: "board-1"})
	require.NoError(t, err)
	require.NoError(t, b.PutObject(&core.BoardObject{ID: "a", Kind: core.KindRectangle, Width: 10, Height: 10}))

	var p core.Patch
	p.SetPosition(40, 40)
	require.NoError(t, b.ApplyBatch(core.BatchUpdatePlan{{ObjectID: "a", Patch: p}}))

	objs, err := b.OpenBoard(&core.Board{ID: "board-1"})
	require.NoError(t, err)
	require.Len(t, objs, 1)
	assert.Equal(t, 40.0, objs[0].X)
}
