package gormstorage

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/planeboard/engine/internal/database"
	"github.com/planeboard/engine/internal/model"
	"github.com/planeboard/engine/internal/storage"
	"github.com/planeboard/engine/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Compile-time interface check
var _ storage.Backend = (*Backend)(nil)

func newTestBackend(t *testing.T) *Backend {
	t.Helper()
	db, err := database.GetSqliteDBStandalone(filepath.Join(t.TempDir(), "board.db"))
	require.NoError(t, err)

	b := New(Dependencies{DB: db, FlushInterval: time.Hour})
	require.NoError(t, b.Init())
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func openBoard(t *testing.T, b *Backend, id string) []core.BoardObject {
	t.Helper()
	objs, err := b.OpenBoard(&core.Board{ID: id, Name: "Test"})
	require.NoError(t, err)
	return objs
}

func rect(id string, x, y float64) *core.BoardObject {
	return &core.BoardObject{ID: id, Kind: core.KindRectangle, X: x, Y: y, Width: 100, Height: 50}
}

func TestInit_NoDB(t *testing.T) {
	b := New(Dependencies{})
	assert.Error(t, b.Init())
	assert.NoError(t, b.Close())
}

func TestOpenBoard_RequiresID(t *testing.T) {
	b := newTestBackend(t)
	_, err := b.OpenBoard(&core.Board{})
	assert.Error(t, err)
	_, err = b.OpenBoard(nil)
	assert.Error(t, err)
}

func TestObjectOps_BeforeOpen(t *testing.T) {
	b := newTestBackend(t)

	assert.ErrorIs(t, b.PutObject(rect("a", 0, 0)), ErrNoBoard)
	assert.ErrorIs(t, b.DeleteObject("a"), ErrNoBoard)

	var p core.Patch
	p.SetPosition(1, 1)
	assert.ErrorIs(t, b.ApplyUpdate(core.Update{ObjectID: "a", Patch: p}), ErrNoBoard)
	assert.ErrorIs(t, b.ApplyBatch(core.BatchUpdatePlan{{ObjectID: "a", Patch: p}}), ErrNoBoard)

	// Empty work never needs a board.
	assert.NoError(t, b.ApplyBatch(nil))
	assert.NoError(t, b.ApplyUpdate(core.Update{ObjectID: "a"}))
	assert.NoError(t, b.CloseBoard())
}

func TestPutObject_LoadKeepsInsertionOrder(t *testing.T) {
	b := newTestBackend(t)
	assert.Empty(t, openBoard(t, b, "board-1"))

	require.NoError(t, b.PutObject(rect("z", 0, 0)))
	require.NoError(t, b.PutObject(rect("a", 200, 0)))
	frame := &core.BoardObject{ID: "m", Kind: core.KindFrame, X: -50, Y: -50, Width: 400, Height: 300}
	require.NoError(t, b.PutObject(frame))

	// Re-putting keeps the original position in the order.
	moved := rect("z", 30, 40)
	moved.ParentFrameID = core.StringPtr("m")
	require.NoError(t, b.PutObject(moved))

	objs := openBoard(t, b, "board-1")
	require.Len(t, objs, 3)
	assert.Equal(t, []string{"z", "a", "m"}, []string{objs[0].ID, objs[1].ID, objs[2].ID})
	assert.Equal(t, 30.0, objs[0].X)
	require.NotNil(t, objs[0].ParentFrameID)
	assert.Equal(t, "m", *objs[0].ParentFrameID)
	assert.Nil(t, objs[1].ParentFrameID)

	// New objects after reopening continue the sequence.
	require.NoError(t, b.PutObject(rect("b", 0, 0)))
	objs = openBoard(t, b, "board-1")
	assert.Equal(t, "b", objs[3].ID)
}

func TestBoardsAreIsolated(t *testing.T) {
	b := newTestBackend(t)
	openBoard(t, b, "one")
	require.NoError(t, b.PutObject(rect("a", 0, 0)))

	assert.Empty(t, openBoard(t, b, "two"))
	assert.Len(t, openBoard(t, b, "one"), 1)

	var count int64
	require.NoError(t, b.DB().Model(&model.Board{}).Count(&count).Error)
	assert.Equal(t, int64(2), count)
}

func TestApplyBatch(t *testing.T) {
	b := newTestBackend(t)
	openBoard(t, b, "board-1")
	require.NoError(t, b.PutObject(rect("a", 10, 10)))
	require.NoError(t, b.PutObject(rect("c", 50, 60)))

	var pa, pc core.Patch
	pa.SetPosition(0, 0)
	pa.ParentFrameID = core.StringPtr("")
	pc.SetPosition(70, 80)
	plan := core.BatchUpdatePlan{
		{ObjectID: "a", Patch: pa},
		{ObjectID: "c", Patch: pc},
		{ObjectID: "gone", Patch: pc},
	}
	require.NoError(t, b.ApplyBatch(plan))

	objs := openBoard(t, b, "board-1")
	require.Len(t, objs, 2)
	assert.Equal(t, 0.0, objs[0].X)
	assert.Equal(t, 0.0, objs[0].Y)
	assert.Equal(t, 100.0, objs[0].Width)
	require.NotNil(t, objs[0].ParentFrameID)
	assert.Equal(t, "", *objs[0].ParentFrameID)
	assert.Equal(t, 70.0, objs[1].X)
	assert.Equal(t, 80.0, objs[1].Y)

	// two puts plus three updates
	assert.Equal(t, 5, b.PendingRevisions())
}

func TestApplyUpdate_Points(t *testing.T) {
	b := newTestBackend(t)
	openBoard(t, b, "board-1")
	line := &core.BoardObject{ID: "l", Kind: core.KindLine, Width: 100, Height: 50, Points: []float64{0, 0, 100, 50}}
	require.NoError(t, b.PutObject(line))

	var p core.Patch
	p.SetSize(200, 100)
	p.Points = []float64{0, 0, 200, 100}
	p.Rotation = core.Float64Ptr(45)
	require.NoError(t, b.ApplyUpdate(core.Update{ObjectID: "l", Patch: p}))

	objs := openBoard(t, b, "board-1")
	require.Len(t, objs, 1)
	assert.Equal(t, []float64{0, 0, 200, 100}, objs[0].Points)
	assert.Equal(t, 200.0, objs[0].Width)
	assert.Equal(t, 45.0, objs[0].Rotation)
}

func TestDeleteObject(t *testing.T) {
	b := newTestBackend(t)
	openBoard(t, b, "board-1")
	require.NoError(t, b.PutObject(rect("a", 0, 0)))
	require.NoError(t, b.PutObject(rect("b", 0, 0)))

	require.NoError(t, b.DeleteObject("a"))
	require.NoError(t, b.DeleteObject("missing"))

	objs := openBoard(t, b, "board-1")
	require.Len(t, objs, 1)
	assert.Equal(t, "b", objs[0].ID)
}

func TestCloseBoard_FlushesRevisions(t *testing.T) {
	b := newTestBackend(t)
	openBoard(t, b, "board-1")
	require.NoError(t, b.PutObject(rect("a", 0, 0)))
	require.NoError(t, b.DeleteObject("a"))
	require.Equal(t, 2, b.PendingRevisions())

	require.NoError(t, b.CloseBoard())
	assert.Equal(t, 0, b.PendingRevisions())
	assert.Equal(t, 2, b.WrittenRevisions())
	assert.Greater(t, b.GetLastDBWriteDuration(), time.Duration(0))

	var revs []model.Revision
	require.NoError(t, b.DB().Order("id").Find(&revs).Error)
	require.Len(t, revs, 2)
	assert.Equal(t, "put", revs[0].Source)
	assert.Equal(t, "delete", revs[1].Source)

	var board model.Board
	require.NoError(t, b.DB().Where("board_id = ?", "board-1").First(&board).Error)
	assert.True(t, board.ClosedAt.Valid)

	meta := b.GetExportMetadata()
	assert.Equal(t, "board-1", meta.BoardID)
	assert.Equal(t, "Test", meta.BoardName)
	assert.Equal(t, 0, meta.ObjectCount)
	assert.Equal(t, 2, meta.Revisions)

	// Closed board rejects writes.
	assert.ErrorIs(t, b.PutObject(rect("c", 0, 0)), ErrNoBoard)
}

func TestClose_FinalFlush(t *testing.T) {
	db, err := database.GetSqliteDBStandalone(filepath.Join(t.TempDir(), "board.db"))
	require.NoError(t, err)
	b := New(Dependencies{DB: db, FlushInterval: time.Hour})
	require.NoError(t, b.Init())

	_, err = b.OpenBoard(&core.Board{ID: "board-1"})
	require.NoError(t, err)
	require.NoError(t, b.PutObject(rect("a", 0, 0)))

	require.NoError(t, b.Close())
	require.NoError(t, b.Close())

	var count int64
	require.NoError(t, db.Model(&model.Revision{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestWriterLoop_FlushesOnInterval(t *testing.T) {
	db, err := database.GetSqliteDBStandalone(filepath.Join(t.TempDir(), "board.db"))
	require.NoError(t, err)
	b := New(Dependencies{DB: db, FlushInterval: 10 * time.Millisecond})
	require.NoError(t, b.Init())
	t.Cleanup(func() { _ = b.Close() })

	_, err = b.OpenBoard(&core.Board{ID: "board-1"})
	require.NoError(t, err)
	require.NoError(t, b.PutObject(rect("a", 0, 0)))

	assert.Eventually(t, func() bool {
		return b.WrittenRevisions() == 1
	}, 2*time.Second, 10*time.Millisecond)
}
