package handlers

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/planeboard/engine/internal/dispatcher"
	"github.com/planeboard/engine/internal/drag"
	"github.com/planeboard/engine/internal/geo"
	"github.com/planeboard/engine/internal/storage"
	"github.com/planeboard/engine/pkg/core"
)

// mockBackend implements storage.Backend for testing
type mockBackend struct {
	stored  []core.BoardObject
	openErr error
	opened  *core.Board
	closed  bool
	put     []string
	deleted []string
	batches []core.BatchUpdatePlan
	updates []core.Update
}

func (b *mockBackend) Init() error  { return nil }
func (b *mockBackend) Close() error { return nil }

func (b *mockBackend) OpenBoard(board *core.Board) ([]core.BoardObject, error) {
	if b.openErr != nil {
		return nil, b.openErr
	}
	b.opened = board
	return b.stored, nil
}

func (b *mockBackend) CloseBoard() error {
	b.closed = true
	return nil
}

func (b *mockBackend) PutObject(obj *core.BoardObject) error {
	b.put = append(b.put, obj.ID)
	return nil
}

func (b *mockBackend) DeleteObject(id string) error {
	b.deleted = append(b.deleted, id)
	return nil
}

func (b *mockBackend) ApplyBatch(plan core.BatchUpdatePlan) error {
	b.batches = append(b.batches, plan)
	return nil
}

func (b *mockBackend) ApplyUpdate(u core.Update) error {
	b.updates = append(b.updates, u)
	return nil
}

var _ storage.Backend = (*mockBackend)(nil)

func newTestService(backend storage.Backend) *Service {
	s := NewService(Dependencies{Drag: drag.DefaultConfig(), IndexTolerance: 4}, NewBoardContext())
	if backend != nil {
		s.SetBackend(backend)
	}
	return s
}

func rect(id string, x, y float64) core.BoardObject {
	return core.BoardObject{ID: id, Kind: core.KindRectangle, X: x, Y: y, Width: 100, Height: 50}
}

func TestBoardContext_Defaults(t *testing.T) {
	ctx := NewBoardContext()

	assert.Equal(t, "No board loaded", ctx.GetBoard().Name)
	_, _, ok := ctx.Active()
	assert.False(t, ok)
	assert.Nil(t, ctx.LogAttrs())
}

func TestOpenBoard_MergesStoredAndSeed(t *testing.T) {
	backend := &mockBackend{stored: []core.BoardObject{rect("a", 0, 0)}}
	s := newTestService(backend)

	res, err := s.OpenBoard(core.Board{ID: "b1", Name: "Plan"}, []core.BoardObject{
		rect("a", 500, 500), // already stored, ignored
		rect("b", 200, 0),
		{ID: "bad", Kind: "blob"},
	})
	require.NoError(t, err)

	assert.Equal(t, OpenBoardResult{BoardID: "b1", Objects: 2, Stored: 1}, res)
	assert.Equal(t, []string{"b"}, backend.put)
	require.NotNil(t, backend.opened)
	assert.False(t, backend.opened.OpenedAt.IsZero())

	session, ctrl, ok := s.GetBoardContext().Active()
	require.True(t, ok)
	require.NotNil(t, ctrl)
	a, ok := session.Source().Get("a")
	require.True(t, ok)
	assert.Equal(t, 0.0, a.X)

	attrs := s.GetBoardContext().LogAttrs()
	require.Len(t, attrs, 1)
	assert.Equal(t, "b1", attrs[0].Value.String())
}

func TestOpenBoard_Errors(t *testing.T) {
	s := newTestService(&mockBackend{openErr: errors.New("boom")})

	_, err := s.OpenBoard(core.Board{}, nil)
	assert.Error(t, err)

	_, err = s.OpenBoard(core.Board{ID: "b1"}, nil)
	assert.ErrorContains(t, err, "boom")
	_, _, ok := s.GetBoardContext().Active()
	assert.False(t, ok)
}

func TestOpenBoard_ClosesPrevious(t *testing.T) {
	backend := &mockBackend{}
	s := newTestService(backend)

	_, err := s.OpenBoard(core.Board{ID: "b1"}, nil)
	require.NoError(t, err)
	_, err = s.OpenBoard(core.Board{ID: "b2"}, nil)
	require.NoError(t, err)

	assert.True(t, backend.closed)
	assert.Equal(t, "b2", s.GetBoardContext().GetBoard().ID)
}

func TestCloseBoard(t *testing.T) {
	backend := &mockBackend{}
	s := newTestService(backend)

	assert.ErrorIs(t, s.CloseBoard(), ErrNoBoard)

	_, err := s.OpenBoard(core.Board{ID: "b1"}, []core.BoardObject{rect("a", 0, 0)})
	require.NoError(t, err)
	_, ctrl, _ := s.GetBoardContext().Active()
	require.NoError(t, ctrl.Start("a"))

	require.NoError(t, s.CloseBoard())
	assert.True(t, backend.closed)
	assert.Equal(t, drag.Idle, ctrl.State())
	_, _, ok := s.GetBoardContext().Active()
	assert.False(t, ok)
}

func TestUpsertAndRemoveObject(t *testing.T) {
	backend := &mockBackend{}
	s := newTestService(backend)

	assert.ErrorIs(t, s.UpsertObject(rect("a", 0, 0)), ErrNoBoard)
	assert.ErrorIs(t, s.RemoveObject("a"), ErrNoBoard)

	_, err := s.OpenBoard(core.Board{ID: "b1"}, nil)
	require.NoError(t, err)

	require.NoError(t, s.UpsertObject(rect("a", 0, 0)))
	assert.ErrorIs(t, s.UpsertObject(core.BoardObject{ID: "x", Kind: "blob"}), ErrInvalidObject)
	assert.ErrorIs(t, s.UpsertObject(core.BoardObject{Kind: core.KindNote}), ErrInvalidObject)
	assert.Equal(t, []string{"a"}, backend.put)

	session, ctrl, _ := s.GetBoardContext().Active()
	ctrl.Click("a", false)
	assert.True(t, ctrl.Selection().Has("a"))

	require.NoError(t, s.RemoveObject("a"))
	require.NoError(t, s.RemoveObject("missing"))
	assert.Equal(t, []string{"a"}, backend.deleted)
	assert.False(t, ctrl.Selection().Has("a"))
	_, ok := session.Source().Get("a")
	assert.False(t, ok)
}

func TestSetViewport(t *testing.T) {
	s := newTestService(nil)

	assert.ErrorIs(t, s.SetViewport(geo.NewRect(0, 0, 100, 100)), ErrNoBoard)

	_, err := s.OpenBoard(core.Board{ID: "b1"}, []core.BoardObject{rect("a", 0, 0), rect("far", 5000, 5000)})
	require.NoError(t, err)

	assert.Error(t, s.SetViewport(geo.NewRect(0, 0, 0, 100)))
	require.NoError(t, s.SetViewport(geo.NewRect(-10, -10, 500, 500)))

	session, _, _ := s.GetBoardContext().Active()
	_, ok := session.Source().Get("far")
	assert.True(t, ok, "objects outside the viewport stay on the board")
}

// mockLogger implements dispatcher.Logger for testing
type mockLogger struct{}

func (mockLogger) Debug(string, ...any) {}
func (mockLogger) Info(string, ...any)  {}
func (mockLogger) Error(string, ...any) {}

func TestRegisterHandlers(t *testing.T) {
	backend := &mockBackend{}
	s := newTestService(backend)
	d, err := dispatcher.New(mockLogger{})
	require.NoError(t, err)
	s.RegisterHandlers(d)

	for _, cmd := range []string{"board:open", "board:close", "object:upsert", "object:remove", "viewport:set", "grid:set"} {
		assert.True(t, d.HasHandler(cmd), cmd)
	}

	payload, err := json.Marshal(OpenBoardPayload{
		Board:   core.Board{ID: "b1"},
		Objects: []core.BoardObject{rect("a", 0, 0)},
	})
	require.NoError(t, err)
	result, err := d.Dispatch(dispatcher.Event{Command: "board:open", Payload: payload})
	require.NoError(t, err)
	assert.Equal(t, 1, result.(OpenBoardResult).Objects)
	assert.False(t, backend.opened.OpenedAt.IsZero())

	_, err = d.Dispatch(dispatcher.Event{Command: "object:upsert", Payload: json.RawMessage(`{"id":"n","kind":"note","x":10,"y":10,"width":80,"height":80}`)})
	require.NoError(t, err)
	_, err = d.Dispatch(dispatcher.Event{Command: "object:upsert", Payload: json.RawMessage(`{"id":`)})
	assert.Error(t, err)

	result, err = d.Dispatch(dispatcher.Event{Command: "grid:set", Payload: json.RawMessage(`{"enabled":true}`)})
	require.NoError(t, err)
	assert.Equal(t, true, result)
	_, ctrl, _ := s.GetBoardContext().Active()
	assert.True(t, ctrl.GridEnabled())

	_, err = d.Dispatch(dispatcher.Event{Command: "viewport:set", Payload: json.RawMessage(`{"x":0,"y":0,"width":800,"height":600}`)})
	require.NoError(t, err)

	_, err = d.Dispatch(dispatcher.Event{Command: "object:remove", Payload: json.RawMessage(`{"id":"n"}`)})
	require.NoError(t, err)
	assert.Equal(t, []string{"n"}, backend.deleted)

	_, err = d.Dispatch(dispatcher.Event{Command: "board:close"})
	require.NoError(t, err)
	assert.True(t, backend.closed)

	_, err = d.Dispatch(dispatcher.Event{Command: "grid:set", Payload: json.RawMessage(`{"enabled":false}`)})
	assert.ErrorIs(t, err, ErrNoBoard)
}
