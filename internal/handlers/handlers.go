// Package handlers owns the board lifecycle: opening and closing boards and
// keeping the live object set in sync with the host.
package handlers

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/planeboard/engine/internal/align"
	"github.com/planeboard/engine/internal/board"
	"github.com/planeboard/engine/internal/channel"
	"github.com/planeboard/engine/internal/dispatcher"
	"github.com/planeboard/engine/internal/drag"
	"github.com/planeboard/engine/internal/geo"
	"github.com/planeboard/engine/internal/storage"
	"github.com/planeboard/engine/pkg/core"
)

var (
	// ErrNoBoard is returned by commands that need an open board.
	ErrNoBoard = errors.New("no board open")
	// ErrInvalidObject is returned for objects the engine cannot work with.
	ErrInvalidObject = errors.New("invalid object")
)

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger         *slog.Logger
	Drag           drag.Config
	IndexTolerance float64
	Guides         channel.Sender[[]align.Guide]
	Offsets        channel.Sender[drag.Offset]
}

// Service handles board lifecycle and object sync commands.
type Service struct {
	deps    Dependencies
	ctx     *BoardContext
	backend storage.Backend
	log     *slog.Logger

	// queued persistence events are drained before writing directly
	dispatcher *dispatcher.Dispatcher
}

// NewService creates a new handler service
func NewService(deps Dependencies, ctx *BoardContext) *Service {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		deps: deps,
		ctx:  ctx,
		log:  log,
	}
}

// GetBoardContext returns the board context
func (s *Service) GetBoardContext() *BoardContext {
	return s.ctx
}

// SetBackend sets the storage backend for board open/close handling
func (s *Service) SetBackend(b storage.Backend) {
	s.backend = b
}

// OpenBoardPayload is the payload of board:open. Objects seed the board
// when the backend does not already hold them.
type OpenBoardPayload struct {
	Board   core.Board         `json:"board"`
	Objects []core.BoardObject `json:"objects,omitempty"`
}

// OpenBoardResult reports what board:open loaded.
type OpenBoardResult struct {
	BoardID string `json:"boardId"`
	Objects int    `json:"objects"`
	Stored  int    `json:"stored"`
}

// RemoveObjectPayload is the payload of object:remove.
type RemoveObjectPayload struct {
	ID string `json:"id"`
}

// ViewportPayload is the visible board area.
type ViewportPayload struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// GridPayload toggles grid-snap mode.
type GridPayload struct {
	Enabled bool `json:"enabled"`
}

// RegisterHandlers registers the board lifecycle commands with the dispatcher.
func (s *Service) RegisterHandlers(d *dispatcher.Dispatcher) {
	s.dispatcher = d
	d.Register("board:open", s.handleOpenBoard, dispatcher.Logged())
	d.Register("board:close", s.handleCloseBoard, dispatcher.Logged())
	d.Register("object:upsert", s.handleUpsertObject, dispatcher.Logged())
	d.Register("object:remove", s.handleRemoveObject, dispatcher.Logged())
	d.Register("viewport:set", s.handleSetViewport, dispatcher.Logged())
	d.Register("grid:set", s.handleSetGrid, dispatcher.Logged())
}

func (s *Service) handleOpenBoard(e dispatcher.Event) (any, error) {
	p, err := dispatcher.Decode[OpenBoardPayload](e)
	if err != nil {
		return nil, err
	}
	if p.Board.OpenedAt.IsZero() {
		p.Board.OpenedAt = e.Timestamp
	}
	return s.OpenBoard(p.Board, p.Objects)
}

func (s *Service) handleCloseBoard(dispatcher.Event) (any, error) {
	return nil, s.CloseBoard()
}

func (s *Service) handleUpsertObject(e dispatcher.Event) (any, error) {
	obj, err := dispatcher.Decode[core.BoardObject](e)
	if err != nil {
		return nil, err
	}
	return nil, s.UpsertObject(obj)
}

func (s *Service) handleRemoveObject(e dispatcher.Event) (any, error) {
	p, err := dispatcher.Decode[RemoveObjectPayload](e)
	if err != nil {
		return nil, err
	}
	return nil, s.RemoveObject(p.ID)
}

func (s *Service) handleSetViewport(e dispatcher.Event) (any, error) {
	p, err := dispatcher.Decode[ViewportPayload](e)
	if err != nil {
		return nil, err
	}
	return nil, s.SetViewport(geo.NewRect(p.X, p.Y, p.Width, p.Height))
}

func (s *Service) handleSetGrid(e dispatcher.Event) (any, error) {
	p, err := dispatcher.Decode[GridPayload](e)
	if err != nil {
		return nil, err
	}
	_, ctrl, ok := s.ctx.Active()
	if !ok {
		return nil, ErrNoBoard
	}
	ctrl.SetGridEnabled(p.Enabled)
	return p.Enabled, nil
}

// OpenBoard loads b from the backend, adds the seed objects the backend
// does not know yet and binds a fresh session and controller to it. An
// already open board is closed first.
func (s *Service) OpenBoard(b core.Board, seed []core.BoardObject) (OpenBoardResult, error) {
	if b.ID == "" {
		return OpenBoardResult{}, errors.New("board id is required")
	}
	if _, _, open := s.ctx.Active(); open {
		if err := s.CloseBoard(); err != nil {
			s.log.Warn("Failed to close previous board", "error", err)
		}
	}
	if b.OpenedAt.IsZero() {
		b.OpenedAt = time.Now()
	}

	var objects []core.BoardObject
	if s.backend != nil {
		stored, err := s.backend.OpenBoard(&b)
		if err != nil {
			return OpenBoardResult{}, fmt.Errorf("opening board %s: %w", b.ID, err)
		}
		objects = stored
	}
	res := OpenBoardResult{BoardID: b.ID, Stored: len(objects)}

	known := make(map[string]struct{}, len(objects))
	for _, obj := range objects {
		known[obj.ID] = struct{}{}
	}
	for _, obj := range seed {
		if _, ok := known[obj.ID]; ok {
			continue
		}
		if err := validateObject(obj); err != nil {
			s.log.Warn("Skipping seed object", "error", err)
			continue
		}
		known[obj.ID] = struct{}{}
		objects = append(objects, obj)
		if s.backend != nil {
			if err := s.backend.PutObject(&obj); err != nil {
				return OpenBoardResult{}, fmt.Errorf("storing seed object %s: %w", obj.ID, err)
			}
		}
	}

	session := board.NewSession(b.ID, s.deps.IndexTolerance, objects...)
	ctrl, err := drag.New(s.deps.Drag, drag.Dependencies{
		Board:   session,
		Logger:  s.log,
		Guides:  s.deps.Guides,
		Offsets: s.deps.Offsets,
	})
	if err != nil {
		return OpenBoardResult{}, err
	}

	s.ctx.Set(&b, session, ctrl)
	res.Objects = session.Objects.Len()
	s.log.Info("Board opened", "boardId", b.ID, "objects", res.Objects, "stored", res.Stored)
	return res, nil
}

// CloseBoard cancels any running gesture and closes the board in the backend.
func (s *Service) CloseBoard() error {
	_, ctrl, ok := s.ctx.Active()
	if !ok {
		return ErrNoBoard
	}
	ctrl.Cancel()
	id := s.ctx.GetBoard().ID
	s.ctx.Clear()

	if s.backend != nil {
		s.drain()
		if err := s.backend.CloseBoard(); err != nil {
			return fmt.Errorf("closing board %s: %w", id, err)
		}
	}
	s.log.Info("Board closed", "boardId", id)
	return nil
}

// UpsertObject adds or replaces an object that the host created or edited.
func (s *Service) UpsertObject(obj core.BoardObject) error {
	session, _, ok := s.ctx.Active()
	if !ok {
		return ErrNoBoard
	}
	if err := validateObject(obj); err != nil {
		return err
	}
	session.Upsert(obj)
	if s.backend != nil {
		s.drain()
		return s.backend.PutObject(&obj)
	}
	return nil
}

// RemoveObject drops id from the board. Unknown ids are ignored.
func (s *Service) RemoveObject(id string) error {
	session, ctrl, ok := s.ctx.Active()
	if !ok {
		return ErrNoBoard
	}
	if _, exists := session.Source().Get(id); !exists {
		return nil
	}
	session.Remove(id)
	ctrl.Selection().Remove(id)
	ctrl.Prune()
	if s.backend != nil {
		s.drain()
		return s.backend.DeleteObject(id)
	}
	return nil
}

// drain waits for queued batch writes so direct writes land after them.
func (s *Service) drain() {
	if s.dispatcher != nil {
		s.dispatcher.Drain()
	}
}

// SetViewport limits the spatial index of the open board to view.
func (s *Service) SetViewport(view geo.Rect) error {
	session, _, ok := s.ctx.Active()
	if !ok {
		return ErrNoBoard
	}
	if !geo.Finite(view.X, view.Y, view.Width, view.Height) || view.Width <= 0 || view.Height <= 0 {
		return fmt.Errorf("invalid viewport %+v", view)
	}
	session.SetViewport(view)
	return nil
}

func validateObject(obj core.BoardObject) error {
	if obj.ID == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidObject)
	}
	if !obj.Kind.Valid() {
		return fmt.Errorf("%w: %s has unknown kind %q", ErrInvalidObject, obj.ID, obj.Kind)
	}
	if !geo.Finite(obj.X, obj.Y, obj.Width, obj.Height, obj.Rotation) || !geo.Finite(obj.Points...) {
		return fmt.Errorf("%w: %s has non-finite geometry", ErrInvalidObject, obj.ID)
	}
	return nil
}
