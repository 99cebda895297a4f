package worker

import (
	"slices"
	"time"

	"github.com/planeboard/engine/internal/board"
	"github.com/planeboard/engine/internal/dispatcher"
	"github.com/planeboard/engine/internal/drag"
	"github.com/planeboard/engine/internal/grid"
	"github.com/planeboard/engine/internal/handlers"
	"github.com/planeboard/engine/pkg/core"
)

// Persistence commands, handled off the input path.
const (
	CommandStoreBatch  = "store:batch"
	CommandStoreUpdate = "store:update"
)

// DragStartPayload starts a gesture. No ids drags the current selection.
type DragStartPayload struct {
	IDs []string `json:"ids,omitempty"`
}

// DragStartResult reports the gesture kind.
type DragStartResult struct {
	Kind string `json:"kind"`
}

// DragMovePayload is one pointer sample as the offset from the gesture start.
type DragMovePayload struct {
	DX float64 `json:"dx"`
	DY float64 `json:"dy"`
}

// TransformEndPayload is the final node state of a resize or rotate gesture.
type TransformEndPayload struct {
	ID       string      `json:"id"`
	X        float64     `json:"x"`
	Y        float64     `json:"y"`
	ScaleX   float64     `json:"scaleX"`
	ScaleY   float64     `json:"scaleY"`
	Rotation float64     `json:"rotation"`
	Handle   grid.Handle `json:"handle,omitempty"`
}

// TransformEndResult carries the final attributes and the persisted update.
type TransformEndResult struct {
	Attrs  drag.TransformResult `json:"attrs"`
	Update core.Update          `json:"update"`
}

// ClickPayload is a click on an object.
type ClickPayload struct {
	ID       string `json:"id"`
	Modifier bool   `json:"modifier,omitempty"`
}

// FramePayload names a frame.
type FramePayload struct {
	ID string `json:"id"`
}

// SelectionResult is the selection after a selection command.
type SelectionResult struct {
	Changed  bool     `json:"changed"`
	Selected []string `json:"selected"`
}

// RegisterHandlers registers all event handlers with the dispatcher.
// Gesture commands run synchronously on the caller's goroutine; the
// controller relies on that for mutual exclusion. Persistence is buffered
// and blocks instead of dropping, so no committed gesture is lost.
func (m *Manager) RegisterHandlers(d *dispatcher.Dispatcher) {
	m.dispatcher = d

	d.Register("drag:start", m.handleDragStart, dispatcher.Logged())
	d.Register("drag:move", m.handleDragMove)
	d.Register("drag:end", m.handleDragEnd, dispatcher.Logged())
	d.Register("drag:cancel", m.handleDragCancel, dispatcher.Logged())
	d.Register("transform:end", m.handleTransformEnd, dispatcher.Logged())

	d.Register("select:click", m.handleClick, dispatcher.Logged())
	d.Register("select:clear", m.handleClearSelection, dispatcher.Logged())
	d.Register("frame:enter", m.handleEnterFrame, dispatcher.Logged())
	d.Register("frame:tick", m.handleTick)

	d.Register(CommandStoreBatch, m.handleStoreBatch, dispatcher.Buffered(1000), dispatcher.Blocking(), dispatcher.Logged())
	d.Register(CommandStoreUpdate, m.handleStoreUpdate, dispatcher.Buffered(1000), dispatcher.Blocking(), dispatcher.Logged())
}

func (m *Manager) active() (*board.Session, *drag.Controller, error) {
	session, ctrl, ok := m.deps.Context.Active()
	if !ok {
		return nil, nil, handlers.ErrNoBoard
	}
	return session, ctrl, nil
}

func (m *Manager) handleDragStart(e dispatcher.Event) (any, error) {
	_, ctrl, err := m.active()
	if err != nil {
		return nil, err
	}
	p, err := dispatcher.Decode[DragStartPayload](e)
	if err != nil {
		return nil, err
	}

	if len(p.IDs) == 0 {
		err = ctrl.StartSelection()
	} else {
		err = ctrl.Start(p.IDs...)
	}
	if err != nil {
		return nil, err
	}
	m.gestureStart = e.Timestamp
	return DragStartResult{Kind: ctrl.State().String()}, nil
}

func (m *Manager) handleDragMove(e dispatcher.Event) (any, error) {
	_, ctrl, err := m.active()
	if err != nil {
		return nil, err
	}
	p, err := dispatcher.Decode[DragMovePayload](e)
	if err != nil {
		return nil, err
	}
	return ctrl.Move(p.DX, p.DY)
}

func (m *Manager) handleDragEnd(e dispatcher.Event) (any, error) {
	session, ctrl, err := m.active()
	if err != nil {
		return nil, err
	}
	kind := ctrl.State()
	plan, err := ctrl.End()
	if err != nil {
		return nil, err
	}

	if len(plan) > 0 {
		session.Apply(plan)
		m.store(CommandStoreBatch, plan)
	}
	m.recordGesture(kind.String(), len(plan), m.gestureStart, e.Timestamp)
	m.gestureStart = time.Time{}
	return plan, nil
}

func (m *Manager) handleDragCancel(dispatcher.Event) (any, error) {
	_, ctrl, err := m.active()
	if err != nil {
		return nil, err
	}
	ctrl.Cancel()
	m.gestureStart = time.Time{}
	return nil, nil
}

func (m *Manager) handleTransformEnd(e dispatcher.Event) (any, error) {
	session, ctrl, err := m.active()
	if err != nil {
		return nil, err
	}
	p, err := dispatcher.Decode[TransformEndPayload](e)
	if err != nil {
		return nil, err
	}

	attrs, update, err := ctrl.TransformEnd(p.ID, drag.TransformInput{
		X:        p.X,
		Y:        p.Y,
		ScaleX:   p.ScaleX,
		ScaleY:   p.ScaleY,
		Rotation: p.Rotation,
		Handle:   p.Handle,
	})
	if err != nil {
		return nil, err
	}

	updates := 0
	if !update.Patch.IsEmpty() {
		updates = 1
		session.Apply(core.BatchUpdatePlan{update})
		m.store(CommandStoreUpdate, update)
	}
	m.recordGesture("transform", updates, time.Time{}, e.Timestamp)
	return TransformEndResult{Attrs: attrs, Update: update}, nil
}

func (m *Manager) handleClick(e dispatcher.Event) (any, error) {
	_, ctrl, err := m.active()
	if err != nil {
		return nil, err
	}
	p, err := dispatcher.Decode[ClickPayload](e)
	if err != nil {
		return nil, err
	}
	before := ctrl.Selection().IDs()
	ctrl.Click(p.ID, p.Modifier)
	after := ctrl.Selection().IDs()
	return SelectionResult{Changed: !slices.Equal(before, after), Selected: after}, nil
}

func (m *Manager) handleClearSelection(dispatcher.Event) (any, error) {
	_, ctrl, err := m.active()
	if err != nil {
		return nil, err
	}
	changed := ctrl.Selection().Len() > 0
	ctrl.ClearSelection()
	return SelectionResult{Changed: changed, Selected: ctrl.Selection().IDs()}, nil
}

func (m *Manager) handleEnterFrame(e dispatcher.Event) (any, error) {
	_, ctrl, err := m.active()
	if err != nil {
		return nil, err
	}
	p, err := dispatcher.Decode[FramePayload](e)
	if err != nil {
		return nil, err
	}
	entered := ctrl.EnterFrame(p.ID)
	return SelectionResult{Changed: entered, Selected: ctrl.Selection().IDs()}, nil
}

func (m *Manager) handleTick(dispatcher.Event) (any, error) {
	_, ctrl, err := m.active()
	if err != nil {
		return nil, err
	}
	ctrl.Tick()
	return nil, nil
}

func (m *Manager) handleStoreBatch(e dispatcher.Event) (any, error) {
	plan, err := dispatcher.Decode[core.BatchUpdatePlan](e)
	if err != nil {
		return nil, err
	}
	return nil, m.backend.ApplyBatch(plan)
}

func (m *Manager) handleStoreUpdate(e dispatcher.Event) (any, error) {
	u, err := dispatcher.Decode[core.Update](e)
	if err != nil {
		return nil, err
	}
	return nil, m.backend.ApplyUpdate(u)
}
