// Package drag turns pointer motion into corrected object geometry and,
// when a gesture finishes, into a batch of object updates.
//
// One gesture is active at a time. Gesture state, not a lock, provides the
// mutual exclusion, so a Controller must be driven from a single goroutine.
package drag

import (
	"errors"
	"log/slog"
	"time"

	"github.com/planeboard/engine/internal/align"
	"github.com/planeboard/engine/internal/board"
	"github.com/planeboard/engine/internal/channel"
	"github.com/planeboard/engine/internal/frames"
	"github.com/planeboard/engine/internal/geo"
	"github.com/planeboard/engine/internal/grid"
	"github.com/planeboard/engine/pkg/core"
)

var (
	// ErrGestureActive is returned when a gesture starts while another is running.
	ErrGestureActive = errors.New("a gesture is already active")
	// ErrNoGesture is returned by Move and End when nothing is being dragged.
	ErrNoGesture = errors.New("no active gesture")
	// ErrUnknownObject is returned when none of the requested ids exist.
	ErrUnknownObject = errors.New("unknown object")
	// ErrNonFinite is returned when a transform carries NaN or infinite values.
	ErrNonFinite = errors.New("non-finite geometry")
)

// Kind is the state of the controller.
type Kind int

const (
	Idle Kind = iota
	Single
	Group
	FrameWithChildren
)

func (k Kind) String() string {
	switch k {
	case Single:
		return "single"
	case Group:
		return "group"
	case FrameWithChildren:
		return "frame"
	}
	return "idle"
}

// Config tunes the controller.
type Config struct {
	GridEnabled    bool
	GridUnit       float64
	SnapTolerance  float64
	SearchMargin   float64
	TitleBarHeight float64
	FramePadding   float64
	Predominance   float64
}

// DefaultConfig returns the stock engine settings.
func DefaultConfig() Config {
	return Config{
		GridUnit:       grid.DefaultUnit,
		SnapTolerance:  align.DefaultTolerance,
		SearchMargin:   align.DefaultSearchMargin,
		TitleBarHeight: frames.DefaultTitleBarHeight,
		FramePadding:   frames.DefaultPadding,
		Predominance:   frames.DefaultPredominance,
	}
}

// Offset is the visual displacement applied to group members and frame
// children while a gesture runs. A zero Offset with no ids means "none".
type Offset struct {
	IDs []string `json:"ids,omitempty"`
	DX  float64  `json:"dx"`
	DY  float64  `json:"dy"`
}

// Dependencies are the collaborators a Controller is built from.
type Dependencies struct {
	Board  *board.Session
	Logger *slog.Logger
	// Guides receives the alignment guide list at most once per frame.
	Guides channel.Sender[[]align.Guide]
	// Offsets receives the group/frame visual offset at most once per frame.
	Offsets channel.Sender[Offset]
}

// MoveResult is what the rendering surface needs after one pointer sample.
type MoveResult struct {
	X          float64       `json:"x"`
	Y          float64       `json:"y"`
	Offset     Offset        `json:"offset"`
	Guides     []align.Guide `json:"guides"`
	DropTarget string        `json:"dropTarget,omitempty"`
}

// gesture is the DragSession: created on start, discarded on every exit path.
type gesture struct {
	kind      Kind
	ids       []string
	anchor    geo.Rect
	exempt    map[string]struct{}
	originals map[string]core.BoardObject
	children  map[string][]string

	moved      bool
	rawDX      float64
	rawDY      float64
	x, y       float64
	dropTarget string
	started    time.Time
}

// Controller is the drag state machine for one board.
type Controller struct {
	cfg      Config
	board    *board.Session
	snapper  grid.Snapper
	aligner  *align.Engine
	resolver *frames.Resolver
	log      *slog.Logger
	metrics  *metrics

	selection *core.SelectionSet
	guides    *channel.Latest[[]align.Guide]
	offsets   *channel.Latest[Offset]

	active     *gesture
	correctors map[string]Corrector
}

// New creates a controller bound to deps.Board.
func New(cfg Config, deps Dependencies) (*Controller, error) {
	if deps.Board == nil {
		return nil, errors.New("drag: board session is required")
	}
	m, err := newMetrics()
	if err != nil {
		return nil, err
	}
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Controller{
		cfg:        cfg,
		board:      deps.Board,
		snapper:    grid.New(cfg.GridUnit),
		aligner:    align.New(cfg.SnapTolerance, cfg.SearchMargin),
		resolver:   frames.NewResolver(cfg.TitleBarHeight, cfg.FramePadding, cfg.Predominance),
		log:        log.With("board", deps.Board.ID),
		metrics:    m,
		selection:  core.NewSelectionSet(),
		guides:     channel.NewLatest(deps.Guides),
		offsets:    channel.NewLatest(deps.Offsets),
		correctors: make(map[string]Corrector),
	}, nil
}

// SetGridEnabled toggles grid-snap mode. While enabled no guides are produced.
func (c *Controller) SetGridEnabled(on bool) {
	c.cfg.GridEnabled = on
}

// GridEnabled reports whether grid-snap mode is on.
func (c *Controller) GridEnabled() bool {
	return c.cfg.GridEnabled
}

// State returns the kind of the active gesture, or Idle.
func (c *Controller) State() Kind {
	if c.active == nil {
		return Idle
	}
	return c.active.kind
}

// Guides returns the frame coalescer for guide output.
func (c *Controller) Guides() *channel.Latest[[]align.Guide] {
	return c.guides
}

// Offsets returns the frame coalescer for visual offsets.
func (c *Controller) Offsets() *channel.Latest[Offset] {
	return c.offsets
}

// Tick flushes the per-frame presentation channels. Hosts call it once per
// rendering frame when they do not run the coalescers themselves.
func (c *Controller) Tick() {
	c.guides.Flush()
	c.offsets.Flush()
}

// Start begins a gesture over ids. One id drags a single object (or a frame
// with its children); two or more drag the group as one rigid body.
// Unknown ids are skipped.
func (c *Controller) Start(ids ...string) error {
	if c.active != nil {
		return ErrGestureActive
	}

	src := c.board.Source()
	g := &gesture{
		exempt:    make(map[string]struct{}),
		originals: make(map[string]core.BoardObject),
		children:  make(map[string][]string),
		started:   time.Now(),
	}

	var boxes []geo.Rect
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		obj, ok := src.Get(id)
		if !ok {
			continue
		}
		g.ids = append(g.ids, id)
		g.originals[id] = obj
		boxes = append(boxes, geo.NewRect(obj.Bounds()))
	}
	if len(g.ids) == 0 {
		return ErrUnknownObject
	}

	g.anchor, _ = geo.UnionAll(boxes)
	g.x, g.y = g.anchor.X, g.anchor.Y

	// Children of dragged frames travel with them; snapshot them now.
	for _, id := range g.ids {
		if !g.originals[id].Kind.IsFrame() {
			continue
		}
		for _, child := range c.board.Children.Children(id) {
			obj, ok := src.Get(child)
			if !ok {
				continue
			}
			g.children[id] = append(g.children[id], child)
			if _, selected := g.originals[child]; !selected {
				g.originals[child] = obj
			}
		}
	}

	switch {
	case len(g.ids) > 1:
		g.kind = Group
	case len(g.children[g.ids[0]]) > 0:
		g.kind = FrameWithChildren
	default:
		g.kind = Single
	}

	for id := range g.originals {
		g.exempt[id] = struct{}{}
	}

	c.active = g
	// group and frame gestures are exempt from Start, a single drag from its first Move
	if g.kind != Single {
		c.board.Index.SetDragging(keys(g.exempt)...)
	}
	c.metrics.gestureStarted(g.kind)
	c.log.Debug("gesture started", "kind", g.kind.String(), "objects", len(g.ids), "exempt", len(g.exempt))
	return nil
}

// StartSelection starts a gesture over the current selection.
func (c *Controller) StartSelection() error {
	return c.Start(c.selection.IDs()...)
}

// Move applies a pointer sample, expressed as the raw offset from the
// gesture's start point. Non-finite samples are dropped and the previous
// result is returned.
func (c *Controller) Move(dx, dy float64) (MoveResult, error) {
	g := c.active
	if g == nil {
		return MoveResult{}, ErrNoGesture
	}
	if !geo.Finite(dx, dy) {
		return c.result(g, nil), nil
	}

	start := time.Now()
	if !g.moved {
		g.moved = true
		c.board.Index.SetDragging(keys(g.exempt)...)
	}
	g.rawDX, g.rawDY = dx, dy

	rawX, rawY := g.anchor.X+dx, g.anchor.Y+dy
	var guides []align.Guide
	if c.cfg.GridEnabled {
		g.x, g.y = c.snapper.SnapPoint(rawX, rawY)
		guides = []align.Guide{}
	} else {
		res := c.aligner.AlignWithIndex(g.anchor.MoveTo(rawX, rawY), c.board.Index, c.board.Candidates(), g.isExempt)
		g.x, g.y = res.X, res.Y
		guides = res.Guides
	}

	if g.kind == Single {
		g.dropTarget = c.dropTarget(g)
	}

	c.guides.Publish(guides)
	out := c.result(g, guides)
	if g.kind != Single {
		c.offsets.Publish(out.Offset)
	}
	c.metrics.moveComputed(g.kind, float64(time.Since(start).Microseconds())/1000)
	return out, nil
}

// End commits the gesture and returns its batch. Cleanup runs on every path.
func (c *Controller) End() (core.BatchUpdatePlan, error) {
	g := c.active
	if g == nil {
		return nil, ErrNoGesture
	}
	defer c.cleanup()

	if !g.moved {
		c.metrics.gestureEnded(g.kind, 0)
		return core.BatchUpdatePlan{}, nil
	}

	var plan core.BatchUpdatePlan
	switch g.kind {
	case Group:
		plan = c.commitGroup(g)
	case FrameWithChildren:
		plan = c.commitFrame(g)
	default:
		plan = c.commitSingle(g)
	}

	c.metrics.gestureEnded(g.kind, len(plan))
	c.log.Debug("gesture committed",
		"kind", g.kind.String(),
		"updates", len(plan),
		"duration", time.Since(g.started),
	)
	return plan, nil
}

// Cancel abandons the active gesture without producing a batch.
func (c *Controller) Cancel() {
	g := c.active
	if g == nil {
		return
	}
	defer c.cleanup()
	c.metrics.gestureCancelled(g.kind)
	c.log.Debug("gesture cancelled", "kind", g.kind.String())
}

func (c *Controller) cleanup() {
	c.board.Index.ClearDragging()
	c.active = nil
	c.guides.Publish([]align.Guide{})
	c.offsets.Publish(Offset{})
}

func (c *Controller) result(g *gesture, guides []align.Guide) MoveResult {
	if guides == nil {
		guides = []align.Guide{}
	}
	out := MoveResult{
		X:          g.x,
		Y:          g.y,
		Guides:     guides,
		DropTarget: g.dropTarget,
	}
	if g.kind != Single {
		out.Offset = Offset{IDs: g.followers(), DX: g.x - g.anchor.X, DY: g.y - g.anchor.Y}
	}
	return out
}

func (c *Controller) dropTarget(g *gesture) string {
	obj := g.originals[g.ids[0]]
	if !obj.Kind.ParticipatesInContainment() {
		return ""
	}
	obj.X, obj.Y = g.x, g.y
	return c.resolver.Resolve(obj, c.board.Frames())
}

func (g *gesture) isExempt(id string) bool {
	_, ok := g.exempt[id]
	return ok
}

// followers returns every id that moves by the visual offset, sorted.
func (g *gesture) followers() []string {
	return keys(g.exempt)
}
