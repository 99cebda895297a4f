// Package align computes alignment guides between a dragged box and the
// boxes around it, and the position correction that snaps onto them.
package align

import (
	"math"

	"github.com/planeboard/engine/internal/geo"
)

// Defaults for the engine.
const (
	DefaultTolerance    = 4.0
	DefaultSearchMargin = 200.0
)

// Orientation of a guide line.
type Orientation string

const (
	Vertical   Orientation = "vertical"
	Horizontal Orientation = "horizontal"
)

// Feature is one of the three alignment features of a box on an axis.
type Feature int

const (
	FeatureMin Feature = iota
	FeatureCenter
	FeatureMax
)

// Guide is a line the dragged box snapped to. Vertical guides carry an x
// coordinate, horizontal guides a y coordinate.
type Guide struct {
	Orientation Orientation `json:"orientation"`
	Position    float64     `json:"position"`
	CandidateID string      `json:"candidateId"`
}

// Candidate is a box offered as a snap target.
type Candidate struct {
	ID     string
	Bounds geo.Rect
}

// Result is the outcome of one alignment pass.
type Result struct {
	X, Y   float64
	Guides []Guide
}

// Vertical returns the vertical guide, if any.
func (r Result) Vertical() (Guide, bool) {
	return r.guide(Vertical)
}

// Horizontal returns the horizontal guide, if any.
func (r Result) Horizontal() (Guide, bool) {
	return r.guide(Horizontal)
}

func (r Result) guide(o Orientation) (Guide, bool) {
	for _, g := range r.Guides {
		if g.Orientation == o {
			return g, true
		}
	}
	return Guide{}, false
}

// Index is the part of the spatial index the engine consults.
type Index interface {
	Query(rect geo.Rect) []string
	ActiveCount() int
}

// Source resolves candidate boxes from the live object set.
type Source interface {
	// Bounds returns the box of id; ok is false for unknown ids.
	Bounds(id string) (geo.Rect, bool)
	// AllBounds returns every known box in a stable order.
	AllBounds() []Candidate
}

// Engine matches edges and centers within Tolerance.
type Engine struct {
	Tolerance    float64
	SearchMargin float64
}

// New returns an engine; non-positive arguments select the defaults.
func New(tolerance, searchMargin float64) *Engine {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	if searchMargin <= 0 {
		searchMargin = DefaultSearchMargin
	}
	return &Engine{Tolerance: tolerance, SearchMargin: searchMargin}
}

type match struct {
	delta    float64
	position float64
	id       string
	found    bool
}

// Align compares the dragged box against candidates, per axis independently.
// Among matches within tolerance the smallest distance wins; ties go to the
// earliest candidate. Axes without a match keep the raw position.
func (e *Engine) Align(dragged geo.Rect, candidates []Candidate) Result {
	res := Result{X: dragged.X, Y: dragged.Y, Guides: []Guide{}}
	if !dragged.IsFinite() {
		return res
	}

	dx := axisFeatures(dragged.X, dragged.Width)
	dy := axisFeatures(dragged.Y, dragged.Height)

	var mx, my match
	for _, c := range candidates {
		if !c.Bounds.IsFinite() {
			continue
		}
		e.best(&mx, dx, axisFeatures(c.Bounds.X, c.Bounds.Width), c.ID)
		e.best(&my, dy, axisFeatures(c.Bounds.Y, c.Bounds.Height), c.ID)
	}

	if mx.found {
		res.X = dragged.X + mx.delta
		res.Guides = append(res.Guides, Guide{Orientation: Vertical, Position: mx.position, CandidateID: mx.id})
	}
	if my.found {
		res.Y = dragged.Y + my.delta
		res.Guides = append(res.Guides, Guide{Orientation: Horizontal, Position: my.position, CandidateID: my.id})
	}
	return res
}

// AlignWithIndex gathers candidates near dragged from idx and aligns against
// them. When the index holds no active entries every box known to src is
// evaluated instead, so small boards align without a populated index.
// skip excludes ids (the dragged objects) from the fallback scan.
func (e *Engine) AlignWithIndex(dragged geo.Rect, idx Index, src Source, skip func(id string) bool) Result {
	if !dragged.IsFinite() {
		return Result{X: dragged.X, Y: dragged.Y, Guides: []Guide{}}
	}

	var candidates []Candidate
	if idx == nil || idx.ActiveCount() == 0 {
		for _, c := range src.AllBounds() {
			if skip != nil && skip(c.ID) {
				continue
			}
			candidates = append(candidates, c)
		}
		return e.Align(dragged, candidates)
	}

	for _, id := range idx.Query(dragged.Expand(e.SearchMargin)) {
		if skip != nil && skip(id) {
			continue
		}
		b, ok := src.Bounds(id)
		if !ok {
			continue
		}
		candidates = append(candidates, Candidate{ID: id, Bounds: b})
	}
	return e.Align(dragged, candidates)
}

func (e *Engine) best(m *match, dragged, candidate [3]float64, id string) {
	for _, d := range dragged {
		for _, c := range candidate {
			delta := c - d
			abs := math.Abs(delta)
			if abs > e.Tolerance {
				continue
			}
			if !m.found || abs < math.Abs(m.delta) {
				*m = match{delta: delta, position: c, id: id, found: true}
			}
		}
	}
}

func axisFeatures(start, size float64) [3]float64 {
	return [3]float64{
		FeatureMin:    start,
		FeatureCenter: start + size/2,
		FeatureMax:    start + size,
	}
}
