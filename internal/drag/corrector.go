package drag

import (
	"github.com/planeboard/engine/internal/geo"
)

// Corrector maps a raw top-left position to the corrected one.
type Corrector func(x, y float64) (float64, float64)

// PositionCorrector returns the corrector for id. The same function value is
// returned for an id until Prune drops it, so the rendering surface can hold
// on to it. Unknown ids get a pass-through corrector.
func (c *Controller) PositionCorrector(id string) Corrector {
	if fn, ok := c.correctors[id]; ok {
		return fn
	}
	fn := func(x, y float64) (float64, float64) {
		return c.correct(id, x, y)
	}
	c.correctors[id] = fn
	return fn
}

// Prune forgets correctors whose object left the board.
func (c *Controller) Prune() int {
	src := c.board.Source()
	n := 0
	for id := range c.correctors {
		if _, ok := src.Get(id); !ok {
			delete(c.correctors, id)
			n++
		}
	}
	return n
}

func (c *Controller) correct(id string, x, y float64) (float64, float64) {
	if !geo.Finite(x, y) {
		return x, y
	}
	obj, ok := c.board.Source().Get(id)
	if !ok {
		return x, y
	}
	if c.cfg.GridEnabled {
		return c.snapper.SnapPoint(x, y)
	}

	skip := func(other string) bool {
		if other == id {
			return true
		}
		if c.active != nil {
			return c.active.isExempt(other)
		}
		return false
	}
	box := geo.NewRect(x, y, obj.Width, obj.Height)
	res := c.aligner.AlignWithIndex(box, c.board.Index, c.board.Candidates(), skip)
	return res.X, res.Y
}
