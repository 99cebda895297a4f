// Package batch assembles the update list produced by one finished gesture.
package batch

import (
	"slices"

	"github.com/planeboard/engine/pkg/core"
)

// Planner collects per-object patches. Each object appears once; a later Set
// for the same object replaces the earlier patch but keeps its position in
// the plan. Patch fields equal to the original object are dropped, and
// objects left with nothing to change are omitted.
type Planner struct {
	order     []string
	originals map[string]core.BoardObject
	patches   map[string]core.Patch
}

// NewPlanner returns an empty planner.
func NewPlanner() *Planner {
	return &Planner{
		originals: make(map[string]core.BoardObject),
		patches:   make(map[string]core.Patch),
	}
}

// Set records the patch for original.ID, replacing any earlier one.
func (p *Planner) Set(original core.BoardObject, patch core.Patch) {
	if _, ok := p.patches[original.ID]; !ok {
		p.order = append(p.order, original.ID)
		p.originals[original.ID] = original
	}
	p.patches[original.ID] = patch
}

// Merge overlays patch onto the patch already recorded for original.ID.
func (p *Planner) Merge(original core.BoardObject, patch core.Patch) {
	cur, ok := p.patches[original.ID]
	if !ok {
		p.Set(original, patch)
		return
	}
	if patch.X != nil || patch.Y != nil {
		cur.X, cur.Y = patch.X, patch.Y
	}
	if patch.Width != nil || patch.Height != nil {
		cur.Width, cur.Height = patch.Width, patch.Height
	}
	if patch.Rotation != nil {
		cur.Rotation = patch.Rotation
	}
	if patch.Points != nil {
		cur.Points = patch.Points
	}
	if patch.ParentFrameID != nil {
		cur.ParentFrameID = patch.ParentFrameID
	}
	p.patches[original.ID] = cur
}

// Has reports whether id already has a patch.
func (p *Planner) Has(id string) bool {
	_, ok := p.patches[id]
	return ok
}

// Len returns the number of objects recorded, including ones that may diff away.
func (p *Planner) Len() int {
	return len(p.order)
}

// Plan returns the deduplicated plan in first-recorded order.
func (p *Planner) Plan() core.BatchUpdatePlan {
	plan := make(core.BatchUpdatePlan, 0, len(p.order))
	for _, id := range p.order {
		patch := Diff(p.originals[id], p.patches[id])
		if patch.IsEmpty() {
			continue
		}
		plan = append(plan, core.Update{ObjectID: id, Patch: patch})
	}
	return plan
}

// Diff strips from patch every field that would not change obj. Position and
// size are compared as pairs: if either coordinate changes both are kept.
func Diff(obj core.BoardObject, patch core.Patch) core.Patch {
	var out core.Patch

	if patch.X != nil || patch.Y != nil {
		x, y := obj.X, obj.Y
		if patch.X != nil {
			x = *patch.X
		}
		if patch.Y != nil {
			y = *patch.Y
		}
		if x != obj.X || y != obj.Y {
			out.SetPosition(x, y)
		}
	}

	if patch.Width != nil || patch.Height != nil {
		w, h := obj.Width, obj.Height
		if patch.Width != nil {
			w = *patch.Width
		}
		if patch.Height != nil {
			h = *patch.Height
		}
		if w != obj.Width || h != obj.Height {
			out.SetSize(w, h)
		}
	}

	if patch.Rotation != nil && *patch.Rotation != obj.Rotation {
		out.Rotation = core.Float64Ptr(*patch.Rotation)
	}

	if patch.Points != nil && !slices.Equal(patch.Points, obj.Points) {
		out.Points = append([]float64(nil), patch.Points...)
	}

	// Absent and explicit "no parent" are different states, so a nil
	// original with an explicit "" is still a change.
	if patch.ParentFrameID != nil {
		if obj.ParentFrameID == nil || *obj.ParentFrameID != *patch.ParentFrameID {
			out.ParentFrameID = core.StringPtr(*patch.ParentFrameID)
		}
	}

	return out
}
