package drag

import (
	"sort"

	"github.com/planeboard/engine/internal/batch"
	"github.com/planeboard/engine/internal/geo"
	"github.com/planeboard/engine/pkg/core"
)

// commitSingle writes the corrected position of one object, its new parent
// frame and, when the parent does not fully hold it, the grown frame.
func (c *Controller) commitSingle(g *gesture) core.BatchUpdatePlan {
	id := g.ids[0]
	obj, ok := c.board.Source().Get(id)
	if !ok {
		c.log.Debug("dragged object vanished", "id", id)
		return core.BatchUpdatePlan{}
	}

	planner := batch.NewPlanner()
	var patch core.Patch
	patch.SetPosition(g.x, g.y)

	if obj.Kind.ParticipatesInContainment() {
		moved := patch.Apply(obj)
		frameList := c.board.Frames()
		parent := c.resolver.Resolve(moved, frameList)
		if parent != obj.Parent() {
			patch.ParentFrameID = core.StringPtr(parent)
		}
		planner.Set(obj, patch)

		if parent != "" {
			if f, ok := findFrame(frameList, parent); ok {
				if grown, expand := c.resolver.Expand(f, geo.NewRect(moved.Bounds())); expand {
					var fp core.Patch
					fp.SetPosition(grown.X, grown.Y)
					fp.SetSize(grown.Width, grown.Height)
					planner.Set(f, fp)
				}
			}
		}
		return planner.Plan()
	}

	planner.Set(obj, patch)
	return planner.Plan()
}

// commitFrame moves a frame and every child by the frame's delta. Each child
// is grid-snapped on its own.
func (c *Controller) commitFrame(g *gesture) core.BatchUpdatePlan {
	id := g.ids[0]
	planner := batch.NewPlanner()
	src := c.board.Source()

	frame, ok := src.Get(id)
	if !ok {
		c.log.Debug("dragged frame vanished", "id", id)
		return core.BatchUpdatePlan{}
	}
	dx, dy := g.x-g.anchor.X, g.y-g.anchor.Y

	var fp core.Patch
	fp.SetPosition(g.x, g.y)
	planner.Set(frame, fp)

	for _, childID := range g.children[id] {
		child, ok := src.Get(childID)
		if !ok {
			continue
		}
		x, y := child.X+dx, child.Y+dy
		if c.cfg.GridEnabled {
			x, y = c.snapper.SnapPoint(x, y)
		}
		var cp core.Patch
		cp.SetPosition(x, y)
		planner.Set(child, cp)
	}
	return planner.Plan()
}

// commitGroup moves every selected object, and every unselected child of a
// selected frame, by one shared offset. Under grid-snap the correction is
// computed once from the group's top-left corner so the group stays rigid.
func (c *Controller) commitGroup(g *gesture) core.BatchUpdatePlan {
	dx, dy := g.x-g.anchor.X, g.y-g.anchor.Y
	if c.cfg.GridEnabled {
		cornerX, cornerY := g.anchor.X+g.rawDX, g.anchor.Y+g.rawDY
		snappedX, snappedY := c.snapper.SnapPoint(cornerX, cornerY)
		dx = g.rawDX + (snappedX - cornerX)
		dy = g.rawDY + (snappedY - cornerY)
	}

	src := c.board.Source()
	planner := batch.NewPlanner()
	movedSet := make(map[string]struct{})
	after := make(map[string]core.BoardObject)

	move := func(id string) {
		if _, done := movedSet[id]; done {
			return
		}
		obj, ok := src.Get(id)
		if !ok {
			return
		}
		movedSet[id] = struct{}{}
		var p core.Patch
		p.SetPosition(obj.X+dx, obj.Y+dy)
		planner.Set(obj, p)
		after[id] = p.Apply(obj)
	}

	for _, id := range g.ids {
		move(id)
		for _, child := range g.children[id] {
			move(child)
		}
	}

	// Frames are resolved at their post-move positions.
	var frameList []core.BoardObject
	for _, f := range c.board.Frames() {
		if moved, ok := after[f.ID]; ok {
			f = moved
		}
		frameList = append(frameList, f)
	}

	for _, id := range g.ids {
		obj, ok := after[id]
		if !ok || !obj.Kind.ParticipatesInContainment() {
			continue
		}
		parent := c.resolver.Resolve(obj, frameList)
		if parent != obj.Parent() {
			orig, _ := src.Get(id)
			planner.Merge(orig, core.Patch{ParentFrameID: core.StringPtr(parent)})
		}
	}
	return planner.Plan()
}

func findFrame(list []core.BoardObject, id string) (core.BoardObject, bool) {
	for _, f := range list {
		if f.ID == id {
			return f, true
		}
	}
	return core.BoardObject{}, false
}

func keys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
