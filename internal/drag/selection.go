package drag

import "github.com/planeboard/engine/pkg/core"

// Selection returns the controller's selection set.
func (c *Controller) Selection() *core.SelectionSet {
	return c.selection
}

// Click updates the selection for a click on id. A plain click replaces the
// selection with id; a modified click toggles id and leaves the rest alone.
// Clicks on ids missing from the board are ignored.
func (c *Controller) Click(id string, modifier bool) {
	if _, ok := c.board.Source().Get(id); !ok {
		return
	}
	if modifier {
		c.selection.Toggle(id)
		return
	}
	c.selection.Replace(id)
}

// ClearSelection empties the selection, as a click on the empty board does.
func (c *Controller) ClearSelection() {
	c.selection.Replace()
}

// EnterFrame selects exactly the direct children of frameID. It reports
// false, leaving the selection untouched, when the frame has no children.
func (c *Controller) EnterFrame(frameID string) bool {
	var kids []string
	src := c.board.Source()
	for _, id := range c.board.Children.Children(frameID) {
		if _, ok := src.Get(id); ok {
			kids = append(kids, id)
		}
	}
	if len(kids) == 0 {
		return false
	}
	c.selection.Replace(kids...)
	return true
}
