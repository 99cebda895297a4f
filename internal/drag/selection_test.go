package drag

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClick(t *testing.T) {
	h := newHarness(t, false, rect("A", 0, 0, 10, 10), rect("B", 20, 0, 10, 10))

	h.ctrl.Click("A", false)
	assert.Equal(t, []string{"A"}, h.ctrl.Selection().IDs())

	h.ctrl.Click("B", true)
	assert.Equal(t, []string{"A", "B"}, h.ctrl.Selection().IDs())

	h.ctrl.Click("A", true)
	assert.Equal(t, []string{"B"}, h.ctrl.Selection().IDs())

	h.ctrl.Click("missing", false)
	assert.Equal(t, []string{"B"}, h.ctrl.Selection().IDs())

	h.ctrl.Click("A", false)
	assert.Equal(t, []string{"A"}, h.ctrl.Selection().IDs())

	h.ctrl.ClearSelection()
	assert.Zero(t, h.ctrl.Selection().Len())
}

func TestEnterFrame(t *testing.T) {
	h := newHarness(t, false,
		frameObj("F", 0, 0, 400, 400),
		childOf(rect("D", 150, 150, 50, 50), "F"),
		childOf(rect("C", 50, 50, 50, 50), "F"),
		frameObj("Empty", 500, 0, 100, 100),
		rect("X", 1000, 0, 10, 10),
	)
	h.ctrl.Click("X", false)

	assert.False(t, h.ctrl.EnterFrame("Empty"))
	assert.Equal(t, []string{"X"}, h.ctrl.Selection().IDs())

	require.True(t, h.ctrl.EnterFrame("F"))
	assert.Equal(t, []string{"C", "D"}, h.ctrl.Selection().IDs())
}

func TestPositionCorrector(t *testing.T) {
	h := newHarness(t, false, rect("A", 0, 0, 100, 100), rect("B", 300, 0, 100, 100))

	fix := h.ctrl.PositionCorrector("A")
	_ = h.ctrl.PositionCorrector("A")
	assert.Len(t, h.ctrl.correctors, 1)

	x, y := fix(150, 3)
	assert.Equal(t, 150.0, x)
	assert.Equal(t, 0.0, y)

	h.ctrl.SetGridEnabled(true)
	x, y = fix(151, 3)
	assert.Equal(t, []float64{160, 0}, []float64{x, y})

	h.board.Remove("A")
	x, y = fix(151, 3)
	assert.Equal(t, []float64{151, 3}, []float64{x, y}, "vanished objects pass through")

	assert.Equal(t, 1, h.ctrl.Prune())
	assert.Empty(t, h.ctrl.correctors)
}
