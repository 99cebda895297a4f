package drag

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/planeboard/engine/internal/grid"
	"github.com/planeboard/engine/pkg/core"
)

func TestTransformEnd_Rect(t *testing.T) {
	tests := []struct {
		name string
		grid bool
		in   TransformInput
		want RectAttrs
	}{
		{
			name: "plain scale",
			in:   TransformInput{X: 0, Y: 0, ScaleX: 1.5, ScaleY: 0.5},
			want: RectAttrs{Width: 150, Height: 50},
		},
		{
			name: "floored at minimum size",
			in:   TransformInput{X: 0, Y: 0, ScaleX: 0.05, ScaleY: 2},
			want: RectAttrs{Width: core.MinSize, Height: 200},
		},
		{
			name: "negative scale flips to magnitude",
			in:   TransformInput{X: 0, Y: 0, ScaleX: -1, ScaleY: 1},
			want: RectAttrs{Width: 100, Height: 100},
		},
		{
			name: "grid snaps the moving edge only",
			grid: true,
			in:   TransformInput{X: 0, Y: 0, ScaleX: 1.13, ScaleY: 1, Handle: grid.HandleRight},
			want: RectAttrs{Width: 120, Height: 100},
		},
		{
			name: "rotation normalized",
			in:   TransformInput{X: 0, Y: 0, ScaleX: 1, ScaleY: 1, Rotation: -90},
			want: RectAttrs{Width: 100, Height: 100, Rotation: 270},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, tt.grid, rect("A", 0, 0, 100, 100))
			res, upd, err := h.ctrl.TransformEnd("A", tt.in)
			require.NoError(t, err)

			attrs, ok := res.(RectAttrs)
			require.True(t, ok)
			assert.InDelta(t, tt.want.X, attrs.X, 1e-9)
			assert.InDelta(t, tt.want.Y, attrs.Y, 1e-9)
			assert.InDelta(t, tt.want.Width, attrs.Width, 1e-9)
			assert.InDelta(t, tt.want.Height, attrs.Height, 1e-9)
			assert.InDelta(t, tt.want.Rotation, attrs.Rotation, 1e-9)
			assert.Equal(t, "A", upd.ObjectID)
		})
	}
}

func TestTransformEnd_UpdateDropsUnchangedFields(t *testing.T) {
	h := newHarness(t, true, rect("A", 0, 0, 100, 100))
	_, upd, err := h.ctrl.TransformEnd("A", TransformInput{ScaleX: 1.13, ScaleY: 1, Handle: grid.HandleRight})
	require.NoError(t, err)

	assert.Nil(t, upd.Patch.X)
	assert.Nil(t, upd.Patch.Rotation)
	require.NotNil(t, upd.Patch.Width)
	assert.Equal(t, 120.0, *upd.Patch.Width)
	assert.Equal(t, 100.0, *upd.Patch.Height)
}

func TestTransformEnd_Circle(t *testing.T) {
	h := newHarness(t, false, core.BoardObject{ID: "E", Kind: core.KindEllipse, Width: 100, Height: 50})

	res, _, err := h.ctrl.TransformEnd("E", TransformInput{X: 50, Y: 25, ScaleX: 0.01, ScaleY: 2})
	require.NoError(t, err)

	attrs := res.(RectAttrs)
	assert.Equal(t, RectAttrs{X: 45, Y: -25, Width: 2 * core.MinRadius, Height: 100}, attrs)
}

func TestTransformEnd_Line(t *testing.T) {
	line := core.BoardObject{
		ID: "L", Kind: core.KindLine, X: 10, Y: 10, Width: 100, Height: 50,
		Points: []float64{0, 0, 100, 50},
	}

	t.Run("scales points per axis", func(t *testing.T) {
		h := newHarness(t, false, line)
		res, upd, err := h.ctrl.TransformEnd("L", TransformInput{X: 10, Y: 10, ScaleX: 2, ScaleY: 2})
		require.NoError(t, err)

		attrs, ok := res.(PointAttrs)
		require.True(t, ok)
		assert.Equal(t, []float64{0, 0, 200, 100}, attrs.Points)
		assert.Equal(t, 200.0, attrs.Width)
		assert.Equal(t, 100.0, attrs.Height)
		assert.Equal(t, []float64{0, 0, 200, 100}, upd.Patch.Points)
		assert.Nil(t, upd.Patch.X, "position unchanged")
	})

	t.Run("floors each axis at minimum size", func(t *testing.T) {
		h := newHarness(t, false, line)
		res, _, err := h.ctrl.TransformEnd("L", TransformInput{X: 10, Y: 10, ScaleX: 0.01, ScaleY: 0.01})
		require.NoError(t, err)

		attrs := res.(PointAttrs)
		require.Len(t, attrs.Points, 4)
		assert.InDelta(t, core.MinSize, attrs.Points[2], 1e-9)
		assert.InDelta(t, core.MinSize, attrs.Points[3], 1e-9)
		assert.InDelta(t, core.MinSize, attrs.Width, 1e-9)
		assert.InDelta(t, core.MinSize, attrs.Height, 1e-9)
	})

	t.Run("flat line keeps minimum height", func(t *testing.T) {
		flat := core.BoardObject{
			ID: "H", Kind: core.KindLine, X: 10, Y: 10, Width: 100, Height: 10,
			Points: []float64{0, 0, 100, 0},
		}
		h := newHarness(t, false, flat)
		res, _, err := h.ctrl.TransformEnd("H", TransformInput{X: 10, Y: 10, ScaleX: 2, ScaleY: 1})
		require.NoError(t, err)

		attrs := res.(PointAttrs)
		assert.Equal(t, []float64{0, 0, 200, 0}, attrs.Points)
		assert.Equal(t, 200.0, attrs.Width)
		assert.InDelta(t, core.MinSize, attrs.Height, 1e-9)
	})

	t.Run("grid snaps position only", func(t *testing.T) {
		h := newHarness(t, true, line)
		res, _, err := h.ctrl.TransformEnd("L", TransformInput{X: 13, Y: 27, ScaleX: 1, ScaleY: 1, Rotation: 725})
		require.NoError(t, err)

		attrs := res.(PointAttrs)
		assert.Equal(t, 20.0, attrs.X)
		assert.Equal(t, 20.0, attrs.Y)
		assert.Equal(t, []float64{0, 0, 100, 50}, attrs.Points)
		assert.InDelta(t, 5.0, attrs.Rotation, 1e-9)
	})
}

func TestTransformEnd_Errors(t *testing.T) {
	h := newHarness(t, false, rect("A", 0, 0, 100, 100))

	_, _, err := h.ctrl.TransformEnd("missing", TransformInput{ScaleX: 1, ScaleY: 1})
	assert.ErrorIs(t, err, ErrUnknownObject)

	_, _, err = h.ctrl.TransformEnd("A", TransformInput{ScaleX: math.NaN(), ScaleY: 1})
	assert.ErrorIs(t, err, ErrNonFinite)
}

func TestNormalizeAngle(t *testing.T) {
	assert.Equal(t, 0.0, normalizeAngle(360))
	assert.Equal(t, 270.0, normalizeAngle(-90))
	assert.Equal(t, 10.0, normalizeAngle(10))
}
