package geo

import (
	"encoding/json"
	"fmt"

	geom "github.com/peterstace/simplefeatures/geom"
)

// Sequence wraps a flat x,y point list in a simplefeatures sequence.
// A trailing odd value is ignored.
func Sequence(points []float64) geom.Sequence {
	n := len(points) - len(points)%2
	return geom.NewSequence(points[:n:n], geom.DimXY)
}

// PointsBounds returns the bounding box of a flat x,y point list.
// ok is false when there are no complete points or a value is non-finite.
func PointsBounds(points []float64) (r Rect, ok bool) {
	seq := Sequence(points)
	if seq.Length() == 0 {
		return Rect{}, false
	}
	first := seq.GetXY(0)
	minX, minY, maxX, maxY := first.X, first.Y, first.X, first.Y
	for i := 0; i < seq.Length(); i++ {
		xy := seq.GetXY(i)
		if !Finite(xy.X, xy.Y) {
			return Rect{}, false
		}
		minX, maxX = min(minX, xy.X), max(maxX, xy.X)
		minY, maxY = min(minY, xy.Y), max(maxY, xy.Y)
	}
	return Rect{X: minX, Y: minY, Width: maxX - minX, Height: maxY - minY}, true
}

// ScalePoints multiplies every x by sx and every y by sy.
func ScalePoints(points []float64, sx, sy float64) []float64 {
	seq := Sequence(points)
	out := make([]float64, 0, seq.Length()*2)
	for i := 0; i < seq.Length(); i++ {
		xy := seq.GetXY(i)
		out = append(out, xy.X*sx, xy.Y*sy)
	}
	return out
}

// ParsePoints parses a JSON array of coordinates into a flat point list.
// Input format: "[[x1,y1],[x2,y2],...]"
func ParsePoints(input string) ([]float64, error) {
	var coords [][]float64
	if err := json.Unmarshal([]byte(input), &coords); err != nil {
		return nil, fmt.Errorf("failed to parse points JSON: %w", err)
	}

	if len(coords) < 2 {
		return nil, fmt.Errorf("point list must have at least 2 points, got %d", len(coords))
	}

	flat := make([]float64, 0, len(coords)*2)
	for i, coord := range coords {
		if len(coord) < 2 {
			return nil, fmt.Errorf("coordinate %d has insufficient values", i)
		}
		flat = append(flat, coord[0], coord[1])
	}
	return flat, nil
}
