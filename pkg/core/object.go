// pkg/core/object.go
package core

// Kind identifies the visual type of a board object.
type Kind string

const (
	KindNote      Kind = "note"
	KindRectangle Kind = "rectangle"
	KindEllipse   Kind = "ellipse"
	KindLine      Kind = "line"
	KindText      Kind = "text"
	KindFrame     Kind = "frame"
	KindConnector Kind = "connector"
)

// Size floors applied to every object at all times.
const (
	MinSize   = 10.0
	MinRadius = 5.0
)

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindNote, KindRectangle, KindEllipse, KindLine, KindText, KindFrame, KindConnector:
		return true
	}
	return false
}

func (k Kind) IsFrame() bool     { return k == KindFrame }
func (k Kind) IsConnector() bool { return k == KindConnector }

// IsPointBased is true for kinds whose geometry is a point list relative to X,Y.
func (k Kind) IsPointBased() bool { return k == KindLine || k == KindConnector }

// IsCircular is true for kinds positioned by center and radii.
func (k Kind) IsCircular() bool { return k == KindEllipse }

// IsComposite is true for kinds drawn as a primary content rectangle plus
// decorative shapes that never contribute to size.
func (k Kind) IsComposite() bool { return k == KindNote }

// ParticipatesInContainment reports whether objects of this kind can live
// inside a frame. Frames and connectors never do.
func (k Kind) ParticipatesInContainment() bool {
	return k != KindFrame && k != KindConnector
}

// AnchorSide is where a connector endpoint attaches to its target object.
type AnchorSide string

const (
	AnchorTop    AnchorSide = "top"
	AnchorRight  AnchorSide = "right"
	AnchorBottom AnchorSide = "bottom"
	AnchorLeft   AnchorSide = "left"
	AnchorCenter AnchorSide = "center"
)

// BoardObject is a snapshot of one object on the board.
// X and Y are the top-left corner of the unrotated bounding box.
type BoardObject struct {
	ID       string  `json:"id"`
	Kind     Kind    `json:"kind"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Width    float64 `json:"width"`
	Height   float64 `json:"height"`
	Rotation float64 `json:"rotation"`

	// ParentFrameID is nil when the field is absent; a pointer to "" means
	// the object explicitly has no parent frame.
	ParentFrameID *string `json:"parentFrameId,omitempty"`

	// Points holds flat x,y pairs relative to X,Y (lines and connectors).
	Points []float64 `json:"points,omitempty"`

	FromID     string     `json:"fromId,omitempty"`
	ToID       string     `json:"toId,omitempty"`
	FromAnchor AnchorSide `json:"fromAnchor,omitempty"`
	ToAnchor   AnchorSide `json:"toAnchor,omitempty"`
}

// Parent returns the parent frame id, or "" when there is none.
func (o BoardObject) Parent() string {
	if o.ParentFrameID == nil {
		return ""
	}
	return *o.ParentFrameID
}

// Bounds returns the unrotated bounding box as x, y, width, height.
func (o BoardObject) Bounds() (x, y, w, h float64) {
	return o.X, o.Y, o.Width, o.Height
}

// Clone returns a deep copy so callers can mutate without touching the live set.
func (o BoardObject) Clone() BoardObject {
	c := o
	if o.ParentFrameID != nil {
		p := *o.ParentFrameID
		c.ParentFrameID = &p
	}
	if o.Points != nil {
		c.Points = append([]float64(nil), o.Points...)
	}
	return c
}

// StringPtr returns a pointer to s.
func StringPtr(s string) *string { return &s }

// Float64Ptr returns a pointer to v.
func Float64Ptr(v float64) *float64 { return &v }
