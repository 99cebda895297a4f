// pkg/core/patch.go
package core

// Patch is a partial geometry update. Nil fields are left untouched by the
// persistence layer. Position and size always travel as pairs.
type Patch struct {
	X             *float64  `json:"x,omitempty"`
	Y             *float64  `json:"y,omitempty"`
	Width         *float64  `json:"width,omitempty"`
	Height        *float64  `json:"height,omitempty"`
	Rotation      *float64  `json:"rotation,omitempty"`
	Points        []float64 `json:"points,omitempty"`
	ParentFrameID *string   `json:"parentFrameId,omitempty"`
}

// IsEmpty reports whether the patch changes nothing.
func (p Patch) IsEmpty() bool {
	return p.X == nil && p.Y == nil && p.Width == nil && p.Height == nil &&
		p.Rotation == nil && p.Points == nil && p.ParentFrameID == nil
}

// SetPosition sets both position fields.
func (p *Patch) SetPosition(x, y float64) {
	p.X, p.Y = Float64Ptr(x), Float64Ptr(y)
}

// SetSize sets both size fields.
func (p *Patch) SetSize(w, h float64) {
	p.Width, p.Height = Float64Ptr(w), Float64Ptr(h)
}

// Apply returns obj with the patch applied.
func (p Patch) Apply(obj BoardObject) BoardObject {
	out := obj.Clone()
	if p.X != nil {
		out.X = *p.X
	}
	if p.Y != nil {
		out.Y = *p.Y
	}
	if p.Width != nil {
		out.Width = *p.Width
	}
	if p.Height != nil {
		out.Height = *p.Height
	}
	if p.Rotation != nil {
		out.Rotation = *p.Rotation
	}
	if p.Points != nil {
		out.Points = append([]float64(nil), p.Points...)
	}
	if p.ParentFrameID != nil {
		out.ParentFrameID = StringPtr(*p.ParentFrameID)
	}
	return out
}

// Update pairs an object id with the partial update for it.
type Update struct {
	ObjectID string `json:"objectId"`
	Patch    Patch  `json:"patch"`
}

// BatchUpdatePlan is an ordered list of updates; each ObjectID appears at most once.
type BatchUpdatePlan []Update

// IDs returns the object ids in plan order.
func (b BatchUpdatePlan) IDs() []string {
	ids := make([]string, len(b))
	for i, u := range b {
		ids[i] = u.ObjectID
	}
	return ids
}

// Find returns the update for id.
func (b BatchUpdatePlan) Find(id string) (Update, bool) {
	for _, u := range b {
		if u.ObjectID == id {
			return u, true
		}
	}
	return Update{}, false
}
