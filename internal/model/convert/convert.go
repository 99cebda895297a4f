// Package convert provides functions to convert between GORM models and core models
package convert

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/planeboard/engine/internal/model"
	"github.com/planeboard/engine/pkg/core"
	"gorm.io/datatypes"
)

// pointsToJSON converts flat point data to datatypes.JSON. Nil stays NULL.
func pointsToJSON(points []float64) datatypes.JSON {
	if points == nil {
		return nil
	}
	data, _ := json.Marshal(points)
	return datatypes.JSON(data)
}

func jsonToPoints(data datatypes.JSON) []float64 {
	if len(data) == 0 {
		return nil
	}
	var points []float64
	if err := json.Unmarshal(data, &points); err != nil {
		return nil
	}
	return points
}

// CoreToBoard converts a core.Board to a GORM model.Board.
func CoreToBoard(b core.Board) model.Board {
	return model.Board{
		BoardID:  b.ID,
		Name:     b.Name,
		OpenedAt: b.OpenedAt,
	}
}

// BoardToCore converts a GORM model.Board to a core.Board.
func BoardToCore(m model.Board) core.Board {
	return core.Board{
		ID:       m.BoardID,
		Name:     m.Name,
		OpenedAt: m.OpenedAt,
	}
}

// CoreToObject converts a core.BoardObject to a GORM model.Object on boardID.
func CoreToObject(boardID string, o core.BoardObject) model.Object {
	var parent sql.NullString
	if o.ParentFrameID != nil {
		parent = sql.NullString{String: *o.ParentFrameID, Valid: true}
	}
	return model.Object{
		BoardID:       boardID,
		ObjectID:      o.ID,
		Kind:          string(o.Kind),
		X:             o.X,
		Y:             o.Y,
		Width:         o.Width,
		Height:        o.Height,
		Rotation:      o.Rotation,
		ParentFrameID: parent,
		Points:        pointsToJSON(o.Points),
		FromID:        o.FromID,
		ToID:          o.ToID,
		FromAnchor:    string(o.FromAnchor),
		ToAnchor:      string(o.ToAnchor),
	}
}

// ObjectToCore converts a GORM model.Object back to a core.BoardObject.
func ObjectToCore(m model.Object) core.BoardObject {
	obj := core.BoardObject{
		ID:         m.ObjectID,
		Kind:       core.Kind(m.Kind),
		X:          m.X,
		Y:          m.Y,
		Width:      m.Width,
		Height:     m.Height,
		Rotation:   m.Rotation,
		Points:     jsonToPoints(m.Points),
		FromID:     m.FromID,
		ToID:       m.ToID,
		FromAnchor: core.AnchorSide(m.FromAnchor),
		ToAnchor:   core.AnchorSide(m.ToAnchor),
	}
	if m.ParentFrameID.Valid {
		obj.ParentFrameID = core.StringPtr(m.ParentFrameID.String)
	}
	return obj
}

// PatchColumns returns the column map for a GORM Updates call. Only fields
// present in the patch are included.
func PatchColumns(p core.Patch) map[string]any {
	cols := make(map[string]any)
	if p.X != nil {
		cols["x"] = *p.X
	}
	if p.Y != nil {
		cols["y"] = *p.Y
	}
	if p.Width != nil {
		cols["width"] = *p.Width
	}
	if p.Height != nil {
		cols["height"] = *p.Height
	}
	if p.Rotation != nil {
		cols["rotation"] = *p.Rotation
	}
	if p.Points != nil {
		cols["points"] = pointsToJSON(p.Points)
	}
	if p.ParentFrameID != nil {
		cols["parent_frame_id"] = sql.NullString{String: *p.ParentFrameID, Valid: true}
	}
	return cols
}

// UpdateToRevision builds the audit row for one persisted update.
func UpdateToRevision(boardID string, source core.RevisionSource, u core.Update, at time.Time) model.Revision {
	patch, _ := json.Marshal(u.Patch)
	return model.Revision{
		Time:     at,
		BoardID:  boardID,
		ObjectID: u.ObjectID,
		Source:   string(source),
		Patch:    datatypes.JSON(patch),
	}
}

// RevisionPatch decodes the patch stored on a revision row. Delete and put
// revisions carry none.
func RevisionPatch(m model.Revision) (*core.Patch, error) {
	if len(m.Patch) == 0 || string(m.Patch) == "null" {
		return nil, nil
	}
	var p core.Patch
	if err := json.Unmarshal(m.Patch, &p); err != nil {
		return nil, err
	}
	return &p, nil
}
