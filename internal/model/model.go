package model

import (
	"database/sql"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

////////////////////////
// DATABASE STRUCTURES //
////////////////////////

// DatabaseModels is a list of all the structs exported here which represent tables in the database schema
var DatabaseModels = []interface{}{
	&Board{},
	&Object{},
	&Revision{},
}

// Board is one opened board. BoardID is the id the host knows the board by.
type Board struct {
	gorm.Model
	BoardID  string       `json:"boardId" gorm:"size:64;uniqueIndex"`
	Name     string       `json:"name" gorm:"size:255"`
	OpenedAt time.Time    `json:"openedAt"`
	ClosedAt sql.NullTime `json:"closedAt"`
}

func (*Board) TableName() string {
	return "boards"
}

// Object is the persisted geometry of one board object.
type Object struct {
	BoardID  string  `json:"boardId" gorm:"primaryKey;size:64"`
	ObjectID string  `json:"objectId" gorm:"primaryKey;size:64"`
	Kind     string  `json:"kind" gorm:"size:16;index:idx_object_kind"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Width    float64 `json:"width"`
	Height   float64 `json:"height"`
	Rotation float64 `json:"rotation"`
	// ParentFrameID is NULL when the object never had the field and an empty
	// string when it was explicitly detached.
	ParentFrameID sql.NullString `json:"parentFrameId" gorm:"size:64;index:idx_object_parent"`
	Points        datatypes.JSON `json:"points"`
	FromID        string         `json:"fromId" gorm:"size:64"`
	ToID          string         `json:"toId" gorm:"size:64"`
	FromAnchor    string         `json:"fromAnchor" gorm:"size:16"`
	ToAnchor      string         `json:"toAnchor" gorm:"size:16"`
	Seq           uint           `json:"seq" gorm:"index:idx_object_seq"`
	UpdatedAt     time.Time      `json:"updatedAt"`
}

func (*Object) TableName() string {
	return "objects"
}

// Revision is the audit record of one persisted change.
type Revision struct {
	ID       uint           `json:"id" gorm:"primarykey;autoIncrement"`
	Time     time.Time      `json:"time" gorm:"index:idx_revision_time"`
	BoardID  string         `json:"boardId" gorm:"size:64;index:idx_revision_board"`
	ObjectID string         `json:"objectId" gorm:"size:64;index:idx_revision_object"`
	Source   string         `json:"source" gorm:"size:16"`
	Patch    datatypes.JSON `json:"patch"`
}

func (*Revision) TableName() string {
	return "revisions"
}
