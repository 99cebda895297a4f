// pkg/core/board.go
package core

import "time"

// Board identifies the board a storage backend persists objects for.
type Board struct {
	ID       string    `json:"id"`
	Name     string    `json:"name,omitempty"`
	OpenedAt time.Time `json:"openedAt"`
}

// RevisionSource tells which engine operation produced a persisted change.
type RevisionSource string

const (
	SourceDrag      RevisionSource = "drag"
	SourceTransform RevisionSource = "transform"
	SourcePut       RevisionSource = "put"
	SourceDelete    RevisionSource = "delete"
)
