// internal/storage/storage.go
package storage

import "github.com/planeboard/engine/pkg/core"

// Backend is the interface all storage implementations must satisfy.
// A backend persists the objects of one board at a time.
type Backend interface {
	// Lifecycle
	Init() error
	Close() error

	// Board management. OpenBoard returns the objects already stored for
	// the board in insertion order.
	OpenBoard(board *core.Board) ([]core.BoardObject, error)
	CloseBoard() error

	// Object sync from the host
	PutObject(obj *core.BoardObject) error
	DeleteObject(id string) error

	// Engine output
	ApplyBatch(plan core.BatchUpdatePlan) error
	ApplyUpdate(u core.Update) error
}

// Exportable is an optional interface for storage backends that write the
// board to a file when it is closed.
type Exportable interface {
	GetExportedFilePath() string
	GetExportMetadata() ExportMetadata
}

// ExportMetadata describes a written board export.
type ExportMetadata struct {
	BoardID     string
	BoardName   string
	ObjectCount int
	Revisions   int
}
