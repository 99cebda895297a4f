// internal/storage/memory/memory.go
package memory

import (
	"errors"
	"sync"
	"time"

	"github.com/planeboard/engine/internal/config"
	"github.com/planeboard/engine/internal/storage"
	"github.com/planeboard/engine/pkg/core"
)

// ErrNoBoard is returned when an object operation runs before OpenBoard.
var ErrNoBoard = errors.New("no board open")

// Revision is one recorded change, kept for the export history.
type Revision struct {
	Time     time.Time           `json:"time"`
	ObjectID string              `json:"objectId"`
	Source   core.RevisionSource `json:"source"`
	Patch    *core.Patch         `json:"patch,omitempty"`
}

// boardRecord groups a board with its objects and history
type boardRecord struct {
	board   core.Board
	objects map[string]core.BoardObject
	order   []string
	history []Revision
}

// Backend stores boards in memory and exports the open board to JSON when
// it is closed.
type Backend struct {
	cfg config.MemoryConfig

	boards map[string]*boardRecord
	open   *boardRecord

	lastExportPath string
	lastExportMeta storage.ExportMetadata
	mu             sync.RWMutex
}

// New creates a new memory backend
func New(cfg config.MemoryConfig) *Backend {
	return &Backend{
		cfg:    cfg,
		boards: make(map[string]*boardRecord),
	}
}

// Init initializes the backend
func (b *Backend) Init() error {
	return nil
}

// Close exports the open board, if any.
func (b *Backend) Close() error {
	return b.CloseBoard()
}

// OpenBoard makes board the target of later writes. A board opened earlier
// in this process keeps its objects.
func (b *Backend) OpenBoard(board *core.Board) ([]core.BoardObject, error) {
	if board == nil || board.ID == "" {
		return nil, errors.New("board id is required")
	}
	if board.OpenedAt.IsZero() {
		board.OpenedAt = time.Now()
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	rec, ok := b.boards[board.ID]
	if !ok {
		rec = &boardRecord{objects: make(map[string]core.BoardObject)}
		b.boards[board.ID] = rec
	}
	rec.board = *board
	b.open = rec

	return rec.list(), nil
}

// Restore replaces the stored state of board with objs and history
// without recording new revisions. It does not open the board.
func (b *Backend) Restore(board core.Board, objs []core.BoardObject, history []Revision) error {
	if board.ID == "" {
		return errors.New("board id is required")
	}
	rec := &boardRecord{
		board:   board,
		objects: make(map[string]core.BoardObject, len(objs)),
		history: append([]Revision{}, history...),
	}
	for _, obj := range objs {
		if _, dup := rec.objects[obj.ID]; !dup {
			rec.order = append(rec.order, obj.ID)
		}
		rec.objects[obj.ID] = obj.Clone()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.open != nil && b.open.board.ID == board.ID {
		b.open = rec
	}
	b.boards[board.ID] = rec
	return nil
}

// CloseBoard writes the open board to the output directory.
func (b *Backend) CloseBoard() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.open == nil {
		return nil
	}
	err := b.exportJSON(b.open, time.Now())
	b.open = nil
	return err
}

// PutObject inserts obj or replaces an existing object with the same id.
func (b *Backend) PutObject(obj *core.BoardObject) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.open == nil {
		return ErrNoBoard
	}
	if _, ok := b.open.objects[obj.ID]; !ok {
		b.open.order = append(b.open.order, obj.ID)
	}
	b.open.objects[obj.ID] = obj.Clone()
	b.open.record(core.SourcePut, obj.ID, nil)
	return nil
}

// DeleteObject removes id. Unknown ids are not an error.
func (b *Backend) DeleteObject(id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.open == nil {
		return ErrNoBoard
	}
	if _, ok := b.open.objects[id]; !ok {
		return nil
	}
	delete(b.open.objects, id)
	for i, v := range b.open.order {
		if v == id {
			b.open.order = append(b.open.order[:i], b.open.order[i+1:]...)
			break
		}
	}
	b.open.record(core.SourceDelete, id, nil)
	return nil
}

// ApplyBatch applies every update of plan. Unknown ids are skipped.
func (b *Backend) ApplyBatch(plan core.BatchUpdatePlan) error {
	if len(plan) == 0 {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.open == nil {
		return ErrNoBoard
	}
	for _, u := range plan {
		b.open.apply(core.SourceDrag, u)
	}
	return nil
}

// ApplyUpdate applies a single transform update.
func (b *Backend) ApplyUpdate(u core.Update) error {
	if u.Patch.IsEmpty() {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.open == nil {
		return ErrNoBoard
	}
	b.open.apply(core.SourceTransform, u)
	return nil
}

// Objects returns the objects of the open board in insertion order.
func (b *Backend) Objects() []core.BoardObject {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.open == nil {
		return nil
	}
	return b.open.list()
}

// GetExportedFilePath returns the path of the last written export.
func (b *Backend) GetExportedFilePath() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastExportPath
}

// GetExportMetadata describes the last written export.
func (b *Backend) GetExportMetadata() storage.ExportMetadata {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastExportMeta
}

func (r *boardRecord) list() []core.BoardObject {
	out := make([]core.BoardObject, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.objects[id].Clone())
	}
	return out
}

func (r *boardRecord) apply(source core.RevisionSource, u core.Update) {
	obj, ok := r.objects[u.ObjectID]
	if !ok {
		return
	}
	r.objects[u.ObjectID] = u.Patch.Apply(obj)
	patch := u.Patch
	r.record(source, u.ObjectID, &patch)
}

func (r *boardRecord) record(source core.RevisionSource, id string, patch *core.Patch) {
	r.history = append(r.history, Revision{
		Time:     time.Now(),
		ObjectID: id,
		Source:   source,
		Patch:    patch,
	})
}
