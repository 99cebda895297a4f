// Package gormstorage implements the storage.Backend interface on top of GORM.
// Object rows are written synchronously so a committed batch is visible to the
// next reader; the revision audit trail is queued and written by a background
// writer goroutine.
package gormstorage

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/planeboard/engine/internal/database"
	"github.com/planeboard/engine/internal/model"
	"github.com/planeboard/engine/internal/model/convert"
	"github.com/planeboard/engine/internal/queue"
	"github.com/planeboard/engine/internal/storage"
	"github.com/planeboard/engine/pkg/core"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrNoBoard is returned when an object operation runs before OpenBoard.
var ErrNoBoard = errors.New("no board open")

const (
	defaultFlushInterval = 2 * time.Second
	revisionChunkSize    = 1000
)

// objectColumns are overwritten when an existing object is put again. seq is
// left alone so an object keeps its original insertion position.
var objectColumns = []string{
	"kind", "x", "y", "width", "height", "rotation", "parent_frame_id",
	"points", "from_id", "to_id", "from_anchor", "to_anchor", "updated_at",
}

// Dependencies holds all dependencies for the GORM storage backend.
type Dependencies struct {
	DB            *gorm.DB
	Logger        *slog.Logger
	FlushInterval time.Duration
}

// Backend implements storage.Backend using GORM with a queued revision writer.
type Backend struct {
	deps      Dependencies
	log       *slog.Logger
	revisions *queue.Queue[model.Revision]

	mu      sync.RWMutex
	boardID string
	board   core.Board
	nextSeq uint

	flushMu   sync.Mutex
	stopChan  chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	lastWrite atomic.Int64
	written   atomic.Int64
}

// New creates a new GORM storage backend.
func New(deps Dependencies) *Backend {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	if deps.FlushInterval <= 0 {
		deps.FlushInterval = defaultFlushInterval
	}
	return &Backend{
		deps:      deps,
		log:       log.With("component", "gorm-storage"),
		revisions: queue.New[model.Revision](),
	}
}

// DB returns the underlying connection.
func (b *Backend) DB() *gorm.DB {
	return b.deps.DB
}

// Init runs schema migration and starts the revision writer goroutine.
func (b *Backend) Init() error {
	if b.deps.DB == nil {
		return errors.New("gorm storage: no database connection")
	}
	if err := database.Migrate(b.deps.DB); err != nil {
		return err
	}

	b.stopChan = make(chan struct{})
	b.done = make(chan struct{})
	go b.writerLoop()
	return nil
}

// Close stops the writer goroutine after a final flush.
func (b *Backend) Close() error {
	b.closeOnce.Do(func() {
		if b.stopChan != nil {
			close(b.stopChan)
			<-b.done
		}
	})
	return nil
}

// OpenBoard gets or creates the board row and loads its objects.
func (b *Backend) OpenBoard(board *core.Board) ([]core.BoardObject, error) {
	if board == nil || board.ID == "" {
		return nil, errors.New("board id is required")
	}
	if board.OpenedAt.IsZero() {
		board.OpenedAt = time.Now()
	}

	db := b.deps.DB
	row := convert.CoreToBoard(*board)
	if err := db.Where(model.Board{BoardID: row.BoardID}).
		Assign(model.Board{Name: row.Name, OpenedAt: row.OpenedAt}).
		FirstOrCreate(&row).Error; err != nil {
		return nil, fmt.Errorf("failed to get or insert board: %w", err)
	}

	var rows []model.Object
	if err := db.Where("board_id = ?", board.ID).Order("seq").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load objects: %w", err)
	}

	objs := make([]core.BoardObject, 0, len(rows))
	var maxSeq uint
	for _, r := range rows {
		objs = append(objs, convert.ObjectToCore(r))
		if r.Seq > maxSeq {
			maxSeq = r.Seq
		}
	}

	b.mu.Lock()
	b.boardID = board.ID
	b.board = *board
	b.nextSeq = maxSeq + 1
	b.mu.Unlock()

	b.log.Info("board opened", "board", board.ID, "objects", len(objs))
	return objs, nil
}

// CloseBoard stamps the board as closed and flushes pending revisions.
func (b *Backend) CloseBoard() error {
	boardID := b.currentBoard()
	if boardID == "" {
		return nil
	}

	b.flush()

	err := b.deps.DB.Model(&model.Board{}).
		Where("board_id = ?", boardID).
		Update("closed_at", time.Now()).Error
	if err != nil {
		return fmt.Errorf("failed to close board: %w", err)
	}

	b.mu.Lock()
	b.boardID = ""
	b.mu.Unlock()
	return nil
}

// PutObject inserts obj or replaces the stored geometry of an existing one.
func (b *Backend) PutObject(obj *core.BoardObject) error {
	b.mu.Lock()
	boardID := b.boardID
	seq := b.nextSeq
	b.nextSeq++
	b.mu.Unlock()
	if boardID == "" {
		return ErrNoBoard
	}

	row := convert.CoreToObject(boardID, *obj)
	row.Seq = seq
	row.UpdatedAt = time.Now()

	err := b.deps.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "board_id"}, {Name: "object_id"}},
		DoUpdates: clause.AssignmentColumns(objectColumns),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("failed to put object %s: %w", obj.ID, err)
	}

	b.queueRevisions(boardID, core.SourcePut, core.Update{ObjectID: obj.ID, Patch: fullPatch(*obj)})
	return nil
}

// DeleteObject removes the object row. Unknown ids are not an error.
func (b *Backend) DeleteObject(id string) error {
	boardID := b.currentBoard()
	if boardID == "" {
		return ErrNoBoard
	}

	err := b.deps.DB.Where("board_id = ? AND object_id = ?", boardID, id).
		Delete(&model.Object{}).Error
	if err != nil {
		return fmt.Errorf("failed to delete object %s: %w", id, err)
	}

	b.queueRevisions(boardID, core.SourceDelete, core.Update{ObjectID: id})
	return nil
}

// ApplyBatch writes every update of plan in one transaction.
func (b *Backend) ApplyBatch(plan core.BatchUpdatePlan) error {
	if len(plan) == 0 {
		return nil
	}
	boardID := b.currentBoard()
	if boardID == "" {
		return ErrNoBoard
	}

	err := b.deps.DB.Transaction(func(tx *gorm.DB) error {
		for _, u := range plan {
			if err := updateObject(tx, boardID, u); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to apply batch: %w", err)
	}

	b.queueRevisions(boardID, core.SourceDrag, plan...)
	return nil
}

// ApplyUpdate writes a single transform update.
func (b *Backend) ApplyUpdate(u core.Update) error {
	if u.Patch.IsEmpty() {
		return nil
	}
	boardID := b.currentBoard()
	if boardID == "" {
		return ErrNoBoard
	}

	if err := updateObject(b.deps.DB, boardID, u); err != nil {
		return fmt.Errorf("failed to apply update: %w", err)
	}

	b.queueRevisions(boardID, core.SourceTransform, u)
	return nil
}

// PendingRevisions returns the number of revisions waiting for the writer.
func (b *Backend) PendingRevisions() int {
	return b.revisions.Len()
}

// WrittenRevisions returns the number of revisions written so far.
func (b *Backend) WrittenRevisions() int {
	return int(b.written.Load())
}

// GetLastDBWriteDuration returns the duration of the last revision flush.
func (b *Backend) GetLastDBWriteDuration() time.Duration {
	return time.Duration(b.lastWrite.Load())
}

// GetExportMetadata describes the most recently opened board.
func (b *Backend) GetExportMetadata() storage.ExportMetadata {
	b.mu.RLock()
	board := b.board
	b.mu.RUnlock()

	var count int64
	if board.ID != "" {
		b.deps.DB.Model(&model.Object{}).Where("board_id = ?", board.ID).Count(&count)
	}
	return storage.ExportMetadata{
		BoardID:     board.ID,
		BoardName:   board.Name,
		ObjectCount: int(count),
		Revisions:   b.WrittenRevisions(),
	}
}

func (b *Backend) currentBoard() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.boardID
}

func (b *Backend) queueRevisions(boardID string, source core.RevisionSource, updates ...core.Update) {
	now := time.Now()
	for _, u := range updates {
		b.revisions.Push(convert.UpdateToRevision(boardID, source, u, now))
	}
}

func updateObject(tx *gorm.DB, boardID string, u core.Update) error {
	cols := convert.PatchColumns(u.Patch)
	if len(cols) == 0 {
		return nil
	}
	cols["updated_at"] = time.Now()
	err := tx.Model(&model.Object{}).
		Where("board_id = ? AND object_id = ?", boardID, u.ObjectID).
		Updates(cols).Error
	if err != nil {
		return fmt.Errorf("updating %s: %w", u.ObjectID, err)
	}
	return nil
}

func fullPatch(obj core.BoardObject) core.Patch {
	var p core.Patch
	p.SetPosition(obj.X, obj.Y)
	p.SetSize(obj.Width, obj.Height)
	p.Rotation = core.Float64Ptr(obj.Rotation)
	p.Points = obj.Points
	p.ParentFrameID = obj.ParentFrameID
	return p
}

// writeQueue writes queued items to the database in chunks, each in its own
// transaction. A failed chunk goes back to the head of the queue.
func writeQueue[T any](db *gorm.DB, q *queue.Queue[T], name string, log *slog.Logger) int {
	written := 0
	for !q.Empty() {
		items := q.Take(revisionChunkSize)
		err := db.Transaction(func(tx *gorm.DB) error {
			return tx.Create(&items).Error
		})
		if err != nil {
			log.Error("write failed", "queue", name, "items", len(items), "error", err)
			q.Requeue(items...)
			return written
		}
		written += len(items)
	}
	return written
}

func (b *Backend) flush() {
	b.flushMu.Lock()
	defer b.flushMu.Unlock()

	start := time.Now()
	n := writeQueue(b.deps.DB, b.revisions, "revisions", b.log)
	if n > 0 {
		b.written.Add(int64(n))
		b.lastWrite.Store(int64(time.Since(start)))
	}
}

// writerLoop periodically drains the revision queue into the DB.
func (b *Backend) writerLoop() {
	defer close(b.done)

	ticker := time.NewTicker(b.deps.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopChan:
			b.flush()
			return
		case <-ticker.C:
			b.flush()
		}
	}
}
