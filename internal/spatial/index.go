// Package spatial indexes the bounding boxes of visible board objects so the
// alignment engine only looks at nearby candidates.
package spatial

import (
	"sort"
	"sync"

	"github.com/peterstace/simplefeatures/rtree"
	"github.com/planeboard/engine/internal/geo"
)

// DefaultTolerance is added around every query rectangle.
const DefaultTolerance = 4.0

// Entry is one indexed object.
type Entry struct {
	ID     string
	Bounds geo.Rect
	Exempt bool
}

// Index is a bounding-box index over the visible objects of one board.
// Writes are serialized behind a single writer lock; queries share a read lock.
// The r-tree is bulk loaded lazily on the first query after a write.
type Index struct {
	mu        sync.RWMutex
	tolerance float64
	entries   map[string]*Entry
	// dragging outlives the entries so an object dropped from the index and
	// re-added mid-gesture stays exempt.
	dragging map[string]struct{}

	buildMu sync.Mutex
	tree    *rtree.RTree
	slots   []string
	dirty   bool
}

// New creates an empty index. tolerance <= 0 selects DefaultTolerance.
func New(tolerance float64) *Index {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	return &Index{
		tolerance: tolerance,
		entries:   make(map[string]*Entry),
		dragging:  make(map[string]struct{}),
		dirty:     true,
	}
}

// Upsert replaces any prior entry for id. Non-finite boxes are ignored.
func (x *Index) Upsert(id string, bounds geo.Rect) {
	if !bounds.IsFinite() {
		return
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	if e, ok := x.entries[id]; ok {
		e.Bounds = bounds
	} else {
		x.entries[id] = &Entry{ID: id, Bounds: bounds}
	}
	x.dirty = true
}

// Remove deletes the entry for id. Absent ids are a no-op.
func (x *Index) Remove(id string) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if _, ok := x.entries[id]; !ok {
		return
	}
	delete(x.entries, id)
	x.dirty = true
}

// SetDragging exempts ids from query results until ClearDragging, whether
// or not they are indexed right now.
func (x *Index) SetDragging(ids ...string) {
	x.mu.Lock()
	defer x.mu.Unlock()
	for _, id := range ids {
		x.dragging[id] = struct{}{}
	}
}

// ClearDragging removes every exemption.
func (x *Index) ClearDragging() {
	x.mu.Lock()
	defer x.mu.Unlock()
	clear(x.dragging)
}

// IsExempt reports whether id is currently exempt.
func (x *Index) IsExempt(id string) bool {
	x.mu.RLock()
	defer x.mu.RUnlock()
	_, ok := x.dragging[id]
	return ok
}

// Len returns the number of indexed entries.
func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.entries)
}

// ActiveCount returns the number of entries that are not exempt.
func (x *Index) ActiveCount() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	n := 0
	for id := range x.entries {
		if _, exempt := x.dragging[id]; !exempt {
			n++
		}
	}
	return n
}

// Get returns a copy of the entry for id.
func (x *Index) Get(id string) (Entry, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	e, ok := x.entries[id]
	if !ok {
		return Entry{}, false
	}
	out := *e
	_, out.Exempt = x.dragging[id]
	return out, true
}

// Query returns the ids of non-exempt entries whose box intersects rect grown
// by the tolerance margin, sorted by id. It never fails: an empty, fully
// exempt index or a non-finite rect yields an empty result.
func (x *Index) Query(rect geo.Rect) []string {
	if !rect.IsFinite() {
		return []string{}
	}
	x.mu.RLock()
	defer x.mu.RUnlock()

	tree, slots := x.snapshot()
	if tree == nil {
		return []string{}
	}

	search := rect.Expand(x.tolerance)
	box := rtree.Box{
		MinX: search.X,
		MinY: search.Y,
		MaxX: search.Right(),
		MaxY: search.Bottom(),
	}

	out := []string{}
	// the callback never returns an error, so neither does RangeSearch
	_ = tree.RangeSearch(box, func(recordID int) error {
		id := slots[recordID]
		if _, exempt := x.dragging[id]; !exempt {
			out = append(out, id)
		}
		return nil
	})
	sort.Strings(out)
	return out
}

// snapshot returns an r-tree matching the current entries, rebuilding it when
// stale. Callers hold x.mu for reading; buildMu keeps concurrent readers from
// rebuilding twice.
func (x *Index) snapshot() (*rtree.RTree, []string) {
	x.buildMu.Lock()
	defer x.buildMu.Unlock()

	if !x.dirty {
		return x.tree, x.slots
	}

	if len(x.entries) == 0 {
		x.tree, x.slots, x.dirty = nil, nil, false
		return nil, nil
	}

	ids := make([]string, 0, len(x.entries))
	for id := range x.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	items := make([]rtree.BulkItem, len(ids))
	for i, id := range ids {
		b := x.entries[id].Bounds
		items[i] = rtree.BulkItem{
			Box:      rtree.Box{MinX: b.X, MinY: b.Y, MaxX: b.Right(), MaxY: b.Bottom()},
			RecordID: i,
		}
	}

	x.tree = rtree.BulkLoad(items)
	x.slots = ids
	x.dirty = false
	return x.tree, x.slots
}
