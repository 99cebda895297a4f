package board

import (
	"sync"

	"github.com/planeboard/engine/internal/align"
	"github.com/planeboard/engine/internal/geo"
	"github.com/planeboard/engine/pkg/core"
)

// ObjectSource is the live object set as the engine sees it: read only, and
// allowed to shrink at any time.
type ObjectSource interface {
	Get(id string) (core.BoardObject, bool)
	All() []core.BoardObject
}

// Objects is an in-memory ObjectSource fed by the synchronization layer.
// Iteration follows insertion order.
type Objects struct {
	mu    sync.RWMutex
	byID  map[string]core.BoardObject
	order []string
}

// NewObjects creates an object set holding objs.
func NewObjects(objs ...core.BoardObject) *Objects {
	o := &Objects{byID: make(map[string]core.BoardObject, len(objs))}
	for _, obj := range objs {
		o.Put(obj)
	}
	return o
}

// Get returns a copy of the object with id.
func (o *Objects) Get(id string) (core.BoardObject, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	obj, ok := o.byID[id]
	if !ok {
		return core.BoardObject{}, false
	}
	return obj.Clone(), true
}

// All returns copies of every object in insertion order.
func (o *Objects) All() []core.BoardObject {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]core.BoardObject, 0, len(o.order))
	for _, id := range o.order {
		out = append(out, o.byID[id].Clone())
	}
	return out
}

// Put inserts or replaces obj.
func (o *Objects) Put(obj core.BoardObject) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.byID[obj.ID]; !ok {
		o.order = append(o.order, obj.ID)
	}
	o.byID[obj.ID] = obj.Clone()
}

// Delete removes id; absent ids are ignored.
func (o *Objects) Delete(id string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.byID[id]; !ok {
		return
	}
	delete(o.byID, id)
	for i, v := range o.order {
		if v == id {
			o.order = append(o.order[:i:i], o.order[i+1:]...)
			break
		}
	}
}

// Len returns the number of objects.
func (o *Objects) Len() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.byID)
}

// sourceAdapter exposes an ObjectSource as alignment candidates.
type sourceAdapter struct {
	src ObjectSource
}

func (a sourceAdapter) Bounds(id string) (geo.Rect, bool) {
	obj, ok := a.src.Get(id)
	if !ok {
		return geo.Rect{}, false
	}
	return geo.NewRect(obj.Bounds()), true
}

func (a sourceAdapter) AllBounds() []align.Candidate {
	all := a.src.All()
	out := make([]align.Candidate, 0, len(all))
	for _, obj := range all {
		out = append(out, align.Candidate{ID: obj.ID, Bounds: geo.NewRect(obj.Bounds())})
	}
	return out
}
