// Package board holds the per-board context the engine works against: the
// live object set, the frame children index and the spatial index.
package board

import (
	"sync"

	"github.com/planeboard/engine/internal/align"
	"github.com/planeboard/engine/internal/frames"
	"github.com/planeboard/engine/internal/geo"
	"github.com/planeboard/engine/internal/spatial"
	"github.com/planeboard/engine/pkg/core"
)

// Session is constructed once per open board and passed to every entry point.
type Session struct {
	ID       string
	Objects  *Objects
	Children *frames.Children
	Index    *spatial.Index

	mu       sync.RWMutex
	viewport *geo.Rect
}

// NewSession creates a session over objs. Every object is indexed until a
// viewport is set.
func NewSession(id string, indexTolerance float64, objs ...core.BoardObject) *Session {
	s := &Session{
		ID:       id,
		Objects:  NewObjects(),
		Children: frames.NewChildren(),
		Index:    spatial.New(indexTolerance),
	}
	for _, obj := range objs {
		s.Upsert(obj)
	}
	return s
}

// Source returns the live object set.
func (s *Session) Source() ObjectSource {
	return s.Objects
}

// Candidates exposes the live object set to the alignment engine.
func (s *Session) Candidates() align.Source {
	return sourceAdapter{src: s.Objects}
}

// Upsert stores obj, re-indexes it and keeps the children index current.
func (s *Session) Upsert(obj core.BoardObject) {
	s.Objects.Put(obj)
	switch {
	case !obj.Kind.ParticipatesInContainment():
		// frames and connectors are never children, whatever their stored parent
		s.Children.SetParent(obj.ID, "")
	case obj.ParentFrameID != nil:
		s.Children.SetParent(obj.ID, *obj.ParentFrameID)
	}
	s.reindex(obj)
}

// Remove forgets id everywhere.
func (s *Session) Remove(id string) {
	s.Objects.Delete(id)
	s.Children.Forget(id)
	s.Index.Remove(id)
}

// Apply mirrors a committed plan into the live set. Missing ids are skipped.
func (s *Session) Apply(plan core.BatchUpdatePlan) int {
	applied := 0
	for _, u := range plan {
		obj, ok := s.Objects.Get(u.ObjectID)
		if !ok {
			continue
		}
		s.Upsert(u.Patch.Apply(obj))
		applied++
	}
	return applied
}

// SetViewport limits the spatial index to objects intersecting view.
func (s *Session) SetViewport(view geo.Rect) {
	s.mu.Lock()
	v := view
	s.viewport = &v
	s.mu.Unlock()

	for _, obj := range s.Objects.All() {
		s.reindex(obj)
	}
}

// Frames returns every frame in the live set.
func (s *Session) Frames() []core.BoardObject {
	var out []core.BoardObject
	for _, obj := range s.Objects.All() {
		if obj.Kind.IsFrame() {
			out = append(out, obj)
		}
	}
	return out
}

func (s *Session) reindex(obj core.BoardObject) {
	b := geo.NewRect(obj.Bounds())

	s.mu.RLock()
	view := s.viewport
	s.mu.RUnlock()

	if view != nil && !view.Intersects(b) {
		s.Index.Remove(obj.ID)
		return
	}
	s.Index.Upsert(obj.ID, b)
}
