package frames

import (
	"sync"

	"github.com/planeboard/engine/pkg/core"
)

// ChildIndex maps a frame id to the ids of its direct children.
type ChildIndex interface {
	Children(frameID string) []string
}

// Children is an in-memory ChildIndex kept current from parentFrameId values.
// Child order is insertion order.
type Children struct {
	mu       sync.RWMutex
	byFrame  map[string][]string
	parentOf map[string]string
}

// NewChildren creates an empty index.
func NewChildren() *Children {
	return &Children{
		byFrame:  make(map[string][]string),
		parentOf: make(map[string]string),
	}
}

// Children returns a copy of frameID's child ids.
func (c *Children) Children(frameID string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.byFrame[frameID]...)
}

// Parent returns the frame that currently holds id.
func (c *Children) Parent(id string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.parentOf[id]
	return p, ok
}

// Track records obj under its parent frame, moving it if the parent changed.
func (c *Children) Track(obj core.BoardObject) {
	c.SetParent(obj.ID, obj.Parent())
}

// SetParent moves id under frameID. An empty frameID detaches it.
func (c *Children) SetParent(id, frameID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if old, ok := c.parentOf[id]; ok {
		if old == frameID {
			return
		}
		c.detach(id, old)
	}
	if frameID == "" {
		return
	}
	c.parentOf[id] = frameID
	c.byFrame[frameID] = append(c.byFrame[frameID], id)
}

// Forget removes id both as a child and as a frame.
func (c *Children) Forget(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if old, ok := c.parentOf[id]; ok {
		c.detach(id, old)
	}
	for _, child := range c.byFrame[id] {
		delete(c.parentOf, child)
	}
	delete(c.byFrame, id)
}

func (c *Children) detach(id, frameID string) {
	delete(c.parentOf, id)
	kids := c.byFrame[frameID]
	for i, k := range kids {
		if k == id {
			kids = append(kids[:i:i], kids[i+1:]...)
			break
		}
	}
	if len(kids) == 0 {
		delete(c.byFrame, frameID)
		return
	}
	c.byFrame[frameID] = kids
}
