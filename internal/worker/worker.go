package worker

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/planeboard/engine/internal/dispatcher"
	"github.com/planeboard/engine/internal/handlers"
	"github.com/planeboard/engine/internal/storage"
)

// GestureRecorder receives one sample per finished gesture.
type GestureRecorder interface {
	RecordGesture(boardID, kind string, updates int, duration time.Duration, at time.Time) error
}

// Dependencies holds all dependencies for the worker manager
type Dependencies struct {
	Context  *handlers.BoardContext
	Logger   *slog.Logger
	Recorder GestureRecorder
}

// Manager runs the gesture commands against the open board and hands their
// output to the storage backend.
type Manager struct {
	deps       Dependencies
	backend    storage.Backend
	dispatcher *dispatcher.Dispatcher
	log        *slog.Logger

	gestureStart time.Time
}

// NewManager creates a new worker manager
func NewManager(deps Dependencies, backend storage.Backend) *Manager {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		deps:    deps,
		backend: backend,
		log:     log,
	}
}

func (m *Manager) hasBackend() bool {
	return m.backend != nil
}

// DBWriteDurationProvider is an optional interface that backends can implement
// to expose their last DB write duration for monitoring.
type DBWriteDurationProvider interface {
	GetLastDBWriteDuration() time.Duration
}

// PendingRevisionsProvider is an optional interface for backends that queue
// revisions before writing them.
type PendingRevisionsProvider interface {
	PendingRevisions() int
}

// GetLastDBWriteDuration returns the duration of the last DB write cycle.
// Returns 0 if the backend doesn't support this metric.
func (m *Manager) GetLastDBWriteDuration() time.Duration {
	if p, ok := m.backend.(DBWriteDurationProvider); ok {
		return p.GetLastDBWriteDuration()
	}
	return 0
}

// GetPendingRevisions returns the number of revisions not yet written.
func (m *Manager) GetPendingRevisions() int {
	if p, ok := m.backend.(PendingRevisionsProvider); ok {
		return p.PendingRevisions()
	}
	return 0
}

// store queues v for the buffered persistence handler of command.
func (m *Manager) store(command string, v any) {
	if !m.hasBackend() || m.dispatcher == nil {
		return
	}
	payload, err := json.Marshal(v)
	if err != nil {
		m.log.Error("Failed to encode persistence event", "command", command, "error", err)
		return
	}
	if _, err := m.dispatcher.Dispatch(dispatcher.Event{Command: command, Payload: payload}); err != nil {
		m.log.Error("Failed to queue persistence event", "command", command, "error", err)
	}
}

func (m *Manager) recordGesture(kind string, updates int, start, at time.Time) {
	if m.deps.Recorder == nil {
		return
	}
	var duration time.Duration
	if !start.IsZero() {
		duration = at.Sub(start)
	}
	boardID := m.deps.Context.GetBoard().ID
	if err := m.deps.Recorder.RecordGesture(boardID, kind, updates, duration, at); err != nil {
		m.log.Warn("Failed to record gesture", "error", fmt.Errorf("%s: %w", kind, err))
	}
}
