package monitor

import (
	"encoding/json"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/planeboard/engine/internal/handlers"
	"github.com/planeboard/engine/internal/worker"
)

// StatusRecorder receives one status sample per interval.
type StatusRecorder interface {
	RecordStatus(boardID string, objects, pendingRevisions int, lastWrite time.Duration, at time.Time) error
}

// Dependencies holds all dependencies for the monitor service
type Dependencies struct {
	Logger        *slog.Logger
	BoardContext  *handlers.BoardContext
	WorkerManager *worker.Manager
	Recorder      StatusRecorder
	StatusPath    string
	Interval      time.Duration
}

// Status is a snapshot of the engine state.
type Status struct {
	Time                time.Time `json:"time"`
	BoardID             string    `json:"boardId"`
	BoardName           string    `json:"boardName"`
	Objects             int       `json:"objects"`
	PendingRevisions    int       `json:"pendingRevisions"`
	LastWriteDurationMs float64   `json:"lastWriteDurationMs"`
}

// Service manages status monitoring
type Service struct {
	deps      Dependencies
	isRunning bool
	mu        sync.RWMutex
	stopChan  chan struct{}
	done      chan struct{}
}

// NewService creates a new monitor service
func NewService(deps Dependencies) *Service {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Interval <= 0 {
		deps.Interval = time.Second
	}
	return &Service{
		deps:     deps,
		stopChan: make(chan struct{}),
	}
}

// IsRunning returns whether the status monitor is running
func (s *Service) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// GetStatus returns the current engine status. It only reads state that is
// safe to read while the host drives the controller.
func (s *Service) GetStatus() Status {
	b := s.deps.BoardContext.GetBoard()
	st := Status{
		Time:      time.Now(),
		BoardID:   b.ID,
		BoardName: b.Name,
	}
	if session, _, ok := s.deps.BoardContext.Active(); ok {
		st.Objects = session.Objects.Len()
	}
	if s.deps.WorkerManager != nil {
		st.PendingRevisions = s.deps.WorkerManager.GetPendingRevisions()
		st.LastWriteDurationMs = float64(s.deps.WorkerManager.GetLastDBWriteDuration().Microseconds()) / 1000
	}
	return st
}

// Start starts the status monitor goroutine
func (s *Service) Start() error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = true
	s.stopChan = make(chan struct{})
	s.done = make(chan struct{})
	stop, done := s.stopChan, s.done
	s.mu.Unlock()

	go func() {
		defer close(done)
		defer func() {
			s.mu.Lock()
			s.isRunning = false
			s.mu.Unlock()
		}()

		logger := s.deps.Logger
		logger.Debug("Starting status monitor goroutine", "interval", s.deps.Interval)

		ticker := time.NewTicker(s.deps.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				st := s.GetStatus()
				if st.BoardID == "" {
					continue
				}

				if s.deps.StatusPath != "" {
					if err := writeStatusFile(s.deps.StatusPath, st); err != nil {
						logger.Error("Error writing status file", "error", err)
					}
				}

				if s.deps.Recorder != nil {
					lastWrite := time.Duration(st.LastWriteDurationMs * float64(time.Millisecond))
					if err := s.deps.Recorder.RecordStatus(st.BoardID, st.Objects, st.PendingRevisions, lastWrite, st.Time); err != nil {
						logger.Error("Error recording status", "error", err)
					}
				}
			}
		}
	}()

	return nil
}

// Stop stops the status monitor and waits for it to exit.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	select {
	case <-s.stopChan:
	default:
		close(s.stopChan)
	}
	done := s.done
	s.mu.Unlock()
	<-done
}

func writeStatusFile(path string, st Status) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0644)
}
