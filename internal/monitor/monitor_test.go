package monitor

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/planeboard/engine/internal/drag"
	"github.com/planeboard/engine/internal/handlers"
	"github.com/planeboard/engine/pkg/core"
)

type statusSample struct {
	board   string
	objects int
}

type mockRecorder struct {
	mu      sync.Mutex
	samples []statusSample
}

func (r *mockRecorder) RecordStatus(boardID string, objects, _ int, _ time.Duration, _ time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.samples = append(r.samples, statusSample{boardID, objects})
	return nil
}

func (r *mockRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.samples)
}

func openBoard(t *testing.T) *handlers.BoardContext {
	t.Helper()
	ctx := handlers.NewBoardContext()
	svc := handlers.NewService(handlers.Dependencies{Drag: drag.DefaultConfig()}, ctx)
	_, err := svc.OpenBoard(core.Board{ID: "b1", Name: "Roadmap"}, []core.BoardObject{
		{ID: "a", Kind: core.KindNote, Width: 100, Height: 100},
		{ID: "b", Kind: core.KindText, X: 300, Width: 100, Height: 20},
	})
	require.NoError(t, err)
	return ctx
}

func TestGetStatus_NoBoard(t *testing.T) {
	s := NewService(Dependencies{BoardContext: handlers.NewBoardContext()})

	st := s.GetStatus()
	assert.Equal(t, "", st.BoardID)
	assert.Zero(t, st.Objects)
}

func TestGetStatus_OpenBoard(t *testing.T) {
	st := NewService(Dependencies{BoardContext: openBoard(t)}).GetStatus()
	assert.Equal(t, "b1", st.BoardID)
	assert.Equal(t, "Roadmap", st.BoardName)
	assert.Equal(t, 2, st.Objects)
	assert.Zero(t, st.PendingRevisions)
}

func TestStartStop(t *testing.T) {
	path := filepath.Join(t.TempDir(), "status.json")
	rec := &mockRecorder{}
	s := NewService(Dependencies{
		BoardContext: openBoard(t),
		Recorder:     rec,
		StatusPath:   path,
		Interval:     5 * time.Millisecond,
	})

	require.NoError(t, s.Start())
	require.NoError(t, s.Start())
	assert.Eventually(t, func() bool { return rec.count() > 0 }, time.Second, 5*time.Millisecond)
	s.Stop()
	assert.False(t, s.IsRunning())
	s.Stop()

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var st Status
	require.NoError(t, json.Unmarshal(raw, &st))
	assert.Equal(t, "b1", st.BoardID)
	assert.Equal(t, 2, st.Objects)

	rec.mu.Lock()
	assert.Equal(t, statusSample{"b1", 2}, rec.samples[0])
	rec.mu.Unlock()
}
