package handlers

import (
	"log/slog"
	"sync"

	"github.com/planeboard/engine/internal/board"
	"github.com/planeboard/engine/internal/drag"
	"github.com/planeboard/engine/pkg/core"
)

// BoardContext holds the open board and the engine objects bound to it.
type BoardContext struct {
	mu         sync.RWMutex
	board      *core.Board
	session    *board.Session
	controller *drag.Controller
}

// NewBoardContext creates a BoardContext with no board loaded.
func NewBoardContext() *BoardContext {
	return &BoardContext{}
}

// GetBoard returns the open board, or a placeholder when none is open.
func (bc *BoardContext) GetBoard() *core.Board {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	if bc.board == nil {
		return &core.Board{Name: "No board loaded"}
	}
	return bc.board
}

// Active returns the session and controller of the open board.
func (bc *BoardContext) Active() (*board.Session, *drag.Controller, bool) {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	if bc.session == nil {
		return nil, nil, false
	}
	return bc.session, bc.controller, true
}

// Set replaces the open board.
func (bc *BoardContext) Set(b *core.Board, s *board.Session, c *drag.Controller) {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	bc.board = b
	bc.session = s
	bc.controller = c
}

// Clear forgets the open board.
func (bc *BoardContext) Clear() {
	bc.Set(nil, nil, nil)
}

// LogAttrs adds the open board to every log record.
func (bc *BoardContext) LogAttrs() []slog.Attr {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	if bc.board == nil {
		return nil
	}
	return []slog.Attr{slog.String("boardId", bc.board.ID)}
}
