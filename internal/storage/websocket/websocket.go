package websocket

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/planeboard/engine/pkg/core"
	"github.com/planeboard/engine/pkg/streaming"
)

// Config holds WebSocket backend configuration.
type Config struct {
	URL    string
	Secret string
}

// Backend streams board changes over WebSocket to a board sync server.
// It implements storage.Backend but not storage.Exportable.
type Backend struct {
	conn *conn
}

// New creates a new WebSocket storage backend. Nothing is dialed before Init.
func New(cfg Config, logger *slog.Logger) *Backend {
	if logger == nil {
		logger = slog.Default()
	}
	return &Backend{conn: newConn(cfg.URL, cfg.Secret, logger.With("component", "websocket-storage"))}
}

// Init connects to the WebSocket server.
func (b *Backend) Init() error {
	return b.conn.open()
}

// Close disconnects from the WebSocket server.
func (b *Backend) Close() error {
	return b.conn.close()
}

// OpenBoard announces the board and returns the snapshot the server acks
// with. The announcement is repeated after every reconnect.
func (b *Backend) OpenBoard(board *core.Board) ([]core.BoardObject, error) {
	ack, err := b.conn.call(streaming.TypeOpenBoard, streaming.OpenBoardPayload{Board: board}, ackTimeout, true)
	if err != nil {
		return nil, err
	}
	if len(ack.Payload) == 0 {
		return nil, nil
	}
	var snap streaming.SnapshotPayload
	if err := json.Unmarshal(ack.Payload, &snap); err != nil {
		return nil, fmt.Errorf("decode %s snapshot: %w", streaming.TypeOpenBoard, err)
	}
	return snap.Objects, nil
}

// CloseBoard sends close_board and waits for server ack.
func (b *Backend) CloseBoard() error {
	defer b.conn.forget()
	_, err := b.conn.call(streaming.TypeCloseBoard, nil, ackTimeout, false)
	return err
}

func (b *Backend) PutObject(obj *core.BoardObject) error {
	return b.conn.send(streaming.TypePutObject, obj)
}

func (b *Backend) DeleteObject(id string) error {
	return b.conn.send(streaming.TypeDeleteObject, streaming.DeleteObjectPayload{ID: id})
}

// ApplyBatch waits for the ack so a gesture is never half-applied remotely.
func (b *Backend) ApplyBatch(plan core.BatchUpdatePlan) error {
	if len(plan) == 0 {
		return nil
	}
	_, err := b.conn.call(streaming.TypeApplyBatch, streaming.ApplyBatchPayload{Updates: plan}, ackTimeout, false)
	return err
}

func (b *Backend) ApplyUpdate(u core.Update) error {
	return b.conn.send(streaming.TypeApplyUpdate, u)
}
