// Package streaming defines the messages exchanged with a board sync server.
package streaming

import (
	"encoding/json"

	"github.com/planeboard/engine/pkg/core"
)

// Message type constants matching the streaming protocol.
const (
	TypeOpenBoard    = "open_board"
	TypeCloseBoard   = "close_board"
	TypePutObject    = "put_object"
	TypeDeleteObject = "delete_object"
	TypeApplyBatch   = "apply_batch"
	TypeApplyUpdate  = "apply_update"

	TypeAck = "ack"
)

// Envelope wraps all messages sent over the WebSocket. Seq increases per
// connection and is echoed by the ack of the message.
type Envelope struct {
	Seq     uint64          `json:"seq,omitempty"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// AckMessage is the server's acknowledgement response. The ack of
// open_board carries a SnapshotPayload. A non-empty Error means the server
// refused the message.
type AckMessage struct {
	Type    string          `json:"type"` // always "ack"
	Seq     uint64          `json:"seq,omitempty"`
	For     string          `json:"for"` // the message type being acknowledged
	Error   string          `json:"error,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// OpenBoardPayload names the board later messages refer to.
type OpenBoardPayload struct {
	Board *core.Board `json:"board"`
}

// SnapshotPayload is the server's current object list for a board.
type SnapshotPayload struct {
	Objects []core.BoardObject `json:"objects"`
}

// DeleteObjectPayload carries the id of a removed object.
type DeleteObjectPayload struct {
	ID string `json:"id"`
}

// ApplyBatchPayload carries the updates of one finished drag gesture.
type ApplyBatchPayload struct {
	Updates core.BatchUpdatePlan `json:"updates"`
}
