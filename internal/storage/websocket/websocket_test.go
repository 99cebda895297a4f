package websocket

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	ws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/planeboard/engine/internal/storage"
	"github.com/planeboard/engine/pkg/core"
	"github.com/planeboard/engine/pkg/streaming"
)

var _ storage.Backend = (*Backend)(nil)

// syncServer is a fake board sync server. It records every envelope and
// acks open_board (with snapshot), close_board and apply_batch.
type syncServer struct {
	*httptest.Server

	snapshot []core.BoardObject
	// reject maps a message type to the error its ack carries
	reject map[string]string
	// dropAfterOpen closes the first session right after acking open_board
	dropAfterOpen bool

	mu       sync.Mutex
	secret   string
	sessions int
	received []streaming.Envelope
}

func newSyncServer(t *testing.T, configure func(*syncServer)) *syncServer {
	t.Helper()
	s := &syncServer{}
	if configure != nil {
		configure(s)
	}
	upgrader := ws.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("upgrade error: %v", err)
			return
		}
		defer c.Close()

		s.mu.Lock()
		s.secret = r.URL.Query().Get("secret")
		s.sessions++
		session := s.sessions
		s.mu.Unlock()

		for {
			_, msg, err := c.ReadMessage()
			if err != nil {
				return
			}
			var env streaming.Envelope
			if err := json.Unmarshal(msg, &env); err != nil {
				continue
			}
			s.mu.Lock()
			s.received = append(s.received, env)
			s.mu.Unlock()

			ack := streaming.AckMessage{Type: streaming.TypeAck, Seq: env.Seq, For: env.Type, Error: s.reject[env.Type]}
			switch env.Type {
			case streaming.TypeOpenBoard:
				ack.Payload, _ = json.Marshal(streaming.SnapshotPayload{Objects: s.snapshot})
			case streaming.TypeCloseBoard, streaming.TypeApplyBatch:
			default:
				continue
			}
			data, _ := json.Marshal(ack)
			if err := c.WriteMessage(ws.TextMessage, data); err != nil {
				return
			}
			if s.dropAfterOpen && session == 1 && env.Type == streaming.TypeOpenBoard {
				return
			}
		}
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *syncServer) url() string {
	return "ws" + strings.TrimPrefix(s.URL, "http")
}

func (s *syncServer) messages() []streaming.Envelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]streaming.Envelope(nil), s.received...)
}

func (s *syncServer) types() []string {
	var out []string
	for _, m := range s.messages() {
		out = append(out, m.Type)
	}
	return out
}

func connect(t *testing.T, s *syncServer) *Backend {
	t.Helper()
	b := New(Config{URL: s.url(), Secret: "test"}, nil)
	require.NoError(t, b.Init())
	t.Cleanup(func() { b.Close() })
	return b
}

func TestOpenAndCloseBoard(t *testing.T) {
	srv := newSyncServer(t, func(s *syncServer) {
		s.snapshot = []core.BoardObject{
			{ID: "a", Kind: core.KindRectangle, X: 10, Y: 20, Width: 100, Height: 50},
			{ID: "f", Kind: core.KindFrame, Width: 400, Height: 300},
		}
	})
	b := connect(t, srv)

	objs, err := b.OpenBoard(&core.Board{ID: "b1", Name: "Roadmap", OpenedAt: time.Now()})
	require.NoError(t, err)
	require.Len(t, objs, 2)
	assert.Equal(t, "a", objs[0].ID)
	assert.Equal(t, core.KindFrame, objs[1].Kind)

	require.NoError(t, b.CloseBoard())

	msgs := srv.messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, streaming.TypeOpenBoard, msgs[0].Type)
	assert.Equal(t, streaming.TypeCloseBoard, msgs[1].Type)
	assert.Less(t, msgs[0].Seq, msgs[1].Seq)

	var open streaming.OpenBoardPayload
	require.NoError(t, json.Unmarshal(msgs[0].Payload, &open))
	assert.Equal(t, "Roadmap", open.Board.Name)

	b.conn.mu.Lock()
	assert.Nil(t, b.conn.openMsg)
	b.conn.mu.Unlock()
	srv.mu.Lock()
	assert.Equal(t, "test", srv.secret)
	srv.mu.Unlock()
}

func TestOpenBoardEmptySnapshot(t *testing.T) {
	b := connect(t, newSyncServer(t, nil))

	objs, err := b.OpenBoard(&core.Board{ID: "b1"})
	require.NoError(t, err)
	assert.Empty(t, objs)
}

func TestMessagesKeepDispatchOrder(t *testing.T) {
	srv := newSyncServer(t, nil)
	b := connect(t, srv)

	_, err := b.OpenBoard(&core.Board{ID: "b1"})
	require.NoError(t, err)

	var p core.Patch
	p.SetPosition(40, 60)
	require.NoError(t, b.PutObject(&core.BoardObject{ID: "a", Kind: core.KindNote, Width: 100, Height: 100}))
	require.NoError(t, b.ApplyUpdate(core.Update{ObjectID: "a", Patch: p}))
	require.NoError(t, b.ApplyBatch(core.BatchUpdatePlan{{ObjectID: "a", Patch: p}}))
	require.NoError(t, b.DeleteObject("a"))
	require.NoError(t, b.CloseBoard())

	assert.Equal(t, []string{
		streaming.TypeOpenBoard,
		streaming.TypePutObject,
		streaming.TypeApplyUpdate,
		streaming.TypeApplyBatch,
		streaming.TypeDeleteObject,
		streaming.TypeCloseBoard,
	}, srv.types())

	var deleted streaming.DeleteObjectPayload
	require.NoError(t, json.Unmarshal(srv.messages()[4].Payload, &deleted))
	assert.Equal(t, "a", deleted.ID)
}

func TestApplyBatchEmptyPlanSendsNothing(t *testing.T) {
	srv := newSyncServer(t, nil)
	b := connect(t, srv)

	require.NoError(t, b.ApplyBatch(nil))
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, srv.messages())
}

func TestApplyBatchPayload(t *testing.T) {
	srv := newSyncServer(t, nil)
	b := connect(t, srv)

	var p core.Patch
	p.SetPosition(1, 2)
	p.ParentFrameID = core.StringPtr("f")
	require.NoError(t, b.ApplyBatch(core.BatchUpdatePlan{{ObjectID: "a", Patch: p}}))

	msgs := srv.messages()
	require.Len(t, msgs, 1)
	var batch streaming.ApplyBatchPayload
	require.NoError(t, json.Unmarshal(msgs[0].Payload, &batch))
	require.Len(t, batch.Updates, 1)
	require.NotNil(t, batch.Updates[0].Patch.ParentFrameID)
	assert.Equal(t, "f", *batch.Updates[0].Patch.ParentFrameID)
}

func TestRejectedBatch(t *testing.T) {
	srv := newSyncServer(t, func(s *syncServer) {
		s.reject = map[string]string{streaming.TypeApplyBatch: "board is read-only"}
	})
	b := connect(t, srv)

	var p core.Patch
	p.SetPosition(1, 2)
	err := b.ApplyBatch(core.BatchUpdatePlan{{ObjectID: "a", Patch: p}})
	require.ErrorIs(t, err, ErrRejected)
	assert.Contains(t, err.Error(), "board is read-only")
}

func TestReconnectReplaysOpenBoard(t *testing.T) {
	srv := newSyncServer(t, func(s *syncServer) { s.dropAfterOpen = true })
	b := connect(t, srv)

	_, err := b.OpenBoard(&core.Board{ID: "b1"})
	require.NoError(t, err)

	// the second session starts with the replayed announcement
	require.Eventually(t, func() bool {
		return len(srv.messages()) >= 2
	}, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, []string{streaming.TypeOpenBoard, streaming.TypeOpenBoard}, srv.types()[:2])

	var p core.Patch
	p.SetPosition(5, 5)
	require.NoError(t, b.ApplyBatch(core.BatchUpdatePlan{{ObjectID: "a", Patch: p}}))
	assert.Equal(t, streaming.TypeApplyBatch, srv.types()[2])
}

func TestCallsFailAfterClose(t *testing.T) {
	b := connect(t, newSyncServer(t, nil))
	require.NoError(t, b.Close())
	require.NoError(t, b.Close())

	_, err := b.OpenBoard(&core.Board{ID: "b1"})
	assert.ErrorIs(t, err, ErrConnClosed)
}

func TestDialFailure(t *testing.T) {
	b := New(Config{URL: "ws://127.0.0.1:1/ws", Secret: "s"}, nil)
	assert.Error(t, b.Init())
}
