package websocket

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	ws "github.com/gorilla/websocket"

	"github.com/planeboard/engine/pkg/streaming"
)

const (
	outboxSize   = 10_000
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = pongWait * 9 / 10
	ackTimeout   = 10 * time.Second
	firstBackoff = time.Second
	maxBackoff   = 30 * time.Second
	maxReconnect = 10
)

var (
	// ErrRejected wraps the reason of an ack carrying an error.
	ErrRejected = errors.New("rejected by sync server")
	// ErrConnClosed is returned to callers waiting on a closed connection.
	ErrConnClosed = errors.New("websocket connection closed")
)

// conn owns one server session. A single goroutine writes; acks are matched
// to waiting calls by sequence number.
type conn struct {
	url    string
	secret string
	logger *slog.Logger

	mu      sync.Mutex
	ws      *ws.Conn
	closed  bool
	openMsg []byte // replayed after a reconnect

	seq     atomic.Uint64
	waitMu  sync.Mutex
	waiters map[uint64]chan streaming.AckMessage

	outbox chan []byte
	done   chan struct{}
}

func newConn(rawURL, secret string, logger *slog.Logger) *conn {
	return &conn{
		url:     rawURL,
		secret:  secret,
		logger:  logger,
		waiters: make(map[uint64]chan streaming.AckMessage),
		outbox:  make(chan []byte, outboxSize),
		done:    make(chan struct{}),
	}
}

func (c *conn) open() error {
	sock, err := c.dial()
	if err != nil {
		return err
	}
	c.start(sock)
	return nil
}

func (c *conn) dial() (*ws.Conn, error) {
	u, err := url.Parse(c.url)
	if err != nil {
		return nil, fmt.Errorf("invalid websocket URL: %w", err)
	}
	q := u.Query()
	q.Set("secret", c.secret)
	u.RawQuery = q.Encode()

	sock, _, err := ws.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}
	return sock, nil
}

func (c *conn) start(sock *ws.Conn) {
	c.mu.Lock()
	c.ws = sock
	c.mu.Unlock()

	sock.SetReadDeadline(time.Now().Add(pongWait))
	sock.SetPongHandler(func(string) error {
		return sock.SetReadDeadline(time.Now().Add(pongWait))
	})

	lost := make(chan struct{})
	var once sync.Once
	fail := func(err error) {
		once.Do(func() {
			close(lost)
			select {
			case <-c.done:
			default:
				c.logger.Warn("WebSocket connection lost", "error", err)
				go c.reconnect(sock)
			}
		})
	}
	go c.writeLoop(sock, lost, fail)
	go c.readLoop(sock, fail)
}

// encode wraps payload in an envelope with the next sequence number.
func (c *conn) encode(msgType string, payload any) (uint64, []byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, fmt.Errorf("marshal %s payload: %w", msgType, err)
	}
	seq := c.seq.Add(1)
	data, err := json.Marshal(streaming.Envelope{Seq: seq, Type: msgType, Payload: raw})
	if err != nil {
		return 0, nil, fmt.Errorf("marshal %s envelope: %w", msgType, err)
	}
	return seq, data, nil
}

// send queues a message without waiting for its ack.
func (c *conn) send(msgType string, payload any) error {
	_, data, err := c.encode(msgType, payload)
	if err != nil {
		return err
	}
	c.enqueue(data)
	return nil
}

func (c *conn) enqueue(data []byte) {
	select {
	case c.outbox <- data:
	default:
		c.logger.Warn("WebSocket outbox full, dropping message")
	}
}

// call sends a message and waits for the ack with its sequence number.
// remember marks open_board, which is replayed after reconnects.
func (c *conn) call(msgType string, payload any, timeout time.Duration, remember bool) (streaming.AckMessage, error) {
	seq, data, err := c.encode(msgType, payload)
	if err != nil {
		return streaming.AckMessage{}, err
	}
	if remember {
		c.mu.Lock()
		c.openMsg = data
		c.mu.Unlock()
	}

	ch := make(chan streaming.AckMessage, 1)
	c.waitMu.Lock()
	c.waiters[seq] = ch
	c.waitMu.Unlock()
	defer func() {
		c.waitMu.Lock()
		delete(c.waiters, seq)
		c.waitMu.Unlock()
	}()

	c.enqueue(data)

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case ack := <-ch:
		if ack.Error != "" {
			return ack, fmt.Errorf("%s: %w: %s", msgType, ErrRejected, ack.Error)
		}
		return ack, nil
	case <-timer.C:
		return streaming.AckMessage{}, fmt.Errorf("timeout waiting for ack of %s #%d", msgType, seq)
	case <-c.done:
		return streaming.AckMessage{}, ErrConnClosed
	}
}

func (c *conn) forget() {
	c.mu.Lock()
	c.openMsg = nil
	c.mu.Unlock()
}

func (c *conn) writeLoop(sock *ws.Conn, lost <-chan struct{}, fail func(error)) {
	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	for {
		var (
			kind = ws.TextMessage
			data []byte
		)
		select {
		case <-c.done:
			return
		case <-lost:
			return
		case <-ping.C:
			kind = ws.PingMessage
		case data = <-c.outbox:
		}

		if err := sock.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
			fail(err)
			return
		}
		if err := sock.WriteMessage(kind, data); err != nil {
			if kind == ws.TextMessage {
				// keep the message for the next connection
				c.enqueue(data)
			}
			fail(err)
			return
		}
	}
}

func (c *conn) readLoop(sock *ws.Conn, fail func(error)) {
	for {
		_, msg, err := sock.ReadMessage()
		if err != nil {
			fail(err)
			return
		}
		var ack streaming.AckMessage
		if err := json.Unmarshal(msg, &ack); err != nil || ack.Type != streaming.TypeAck {
			c.logger.Debug("Ignoring server message", "raw", string(msg))
			continue
		}

		c.waitMu.Lock()
		ch, ok := c.waiters[ack.Seq]
		c.waitMu.Unlock()
		if !ok {
			c.logger.Debug("Ack without waiter", "seq", ack.Seq, "for", ack.For)
			continue
		}
		select {
		case ch <- ack:
		default:
		}
	}
}

// reconnect redials with exponential backoff, replays the open board and
// restarts both loops.
func (c *conn) reconnect(old *ws.Conn) {
	old.Close()

	backoff := firstBackoff
	for attempt := 1; attempt <= maxReconnect; attempt++ {
		select {
		case <-c.done:
			return
		case <-time.After(backoff):
		}

		sock, err := c.dial()
		if err != nil {
			c.logger.Warn("Reconnect dial failed", "attempt", attempt, "error", err)
			backoff = min(backoff*2, maxBackoff)
			continue
		}

		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			sock.Close()
			return
		}
		replay := c.openMsg
		c.mu.Unlock()

		if replay != nil {
			sock.SetWriteDeadline(time.Now().Add(writeWait))
			if err := sock.WriteMessage(ws.TextMessage, replay); err != nil {
				c.logger.Warn("Failed to replay open_board", "attempt", attempt, "error", err)
				sock.Close()
				continue
			}
		}
		c.logger.Info("WebSocket reconnected", "attempt", attempt)
		c.start(sock)
		return
	}
	c.logger.Error("WebSocket reconnect failed", "attempts", maxReconnect)
}

// close sends a close frame and stops both loops. Waiting calls return
// ErrConnClosed.
func (c *conn) close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.done)
	sock := c.ws
	c.ws = nil
	c.mu.Unlock()

	if sock == nil {
		return nil
	}
	_ = sock.WriteControl(ws.CloseMessage,
		ws.FormatCloseMessage(ws.CloseNormalClosure, ""), time.Now().Add(writeWait))
	return sock.Close()
}
