package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/suPer8Hu/presence-hub/internal/realtime"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBuffer     = 256
)

// Inbound is one client -> server frame.
type Inbound struct {
	Event string          `json:"event"`
	Ack   *int64          `json:"ack,omitempty"`
	Data  json.RawMessage `json:"data"`
}

// AckFrame answers one Inbound frame on the same connection.
type AckFrame struct {
	Type  string         `json:"type"`
	Ack   *int64         `json:"ack,omitempty"`
	Event string         `json:"event"`
	Data  realtime.Reply `json:"data"`
}

type Client struct {
	hub     *Hub
	conn    *websocket.Conn
	session realtime.Session
	log     *slog.Logger

	mu     sync.Mutex
	send   chan []byte
	closed bool
}

func NewClient(hub *Hub, conn *websocket.Conn, s realtime.Session) *Client {
	return &Client{
		hub:     hub,
		conn:    conn,
		session: s,
		send:    make(chan []byte, sendBuffer),
		log:     hub.log.With("session_id", s.ID, "user_id", s.UserID),
	}
}

// trySend queues payload without blocking. It reports false when the queue is full or closed.
func (c *Client) trySend(payload []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// SendJSON queues v for this connection only.
func (c *Client) SendJSON(v any) bool {
	b, err := json.Marshal(v)
	if err != nil {
		c.log.Error("marshal frame failed", "err", err)
		return false
	}
	return c.trySend(b)
}

// Close tears down the underlying connection; the read loop then returns.
func (c *Client) Close() {
	_ = c.conn.Close()
}

// ReadPump handles inbound frames one at a time until the connection fails or closes.
func (c *Client) ReadPump(ctx context.Context, d *realtime.Dispatcher) {
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) &&
				!errors.Is(err, websocket.ErrCloseSent) {
				c.log.Debug("read failed", "err", err)
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))

		var in Inbound
		if err := json.Unmarshal(raw, &in); err != nil || in.Event == "" {
			c.SendJSON(AckFrame{Type: "ack", Data: realtime.Reply{Error: realtime.ErrValidation.Error(), Detail: "malformed frame"}})
			continue
		}

		reply := d.Dispatch(ctx, c.session, in.Event, in.Data)
		c.SendJSON(AckFrame{Type: "ack", Ack: in.Ack, Event: in.Event, Data: reply})
	}
}

// WritePump is the only writer of the connection. It exits when the send queue is closed or a
// write fails.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.log.Debug("write failed", "err", err)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
