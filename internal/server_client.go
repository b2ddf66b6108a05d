package internal

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
	"github.com/google/uuid"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	maxMsgSize = 8192
)

// Client wraps one websocket connection and a buffered send queue. The id
// is connection-scoped: it becomes the User.ID on join and dies with the
// socket, which is why history can reference departed users by stale id.
type Client struct {
	room   *Room
	conn   *websocket.Conn
	connID string
	send   chan []byte
}

func newClient(room *Room, conn *websocket.Conn) *Client {
	return &Client{
		room:   room,
		conn:   conn,
		connID: uuid.NewString(),
		send:   make(chan []byte, 256),
	}
}

// ID implements subscriber.
func (c *Client) ID() string { return c.connID }

// trySend implements subscriber: non-blocking, reports false when the
// buffer is full so the room can drop this connection.
func (c *Client) trySend(payload []byte) bool {
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// closeSend implements subscriber. Only the room loop calls this, after
// the client has been removed, so no trySend can race the close.
func (c *Client) closeSend() { close(c.send) }

// readPump decodes inbound envelopes and turns them into room intents.
// A read error of any kind ends the loop and detaches the client, which
// removes its user and typing entry in one step.
func (c *Client) readPump() {
	defer func() {
		c.room.detach(c)
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMsgSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			break
		}
		env, err := decodeEnvelope(payload)
		if err != nil {
			slog.Debug("bad_frame", "id", c.connID, "error", err)
			continue
		}
		c.dispatch(env)
	}
}

func (c *Client) dispatch(env Envelope) {
	switch env.Event {
	case EventJoin:
		var req JoinRequest
		if err := json.Unmarshal(env.Data, &req); err != nil {
			return
		}
		c.room.join(c, req.DisplayName)
	case EventRejoin:
		var req RejoinRequest
		if err := json.Unmarshal(env.Data, &req); err != nil {
			c.trySend(mustEncodeEvent(EventRejoinFailed, nil))
			return
		}
		c.room.rejoin(c, req.SessionID, req.DisplayName)
	case EventMessage:
		var req MessageRequest
		if err := json.Unmarshal(env.Data, &req); err != nil {
			return
		}
		c.room.sendText(c, req.Content)
	case EventFileMessage:
		var req FileMessageRequest
		if err := json.Unmarshal(env.Data, &req); err != nil {
			return
		}
		c.room.sendFile(c, req.FileInfo)
	case EventTyping:
		var typing bool
		if err := json.Unmarshal(env.Data, &typing); err != nil {
			return
		}
		c.room.setTyping(c, typing)
	case EventManualLeave:
		c.room.leave(c)
	default:
		slog.Debug("unknown_event", "event", env.Event, "id", c.connID)
	}
}

// writePump drains the send queue onto the socket and keeps the
// connection alive with pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case payload, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
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
