package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 64 * 1024
	sendBuffer     = 256
)

// SubscribeCheck decides whether userID may follow a conversation.
type SubscribeCheck func(ctx context.Context, userID, conversationID uuid.UUID) error

// Client is one staff websocket connection.
type Client struct {
	UserID uuid.UUID

	hub  *Hub
	conn *websocket.Conn

	mu     sync.Mutex
	closed bool
	send   chan []byte
}

func NewClient(hub *Hub, conn *websocket.Conn, userID uuid.UUID) *Client {
	return &Client{
		UserID: userID,
		hub:    hub,
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
	}
}

// command is what clients send us.
type command struct {
	Action         string    `json:"action"`
	ConversationID uuid.UUID `json:"conversation_id"`
}

type reply struct {
	Kind           string     `json:"kind"`
	ConversationID *uuid.UUID `json:"conversation_id,omitempty"`
	Error          string     `json:"error,omitempty"`
}

// Serve registers the client and runs its pumps until the connection
// closes. It blocks.
func (c *Client) Serve(ctx context.Context, check SubscribeCheck) {
	c.hub.Register(c)
	go c.writePump()
	c.readPump(ctx, check)
}

func (c *Client) readPump(ctx context.Context, check SubscribeCheck) {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Debug("websocket read failed", zap.Error(err))
			}
			return
		}

		var cmd command
		if err := json.Unmarshal(data, &cmd); err != nil {
			c.reply(reply{Kind: "error", Error: "invalid command"})
			continue
		}
		c.handle(ctx, check, cmd)
	}
}

func (c *Client) handle(ctx context.Context, check SubscribeCheck, cmd command) {
	id := cmd.ConversationID
	switch cmd.Action {
	case "subscribe":
		if check != nil {
			if err := check(ctx, c.UserID, id); err != nil {
				c.reply(reply{Kind: "error", ConversationID: &id, Error: err.Error()})
				return
			}
		}
		c.hub.Subscribe(c, id)
		c.hub.logger.Debug("websocket subscribed",
			zap.Stringer("conversation_id", id),
			zap.Stringer("user_id", c.UserID),
			zap.Int("subscribers", c.hub.Subscribers(id)),
		)
		c.reply(reply{Kind: "subscribed", ConversationID: &id})
	case "unsubscribe":
		c.hub.Unsubscribe(c, id)
		c.hub.logger.Debug("websocket unsubscribed",
			zap.Stringer("conversation_id", id),
			zap.Stringer("user_id", c.UserID),
			zap.Int("subscribers", c.hub.Subscribers(id)),
		)
		c.reply(reply{Kind: "unsubscribed", ConversationID: &id})
	default:
		c.reply(reply{Kind: "error", Error: "unknown action " + cmd.Action})
	}
}

func (c *Client) reply(r reply) {
	b, err := json.Marshal(r)
	if err != nil {
		return
	}
	// Replies share the event queue so only writePump touches the conn.
	c.trySend(b)
}

// trySend queues frame without blocking. It reports false when the buffer
// is full or the client is already closed.
func (c *Client) trySend(frame []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
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
