package realtime

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Hub tracks connected clients and the conversations each is subscribed to.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	rooms   map[uuid.UUID]map[*Client]struct{}
	logger  *zap.Logger
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients: make(map[*Client]struct{}),
		rooms:   make(map[uuid.UUID]map[*Client]struct{}),
		logger:  logger,
	}
}

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
}

// Unregister removes c from every room and closes its send channel.
// Safe to call more than once.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	for id, members := range h.rooms {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, id)
		}
	}
	c.close()
}

func (h *Hub) Subscribe(c *Client, conversationID uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c]; !ok {
		return
	}
	members, ok := h.rooms[conversationID]
	if !ok {
		members = make(map[*Client]struct{})
		h.rooms[conversationID] = members
	}
	members[c] = struct{}{}
}

func (h *Hub) Unsubscribe(c *Client, conversationID uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if members, ok := h.rooms[conversationID]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, conversationID)
		}
	}
}

// Subscribers returns how many clients watch the conversation.
func (h *Hub) Subscribers(conversationID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[conversationID])
}

// Deliver queues frame on every subscriber of the conversation without
// blocking. A client whose buffer is full is disconnected. Returns the
// number of clients the frame was queued for.
func (h *Hub) Deliver(conversationID uuid.UUID, frame []byte) int {
	var slow []*Client
	delivered := 0

	h.mu.RLock()
	for c := range h.rooms[conversationID] {
		if c.trySend(frame) {
			delivered++
		} else {
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.logger.Warn("dropping slow websocket client",
			zap.String("user_id", c.UserID.String()),
			zap.String("conversation_id", conversationID.String()),
		)
		h.Unregister(c)
	}
	return delivered
}

// Publish delivers ev to this process's subscribers only.
func (h *Hub) Publish(_ context.Context, ev Event) error {
	frame, err := ev.Encode()
	if err != nil {
		return err
	}
	h.Deliver(ev.ConversationID, frame)
	return nil
}
