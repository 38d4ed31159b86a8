package ws

import (
	"context"
	"log"
	"sync"
)

// Event is the wire form of every server→client push.
type Event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

const (
	EventNewMessage          = "new_message"
	EventMemberAdded         = "member_added"
	EventConversationRenamed = "conversation_renamed"
	EventPresence            = "presence"
)

// PresenceData is the payload of a global presence broadcast.
type PresenceData struct {
	Username string `json:"username"`
	Status   string `json:"status"` // "online" or "offline"
}

// Authorizer gates room subscriptions on current conversation membership.
type Authorizer interface {
	Authorize(ctx context.Context, userID, conversationID uint) error
}

// Hub tracks which users are connected and which connections are subscribed
// to which conversation room. It is the only mutable shared state of the
// delivery layer and is rebuilt empty on restart. The hub is injected into
// the handlers that need it; tests construct a fresh one per run.
type Hub struct {
	auth Authorizer

	mu      sync.RWMutex
	clients map[string]map[*Client]struct{} // username → live connections
	rooms   map[uint]map[*Client]struct{}   // conversation id → subscribers
}

func NewHub(auth Authorizer) *Hub {
	return &Hub{
		auth:    auth,
		clients: make(map[string]map[*Client]struct{}),
		rooms:   make(map[uint]map[*Client]struct{}),
	}
}

// Connect registers a new connection for the user and broadcasts their
// online status to every connected session.
func (h *Hub) Connect(c *Client) {
	h.mu.Lock()
	if h.clients[c.Username] == nil {
		h.clients[c.Username] = make(map[*Client]struct{})
	}
	h.clients[c.Username][c] = struct{}{}
	h.mu.Unlock()

	log.Printf("ws: %s connected (%s)", c.Username, c.ID)
	h.broadcast(Event{Type: EventPresence, Data: PresenceData{Username: c.Username, Status: "online"}})
}

// Disconnect forgets the connection: its presence entry and every room
// subscription. The offline status is broadcast only when this was the
// user's last live connection, so a second session never goes falsely
// offline.
func (h *Hub) Disconnect(c *Client) {
	c.shutdown()

	h.mu.Lock()
	for convID := range c.joined {
		if set, ok := h.rooms[convID]; ok {
			delete(set, c)
			if len(set) == 0 {
				delete(h.rooms, convID)
			}
		}
	}
	c.joined = nil

	lastSession := false
	if set, ok := h.clients[c.Username]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.clients, c.Username)
			lastSession = true
		}
	}
	h.mu.Unlock()

	log.Printf("ws: %s disconnected (%s)", c.Username, c.ID)
	if lastSession {
		h.broadcast(Event{Type: EventPresence, Data: PresenceData{Username: c.Username, Status: "offline"}})
	}
}

// JoinRoom subscribes the connection to a conversation room. A connection
// that fails the membership check is ignored without an event; the client
// learns nothing about conversations it does not belong to.
func (h *Hub) JoinRoom(ctx context.Context, c *Client, conversationID uint) {
	if err := h.auth.Authorize(ctx, c.UserID, conversationID); err != nil {
		log.Printf("ws: join refused: %s on conversation %d", c.Username, conversationID)
		return
	}

	h.mu.Lock()
	if h.rooms[conversationID] == nil {
		h.rooms[conversationID] = make(map[*Client]struct{})
	}
	h.rooms[conversationID][c] = struct{}{}
	c.joined[conversationID] = struct{}{}
	h.mu.Unlock()

	log.Printf("ws: %s joined room %d", c.Username, conversationID)
}

// Publish delivers an event to every connection subscribed to the
// conversation's room. Delivery is best-effort: a slow or gone subscriber
// never affects the write that triggered the event.
func (h *Hub) Publish(conversationID uint, ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.rooms[conversationID] {
		c.trySend(ev)
	}
}

// Online reports whether the user has at least one live connection.
func (h *Hub) Online(username string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[username]) > 0
}

func (h *Hub) broadcast(ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, set := range h.clients {
		for c := range set {
			c.trySend(ev)
		}
	}
}
