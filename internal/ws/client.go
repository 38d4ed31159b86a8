package ws

import (
	"context"
	"time"

	"github.com/google/uuid"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// Client is one live websocket connection for one authenticated user. A user
// with several open tabs has several clients.
type Client struct {
	ID       string
	UserID   uint
	Username string
	Conn     *websocket.Conn

	// Send buffers outbound events; trySend drops when it is full rather
	// than block a publisher on a slow reader.
	Send chan Event

	// joined is the set of subscribed rooms, maintained under the hub lock.
	joined map[uint]struct{}

	ctx    context.Context
	cancel context.CancelFunc
}

// NewClient wraps an accepted websocket connection. Start must be called once
// to launch the write and keep-alive loops; keeping it separate from Connect
// lets tests observe Send directly.
func NewClient(userID uint, username string, conn *websocket.Conn) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		ID:       uuid.NewString(),
		UserID:   userID,
		Username: username,
		Conn:     conn,
		Send:     make(chan Event, 64),
		joined:   make(map[uint]struct{}),
		ctx:      ctx,
		cancel:   cancel,
	}
}

func (c *Client) Start() {
	go c.writeLoop()
	go c.keepAliveLoop()
}

func (c *Client) trySend(ev Event) {
	select {
	case <-c.ctx.Done():
	case c.Send <- ev:
	default:
		// full buffer: drop the event for this connection
	}
}

func (c *Client) shutdown() {
	c.cancel()
	if c.Conn != nil {
		_ = c.Conn.Close(websocket.StatusNormalClosure, "bye")
	}
}

func (c *Client) writeLoop() {
	for {
		select {
		case <-c.ctx.Done():
			return
		case ev := <-c.Send:
			writeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			_ = wsjson.Write(writeCtx, c.Conn, ev)
			cancel()
		}
	}
}

func (c *Client) keepAliveLoop() {
	ticker := time.NewTicker(25 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			_ = c.Conn.Ping(pingCtx)
			cancel()
		}
	}
}
