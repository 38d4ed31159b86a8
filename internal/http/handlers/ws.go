package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"chat-server/internal/http/middleware"
	"chat-server/internal/ws"
)

type WSHandler struct {
	Hub                  *ws.Hub
	JWTSecret            string
	WSInsecureSkipVerify bool
}

// inbound is the only client→server frame: a room join request.
type inbound struct {
	Type string `json:"type"`
	Data struct {
		ConversationID uint `json:"conversation_id"`
	} `json:"data"`
}

func (h *WSHandler) Handle(c *gin.Context) {
	// Browser websockets cannot set an Authorization header, so the token
	// travels as a query param.
	tokenStr := c.Query("token")
	if tokenStr == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "missing token"})
		return
	}

	claims, err := middleware.ParseToken(tokenStr, h.JWTSecret)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "invalid token"})
		return
	}

	opts := &websocket.AcceptOptions{}
	// Dev-only escape hatch for cross-origin frontends; production should
	// configure OriginPatterns instead.
	if h.WSInsecureSkipVerify {
		opts.InsecureSkipVerify = true
	}

	conn, err := websocket.Accept(c.Writer, c.Request, opts)
	if err != nil {
		return // Accept already wrote the error response
	}

	client := ws.NewClient(claims.UserID, claims.Username, conn)
	client.Start()
	h.Hub.Connect(client)
	defer h.Hub.Disconnect(client)

	h.readLoop(c.Request.Context(), client, conn)
}

// readLoop processes join_room requests until the connection drops. Reading
// also keeps control frames (close/ping/pong) flowing.
func (h *WSHandler) readLoop(ctx context.Context, client *ws.Client, conn *websocket.Conn) {
	for {
		var in inbound
		if err := wsjson.Read(ctx, conn, &in); err != nil {
			return
		}
		if in.Type == "join_room" && in.Data.ConversationID != 0 {
			h.Hub.JoinRoom(ctx, client, in.Data.ConversationID)
		}
	}
}
