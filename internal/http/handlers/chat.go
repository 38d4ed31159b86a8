package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"chat-server/internal/chat"
	"chat-server/internal/http/middleware"
	"chat-server/internal/ws"
)

type ChatHandler struct {
	Service *chat.Service
	Hub     *ws.Hub
}

type createChatReq struct {
	Participants []string `json:"participants" binding:"required,min=1"`
}

func (h *ChatHandler) CreateConversation(c *gin.Context) {
	var req createChatReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "participants required"})
		return
	}

	id, err := h.Service.CreateChat(middleware.MustUsername(c), req.Participants)
	if err != nil {
		respondChatError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"conversation_id": id})
}

func (h *ChatHandler) ListConversations(c *gin.Context) {
	summaries, err := h.Service.ListChats(middleware.MustUsername(c))
	if err != nil {
		respondChatError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": summaries})
}

func (h *ChatHandler) GetConversation(c *gin.Context) {
	convID, ok := conversationID(c)
	if !ok {
		return
	}

	detail, err := h.Service.GetChat(c.Request.Context(), middleware.MustUserID(c), convID)
	if err != nil {
		respondChatError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": detail})
}

type sendMessageReq struct {
	Message string `json:"message" binding:"required"`
}

func (h *ChatHandler) SendMessage(c *gin.Context) {
	convID, ok := conversationID(c)
	if !ok {
		return
	}

	var req sendMessageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "message required"})
		return
	}

	view, err := h.Service.SendMessage(
		c.Request.Context(),
		middleware.MustUserID(c),
		middleware.MustUsername(c),
		convID,
		req.Message,
	)
	if err != nil {
		respondChatError(c, err)
		return
	}

	// Fan-out carries the plaintext view; subscribers never see ciphertext.
	h.Hub.Publish(convID, ws.Event{Type: ws.EventNewMessage, Data: view})

	c.JSON(http.StatusCreated, gin.H{"data": view})
}

type addParticipantReq struct {
	Username string `json:"username" binding:"required"`
}

func (h *ChatHandler) AddParticipant(c *gin.Context) {
	convID, ok := conversationID(c)
	if !ok {
		return
	}

	var req addParticipantReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "username required"})
		return
	}

	err := h.Service.AddUserToChat(c.Request.Context(), middleware.MustUserID(c), convID, req.Username)
	if err != nil {
		respondChatError(c, err)
		return
	}

	h.Hub.Publish(convID, ws.Event{Type: ws.EventMemberAdded, Data: gin.H{
		"conversation_id": convID,
		"username":        req.Username,
		"added_by":        middleware.MustUsername(c),
	}})

	c.JSON(http.StatusOK, gin.H{"message": "user added"})
}

type renameReq struct {
	Name string `json:"name" binding:"required"`
}

func (h *ChatHandler) RenameConversation(c *gin.Context) {
	convID, ok := conversationID(c)
	if !ok {
		return
	}

	var req renameReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "name required"})
		return
	}

	err := h.Service.RenameChat(c.Request.Context(), middleware.MustUserID(c), convID, req.Name)
	if err != nil {
		respondChatError(c, err)
		return
	}

	h.Hub.Publish(convID, ws.Event{Type: ws.EventConversationRenamed, Data: gin.H{
		"conversation_id": convID,
		"name":            req.Name,
		"renamed_by":      middleware.MustUsername(c),
	}})

	c.JSON(http.StatusOK, gin.H{"message": "conversation renamed"})
}

func conversationID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid conversation id"})
		return 0, false
	}
	return uint(id), true
}

func respondChatError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, chat.ErrAccessDenied):
		c.JSON(http.StatusForbidden, gin.H{"message": "access denied"})
	case errors.Is(err, chat.ErrUnknownConversation), errors.Is(err, chat.ErrUnknownUser):
		c.JSON(http.StatusNotFound, gin.H{"message": err.Error()})
	case errors.Is(err, chat.ErrTooFewParticipants),
		errors.Is(err, chat.ErrTooManyParticipants),
		errors.Is(err, chat.ErrCapacityExceeded),
		errors.Is(err, chat.ErrNotAGroupChat),
		errors.Is(err, chat.ErrEmptyMessage):
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"message": "server error"})
	}
}
