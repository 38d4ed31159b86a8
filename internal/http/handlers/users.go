package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"chat-server/internal/http/middleware"
	"chat-server/internal/models"
)

type UsersHandler struct {
	DB *gorm.DB
}

// List returns every username except the caller's, for the new-chat picker.
func (h *UsersHandler) List(c *gin.Context) {
	me := middleware.MustUsername(c)

	var usernames []string
	err := h.DB.Model(&models.User{}).
		Where("username <> ?", me).
		Order("username ASC").
		Pluck("username", &usernames).Error
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "server error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"users": usernames})
}

type timezoneReq struct {
	Timezone string `json:"timezone" binding:"required"`
}

// UpdateTimezone stores the caller's display timezone preference. Rendering
// in that timezone is the client's job.
func (h *UsersHandler) UpdateTimezone(c *gin.Context) {
	var req timezoneReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "timezone required"})
		return
	}

	err := h.DB.Model(&models.User{}).
		Where("id = ?", middleware.MustUserID(c)).
		Update("timezone", req.Timezone).Error
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "server error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"timezone": req.Timezone})
}
