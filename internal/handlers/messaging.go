package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type sendMessageRequest struct {
	RecipientID string  `json:"recipient_id" binding:"required"`
	BorrowingID *string `json:"borrowing_id"`
	Content     string  `json:"content" binding:"required"`
}

func (h *Handler) sendMessage(c *gin.Context) {
	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	recipientID, err := uuid.Parse(req.RecipientID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid recipient id"})
		return
	}
	var borrowingID *uuid.UUID
	if req.BorrowingID != nil {
		id, err := uuid.Parse(*req.BorrowingID)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid borrowing id"})
			return
		}
		borrowingID = &id
	}

	msg, err := h.messaging.SendMessage(currentUser(c), recipientID, borrowingID, req.Content)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

// getMessages returns either the inbox of conversation summaries, or the
// full thread when ?conversation_id= is given.
func (h *Handler) getMessages(c *gin.Context) {
	if convID := c.Query("conversation_id"); convID != "" {
		msgs, err := h.messaging.Conversation(currentUser(c), convID)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, msgs)
		return
	}
	summaries, err := h.messaging.Conversations(currentUser(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, summaries)
}

func (h *Handler) markMessageRead(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	if err := h.messaging.MarkMessageRead(currentUser(c), id); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *Handler) listUsers(c *gin.Context) {
	users, err := h.messaging.ListUsers(currentUser(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, users)
}

func (h *Handler) searchUsers(c *gin.Context) {
	users, err := h.messaging.SearchUsers(currentUser(c), c.Query("q"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, users)
}

func (h *Handler) notifications(c *gin.Context) {
	feed, err := h.messaging.Notifications(currentUser(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, feed)
}

func (h *Handler) markNotificationRead(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	if err := h.messaging.MarkNotificationRead(currentUser(c), id); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
