package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/yoockh/voxaura/internal/services"
	"github.com/yoockh/voxaura/internal/utils"
)

type ConversationHandler struct {
	svc services.ConversationService
}

// NewConversationHandler accepts a nil service when no conversation store is configured.
func NewConversationHandler(svc services.ConversationService) *ConversationHandler {
	return &ConversationHandler{svc: svc}
}

func (h *ConversationHandler) ListBySession(c *gin.Context) {
	if h.svc == nil {
		writeError(c, utils.E(utils.CodeUnavailable, "ConversationHandler.ListBySession", "conversation log not configured", nil))
		return
	}

	sessionID := c.Param("session_id")

	limit := 50
	if s := c.Query("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	rows, err := h.svc.ListBySession(c.Request.Context(), sessionID, limit)
	if err != nil {
		writeError(c, err)
		return
	}

	// newest first from the store; oldest first on the wire
	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}

	c.JSON(http.StatusOK, gin.H{
		"session_id":    sessionID,
		"conversations": rows,
	})
}
