package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/yoockh/voxaura/internal/models"
	"github.com/yoockh/voxaura/internal/services"
)

// LiveSessions exposes the in-memory session registry.
type LiveSessions interface {
	ActiveSessions() int
	Sessions() []models.Session
}

type SessionHandler struct {
	live  LiveSessions
	audit services.SessionAudit
}

// NewSessionHandler accepts a nil audit when no session store is configured.
func NewSessionHandler(live LiveSessions, audit services.SessionAudit) *SessionHandler {
	return &SessionHandler{live: live, audit: audit}
}

type StatusResponse struct {
	Connected      bool `json:"connected"`
	ActiveSessions int  `json:"active_sessions"`
}

func (h *SessionHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, StatusResponse{
		Connected:      true,
		ActiveSessions: h.live.ActiveSessions(),
	})
}

type AdminSessionsResponse struct {
	ActiveSessions int                    `json:"active_sessions"`
	Sessions       []models.Session       `json:"sessions"`
	Recent         []models.SessionRecord `json:"recent,omitempty"`
}

func (h *SessionHandler) List(c *gin.Context) {
	resp := AdminSessionsResponse{
		Sessions: h.live.Sessions(),
	}
	resp.ActiveSessions = len(resp.Sessions)

	if h.audit != nil && c.Query("history") == "true" {
		limit := int64(50)
		if s := c.Query("limit"); s != "" {
			if n, err := strconv.ParseInt(s, 10, 64); err == nil && n > 0 && n <= 500 {
				limit = n
			}
		}
		recent, err := h.audit.Recent(c.Request.Context(), limit)
		if err != nil {
			writeError(c, err)
			return
		}
		resp.Recent = recent
	}

	c.JSON(http.StatusOK, resp)
}
