package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/genegpt-server/internal/domain"
	"github.com/genegpt-server/internal/middleware"
)

type chatTitleRequest struct {
	Title string `json:"title"`
}

// requireHistory rejects history routes when no store is configured.
func (s *Server) requireHistory(c *gin.Context) bool {
	if s.deps.History != nil {
		return true
	}
	c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
		"error": domain.NewServiceError(domain.ErrStorage, "chat history is not enabled", "", c.GetString(middleware.CorrelationIDKey)),
	})
	return false
}

func (s *Server) handleCreateChat(c *gin.Context) {
	if !s.requireHistory(c) {
		return
	}
	var req chatTitleRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			s.respondError(c, domain.NewValidationError("body", "invalid JSON body", nil))
			return
		}
	}

	chat, err := s.deps.History.CreateChat(c.Request.Context(), c.Param("user_id"), req.Title)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, chat)
}

func (s *Server) handleListChats(c *gin.Context) {
	if !s.requireHistory(c) {
		return
	}
	limit, err := queryInt(c, "limit", 50)
	if err != nil {
		s.respondError(c, err)
		return
	}
	offset, err := queryInt(c, "offset", 0)
	if err != nil {
		s.respondError(c, err)
		return
	}

	chats, err := s.deps.History.ListChats(c.Request.Context(), c.Param("user_id"), limit, offset)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"chats": chats, "count": len(chats)})
}

func (s *Server) handleGetChat(c *gin.Context) {
	if !s.requireHistory(c) {
		return
	}
	chat, err := s.deps.History.GetChat(c.Request.Context(), c.Param("user_id"), c.Param("chat_id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, chat)
}

func (s *Server) handleRenameChat(c *gin.Context) {
	if !s.requireHistory(c) {
		return
	}
	var req chatTitleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, domain.NewValidationError("title", "a title is required", nil))
		return
	}

	chat, err := s.deps.History.RenameChat(c.Request.Context(), c.Param("user_id"), c.Param("chat_id"), req.Title)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, chat)
}

func (s *Server) handleDeleteChat(c *gin.Context) {
	if !s.requireHistory(c) {
		return
	}
	if err := s.deps.History.DeleteChat(c.Request.Context(), c.Param("user_id"), c.Param("chat_id")); err != nil {
		s.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func queryInt(c *gin.Context, key string, def int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, domain.NewValidationError(key, "must be a non-negative integer", raw)
	}
	return n, nil
}
