package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/genegpt-server/internal/domain"
	"github.com/genegpt-server/internal/history"
	"github.com/genegpt-server/internal/logging"
	"github.com/genegpt-server/internal/middleware"
)

func (s *Server) handleHealth(c *gin.Context) {
	status := "healthy"
	body := gin.H{
		"timestamp": time.Now().UTC(),
		"version":   s.deps.Version,
	}

	if s.deps.Health != nil {
		states := s.deps.Health.BreakerStates()
		body["databases"] = states
		for _, state := range states {
			if state == "open" {
				status = "degraded"
			}
		}
		if err := s.deps.Health.Ping(c.Request.Context()); err != nil {
			status = "degraded"
			body["cache_error"] = err.Error()
		}
	}
	body["status"] = status
	body["history"] = s.deps.History != nil

	c.JSON(http.StatusOK, body)
}

func (s *Server) handleChat(c *gin.Context) {
	var req domain.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, domain.NewValidationError("body", "request body must be a JSON chat request", nil))
		return
	}

	resp, err := s.chat(c.Request.Context(), &req)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// chat runs one request through the pipeline, replaying and extending the
// stored conversation when the request names a chat.
func (s *Server) chat(ctx context.Context, req *domain.ChatRequest) (*domain.ChatResponse, error) {
	message, turns, err := req.Split()
	if err != nil {
		return nil, err
	}

	persist := s.deps.History != nil && req.ChatID != "" && req.UserID != ""
	if persist && len(turns) == 0 {
		turns, err = s.deps.History.RecentTurns(ctx, req.UserID, req.ChatID, s.deps.ReplayTurns)
		if err != nil {
			return nil, err
		}
	}

	resp := s.deps.Processor.ProcessQuery(ctx, message, turns)

	if persist {
		s.appendTurn(ctx, req, domain.RoleUser, message)
		s.appendTurn(ctx, req, domain.RoleAssistant, resp.Reply)
	}
	return resp, nil
}

// appendTurn stores a turn; a storage failure never costs the user the reply.
func (s *Server) appendTurn(ctx context.Context, req *domain.ChatRequest, role domain.Role, content string) {
	if _, err := s.deps.History.AppendMessage(ctx, req.UserID, req.ChatID, role, content); err != nil {
		logging.Entry(ctx, s.deps.Logger).WithError(err).WithFields(logrus.Fields{
			"chat_id": req.ChatID,
			"role":    role,
		}).Warn("Failed to store chat message")
	}
}

// wsMessage is the websocket frame sent back for each request frame.
type wsMessage struct {
	*domain.ChatResponse
	Error *domain.ServiceError `json:"error,omitempty"`
}

func (s *Server) handleChatWebSocket(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logging.Entry(c.Request.Context(), s.deps.Logger).WithError(err).Warn("Websocket upgrade failed")
		return
	}
	defer conn.Close()

	ctx := c.Request.Context()
	log := logging.Entry(ctx, s.deps.Logger)
	log.Info("Websocket chat opened")

	for {
		var req domain.ChatRequest
		if err := conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.WithError(err).Warn("Websocket chat closed unexpectedly")
			}
			return
		}

		var out wsMessage
		resp, err := s.chat(ctx, &req)
		if err != nil {
			_, svcErr := s.classifyError(err, c.GetString(middleware.CorrelationIDKey))
			out.Error = svcErr
		} else {
			out.ChatResponse = resp
		}

		if err := conn.WriteJSON(out); err != nil {
			log.WithError(err).Warn("Websocket write failed")
			return
		}
	}
}

func (s *Server) respondError(c *gin.Context, err error) {
	status, body := s.classifyError(err, c.GetString(middleware.CorrelationIDKey))
	if status >= http.StatusInternalServerError {
		logging.Entry(c.Request.Context(), s.deps.Logger).WithError(err).Error("Request failed")
	}
	c.AbortWithStatusJSON(status, gin.H{"error": body})
}

// classifyError maps pipeline and storage errors onto HTTP statuses.
func (s *Server) classifyError(err error, requestID string) (int, *domain.ServiceError) {
	var vErr *domain.ValidationError
	switch {
	case errors.As(err, &vErr):
		svc := domain.NewServiceError(domain.ErrInvalidInput, vErr.Message, vErr.Field, requestID)
		return http.StatusBadRequest, svc
	case errors.Is(err, history.ErrNotFound):
		return http.StatusNotFound, domain.NewServiceError(domain.ErrNotFound, "chat not found", "", requestID)
	case errors.Is(err, history.ErrForbidden):
		return http.StatusForbidden, domain.NewServiceError(domain.ErrForbidden, "chat belongs to another user", "", requestID)
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, domain.NewServiceError(domain.ErrTimeout, "request timed out", "", requestID)
	default:
		return http.StatusInternalServerError, domain.NewServiceError(domain.ErrStorage, "internal error", "", requestID)
	}
}
