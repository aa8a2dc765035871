package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v5"

	"github.com/christried/GilgesBA/pkg/support/assistant"
	"github.com/christried/GilgesBA/pkg/support/escalate"
	"github.com/christried/GilgesBA/pkg/support/store"
)

// ─────────────────────────────────────────────────────────────────────────────
// Request / Response types
// ─────────────────────────────────────────────────────────────────────────────

type chatRequest struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id"`
}

type chatResponse struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id"`
}

type escalationSignalResponse struct {
	Action         string `json:"action"`
	ConversationID string `json:"conversation_id"`
}

type escalateRequest struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id"`
	Email          string `json:"email"`
}

type messageResponse struct {
	ID             int64  `json:"id"`
	ConversationID string `json:"conversation_id"`
	Role           string `json:"role"`
	Content        string `json:"content"`
	Timestamp      string `json:"timestamp"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Chat
// ─────────────────────────────────────────────────────────────────────────────

// handleChat relays one user turn to the assistant and returns either
// the reply or the human-handover signal.
func (s *Server) handleChat(c *echo.Context) error {
	var req chatRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body"})
	}
	if req.Message == "" {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "no message provided"})
	}

	reply, err := s.chat.Send(c.Request().Context(), req.ConversationID, req.Message)
	if err != nil {
		s.logger.Error("chat turn failed", "conversation_id", req.ConversationID, "error", err)
		if errors.Is(err, assistant.ErrRunTimeout) {
			return c.JSON(http.StatusGatewayTimeout, errorResponse{Error: "assistant timed out"})
		}
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: "assistant request failed"})
	}

	if reply.Escalated {
		return c.JSON(http.StatusOK, escalationSignalResponse{
			Action:         "open_real_person_dialog",
			ConversationID: reply.ConversationID,
		})
	}

	return c.JSON(http.StatusOK, chatResponse{
		Message:        reply.Text,
		ConversationID: reply.ConversationID,
	})
}

// ─────────────────────────────────────────────────────────────────────────────
// History
// ─────────────────────────────────────────────────────────────────────────────

// listMessages returns all stored messages, newest first.
func (s *Server) listMessages(c *echo.Context) error {
	messages, err := s.store.ListMessages(c.Request().Context(), &store.FindMessage{})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, toMessageResponses(messages))
}

// getConversation returns one conversation's messages, oldest first.
func (s *Server) getConversation(c *echo.Context) error {
	conversationID := c.Param("id")
	messages, err := s.store.ListMessages(c.Request().Context(), &store.FindMessage{
		ConversationID: &conversationID,
		Ascending:      true,
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, toMessageResponses(messages))
}

func toMessageResponses(messages []*store.Message) []messageResponse {
	resp := make([]messageResponse, 0, len(messages))
	for _, m := range messages {
		resp = append(resp, messageResponse{
			ID:             m.ID,
			ConversationID: m.ConversationID,
			Role:           m.Role,
			Content:        m.Content,
			Timestamp:      m.CreatedAt.Format(time.RFC3339),
		})
	}
	return resp
}

// ─────────────────────────────────────────────────────────────────────────────
// Escalation
// ─────────────────────────────────────────────────────────────────────────────

// finalizeConversation forwards one conversation to the tracker.
// Idempotent: a second call reports the prior card.
func (s *Server) finalizeConversation(c *echo.Context) error {
	conversationID := c.Param("id")

	outcome, err := s.disp.Escalate(c.Request().Context(), conversationID)
	if err != nil {
		if errors.Is(err, escalate.ErrEmptyConversation) {
			return c.JSON(http.StatusNotFound, errorResponse{Error: "conversation has no messages"})
		}
		s.logger.Error("finalize failed", "conversation_id", conversationID, "error", err)
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: "failed to save conversation to tracker"})
	}

	return c.JSON(http.StatusOK, outcome)
}

// syncTracker forwards every unsaved conversation to the tracker.
func (s *Server) syncTracker(c *echo.Context) error {
	report, err := s.disp.SyncAll(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, report)
}

// manualEscalate handles an explicit "talk to a human" request. The
// notification mail decides success; the tracker card is best-effort.
func (s *Server) manualEscalate(c *echo.Context) error {
	var req escalateRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body"})
	}

	err := s.disp.ManualEscalate(c.Request().Context(), req.ConversationID, req.Message, req.Email)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"status": "Escalation failed"})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "Escalation successful"})
}

// ─────────────────────────────────────────────────────────────────────────────
// Health
// ─────────────────────────────────────────────────────────────────────────────

func (s *Server) health(c *echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":    "ok",
		"version":   s.opts.Version,
		"timestamp": time.Now().Format(time.RFC3339),
	})
}
