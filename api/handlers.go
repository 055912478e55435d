package api

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/marketstead/chatstream/pkg/llm"
)

// HistoryResponse contains the persisted history of one conversation.
type HistoryResponse struct {
	// Conversation identifies the account and topic.
	Conversation llm.ConversationRef `json:"conversation"`
	// Turns in chronological order (oldest first).
	Turns []HistoryTurn `json:"turns"`
	// Count is the number of turns returned.
	Count int `json:"count"`
}

// HistoryTurn represents a single persisted turn.
type HistoryTurn struct {
	Role     string `json:"role"`
	Text     string `json:"text"`
	ImageRef string `json:"image_ref,omitempty"`
}

// handlePing returns a simple health check response.
func (s *Server) handlePing(c *fiber.Ctx) error {
	return c.JSON("pong")
}

// handleGetHistory returns the persisted turns of one conversation, oldest
// first. A limit query parameter caps the result to the N most recent turns;
// zero or absent means no cap. Unknown conversations return an empty history
// rather than 404: an empty conversation and an unknown one are
// indistinguishable to the caller.
func (s *Server) handleGetHistory(c *fiber.Ctx) error {
	ref := llm.ConversationRef{
		UserID: c.Params("user"),
		Topic:  c.Params("topic"),
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return c.Status(fiber.StatusBadRequest).JSON(llm.ErrorResponse{Error: "limit must be a non-negative integer"})
		}
		limit = n
	}

	turns, err := s.store.LoadHistory(c.Context(), ref, limit)
	if err != nil {
		s.logger.Error("failed to load history",
			"user_id", ref.UserID,
			"topic", ref.Topic,
			"error", err,
		)
		return c.Status(fiber.StatusInternalServerError).JSON(llm.ErrorResponse{Error: "failed to load history"})
	}

	history := make([]HistoryTurn, len(turns))
	for i, turn := range turns {
		history[i] = HistoryTurn{
			Role:     string(turn.Role),
			Text:     turn.Text,
			ImageRef: turn.ImageRef,
		}
	}

	return c.JSON(HistoryResponse{
		Conversation: ref,
		Turns:        history,
		Count:        len(history),
	})
}
