package handler

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/SvenBotha/SourceChat/internal/models"
	"github.com/SvenBotha/SourceChat/internal/service"
)

// ChatHandler wires HTTP → RepoService.Chat.
type ChatHandler struct {
	svc service.RepoService
}

// NewChatHandler returns a struct pointer so you can call Register on it.
func NewChatHandler(svc service.RepoService) *ChatHandler {
	return &ChatHandler{svc: svc}
}

// Register mounts the chat endpoint on the supplied router group.
func (h *ChatHandler) Register(r fiber.Router) {
	r.Post("/repos/:id/chat", h.chat)
}

// chat handles POST /repos/:id/chat  { "question": "..." }
func (h *ChatHandler) chat(c *fiber.Ctx) error {
	var req models.ChatRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid JSON body")
	}
	if strings.TrimSpace(req.Question) == "" {
		return fiber.NewError(fiber.StatusBadRequest, "question is required")
	}

	res, err := h.svc.Chat(c.UserContext(), c.Params("id"), req.Question)
	if err != nil {
		return err
	}

	return c.JSON(models.ChatResponse{
		Answer:  res.Answer,
		Sources: res.Sources,
		RepoID:  res.RepoID,
		Partial: res.Partial,
	})
}
