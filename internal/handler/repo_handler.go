package handler

import (
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/SvenBotha/SourceChat/internal/models"
	"github.com/SvenBotha/SourceChat/internal/service"
)

// RepoHandler wires HTTP → RepoService.
type RepoHandler struct {
	svc service.RepoService
}

// NewRepoHandler creates a new RepoHandler.
func NewRepoHandler(svc service.RepoService) *RepoHandler {
	return &RepoHandler{svc: svc}
}

// Register mounts the repository lifecycle endpoints on the supplied router group.
func (h *RepoHandler) Register(r fiber.Router) {
	r.Post("/repos/clone", h.clone)
	r.Get("/repos", h.list)
	r.Get("/repos/:id", h.getRepo)
	r.Delete("/repos/:id", h.deleteRepo)
	r.Post("/repos/:id/process", h.process)
	r.Get("/repos/:id/status", h.status)
}

// clone handles POST /repos/clone {"url": "..."}
func (h *RepoHandler) clone(c *fiber.Ctx) error {
	var req models.CloneRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid JSON body")
	}
	if strings.TrimSpace(req.URL) == "" {
		return fiber.NewError(fiber.StatusBadRequest, "url is required")
	}

	repo, err := h.svc.Clone(c.UserContext(), req.URL)
	if err != nil {
		return err
	}

	return c.JSON(models.CloneResponse{
		RepoID:  repo.ID,
		Status:  string(repo.State),
		Message: fmt.Sprintf("Repository successfully cloned with ID: %s", repo.ID),
	})
}

// process handles POST /repos/:id/process
func (h *RepoHandler) process(c *fiber.Ctx) error {
	resp, err := h.svc.Process(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	if resp.Status == string(models.StateProcessing) {
		return c.Status(fiber.StatusAccepted).JSON(resp)
	}
	return c.JSON(resp)
}

// status handles GET /repos/:id/status
func (h *RepoHandler) status(c *fiber.Ctx) error {
	return c.JSON(h.svc.Status(c.UserContext(), c.Params("id")))
}

// list handles GET /repos
func (h *RepoHandler) list(c *fiber.Ctx) error {
	return c.JSON(h.svc.List(c.UserContext()))
}

// getRepo handles GET /repos/:id
func (h *RepoHandler) getRepo(c *fiber.Ctx) error {
	repo, err := h.svc.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(repo)
}

// deleteRepo handles DELETE /repos/:id
func (h *RepoHandler) deleteRepo(c *fiber.Ctx) error {
	repoID := c.Params("id")
	if err := h.svc.Delete(c.UserContext(), repoID); err != nil {
		return err
	}
	return c.JSON(models.DeleteResponse{
		RepoID:  repoID,
		Status:  "deleted",
		Message: fmt.Sprintf("Repository '%s' successfully deleted", repoID),
	})
}
