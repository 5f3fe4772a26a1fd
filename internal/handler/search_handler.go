package handler

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/SvenBotha/SourceChat/internal/models"
	"github.com/SvenBotha/SourceChat/internal/service"
)

// SearchHandler wires HTTP → RepoService.Search.
type SearchHandler struct {
	svc      service.RepoService
	defaultK int
}

// NewSearchHandler returns a handler instance. defaultK applies when the
// request has no k, matching the retrieval depth chat uses.
func NewSearchHandler(svc service.RepoService, defaultK int) *SearchHandler {
	if defaultK <= 0 {
		defaultK = 5
	}
	return &SearchHandler{svc: svc, defaultK: defaultK}
}

// Register mounts GET /repos/:id/search on the given router group.
func (h *SearchHandler) Register(r fiber.Router) {
	r.Get("/repos/:id/search", h.search)
}

// search handles GET /repos/:id/search?q=some+text&k=5
func (h *SearchHandler) search(c *fiber.Ctx) error {
	q := c.Query("q")
	if q == "" {
		return fiber.NewError(fiber.StatusBadRequest, "q (query) parameter is required")
	}

	k, err := strconv.Atoi(c.Query("k", strconv.Itoa(h.defaultK)))
	if err != nil || k <= 0 {
		return fiber.NewError(fiber.StatusBadRequest, "k must be a positive integer")
	}

	repoID := c.Params("id")
	results, err := h.svc.Search(c.UserContext(), repoID, q, k)
	if err != nil {
		return err
	}

	return c.JSON(models.SearchResponse{RepoID: repoID, Query: q, Results: results})
}
