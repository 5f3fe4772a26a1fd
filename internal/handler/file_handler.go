package handler

import (
	"log"
	"net/url"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/SvenBotha/SourceChat/internal/service"
)

// FileHandler serves the files behind chat citations.
type FileHandler struct {
	codeSvc service.CodeService
}

func NewFileHandler(codeSvc service.CodeService) *FileHandler {
	return &FileHandler{codeSvc: codeSvc}
}

func (h *FileHandler) Register(r fiber.Router) {
	r.Get("/repos/:id/files/*", h.getFile)
}

// getFile handles GET /repos/:id/files/*
func (h *FileHandler) getFile(c *fiber.Ctx) error {
	repoID := c.Params("id")
	filePath, err := url.PathUnescape(c.Params("*")) // everything after /files/
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid file path")
	}
	filePath = strings.TrimPrefix(filePath, "/")

	if filePath == "" {
		return fiber.NewError(fiber.StatusBadRequest, "file path is required")
	}

	file, err := h.codeSvc.GetFileContent(c.UserContext(), repoID, filePath)
	if err != nil {
		log.Printf("[File Handler] %s/%s: %v", repoID, filePath, err)
		return err
	}

	return c.JSON(fiber.Map{
		"content":  string(file.Content),
		"repo_id":  repoID,
		"file":     file.Path,
		"language": file.Language,
		"size":     file.Size,
	})
}
