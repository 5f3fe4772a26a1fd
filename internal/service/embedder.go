package service

import (
	"context"

	"github.com/SvenBotha/SourceChat/internal/models"
)

// Embedder turns text into vectors. Documents and queries may be embedded
// differently (asymmetric retrieval models), but their vectors are comparable.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	// Model names the embedding model, recorded on each collection.
	Model() string
}

// embedText is what gets embedded for a chunk: its path gives the model
// context the code itself often lacks.
func embedText(c models.Chunk) string {
	return c.FilePath + "\n\n" + c.Content
}
