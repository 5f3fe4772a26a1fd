package service

import (
	"context"

	"github.com/SvenBotha/SourceChat/internal/models"
)

// ---- Repository contracts --------------------------------------------------
// Implemented by internal/repository (MongoDB and in-memory).

// RepoStore persists the repository registry.
type RepoStore interface {
	Get(ctx context.Context, id string) (models.Repository, error)
	Upsert(ctx context.Context, repo models.Repository) error
	List(ctx context.Context) ([]models.Repository, error)
	Delete(ctx context.Context, id string) error
	Ping(ctx context.Context) error
}

// VectorStore persists embedding records, one collection per repository.
type VectorStore interface {
	// Collection returns the descriptor of name and whether it exists.
	Collection(ctx context.Context, name string) (models.Collection, bool, error)
	// EnsureCollection creates coll if absent and returns the stored descriptor.
	EnsureCollection(ctx context.Context, coll models.Collection) (models.Collection, error)
	ExistingIDs(ctx context.Context, name string) (map[string]struct{}, error)
	// Upsert writes records keyed by chunk identity.
	Upsert(ctx context.Context, name string, records []models.EmbeddingRecord) error
	// Scan visits every record; an error from fn stops the scan and is returned.
	Scan(ctx context.Context, name string, fn func(models.EmbeddingRecord) error) error
	Count(ctx context.Context, name string) (int, error)
	Drop(ctx context.Context, name string) error
}
