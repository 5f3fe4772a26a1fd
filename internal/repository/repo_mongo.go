// Package repository holds the persistence adapters: MongoDB for production
// and in-memory maps for tests and MONGODB_URI-less development.
package repository

import (
	"context"
	"errors"
	"fmt"
	"log"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/SvenBotha/SourceChat/internal/models"
)

// ErrNotFound is returned when a repository document does not exist.
var ErrNotFound = errors.New("repository: not found")

// RepoMongo persists the repository registry, one document per repository.
type RepoMongo struct {
	col *mongo.Collection
}

// NewRepoRepository returns a RepoMongo that operates on the "repositories" collection.
//
// Expected schema:
//
//	repositories
//	  { _id: "<owner>_<name>", url, owner, name, state, error, collection_name,
//	    file_count, chunk_count, indexed_chunks, total_chunks, created_at, ... }
func NewRepoRepository(db *mongo.Database) *RepoMongo {
	return &RepoMongo{col: db.Collection("repositories")}
}

// Get fetches a repository by ID.
func (r *RepoMongo) Get(ctx context.Context, id string) (models.Repository, error) {
	var repo models.Repository
	err := r.col.FindOne(ctx, bson.M{"_id": id}).Decode(&repo)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Repository{}, ErrNotFound
	}
	if err != nil {
		log.Printf("[Repo Store] Error finding repository %s: %v", id, err)
		return models.Repository{}, fmt.Errorf("find repository %s: %w", id, err)
	}
	return repo, nil
}

// Upsert inserts or replaces the repository with the same _id.
func (r *RepoMongo) Upsert(ctx context.Context, repo models.Repository) error {
	_, err := r.col.ReplaceOne(
		ctx,
		bson.M{"_id": repo.ID},
		repo,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		log.Printf("[Repo Store] Error upserting repository %s: %v", repo.ID, err)
		return fmt.Errorf("upsert repository %s: %w", repo.ID, err)
	}
	return nil
}

// List returns every repository ordered by ID.
func (r *RepoMongo) List(ctx context.Context) ([]models.Repository, error) {
	cur, err := r.col.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("list repositories: %w", err)
	}
	defer cur.Close(ctx)

	var repos []models.Repository
	if err := cur.All(ctx, &repos); err != nil {
		return nil, fmt.Errorf("decode repositories: %w", err)
	}
	return repos, nil
}

// Delete removes the repository document; deleting a missing one is not an error.
func (r *RepoMongo) Delete(ctx context.Context, id string) error {
	if _, err := r.col.DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		return fmt.Errorf("delete repository %s: %w", id, err)
	}
	log.Printf("[Repo Store] Deleted repository %s", id)
	return nil
}

// Ping checks the server is reachable.
func (r *RepoMongo) Ping(ctx context.Context) error {
	return r.col.Database().Client().Ping(ctx, nil)
}
