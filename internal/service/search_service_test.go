package service

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SvenBotha/SourceChat/internal/apperr"
	"github.com/SvenBotha/SourceChat/internal/models"
	"github.com/SvenBotha/SourceChat/internal/repository"
)

func seedCollection(t *testing.T, store VectorStore, repoID string, dim int, records map[models.Chunk][]float32) {
	t.Helper()
	ctx := context.Background()
	coll := testCollection(repoID)
	coll.Dimension = dim
	_, err := store.EnsureCollection(ctx, coll)
	require.NoError(t, err)
	recs := make([]models.EmbeddingRecord, 0, len(records))
	for c, v := range records {
		recs = append(recs, models.NewEmbeddingRecord(c, v))
	}
	require.NoError(t, store.Upsert(ctx, coll.Name, recs))
}

func chunkAt(repoID, path string, index int) models.Chunk {
	return models.Chunk{RepoID: repoID, FilePath: path, Index: index, Content: path}
}

func TestRetrieve_TiesBreakByPathThenIndex(t *testing.T) {
	store := repository.NewMemoryVectorStore()
	seedCollection(t, store, "acme_api", 2, map[models.Chunk][]float32{
		chunkAt("acme_api", "b.go", 0): {1, 0},
		chunkAt("acme_api", "a.go", 1): {2, 0},
		chunkAt("acme_api", "a.go", 0): {1, 0},
		chunkAt("acme_api", "c.go", 0): {0, 1},
	})
	r := NewRetriever(store, staticEmbedder{vec: []float32{1, 0}})

	hits, err := r.Retrieve(context.Background(), "acme_api", "anything", 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "a.go", hits[0].Chunk.FilePath)
	assert.Equal(t, 0, hits[0].Chunk.Index)
	assert.Equal(t, "a.go", hits[1].Chunk.FilePath)
	assert.Equal(t, 1, hits[1].Chunk.Index)

	all, err := r.Retrieve(context.Background(), "acme_api", "anything", 10)
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, "b.go", all[2].Chunk.FilePath)
	assert.Equal(t, "c.go", all[3].Chunk.FilePath)
	assert.InDelta(t, 0, all[3].Score, 1e-9)
	for i := 1; i < len(all); i++ {
		assert.GreaterOrEqual(t, all[i-1].Score, all[i].Score)
	}
}

func TestRetrieve_Deterministic(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryVectorStore()
	emb := NewHashEmbedder(64)
	_, err := NewIndexer(store, emb, IndexerOptions{BatchSize: 4}).Index(ctx, testCollection("acme_api"), testChunks("acme_api", 20), nil)
	require.NoError(t, err)

	r := NewRetriever(store, emb)
	first, err := r.Retrieve(ctx, "acme_api", "handler return", 5)
	require.NoError(t, err)
	require.Len(t, first, 5)
	for range 3 {
		again, err := r.Retrieve(ctx, "acme_api", "handler return", 5)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestRetrieve_Errors(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryVectorStore()
	seedCollection(t, store, "acme_api", 3, map[models.Chunk][]float32{
		chunkAt("acme_api", "a.go", 0): {1, 0, 0},
	})
	r := NewRetriever(store, staticEmbedder{vec: []float32{1, 0}})

	_, err := r.Retrieve(ctx, "acme_api", "q", 0)
	assert.True(t, errors.Is(err, apperr.ErrInvalidInput))

	_, err = r.Retrieve(ctx, "acme_api", "  ", 3)
	assert.True(t, errors.Is(err, apperr.ErrInvalidInput))

	_, err = r.Retrieve(ctx, "acme_web", "q", 3)
	assert.True(t, errors.Is(err, apperr.ErrCollectionNotFound))

	_, err = r.Retrieve(ctx, "acme_api", "q", 3)
	assert.True(t, errors.Is(err, apperr.ErrDimensionMismatch))

	_, err = NewRetriever(store, queryErrEmbedder{}).Retrieve(ctx, "acme_api", "q", 3)
	assert.True(t, errors.Is(err, apperr.ErrProcessing), "query embedding failures are processing errors")
	assert.False(t, errors.Is(err, apperr.ErrGeneration))
}

func TestRetrieve_EmptyCollection(t *testing.T) {
	store := repository.NewMemoryVectorStore()
	_, err := store.EnsureCollection(context.Background(), testCollection("acme_empty"))
	require.NoError(t, err)

	hits, err := NewRetriever(store, NewHashEmbedder(8)).Retrieve(context.Background(), "acme_empty", "anything", 5)
	require.NoError(t, err)
	assert.NotNil(t, hits)
	assert.Empty(t, hits)
}

func TestCosine(t *testing.T) {
	assert.InDelta(t, 1, cosine([]float32{1, 2}, []float32{2, 4}), 1e-9)
	assert.InDelta(t, -1, cosine([]float32{1, 0}, []float32{-3, 0}), 1e-9)
	assert.InDelta(t, math.Sqrt2/2, cosine([]float32{1, 0}, []float32{1, 1}), 1e-6)
	assert.Zero(t, cosine([]float32{0, 0}, []float32{1, 1}))
}
