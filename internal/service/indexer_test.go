package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SvenBotha/SourceChat/internal/apperr"
	"github.com/SvenBotha/SourceChat/internal/models"
	"github.com/SvenBotha/SourceChat/internal/repository"
)

func testCollection(repoID string) models.Collection {
	return models.Collection{Name: models.CollectionNameFor(repoID), RepoID: repoID}
}

func TestIndexer_SecondRunIsNoOp(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryVectorStore()
	emb := &flakyEmbedder{HashEmbedder: NewHashEmbedder(16)}
	ix := NewIndexer(store, emb, IndexerOptions{BatchSize: 3, Concurrency: 2})
	coll := testCollection("acme_api")
	chunks := testChunks("acme_api", 10)

	stats, err := ix.Index(ctx, coll, chunks, nil)
	require.NoError(t, err)
	assert.Equal(t, IndexStats{Total: 10, Embedded: 10, Batches: 4}, stats)
	assert.Equal(t, 4, emb.callCount())

	stats, err = ix.Index(ctx, coll, chunks, nil)
	require.NoError(t, err)
	assert.Equal(t, IndexStats{Total: 10, Skipped: 10}, stats)
	assert.Equal(t, 4, emb.callCount(), "nothing is embedded twice")

	n, err := store.Count(ctx, coll.Name)
	require.NoError(t, err)
	assert.Equal(t, 10, n)

	stored, ok, err := store.Collection(ctx, coll.Name)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 16, stored.Dimension)
	assert.Equal(t, "hash-16", stored.Model)
}

func TestIndexer_ResumesAfterFailedBatch(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryVectorStore()
	emb := &flakyEmbedder{HashEmbedder: NewHashEmbedder(16), failAt: 2}
	ix := NewIndexer(store, emb, IndexerOptions{BatchSize: 3, Concurrency: 1})
	coll := testCollection("acme_api")
	chunks := testChunks("acme_api", 10)

	var lastIndexed int
	_, err := ix.Index(ctx, coll, chunks, func(indexed, total int) {
		lastIndexed = indexed
		assert.Equal(t, 10, total)
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrProcessing))
	assert.Equal(t, 3, lastIndexed)

	n, err := store.Count(ctx, coll.Name)
	require.NoError(t, err)
	assert.Equal(t, 3, n, "only the first batch was committed")

	emb.setFailAt(0)
	before := emb.callCount()
	stats, err := ix.Index(ctx, coll, chunks, func(indexed, _ int) { lastIndexed = indexed })
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Skipped)
	assert.Equal(t, 7, stats.Embedded)
	assert.Equal(t, 3, emb.callCount()-before, "only missing batches are embedded")
	assert.Equal(t, 10, lastIndexed)

	n, err = store.Count(ctx, coll.Name)
	require.NoError(t, err)
	assert.Equal(t, 10, n)
}

func TestIndexer_DimensionMismatch(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryVectorStore()
	coll := testCollection("acme_api")

	_, err := NewIndexer(store, NewHashEmbedder(8), IndexerOptions{}).Index(ctx, coll, testChunks("acme_api", 2), nil)
	require.NoError(t, err)

	more := testChunks("acme_api", 6)[2:]
	_, err = NewIndexer(store, NewHashEmbedder(12), IndexerOptions{}).Index(ctx, coll, more, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrDimensionMismatch))

	n, err := store.Count(ctx, coll.Name)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestIndexer_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	store := repository.NewMemoryVectorStore()
	_, err := NewIndexer(store, NewHashEmbedder(8), IndexerOptions{}).Index(ctx, testCollection("acme_api"), testChunks("acme_api", 4), nil)
	require.Error(t, err)
	assert.Equal(t, apperr.KindProcessing, apperr.KindOf(err))
}
