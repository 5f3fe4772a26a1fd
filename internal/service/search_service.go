package service

import (
	"container/heap"
	"context"
	"fmt"
	"log"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/SvenBotha/SourceChat/internal/apperr"
	"github.com/SvenBotha/SourceChat/internal/metrics"
	"github.com/SvenBotha/SourceChat/internal/models"
)

// Retriever finds the chunks of a repository most similar to a query.
type Retriever interface {
	// Retrieve returns at most k chunks ordered by descending cosine
	// similarity, ties broken by ascending (file_path, index).
	Retrieve(ctx context.Context, repoID, query string, k int) ([]models.ScoredChunk, error)
}

type retriever struct {
	store    VectorStore
	embedder Embedder
}

// NewRetriever wires the vector store and embedder.
func NewRetriever(store VectorStore, embedder Embedder) Retriever {
	return &retriever{store: store, embedder: embedder}
}

func (r *retriever) Retrieve(ctx context.Context, repoID, query string, k int) ([]models.ScoredChunk, error) {
	if k <= 0 {
		return nil, apperr.InvalidInput(fmt.Sprintf("k must be positive, got %d", k))
	}
	if strings.TrimSpace(query) == "" {
		return nil, apperr.InvalidInput("query cannot be empty")
	}
	start := time.Now()

	name := models.CollectionNameFor(repoID)
	coll, ok, err := r.store.Collection(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("load collection %s: %w", name, err)
	}
	if !ok {
		return nil, apperr.CollectionNotFound(repoID)
	}
	if coll.Dimension == 0 {
		// Processed without any chunk.
		return []models.ScoredChunk{}, nil
	}

	qv, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, apperr.Processing("cannot embed query", err)
	}
	if len(qv) != coll.Dimension {
		return nil, apperr.DimensionMismatch(name, coll.Dimension, len(qv))
	}

	top := &scoredHeap{}
	skipped := 0
	err = r.store.Scan(ctx, name, func(rec models.EmbeddingRecord) error {
		if len(rec.Vector) != len(qv) {
			skipped++
			return nil
		}
		hit := models.ScoredChunk{Chunk: rec.Chunk, Score: cosine(qv, rec.Vector)}
		if top.Len() < k {
			heap.Push(top, hit)
		} else if ranksBefore(hit, (*top)[0]) {
			(*top)[0] = hit
			heap.Fix(top, 0)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", name, err)
	}
	if skipped > 0 {
		log.Printf("[Retriever] %s: ignored %d records with a foreign dimension", name, skipped)
	}

	out := make([]models.ScoredChunk, top.Len())
	copy(out, *top)
	sort.Slice(out, func(i, j int) bool { return ranksBefore(out[i], out[j]) })
	metrics.RecordRetrieval(start)
	return out, nil
}

// ranksBefore orders hits by descending score, then ascending (file_path, index).
func ranksBefore(a, b models.ScoredChunk) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if a.Chunk.FilePath != b.Chunk.FilePath {
		return a.Chunk.FilePath < b.Chunk.FilePath
	}
	return a.Chunk.Index < b.Chunk.Index
}

// scoredHeap keeps the worst-ranked hit at the root.
type scoredHeap []models.ScoredChunk

func (h scoredHeap) Len() int           { return len(h) }
func (h scoredHeap) Less(i, j int) bool { return ranksBefore(h[j], h[i]) }
func (h scoredHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *scoredHeap) Push(x any)        { *h = append(*h, x.(models.ScoredChunk)) }
func (h *scoredHeap) Pop() any {
	old := *h
	x := old[len(old)-1]
	*h = old[:len(old)-1]
	return x
}

// cosine similarity; a zero vector scores 0.
func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
