package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/SvenBotha/SourceChat/internal/apperr"
	"github.com/SvenBotha/SourceChat/internal/metrics"
	"github.com/SvenBotha/SourceChat/internal/models"
)

// ProgressFunc receives the number of chunks indexed so far out of total.
type ProgressFunc func(indexed, total int)

// IndexStats summarises one Index call.
type IndexStats struct {
	Total    int // chunks handed in
	Skipped  int // already present in the collection
	Embedded int // embedded and written by this call
	Batches  int // batches committed by this call
}

// IndexerOptions tune batching and pacing.
type IndexerOptions struct {
	BatchSize   int
	Concurrency int
	RatePerSec  float64 // embedding requests per second; <= 0 disables pacing
}

// Indexer embeds chunks and upserts them into a repository's collection.
// It is resumable: chunks whose records already exist are skipped, so a
// failed run can be repeated and only the missing batches are embedded.
type Indexer struct {
	store    VectorStore
	embedder Embedder
	opts     IndexerOptions
	limiter  *rate.Limiter
}

// NewIndexer wires an Indexer.
func NewIndexer(store VectorStore, embedder Embedder, opts IndexerOptions) *Indexer {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 32
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.RatePerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RatePerSec), opts.Concurrency)
	}
	return &Indexer{store: store, embedder: embedder, opts: opts, limiter: limiter}
}

// Index makes sure every chunk has a record in the collection named by coll.
// The first committed batch fixes the collection dimension; vectors of any
// other length fail with a dimension mismatch.
func (ix *Indexer) Index(ctx context.Context, coll models.Collection, chunks []models.Chunk, progress ProgressFunc) (IndexStats, error) {
	stats := IndexStats{Total: len(chunks)}

	existing, err := ix.store.ExistingIDs(ctx, coll.Name)
	if err != nil {
		return stats, apperr.Processing("cannot read existing embeddings", err)
	}
	pending := make([]models.Chunk, 0, len(chunks))
	for _, c := range chunks {
		if _, ok := existing[c.ID()]; !ok {
			pending = append(pending, c)
		}
	}
	stats.Skipped = len(chunks) - len(pending)
	metrics.AddSkippedEmbeddings(stats.Skipped)

	var mu sync.Mutex
	indexed := stats.Skipped
	report := func(n int) {
		mu.Lock()
		defer mu.Unlock()
		indexed += n
		if n > 0 {
			stats.Embedded += n
			stats.Batches++
		}
		if progress != nil {
			progress(indexed, len(chunks))
		}
	}
	report(0)

	if len(pending) == 0 {
		return stats, nil
	}

	log.Printf("[Indexer] %s: embedding %d chunks (%d already indexed) in batches of %d",
		coll.Name, len(pending), stats.Skipped, ix.opts.BatchSize)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ix.opts.Concurrency)
	for start := 0; start < len(pending); start += ix.opts.BatchSize {
		if gctx.Err() != nil {
			break
		}
		batch := pending[start:min(start+ix.opts.BatchSize, len(pending))]
		g.Go(func() error {
			if err := ix.limiter.Wait(gctx); err != nil {
				return err
			}
			began := time.Now()
			err := ix.indexBatch(gctx, coll, batch)
			metrics.RecordEmbedBatch(began, err)
			if err != nil {
				return err
			}
			report(len(batch))
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		var appErr *apperr.Error
		if errors.As(err, &appErr) {
			return stats, err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return stats, apperr.Processing("indexing interrupted", ctxErr)
		}
		return stats, apperr.Processing("embedding failed", err)
	}
	// The loop stops scheduling once ctx ends, so no error does not mean done.
	if ctxErr := ctx.Err(); ctxErr != nil {
		return stats, apperr.Processing("indexing interrupted", ctxErr)
	}
	return stats, nil
}

func (ix *Indexer) indexBatch(ctx context.Context, coll models.Collection, batch []models.Chunk) error {
	texts := make([]string, len(batch))
	for i, c := range batch {
		texts[i] = embedText(c)
	}
	vecs, err := ix.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed batch: %w", err)
	}
	if len(vecs) != len(batch) {
		return fmt.Errorf("embedder returned %d vectors for %d chunks", len(vecs), len(batch))
	}
	dim := len(vecs[0])
	for _, v := range vecs {
		if len(v) != dim || dim == 0 {
			return fmt.Errorf("embedder returned vectors of inconsistent length")
		}
	}

	coll.Dimension = dim
	coll.Model = ix.embedder.Model()
	if coll.CreatedAt.IsZero() {
		coll.CreatedAt = time.Now().UTC()
	}
	stored, err := ix.store.EnsureCollection(ctx, coll)
	if err != nil {
		return fmt.Errorf("ensure collection: %w", err)
	}
	if stored.Dimension != dim {
		return apperr.DimensionMismatch(coll.Name, stored.Dimension, dim)
	}

	records := make([]models.EmbeddingRecord, len(batch))
	for i, c := range batch {
		records[i] = models.NewEmbeddingRecord(c, vecs[i])
	}
	if err := ix.store.Upsert(ctx, coll.Name, records); err != nil {
		return fmt.Errorf("store batch: %w", err)
	}
	return nil
}
