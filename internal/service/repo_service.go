package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/SvenBotha/SourceChat/internal/apperr"
	"github.com/SvenBotha/SourceChat/internal/chunker"
	"github.com/SvenBotha/SourceChat/internal/metrics"
	"github.com/SvenBotha/SourceChat/internal/models"
	"github.com/SvenBotha/SourceChat/internal/source"
)

// RepoService runs the pipeline for each repository: clone, process
// (chunk + index), status, chat and delete.
type RepoService interface {
	Clone(ctx context.Context, url string) (models.Repository, error)
	// Process runs the indexing job of id, or reports the state of the one
	// already running. The job outlives ctx; ctx only bounds the wait.
	Process(ctx context.Context, id string) (models.ProcessResponse, error)
	Status(ctx context.Context, id string) models.StatusResponse
	Chat(ctx context.Context, id, question string) (ChatResult, error)
	Search(ctx context.Context, id, query string, k int) ([]models.ScoredChunk, error)
	List(ctx context.Context) []models.Repository
	Get(ctx context.Context, id string) (models.Repository, error)
	Delete(ctx context.Context, id string) error
	// Shutdown cancels running jobs and waits for them.
	Shutdown(ctx context.Context) error
}

// RepoServiceDeps are the collaborators of a RepoService.
type RepoServiceDeps struct {
	Acquirer       *source.Acquirer
	Chunker        *chunker.Chunker
	Indexer        *Indexer
	Retriever      Retriever
	ChatService    ChatService
	Tracker        *Tracker
	Vectors        VectorStore
	ChunkWorkers   int
	ProcessTimeout time.Duration
}

type repoService struct {
	RepoServiceDeps

	mu   sync.Mutex
	jobs map[string]*job   // running processing jobs by repository ID
	busy map[string]string // clone or delete in progress, by repository ID
}

type job struct {
	id     string
	cancel context.CancelFunc
	done   chan struct{}
	resp   models.ProcessResponse
	err    error
}

// NewRepoService returns a concrete implementation.
func NewRepoService(deps RepoServiceDeps) RepoService {
	if deps.ChunkWorkers <= 0 {
		deps.ChunkWorkers = 1
	}
	return &repoService{
		RepoServiceDeps: deps,
		jobs:            make(map[string]*job),
		busy:            make(map[string]string),
	}
}

// claim marks id as owned by op, failing when a job or another op owns it.
func (s *repoService) claim(id, op, running string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[id]; ok {
		return apperr.Busy(id, op, "processing")
	}
	if other, ok := s.busy[id]; ok {
		return apperr.Busy(id, op, other)
	}
	s.busy[id] = running
	return nil
}

func (s *repoService) release(id string) {
	s.mu.Lock()
	delete(s.busy, id)
	s.mu.Unlock()
}

// Clone acquires url and registers the repository as cloned. A failed clone
// is registered as failed so the status endpoint can explain it; an earlier
// working copy is kept.
func (s *repoService) Clone(ctx context.Context, url string) (models.Repository, error) {
	ref, err := source.ParseURL(url)
	if err != nil {
		return models.Repository{}, err
	}
	id := ref.ID()
	if err := s.claim(id, "clone", "cloning"); err != nil {
		return models.Repository{}, err
	}
	defer s.release(id)

	start := time.Now()
	acq, err := s.Acquirer.Acquire(ctx, url)
	metrics.RecordClone(start, err)

	prev, existed := s.Tracker.Snapshot(id)
	now := time.Now().UTC()
	if err != nil {
		log.Printf("[Repo Service] clone of %s failed: %v", id, err)
		failed := prev
		if !existed {
			failed = models.Repository{
				ID:             id,
				URL:            strings.TrimSpace(url),
				Owner:          ref.Owner,
				Name:           ref.Name,
				CollectionName: models.CollectionNameFor(id),
				CreatedAt:      now,
			}
		}
		failed.State = models.StateFailed
		failed.Error = err.Error()
		failed.ErrorKind = string(apperr.KindOf(err))
		if perr := s.Tracker.Put(context.WithoutCancel(ctx), failed); perr != nil {
			log.Printf("[Repo Service] could not record failed clone of %s: %v", id, perr)
		}
		return models.Repository{}, err
	}

	// A new working copy invalidates whatever was indexed from the old one.
	if err := s.Vectors.Drop(ctx, models.CollectionNameFor(id)); err != nil {
		return models.Repository{}, apperr.Processing("cannot reset the previous index", err)
	}

	repo := models.Repository{
		ID:             id,
		URL:            strings.TrimSpace(url),
		Owner:          ref.Owner,
		Name:           ref.Name,
		DefaultBranch:  acq.DefaultBranch,
		LocalPath:      acq.Path,
		SizeBytes:      acq.SizeBytes,
		FileCount:      len(acq.Scan.Files),
		State:          models.StateCloned,
		CollectionName: models.CollectionNameFor(id),
		CreatedAt:      now,
	}
	if existed && !prev.CreatedAt.IsZero() {
		repo.CreatedAt = prev.CreatedAt
	}
	if err := s.Tracker.Put(ctx, repo); err != nil {
		return models.Repository{}, err
	}
	log.Printf("[Repo Service] cloned %s: %d eligible files, %.2f MB", id, repo.FileCount, repo.SizeMB())
	return repo, nil
}

func (s *repoService) Process(ctx context.Context, id string) (models.ProcessResponse, error) {
	repo, ok := s.Tracker.Snapshot(id)
	if !ok {
		return models.ProcessResponse{}, apperr.NotFound(id)
	}

	if !dirExists(repo.LocalPath) {
		return models.ProcessResponse{}, &apperr.Error{
			Kind:    apperr.KindNotFound,
			Message: fmt.Sprintf("repository %q has no local copy", id),
			Fix:     "Clone the repository again",
		}
	}

	var (
		jobCtx context.Context
		cancel context.CancelFunc
	)
	if s.ProcessTimeout > 0 {
		jobCtx, cancel = context.WithTimeout(context.Background(), s.ProcessTimeout)
	} else {
		jobCtx, cancel = context.WithCancel(context.Background())
	}
	jobID := uuid.NewString()
	j := &job{id: jobID, cancel: cancel, done: make(chan struct{})}

	// Reserve the slot; the registry write below happens outside s.mu.
	s.mu.Lock()
	if running, ok := s.jobs[id]; ok {
		s.mu.Unlock()
		cancel()
		current, _ := s.Tracker.Snapshot(id)
		resp := processResponse(current, false)
		resp.JobID = running.id
		return resp, nil
	}
	if other, ok := s.busy[id]; ok {
		s.mu.Unlock()
		cancel()
		return models.ProcessResponse{}, apperr.Busy(id, "process", other)
	}
	s.jobs[id] = j
	s.mu.Unlock()

	repo, started, err := s.Tracker.Begin(ctx, id, jobID)
	if err != nil || !started {
		s.mu.Lock()
		delete(s.jobs, id)
		s.mu.Unlock()
		cancel()
		close(j.done)
		return processResponse(repo, false), err
	}

	log.Printf("[Repo Service] job %s started for %s", jobID, id)
	go s.run(jobCtx, repo, j)

	select {
	case <-j.done:
		return j.resp, j.err
	case <-ctx.Done():
		current, _ := s.Tracker.Snapshot(id)
		resp := processResponse(current, true)
		resp.JobID = jobID
		return resp, nil
	}
}

func (s *repoService) run(ctx context.Context, repo models.Repository, j *job) {
	finish := metrics.JobStarted()
	start := time.Now()

	resp, err := s.process(ctx, repo, j.id)
	persist := context.WithoutCancel(ctx)
	if err != nil {
		log.Printf("[Repo Service] job %s for %s failed after %s: %v", j.id, repo.ID, time.Since(start).Round(time.Millisecond), err)
		if ferr := s.Tracker.Fail(persist, repo.ID, err); ferr != nil {
			log.Printf("[Repo Service] could not record failure of %s: %v", repo.ID, ferr)
		}
	} else {
		log.Printf("[Repo Service] job %s for %s finished in %s: %d files, %d chunks",
			j.id, repo.ID, time.Since(start).Round(time.Millisecond), resp.FileCount, resp.ChunkCount)
	}
	finish(err)

	j.resp, j.err = resp, err
	j.cancel()
	s.mu.Lock()
	delete(s.jobs, repo.ID)
	s.mu.Unlock()
	close(j.done)
}

// process chunks every eligible file, then indexes all chunks. The repository
// is only marked processed once both steps covered every file.
func (s *repoService) process(ctx context.Context, repo models.Repository, jobID string) (models.ProcessResponse, error) {
	persist := context.WithoutCancel(ctx)

	scan, err := s.Acquirer.Filter().Scan(repo.LocalPath)
	if err != nil {
		return models.ProcessResponse{}, apperr.Processing("cannot enumerate files", err)
	}

	chunks, err := s.chunkFiles(ctx, repo, scan.Files)
	if err != nil {
		return models.ProcessResponse{}, err
	}
	metrics.AddChunks(len(chunks))

	coll := models.Collection{
		Name:      models.CollectionNameFor(repo.ID),
		RepoID:    repo.ID,
		CreatedAt: time.Now().UTC(),
	}
	if len(chunks) == 0 {
		// An empty but existing collection lets chat answer "nothing found".
		if _, err := s.Vectors.EnsureCollection(ctx, coll); err != nil {
			return models.ProcessResponse{}, apperr.Processing("cannot create collection", err)
		}
	}

	_, err = s.Indexer.Index(ctx, coll, chunks, func(indexed, total int) {
		if perr := s.Tracker.Progress(persist, repo.ID, indexed, total); perr != nil {
			log.Printf("[Repo Service] progress of %s not recorded: %v", repo.ID, perr)
		}
	})
	if err != nil {
		return models.ProcessResponse{}, err
	}

	done, err := s.Tracker.Complete(persist, repo.ID, len(scan.Files), len(chunks))
	if err != nil {
		return models.ProcessResponse{}, apperr.Processing("cannot record completion", err)
	}
	resp := processResponse(done, true)
	resp.JobID = jobID
	return resp, nil
}

// chunkFiles loads and chunks files in parallel, keeping file order.
func (s *repoService) chunkFiles(ctx context.Context, repo models.Repository, files []models.SourceFile) ([]models.Chunk, error) {
	perFile := make([][]models.Chunk, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.ChunkWorkers)
	for i := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			f := files[i]
			if err := source.LoadContent(repo.LocalPath, &f); err != nil {
				return err
			}
			perFile[i] = s.Chunker.Chunk(repo.ID, f)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, apperr.Processing("chunking failed", err)
	}

	var all []models.Chunk
	for _, cs := range perFile {
		all = append(all, cs...)
	}
	return all, nil
}

// Status is a pure read of the tracked state.
func (s *repoService) Status(_ context.Context, id string) models.StatusResponse {
	repo, ok := s.Tracker.Snapshot(id)
	if !ok {
		return models.StatusResponse{CollectionName: models.CollectionNameFor(id)}
	}

	resp := models.StatusResponse{
		Processed:      repo.State == models.StateProcessed,
		ChunkCount:     repo.ChunkCount,
		CollectionName: repo.CollectionName,
		RepoExists:     dirExists(repo.LocalPath),
		State:          string(repo.State),
		Error:          repo.Error,
		ErrorKind:      repo.ErrorKind,
		IndexedChunks:  repo.IndexedChunks,
		TotalChunks:    repo.TotalChunks,
		ProgressPct:    repo.ProgressPct(),
	}
	if repo.State == models.StateProcessing {
		resp.ChunkCount = repo.IndexedChunks
	}
	if resp.RepoExists {
		size, files := repo.SizeMB(), repo.FileCount
		resp.RepoSizeMB = &size
		resp.TotalFiles = &files
	}
	return resp
}

// Chat answers against processed repositories, and against processing ones
// with a partial flag. Anything else is not ready.
func (s *repoService) Chat(ctx context.Context, id, question string) (ChatResult, error) {
	repo, err := s.readyRepo(id)
	if err != nil {
		metrics.RecordChat(err)
		return ChatResult{}, err
	}
	res, err := s.ChatService.Answer(ctx, repo, question)
	metrics.RecordChat(err)
	return res, err
}

func (s *repoService) Search(ctx context.Context, id, query string, k int) ([]models.ScoredChunk, error) {
	if _, err := s.readyRepo(id); err != nil {
		return nil, err
	}
	return s.Retriever.Retrieve(ctx, id, query, k)
}

func (s *repoService) readyRepo(id string) (models.Repository, error) {
	repo, ok := s.Tracker.Snapshot(id)
	if !ok {
		return models.Repository{}, apperr.NotFound(id)
	}
	switch repo.State {
	case models.StateProcessed, models.StateProcessing:
		return repo, nil
	default:
		return models.Repository{}, apperr.CollectionNotFound(id)
	}
}

func (s *repoService) List(_ context.Context) []models.Repository {
	return s.Tracker.List()
}

func (s *repoService) Get(_ context.Context, id string) (models.Repository, error) {
	repo, ok := s.Tracker.Snapshot(id)
	if !ok {
		return models.Repository{}, apperr.NotFound(id)
	}
	return repo, nil
}

// Delete cancels a running job, waits for it, then removes the collection,
// the working copy and the registry entry.
func (s *repoService) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	if other, ok := s.busy[id]; ok {
		s.mu.Unlock()
		return apperr.Busy(id, "delete", other)
	}
	s.busy[id] = "being deleted"
	j := s.jobs[id]
	s.mu.Unlock()
	defer s.release(id)

	if j != nil {
		log.Printf("[Repo Service] cancelling job %s of %s before delete", j.id, id)
		j.cancel()
		select {
		case <-j.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	_, tracked := s.Tracker.Snapshot(id)
	if !tracked && !dirExists(s.Acquirer.Path(id)) {
		return apperr.NotFound(id)
	}

	if err := s.Vectors.Drop(ctx, models.CollectionNameFor(id)); err != nil {
		return fmt.Errorf("drop collection of %s: %w", id, err)
	}
	if err := s.Acquirer.Remove(id); err != nil {
		return err
	}
	if tracked {
		if err := s.Tracker.Remove(ctx, id); err != nil {
			return fmt.Errorf("remove %s from registry: %w", id, err)
		}
	}
	log.Printf("[Repo Service] deleted %s", id)
	return nil
}

func (s *repoService) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	running := make([]*job, 0, len(s.jobs))
	for _, j := range s.jobs {
		running = append(running, j)
	}
	s.mu.Unlock()

	for _, j := range running {
		j.cancel()
	}
	var errs []error
	for _, j := range running {
		select {
		case <-j.done:
		case <-ctx.Done():
			errs = append(errs, fmt.Errorf("job %s: %w", j.id, ctx.Err()))
		}
	}
	return errors.Join(errs...)
}

func processResponse(repo models.Repository, started bool) models.ProcessResponse {
	resp := models.ProcessResponse{
		Status:         string(repo.State),
		FileCount:      repo.FileCount,
		ChunkCount:     repo.ChunkCount,
		CollectionName: repo.CollectionName,
		JobID:          repo.JobID,
		Started:        started,
		Error:          repo.Error,
	}
	if repo.State == models.StateProcessing {
		resp.ChunkCount = repo.IndexedChunks
	}
	return resp
}

func dirExists(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
