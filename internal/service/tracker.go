package service

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/SvenBotha/SourceChat/internal/apperr"
	"github.com/SvenBotha/SourceChat/internal/models"
)

// interruptedMessage is recorded on jobs that were running when the server stopped.
const interruptedMessage = "processing interrupted by a server restart; trigger processing again to resume"

// Tracker owns the lifecycle state of every repository:
//
//	cloned -> processing -> processed
//	cloned | processing -> failed -> processing (resume)
//
// Reads are served from memory and never trigger work. Every transition is
// written through to the RepoStore while the entry is locked, so the store
// sees transitions of one repository in order.
type Tracker struct {
	store RepoStore

	mu      sync.RWMutex
	entries map[string]*trackedRepo
}

type trackedRepo struct {
	mu   sync.Mutex
	repo models.Repository
}

// NewTracker returns an empty Tracker backed by store.
func NewTracker(store RepoStore) *Tracker {
	return &Tracker{store: store, entries: make(map[string]*trackedRepo)}
}

// Load fills the tracker from the store. Repositories persisted as
// processing belong to a job that no longer exists and are marked failed.
func (t *Tracker) Load(ctx context.Context) error {
	repos, err := t.store.List(ctx)
	if err != nil {
		return fmt.Errorf("load repositories: %w", err)
	}
	for _, repo := range repos {
		if repo.State == models.StateProcessing {
			repo.State = models.StateFailed
			repo.Error = interruptedMessage
			repo.ErrorKind = string(apperr.KindProcessing)
			repo.JobID = ""
			repo.UpdatedAt = time.Now().UTC()
			if err := t.store.Upsert(ctx, repo); err != nil {
				return fmt.Errorf("recover %s: %w", repo.ID, err)
			}
			log.Printf("[Tracker] %s was processing at shutdown; marked failed", repo.ID)
		}
		t.mu.Lock()
		t.entries[repo.ID] = &trackedRepo{repo: repo}
		t.mu.Unlock()
	}
	log.Printf("[Tracker] loaded %d repositories", len(repos))
	return nil
}

func (t *Tracker) entry(id string) (*trackedRepo, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.entries[id]
	return e, ok
}

// Snapshot returns the current state of id.
func (t *Tracker) Snapshot(id string) (models.Repository, bool) {
	e, ok := t.entry(id)
	if !ok {
		return models.Repository{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.repo, true
}

// List returns every tracked repository ordered by ID.
func (t *Tracker) List() []models.Repository {
	t.mu.RLock()
	entries := make([]*trackedRepo, 0, len(t.entries))
	for _, e := range t.entries {
		entries = append(entries, e)
	}
	t.mu.RUnlock()

	out := make([]models.Repository, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		out = append(out, e.repo)
		e.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Counts returns the number of repositories per state.
func (t *Tracker) Counts() map[models.RepoState]int {
	counts := make(map[models.RepoState]int)
	for _, r := range t.List() {
		counts[r.State]++
	}
	return counts
}

// Put registers or replaces a repository, e.g. after a clone.
func (t *Tracker) Put(ctx context.Context, repo models.Repository) error {
	repo.UpdatedAt = time.Now().UTC()
	t.mu.Lock()
	e, ok := t.entries[repo.ID]
	if !ok {
		e = &trackedRepo{}
		t.entries[repo.ID] = e
	}
	t.mu.Unlock()

	e.mu.Lock()
	defer e.mu.Unlock()
	if err := t.store.Upsert(ctx, repo); err != nil {
		if !ok {
			t.mu.Lock()
			delete(t.entries, repo.ID)
			t.mu.Unlock()
		}
		return fmt.Errorf("persist %s: %w", repo.ID, err)
	}
	e.repo = repo
	return nil
}

// Begin moves id from cloned or failed to processing. When the repository is
// already processing or processed it returns started=false and no error.
func (t *Tracker) Begin(ctx context.Context, id, jobID string) (models.Repository, bool, error) {
	return t.update(ctx, id, func(r *models.Repository) (bool, error) {
		switch r.State {
		case models.StateProcessing, models.StateProcessed:
			return false, nil
		}
		r.State = models.StateProcessing
		r.JobID = jobID
		r.Error = ""
		r.ErrorKind = ""
		r.IndexedChunks = 0
		r.TotalChunks = 0
		return true, nil
	})
}

// Progress records indexing progress of a running job.
func (t *Tracker) Progress(ctx context.Context, id string, indexed, total int) error {
	_, _, err := t.update(ctx, id, func(r *models.Repository) (bool, error) {
		if r.State != models.StateProcessing {
			return false, nil
		}
		r.IndexedChunks = indexed
		r.TotalChunks = total
		return true, nil
	})
	return err
}

// Complete marks id processed with its final counts.
func (t *Tracker) Complete(ctx context.Context, id string, fileCount, chunkCount int) (models.Repository, error) {
	repo, _, err := t.update(ctx, id, func(r *models.Repository) (bool, error) {
		if r.State != models.StateProcessing {
			return false, fmt.Errorf("complete %s: state is %s", id, r.State)
		}
		r.State = models.StateProcessed
		r.FileCount = fileCount
		r.ChunkCount = chunkCount
		r.IndexedChunks = chunkCount
		r.TotalChunks = chunkCount
		r.JobID = ""
		r.ProcessedAt = time.Now().UTC()
		return true, nil
	})
	return repo, err
}

// Fail marks id failed and records cause verbatim for the status endpoint.
func (t *Tracker) Fail(ctx context.Context, id string, cause error) error {
	_, _, err := t.update(ctx, id, func(r *models.Repository) (bool, error) {
		r.State = models.StateFailed
		r.Error = cause.Error()
		r.ErrorKind = string(apperr.KindOf(cause))
		r.JobID = ""
		return true, nil
	})
	return err
}

// Remove forgets id.
func (t *Tracker) Remove(ctx context.Context, id string) error {
	if err := t.store.Delete(ctx, id); err != nil {
		return err
	}
	t.mu.Lock()
	delete(t.entries, id)
	t.mu.Unlock()
	return nil
}

// update applies fn to a copy of the entry and persists it when fn reports a change.
func (t *Tracker) update(ctx context.Context, id string, fn func(*models.Repository) (bool, error)) (models.Repository, bool, error) {
	e, ok := t.entry(id)
	if !ok {
		return models.Repository{}, false, apperr.NotFound(id)
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	next := e.repo
	changed, err := fn(&next)
	if err != nil {
		return e.repo, false, err
	}
	if !changed {
		return e.repo, false, nil
	}
	next.UpdatedAt = time.Now().UTC()
	if err := t.store.Upsert(ctx, next); err != nil {
		return e.repo, false, fmt.Errorf("persist %s: %w", id, err)
	}
	e.repo = next
	return next, true, nil
}
