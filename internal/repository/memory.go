package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/SvenBotha/SourceChat/internal/models"
)

// MemoryRepoStore is an in-memory registry. Data does not survive a restart.
type MemoryRepoStore struct {
	mu    sync.RWMutex
	repos map[string]models.Repository
}

// NewMemoryRepoStore creates an empty registry.
func NewMemoryRepoStore() *MemoryRepoStore {
	return &MemoryRepoStore{repos: make(map[string]models.Repository)}
}

func (s *MemoryRepoStore) Get(_ context.Context, id string) (models.Repository, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	repo, ok := s.repos[id]
	if !ok {
		return models.Repository{}, ErrNotFound
	}
	return repo, nil
}

func (s *MemoryRepoStore) Upsert(_ context.Context, repo models.Repository) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.repos[repo.ID] = repo
	return nil
}

func (s *MemoryRepoStore) List(_ context.Context) ([]models.Repository, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Repository, 0, len(s.repos))
	for _, r := range s.repos {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryRepoStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.repos, id)
	return nil
}

func (s *MemoryRepoStore) Ping(context.Context) error { return nil }

// MemoryVectorStore keeps embedding records in maps keyed by collection name.
type MemoryVectorStore struct {
	mu          sync.RWMutex
	collections map[string]models.Collection
	records     map[string]map[string]models.EmbeddingRecord // collection -> id -> record
}

// NewMemoryVectorStore creates an empty store.
func NewMemoryVectorStore() *MemoryVectorStore {
	return &MemoryVectorStore{
		collections: make(map[string]models.Collection),
		records:     make(map[string]map[string]models.EmbeddingRecord),
	}
}

func (s *MemoryVectorStore) Collection(_ context.Context, name string) (models.Collection, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.collections[name]
	return c, ok, nil
}

func (s *MemoryVectorStore) EnsureCollection(_ context.Context, coll models.Collection) (models.Collection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.collections[coll.Name]; ok {
		return existing, nil
	}
	s.collections[coll.Name] = coll
	return coll, nil
}

func (s *MemoryVectorStore) ExistingIDs(_ context.Context, name string) (map[string]struct{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make(map[string]struct{}, len(s.records[name]))
	for id := range s.records[name] {
		ids[id] = struct{}{}
	}
	return ids, nil
}

func (s *MemoryVectorStore) Upsert(_ context.Context, name string, records []models.EmbeddingRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	recs, ok := s.records[name]
	if !ok {
		recs = make(map[string]models.EmbeddingRecord, len(records))
		s.records[name] = recs
	}
	for _, rec := range records {
		vec := make([]float32, len(rec.Vector))
		copy(vec, rec.Vector)
		rec.Vector = vec
		recs[rec.ID] = rec
	}
	return nil
}

// Scan visits records in ID order. fn runs on a snapshot, so it may call
// back into the store.
func (s *MemoryVectorStore) Scan(ctx context.Context, name string, fn func(models.EmbeddingRecord) error) error {
	s.mu.RLock()
	snapshot := make([]models.EmbeddingRecord, 0, len(s.records[name]))
	for _, rec := range s.records[name] {
		snapshot = append(snapshot, rec)
	}
	s.mu.RUnlock()

	sort.Slice(snapshot, func(i, j int) bool { return snapshot[i].ID < snapshot[j].ID })
	for _, rec := range snapshot {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	return nil
}

func (s *MemoryVectorStore) Count(_ context.Context, name string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records[name]), nil
}

func (s *MemoryVectorStore) Drop(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.collections, name)
	delete(s.records, name)
	return nil
}
