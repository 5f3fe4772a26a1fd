package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/SvenBotha/SourceChat/internal/models"
	"github.com/SvenBotha/SourceChat/internal/repository"
)

// treeCloner "clones" by writing a fixed file tree.
type treeCloner struct {
	files map[string]string
	err   error
}

func (c *treeCloner) Clone(_ context.Context, _, _, dest string) error {
	if c.err != nil {
		return c.err
	}
	for rel, content := range c.files {
		full := filepath.Join(dest, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
			return err
		}
	}
	return nil
}

// sampleRepo has ten files of which four are eligible.
func sampleRepo() map[string]string {
	return map[string]string{
		"main.go":                   "package main\n\nimport \"fmt\"\n\n// parseConfig reads the configuration file.\nfunc parseConfig(path string) error {\n\treturn nil\n}\n\nfunc main() {\n\tfmt.Println(parseConfig(\"app.yaml\"))\n}\n",
		"README":                    "Sample repository used to exercise the pipeline.\n",
		"docs/guide.md":             "# Guide\n\nRun the server with make run.\n\n## Config\n\nThe config file is app.yaml.\n",
		"web/app.ts":                "export function render(title: string): string {\n  return `<h1>${title}</h1>`;\n}\n",
		"logo.png":                  "\x89PNG....",
		"go.sum":                    "example.com/x v1.0.0 h1:abc\n",
		"node_modules/lib/index.js": "module.exports = {}\n",
		".git/config":               "[core]\n",
		"data/blob.txt":             "abc\x00def",
		"tools/run.exe":             "MZ",
	}
}

// flakyEmbedder fails the failAt-th EmbedDocuments call.
type flakyEmbedder struct {
	*HashEmbedder

	mu     sync.Mutex
	calls  int
	failAt int
}

func (f *flakyEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	f.calls++
	n := f.calls
	fail := f.failAt
	f.mu.Unlock()
	if n == fail {
		return nil, errors.New("quota exceeded")
	}
	return f.HashEmbedder.EmbedDocuments(ctx, texts)
}

func (f *flakyEmbedder) setFailAt(n int) {
	f.mu.Lock()
	f.failAt = n
	f.mu.Unlock()
}

func (f *flakyEmbedder) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// blockingEmbedder holds every document batch until release is closed.
type blockingEmbedder struct {
	*HashEmbedder

	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func newBlockingEmbedder() *blockingEmbedder {
	return &blockingEmbedder{
		HashEmbedder: NewHashEmbedder(32),
		entered:      make(chan struct{}),
		release:      make(chan struct{}),
	}
}

func (b *blockingEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	b.once.Do(func() { close(b.entered) })
	select {
	case <-b.release:
		return b.HashEmbedder.EmbedDocuments(ctx, texts)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// staticEmbedder returns the same vector for every text.
type staticEmbedder struct {
	vec []float32
}

func (s staticEmbedder) Model() string { return "static" }

func (s staticEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = s.vec
	}
	return out, nil
}

func (s staticEmbedder) EmbedQuery(context.Context, string) ([]float32, error) {
	return s.vec, nil
}

// gatedRepoStore holds the first write that moves id to processing until
// release is closed.
type gatedRepoStore struct {
	*repository.MemoryRepoStore
	id      string
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func newGatedRepoStore(id string) *gatedRepoStore {
	return &gatedRepoStore{
		MemoryRepoStore: repository.NewMemoryRepoStore(),
		id:              id,
		entered:         make(chan struct{}),
		release:         make(chan struct{}),
	}
}

func (g *gatedRepoStore) Upsert(ctx context.Context, repo models.Repository) error {
	if repo.ID == g.id && repo.State == models.StateProcessing {
		gated := false
		g.once.Do(func() { gated = true })
		if gated {
			close(g.entered)
			<-g.release
		}
	}
	return g.MemoryRepoStore.Upsert(ctx, repo)
}

// queryErrEmbedder indexes like staticEmbedder but cannot embed queries.
type queryErrEmbedder struct {
	staticEmbedder
}

func (queryErrEmbedder) EmbedQuery(context.Context, string) ([]float32, error) {
	return nil, errors.New("quota exhausted")
}

type fakeGenerator struct {
	answer string
	err    error
	prompt string
}

func (g *fakeGenerator) Generate(_ context.Context, prompt string) (string, error) {
	g.prompt = prompt
	return g.answer, g.err
}

// slowGenerator waits for the context to end.
type slowGenerator struct{}

func (slowGenerator) Generate(ctx context.Context, _ string) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

// testChunks returns n chunks spread over files of four chunks each.
func testChunks(repoID string, n int) []models.Chunk {
	chunks := make([]models.Chunk, n)
	for i := range chunks {
		chunks[i] = models.Chunk{
			RepoID:    repoID,
			FilePath:  fmt.Sprintf("pkg/file%d.go", i/4),
			Index:     i % 4,
			StartLine: 1,
			EndLine:   3,
			Language:  "go",
			Content:   fmt.Sprintf("func handler%d() int {\n\treturn %d\n}", i, i),
		}
	}
	return chunks
}
