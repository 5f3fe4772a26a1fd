package models

import (
	"fmt"
	"path"
	"strings"
	"time"
)

// RepoState is the lifecycle state of a cloned repository.
type RepoState string

const (
	StateCloned     RepoState = "cloned"
	StateProcessing RepoState = "processing"
	StateProcessed  RepoState = "processed"
	StateFailed     RepoState = "failed"
)

// Repository is one cloned GitHub repository and its indexing progress.
type Repository struct {
	ID             string    `bson:"_id"             json:"repo_id"`        // "<owner>_<name>", lowercased
	URL            string    `bson:"url"             json:"url"`            // URL as submitted
	Owner          string    `bson:"owner"           json:"owner"`          // GitHub login
	Name           string    `bson:"name"            json:"name"`           // repository name
	DefaultBranch  string    `bson:"default_branch"  json:"default_branch"` // branch that was cloned
	LocalPath      string    `bson:"local_path"      json:"path"`
	SizeBytes      int64     `bson:"size_bytes"      json:"size_bytes"`
	FileCount      int       `bson:"file_count"      json:"file_count"` // eligible files only
	ChunkCount     int       `bson:"chunk_count"     json:"chunk_count"`
	State          RepoState `bson:"state"           json:"state"`
	Error          string    `bson:"error,omitempty" json:"error,omitempty"`
	ErrorKind      string    `bson:"error_kind,omitempty" json:"error_kind,omitempty"`
	CollectionName string    `bson:"collection_name" json:"collection_name"`
	JobID          string    `bson:"job_id,omitempty" json:"job_id,omitempty"`
	IndexedChunks  int       `bson:"indexed_chunks"  json:"indexed_chunks"`
	TotalChunks    int       `bson:"total_chunks"    json:"total_chunks"`
	CreatedAt      time.Time `bson:"created_at"      json:"created_at"`
	UpdatedAt      time.Time `bson:"updated_at"      json:"updated_at"`
	ProcessedAt    time.Time `bson:"processed_at,omitempty" json:"processed_at,omitempty"`
}

// SizeMB is the on-disk size rounded to two decimals, as the client shows it.
func (r Repository) SizeMB() float64 {
	mb := float64(r.SizeBytes) / (1024 * 1024)
	return float64(int64(mb*100+0.5)) / 100
}

// ProgressPct is the share of chunks indexed so far, 0-100.
func (r Repository) ProgressPct() float64 {
	if r.State == StateProcessed {
		return 100
	}
	if r.TotalChunks == 0 {
		return 0
	}
	return float64(r.IndexedChunks) * 100 / float64(r.TotalChunks)
}

// CollectionNameFor returns the vector collection name of a repository.
func CollectionNameFor(repoID string) string {
	return strings.NewReplacer("-", "_", ".", "_").Replace("repo_" + repoID)
}

// SourceFile is an eligible file of a cloned repository.
type SourceFile struct {
	Path     string `json:"path"` // slash-separated, relative to the repository root
	Language string `json:"language"`
	Size     int64  `json:"size"`
	Content  []byte `json:"-"`
}

// Chunk is a bounded segment of a source file.
//
// Start and End delimit the chunk's own region of the file; Content is that
// region prefixed by the last Overlap bytes of the previous chunk, so
// Content[Overlap:] == file[Start:End].
type Chunk struct {
	RepoID    string `bson:"repo_id"    json:"repo_id"`
	FilePath  string `bson:"file_path"  json:"file_path"`
	Index     int    `bson:"seq"        json:"index"`
	Start     int    `bson:"start"      json:"start"`
	End       int    `bson:"end"        json:"end"`
	Overlap   int    `bson:"overlap"    json:"overlap"`
	StartLine int    `bson:"start_line" json:"start_line"`
	EndLine   int    `bson:"end_line"   json:"end_line"`
	Language  string `bson:"language"   json:"language"`
	Content   string `bson:"text"       json:"content"`
}

// ID renders the chunk identity (repo_id, file_path, index).
func (c Chunk) ID() string {
	return fmt.Sprintf("%s:%s:%d", c.RepoID, c.FilePath, c.Index)
}

// FileName is the base name of the originating file.
func (c Chunk) FileName() string {
	return path.Base(c.FilePath)
}

// Less orders chunks by ascending identity.
func (c Chunk) Less(o Chunk) bool {
	if c.RepoID != o.RepoID {
		return c.RepoID < o.RepoID
	}
	if c.FilePath != o.FilePath {
		return c.FilePath < o.FilePath
	}
	return c.Index < o.Index
}

// EmbeddingRecord is the stored vector of one chunk.
type EmbeddingRecord struct {
	ID     string    `bson:"_id"    json:"id"`
	Chunk  Chunk     `bson:",inline" json:"chunk"`
	Vector []float32 `bson:"vector" json:"-"`
}

// NewEmbeddingRecord keys a vector by its chunk identity.
func NewEmbeddingRecord(c Chunk, vec []float32) EmbeddingRecord {
	return EmbeddingRecord{ID: c.ID(), Chunk: c, Vector: vec}
}

// Collection describes the vector partition of one repository.
type Collection struct {
	Name      string    `bson:"_id"        json:"name"`
	RepoID    string    `bson:"repo_id"    json:"repo_id"`
	Dimension int       `bson:"dimension"  json:"dimension"`
	Model     string    `bson:"model"      json:"model"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
}

// ScoredChunk is a retrieval hit.
type ScoredChunk struct {
	Chunk Chunk   `json:"chunk"`
	Score float64 `json:"score"`
}
