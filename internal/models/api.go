package models

// CloneRequest is the payload for POST /repos/clone.
type CloneRequest struct {
	URL string `json:"url"`
}

// CloneResponse answers POST /repos/clone.
type CloneResponse struct {
	RepoID  string `json:"repo_id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// ProcessResponse answers POST /repos/:id/process.
type ProcessResponse struct {
	Status         string `json:"status"`
	FileCount      int    `json:"file_count"`
	ChunkCount     int    `json:"chunk_count"`
	CollectionName string `json:"collection_name"`
	JobID          string `json:"job_id,omitempty"`
	Started        bool   `json:"started"` // false when another job already owned the repository
	Error          string `json:"error,omitempty"`
}

// StatusResponse answers GET /repos/:id/status. Optional fields are only set
// when the repository exists.
type StatusResponse struct {
	Processed      bool     `json:"processed"`
	ChunkCount     int      `json:"chunk_count"`
	CollectionName string   `json:"collection_name"`
	RepoExists     bool     `json:"repo_exists"`
	RepoSizeMB     *float64 `json:"repo_size_mb,omitempty"`
	TotalFiles     *int     `json:"total_files,omitempty"`
	State          string   `json:"state,omitempty"`
	Error          string   `json:"error,omitempty"`
	ErrorKind      string   `json:"error_kind,omitempty"`
	IndexedChunks  int      `json:"indexed_chunks"`
	TotalChunks    int      `json:"total_chunks"`
	ProgressPct    float64  `json:"progress_pct"`
}

// ChatRequest is the payload for POST /repos/:id/chat.
type ChatRequest struct {
	Question string `json:"question"` // user's natural-language question
}

// Source is one citation returned with an answer.
type Source struct {
	FilePath       string  `json:"file_path"`
	FileName       string  `json:"file_name"`
	ContentPreview string  `json:"content_preview"`
	StartLine      int     `json:"start_line"`
	EndLine        int     `json:"end_line"`
	Score          float64 `json:"score"`
}

// ChatResponse answers POST /repos/:id/chat.
type ChatResponse struct {
	Answer  string   `json:"answer"`
	Sources []Source `json:"sources"`
	RepoID  string   `json:"repo_id"`
	Partial bool     `json:"partial"` // served from an index that is still being built
}

// DeleteResponse answers DELETE /repos/:id.
type DeleteResponse struct {
	RepoID  string `json:"repo_id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// SearchResponse answers GET /repos/:id/search.
type SearchResponse struct {
	RepoID  string        `json:"repo_id"`
	Query   string        `json:"query"`
	Results []ScoredChunk `json:"results"`
}
