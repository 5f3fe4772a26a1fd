package service

import (
	"context"

	"github.com/SvenBotha/SourceChat/internal/apperr"
	"github.com/SvenBotha/SourceChat/internal/models"
	"github.com/SvenBotha/SourceChat/internal/source"
)

// CodeService serves the content of indexed files, so clients can open the
// file behind a citation.
type CodeService interface {
	GetFileContent(ctx context.Context, repoID string, filePath string) (models.SourceFile, error)
}

type codeService struct {
	tracker *Tracker
	filter  *source.Filter
}

// NewCodeService creates a new instance of CodeService
func NewCodeService(tracker *Tracker, filter *source.Filter) CodeService {
	return &codeService{tracker: tracker, filter: filter}
}

// GetFileContent reads filePath from the repository's working copy. Only
// files the indexer would accept are served.
func (s *codeService) GetFileContent(_ context.Context, repoID string, filePath string) (models.SourceFile, error) {
	repo, ok := s.tracker.Snapshot(repoID)
	if !ok || repo.LocalPath == "" {
		return models.SourceFile{}, apperr.NotFound(repoID)
	}
	return s.filter.ReadFile(repo.LocalPath, filePath)
}
