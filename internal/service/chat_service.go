package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/SvenBotha/SourceChat/internal/apperr"
	"github.com/SvenBotha/SourceChat/internal/metrics"
	"github.com/SvenBotha/SourceChat/internal/models"
)

// Prompt markers, also read back by EchoGenerator.
const (
	promptQuestionPrefix = "Question: "
	promptSourcePrefix   = "File: "
	noContextNotice      = "No matching code was found in the repository for this question."
	previewRunes         = 200
)

// ChatResult is one answered question.
type ChatResult struct {
	Answer  string
	Sources []models.Source
	RepoID  string
	Partial bool // the repository was still being indexed
}

// ChatService answers questions about a repository: retrieve context,
// build a bounded prompt, generate.
type ChatService interface {
	Answer(ctx context.Context, repo models.Repository, question string) (ChatResult, error)
}

// ChatOptions tune retrieval and generation.
type ChatOptions struct {
	TopK              int
	MaxPromptChars    int
	GenerationTimeout time.Duration
}

type chatService struct {
	retriever Retriever
	generator Generator
	opts      ChatOptions
}

// NewChatService wires dependencies and returns ChatService.
func NewChatService(retriever Retriever, generator Generator, opts ChatOptions) ChatService {
	if opts.TopK <= 0 {
		opts.TopK = 5
	}
	if opts.MaxPromptChars <= 0 {
		opts.MaxPromptChars = 12000
	}
	return &chatService{retriever: retriever, generator: generator, opts: opts}
}

// Answer retrieves the top chunks of repo and asks the generator. Nothing
// here mutates repository state; failures are returned per request.
func (s *chatService) Answer(ctx context.Context, repo models.Repository, question string) (ChatResult, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return ChatResult{}, apperr.InvalidInput("question cannot be empty")
	}

	hits, err := s.retriever.Retrieve(ctx, repo.ID, question, s.opts.TopK)
	switch {
	case errors.Is(err, apperr.ErrCollectionNotFound) && repo.State == models.StateProcessing:
		// The first batch has not been committed yet.
		hits = nil
	case err != nil:
		return ChatResult{}, err
	}

	prompt, used := buildPrompt(repo, question, hits, s.opts.MaxPromptChars)

	genCtx := ctx
	if s.opts.GenerationTimeout > 0 {
		var cancel context.CancelFunc
		genCtx, cancel = context.WithTimeout(ctx, s.opts.GenerationTimeout)
		defer cancel()
	}
	start := time.Now()
	answer, err := s.generator.Generate(genCtx, prompt)
	metrics.RecordGeneration(start)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return ChatResult{}, apperr.Generation(fmt.Errorf("timed out after %s: %w", s.opts.GenerationTimeout, err))
		}
		return ChatResult{}, apperr.Generation(err)
	}
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return ChatResult{}, apperr.Generation(ErrEmptyAnswer)
	}

	log.Printf("[Chat Service] %s: answered with %d/%d chunks in %s",
		repo.ID, len(used), len(hits), time.Since(start).Round(time.Millisecond))

	return ChatResult{
		Answer:  answer,
		Sources: formatSources(used),
		RepoID:  repo.ID,
		Partial: repo.State == models.StateProcessing,
	}, nil
}

// buildPrompt renders the prompt within maxChars. The question is cut to half
// the budget so context always has room. Lower-ranked chunks are dropped
// first; the top chunk is truncated rather than dropped. It returns the
// chunks that made it into the prompt.
func buildPrompt(repo models.Repository, question string, hits []models.ScoredChunk, maxChars int) (string, []models.ScoredChunk) {
	var head strings.Builder
	fmt.Fprintf(&head, "You are SourceChat, an assistant answering questions about the GitHub repository %s/%s.\n", repo.Owner, repo.Name)
	head.WriteString("Answer using the code context below and cite file paths. If the context does not answer the question, say so.\n\n")
	maxQuestion := maxChars/2 - head.Len() - len(promptQuestionPrefix) - 2
	head.WriteString(promptQuestionPrefix + truncateBytes(question, max(maxQuestion, 0)) + "\n\n")

	if len(hits) == 0 {
		return head.String() + noContextNotice + "\n", nil
	}
	head.WriteString("Context:\n")

	var body strings.Builder
	budget := maxChars - head.Len()
	var used []models.ScoredChunk
	for i, hit := range hits {
		block := formatBlock(hit.Chunk, hit.Chunk.Content)
		if len(block) > budget {
			if i > 0 {
				break
			}
			// Shrink the top chunk to what fits around its label and fences.
			overhead := len(formatBlock(hit.Chunk, ""))
			block = formatBlock(hit.Chunk, truncateBytes(hit.Chunk.Content, max(budget-overhead, 0)))
		}
		body.WriteString(block)
		budget -= len(block)
		used = append(used, hit)
	}
	return head.String() + body.String(), used
}

func formatBlock(c models.Chunk, content string) string {
	return fmt.Sprintf("%s%s (lines %d-%d)\n```\n%s\n```\n\n", promptSourcePrefix, c.FilePath, c.StartLine, c.EndLine, content)
}

// formatSources renders retrieval hits as client-facing citations.
func formatSources(hits []models.ScoredChunk) []models.Source {
	sources := make([]models.Source, len(hits))
	for i, h := range hits {
		sources[i] = models.Source{
			FilePath:       h.Chunk.FilePath,
			FileName:       h.Chunk.FileName(),
			ContentPreview: preview(h.Chunk.Content),
			StartLine:      h.Chunk.StartLine,
			EndLine:        h.Chunk.EndLine,
			Score:          h.Score,
		}
	}
	return sources
}

func preview(content string) string {
	if utf8.RuneCountInString(content) <= previewRunes {
		return content
	}
	return string([]rune(content)[:previewRunes]) + "..."
}

// truncateBytes cuts s to at most n bytes without splitting a rune.
func truncateBytes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
