package service

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// HashEmbedder is an offline Embedder: each token is hashed into one of dim
// buckets with a hashed sign, and the result is L2-normalised. Texts sharing
// vocabulary land close together, which is enough for local development
// and tests.
type HashEmbedder struct {
	dim int
}

// NewHashEmbedder returns a HashEmbedder producing dim-length vectors.
func NewHashEmbedder(dim int) *HashEmbedder {
	return &HashEmbedder{dim: dim}
}

func (h *HashEmbedder) Model() string { return fmt.Sprintf("hash-%d", h.dim) }

func (h *HashEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = h.embed(t)
	}
	return out, nil
}

func (h *HashEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return h.embed(text), nil
}

func (h *HashEmbedder) embed(text string) []float32 {
	vec := make([]float32, h.dim)
	for _, tok := range tokenize(text) {
		f := fnv.New64a()
		_, _ = f.Write([]byte(tok))
		sum := f.Sum64()
		sign := float32(1)
		if sum>>63 == 1 {
			sign = -1
		}
		vec[sum%uint64(h.dim)] += sign
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= scale
	}
	return vec
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	})
}

// EchoGenerator is an offline Generator. It does not reason: it names the
// files the prompt cites and quotes the best match.
type EchoGenerator struct{}

func (EchoGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	var question string
	var files []string
	var firstSnippet strings.Builder
	inFirst := false
	for _, line := range strings.Split(prompt, "\n") {
		switch {
		case strings.HasPrefix(line, promptQuestionPrefix):
			question = strings.TrimPrefix(line, promptQuestionPrefix)
		case strings.HasPrefix(line, promptSourcePrefix):
			files = append(files, strings.TrimPrefix(line, promptSourcePrefix))
			inFirst = len(files) == 1
		case line == "```":
			if inFirst && firstSnippet.Len() > 0 {
				inFirst = false
			}
		case inFirst && firstSnippet.Len() < 400:
			firstSnippet.WriteString(line)
			firstSnippet.WriteString("\n")
		}
	}

	if len(files) == 0 {
		return "I couldn't find any code in this repository related to your question. " +
			"Try rephrasing it or asking about a specific file or function.", nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "The code most relevant to %q is in:\n", strings.TrimSpace(question))
	for _, f := range files {
		fmt.Fprintf(&sb, "- %s\n", f)
	}
	if snippet := strings.TrimSpace(firstSnippet.String()); snippet != "" {
		fmt.Fprintf(&sb, "\nBest match:\n```\n%s\n```\n", snippet)
	}
	return sb.String(), nil
}
