package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/vertexai/genai"
	"google.golang.org/api/option"
)

// Generator produces text from a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// ErrEmptyAnswer is returned when the model produced no text.
var ErrEmptyAnswer = errors.New("model returned an empty answer")

// VertexGenerator implements Generator with a Gemini model on Vertex AI.
type VertexGenerator struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

// NewVertexGenerator creates a Vertex AI Gemini client.
// credentialsFile may be empty to use application default credentials.
func NewVertexGenerator(ctx context.Context, projectID, location, model, credentialsFile string) (*VertexGenerator, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	client, err := genai.NewClient(ctx, projectID, location, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Vertex AI client: %w", err)
	}

	gm := client.GenerativeModel(model)
	gm.SetTemperature(0.2)
	gm.SetTopP(0.8)
	gm.SetTopK(40)

	return &VertexGenerator{
		client: client,
		model:  gm,
	}, nil
}

// Generate returns the text parts of the first candidate.
func (l *VertexGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := l.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("failed to generate response: %w", err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", ErrEmptyAnswer
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}
	if strings.TrimSpace(sb.String()) == "" {
		return "", ErrEmptyAnswer
	}
	return sb.String(), nil
}

// Close closes the Vertex AI client
func (l *VertexGenerator) Close() error {
	return l.client.Close()
}
