package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SvenBotha/SourceChat/internal/apperr"
)

func TestCodeService_GetFileContent(t *testing.T) {
	ctx := context.Background()
	p := newTestPipeline(t, &treeCloner{files: sampleRepo()}, NewHashEmbedder(64), 2)
	_, err := p.svc.Clone(ctx, sampleURL)
	require.NoError(t, err)

	code := NewCodeService(p.tracker, p.filter)

	file, err := code.GetFileContent(ctx, "acme_api", "web/app.ts")
	require.NoError(t, err)
	assert.Equal(t, "web/app.ts", file.Path)
	assert.Equal(t, sampleRepo()["web/app.ts"], string(file.Content))

	tests := []struct {
		name   string
		repoID string
		path   string
		kind   apperr.Kind
	}{
		{"unknown repository", "nobody_here", "main.go", apperr.KindNotFound},
		{"ignored directory", "acme_api", "node_modules/lib/index.js", apperr.KindNotFound},
		{"binary file", "acme_api", "logo.png", apperr.KindNotFound},
		{"missing file", "acme_api", "cmd/absent.go", apperr.KindNotFound},
		{"escapes working copy", "acme_api", "../../etc/passwd", apperr.KindInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := code.GetFileContent(ctx, tt.repoID, tt.path)
			require.Error(t, err)
			assert.Equal(t, tt.kind, apperr.KindOf(err))
		})
	}
}
