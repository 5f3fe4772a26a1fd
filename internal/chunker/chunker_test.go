package chunker

import (
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SvenBotha/SourceChat/internal/models"
)

func goSource(funcs int) string {
	var b strings.Builder
	b.WriteString("package sample\n\nimport \"fmt\"\n\n")
	for i := 0; i < funcs; i++ {
		fmt.Fprintf(&b, "// F%d prints its number.\nfunc F%d() {\n", i, i)
		for j := 0; j < 6; j++ {
			fmt.Fprintf(&b, "\tfmt.Println(\"function %d line %d\")\n", i, j)
		}
		b.WriteString("}\n\n")
	}
	return b.String()
}

func reconstruct(chunks []models.Chunk) string {
	var b strings.Builder
	for _, c := range chunks {
		b.WriteString(c.Content[c.Overlap:])
	}
	return b.String()
}

func TestChunk_Reconstruction(t *testing.T) {
	tests := []struct {
		name     string
		language string
		content  string
	}{
		{"go", "go", goSource(40)},
		{"python", "python", strings.Repeat("def f():\n    return 1\n\n\nclass A:\n    def m(self):\n        pass\n\n", 60)},
		{"markdown", "markdown", strings.Repeat("# Title\n\nA paragraph of prose that goes on.\nAnd on.\n\n", 80)},
		{"fixed", "java", strings.Repeat("class X { int y = 0; }\n", 200)},
		{"single line", "go", strings.Repeat("x", 5000)},
		{"tiny", "go", "package a\n"},
	}
	c := New(DefaultOptions())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			file := models.SourceFile{Path: "f", Language: tt.language, Content: []byte(tt.content)}
			chunks := c.Chunk("repo", file)
			require.NotEmpty(t, chunks)
			assert.Equal(t, tt.content, reconstruct(chunks))

			for i, ch := range chunks {
				assert.Equal(t, i, ch.Index)
				assert.Equal(t, tt.content[ch.Start:ch.End], ch.Content[ch.Overlap:])
				assert.LessOrEqual(t, ch.End-ch.Start, DefaultMaxChunkSize)
				assert.LessOrEqual(t, ch.Overlap, DefaultOverlap)
				if i == 0 {
					assert.Zero(t, ch.Overlap)
					assert.Zero(t, ch.Start)
				} else {
					assert.Equal(t, chunks[i-1].End, ch.Start)
					assert.Positive(t, ch.Overlap)
				}
			}
		})
	}
}

func TestChunk_Deterministic(t *testing.T) {
	file := models.SourceFile{Path: "a.go", Language: "go", Content: []byte(goSource(25))}
	first := New(DefaultOptions()).Chunk("repo", file)
	second := New(DefaultOptions()).Chunk("repo", file)
	assert.Equal(t, first, second)
}

func TestChunk_EmptyFile(t *testing.T) {
	assert.Empty(t, New(DefaultOptions()).Chunk("repo", models.SourceFile{Path: "empty.go", Language: "go"}))
}

func TestChunk_GoCutsAtDeclarations(t *testing.T) {
	file := models.SourceFile{Path: "a.go", Language: "go", Content: []byte(goSource(30))}
	chunks := New(DefaultOptions()).Chunk("repo", file)
	require.Greater(t, len(chunks), 1)

	for _, ch := range chunks[1:] {
		own := ch.Content[ch.Overlap:]
		assert.True(t, strings.HasPrefix(own, "// F"), "chunk %d starts mid-declaration: %q", ch.Index, own[:20])
		assert.LessOrEqual(t, ch.End-ch.Start, DefaultChunkSize)
	}
}

func TestChunk_ForceSplitKeepsRunes(t *testing.T) {
	content := strings.Repeat("héllo wörld ✓ ", 400)
	file := models.SourceFile{Path: "notes.txt", Language: "text", Content: []byte(content)}
	chunks := New(Options{ChunkSize: 100, Overlap: 15, MaxChunkSize: 150}).Chunk("repo", file)
	require.Greater(t, len(chunks), 1)

	for _, ch := range chunks {
		assert.True(t, utf8.ValidString(ch.Content), "chunk %d", ch.Index)
		assert.LessOrEqual(t, ch.End-ch.Start, 150)
	}
	assert.Equal(t, content, reconstruct(chunks))
}

func TestChunk_FixedWindows(t *testing.T) {
	content := strings.Repeat("a", 2500)
	file := models.SourceFile{Path: "x.rb", Language: "ruby", Content: []byte(content)}
	chunks := New(DefaultOptions()).Chunk("repo", file)
	require.Len(t, chunks, 3)
	assert.Equal(t, 1000, chunks[0].End)
	assert.Equal(t, 2000, chunks[1].End)
	assert.Equal(t, 2500, chunks[2].End)
	assert.Equal(t, 100, chunks[1].Overlap)
}

func TestChunk_LineNumbers(t *testing.T) {
	content := strings.Repeat("line\n", 300)
	file := models.SourceFile{Path: "x.rb", Language: "ruby", Content: []byte(content)}
	chunks := New(DefaultOptions()).Chunk("repo", file)
	require.NotEmpty(t, chunks)
	assert.Equal(t, 1, chunks[0].StartLine)
	assert.Equal(t, 200, chunks[0].EndLine)
	assert.Equal(t, 300, chunks[len(chunks)-1].EndLine)
}

func TestOptionsNormalize(t *testing.T) {
	o := Options{ChunkSize: 10, Overlap: 50, MaxChunkSize: 5}.normalize()
	assert.Equal(t, 9, o.Overlap)
	assert.Equal(t, 10, o.MaxChunkSize)
	assert.Equal(t, DefaultChunkSize, Options{}.normalize().ChunkSize)
}

func TestParagraphBoundaries(t *testing.T) {
	cuts, err := paragraphDetector{}.Boundaries([]byte("one\ntwo\n\nthree\n# head\nbody\n"))
	require.NoError(t, err)
	assert.Equal(t, []int{9, 15}, cuts)
}
