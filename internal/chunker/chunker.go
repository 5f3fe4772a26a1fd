// Package chunker splits source files into bounded, overlapping chunks.
//
// Cut points come from a boundary detector chosen by language: declaration
// starts from a tree-sitter parse for code, paragraph breaks for prose. Files
// without a detector are cut into fixed windows. Every chunk after the first
// repeats the tail of its predecessor, and stripping that prefix from each
// chunk reproduces the file byte for byte.
package chunker

import (
	"sort"
	"unicode/utf8"

	"github.com/SvenBotha/SourceChat/internal/models"
)

// Defaults, in bytes.
const (
	DefaultChunkSize    = 1000
	DefaultOverlap      = 100
	DefaultMaxChunkSize = 2000
)

// Options bound chunk sizes.
type Options struct {
	ChunkSize    int // preferred size of a chunk's own region
	Overlap      int // bytes repeated from the previous chunk
	MaxChunkSize int // hard ceiling when no cut point fits ChunkSize
}

// DefaultOptions returns the stock sizes.
func DefaultOptions() Options {
	return Options{ChunkSize: DefaultChunkSize, Overlap: DefaultOverlap, MaxChunkSize: DefaultMaxChunkSize}
}

func (o Options) normalize() Options {
	if o.ChunkSize <= 0 {
		o.ChunkSize = DefaultChunkSize
	}
	if o.Overlap < 0 {
		o.Overlap = 0
	}
	if o.Overlap >= o.ChunkSize {
		o.Overlap = o.ChunkSize - 1
	}
	if o.MaxChunkSize < o.ChunkSize {
		o.MaxChunkSize = o.ChunkSize
	}
	return o
}

// Chunker is safe for concurrent use.
type Chunker struct {
	opts      Options
	detectors map[string]Detector
}

// New returns a Chunker with the built-in detectors.
func New(opts Options) *Chunker {
	opts = opts.normalize()
	prose := paragraphDetector{}
	return &Chunker{
		opts: opts,
		detectors: map[string]Detector{
			"go":         newSyntaxDetector("go", opts.ChunkSize),
			"python":     newSyntaxDetector("python", opts.ChunkSize),
			"javascript": newSyntaxDetector("javascript", opts.ChunkSize),
			"typescript": newSyntaxDetector("typescript", opts.ChunkSize),
			"tsx":        newSyntaxDetector("tsx", opts.ChunkSize),
			"markdown":   prose,
			"text":       prose,
		},
	}
}

// Options reports the effective sizes.
func (c *Chunker) Options() Options {
	return c.opts
}

// Chunk splits file into chunks owned by repoID. An empty file yields none.
func (c *Chunker) Chunk(repoID string, file models.SourceFile) []models.Chunk {
	content := file.Content
	if len(content) == 0 {
		return nil
	}

	var cuts []int
	force := c.opts.ChunkSize
	if d, ok := c.detectors[file.Language]; ok {
		force = c.opts.MaxChunkSize
		raw, err := d.Boundaries(content)
		if err != nil {
			// Fall back to paragraph breaks rather than failing the file.
			raw, _ = paragraphDetector{}.Boundaries(content)
		}
		cuts = normalizeCuts(content, raw)
	}

	lines := newLineIndex(content)
	var (
		chunks []models.Chunk
		pos    int
	)
	for pos < len(content) {
		end := c.nextEnd(content, cuts, pos, force)

		overlap := 0
		if pos > 0 {
			overlap = alignForward(content, pos-min(c.opts.Overlap, pos), pos)
		}
		from := pos - overlap
		chunks = append(chunks, models.Chunk{
			RepoID:    repoID,
			FilePath:  file.Path,
			Index:     len(chunks),
			Start:     pos,
			End:       end,
			Overlap:   overlap,
			StartLine: lines.lineOf(from),
			EndLine:   lines.lineOf(end - 1),
			Language:  file.Language,
			Content:   string(content[from:end]),
		})
		pos = end
	}
	return chunks
}

// nextEnd picks where the chunk starting at pos ends: the furthest cut within
// ChunkSize, else the nearest cut within MaxChunkSize, else a forced split.
func (c *Chunker) nextEnd(content []byte, cuts []int, pos, force int) int {
	n := len(content)
	if n-pos <= c.opts.ChunkSize {
		return n
	}
	limit := pos + c.opts.ChunkSize

	// First cut strictly after pos.
	i := sort.SearchInts(cuts, pos+1)
	best := -1
	for ; i < len(cuts) && cuts[i] <= limit; i++ {
		best = cuts[i]
	}
	if best > 0 {
		return best
	}
	if i < len(cuts) && cuts[i] <= pos+c.opts.MaxChunkSize {
		return cuts[i]
	}

	end := pos + force
	if end >= n {
		return n
	}
	return alignBackward(content, pos, end)
}

// alignBackward moves end back to a rune boundary, never below pos+1.
func alignBackward(content []byte, pos, end int) int {
	e := end
	for e > pos+1 && !utf8.RuneStart(content[e]) {
		e--
	}
	if !utf8.RuneStart(content[e]) {
		return end
	}
	return e
}

// alignForward returns the overlap length after moving from up to a rune boundary.
func alignForward(content []byte, from, pos int) int {
	for from < pos && !utf8.RuneStart(content[from]) {
		from++
	}
	return pos - from
}

// normalizeCuts snaps raw offsets to line starts, drops 0 and len, sorts and dedups.
func normalizeCuts(content []byte, raw []int) []int {
	out := make([]int, 0, len(raw))
	for _, off := range raw {
		if off <= 0 || off >= len(content) {
			continue
		}
		for off > 0 && content[off-1] != '\n' {
			off--
		}
		if off > 0 {
			out = append(out, off)
		}
	}
	sort.Ints(out)
	uniq := out[:0]
	for i, v := range out {
		if i == 0 || v != out[i-1] {
			uniq = append(uniq, v)
		}
	}
	return uniq
}

// lineIndex maps byte offsets to 1-based line numbers.
type lineIndex []int

func newLineIndex(content []byte) lineIndex {
	var nl []int
	for i, b := range content {
		if b == '\n' {
			nl = append(nl, i)
		}
	}
	return nl
}

func (l lineIndex) lineOf(off int) int {
	return sort.SearchInts(l, off) + 1
}
