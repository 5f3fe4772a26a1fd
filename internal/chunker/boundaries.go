package chunker

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// Detector proposes cut points for a file. Offsets need not be sorted or
// line aligned; the chunker normalizes them.
type Detector interface {
	Boundaries(content []byte) ([]int, error)
}

// maxSyntaxDepth bounds how far oversized declarations are descended into.
const maxSyntaxDepth = 4

// syntaxDetector cuts at the start of declarations found by tree-sitter.
type syntaxDetector struct {
	lang      *sitter.Language
	chunkSize int
}

func newSyntaxDetector(language string, chunkSize int) syntaxDetector {
	var lang *sitter.Language
	switch language {
	case "go":
		lang = golang.GetLanguage()
	case "python":
		lang = python.GetLanguage()
	case "javascript":
		lang = javascript.GetLanguage()
	case "typescript":
		lang = typescript.GetLanguage()
	case "tsx":
		lang = tsx.GetLanguage()
	}
	return syntaxDetector{lang: lang, chunkSize: chunkSize}
}

func (d syntaxDetector) Boundaries(content []byte) ([]int, error) {
	if d.lang == nil {
		return nil, fmt.Errorf("no grammar")
	}
	// Parsers are not safe for concurrent use, so each call gets its own.
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(d.lang)

	tree, err := parser.ParseCtx(context.Background(), nil, content)
	if err != nil {
		return nil, fmt.Errorf("tree-sitter parse: %w", err)
	}
	defer tree.Close()

	var cuts []int
	d.collect(tree.RootNode(), 0, &cuts)
	return cuts, nil
}

// collect records the start of every named child of node. A comment directly
// above a declaration keeps it company: only the comment's start is a cut.
// Children larger than a chunk are descended into so that, for example, the
// methods of a big class become cut points too.
func (d syntaxDetector) collect(node *sitter.Node, depth int, cuts *[]int) {
	if node == nil || depth > maxSyntaxDepth {
		return
	}
	prevComment := false
	count := int(node.NamedChildCount())
	for i := 0; i < count; i++ {
		child := node.NamedChild(i)
		if child == nil {
			continue
		}
		isComment := strings.Contains(child.Type(), "comment")
		if !prevComment {
			*cuts = append(*cuts, int(child.StartByte()))
		}
		prevComment = isComment
		if int(child.EndByte()-child.StartByte()) > d.chunkSize {
			d.collect(child, depth+1, cuts)
		}
	}
}

// paragraphDetector cuts at the first line after a blank line, and before
// markdown headings.
type paragraphDetector struct{}

func (paragraphDetector) Boundaries(content []byte) ([]int, error) {
	var cuts []int
	prevBlank := false
	for off := 0; off < len(content); {
		next := bytes.IndexByte(content[off:], '\n')
		end := len(content)
		if next >= 0 {
			end = off + next + 1
		}
		line := bytes.TrimSpace(content[off:end])
		blank := len(line) == 0
		if !blank && off > 0 && (prevBlank || line[0] == '#') {
			cuts = append(cuts, off)
		}
		prevBlank = blank
		off = end
	}
	return cuts, nil
}
