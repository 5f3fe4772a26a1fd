package source

import (
	"bytes"
	"path"
	"strings"
)

// sniffLen is how much of a file is inspected for NUL bytes.
const sniffLen = 8000

// DefaultMaxFileSize is the per-file ceiling when none is configured.
const DefaultMaxFileSize = 1024 * 1024

var ignoredDirs = setOf(
	".git", ".svn", ".hg",
	"node_modules", "bower_components", "vendor",
	"__pycache__", ".pytest_cache", ".mypy_cache", ".tox",
	"venv", "env", ".env", "ENV",
	"build", "dist", "target", "out", ".next", ".nuxt",
	".vscode", ".idea",
	"coverage", ".coverage", "htmlcov",
	"logs", "tmp", "temp", ".tmp",
)

var ignoredFiles = setOf(
	".gitignore", ".dockerignore", ".env", ".env.example",
	"package-lock.json", "yarn.lock", "pnpm-lock.yaml", "poetry.lock", "Cargo.lock",
	"Gemfile.lock", "composer.lock", "go.sum",
	".DS_Store", "Thumbs.db", "desktop.ini",
)

var binaryExtensions = setOf(
	".png", ".jpg", ".jpeg", ".gif", ".svg", ".ico", ".webp", ".bmp",
	".pdf", ".zip", ".tar", ".gz", ".tgz", ".rar", ".7z", ".jar",
	".exe", ".dll", ".so", ".dylib", ".a", ".o", ".class", ".wasm", ".pyc",
	".mp3", ".mp4", ".avi", ".mov", ".wmv", ".wav",
	".woff", ".woff2", ".ttf", ".eot", ".otf",
)

// docNames are accepted even without a supported extension.
var docNames = setOf("README", "LICENSE", "CHANGELOG", "CONTRIBUTING", "MAKEFILE", "DOCKERFILE")

var languages = map[string]string{
	".go": "go", ".py": "python", ".js": "javascript", ".jsx": "javascript",
	".ts": "typescript", ".tsx": "tsx", ".java": "java", ".c": "c", ".h": "c",
	".cpp": "cpp", ".cs": "csharp", ".php": "php", ".rb": "ruby", ".rs": "rust",
	".swift": "swift", ".kt": "kotlin", ".scala": "scala", ".lua": "lua", ".vim": "vim",
	".md": "markdown", ".txt": "text", ".rst": "text",
	".yaml": "yaml", ".yml": "yaml", ".json": "json", ".xml": "xml", ".html": "html",
	".css": "css", ".scss": "css", ".sass": "css", ".sql": "sql",
}

// Skip reasons reported by Scan.
const (
	SkipIgnoredDir  = "ignored_dir"
	SkipIgnoredFile = "ignored_file"
	SkipExcluded    = "excluded"
	SkipBinary      = "binary"
	SkipUnsupported = "unsupported"
	SkipTooLarge    = "too_large"
	SkipUnreadable  = "unreadable"
)

// Filter decides which files of a repository are indexed.
type Filter struct {
	extensions   map[string]struct{}
	excludeGlobs []string
	maxFileSize  int64
}

// NewFilter builds a Filter; empty extensions falls back to the language table.
func NewFilter(extensions, excludeGlobs []string, maxFileSize int64) *Filter {
	if maxFileSize <= 0 {
		maxFileSize = DefaultMaxFileSize
	}
	exts := make(map[string]struct{}, len(extensions))
	for _, e := range extensions {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		exts[e] = struct{}{}
	}
	if len(exts) == 0 {
		for e := range languages {
			exts[e] = struct{}{}
		}
	}
	return &Filter{extensions: exts, excludeGlobs: excludeGlobs, maxFileSize: maxFileSize}
}

// SkipDir reports why a directory is skipped, or "" to descend into it.
func (f *Filter) SkipDir(rel string) string {
	if _, ok := ignoredDirs[path.Base(rel)]; ok {
		return SkipIgnoredDir
	}
	if f.excluded(rel) {
		return SkipExcluded
	}
	return ""
}

// SkipFile reports why a file is skipped by name and size, or "".
func (f *Filter) SkipFile(rel string, size int64) string {
	base := path.Base(rel)
	if _, ok := ignoredFiles[base]; ok {
		return SkipIgnoredFile
	}
	if f.excluded(rel) {
		return SkipExcluded
	}
	ext := strings.ToLower(path.Ext(base))
	if _, ok := binaryExtensions[ext]; ok {
		return SkipBinary
	}
	if _, ok := f.extensions[ext]; !ok && !isDocName(base) {
		return SkipUnsupported
	}
	if size > f.maxFileSize {
		return SkipTooLarge
	}
	return ""
}

// excluded matches the configured globs against the whole path and each segment.
func (f *Filter) excluded(rel string) bool {
	for _, g := range f.excludeGlobs {
		if ok, _ := path.Match(g, rel); ok {
			return true
		}
		for _, seg := range strings.Split(rel, "/") {
			if ok, _ := path.Match(g, seg); ok {
				return true
			}
		}
	}
	return false
}

func isDocName(base string) bool {
	name := strings.ToUpper(strings.TrimSuffix(base, path.Ext(base)))
	if path.Ext(base) == "" {
		name = strings.ToUpper(base)
	}
	_, ok := docNames[name]
	return ok
}

// IsBinary reports whether content looks binary (a NUL byte near the start).
func IsBinary(content []byte) bool {
	if len(content) > sniffLen {
		content = content[:sniffLen]
	}
	return bytes.IndexByte(content, 0) >= 0
}

// DetectLanguage maps a path to a language name, "text" for docs, "" when unknown.
func DetectLanguage(rel string) string {
	if lang, ok := languages[strings.ToLower(path.Ext(rel))]; ok {
		return lang
	}
	if isDocName(path.Base(rel)) {
		return "text"
	}
	return ""
}

func setOf(items ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(items))
	for _, s := range items {
		m[s] = struct{}{}
	}
	return m
}
