package source

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/SvenBotha/SourceChat/internal/apperr"
	"github.com/SvenBotha/SourceChat/internal/models"
)

// SkipSymlink counts links, which are never followed.
const SkipSymlink = "symlink"

// ScanResult is the eligible file set of a repository tree.
type ScanResult struct {
	Files       []models.SourceFile // sorted by Path, Content not loaded
	TotalSize   int64               // bytes of eligible files
	SkipReasons map[string]int
}

// Scan walks root and returns every eligible file.
func (f *Filter) Scan(root string) (ScanResult, error) {
	res := ScanResult{SkipReasons: make(map[string]int)}

	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == root {
				return err
			}
			log.Printf("[Scan] skipping %s: %v", p, err)
			res.SkipReasons[SkipUnreadable]++
			return nil
		}
		if p == root {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		if d.Type()&fs.ModeSymlink != 0 {
			res.SkipReasons[SkipSymlink]++
			return nil
		}
		if d.IsDir() {
			if reason := f.SkipDir(rel); reason != "" {
				res.SkipReasons[reason]++
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			res.SkipReasons[SkipUnreadable]++
			return nil
		}
		if reason := f.SkipFile(rel, info.Size()); reason != "" {
			res.SkipReasons[reason]++
			return nil
		}
		binary, err := sniffBinary(p)
		if err != nil {
			res.SkipReasons[SkipUnreadable]++
			return nil
		}
		if binary {
			res.SkipReasons[SkipBinary]++
			return nil
		}

		res.Files = append(res.Files, models.SourceFile{
			Path:     rel,
			Language: DetectLanguage(rel),
			Size:     info.Size(),
		})
		res.TotalSize += info.Size()
		return nil
	})
	if err != nil {
		return ScanResult{}, fmt.Errorf("walk %s: %w", root, err)
	}

	sort.Slice(res.Files, func(i, j int) bool { return res.Files[i].Path < res.Files[j].Path })
	return res, nil
}

// ReadFile loads one eligible file of the tree at root. rel must stay inside
// root and pass the filter; anything else is reported as not found.
func (f *Filter) ReadFile(root, rel string) (models.SourceFile, error) {
	clean := path.Clean("/" + strings.TrimSpace(rel))[1:]
	if clean == "" || clean != strings.Trim(rel, "/") || strings.Contains(rel, "\\") {
		return models.SourceFile{}, apperr.InvalidInput(fmt.Sprintf("invalid file path %q", rel))
	}

	notFound := &apperr.Error{Kind: apperr.KindNotFound, Message: fmt.Sprintf("file %q not found", clean)}
	for dir := path.Dir(clean); dir != "."; dir = path.Dir(dir) {
		if f.SkipDir(dir) != "" {
			return models.SourceFile{}, notFound
		}
	}

	full := filepath.Join(root, filepath.FromSlash(clean))
	info, err := os.Lstat(full)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return models.SourceFile{}, notFound
		}
		return models.SourceFile{}, fmt.Errorf("stat %s: %w", clean, err)
	}
	if !info.Mode().IsRegular() || f.SkipFile(clean, info.Size()) != "" {
		return models.SourceFile{}, notFound
	}

	content, err := os.ReadFile(full)
	if err != nil {
		return models.SourceFile{}, fmt.Errorf("read %s: %w", clean, err)
	}
	if IsBinary(content) {
		return models.SourceFile{}, notFound
	}
	return models.SourceFile{
		Path:     clean,
		Language: DetectLanguage(clean),
		Size:     info.Size(),
		Content:  content,
	}, nil
}

// LoadContent fills in Content for a scanned file.
func LoadContent(root string, file *models.SourceFile) error {
	content, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(file.Path)))
	if err != nil {
		return fmt.Errorf("read %s: %w", file.Path, err)
	}
	file.Content = content
	file.Size = int64(len(content))
	return nil
}

// DirSize is the total size of every regular file under root, VCS metadata included.
func DirSize(root string) (int64, error) {
	var total int64
	err := filepath.WalkDir(root, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			info, err := d.Info()
			if err != nil {
				return err
			}
			total += info.Size()
		}
		return nil
	})
	return total, err
}

func sniffBinary(p string) (bool, error) {
	fh, err := os.Open(p)
	if err != nil {
		return false, err
	}
	defer fh.Close()

	buf := make([]byte, sniffLen)
	n, err := io.ReadFull(fh, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return false, err
	}
	return IsBinary(buf[:n]), nil
}
