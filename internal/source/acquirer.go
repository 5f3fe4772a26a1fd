// Package source turns a GitHub URL into a local working copy and the set of
// files worth indexing.
package source

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/SvenBotha/SourceChat/internal/apperr"
	"github.com/SvenBotha/SourceChat/internal/github"
)

// RepoLookup resolves repository metadata before cloning. *github.Client
// satisfies it.
type RepoLookup interface {
	LookupRepository(ctx context.Context, owner, name string) (github.RepoInfo, error)
}

// Acquisition is the outcome of a successful clone.
type Acquisition struct {
	Ref           RepoRef
	Path          string
	DefaultBranch string
	SizeBytes     int64
	Scan          ScanResult
}

// Acquirer clones repositories under a base directory.
type Acquirer struct {
	baseDir      string
	cloner       Cloner
	lookup       RepoLookup // nil disables the preflight
	filter       *Filter
	maxRepoBytes int64
	timeout      time.Duration
}

// NewAcquirer wires an Acquirer. lookup may be nil.
func NewAcquirer(baseDir string, cloner Cloner, lookup RepoLookup, filter *Filter, maxRepoSizeMB int, timeout time.Duration) *Acquirer {
	return &Acquirer{
		baseDir:      baseDir,
		cloner:       cloner,
		lookup:       lookup,
		filter:       filter,
		maxRepoBytes: int64(maxRepoSizeMB) * 1024 * 1024,
		timeout:      timeout,
	}
}

// Filter exposes the eligibility rules used for scanning.
func (a *Acquirer) Filter() *Filter {
	return a.filter
}

// Path is where repository id lives on disk.
func (a *Acquirer) Path(id string) string {
	return filepath.Join(a.baseDir, id)
}

// PartialPath is where the leftovers of a timed-out clone of id are kept for
// inspection. The next clone of id replaces or removes them.
func (a *Acquirer) PartialPath(id string) string {
	return filepath.Join(a.baseDir, id+".partial")
}

// Acquire validates rawURL, clones it and enumerates its eligible files.
// The clone lands in a temporary sibling directory and replaces any previous
// copy only once it succeeded, so a failure leaves earlier state untouched.
// A clone that times out is moved to PartialPath instead of being deleted.
func (a *Acquirer) Acquire(ctx context.Context, rawURL string) (Acquisition, error) {
	ref, err := ParseURL(rawURL)
	if err != nil {
		return Acquisition{}, err
	}
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	branch, err := a.preflight(ctx, ref)
	if err != nil {
		return Acquisition{}, err
	}

	if err := os.MkdirAll(a.baseDir, 0o755); err != nil {
		return Acquisition{}, apperr.Acquisition(apperr.ReasonStorage, "cannot create repository directory", err)
	}
	tmp, err := os.MkdirTemp(a.baseDir, "."+ref.ID()+"-clone-*")
	if err != nil {
		return Acquisition{}, apperr.Acquisition(apperr.ReasonStorage, "cannot create clone directory", err)
	}
	defer os.RemoveAll(tmp) // no-op after a successful swap

	log.Printf("[Acquirer] cloning %s (branch %q)", ref.URL, branch)
	start := time.Now()
	if err := a.cloner.Clone(ctx, ref.URL, branch, tmp); err != nil {
		if _, ok := apperr.As(err); !ok {
			err = apperr.Acquisition(apperr.ReasonNetwork, "git clone failed", err)
		}
		if errors.Is(err, errCloneTimeout) {
			a.keepPartial(ref.ID(), tmp)
		}
		return Acquisition{}, err
	}
	a.discardPartial(ref.ID())

	size, err := DirSize(tmp)
	if err != nil {
		return Acquisition{}, apperr.Acquisition(apperr.ReasonStorage, "cannot measure clone", err)
	}
	if a.maxRepoBytes > 0 && size > a.maxRepoBytes {
		return Acquisition{}, apperr.Acquisition(apperr.ReasonTooLarge,
			fmt.Sprintf("repository exceeds size limit (%.1f MB > %d MB)", float64(size)/(1024*1024), a.maxRepoBytes/(1024*1024)), nil)
	}

	dest := a.Path(ref.ID())
	if err := swapDir(tmp, dest); err != nil {
		return Acquisition{}, apperr.Acquisition(apperr.ReasonStorage, "cannot install clone", err)
	}

	scan, err := a.filter.Scan(dest)
	if err != nil {
		return Acquisition{}, apperr.Acquisition(apperr.ReasonStorage, "cannot enumerate files", err)
	}
	log.Printf("[Acquirer] cloned %s in %s: %d eligible files, skipped %v",
		ref.ID(), time.Since(start).Round(time.Millisecond), len(scan.Files), scan.SkipReasons)

	return Acquisition{
		Ref:           ref,
		Path:          dest,
		DefaultBranch: branch,
		SizeBytes:     size,
		Scan:          scan,
	}, nil
}

// Remove deletes the working copy of id and any partial clone; a missing
// directory is not an error.
func (a *Acquirer) Remove(id string) error {
	if err := os.RemoveAll(a.Path(id)); err != nil {
		return fmt.Errorf("remove %s: %w", id, err)
	}
	if err := os.RemoveAll(a.PartialPath(id)); err != nil {
		return fmt.Errorf("remove partial clone of %s: %w", id, err)
	}
	return nil
}

var errCloneTimeout = &apperr.Error{Kind: apperr.KindAcquisition, Reason: apperr.ReasonTimeout}

// keepPartial moves a timed-out clone to PartialPath, replacing older leftovers.
func (a *Acquirer) keepPartial(id, tmp string) {
	partial := a.PartialPath(id)
	if err := os.RemoveAll(partial); err != nil {
		log.Printf("[Acquirer] could not clear %s: %v", partial, err)
		return
	}
	if err := os.Rename(tmp, partial); err != nil {
		log.Printf("[Acquirer] could not keep partial clone of %s: %v", id, err)
		return
	}
	log.Printf("[Acquirer] clone of %s timed out; partial copy kept at %s", id, partial)
}

func (a *Acquirer) discardPartial(id string) {
	if err := os.RemoveAll(a.PartialPath(id)); err != nil {
		log.Printf("[Acquirer] could not remove partial clone of %s: %v", id, err)
	}
}

// preflight asks the GitHub API for the default branch. Definite answers
// (missing, private, rate limited) fail fast; transport trouble falls back
// to letting git decide.
func (a *Acquirer) preflight(ctx context.Context, ref RepoRef) (string, error) {
	if a.lookup == nil {
		return "", nil
	}
	info, err := a.lookup.LookupRepository(ctx, ref.Owner, ref.Name)
	switch {
	case err == nil:
	case errors.Is(err, github.ErrRepoNotFound):
		return "", apperr.Acquisition(apperr.ReasonNotFound, fmt.Sprintf("repository %s/%s not found", ref.Owner, ref.Name), err)
	case errors.Is(err, github.ErrUnauthorized), errors.Is(err, github.ErrForbidden):
		return "", apperr.Acquisition(apperr.ReasonAuth, fmt.Sprintf("no access to repository %s/%s", ref.Owner, ref.Name), err)
	case errors.Is(err, github.ErrRateLimited):
		return "", apperr.Acquisition(apperr.ReasonRateLimited, "GitHub API rate limit exceeded", err)
	default:
		log.Printf("[Acquirer] preflight for %s failed, cloning anyway: %v", ref.ID(), err)
		return "", nil
	}

	if a.maxRepoBytes > 0 && int64(info.SizeKB)*1024 > a.maxRepoBytes {
		return "", apperr.Acquisition(apperr.ReasonTooLarge,
			fmt.Sprintf("repository exceeds size limit (%d MB)", a.maxRepoBytes/(1024*1024)), nil)
	}
	return info.DefaultBranch, nil
}

// swapDir moves src to dest, replacing whatever was there.
func swapDir(src, dest string) error {
	old := ""
	if _, err := os.Stat(dest); err == nil {
		old = dest + ".old-" + filepath.Base(src)
		if err := os.Rename(dest, old); err != nil {
			return err
		}
	}
	if err := os.Rename(src, dest); err != nil {
		if old != "" {
			_ = os.Rename(old, dest)
		}
		return err
	}
	if old != "" {
		if err := os.RemoveAll(old); err != nil {
			log.Printf("[Acquirer] could not remove stale copy %s: %v", old, err)
		}
	}
	return nil
}
