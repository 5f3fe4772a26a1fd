package source

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SvenBotha/SourceChat/internal/apperr"
	"github.com/SvenBotha/SourceChat/internal/github"
)

type fakeCloner struct {
	files  map[string]string
	err    error
	calls  int
	branch string
	// writeFirst writes files before returning err, like an interrupted clone.
	writeFirst bool
}

func (f *fakeCloner) Clone(_ context.Context, _, branch, dest string) error {
	f.calls++
	f.branch = branch
	if f.err != nil && !f.writeFirst {
		return f.err
	}
	for rel, content := range f.files {
		full := filepath.Join(dest, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
			return err
		}
	}
	return f.err
}

type fakeLookup struct {
	info github.RepoInfo
	err  error
}

func (f fakeLookup) LookupRepository(context.Context, string, string) (github.RepoInfo, error) {
	return f.info, f.err
}

func newTestAcquirer(t *testing.T, cloner Cloner, lookup RepoLookup) (*Acquirer, string) {
	t.Helper()
	base := t.TempDir()
	return NewAcquirer(base, cloner, lookup, NewFilter(nil, nil, 0), 100, 0), base
}

func TestAcquire_TenFilesFourEligible(t *testing.T) {
	cloner := &fakeCloner{files: exampleRepo()}
	a, base := newTestAcquirer(t, cloner, fakeLookup{info: github.RepoInfo{DefaultBranch: "main"}})

	acq, err := a.Acquire(context.Background(), "https://github.com/example/repo")
	require.NoError(t, err)

	assert.Equal(t, "example_repo", acq.Ref.ID())
	assert.Equal(t, filepath.Join(base, "example_repo"), acq.Path)
	assert.Equal(t, "main", acq.DefaultBranch)
	assert.Equal(t, "main", cloner.branch)
	assert.Len(t, acq.Scan.Files, 4)
	assert.Positive(t, acq.SizeBytes)

	entries, err := os.ReadDir(base)
	require.NoError(t, err)
	require.Len(t, entries, 1, "temporary clone directories are cleaned up")
	assert.Equal(t, "example_repo", entries[0].Name())
}

func TestAcquire_ReplacesPreviousCopy(t *testing.T) {
	cloner := &fakeCloner{files: map[string]string{"old.go": "package old\n"}}
	a, _ := newTestAcquirer(t, cloner, nil)

	_, err := a.Acquire(context.Background(), "https://github.com/example/repo")
	require.NoError(t, err)

	cloner.files = map[string]string{"new.go": "package new\n"}
	acq, err := a.Acquire(context.Background(), "https://github.com/example/repo.git")
	require.NoError(t, err)

	require.Len(t, acq.Scan.Files, 1)
	assert.Equal(t, "new.go", acq.Scan.Files[0].Path)
	assert.NoFileExists(t, filepath.Join(acq.Path, "old.go"))
}

func TestAcquire_FailureKeepsPreviousCopy(t *testing.T) {
	cloner := &fakeCloner{files: map[string]string{"keep.go": "package keep\n"}}
	a, _ := newTestAcquirer(t, cloner, nil)

	acq, err := a.Acquire(context.Background(), "https://github.com/example/repo")
	require.NoError(t, err)

	cloner.err = apperr.Acquisition(apperr.ReasonNetwork, "git clone failed", errors.New("connection reset"))
	_, err = a.Acquire(context.Background(), "https://github.com/example/repo")
	require.Error(t, err)
	assert.ErrorIs(t, err, &apperr.Error{Kind: apperr.KindAcquisition, Reason: apperr.ReasonNetwork})
	assert.FileExists(t, filepath.Join(acq.Path, "keep.go"))
}

func TestAcquire_TimeoutKeepsPartialClone(t *testing.T) {
	timeout := apperr.Acquisition(apperr.ReasonTimeout, "git clone timed out", context.DeadlineExceeded)
	cloner := &fakeCloner{files: map[string]string{"main.go": "package main\n"}, err: timeout, writeFirst: true}
	a, base := newTestAcquirer(t, cloner, nil)

	_, err := a.Acquire(context.Background(), "https://github.com/example/repo")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrAcquisition))

	partial := a.PartialPath("example_repo")
	assert.Equal(t, filepath.Join(base, "example_repo.partial"), partial)
	assert.FileExists(t, filepath.Join(partial, "main.go"))
	assert.NoDirExists(t, a.Path("example_repo"))

	// A second timeout replaces the leftovers instead of piling up.
	_, err = a.Acquire(context.Background(), "https://github.com/example/repo")
	require.Error(t, err)
	entries, err := os.ReadDir(base)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "example_repo.partial", entries[0].Name())

	cloner.err, cloner.writeFirst = nil, false
	_, err = a.Acquire(context.Background(), "https://github.com/example/repo")
	require.NoError(t, err)
	assert.NoDirExists(t, partial, "a successful clone clears the partial copy")

	cloner.err, cloner.writeFirst = timeout, true
	_, err = a.Acquire(context.Background(), "https://github.com/example/repo")
	require.Error(t, err)
	require.NoError(t, a.Remove("example_repo"))
	assert.NoDirExists(t, partial)
	assert.NoDirExists(t, a.Path("example_repo"))
}

func TestAcquire_OtherFailuresLeaveNoPartialClone(t *testing.T) {
	cloner := &fakeCloner{files: map[string]string{"main.go": "package main\n"}, err: errors.New("connection reset"), writeFirst: true}
	a, base := newTestAcquirer(t, cloner, nil)

	_, err := a.Acquire(context.Background(), "https://github.com/example/repo")
	require.Error(t, err)
	entries, err := os.ReadDir(base)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestAcquire_TooLarge(t *testing.T) {
	cloner := &fakeCloner{files: map[string]string{"huge.txt": strings.Repeat("x", 2*1024*1024)}}
	base := t.TempDir()
	a := NewAcquirer(base, cloner, nil, NewFilter(nil, nil, 0), 1, 0)

	_, err := a.Acquire(context.Background(), "https://github.com/example/repo")
	require.Error(t, err)
	assert.ErrorIs(t, err, &apperr.Error{Kind: apperr.KindAcquisition, Reason: apperr.ReasonTooLarge})
	assert.NoDirExists(t, filepath.Join(base, "example_repo"))
}

func TestAcquire_PreflightErrors(t *testing.T) {
	tests := []struct {
		err    error
		reason apperr.Reason
	}{
		{fmt.Errorf("x: %w", github.ErrRepoNotFound), apperr.ReasonNotFound},
		{fmt.Errorf("x: %w", github.ErrForbidden), apperr.ReasonAuth},
		{fmt.Errorf("x: %w", github.ErrRateLimited), apperr.ReasonRateLimited},
	}
	for _, tt := range tests {
		t.Run(string(tt.reason), func(t *testing.T) {
			cloner := &fakeCloner{}
			a, _ := newTestAcquirer(t, cloner, fakeLookup{err: tt.err})

			_, err := a.Acquire(context.Background(), "https://github.com/example/repo")
			require.Error(t, err)
			assert.ErrorIs(t, err, &apperr.Error{Kind: apperr.KindAcquisition, Reason: tt.reason})
			assert.Zero(t, cloner.calls, "git is not run after a definite preflight failure")
		})
	}
}

func TestAcquire_PreflightNetworkErrorFallsBackToGit(t *testing.T) {
	cloner := &fakeCloner{files: map[string]string{"a.go": "package a\n"}}
	a, _ := newTestAcquirer(t, cloner, fakeLookup{err: errors.New("dial tcp: timeout")})

	acq, err := a.Acquire(context.Background(), "https://github.com/example/repo")
	require.NoError(t, err)
	assert.Equal(t, 1, cloner.calls)
	assert.Empty(t, acq.DefaultBranch)
}

func TestAcquire_InvalidURL(t *testing.T) {
	cloner := &fakeCloner{}
	a, _ := newTestAcquirer(t, cloner, nil)

	_, err := a.Acquire(context.Background(), "https://gitlab.com/example/repo")
	assert.ErrorIs(t, err, apperr.ErrInvalidSource)
	assert.Zero(t, cloner.calls)
}

func TestClassifyGitError(t *testing.T) {
	tests := []struct {
		stderr string
		want   apperr.Reason
	}{
		{"remote: Repository not found.\nfatal: repository 'https://github.com/x/y.git/' not found", apperr.ReasonNotFound},
		{"fatal: could not read Username for 'https://github.com': terminal prompts disabled", apperr.ReasonAuth},
		{"fatal: unable to access 'https://github.com/x/y.git/': Could not resolve host: github.com", apperr.ReasonNetwork},
		{"fatal: could not create work tree dir 'y': No space left on device", apperr.ReasonStorage},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, classifyGitError(tt.stderr), tt.stderr)
	}
}
