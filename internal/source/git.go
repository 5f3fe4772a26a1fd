package source

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/SvenBotha/SourceChat/internal/apperr"
)

// Cloner fetches a repository into an empty directory.
type Cloner interface {
	Clone(ctx context.Context, url, branch, dest string) error
}

// GitCloner shells out to the git binary.
type GitCloner struct {
	Binary string // defaults to "git"
	Token  string // optional GitHub token for private repositories
}

// NewGitCloner returns a cloner that authenticates with token when set.
func NewGitCloner(token string) *GitCloner {
	return &GitCloner{Binary: "git", Token: token}
}

// Clone runs a quiet single-branch clone of url into dest. Failures are
// returned as acquisition errors classified from git's stderr.
func (g *GitCloner) Clone(ctx context.Context, url, branch, dest string) error {
	args := []string{"clone", "--single-branch", "--quiet"}
	if branch != "" {
		args = append(args, "--branch", branch)
	}
	args = append(args, "--", url, dest)

	bin := g.Binary
	if bin == "" {
		bin = "git"
	}

	// #nosec G204 - url is built by ParseURL from a validated owner and name
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")
	if g.Token != "" {
		// Passed through the environment so it never shows up in the process list.
		basic := base64.StdEncoding.EncodeToString([]byte("x-access-token:" + g.Token))
		cmd.Env = append(cmd.Env,
			"GIT_CONFIG_COUNT=1",
			"GIT_CONFIG_KEY_0=http.extraHeader",
			"GIT_CONFIG_VALUE_0=Authorization: Basic "+basic,
		)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			if errors.Is(ctxErr, context.DeadlineExceeded) {
				return apperr.Acquisition(apperr.ReasonTimeout, "git clone timed out", ctxErr)
			}
			return apperr.Acquisition(apperr.ReasonNetwork, "git clone cancelled", ctxErr)
		}
		msg := strings.TrimSpace(stderr.String())
		reason := classifyGitError(msg)
		return apperr.Acquisition(reason, "git clone failed", fmt.Errorf("%w: %s", err, redact(msg, g.Token)))
	}
	return nil
}

// classifyGitError maps git's stderr onto an acquisition reason.
func classifyGitError(stderr string) apperr.Reason {
	s := strings.ToLower(stderr)
	switch {
	case strings.Contains(s, "not found"), strings.Contains(s, "does not exist"):
		return apperr.ReasonNotFound
	case strings.Contains(s, "authentication failed"),
		strings.Contains(s, "could not read username"),
		strings.Contains(s, "permission denied"),
		strings.Contains(s, "403"):
		return apperr.ReasonAuth
	case strings.Contains(s, "rate limit"), strings.Contains(s, "429"):
		return apperr.ReasonRateLimited
	case strings.Contains(s, "no space left"),
		strings.Contains(s, "could not create"),
		strings.Contains(s, "read-only file system"):
		return apperr.ReasonStorage
	default:
		return apperr.ReasonNetwork
	}
}

func redact(s, secret string) string {
	if secret == "" {
		return s
	}
	return strings.ReplaceAll(s, secret, "***")
}
