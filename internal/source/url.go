package source

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/SvenBotha/SourceChat/internal/apperr"
)

var (
	// GitHub logins: alphanumerics and single hyphens, at most 39 characters.
	ownerPattern = regexp.MustCompile(`^[A-Za-z0-9](?:[A-Za-z0-9]|-[A-Za-z0-9]){0,38}$`)
	namePattern  = regexp.MustCompile(`^[A-Za-z0-9._-]{1,100}$`)
)

// RepoRef is a validated reference to a GitHub repository.
type RepoRef struct {
	Owner string
	Name  string
	URL   string // canonical https clone URL
}

// ID is the stable storage identifier: lowercased "<owner>_<name>". Logins
// cannot contain underscores, so distinct repositories never share an ID.
func (r RepoRef) ID() string {
	return strings.ToLower(r.Owner + "_" + r.Name)
}

// ParseURL validates a GitHub repository URL.
func ParseURL(raw string) (RepoRef, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return RepoRef{}, apperr.InvalidSource(raw, "URL is empty")
	}

	u, err := url.Parse(trimmed)
	if err != nil {
		return RepoRef{}, apperr.InvalidSource(raw, err.Error())
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return RepoRef{}, apperr.InvalidSource(raw, "only http(s) URLs are supported")
	}
	host := strings.ToLower(u.Hostname())
	if host != "github.com" && host != "www.github.com" {
		return RepoRef{}, apperr.InvalidSource(raw, "only GitHub URLs are supported")
	}
	if u.User != nil {
		return RepoRef{}, apperr.InvalidSource(raw, "URL must not embed credentials")
	}
	if u.RawQuery != "" || u.Fragment != "" {
		return RepoRef{}, apperr.InvalidSource(raw, "URL must not contain a query or fragment")
	}

	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) != 2 {
		return RepoRef{}, apperr.InvalidSource(raw, "URL path must be /<owner>/<repository>")
	}
	owner, name := parts[0], strings.TrimSuffix(parts[1], ".git")
	if !ownerPattern.MatchString(owner) {
		return RepoRef{}, apperr.InvalidSource(raw, "invalid owner name")
	}
	if !namePattern.MatchString(name) || name == "." || name == ".." {
		return RepoRef{}, apperr.InvalidSource(raw, "invalid repository name")
	}

	return RepoRef{
		Owner: owner,
		Name:  name,
		URL:   "https://github.com/" + owner + "/" + name + ".git",
	}, nil
}
