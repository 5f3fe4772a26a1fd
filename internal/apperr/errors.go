// Package apperr defines the error taxonomy shared by the pipeline and the
// HTTP layer.
//
// Every failure that reaches a caller is an *Error carrying three levels of
// information: what went wrong (Message), why (Cause) and what to do about it
// (Fix). The Kind tells the HTTP layer which status code to use and lets the
// client present an actionable category instead of a raw error string.
package apperr

import (
	"errors"
	"fmt"
)

// Kind is the category of an Error.
type Kind string

const (
	KindInvalidSource      Kind = "invalid_source"
	KindInvalidInput       Kind = "invalid_input"
	KindAcquisition        Kind = "acquisition"
	KindProcessing         Kind = "processing"
	KindCollectionNotFound Kind = "collection_not_found"
	KindDimensionMismatch  Kind = "dimension_mismatch"
	KindGeneration         Kind = "generation"
	KindNotFound           Kind = "not_found"
	KindBusy               Kind = "busy"
	KindInternal           Kind = "internal"
)

// Reason refines KindAcquisition so callers can tell a missing repository from
// a private one or a flaky network.
type Reason string

const (
	ReasonNone        Reason = ""
	ReasonNetwork     Reason = "network"
	ReasonAuth        Reason = "auth"
	ReasonNotFound    Reason = "not_found"
	ReasonTooLarge    Reason = "too_large"
	ReasonRateLimited Reason = "rate_limited"
	ReasonTimeout     Reason = "timeout"
	ReasonStorage     Reason = "storage"
)

// Error is a categorised, user-presentable error.
type Error struct {
	Kind    Kind
	Reason  Reason
	Message string
	Cause   string
	Fix     string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches on Kind (and Reason when the target sets one), so
// errors.Is(err, apperr.ErrCollectionNotFound) works for any message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Reason == ReasonNone || t.Reason == e.Reason
}

// Sentinels for errors.Is.
var (
	ErrInvalidSource      = &Error{Kind: KindInvalidSource}
	ErrInvalidInput       = &Error{Kind: KindInvalidInput}
	ErrAcquisition        = &Error{Kind: KindAcquisition}
	ErrProcessing         = &Error{Kind: KindProcessing}
	ErrCollectionNotFound = &Error{Kind: KindCollectionNotFound}
	ErrDimensionMismatch  = &Error{Kind: KindDimensionMismatch}
	ErrGeneration         = &Error{Kind: KindGeneration}
	ErrNotFound           = &Error{Kind: KindNotFound}
	ErrBusy               = &Error{Kind: KindBusy}
)

// InvalidSource reports a malformed repository URL.
func InvalidSource(url, cause string) *Error {
	return &Error{
		Kind:    KindInvalidSource,
		Message: fmt.Sprintf("invalid repository URL %q", url),
		Cause:   cause,
		Fix:     "Use a URL of the form https://github.com/<owner>/<repository>",
	}
}

// InvalidInput reports a bad request parameter.
func InvalidInput(message string) *Error {
	return &Error{Kind: KindInvalidInput, Message: message}
}

// Acquisition reports a failed clone.
func Acquisition(reason Reason, message string, err error) *Error {
	return &Error{
		Kind:    KindAcquisition,
		Reason:  reason,
		Message: message,
		Fix:     acquisitionFix(reason),
		Err:     err,
	}
}

func acquisitionFix(reason Reason) string {
	switch reason {
	case ReasonNotFound:
		return "Check the owner and repository name in the URL"
	case ReasonAuth:
		return "The repository is private or the token is invalid; configure GITHUB_TOKEN with access to it"
	case ReasonTooLarge:
		return "Choose a smaller repository or raise MAX_REPO_SIZE_MB"
	case ReasonRateLimited:
		return "GitHub rate limit reached; retry later or configure GITHUB_TOKEN"
	case ReasonTimeout:
		return "The clone took too long; retry or raise CLONE_TIMEOUT_SEC"
	case ReasonNetwork:
		return "Check network connectivity to github.com and retry"
	default:
		return ""
	}
}

// Processing reports a chunking or embedding failure.
func Processing(message string, err error) *Error {
	return &Error{
		Kind:    KindProcessing,
		Message: message,
		Fix:     "Trigger processing again; already indexed chunks are kept",
		Err:     err,
	}
}

// CollectionNotFound reports a query against a repository with no index.
func CollectionNotFound(repoID string) *Error {
	return &Error{
		Kind:    KindCollectionNotFound,
		Message: fmt.Sprintf("repository %q is not ready", repoID),
		Cause:   "the repository has not been processed",
		Fix:     "Process the repository before chatting with it",
	}
}

// DimensionMismatch reports vectors of incompatible length.
func DimensionMismatch(collection string, want, got int) *Error {
	return &Error{
		Kind:    KindDimensionMismatch,
		Message: fmt.Sprintf("collection %s stores %d-dimensional vectors, embedding model produced %d", collection, want, got),
		Cause:   "the embedding model changed since the repository was indexed",
		Fix:     "Delete and re-clone the repository to rebuild its index",
	}
}

// Generation reports a failed answer generation.
func Generation(err error) *Error {
	return &Error{
		Kind:    KindGeneration,
		Message: "answer generation failed",
		Fix:     "Retry the question",
		Err:     err,
	}
}

// NotFound reports an unknown repository.
func NotFound(repoID string) *Error {
	return &Error{
		Kind:    KindNotFound,
		Message: fmt.Sprintf("repository with ID '%s' not found", repoID),
	}
}

// Busy reports an operation rejected because another one owns the repository.
func Busy(repoID, op, running string) *Error {
	return &Error{
		Kind:    KindBusy,
		Message: fmt.Sprintf("cannot %s repository %q while it is %s", op, repoID, running),
		Fix:     "Wait for the running operation to finish",
	}
}

// As extracts an *Error from err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the Kind of err, or KindInternal for foreign errors.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return KindInternal
}
