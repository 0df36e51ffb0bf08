package types

import (
	"errors"
	"fmt"
	"time"
)

// RateLimitedError is returned when the API refused a request because of
// primary or secondary rate limits. RetryAfter is zero when the server gave
// no hint.
type RateLimitedError struct {
	RetryAfter time.Duration
	Message    string
}

func (e *RateLimitedError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited (retry after %s): %s", e.RetryAfter, e.Message)
	}
	return "rate limited: " + e.Message
}

// TransientError is a network failure or a 5xx response. StatusCode is 0
// for failures below HTTP.
type TransientError struct {
	StatusCode int
	Err        error
}

func (e *TransientError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("transient failure: %v", e.Err)
	}
	return fmt.Sprintf("transient failure (HTTP %d): %v", e.StatusCode, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// PermanentError is a request the API rejected for good (validation,
// permission, not found).
type PermanentError struct {
	StatusCode int
	Message    string
}

func (e *PermanentError) Error() string {
	return fmt.Sprintf("permanent failure (HTTP %d): %s", e.StatusCode, e.Message)
}

// SequenceDivergenceError means the destination counter is already past the
// number the next source item needs. It cannot be repaired automatically.
type SequenceDivergenceError struct {
	Expected int
	Next     int
	Reason   string
}

func (e *SequenceDivergenceError) Error() string {
	return fmt.Sprintf("sequence divergence at #%d (destination next number is %d): %s", e.Expected, e.Next, e.Reason)
}

// MissingCommitError is returned when a release references a commit that
// does not exist in the destination repository.
type MissingCommitError struct {
	SHA string
	Tag string
}

func (e *MissingCommitError) Error() string {
	return fmt.Sprintf("commit %s for tag %q does not exist in destination", e.SHA, e.Tag)
}

// UnresolvableReferenceError describes a pull request head that cannot be
// reproduced in the destination. Mappers degrade instead of failing.
type UnresolvableReferenceError struct {
	Number int
	Ref    string
	SHA    string
}

func (e *UnresolvableReferenceError) Error() string {
	return fmt.Sprintf("pull request #%d head %s (%s) is not resolvable in destination", e.Number, e.Ref, e.SHA)
}

// IsRetryable reports whether err should be retried by the API client
func IsRetryable(err error) bool {
	var rl *RateLimitedError
	var tr *TransientError
	return errors.As(err, &rl) || errors.As(err, &tr)
}

// IsFatal reports whether err must abort the whole run
func IsFatal(err error) bool {
	var div *SequenceDivergenceError
	return errors.As(err, &div)
}

// StatusCodeOf returns the HTTP status carried by a classified error, or 0
func StatusCodeOf(err error) int {
	var perm *PermanentError
	if errors.As(err, &perm) {
		return perm.StatusCode
	}
	var tr *TransientError
	if errors.As(err, &tr) {
		return tr.StatusCode
	}
	return 0
}

// RemediationHint returns a short, user-facing suggestion for err
func RemediationHint(err error) string {
	var (
		div  *SequenceDivergenceError
		mc   *MissingCommitError
		rl   *RateLimitedError
		tr   *TransientError
		perm *PermanentError
	)
	switch {
	case errors.As(err, &div):
		return "destination numbering is ahead of the source; recreate the destination repository or remove the out-of-band objects before retrying"
	case errors.As(err, &mc):
		return fmt.Sprintf("push commit %s (tag %s) to the destination before retrying", mc.SHA, mc.Tag)
	case errors.As(err, &rl):
		return "rate limit exhausted; wait for the reset window and re-run"
	case errors.As(err, &tr):
		return "temporary API failure; re-run to resume from the ledger"
	case errors.As(err, &perm):
		switch perm.StatusCode {
		case 401, 403:
			return "check that the token has write access to the repository"
		case 404:
			return "check that the repository and referenced objects exist"
		case 422:
			return "the destination rejected the payload; inspect the message and fix the source data or mapping"
		}
		return "inspect the error message; re-run retries failed items unless --skip-failed is set"
	default:
		return "re-run to retry; the ledger keeps completed items"
	}
}
