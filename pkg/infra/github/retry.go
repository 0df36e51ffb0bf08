package github

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/go-github/v75/github"
	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/reposync/pkg/domain/types"
)

// callMode selects which failures a call may retry
type callMode int

const (
	// modeRead retries rate limits and transient failures
	modeRead callMode = iota
	// modeWrite retries only rate limits. A transient failure of a write
	// has an unknown outcome and is left to the caller to reconcile.
	modeWrite
)

// hintedBackOff returns the server-provided delay once when set, and the
// wrapped exponential schedule otherwise
type hintedBackOff struct {
	backoff.BackOff
	hint time.Duration
}

func (b *hintedBackOff) NextBackOff() time.Duration {
	next := b.BackOff.NextBackOff()
	if next == backoff.Stop {
		return backoff.Stop
	}
	if b.hint > 0 {
		next, b.hint = b.hint, 0
	}
	return next
}

// call runs fn with bounded exponential retry. The returned error is always
// classified into the types taxonomy (or is a context error).
func call[T any](ctx context.Context, c *Client, op string, mode callMode, fn func() (T, *github.Response, error)) (T, error) {
	hinted := &hintedBackOff{
		BackOff: backoff.NewExponentialBackOff(
			backoff.WithInitialInterval(c.retryInterval),
			backoff.WithMaxInterval(c.maxInterval),
			backoff.WithMaxElapsedTime(0),
		),
	}
	b := backoff.WithContext(backoff.WithMaxRetries(hinted, c.maxRetries), ctx)

	operation := func() (T, error) {
		v, _, err := fn()
		if err == nil {
			return v, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return v, backoff.Permanent(ctxErr)
		}

		classified := classify(err)

		var rl *types.RateLimitedError
		if errors.As(classified, &rl) {
			if rl.RetryAfter > c.maxRateWait {
				return v, backoff.Permanent(classified)
			}
			hinted.hint = rl.RetryAfter
			return v, classified
		}

		var tr *types.TransientError
		if errors.As(classified, &tr) && mode == modeRead {
			return v, classified
		}
		return v, backoff.Permanent(classified)
	}

	notify := func(err error, wait time.Duration) {
		ctxlog.From(ctx).Warn("Retrying GitHub API call",
			"op", op,
			"repo", c.repo.String(),
			"wait", wait.String(),
			"error", err,
		)
	}

	return backoff.RetryNotifyWithData(operation, b, notify)
}

// classify maps go-github and transport errors to the types taxonomy
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var rateErr *github.RateLimitError
	if errors.As(err, &rateErr) {
		wait := time.Until(rateErr.Rate.Reset.Time)
		if wait < 0 {
			wait = 0
		}
		return &types.RateLimitedError{RetryAfter: wait, Message: rateErr.Message}
	}

	var abuseErr *github.AbuseRateLimitError
	if errors.As(err, &abuseErr) {
		var wait time.Duration
		if abuseErr.RetryAfter != nil {
			wait = *abuseErr.RetryAfter
		}
		return &types.RateLimitedError{RetryAfter: wait, Message: abuseErr.Message}
	}

	var acceptedErr *github.AcceptedError
	if errors.As(err, &acceptedErr) {
		return &types.TransientError{StatusCode: http.StatusAccepted, Err: err}
	}

	var respErr *github.ErrorResponse
	if errors.As(err, &respErr) && respErr.Response != nil {
		status := respErr.Response.StatusCode
		switch {
		case status == http.StatusTooManyRequests:
			return &types.RateLimitedError{
				RetryAfter: parseRetryAfter(respErr.Response.Header),
				Message:    respErr.Message,
			}
		case status >= 500, status == http.StatusRequestTimeout:
			return &types.TransientError{StatusCode: status, Err: err}
		default:
			return &types.PermanentError{StatusCode: status, Message: errorMessage(respErr)}
		}
	}

	return &types.TransientError{Err: err}
}

func parseRetryAfter(h http.Header) time.Duration {
	if v := h.Get("Retry-After"); v != "" {
		if seconds, err := strconv.Atoi(v); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	if v := h.Get("X-RateLimit-Reset"); v != "" {
		if unix, err := strconv.ParseInt(v, 10, 64); err == nil {
			if wait := time.Until(time.Unix(unix, 0)); wait > 0 {
				return wait
			}
		}
	}
	return 0
}

func errorMessage(e *github.ErrorResponse) string {
	msg := e.Message
	for _, detail := range e.Errors {
		switch {
		case detail.Message != "":
			msg += "; " + detail.Message
		case detail.Field != "":
			msg += "; " + detail.Resource + "." + detail.Field + ": " + detail.Code
		}
	}
	return msg
}

// isStatus reports whether err is a permanent failure with one of codes
func isStatus(err error, codes ...int) bool {
	status := types.StatusCodeOf(err)
	var perm *types.PermanentError
	if !errors.As(err, &perm) {
		return false
	}
	for _, code := range codes {
		if status == code {
			return true
		}
	}
	return false
}
