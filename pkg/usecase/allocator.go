package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/reposync/pkg/domain/interfaces"
	"github.com/m-mizutani/reposync/pkg/domain/model"
	"github.com/m-mizutani/reposync/pkg/domain/types"
)

// allocator keeps the destination's shared issue/pull request counter in
// step with the source numbers. expectedNext is the number the next
// numbered creation will receive.
type allocator struct {
	dest   interfaces.DestinationRepository
	ledger interfaces.Ledger
	prov   *provenance
	runID  string

	expectedNext int
	loaded       bool

	// placeholders counts padding issues created during this pass
	placeholders int
}

func newAllocator(dest interfaces.DestinationRepository, ledger interfaces.Ledger, prov *provenance, runID string) *allocator {
	return &allocator{
		dest:   dest,
		ledger: ledger,
		prov:   prov,
		runID:  runID,
	}
}

// Next returns the number the destination will assign next
func (a *allocator) Next(ctx context.Context) (int, error) {
	if !a.loaded {
		highest, err := a.dest.HighestNumber(ctx)
		if err != nil {
			return 0, goerr.Wrap(err, "failed to read destination counter")
		}
		a.expectedNext = highest + 1
		a.loaded = true
		ctxlog.From(ctx).Debug("Loaded destination counter", "next", a.expectedNext)
	}
	return a.expectedNext, nil
}

// invalidate forces the counter to be read again before the next creation.
// Used whenever a write's outcome is unknown.
func (a *allocator) invalidate() {
	a.loaded = false
}

// Align pads the destination with placeholders until the next assigned
// number is n. It fails with SequenceDivergenceError when the counter is
// already past n.
func (a *allocator) Align(ctx context.Context, n int) error {
	next, err := a.Next(ctx)
	if err != nil {
		return err
	}
	if next > n {
		return goerr.Wrap(&types.SequenceDivergenceError{
			Expected: n,
			Next:     next,
			Reason:   "destination counter is already past the source number",
		}, "cannot align destination counter", goerr.V("number", n))
	}

	for k := next; k < n; k++ {
		if err := a.createPlaceholder(ctx, k); err != nil {
			return err
		}
	}
	return nil
}

// Create aligns the counter to n, runs create and verifies it received n.
// marker is searched at n when create fails with an unknown outcome.
func (a *allocator) Create(ctx context.Context, n int, marker string, create func(ctx context.Context) (int, error)) (int, error) {
	if err := a.Align(ctx, n); err != nil {
		return 0, err
	}

	got, err := create(ctx)
	if err != nil {
		a.invalidate()
		if adopted := a.adoptUnknownOutcome(ctx, n, marker, err); adopted {
			a.expectedNext, a.loaded = n+1, true
			return n, nil
		}
		return 0, err
	}

	if err := a.Commit(n, got); err != nil {
		return got, err
	}
	return got, nil
}

// Commit records that a numbered creation for n returned got
func (a *allocator) Commit(n, got int) error {
	if got != n {
		a.invalidate()
		return goerr.Wrap(&types.SequenceDivergenceError{
			Expected: n,
			Next:     got,
			Reason:   "destination assigned an unexpected number; the counter moved outside this run",
		}, "numbering invariant violated", goerr.V("number", n), goerr.V("assigned", got))
	}
	a.expectedNext = got + 1
	a.loaded = true
	return nil
}

// adoptUnknownOutcome looks for our marker at n after a write that may have succeeded
func (a *allocator) adoptUnknownOutcome(ctx context.Context, n int, marker string, cause error) bool {
	var tr *types.TransientError
	if !errors.As(cause, &tr) {
		return false
	}

	obj, err := a.dest.GetNumbered(ctx, n)
	if err != nil || obj == nil || !hasMarker(obj.Body, marker) {
		return false
	}

	ctxlog.From(ctx).Warn("Adopting object created by a failed request",
		"number", n,
		"error", cause,
	)
	return true
}

// RecoverPlaceholders closes placeholders left open by an earlier pass.
// A placeholder number has no source item, so nothing else revisits it.
// Numbers in reserved belong to source items and are left to reclaim.
func (a *allocator) RecoverPlaceholders(ctx context.Context, reserved map[int]bool, report *model.Report) error {
	logger := ctxlog.From(ctx)

	entries, err := a.ledger.Entries(ctx)
	if err != nil {
		return goerr.Wrap(err, "failed to read ledger entries")
	}

	for _, entry := range entries {
		if entry.Kind != types.KindPlaceholder || entry.Status == types.StatusSkipped {
			continue
		}
		k := int(entry.SourceNumber)
		if reserved[k] {
			continue
		}
		if err := ctx.Err(); err != nil {
			report.Aborted = err
			return nil
		}

		if err := a.recoverPlaceholder(ctx, k); err != nil {
			logger.Error("Failed to recover placeholder", "number", k, "error", err)
			report.AddFailure(entry.Key(), int64(k), err)
			if types.IsFatal(err) {
				report.Aborted = err
				return nil
			}
		}
	}
	return nil
}

func (a *allocator) recoverPlaceholder(ctx context.Context, k int) error {
	obj, err := a.dest.GetNumbered(ctx, k)
	if err != nil {
		return err
	}

	message := "number padded"
	switch {
	case obj == nil || obj.Deleted || !hasMarker(obj.Body, itemMarker(types.KindPlaceholder, k)):
		message = "number no longer holds a placeholder"
	case !obj.IsClosed():
		if err := a.dest.CloseIssue(ctx, k, "not_planned"); err != nil {
			return goerr.Wrap(err, "failed to close placeholder", goerr.V("number", k))
		}
		a.placeholders++
		ctxlog.From(ctx).Info("Closed placeholder left open", "number", k)
	}

	return a.ledger.Record(ctx, &model.LedgerEntry{
		Kind:              types.KindPlaceholder,
		SourceNumber:      int64(k),
		DestinationNumber: int64(k),
		Status:            types.StatusSkipped,
		LastAttemptAt:     time.Now(),
		RunID:             a.runID,
		Message:           message,
	})
}

func (a *allocator) createPlaceholder(ctx context.Context, k int) error {
	logger := ctxlog.From(ctx)
	key := model.LedgerKey{Kind: types.KindPlaceholder, Number: int64(k)}

	if err := a.ledger.Record(ctx, &model.LedgerEntry{
		Kind:          types.KindPlaceholder,
		SourceNumber:  int64(k),
		Status:        types.StatusPending,
		LastAttemptAt: time.Now(),
		RunID:         a.runID,
	}); err != nil {
		return err
	}

	body, err := a.prov.placeholderBody(k)
	if err != nil {
		return err
	}
	req := &model.IssueRequest{Title: a.prov.placeholderTitle(k), Body: body}

	got, err := a.dest.CreateIssue(ctx, req)
	if err != nil {
		a.invalidate()
		if !a.adoptUnknownOutcome(ctx, k, itemMarker(types.KindPlaceholder, k), err) {
			return goerr.Wrap(err, "failed to create placeholder", goerr.V("key", key.String()))
		}
		got = k
	}
	if err := a.Commit(k, got); err != nil {
		return err
	}

	if err := a.dest.CloseIssue(ctx, k, "not_planned"); err != nil {
		return goerr.Wrap(err, "failed to close placeholder", goerr.V("key", key.String()))
	}

	if err := a.ledger.Record(ctx, &model.LedgerEntry{
		Kind:              types.KindPlaceholder,
		SourceNumber:      int64(k),
		DestinationNumber: int64(k),
		Status:            types.StatusSkipped,
		LastAttemptAt:     time.Now(),
		RunID:             a.runID,
		Message:           "number padded",
	}); err != nil {
		return err
	}

	a.placeholders++
	logger.Info("Created placeholder", "number", k)
	return nil
}
