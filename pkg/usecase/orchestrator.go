package usecase

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/reposync/pkg/domain/interfaces"
	"github.com/m-mizutani/reposync/pkg/domain/model"
	"github.com/m-mizutani/reposync/pkg/domain/types"
	"github.com/m-mizutani/reposync/pkg/utils/async"
)

const defaultMaxThreads = 4

type syncUseCase struct {
	src    interfaces.SourceRepository
	dest   interfaces.DestinationRepository
	ledger interfaces.Ledger

	sourceRepo types.RepoRef
	mapping    *model.Mapping
	runID      string
	skipFailed bool
	since      string
	maxThreads int
	dryRun     bool
}

// SyncOption configures the sync use case
type SyncOption func(*syncUseCase)

// WithSourceRepo names the source repository in placeholder bodies
func WithSourceRepo(repo types.RepoRef) SyncOption {
	return func(uc *syncUseCase) {
		uc.sourceRepo = repo
	}
}

// WithMapping sets user and label renames
func WithMapping(mapping *model.Mapping) SyncOption {
	return func(uc *syncUseCase) {
		uc.mapping = mapping
	}
}

// WithRunID overrides the generated run ID
func WithRunID(runID string) SyncOption {
	return func(uc *syncUseCase) {
		uc.runID = runID
	}
}

// WithSkipFailed leaves items the ledger marks as failed alone
func WithSkipFailed(skip bool) SyncOption {
	return func(uc *syncUseCase) {
		uc.skipFailed = skip
	}
}

// WithSince restricts releases to those published after tag
func WithSince(tag string) SyncOption {
	return func(uc *syncUseCase) {
		uc.since = tag
	}
}

// WithMaxThreads bounds concurrent page fetches and asset transfers
func WithMaxThreads(n int) SyncOption {
	return func(uc *syncUseCase) {
		uc.maxThreads = n
	}
}

// WithDryRun skips asset transfers. Destination writes are suppressed by
// wrapping the destination with dryrun.New.
func WithDryRun(dryRun bool) SyncOption {
	return func(uc *syncUseCase) {
		uc.dryRun = dryRun
	}
}

// NewSync creates the sync use case
func NewSync(
	src interfaces.SourceRepository,
	dest interfaces.DestinationRepository,
	ledger interfaces.Ledger,
	opts ...SyncOption,
) interfaces.SyncUseCase {
	uc := &syncUseCase{
		src:        src,
		dest:       dest,
		ledger:     ledger,
		runID:      uuid.NewString(),
		maxThreads: defaultMaxThreads,
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

// SyncLabels creates source labels that are missing in the destination
func (uc *syncUseCase) SyncLabels(ctx context.Context) error {
	logger := ctxlog.From(ctx)

	srcLabels, err := uc.src.ListLabels(ctx)
	if err != nil {
		return goerr.Wrap(err, "failed to list source labels")
	}
	destLabels, err := uc.dest.ListLabels(ctx)
	if err != nil {
		return goerr.Wrap(err, "failed to list destination labels")
	}

	present := make(map[string]struct{}, len(destLabels))
	for _, label := range destLabels {
		present[strings.ToLower(label.Name)] = struct{}{}
	}

	created := 0
	for _, label := range srcLabels {
		name := uc.mapping.Label(label.Name)
		if _, ok := present[strings.ToLower(name)]; ok {
			continue
		}
		if err := uc.dest.CreateLabel(ctx, &model.Label{
			Name:        name,
			Color:       label.Color,
			Description: label.Description,
		}); err != nil {
			return err
		}
		present[strings.ToLower(name)] = struct{}{}
		created++
	}

	logger.Info("Synchronized labels", "source", len(srcLabels), "created", created)
	return nil
}

// SyncNumbered replicates issues and pull requests in ascending number
// order. A sequence divergence stops the pass before any further write.
func (uc *syncUseCase) SyncNumbered(ctx context.Context) (*model.Report, error) {
	logger := ctxlog.From(ctx).With("run_id", uc.runID)
	ctx = ctxlog.With(ctx, logger)

	prov, err := newProvenance(uc.sourceRepo, uc.mapping)
	if err != nil {
		return nil, err
	}

	items, err := fetchAll(ctx, uc.maxThreads, uc.src.ListNumberedPage)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list source issues and pull requests")
	}
	slices.SortFunc(items, func(a, b *model.NumberedObject) int {
		return cmp.Compare(a.Number, b.Number)
	})
	items = slices.CompactFunc(items, func(a, b *model.NumberedObject) bool {
		return a.Number == b.Number
	})
	logger.Info("Fetched source items", "count", len(items))

	alloc := newAllocator(uc.dest, uc.ledger, prov, uc.runID)
	mapper := &numberedMapper{src: uc.src, dest: uc.dest, alloc: alloc, prov: prov}

	report := &model.Report{RunID: uc.runID}
	reserved := make(map[int]bool, len(items))
	for _, item := range items {
		reserved[item.Number] = true
	}
	if err := alloc.RecoverPlaceholders(ctx, reserved, report); err != nil {
		return report, err
	}

	for _, item := range items {
		if report.Aborted != nil {
			break
		}
		key := model.LedgerKey{Kind: item.Kind, Number: int64(item.Number)}
		err := uc.process(ctx, report, key, func(ctx context.Context) (*itemResult, error) {
			return mapper.Sync(ctx, item)
		})
		if err != nil {
			return report, err
		}
	}
	report.Placeholders = alloc.placeholders

	logger.Info("Numbered sync finished",
		"synced", report.Synced,
		"skipped", report.Skipped,
		"placeholders", report.Placeholders,
		"degraded", report.Degraded,
		"failed", len(report.Failures),
		"aborted", report.Aborted != nil,
	)
	return report, nil
}

// SyncReleases replicates releases oldest first
func (uc *syncUseCase) SyncReleases(ctx context.Context) (*model.Report, error) {
	logger := ctxlog.From(ctx).With("run_id", uc.runID)
	ctx = ctxlog.With(ctx, logger)

	prov, err := newProvenance(uc.sourceRepo, uc.mapping)
	if err != nil {
		return nil, err
	}

	releases, err := fetchAll(ctx, uc.maxThreads, uc.src.ListReleasesPage)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list source releases")
	}
	slices.SortFunc(releases, func(a, b *model.Release) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})

	if uc.since != "" {
		idx := slices.IndexFunc(releases, func(r *model.Release) bool { return r.TagName == uc.since })
		if idx < 0 {
			return nil, goerr.New("release for --since tag not found in source", goerr.V("tag", uc.since))
		}
		releases = releases[idx+1:]
	}
	logger.Info("Fetched source releases", "count", len(releases))

	mapper := &releaseMapper{
		src:        uc.src,
		dest:       uc.dest,
		prov:       prov,
		maxThreads: uc.maxThreads,
		dryRun:     uc.dryRun,
	}

	report := &model.Report{RunID: uc.runID}
	for _, release := range releases {
		key := model.LedgerKey{Kind: types.KindRelease, Number: release.ID}
		err := uc.process(ctx, report, key, func(ctx context.Context) (*itemResult, error) {
			return mapper.Sync(ctx, release)
		})
		if err != nil {
			return report, err
		}
		if report.Aborted != nil {
			break
		}
	}

	logger.Info("Release sync finished",
		"synced", report.Synced,
		"skipped", report.Skipped,
		"failed", len(report.Failures),
	)
	return report, nil
}

// process consults the ledger, runs one item and records the outcome.
// The returned error is a ledger failure; item failures go to report.
func (uc *syncUseCase) process(ctx context.Context, report *model.Report, key model.LedgerKey, run func(ctx context.Context) (*itemResult, error)) error {
	logger := ctxlog.From(ctx).With("key", key.String())
	ctx = ctxlog.With(ctx, logger)

	if err := ctx.Err(); err != nil {
		report.Aborted = err
		return nil
	}

	entry, err := uc.ledger.Get(ctx, key)
	if err != nil {
		return err
	}
	if entry != nil {
		switch {
		case entry.Status == types.StatusSynced:
			report.Skipped++
			return nil
		case entry.Status == types.StatusFailed && uc.skipFailed:
			logger.Info("Skipping previously failed item", "message", entry.Message)
			report.Skipped++
			return nil
		}
	}

	if err := uc.ledger.Record(ctx, &model.LedgerEntry{
		Kind:          key.Kind,
		SourceNumber:  key.Number,
		Status:        types.StatusPending,
		LastAttemptAt: time.Now(),
		RunID:         uc.runID,
	}); err != nil {
		return err
	}

	result, runErr := run(ctx)

	// the outcome is recorded even when the pass was cancelled mid-item
	ctx = context.WithoutCancel(ctx)
	if result == nil {
		result = &itemResult{}
	}

	if runErr != nil {
		logger.Error("Failed to synchronize item",
			"error", runErr,
			"destination", result.Destination,
			"hint", types.RemediationHint(runErr),
		)
		report.AddFailure(key, result.Destination, runErr)
		if types.IsFatal(runErr) {
			report.Aborted = runErr
		}
		return uc.ledger.Record(ctx, &model.LedgerEntry{
			Kind:              key.Kind,
			SourceNumber:      key.Number,
			DestinationNumber: result.Destination,
			Status:            types.StatusFailed,
			LastAttemptAt:     time.Now(),
			RunID:             uc.runID,
			Message:           runErr.Error(),
		})
	}

	status := result.Status
	if status == "" {
		status = types.StatusSynced
	}
	switch status {
	case types.StatusSkipped:
		report.Skipped++
	default:
		report.Synced++
	}
	if result.Degraded {
		report.Degraded++
	}
	if result.TitleMatchURL != "" {
		report.TitleMatches = append(report.TitleMatches, &model.TitleMatch{Key: key, URL: result.TitleMatchURL})
	}

	return uc.ledger.Record(ctx, &model.LedgerEntry{
		Kind:              key.Kind,
		SourceNumber:      key.Number,
		DestinationNumber: result.Destination,
		Status:            status,
		LastAttemptAt:     time.Now(),
		RunID:             uc.runID,
		Message:           result.Message,
	})
}

// fetchAll reads page 1, then the remaining pages concurrently when the
// server reported the last page, sequentially otherwise
func fetchAll[T any](ctx context.Context, maxThreads int, fetch func(ctx context.Context, page int) (*model.Page[T], error)) ([]T, error) {
	first, err := fetch(ctx, 1)
	if err != nil {
		return nil, err
	}
	if first.Next == 0 {
		return first.Items, nil
	}

	if first.Last == 0 {
		items := first.Items
		for next := first.Next; next != 0; {
			page, err := fetch(ctx, next)
			if err != nil {
				return nil, err
			}
			items = append(items, page.Items...)
			next = page.Next
		}
		return items, nil
	}

	pages := make([][]T, first.Last+1)
	pages[1] = first.Items

	g := async.NewGroup(ctx, maxThreads)
	for p := 2; p <= first.Last; p++ {
		g.Go(func(ctx context.Context) error {
			page, err := fetch(ctx, p)
			if err != nil {
				return err
			}
			pages[p] = page.Items
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var items []T
	for _, page := range pages {
		items = append(items, page...)
	}
	return items, nil
}
