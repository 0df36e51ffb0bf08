package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/reposync/pkg/domain/interfaces"
	"github.com/m-mizutani/reposync/pkg/domain/model"
	"github.com/m-mizutani/reposync/pkg/utils/async"
)

// RunAll synchronizes labels, then issues and pull requests, then
// releases. Releases are skipped when the numbered pass was aborted.
func RunAll(ctx context.Context, uc interfaces.SyncUseCase) (*model.Report, error) {
	if err := uc.SyncLabels(ctx); err != nil {
		return nil, err
	}

	report, err := uc.SyncNumbered(ctx)
	if err != nil {
		return report, err
	}
	if report.Aborted != nil {
		return report, nil
	}

	releases, err := uc.SyncReleases(ctx)
	report.Merge(releases)
	if err != nil {
		return report, err
	}
	return report, nil
}

// SyncRunner runs at most one full sync pass at a time. A trigger that
// arrives while a pass is running schedules exactly one follow-up pass.
type SyncRunner struct {
	newUseCase func() interfaces.SyncUseCase

	// stopCtx is cancelled by Stop and cancels the running pass
	stopCtx context.Context
	stop    context.CancelFunc

	mu        sync.Mutex
	running   bool
	pending   bool
	lastRunAt *time.Time
	lastError string
	done      chan struct{}
}

// NewSyncRunner creates a SyncRunner. newUseCase is called once per pass
// so that every pass gets its own run ID.
func NewSyncRunner(newUseCase func() interfaces.SyncUseCase) *SyncRunner {
	stopCtx, stop := context.WithCancel(context.Background())
	return &SyncRunner{
		newUseCase: newUseCase,
		stopCtx:    stopCtx,
		stop:       stop,
	}
}

// Stop cancels the running pass and drops the queued follow-up. The item
// in flight is recorded as failed and retried by the next run. Later
// triggers are ignored.
func (r *SyncRunner) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending = false
	r.stop()
}

// Trigger starts a pass in the background, or queues one if a pass is running
func (r *SyncRunner) Trigger(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stopCtx.Err() != nil {
		ctxlog.From(ctx).Info("Sync runner is stopped, ignoring trigger")
		return
	}
	if r.running {
		r.pending = true
		return
	}
	r.running = true
	r.done = make(chan struct{})
	async.Dispatch(ctx, "sync-pass", r.loop)
}

func (r *SyncRunner) loop(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer context.AfterFunc(r.stopCtx, cancel)()

	for {
		err := r.runOnce(ctx)

		r.mu.Lock()
		now := time.Now()
		r.lastRunAt = &now
		r.lastError = ""
		if err != nil {
			r.lastError = err.Error()
		}
		if !r.pending {
			r.running = false
			close(r.done)
			r.mu.Unlock()
			return err
		}
		r.pending = false
		r.mu.Unlock()

		if err != nil {
			ctxlog.From(ctx).Error("Sync pass failed", "error", err)
		}
	}
}

func (r *SyncRunner) runOnce(ctx context.Context) error {
	report, err := RunAll(ctx, r.newUseCase())
	if err != nil {
		return err
	}
	if !report.OK() {
		if report.Aborted != nil {
			return goerr.Wrap(report.Aborted, "sync pass aborted", goerr.V("run_id", report.RunID))
		}
		return goerr.New("sync pass finished with failures",
			goerr.V("run_id", report.RunID),
			goerr.V("failures", len(report.Failures)))
	}
	return nil
}

// Wait blocks until the current pass and its follow-ups finished
func (r *SyncRunner) Wait(ctx context.Context) error {
	r.mu.Lock()
	done := r.done
	r.mu.Unlock()
	if done == nil {
		return nil
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Status reports the runner state for health checks
func (r *SyncRunner) Status() (syncing bool, lastRunAt *time.Time, lastError string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running, r.lastRunAt, r.lastError
}
