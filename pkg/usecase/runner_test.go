package usecase_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/reposync/pkg/domain/interfaces"
	"github.com/m-mizutani/reposync/pkg/domain/model"
	"github.com/m-mizutani/reposync/pkg/usecase"
)

type stubSync struct {
	labels   func(ctx context.Context) error
	numbered func(ctx context.Context) (*model.Report, error)
	releases func(ctx context.Context) (*model.Report, error)
}

func (x *stubSync) SyncLabels(ctx context.Context) error {
	if x.labels == nil {
		return nil
	}
	return x.labels(ctx)
}

func (x *stubSync) SyncNumbered(ctx context.Context) (*model.Report, error) {
	if x.numbered == nil {
		return &model.Report{}, nil
	}
	return x.numbered(ctx)
}

func (x *stubSync) SyncReleases(ctx context.Context) (*model.Report, error) {
	if x.releases == nil {
		return &model.Report{}, nil
	}
	return x.releases(ctx)
}

func TestRunAll(t *testing.T) {
	ctx := context.Background()

	t.Run("merges numbered and release reports", func(t *testing.T) {
		uc := &stubSync{
			numbered: func(ctx context.Context) (*model.Report, error) {
				return &model.Report{Synced: 3, Placeholders: 1}, nil
			},
			releases: func(ctx context.Context) (*model.Report, error) {
				return &model.Report{Synced: 2, Skipped: 1}, nil
			},
		}
		report, err := usecase.RunAll(ctx, uc)
		gt.NoError(t, err)
		gt.Number(t, report.Synced).Equal(5)
		gt.Number(t, report.Skipped).Equal(1)
		gt.Number(t, report.Placeholders).Equal(1)
	})

	t.Run("releases are skipped after an abort", func(t *testing.T) {
		called := false
		uc := &stubSync{
			numbered: func(ctx context.Context) (*model.Report, error) {
				return &model.Report{Aborted: errors.New("diverged")}, nil
			},
			releases: func(ctx context.Context) (*model.Report, error) {
				called = true
				return &model.Report{}, nil
			},
		}
		report, err := usecase.RunAll(ctx, uc)
		gt.NoError(t, err)
		gt.False(t, report.OK())
		gt.False(t, called)
	})

	t.Run("label failure stops the pass", func(t *testing.T) {
		uc := &stubSync{
			labels: func(ctx context.Context) error { return errors.New("boom") },
			numbered: func(ctx context.Context) (*model.Report, error) {
				t.Fatal("numbered sync must not run")
				return nil, nil
			},
		}
		_, err := usecase.RunAll(ctx, uc)
		gt.Error(t, err)
	})

	t.Run("full pass against the fake", func(t *testing.T) {
		src := newFakeSource()
		src.addIssue(1, "one")
		src.addIssue(2, "two")
		src.labels = []*model.Label{{Name: "bug", Color: "d73a4a"}}
		dest := newFakeDest()
		l := openLedger(t, filepath.Join(t.TempDir(), "ledger.jsonl"))

		report, err := usecase.RunAll(ctx, newSync(src, dest, l))
		gt.NoError(t, err)
		gt.True(t, report.OK())
		gt.Number(t, report.Synced).Equal(2)
		gt.A(t, dest.labels).Length(1)
	})
}

func TestSyncRunner(t *testing.T) {
	ctx := context.Background()

	t.Run("trigger during a pass schedules one follow-up", func(t *testing.T) {
		var passes atomic.Int32
		release := make(chan struct{})
		started := make(chan struct{}, 10)

		runner := usecase.NewSyncRunner(func() interfaces.SyncUseCase {
			return &stubSync{
				numbered: func(ctx context.Context) (*model.Report, error) {
					passes.Add(1)
					started <- struct{}{}
					<-release
					return &model.Report{}, nil
				},
			}
		})

		runner.Trigger(ctx)
		<-started

		// three triggers while running collapse into a single follow-up
		runner.Trigger(ctx)
		runner.Trigger(ctx)
		runner.Trigger(ctx)

		syncing, _, _ := runner.Status()
		gt.True(t, syncing)

		close(release)
		waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		gt.NoError(t, runner.Wait(waitCtx))

		gt.Number(t, passes.Load()).Equal(2)
		syncing, lastRunAt, lastError := runner.Status()
		gt.False(t, syncing)
		gt.Value(t, lastRunAt).NotNil()
		gt.Value(t, lastError).Equal("")
	})

	t.Run("failed pass is reported in status", func(t *testing.T) {
		runner := usecase.NewSyncRunner(func() interfaces.SyncUseCase {
			return &stubSync{
				numbered: func(ctx context.Context) (*model.Report, error) {
					report := &model.Report{RunID: "r1"}
					report.AddFailure(model.LedgerKey{Kind: "issue", Number: 4}, 0, errors.New("nope"))
					return report, nil
				},
			}
		})

		runner.Trigger(ctx)
		waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		gt.NoError(t, runner.Wait(waitCtx))

		_, _, lastError := runner.Status()
		gt.String(t, lastError).Contains("failures")
	})

	t.Run("stop cancels the running pass and drops the follow-up", func(t *testing.T) {
		var passes atomic.Int32
		started := make(chan struct{}, 10)

		runner := usecase.NewSyncRunner(func() interfaces.SyncUseCase {
			return &stubSync{
				numbered: func(ctx context.Context) (*model.Report, error) {
					passes.Add(1)
					started <- struct{}{}
					<-ctx.Done()
					return &model.Report{Aborted: ctx.Err()}, nil
				},
			}
		})

		runner.Trigger(ctx)
		<-started
		runner.Trigger(ctx)
		runner.Stop()

		waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		gt.NoError(t, runner.Wait(waitCtx))
		gt.Number(t, passes.Load()).Equal(1)

		_, _, lastError := runner.Status()
		gt.String(t, lastError).Contains("aborted")

		runner.Trigger(ctx)
		syncing, _, _ := runner.Status()
		gt.False(t, syncing)
		gt.Number(t, passes.Load()).Equal(1)
	})

	t.Run("wait without a pass returns immediately", func(t *testing.T) {
		runner := usecase.NewSyncRunner(func() interfaces.SyncUseCase { return &stubSync{} })
		gt.NoError(t, runner.Wait(ctx))
	})
}
