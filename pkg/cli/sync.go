package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/reposync/pkg/cli/config"
	"github.com/m-mizutani/reposync/pkg/domain/interfaces"
	"github.com/m-mizutani/reposync/pkg/domain/model"
	"github.com/m-mizutani/reposync/pkg/infra/dryrun"
	"github.com/m-mizutani/reposync/pkg/infra/github"
	"github.com/m-mizutani/reposync/pkg/usecase"
	"github.com/urfave/cli/v3"
)

// syncConfig gathers the flags every sync command shares
type syncConfig struct {
	source   *config.Repository
	dest     *config.Repository
	ledger   config.Ledger
	sync     config.Sync
	releases config.Releases
}

func newSyncConfig() *syncConfig {
	return &syncConfig{
		source: config.NewRepository("source"),
		dest:   config.NewRepository("dest"),
	}
}

func (c *syncConfig) Flags(withReleases bool) []cli.Flag {
	var flags []cli.Flag
	flags = append(flags, c.source.Flags()...)
	flags = append(flags, c.dest.Flags()...)
	flags = append(flags, c.ledger.Flags()...)
	flags = append(flags, c.sync.Flags()...)
	if withReleases {
		flags = append(flags, c.releases.Flags()...)
	}
	return flags
}

// syncDeps is what a sync pass runs against
type syncDeps struct {
	newUseCase func() interfaces.SyncUseCase
	ledger     interfaces.Ledger
}

func (c *syncConfig) build(ctx context.Context) (*syncDeps, error) {
	logger := ctxlog.From(ctx)

	retries := github.WithRetry(uint64(max(c.sync.MaxRetries, 0)), time.Second)

	src, err := c.source.NewClient(retries)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create source client")
	}
	destClient, err := c.dest.NewClient(retries, github.WithDiscussions(c.sync.CountDiscussions))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create destination client")
	}

	mapping, err := c.sync.Mapping()
	if err != nil {
		return nil, err
	}

	scope := src.Repo().String() + ".." + destClient.Repo().String()
	ledger, err := c.ledger.Open(ctx, scope)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open ledger")
	}

	var dest interfaces.DestinationRepository = destClient
	var runLedger interfaces.Ledger = ledger
	if c.sync.DryRun {
		logger.Warn("Dry run: no destination write and no ledger update will be made")
		dest = dryrun.New(destClient)
		runLedger = dryrun.NewLedger(ledger)
	}

	logger.Info("Sync configured",
		"source", c.source,
		"dest", c.dest,
		"scope", scope,
		"dry_run", c.sync.DryRun,
		"max_threads", c.sync.MaxThreads,
	)

	opts := []usecase.SyncOption{
		usecase.WithSourceRepo(src.Repo()),
		usecase.WithMapping(mapping),
		usecase.WithSkipFailed(c.sync.SkipFailed),
		usecase.WithSince(c.releases.Since),
		usecase.WithMaxThreads(int(c.sync.MaxThreads)),
		usecase.WithDryRun(c.sync.DryRun),
	}

	return &syncDeps{
		newUseCase: func() interfaces.SyncUseCase {
			return usecase.NewSync(src, dest, runLedger, opts...)
		},
		ledger: runLedger,
	}, nil
}

func cmdSyncIssues() *cli.Command {
	cfg := newSyncConfig()

	return &cli.Command{
		Name:  "sync-issues",
		Usage: "Replicate labels, issues and pull requests keeping their numbers",
		Flags: cfg.Flags(false),
		Action: func(ctx context.Context, c *cli.Command) error {
			return runSync(ctx, cfg, func(ctx context.Context, uc interfaces.SyncUseCase) (*model.Report, error) {
				if err := uc.SyncLabels(ctx); err != nil {
					return nil, err
				}
				return uc.SyncNumbered(ctx)
			})
		},
	}
}

func cmdSyncReleases() *cli.Command {
	cfg := newSyncConfig()

	return &cli.Command{
		Name:  "sync-releases",
		Usage: "Replicate releases and their assets",
		Flags: cfg.Flags(true),
		Action: func(ctx context.Context, c *cli.Command) error {
			return runSync(ctx, cfg, func(ctx context.Context, uc interfaces.SyncUseCase) (*model.Report, error) {
				return uc.SyncReleases(ctx)
			})
		},
	}
}

func cmdSync() *cli.Command {
	cfg := newSyncConfig()

	return &cli.Command{
		Name:  "sync",
		Usage: "Replicate labels, issues, pull requests and releases",
		Flags: cfg.Flags(true),
		Action: func(ctx context.Context, c *cli.Command) error {
			return runSync(ctx, cfg, usecase.RunAll)
		},
	}
}

func runSync(ctx context.Context, cfg *syncConfig, run func(ctx context.Context, uc interfaces.SyncUseCase) (*model.Report, error)) error {
	deps, err := cfg.build(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := deps.ledger.Close(); err != nil {
			ctxlog.From(ctx).Warn("Failed to close ledger", "error", err)
		}
	}()

	report, err := run(ctx, deps.newUseCase())
	if report != nil {
		printReport(os.Stderr, report)
	}
	if err != nil {
		return err
	}
	if report.Aborted != nil {
		return goerr.Wrap(report.Aborted, "sync aborted", goerr.V("run_id", report.RunID))
	}
	if len(report.Failures) > 0 {
		return goerr.New("sync finished with failures",
			goerr.V("run_id", report.RunID),
			goerr.V("failures", len(report.Failures)))
	}
	return nil
}

// printReport writes the run summary, then each failing item with its hint
func printReport(w io.Writer, report *model.Report) {
	green := color.New(color.FgGreen).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	dim := color.New(color.Faint).SprintFunc()

	fmt.Fprintf(w, "%s synced=%d skipped=%d placeholders=%d degraded=%d failed=%d %s\n",
		green("Run"),
		report.Synced,
		report.Skipped,
		report.Placeholders,
		report.Degraded,
		len(report.Failures),
		dim(report.RunID),
	)
	if report.Degraded > 0 {
		fmt.Fprintf(w, "%s %d pull request(s) were recreated on a synthetic head\n", yellow("note"), report.Degraded)
	}
	for _, m := range report.TitleMatches {
		fmt.Fprintf(w, "%s %s kept %s by title only; check it is the same item\n", yellow("MATCHED"), m.Key, m.URL)
	}
	for _, f := range report.Failures {
		dest := "-"
		if f.DestinationNumber != 0 {
			dest = fmt.Sprintf("%d", f.DestinationNumber)
		}
		fmt.Fprintf(w, "%s %s (destination %s): %v\n", red("FAILED"), f.Key, dest, f.Err)
		if f.Hint != "" {
			fmt.Fprintf(w, "       %s %s\n", yellow("hint:"), f.Hint)
		}
	}
	if report.Aborted != nil {
		fmt.Fprintf(w, "%s %v\n", red("ABORTED"), report.Aborted)
	}
}
