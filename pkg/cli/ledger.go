package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/reposync/pkg/cli/config"
	"github.com/m-mizutani/reposync/pkg/domain/model"
	"github.com/m-mizutani/reposync/pkg/domain/types"
	"github.com/urfave/cli/v3"
)

func cmdLedger() *cli.Command {
	var (
		ledgerCfg config.Ledger
		scope     string
		status    string
	)

	flags := append(ledgerCfg.Flags(),
		&cli.StringFlag{
			Name:        "scope",
			Usage:       "Repository pair of the entries, \"<source>..<dest>\"",
			Required:    true,
			Destination: &scope,
		},
		&cli.StringFlag{
			Name:        "status",
			Usage:       "Show only entries with this status (pending, synced, skipped, failed)",
			Destination: &status,
		},
	)

	return &cli.Command{
		Name:  "ledger",
		Usage: "Print the progress ledger",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			filter, ok := types.ParseSyncStatus(status)
			if !ok {
				return goerr.New("invalid status filter", goerr.V("status", status))
			}
			if status == "" {
				filter = ""
			}

			ledger, err := ledgerCfg.Open(ctx, scope)
			if err != nil {
				return goerr.Wrap(err, "failed to open ledger")
			}
			defer func() { _ = ledger.Close() }()

			entries, err := ledger.Entries(ctx)
			if err != nil {
				return err
			}
			printEntries(os.Stdout, entries, filter)
			return nil
		},
	}
}

func printEntries(w io.Writer, entries []*model.LedgerEntry, filter types.SyncStatus) {
	colors := map[types.SyncStatus]*color.Color{
		types.StatusSynced:  color.New(color.FgGreen),
		types.StatusSkipped: color.New(color.Faint),
		types.StatusPending: color.New(color.FgYellow),
		types.StatusFailed:  color.New(color.FgRed),
	}

	for _, e := range entries {
		if filter != "" && e.Status != filter {
			continue
		}
		st := string(e.Status)
		if c, ok := colors[e.Status]; ok {
			st = c.Sprint(st)
		}
		dest := "-"
		if e.DestinationNumber != 0 {
			dest = fmt.Sprintf("%d", e.DestinationNumber)
		}
		fmt.Fprintf(w, "%-12s %8d -> %-8s %-8s %s %s",
			e.Kind, e.SourceNumber, dest, st,
			e.LastAttemptAt.Format("2006-01-02T15:04:05Z07:00"), e.RunID)
		if e.Message != "" {
			fmt.Fprintf(w, "  %s", e.Message)
		}
		fmt.Fprintln(w)
	}
}
