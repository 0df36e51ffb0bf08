package config

import (
	"context"

	"github.com/m-mizutani/reposync/pkg/domain/interfaces"
	"github.com/m-mizutani/reposync/pkg/infra/ledger"
	"github.com/urfave/cli/v3"
)

// Ledger selects the progress ledger backend
type Ledger struct {
	File                string
	FirestoreProject    string
	FirestoreDatabase   string
	FirestoreCollection string
}

// Flags returns CLI flags for the ledger configuration
func (c *Ledger) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "ledger-file",
			Usage:       "Path of the JSONL ledger",
			Value:       "reposync-ledger.jsonl",
			Destination: &c.File,
			Sources:     cli.EnvVars("REPOSYNC_LEDGER_FILE"),
		},
		&cli.StringFlag{
			Name:        "ledger-firestore-project",
			Usage:       "Store the ledger in Firestore of this project instead of a file",
			Destination: &c.FirestoreProject,
			Sources:     cli.EnvVars("REPOSYNC_LEDGER_FIRESTORE_PROJECT"),
		},
		&cli.StringFlag{
			Name:        "ledger-firestore-database",
			Usage:       "Firestore database ID",
			Destination: &c.FirestoreDatabase,
			Sources:     cli.EnvVars("REPOSYNC_LEDGER_FIRESTORE_DATABASE"),
		},
		&cli.StringFlag{
			Name:        "ledger-firestore-collection",
			Usage:       "Firestore collection of ledger documents",
			Value:       ledger.DefaultCollection,
			Destination: &c.FirestoreCollection,
			Sources:     cli.EnvVars("REPOSYNC_LEDGER_FIRESTORE_COLLECTION"),
		},
	}
}

// Open opens the configured ledger. scope separates entries of different
// source/destination pairs sharing one file or Firestore collection.
func (c *Ledger) Open(ctx context.Context, scope string) (interfaces.Ledger, error) {
	if c.FirestoreProject != "" {
		var opts []ledger.FirestoreOption
		if c.FirestoreCollection != "" {
			opts = append(opts, ledger.WithCollection(c.FirestoreCollection))
		}
		return ledger.NewFirestore(ctx, c.FirestoreProject, c.FirestoreDatabase, scope, opts...)
	}
	return ledger.OpenFile(c.File, ledger.WithScope(scope))
}
