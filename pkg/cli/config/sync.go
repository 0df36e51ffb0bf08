package config

import (
	"os"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/reposync/pkg/domain/model"
	"github.com/pelletier/go-toml/v2"
	"github.com/urfave/cli/v3"
)

// Sync holds options shared by the sync commands
type Sync struct {
	DryRun           bool
	MaxThreads       int64
	SkipFailed       bool
	CountDiscussions bool
	MappingFile      string
	MaxRetries       int64
}

// Flags returns CLI flags for the sync options
func (c *Sync) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:        "dry-run",
			Usage:       "Log intended writes without changing the destination or the ledger",
			Destination: &c.DryRun,
			Sources:     cli.EnvVars("REPOSYNC_DRY_RUN"),
		},
		&cli.Int64Flag{
			Name:        "max-threads",
			Usage:       "Concurrent page fetches and asset transfers",
			Value:       4,
			Destination: &c.MaxThreads,
			Sources:     cli.EnvVars("REPOSYNC_MAX_THREADS"),
		},
		&cli.BoolFlag{
			Name:        "skip-failed",
			Usage:       "Do not retry items the ledger marks as failed",
			Destination: &c.SkipFailed,
			Sources:     cli.EnvVars("REPOSYNC_SKIP_FAILED"),
		},
		&cli.BoolFlag{
			Name:        "count-discussions",
			Usage:       "Include destination discussions when reading the highest assigned number",
			Value:       true,
			Destination: &c.CountDiscussions,
			Sources:     cli.EnvVars("REPOSYNC_COUNT_DISCUSSIONS"),
		},
		&cli.StringFlag{
			Name:        "mapping-file",
			Usage:       "TOML file with user and label renames",
			Destination: &c.MappingFile,
			Sources:     cli.EnvVars("REPOSYNC_MAPPING_FILE"),
		},
		&cli.Int64Flag{
			Name:        "max-retries",
			Usage:       "Retry budget for rate-limited and transient API failures",
			Value:       5,
			Destination: &c.MaxRetries,
			Sources:     cli.EnvVars("REPOSYNC_MAX_RETRIES"),
		},
	}
}

// Mapping loads the mapping file, nil when none is configured
func (c *Sync) Mapping() (*model.Mapping, error) {
	if c.MappingFile == "" {
		return nil, nil
	}

	data, err := os.ReadFile(c.MappingFile)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read mapping file", goerr.V("path", c.MappingFile))
	}

	var mapping model.Mapping
	if err := toml.Unmarshal(data, &mapping); err != nil {
		return nil, goerr.Wrap(err, "failed to parse mapping file", goerr.V("path", c.MappingFile))
	}
	return &mapping, nil
}

// Releases holds options of the release sync
type Releases struct {
	Since string
}

// Flags returns CLI flags for the release options
func (c *Releases) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "since",
			Usage:       "Only synchronize releases published after this tag",
			Destination: &c.Since,
			Sources:     cli.EnvVars("REPOSYNC_SINCE"),
		},
	}
}
