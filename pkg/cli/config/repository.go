package config

import (
	"os"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/reposync/pkg/domain/types"
	"github.com/m-mizutani/reposync/pkg/infra/github"
	"github.com/urfave/cli/v3"
)

// Repository holds the location and credentials of one side of a sync.
// Role is "source" or "dest" and prefixes every flag.
type Repository struct {
	Role string

	Repo           string
	Token          string `masq:"secret"`
	AppID          int64
	InstallationID int64
	PrivateKey     string `masq:"secret"`
	BaseURL        string
}

// NewRepository creates the configuration of one side
func NewRepository(role string) *Repository {
	return &Repository{Role: role}
}

func (c *Repository) env(name string) cli.ValueSourceChain {
	return cli.EnvVars("REPOSYNC_" + strings.ToUpper(c.Role) + "_" + name)
}

// Flags returns CLI flags for the repository configuration
func (c *Repository) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        c.Role + "-repo",
			Usage:       "Repository in owner/repo format (" + c.Role + ")",
			Required:    true,
			Destination: &c.Repo,
			Sources:     c.env("REPO"),
		},
		&cli.StringFlag{
			Name:        c.Role + "-token",
			Usage:       "GitHub token (" + c.Role + ")",
			Destination: &c.Token,
			Sources:     c.env("TOKEN"),
		},
		&cli.Int64Flag{
			Name:        c.Role + "-app-id",
			Usage:       "GitHub App ID (" + c.Role + ")",
			Destination: &c.AppID,
			Sources:     c.env("APP_ID"),
		},
		&cli.Int64Flag{
			Name:        c.Role + "-installation-id",
			Usage:       "GitHub App installation ID (" + c.Role + ")",
			Destination: &c.InstallationID,
			Sources:     c.env("INSTALLATION_ID"),
		},
		&cli.StringFlag{
			Name:        c.Role + "-private-key",
			Usage:       "GitHub App private key, PEM content or a file path (" + c.Role + ")",
			Destination: &c.PrivateKey,
			Sources:     c.env("PRIVATE_KEY"),
		},
		&cli.StringFlag{
			Name:        c.Role + "-base-url",
			Usage:       "GitHub Enterprise Server URL (" + c.Role + ")",
			Destination: &c.BaseURL,
			Sources:     c.env("BASE_URL"),
		},
	}
}

// RepoRef parses the repository name
func (c *Repository) RepoRef() (types.RepoRef, error) {
	return types.ParseRepoRef(c.Repo)
}

// privateKey returns the PEM bytes of the configured key
func (c *Repository) privateKey() ([]byte, error) {
	if c.PrivateKey == "" || strings.Contains(c.PrivateKey, "-----BEGIN") {
		return []byte(c.PrivateKey), nil
	}
	data, err := os.ReadFile(c.PrivateKey)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read GitHub App private key",
			goerr.V("role", c.Role),
			goerr.V("path", c.PrivateKey))
	}
	return data, nil
}

// NewClient builds the GitHub client for this side. Extra options are
// applied after the credentials.
func (c *Repository) NewClient(opts ...github.Option) (*github.Client, error) {
	repo, err := c.RepoRef()
	if err != nil {
		return nil, err
	}

	var clientOpts []github.Option
	switch {
	case c.AppID != 0 || c.InstallationID != 0 || c.PrivateKey != "":
		key, err := c.privateKey()
		if err != nil {
			return nil, err
		}
		clientOpts = append(clientOpts, github.WithApp(c.AppID, c.InstallationID, key))
		if c.Token != "" {
			clientOpts = append(clientOpts, github.WithToken(c.Token))
		}
	case c.Token != "":
		clientOpts = append(clientOpts, github.WithToken(c.Token))
	default:
		return nil, goerr.New("either a token or GitHub App credentials are required", goerr.V("role", c.Role))
	}

	if c.BaseURL != "" {
		clientOpts = append(clientOpts, github.WithBaseURL(c.BaseURL))
	}
	clientOpts = append(clientOpts, opts...)

	return github.NewClient(repo, clientOpts...)
}
