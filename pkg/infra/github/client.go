package github

import (
	"net/http"
	"strings"
	"time"

	"github.com/bradleyfalzon/ghinstallation/v2"
	"github.com/google/go-github/v75/github"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/reposync/pkg/domain/types"
)

const (
	defaultPerPage       = 100
	defaultMaxRetries    = 5
	defaultRetryInterval = time.Second
	defaultMaxInterval   = 30 * time.Second
	defaultMaxRateWait   = 15 * time.Minute
)

// Client is a repository-bound GitHub REST client. It implements both
// interfaces.SourceRepository and interfaces.DestinationRepository.
type Client struct {
	gh   *github.Client
	repo types.RepoRef

	maxRetries       uint64
	retryInterval    time.Duration
	maxInterval      time.Duration
	maxRateWait      time.Duration
	countDiscussions bool
	perPage          int
}

type config struct {
	token          string
	appID          int64
	installationID int64
	privateKey     []byte
	baseURL        string
	uploadURL      string
	httpClient     *http.Client

	maxRetries       uint64
	retryInterval    time.Duration
	maxInterval      time.Duration
	maxRateWait      time.Duration
	countDiscussions bool
	perPage          int
}

// Option is a functional option for Client configuration
type Option func(*config)

// WithToken authenticates with a personal access token
func WithToken(token string) Option {
	return func(c *config) {
		c.token = token
	}
}

// WithApp authenticates as a GitHub App installation
func WithApp(appID, installationID int64, privateKey []byte) Option {
	return func(c *config) {
		c.appID = appID
		c.installationID = installationID
		c.privateKey = privateKey
	}
}

// WithBaseURL points the client to a GitHub Enterprise Server (or a test server)
func WithBaseURL(baseURL string) Option {
	return func(c *config) {
		c.baseURL = baseURL
	}
}

// WithUploadURL sets the upload endpoint. Defaults to the base URL.
func WithUploadURL(uploadURL string) Option {
	return func(c *config) {
		c.uploadURL = uploadURL
	}
}

// WithHTTPClient replaces the underlying HTTP client (token auth only)
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *config) {
		c.httpClient = httpClient
	}
}

// WithRetry sets the retry budget and the initial backoff interval
func WithRetry(maxRetries uint64, interval time.Duration) Option {
	return func(c *config) {
		c.maxRetries = maxRetries
		c.retryInterval = interval
		if c.maxInterval < interval {
			c.maxInterval = interval
		}
	}
}

// WithMaxRateLimitWait caps how long a single rate-limit hint is honoured
func WithMaxRateLimitWait(d time.Duration) Option {
	return func(c *config) {
		c.maxRateWait = d
	}
}

// WithDiscussions includes discussions in HighestNumber
func WithDiscussions(enabled bool) Option {
	return func(c *config) {
		c.countDiscussions = enabled
	}
}

// WithPerPage sets the page size of list calls
func WithPerPage(n int) Option {
	return func(c *config) {
		c.perPage = n
	}
}

// NewClient creates a GitHub client bound to one repository
func NewClient(repo types.RepoRef, opts ...Option) (*Client, error) {
	cfg := &config{
		maxRetries:       defaultMaxRetries,
		retryInterval:    defaultRetryInterval,
		maxInterval:      defaultMaxInterval,
		maxRateWait:      defaultMaxRateWait,
		countDiscussions: true,
		perPage:          defaultPerPage,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	hasApp := cfg.appID != 0 || cfg.installationID != 0 || len(cfg.privateKey) > 0
	if hasApp && cfg.token != "" {
		return nil, goerr.New("token and GitHub App credentials are mutually exclusive", goerr.V("repo", repo.String()))
	}

	var gh *github.Client
	switch {
	case hasApp:
		if cfg.appID == 0 || cfg.installationID == 0 || len(cfg.privateKey) == 0 {
			return nil, goerr.New("GitHub App auth requires app ID, installation ID and private key", goerr.V("repo", repo.String()))
		}
		itr, err := ghinstallation.New(http.DefaultTransport, cfg.appID, cfg.installationID, cfg.privateKey)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to create GitHub App transport", goerr.V("app_id", cfg.appID))
		}
		if cfg.baseURL != "" {
			itr.BaseURL = strings.TrimSuffix(enterpriseAPIURL(cfg.baseURL), "/")
		}
		gh = github.NewClient(&http.Client{Transport: itr})

	default:
		gh = github.NewClient(cfg.httpClient)
		if cfg.token != "" {
			gh = gh.WithAuthToken(cfg.token)
		}
	}

	if cfg.baseURL != "" {
		uploadURL := cfg.uploadURL
		if uploadURL == "" {
			uploadURL = cfg.baseURL
		}
		var err error
		gh, err = gh.WithEnterpriseURLs(cfg.baseURL, uploadURL)
		if err != nil {
			return nil, goerr.Wrap(err, "invalid GitHub base URL", goerr.V("base_url", cfg.baseURL))
		}
	}
	gh.UserAgent = types.AppName + "/" + types.Version

	return &Client{
		gh:               gh,
		repo:             repo,
		maxRetries:       cfg.maxRetries,
		retryInterval:    cfg.retryInterval,
		maxInterval:      cfg.maxInterval,
		maxRateWait:      cfg.maxRateWait,
		countDiscussions: cfg.countDiscussions,
		perPage:          cfg.perPage,
	}, nil
}

// Repo returns the repository the client is bound to
func (c *Client) Repo() types.RepoRef {
	return c.repo
}

// enterpriseAPIURL mirrors the path go-github derives for Enterprise base URLs
func enterpriseAPIURL(baseURL string) string {
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	if !strings.HasSuffix(baseURL, "/api/v3/") {
		baseURL += "api/v3/"
	}
	return baseURL
}
