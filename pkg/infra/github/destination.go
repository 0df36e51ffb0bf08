package github

import (
	"context"
	"net/http"
	"os"
	"strings"

	"github.com/google/go-github/v75/github"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/reposync/pkg/domain/model"
)

// GetNumbered returns the issue or pull request at number. A deleted issue
// (410 Gone) still holds its number and is returned with Deleted set.
func (c *Client) GetNumbered(ctx context.Context, number int) (*model.NumberedObject, error) {
	issue, err := call(ctx, c, "issues.get", modeRead, func() (*github.Issue, *github.Response, error) {
		return c.gh.Issues.Get(ctx, c.repo.Owner, c.repo.Name, number)
	})
	if err != nil {
		switch {
		case isStatus(err, http.StatusNotFound):
			return nil, nil
		case isStatus(err, http.StatusGone):
			return &model.NumberedObject{Number: number, Deleted: true}, nil
		}
		return nil, goerr.Wrap(err, "failed to get issue", goerr.V("repo", c.repo.String()), goerr.V("number", number))
	}
	return toNumbered(issue), nil
}

// HighestNumber returns the largest number consumed in the issue/pull
// request/discussion namespace. Deleted issues are not listed, so numbers
// above the newest visible issue are probed until one is unused.
func (c *Client) HighestNumber(ctx context.Context) (int, error) {
	opts := &github.IssueListByRepoOptions{
		State:       "all",
		Sort:        "created",
		Direction:   "desc",
		ListOptions: github.ListOptions{PerPage: 1},
	}
	issues, err := call(ctx, c, "issues.latest", modeRead, func() ([]*github.Issue, *github.Response, error) {
		return c.gh.Issues.ListByRepo(ctx, c.repo.Owner, c.repo.Name, opts)
	})
	if err != nil {
		return 0, goerr.Wrap(err, "failed to get latest issue", goerr.V("repo", c.repo.String()))
	}

	highest := 0
	if len(issues) > 0 {
		highest = issues[0].GetNumber()
	}

	if c.countDiscussions {
		discussion, err := c.latestDiscussionNumber(ctx)
		if err != nil {
			return 0, err
		}
		highest = max(highest, discussion)
	}

	for {
		obj, err := c.GetNumbered(ctx, highest+1)
		if err != nil {
			return 0, err
		}
		if obj == nil {
			return highest, nil
		}
		highest++
	}
}

const latestDiscussionQuery = `query($owner: String!, $name: String!) {
  repository(owner: $owner, name: $name) {
    discussions(first: 1, orderBy: {field: CREATED_AT, direction: DESC}) {
      nodes { number }
    }
  }
}`

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

type latestDiscussionResponse struct {
	Data struct {
		Repository *struct {
			Discussions struct {
				Nodes []struct {
					Number int `json:"number"`
				} `json:"nodes"`
			} `json:"discussions"`
		} `json:"repository"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// latestDiscussionNumber asks the GraphQL API for the newest discussion.
// Discussions have no REST listing.
func (c *Client) latestDiscussionNumber(ctx context.Context) (int, error) {
	endpoint := "graphql"
	if strings.HasSuffix(c.gh.BaseURL.Path, "/api/v3/") {
		endpoint = "../graphql"
	}

	body := &graphQLRequest{
		Query:     latestDiscussionQuery,
		Variables: map[string]any{"owner": c.repo.Owner, "name": c.repo.Name},
	}

	out, err := call(ctx, c, "discussions.latest", modeRead, func() (*latestDiscussionResponse, *github.Response, error) {
		req, err := c.gh.NewRequest(http.MethodPost, endpoint, body)
		if err != nil {
			return nil, nil, err
		}
		var out latestDiscussionResponse
		resp, err := c.gh.Do(ctx, req, &out)
		return &out, resp, err
	})
	if err != nil {
		return 0, goerr.Wrap(err, "failed to query discussions", goerr.V("repo", c.repo.String()))
	}
	if len(out.Errors) > 0 {
		return 0, goerr.New("GraphQL error while querying discussions",
			goerr.V("repo", c.repo.String()),
			goerr.V("message", out.Errors[0].Message))
	}
	if out.Data.Repository == nil || len(out.Data.Repository.Discussions.Nodes) == 0 {
		return 0, nil
	}
	return out.Data.Repository.Discussions.Nodes[0].Number, nil
}

// CreateIssue creates an issue and returns the number the API assigned
func (c *Client) CreateIssue(ctx context.Context, req *model.IssueRequest) (int, error) {
	issueReq := &github.IssueRequest{
		Title: github.Ptr(req.Title),
		Body:  github.Ptr(req.Body),
	}
	if len(req.Labels) > 0 {
		issueReq.Labels = &req.Labels
	}

	issue, err := call(ctx, c, "issues.create", modeWrite, func() (*github.Issue, *github.Response, error) {
		return c.gh.Issues.Create(ctx, c.repo.Owner, c.repo.Name, issueReq)
	})
	if err != nil {
		return 0, goerr.Wrap(err, "failed to create issue", goerr.V("repo", c.repo.String()), goerr.V("title", req.Title))
	}
	return issue.GetNumber(), nil
}

// EditIssue replaces title, body and labels of an issue
func (c *Client) EditIssue(ctx context.Context, number int, req *model.IssueRequest) error {
	labels := req.Labels
	if labels == nil {
		labels = []string{}
	}
	issueReq := &github.IssueRequest{
		Title:  github.Ptr(req.Title),
		Body:   github.Ptr(req.Body),
		Labels: &labels,
	}
	if req.State != "" {
		issueReq.State = github.Ptr(req.State)
	}

	_, err := call(ctx, c, "issues.edit", modeWrite, func() (*github.Issue, *github.Response, error) {
		return c.gh.Issues.Edit(ctx, c.repo.Owner, c.repo.Name, number, issueReq)
	})
	if err != nil {
		return goerr.Wrap(err, "failed to edit issue", goerr.V("repo", c.repo.String()), goerr.V("number", number))
	}
	return nil
}

// CloseIssue closes an issue or pull request. reason is completed or not_planned; empty means completed.
func (c *Client) CloseIssue(ctx context.Context, number int, reason string) error {
	issueReq := &github.IssueRequest{State: github.Ptr("closed")}
	if reason != "" {
		issueReq.StateReason = github.Ptr(reason)
	}

	_, err := call(ctx, c, "issues.close", modeWrite, func() (*github.Issue, *github.Response, error) {
		return c.gh.Issues.Edit(ctx, c.repo.Owner, c.repo.Name, number, issueReq)
	})
	if err != nil {
		return goerr.Wrap(err, "failed to close issue", goerr.V("repo", c.repo.String()), goerr.V("number", number))
	}
	return nil
}

// CreatePullRequest opens a pull request and returns its number
func (c *Client) CreatePullRequest(ctx context.Context, req *model.PullRequestRequest) (int, error) {
	newPR := &github.NewPullRequest{
		Title: github.Ptr(req.Title),
		Body:  github.Ptr(req.Body),
		Head:  github.Ptr(req.Head),
		Base:  github.Ptr(req.Base),
		Draft: github.Ptr(req.Draft),
	}

	pr, err := call(ctx, c, "pulls.create", modeWrite, func() (*github.PullRequest, *github.Response, error) {
		return c.gh.PullRequests.Create(ctx, c.repo.Owner, c.repo.Name, newPR)
	})
	if err != nil {
		return 0, goerr.Wrap(err, "failed to create pull request",
			goerr.V("repo", c.repo.String()),
			goerr.V("head", req.Head),
			goerr.V("base", req.Base))
	}
	return pr.GetNumber(), nil
}

// CreateComment adds a comment to an issue or pull request
func (c *Client) CreateComment(ctx context.Context, number int, body string) error {
	comment := &github.IssueComment{Body: github.Ptr(body)}
	_, err := call(ctx, c, "comments.create", modeWrite, func() (*github.IssueComment, *github.Response, error) {
		return c.gh.Issues.CreateComment(ctx, c.repo.Owner, c.repo.Name, number, comment)
	})
	if err != nil {
		return goerr.Wrap(err, "failed to create comment", goerr.V("repo", c.repo.String()), goerr.V("number", number))
	}
	return nil
}

// CreateLabel creates a label
// CreateReviewComment posts body on the new side of loc.Line in loc.Path
func (c *Client) CreateReviewComment(ctx context.Context, number int, loc *model.ReviewLocation, body string) error {
	comment := &github.PullRequestComment{
		Body:     github.Ptr(body),
		CommitID: github.Ptr(loc.CommitID),
		Path:     github.Ptr(loc.Path),
		Line:     github.Ptr(loc.Line),
		Side:     github.Ptr("RIGHT"),
	}
	_, err := call(ctx, c, "review_comments.create", modeWrite, func() (*github.PullRequestComment, *github.Response, error) {
		return c.gh.PullRequests.CreateComment(ctx, c.repo.Owner, c.repo.Name, number, comment)
	})
	if err != nil {
		return goerr.Wrap(err, "failed to create review comment",
			goerr.V("repo", c.repo.String()),
			goerr.V("number", number),
			goerr.V("path", loc.Path))
	}
	return nil
}

func (c *Client) CreateLabel(ctx context.Context, label *model.Label) error {
	ghLabel := &github.Label{
		Name:  github.Ptr(label.Name),
		Color: github.Ptr(label.Color),
	}
	if label.Description != "" {
		ghLabel.Description = github.Ptr(label.Description)
	}

	_, err := call(ctx, c, "labels.create", modeWrite, func() (*github.Label, *github.Response, error) {
		return c.gh.Issues.CreateLabel(ctx, c.repo.Owner, c.repo.Name, ghLabel)
	})
	if err != nil {
		return goerr.Wrap(err, "failed to create label", goerr.V("repo", c.repo.String()), goerr.V("label", label.Name))
	}
	return nil
}

// CommitExists reports whether the commit is part of the repository object graph
func (c *Client) CommitExists(ctx context.Context, sha string) (bool, error) {
	_, err := call(ctx, c, "git.commit", modeRead, func() (*github.Commit, *github.Response, error) {
		return c.gh.Git.GetCommit(ctx, c.repo.Owner, c.repo.Name, sha)
	})
	if err != nil {
		if isStatus(err, http.StatusNotFound, http.StatusUnprocessableEntity) {
			return false, nil
		}
		return false, goerr.Wrap(err, "failed to look up commit", goerr.V("repo", c.repo.String()), goerr.V("sha", sha))
	}
	return true, nil
}

// BranchSHA returns the tip of a branch, or "" when the branch does not exist
func (c *Client) BranchSHA(ctx context.Context, name string) (string, error) {
	ref, err := call(ctx, c, "git.ref", modeRead, func() (*github.Reference, *github.Response, error) {
		return c.gh.Git.GetRef(ctx, c.repo.Owner, c.repo.Name, "heads/"+name)
	})
	if err != nil {
		if isStatus(err, http.StatusNotFound) {
			return "", nil
		}
		return "", goerr.Wrap(err, "failed to get branch", goerr.V("repo", c.repo.String()), goerr.V("branch", name))
	}
	return ref.GetObject().GetSHA(), nil
}

// DefaultBranch returns the default branch name
func (c *Client) DefaultBranch(ctx context.Context) (string, error) {
	repo, err := call(ctx, c, "repos.get", modeRead, func() (*github.Repository, *github.Response, error) {
		return c.gh.Repositories.Get(ctx, c.repo.Owner, c.repo.Name)
	})
	if err != nil {
		return "", goerr.Wrap(err, "failed to get repository", goerr.V("repo", c.repo.String()))
	}
	return repo.GetDefaultBranch(), nil
}

// CreateBranch creates refs/heads/name at sha
func (c *Client) CreateBranch(ctx context.Context, name, sha string) error {
	_, err := call(ctx, c, "git.create_ref", modeWrite, func() (*github.Reference, *github.Response, error) {
		return c.gh.Git.CreateRef(ctx, c.repo.Owner, c.repo.Name, github.CreateRef{
			Ref: "refs/heads/" + name,
			SHA: sha,
		})
	})
	if err != nil {
		return goerr.Wrap(err, "failed to create branch", goerr.V("repo", c.repo.String()), goerr.V("branch", name), goerr.V("sha", sha))
	}
	return nil
}

// CreateEmptyCommit creates a commit that reuses the parent's tree
func (c *Client) CreateEmptyCommit(ctx context.Context, parentSHA, message string) (string, error) {
	parent, err := call(ctx, c, "git.commit", modeRead, func() (*github.Commit, *github.Response, error) {
		return c.gh.Git.GetCommit(ctx, c.repo.Owner, c.repo.Name, parentSHA)
	})
	if err != nil {
		return "", goerr.Wrap(err, "failed to get parent commit", goerr.V("repo", c.repo.String()), goerr.V("sha", parentSHA))
	}

	commit := github.Commit{
		Message: github.Ptr(message),
		Tree:    &github.Tree{SHA: github.Ptr(parent.GetTree().GetSHA())},
		Parents: []*github.Commit{{SHA: github.Ptr(parentSHA)}},
	}
	created, err := call(ctx, c, "git.create_commit", modeWrite, func() (*github.Commit, *github.Response, error) {
		return c.gh.Git.CreateCommit(ctx, c.repo.Owner, c.repo.Name, commit, nil)
	})
	if err != nil {
		return "", goerr.Wrap(err, "failed to create commit", goerr.V("repo", c.repo.String()), goerr.V("parent", parentSHA))
	}
	return created.GetSHA(), nil
}

// GetReleaseByTag returns the release for tag including its assets, or nil
func (c *Client) GetReleaseByTag(ctx context.Context, tag string) (*model.Release, error) {
	release, err := call(ctx, c, "releases.get_by_tag", modeRead, func() (*github.RepositoryRelease, *github.Response, error) {
		return c.gh.Repositories.GetReleaseByTag(ctx, c.repo.Owner, c.repo.Name, tag)
	})
	if err != nil {
		if isStatus(err, http.StatusNotFound) {
			return nil, nil
		}
		return nil, goerr.Wrap(err, "failed to get release", goerr.V("repo", c.repo.String()), goerr.V("tag", tag))
	}
	return toRelease(release), nil
}

// CreateRelease creates a release. TargetCommitish should be a commit SHA so
// that a missing tag is created at the exact source commit.
func (c *Client) CreateRelease(ctx context.Context, release *model.Release) (*model.Release, error) {
	req := &github.RepositoryRelease{
		TagName:         github.Ptr(release.TagName),
		TargetCommitish: github.Ptr(release.TargetCommitish),
		Name:            github.Ptr(release.Name),
		Body:            github.Ptr(release.Body),
		Draft:           github.Ptr(release.Draft),
		Prerelease:      github.Ptr(release.Prerelease),
	}

	created, err := call(ctx, c, "releases.create", modeWrite, func() (*github.RepositoryRelease, *github.Response, error) {
		return c.gh.Repositories.CreateRelease(ctx, c.repo.Owner, c.repo.Name, req)
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create release", goerr.V("repo", c.repo.String()), goerr.V("tag", release.TagName))
	}
	return toRelease(created), nil
}

// UploadAsset attaches file to a release
func (c *Client) UploadAsset(ctx context.Context, releaseID int64, name, contentType string, file *os.File) error {
	opts := &github.UploadOptions{Name: name, MediaType: contentType}

	_, err := call(ctx, c, "assets.upload", modeWrite, func() (*github.ReleaseAsset, *github.Response, error) {
		if _, err := file.Seek(0, 0); err != nil {
			return nil, nil, err
		}
		return c.gh.Repositories.UploadReleaseAsset(ctx, c.repo.Owner, c.repo.Name, releaseID, opts, file)
	})
	if err != nil {
		return goerr.Wrap(err, "failed to upload release asset",
			goerr.V("repo", c.repo.String()),
			goerr.V("release_id", releaseID),
			goerr.V("name", name))
	}
	return nil
}
