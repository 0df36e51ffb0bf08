package github

import (
	"context"
	"io"
	"net/http"

	"github.com/google/go-github/v75/github"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/reposync/pkg/domain/model"
)

// ListNumberedPage returns one page of issues and pull requests, oldest first
func (c *Client) ListNumberedPage(ctx context.Context, page int) (*model.Page[*model.NumberedObject], error) {
	opts := &github.IssueListByRepoOptions{
		State:     "all",
		Sort:      "created",
		Direction: "asc",
		ListOptions: github.ListOptions{
			Page:    page,
			PerPage: c.perPage,
		},
	}

	type result struct {
		issues []*github.Issue
		resp   *github.Response
	}
	res, err := call(ctx, c, "issues.list", modeRead, func() (result, *github.Response, error) {
		issues, resp, err := c.gh.Issues.ListByRepo(ctx, c.repo.Owner, c.repo.Name, opts)
		return result{issues: issues, resp: resp}, resp, err
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list issues", goerr.V("repo", c.repo.String()), goerr.V("page", page))
	}

	items := make([]*model.NumberedObject, 0, len(res.issues))
	for _, issue := range res.issues {
		items = append(items, toNumbered(issue))
	}

	return &model.Page[*model.NumberedObject]{
		Items: items,
		Next:  res.resp.NextPage,
		Last:  res.resp.LastPage,
	}, nil
}

// ListReleasesPage returns one page of releases
func (c *Client) ListReleasesPage(ctx context.Context, page int) (*model.Page[*model.Release], error) {
	opts := &github.ListOptions{Page: page, PerPage: c.perPage}

	type result struct {
		releases []*github.RepositoryRelease
		resp     *github.Response
	}
	res, err := call(ctx, c, "releases.list", modeRead, func() (result, *github.Response, error) {
		releases, resp, err := c.gh.Repositories.ListReleases(ctx, c.repo.Owner, c.repo.Name, opts)
		return result{releases: releases, resp: resp}, resp, err
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list releases", goerr.V("repo", c.repo.String()), goerr.V("page", page))
	}

	items := make([]*model.Release, 0, len(res.releases))
	for _, release := range res.releases {
		items = append(items, toRelease(release))
	}

	return &model.Page[*model.Release]{
		Items: items,
		Next:  res.resp.NextPage,
		Last:  res.resp.LastPage,
	}, nil
}

// GetPullRequest returns head and base details of a pull request
func (c *Client) GetPullRequest(ctx context.Context, number int) (*model.PullRequestInfo, error) {
	pr, err := call(ctx, c, "pulls.get", modeRead, func() (*github.PullRequest, *github.Response, error) {
		return c.gh.PullRequests.Get(ctx, c.repo.Owner, c.repo.Name, number)
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get pull request", goerr.V("repo", c.repo.String()), goerr.V("number", number))
	}
	return toPullRequestInfo(pr), nil
}

// ListLabels returns all labels of the repository
func (c *Client) ListLabels(ctx context.Context) ([]*model.Label, error) {
	var labels []*model.Label
	opts := &github.ListOptions{PerPage: c.perPage}

	for {
		type result struct {
			labels []*github.Label
			resp   *github.Response
		}
		res, err := call(ctx, c, "labels.list", modeRead, func() (result, *github.Response, error) {
			labels, resp, err := c.gh.Issues.ListLabels(ctx, c.repo.Owner, c.repo.Name, opts)
			return result{labels: labels, resp: resp}, resp, err
		})
		if err != nil {
			return nil, goerr.Wrap(err, "failed to list labels", goerr.V("repo", c.repo.String()))
		}

		for _, label := range res.labels {
			labels = append(labels, toLabel(label))
		}
		if res.resp.NextPage == 0 {
			break
		}
		opts.Page = res.resp.NextPage
	}

	return labels, nil
}

// ListComments returns the issue comments of an issue or pull request, oldest first
func (c *Client) ListComments(ctx context.Context, number int) ([]*model.Comment, error) {
	var comments []*model.Comment
	opts := &github.IssueListCommentsOptions{
		Sort:        github.Ptr("created"),
		Direction:   github.Ptr("asc"),
		ListOptions: github.ListOptions{PerPage: c.perPage},
	}

	for {
		type result struct {
			comments []*github.IssueComment
			resp     *github.Response
		}
		res, err := call(ctx, c, "comments.list", modeRead, func() (result, *github.Response, error) {
			comments, resp, err := c.gh.Issues.ListComments(ctx, c.repo.Owner, c.repo.Name, number, opts)
			return result{comments: comments, resp: resp}, resp, err
		})
		if err != nil {
			return nil, goerr.Wrap(err, "failed to list comments", goerr.V("repo", c.repo.String()), goerr.V("number", number))
		}

		for _, comment := range res.comments {
			comments = append(comments, toComment(comment))
		}
		if res.resp.NextPage == 0 {
			break
		}
		opts.Page = res.resp.NextPage
	}

	return comments, nil
}

// ListReviewComments returns diff comments of a pull request, oldest first
func (c *Client) ListReviewComments(ctx context.Context, number int) ([]*model.Comment, error) {
	var comments []*model.Comment
	opts := &github.PullRequestListCommentsOptions{
		Sort:        "created",
		Direction:   "asc",
		ListOptions: github.ListOptions{PerPage: c.perPage},
	}

	for {
		type result struct {
			comments []*github.PullRequestComment
			resp     *github.Response
		}
		res, err := call(ctx, c, "review_comments.list", modeRead, func() (result, *github.Response, error) {
			comments, resp, err := c.gh.PullRequests.ListComments(ctx, c.repo.Owner, c.repo.Name, number, opts)
			return result{comments: comments, resp: resp}, resp, err
		})
		if err != nil {
			return nil, goerr.Wrap(err, "failed to list review comments", goerr.V("repo", c.repo.String()), goerr.V("number", number))
		}

		for _, comment := range res.comments {
			comments = append(comments, toReviewComment(comment))
		}
		if res.resp.NextPage == 0 {
			break
		}
		opts.Page = res.resp.NextPage
	}

	return comments, nil
}

// ResolveCommit returns the commit SHA ref points to, or "" if the ref does not exist
func (c *Client) ResolveCommit(ctx context.Context, ref string) (string, error) {
	sha, err := call(ctx, c, "commits.sha", modeRead, func() (string, *github.Response, error) {
		return c.gh.Repositories.GetCommitSHA1(ctx, c.repo.Owner, c.repo.Name, ref, "")
	})
	if err != nil {
		if isStatus(err, http.StatusNotFound, http.StatusUnprocessableEntity) {
			return "", nil
		}
		return "", goerr.Wrap(err, "failed to resolve ref", goerr.V("repo", c.repo.String()), goerr.V("ref", ref))
	}
	return sha, nil
}

// DownloadAsset opens the content of a release asset. The caller closes the reader.
func (c *Client) DownloadAsset(ctx context.Context, assetID int64) (io.ReadCloser, error) {
	// Assets redirect to a storage host that rejects the API credentials, so
	// the redirect is followed with a plain client.
	rc, err := call(ctx, c, "assets.download", modeRead, func() (io.ReadCloser, *github.Response, error) {
		rc, _, err := c.gh.Repositories.DownloadReleaseAsset(ctx, c.repo.Owner, c.repo.Name, assetID, http.DefaultClient)
		return rc, nil, err
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to download release asset", goerr.V("repo", c.repo.String()), goerr.V("asset_id", assetID))
	}
	return rc, nil
}
