package interfaces

import (
	"context"
	"io"
	"os"

	"github.com/m-mizutani/reposync/pkg/domain/model"
)

// SourceRepository is the read-only side of a sync pass
type SourceRepository interface {
	// ListNumberedPage returns issues and pull requests in ascending creation order
	ListNumberedPage(ctx context.Context, page int) (*model.Page[*model.NumberedObject], error)

	// ListReleasesPage returns releases, newest first as the API does
	ListReleasesPage(ctx context.Context, page int) (*model.Page[*model.Release], error)

	// GetPullRequest returns head/base details of a pull request
	GetPullRequest(ctx context.Context, number int) (*model.PullRequestInfo, error)

	ListLabels(ctx context.Context) ([]*model.Label, error)
	ListComments(ctx context.Context, number int) ([]*model.Comment, error)
	ListReviewComments(ctx context.Context, number int) ([]*model.Comment, error)

	// ResolveCommit returns the commit SHA a ref points to, or "" if the ref does not exist
	ResolveCommit(ctx context.Context, ref string) (string, error)

	DownloadAsset(ctx context.Context, assetID int64) (io.ReadCloser, error)
}

// DestinationRepository is the write side of a sync pass. Every successful
// CreateIssue or CreatePullRequest consumes the next number of the shared
// issue/pull request/discussion counter.
type DestinationRepository interface {
	// GetNumbered returns the issue or pull request at number, or nil if none exists
	GetNumbered(ctx context.Context, number int) (*model.NumberedObject, error)

	// HighestNumber returns the largest number assigned in the shared namespace, 0 if none
	HighestNumber(ctx context.Context) (int, error)

	CreateIssue(ctx context.Context, req *model.IssueRequest) (int, error)
	EditIssue(ctx context.Context, number int, req *model.IssueRequest) error
	CloseIssue(ctx context.Context, number int, reason string) error
	CreatePullRequest(ctx context.Context, req *model.PullRequestRequest) (int, error)

	ListComments(ctx context.Context, number int) ([]*model.Comment, error)
	CreateComment(ctx context.Context, number int, body string) error

	ListReviewComments(ctx context.Context, number int) ([]*model.Comment, error)
	// CreateReviewComment attaches body to a line of the pull request diff
	CreateReviewComment(ctx context.Context, number int, loc *model.ReviewLocation, body string) error

	ListLabels(ctx context.Context) ([]*model.Label, error)
	CreateLabel(ctx context.Context, label *model.Label) error

	CommitExists(ctx context.Context, sha string) (bool, error)
	// BranchSHA returns the tip of a branch, or "" if the branch does not exist
	BranchSHA(ctx context.Context, name string) (string, error)
	DefaultBranch(ctx context.Context) (string, error)
	CreateBranch(ctx context.Context, name, sha string) error
	// CreateEmptyCommit creates a commit with the parent's tree and returns its SHA
	CreateEmptyCommit(ctx context.Context, parentSHA, message string) (string, error)

	// GetReleaseByTag returns the release with its assets, or nil if none exists
	GetReleaseByTag(ctx context.Context, tag string) (*model.Release, error)
	CreateRelease(ctx context.Context, release *model.Release) (*model.Release, error)
	UploadAsset(ctx context.Context, releaseID int64, name, contentType string, file *os.File) error
}
