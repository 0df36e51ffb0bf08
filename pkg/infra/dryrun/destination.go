// Package dryrun wraps a destination so that a sync pass can be rehearsed
// without writing anything.
package dryrun

import (
	"context"
	"os"
	"sync"

	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/reposync/pkg/domain/interfaces"
	"github.com/m-mizutani/reposync/pkg/domain/model"
)

// Destination forwards reads to the wrapped repository and logs writes
// instead of performing them. Numbered creations advance a simulated
// counter so the allocator sees the numbers a real pass would get.
type Destination struct {
	interfaces.DestinationRepository

	mu      sync.Mutex
	highest int
	loaded  bool
	created map[int]*model.NumberedObject
}

var _ interfaces.DestinationRepository = (*Destination)(nil)

// New wraps dest
func New(dest interfaces.DestinationRepository) *Destination {
	return &Destination{
		DestinationRepository: dest,
		created:               make(map[int]*model.NumberedObject),
	}
}

func (x *Destination) HighestNumber(ctx context.Context) (int, error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	if !x.loaded {
		n, err := x.DestinationRepository.HighestNumber(ctx)
		if err != nil {
			return 0, err
		}
		x.highest, x.loaded = n, true
	}
	return x.highest, nil
}

func (x *Destination) GetNumbered(ctx context.Context, number int) (*model.NumberedObject, error) {
	x.mu.Lock()
	obj, ok := x.created[number]
	x.mu.Unlock()
	if ok {
		return obj, nil
	}
	return x.DestinationRepository.GetNumbered(ctx, number)
}

func (x *Destination) allocate(ctx context.Context, obj *model.NumberedObject) (int, error) {
	if _, err := x.HighestNumber(ctx); err != nil {
		return 0, err
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	x.highest++
	obj.Number = x.highest
	x.created[x.highest] = obj
	return x.highest, nil
}

func (x *Destination) CreateIssue(ctx context.Context, req *model.IssueRequest) (int, error) {
	number, err := x.allocate(ctx, &model.NumberedObject{Title: req.Title, Body: req.Body, State: "open"})
	if err != nil {
		return 0, err
	}
	ctxlog.From(ctx).Info("[dry-run] create issue", "number", number, "title", req.Title)
	return number, nil
}

func (x *Destination) EditIssue(ctx context.Context, number int, req *model.IssueRequest) error {
	ctxlog.From(ctx).Info("[dry-run] edit issue", "number", number, "title", req.Title)
	return nil
}

func (x *Destination) CloseIssue(ctx context.Context, number int, reason string) error {
	ctxlog.From(ctx).Info("[dry-run] close", "number", number, "reason", reason)
	return nil
}

func (x *Destination) CreatePullRequest(ctx context.Context, req *model.PullRequestRequest) (int, error) {
	number, err := x.allocate(ctx, &model.NumberedObject{Title: req.Title, Body: req.Body, State: "open"})
	if err != nil {
		return 0, err
	}
	ctxlog.From(ctx).Info("[dry-run] create pull request", "number", number, "title", req.Title, "head", req.Head, "base", req.Base)
	return number, nil
}

func (x *Destination) ListComments(ctx context.Context, number int) ([]*model.Comment, error) {
	x.mu.Lock()
	_, simulated := x.created[number]
	x.mu.Unlock()
	if simulated {
		return nil, nil
	}
	return x.DestinationRepository.ListComments(ctx, number)
}

func (x *Destination) CreateComment(ctx context.Context, number int, body string) error {
	ctxlog.From(ctx).Debug("[dry-run] create comment", "number", number, "size", len(body))
	return nil
}

func (x *Destination) ListReviewComments(ctx context.Context, number int) ([]*model.Comment, error) {
	x.mu.Lock()
	_, simulated := x.created[number]
	x.mu.Unlock()
	if simulated {
		return nil, nil
	}
	return x.DestinationRepository.ListReviewComments(ctx, number)
}

func (x *Destination) CreateReviewComment(ctx context.Context, number int, loc *model.ReviewLocation, body string) error {
	ctxlog.From(ctx).Debug("[dry-run] create review comment", "number", number, "path", loc.Path, "line", loc.Line)
	return nil
}

func (x *Destination) CreateLabel(ctx context.Context, label *model.Label) error {
	ctxlog.From(ctx).Info("[dry-run] create label", "name", label.Name)
	return nil
}

func (x *Destination) CreateBranch(ctx context.Context, name, sha string) error {
	ctxlog.From(ctx).Info("[dry-run] create branch", "name", name, "sha", sha)
	return nil
}

func (x *Destination) CreateEmptyCommit(ctx context.Context, parentSHA, message string) (string, error) {
	ctxlog.From(ctx).Info("[dry-run] create empty commit", "parent", parentSHA)
	return parentSHA, nil
}

func (x *Destination) CreateRelease(ctx context.Context, release *model.Release) (*model.Release, error) {
	ctxlog.From(ctx).Info("[dry-run] create release", "tag", release.TagName, "name", release.Name, "assets", len(release.Assets))
	created := *release
	created.ID = 0
	created.Assets = nil
	return &created, nil
}

func (x *Destination) UploadAsset(ctx context.Context, releaseID int64, name, contentType string, file *os.File) error {
	ctxlog.From(ctx).Info("[dry-run] upload asset", "release_id", releaseID, "name", name, "content_type", contentType)
	return nil
}
