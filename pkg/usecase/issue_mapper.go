package usecase

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"slices"

	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/reposync/pkg/domain/interfaces"
	"github.com/m-mizutani/reposync/pkg/domain/model"
	"github.com/m-mizutani/reposync/pkg/domain/types"
)

// itemResult is the outcome of replicating one source item
type itemResult struct {
	Destination int64
	Status      types.SyncStatus
	Degraded    bool
	Message     string

	// TitleMatchURL is set when an unmarked object was kept by title
	TitleMatchURL string
}

// numberedMapper replicates issues and pull requests. Creation goes
// through the allocator so that every item lands on its source number.
type numberedMapper struct {
	src   interfaces.SourceRepository
	dest  interfaces.DestinationRepository
	alloc *allocator
	prov  *provenance
}

var markerPattern = regexp.MustCompile(`<!-- reposync:[a-z_]+:\d+ -->`)

// Sync replicates item. On error the returned result still carries the
// destination number when something was created.
func (m *numberedMapper) Sync(ctx context.Context, item *model.NumberedObject) (*itemResult, error) {
	next, err := m.alloc.Next(ctx)
	if err != nil {
		return nil, err
	}

	if item.Number < next {
		return m.reconcile(ctx, item)
	}

	if item.Kind == types.KindPullRequest {
		return m.createPullRequest(ctx, item)
	}
	return m.createIssue(ctx, item)
}

// reconcile handles an item whose number is already taken in the destination
func (m *numberedMapper) reconcile(ctx context.Context, item *model.NumberedObject) (*itemResult, error) {
	logger := ctxlog.From(ctx)

	existing, err := m.dest.GetNumbered(ctx, item.Number)
	if err != nil {
		return nil, err
	}

	diverged := func(reason string) error {
		next, _ := m.alloc.Next(ctx)
		return goerr.Wrap(&types.SequenceDivergenceError{
			Expected: item.Number,
			Next:     next,
			Reason:   reason,
		}, "destination number is taken", goerr.V("number", item.Number))
	}

	switch {
	case existing == nil:
		return nil, diverged("number is consumed by an object that is not an issue or pull request")

	case existing.Deleted:
		return nil, diverged("number is held by a deleted issue")

	case hasMarker(existing.Body, itemMarker(item.Kind, item.Number)):
		logger.Info("Resuming item created by an earlier run", "number", item.Number, "kind", item.Kind)
		result := &itemResult{Destination: int64(item.Number), Status: types.StatusSynced}
		reviewable, err := m.hasReviewableHead(ctx, existing)
		if err != nil {
			return result, err
		}
		return result, m.finish(ctx, item, existing.State, reviewable)

	case hasMarker(existing.Body, itemMarker(types.KindPlaceholder, item.Number)):
		return m.reclaim(ctx, item)

	case existing.Title == item.Title && existing.Kind == item.Kind:
		logger.Warn("Destination already holds an unmarked item with the same title; keeping it as is",
			"number", item.Number,
			"kind", item.Kind,
			"title", item.Title,
			"url", existing.URL,
		)
		return &itemResult{
			Destination:   int64(item.Number),
			Status:        types.StatusSynced,
			Message:       "matched by title: " + existing.URL,
			TitleMatchURL: existing.URL,
		}, nil

	default:
		return nil, diverged(fmt.Sprintf("number is held by an unrelated %s %q", existing.Kind, existing.Title))
	}
}

// reclaim turns our own placeholder at the item's number into the item.
// A pull request cannot be created on an existing number and becomes an
// issue that describes it.
func (m *numberedMapper) reclaim(ctx context.Context, item *model.NumberedObject) (*itemResult, error) {
	result := &itemResult{Destination: int64(item.Number), Status: types.StatusSynced}

	var notes []string
	if item.Kind == types.KindPullRequest {
		notes = append(notes, fmt.Sprintf("This pull request is recorded as an issue: #%d was padded by an earlier run before it could be created.", item.Number))
		result.Degraded = true
		result.Message = "pull request reclaimed as issue"
	}

	body, err := m.prov.itemBody(item, notes)
	if err != nil {
		return nil, err
	}

	if err := m.dest.EditIssue(ctx, item.Number, &model.IssueRequest{
		Title:  item.Title,
		Body:   body,
		Labels: m.prov.labels(item.Labels),
		State:  "open",
	}); err != nil {
		return result, goerr.Wrap(err, "failed to reclaim placeholder", goerr.V("number", item.Number))
	}

	ctxlog.From(ctx).Info("Reclaimed placeholder", "number", item.Number, "kind", item.Kind)
	return result, m.finish(ctx, item, "open", false)
}

func (m *numberedMapper) createIssue(ctx context.Context, item *model.NumberedObject) (*itemResult, error) {
	body, err := m.prov.itemBody(item, nil)
	if err != nil {
		return nil, err
	}

	req := &model.IssueRequest{
		Title:  item.Title,
		Body:   body,
		Labels: m.prov.labels(item.Labels),
	}
	got, err := m.alloc.Create(ctx, item.Number, itemMarker(item.Kind, item.Number), func(ctx context.Context) (int, error) {
		return m.dest.CreateIssue(ctx, req)
	})
	if err != nil {
		return &itemResult{Destination: int64(got)}, err
	}

	ctxlog.From(ctx).Info("Created issue", "number", got)
	result := &itemResult{Destination: int64(got), Status: types.StatusSynced}
	return result, m.finish(ctx, item, "open", false)
}

// finish replicates children and applies the terminal state. Every step
// skips what is already present, so it can be repeated after a failure.
// reviewable is set when the destination pull request carries the source
// head, so review comments can be attached to its diff.
func (m *numberedMapper) finish(ctx context.Context, item *model.NumberedObject, destState string, reviewable bool) error {
	comments, err := m.sourceComments(ctx, item)
	if err != nil {
		return err
	}
	if err := m.syncComments(ctx, item.Number, comments, reviewable); err != nil {
		return err
	}

	if item.IsClosed() && destState != "closed" {
		reason := item.StateReason
		if item.Kind == types.KindPullRequest || reason == "reopened" {
			reason = ""
		}
		if err := m.dest.CloseIssue(ctx, item.Number, reason); err != nil {
			return goerr.Wrap(err, "failed to close item", goerr.V("number", item.Number))
		}
	}
	return nil
}

// sourceComments returns issue comments and, for pull requests, review
// comments, merged into one thread in creation order
func (m *numberedMapper) sourceComments(ctx context.Context, item *model.NumberedObject) ([]*model.Comment, error) {
	comments, err := m.src.ListComments(ctx, item.Number)
	if err != nil {
		return nil, err
	}

	if item.Kind == types.KindPullRequest {
		reviews, err := m.src.ListReviewComments(ctx, item.Number)
		if err != nil {
			return nil, err
		}
		comments = slices.Concat(comments, reviews)
		slices.SortStableFunc(comments, func(a, b *model.Comment) int {
			return a.CreatedAt.Compare(b.CreatedAt)
		})
	}

	return comments, nil
}

// hasReviewableHead reports whether obj is a pull request created on the
// source head rather than a synthetic one
func (m *numberedMapper) hasReviewableHead(ctx context.Context, obj *model.NumberedObject) (bool, error) {
	if obj.Kind != types.KindPullRequest {
		return false, nil
	}
	sha, err := m.dest.BranchSHA(ctx, syntheticBranch(obj.Number))
	if err != nil {
		return false, err
	}
	return sha == "", nil
}

func (m *numberedMapper) syncComments(ctx context.Context, number int, comments []*model.Comment, reviewable bool) error {
	if len(comments) == 0 {
		return nil
	}

	existing, err := m.dest.ListComments(ctx, number)
	if err != nil {
		return err
	}
	if reviewable {
		reviews, err := m.dest.ListReviewComments(ctx, number)
		if err != nil {
			return err
		}
		existing = slices.Concat(existing, reviews)
	}
	present := make(map[string]struct{}, len(existing))
	for _, c := range existing {
		for _, marker := range markerPattern.FindAllString(c.Body, -1) {
			present[marker] = struct{}{}
		}
	}

	created := 0
	for _, c := range comments {
		if _, ok := present[commentMarker(c)]; ok {
			continue
		}

		body, err := m.prov.commentBody(c)
		if err != nil {
			return err
		}

		if reviewable && c.Review != nil {
			posted, err := m.postReviewComment(ctx, number, c, body)
			if err != nil {
				return err
			}
			if posted {
				created++
				continue
			}
		}

		if err := m.dest.CreateComment(ctx, number, body); err != nil {
			return goerr.Wrap(err, "failed to create comment",
				goerr.V("number", number),
				goerr.V("source_comment_id", c.ID))
		}
		created++
	}

	ctxlog.From(ctx).Debug("Replicated comments", "number", number, "created", created, "total", len(comments))
	return nil
}

// postReviewComment attaches c to the destination diff. It returns false
// when the destination rejects the location, e.g. a line outside the diff
// or a commit it does not have, and the comment has to go to the thread.
func (m *numberedMapper) postReviewComment(ctx context.Context, number int, c *model.Comment, body string) (bool, error) {
	if c.Review.Path == "" || c.Review.Line == 0 || c.Review.CommitID == "" {
		return false, nil
	}

	err := m.dest.CreateReviewComment(ctx, number, c.Review, body)
	if err == nil {
		return true, nil
	}
	if types.StatusCodeOf(err) == http.StatusUnprocessableEntity {
		ctxlog.From(ctx).Warn("Review comment location rejected; posting to the thread",
			"number", number,
			"source_comment_id", c.ID,
			"path", c.Review.Path,
			"line", c.Review.Line,
		)
		return false, nil
	}
	return false, goerr.Wrap(err, "failed to create review comment",
		goerr.V("number", number),
		goerr.V("source_comment_id", c.ID))
}
