package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"

	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/reposync/pkg/domain/model"
	"github.com/m-mizutani/reposync/pkg/domain/types"
)

func headBranch(number int) string      { return fmt.Sprintf("reposync/pr-%d", number) }
func baseBranch(number int) string      { return fmt.Sprintf("reposync/pr-%d-base", number) }
func syntheticBranch(number int) string { return fmt.Sprintf("reposync/pr-%d-synthetic", number) }

// isNoCommitsBetween reports whether the destination rejected a pull
// request because head has nothing on top of base
func isNoCommitsBetween(err error) bool {
	var perm *types.PermanentError
	if !errors.As(err, &perm) || perm.StatusCode != http.StatusUnprocessableEntity {
		return false
	}
	return strings.Contains(strings.ToLower(perm.Message), "no commits between")
}

func (m *numberedMapper) createPullRequest(ctx context.Context, item *model.NumberedObject) (*itemResult, error) {
	logger := ctxlog.From(ctx)

	info, err := m.src.GetPullRequest(ctx, item.Number)
	if err != nil {
		return nil, err
	}
	pr := *item
	pr.PullRequest = info

	base, err := m.resolveBase(ctx, &pr)
	if err != nil {
		return nil, err
	}

	var notes []string
	if info.Merged {
		notes = append(notes, fmt.Sprintf("Merged into %s on %s in the source repository. Merge state cannot be reproduced, so this pull request is closed instead.", info.BaseRef, timestamp(info.MergedAt)))
	}

	head := ""
	if info.HeadSHA != "" {
		exists, err := m.dest.CommitExists(ctx, info.HeadSHA)
		if err != nil {
			return nil, err
		}
		if exists {
			head = headBranch(item.Number)
			if err := m.ensureBranch(ctx, head, info.HeadSHA); err != nil {
				return nil, err
			}
		}
	}

	result := &itemResult{Status: types.StatusSynced}

	create := func(ctx context.Context) (int, error) {
		if head != "" {
			n, err := m.openPullRequest(ctx, &pr, head, base, notes)
			if err == nil || !isNoCommitsBetween(err) {
				return n, err
			}
			logger.Warn("Head has no commits on top of base", "number", item.Number, "head", head, "base", base)
		}

		unresolved := &types.UnresolvableReferenceError{Number: item.Number, Ref: info.HeadRef, SHA: info.HeadSHA}
		logger.Warn("Recreating pull request with a synthetic head", "number", item.Number, "reason", unresolved.Error())

		synthetic, err := m.syntheticHead(ctx, &pr, base)
		if err != nil {
			return 0, err
		}
		result.Degraded = true
		result.Message = unresolved.Error()

		degradedNotes := append(slices.Clone(notes), fmt.Sprintf("The source head %s (%s) is not available in this repository. This pull request points to an empty placeholder commit instead.", info.HeadRef, shortSHA(info.HeadSHA)))
		return m.openPullRequest(ctx, &pr, synthetic, base, degradedNotes)
	}

	got, err := m.alloc.Create(ctx, item.Number, itemMarker(item.Kind, item.Number), create)
	result.Destination = int64(got)
	if err != nil {
		return result, err
	}

	logger.Info("Created pull request", "number", got, "degraded", result.Degraded)
	return result, m.finish(ctx, &pr, "open", !result.Degraded)
}

func (m *numberedMapper) openPullRequest(ctx context.Context, pr *model.NumberedObject, head, base string, notes []string) (int, error) {
	body, err := m.prov.itemBody(pr, notes)
	if err != nil {
		return 0, err
	}
	return m.dest.CreatePullRequest(ctx, &model.PullRequestRequest{
		Title: pr.Title,
		Body:  body,
		Head:  head,
		Base:  base,
		Draft: pr.PullRequest.Draft,
	})
}

// resolveBase picks the destination base branch. Closed pull requests are
// pinned to their source base commit so their diff stays meaningful after
// the base branch moved on.
func (m *numberedMapper) resolveBase(ctx context.Context, pr *model.NumberedObject) (string, error) {
	info := pr.PullRequest

	if pr.IsClosed() && info.BaseSHA != "" {
		exists, err := m.dest.CommitExists(ctx, info.BaseSHA)
		if err != nil {
			return "", err
		}
		if exists {
			name := baseBranch(pr.Number)
			if err := m.ensureBranch(ctx, name, info.BaseSHA); err != nil {
				return "", err
			}
			return name, nil
		}
	}

	if info.BaseRef != "" {
		sha, err := m.dest.BranchSHA(ctx, info.BaseRef)
		if err != nil {
			return "", err
		}
		if sha != "" {
			return info.BaseRef, nil
		}
	}

	return m.dest.DefaultBranch(ctx)
}

// syntheticHead creates a branch holding one empty commit on top of base
func (m *numberedMapper) syntheticHead(ctx context.Context, pr *model.NumberedObject, base string) (string, error) {
	name := syntheticBranch(pr.Number)

	sha, err := m.dest.BranchSHA(ctx, name)
	if err != nil {
		return "", err
	}
	if sha != "" {
		return name, nil
	}

	baseSHA, err := m.dest.BranchSHA(ctx, base)
	if err != nil {
		return "", err
	}
	if baseSHA == "" {
		return "", goerr.New("base branch does not exist in destination", goerr.V("number", pr.Number), goerr.V("base", base))
	}

	info := pr.PullRequest
	message := fmt.Sprintf("Placeholder head for pull request #%d\n\nSource head %s (%s) is not available in this repository.", pr.Number, info.HeadRef, info.HeadSHA)
	commit, err := m.dest.CreateEmptyCommit(ctx, baseSHA, message)
	if err != nil {
		return "", err
	}
	if err := m.dest.CreateBranch(ctx, name, commit); err != nil {
		return "", err
	}
	return name, nil
}

// ensureBranch creates name at sha unless the branch already exists
func (m *numberedMapper) ensureBranch(ctx context.Context, name, sha string) error {
	current, err := m.dest.BranchSHA(ctx, name)
	if err != nil {
		return err
	}
	if current == "" {
		return m.dest.CreateBranch(ctx, name, sha)
	}
	if current != sha {
		ctxlog.From(ctx).Warn("Branch exists at a different commit; reusing it", "branch", name, "current", current, "want", sha)
	}
	return nil
}

func shortSHA(sha string) string {
	if len(sha) > 12 {
		return sha[:12]
	}
	return sha
}
