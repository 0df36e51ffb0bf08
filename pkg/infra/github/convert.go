package github

import (
	"github.com/google/go-github/v75/github"
	"github.com/m-mizutani/reposync/pkg/domain/model"
	"github.com/m-mizutani/reposync/pkg/domain/types"
)

func toNumbered(issue *github.Issue) *model.NumberedObject {
	kind := types.KindIssue
	if issue.IsPullRequest() {
		kind = types.KindPullRequest
	}

	labels := make([]string, 0, len(issue.Labels))
	for _, label := range issue.Labels {
		labels = append(labels, label.GetName())
	}

	return &model.NumberedObject{
		Kind:        kind,
		Number:      issue.GetNumber(),
		Title:       issue.GetTitle(),
		Body:        issue.GetBody(),
		Author:      issue.GetUser().GetLogin(),
		URL:         issue.GetHTMLURL(),
		CreatedAt:   issue.GetCreatedAt().Time,
		State:       issue.GetState(),
		StateReason: issue.GetStateReason(),
		Labels:      labels,
	}
}

func toPullRequestInfo(pr *github.PullRequest) *model.PullRequestInfo {
	return &model.PullRequestInfo{
		HeadRef:  pr.GetHead().GetRef(),
		HeadSHA:  pr.GetHead().GetSHA(),
		HeadRepo: pr.GetHead().GetRepo().GetFullName(),
		BaseRef:  pr.GetBase().GetRef(),
		BaseSHA:  pr.GetBase().GetSHA(),
		Merged:   pr.GetMerged(),
		MergedAt: pr.GetMergedAt().Time,
		Draft:    pr.GetDraft(),
	}
}

func toComment(comment *github.IssueComment) *model.Comment {
	return &model.Comment{
		ID:        comment.GetID(),
		Author:    comment.GetUser().GetLogin(),
		CreatedAt: comment.GetCreatedAt().Time,
		URL:       comment.GetHTMLURL(),
		Body:      comment.GetBody(),
	}
}

func toReviewComment(comment *github.PullRequestComment) *model.Comment {
	line := comment.GetLine()
	if line == 0 {
		line = comment.GetOriginalLine()
	}
	return &model.Comment{
		ID:        comment.GetID(),
		Author:    comment.GetUser().GetLogin(),
		CreatedAt: comment.GetCreatedAt().Time,
		URL:       comment.GetHTMLURL(),
		Body:      comment.GetBody(),
		Review: &model.ReviewLocation{
			Path:     comment.GetPath(),
			Line:     line,
			CommitID: comment.GetCommitID(),
		},
	}
}

func toLabel(label *github.Label) *model.Label {
	return &model.Label{
		Name:        label.GetName(),
		Color:       label.GetColor(),
		Description: label.GetDescription(),
	}
}

func toRelease(release *github.RepositoryRelease) *model.Release {
	assets := make([]*model.Asset, 0, len(release.Assets))
	for _, asset := range release.Assets {
		assets = append(assets, toAsset(asset))
	}

	return &model.Release{
		ID:              release.GetID(),
		TagName:         release.GetTagName(),
		TargetCommitish: release.GetTargetCommitish(),
		Name:            release.GetName(),
		Body:            release.GetBody(),
		Draft:           release.GetDraft(),
		Prerelease:      release.GetPrerelease(),
		Author:          release.GetAuthor().GetLogin(),
		URL:             release.GetHTMLURL(),
		CreatedAt:       release.GetCreatedAt().Time,
		Assets:          assets,
	}
}

func toAsset(asset *github.ReleaseAsset) *model.Asset {
	return &model.Asset{
		ID:          asset.GetID(),
		Name:        asset.GetName(),
		Label:       asset.GetLabel(),
		ContentType: asset.GetContentType(),
		Size:        int64(asset.GetSize()),
	}
}
