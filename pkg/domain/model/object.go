package model

import (
	"time"

	"github.com/m-mizutani/reposync/pkg/domain/types"
)

// NumberedObject is a snapshot of an issue or pull request. Objects
// fetched from the source are read-only for the whole pass.
type NumberedObject struct {
	Kind        types.ObjectKind
	Number      int
	Title       string
	Body        string
	Author      string
	URL         string
	CreatedAt   time.Time
	State       string // open or closed
	StateReason string // completed, not_planned, reopened
	Labels      []string

	// Deleted marks a number held by a deleted issue (410 Gone)
	Deleted bool

	// PullRequest is set only for KindPullRequest
	PullRequest *PullRequestInfo

	// Comments are loaded by the mapper, in creation order
	Comments []*Comment
}

// IsClosed reports whether the object should end up closed
func (x *NumberedObject) IsClosed() bool {
	return x.State == "closed"
}

// PullRequestInfo holds pull-request-only fields
type PullRequestInfo struct {
	HeadRef  string
	HeadSHA  string
	HeadRepo string // full name of the head repository, empty if the fork is gone
	BaseRef  string
	BaseSHA  string
	Merged   bool
	MergedAt time.Time
	Draft    bool
}

// Comment is an issue comment or a flattened review comment
type Comment struct {
	ID        int64
	Author    string
	CreatedAt time.Time
	URL       string
	Body      string

	// Review is set for pull request review comments
	Review *ReviewLocation
}

// ReviewLocation is where a review comment was attached in the source diff
type ReviewLocation struct {
	Path     string
	Line     int
	CommitID string
}

// Label is a repository label
type Label struct {
	Name        string
	Color       string
	Description string
}

// IssueRequest holds the fields of a numbered creation or edit
type IssueRequest struct {
	Title  string
	Body   string
	Labels []string
	// State is applied by edits only; empty leaves the state unchanged
	State string
}

// PullRequestRequest holds the fields for creating a pull request
type PullRequestRequest struct {
	Title string
	Body  string
	Head  string
	Base  string
	Draft bool
}
