package usecase_test

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"slices"
	"sync"

	"github.com/m-mizutani/reposync/pkg/domain/model"
	"github.com/m-mizutani/reposync/pkg/domain/types"
)

// fakeSource is an in-memory source repository
type fakeSource struct {
	perPage  int
	items    []*model.NumberedObject
	prs      map[int]*model.PullRequestInfo
	comments map[int][]*model.Comment
	reviews  map[int][]*model.Comment
	labels   []*model.Label
	releases []*model.Release
	tags     map[string]string
	assets   map[int64][]byte
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		perPage:  2,
		prs:      map[int]*model.PullRequestInfo{},
		comments: map[int][]*model.Comment{},
		reviews:  map[int][]*model.Comment{},
		tags:     map[string]string{},
		assets:   map[int64][]byte{},
	}
}

func (s *fakeSource) addIssue(n int, title string) *model.NumberedObject {
	obj := &model.NumberedObject{
		Kind:   types.KindIssue,
		Number: n,
		Title:  title,
		Body:   "body of " + title,
		Author: "alice",
		URL:    fmt.Sprintf("https://github.com/acme/source/issues/%d", n),
		State:  "open",
	}
	s.items = append(s.items, obj)
	return obj
}

func (s *fakeSource) addPullRequest(n int, title string, info *model.PullRequestInfo) *model.NumberedObject {
	obj := s.addIssue(n, title)
	obj.Kind = types.KindPullRequest
	obj.URL = fmt.Sprintf("https://github.com/acme/source/pull/%d", n)
	s.prs[n] = info
	return obj
}

func (s *fakeSource) addComment(n int, id int64, body string) {
	s.comments[n] = append(s.comments[n], &model.Comment{
		ID:     id,
		Author: "bob",
		URL:    fmt.Sprintf("https://github.com/acme/source/issues/%d#issuecomment-%d", n, id),
		Body:   body,
	})
}

func paginate[T any](items []T, page, perPage int) *model.Page[T] {
	last := (len(items) + perPage - 1) / perPage
	start := (page - 1) * perPage
	end := min(start+perPage, len(items))
	result := &model.Page[T]{Last: last}
	if start < len(items) {
		result.Items = items[start:end]
	}
	if page < last {
		result.Next = page + 1
	}
	return result
}

func (s *fakeSource) ListNumberedPage(ctx context.Context, page int) (*model.Page[*model.NumberedObject], error) {
	return paginate(s.items, page, s.perPage), nil
}

func (s *fakeSource) ListReleasesPage(ctx context.Context, page int) (*model.Page[*model.Release], error) {
	return paginate(s.releases, page, s.perPage), nil
}

func (s *fakeSource) GetPullRequest(ctx context.Context, number int) (*model.PullRequestInfo, error) {
	info, ok := s.prs[number]
	if !ok {
		return nil, &types.PermanentError{StatusCode: http.StatusNotFound, Message: "Not Found"}
	}
	return info, nil
}

func (s *fakeSource) ListLabels(ctx context.Context) ([]*model.Label, error) {
	return s.labels, nil
}

func (s *fakeSource) ListComments(ctx context.Context, number int) ([]*model.Comment, error) {
	return s.comments[number], nil
}

func (s *fakeSource) ListReviewComments(ctx context.Context, number int) ([]*model.Comment, error) {
	return s.reviews[number], nil
}

func (s *fakeSource) ResolveCommit(ctx context.Context, ref string) (string, error) {
	return s.tags[ref], nil
}

func (s *fakeSource) DownloadAsset(ctx context.Context, assetID int64) (io.ReadCloser, error) {
	data, ok := s.assets[assetID]
	if !ok {
		return nil, &types.PermanentError{StatusCode: http.StatusNotFound, Message: "Not Found"}
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

type upload struct {
	ReleaseID   int64
	Name        string
	ContentType string
	Content     string
}

// fakeDest is an in-memory destination with a shared numbering counter
type fakeDest struct {
	mu sync.Mutex

	highest  int
	objects  map[int]*model.NumberedObject
	comments map[int][]*model.Comment
	reviews  map[int][]*model.Comment
	labels   []*model.Label
	commits  map[string]bool
	branches map[string]string
	releases map[string]*model.Release
	uploads  []upload

	nextReleaseID int64
	nextCommentID int64
	writes        int

	// hooks return an error to inject a failure
	onCreate        func(d *fakeDest, number int) error
	onCreatePR      func(d *fakeDest, req *model.PullRequestRequest) error
	onCreateComment func(d *fakeDest, number int) error
	onClose         func(d *fakeDest, number int) error
}

func newFakeDest() *fakeDest {
	return &fakeDest{
		objects:       map[int]*model.NumberedObject{},
		comments:      map[int][]*model.Comment{},
		reviews:       map[int][]*model.Comment{},
		commits:       map[string]bool{"main-sha": true},
		branches:      map[string]string{"main": "main-sha"},
		releases:      map[string]*model.Release{},
		nextReleaseID: 1000,
	}
}

func (d *fakeDest) GetNumbered(ctx context.Context, number int) (*model.NumberedObject, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	obj, ok := d.objects[number]
	if !ok {
		return nil, nil
	}
	copied := *obj
	return &copied, nil
}

func (d *fakeDest) HighestNumber(ctx context.Context) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.highest, nil
}

// consume assigns the next number to obj
func (d *fakeDest) consume(obj *model.NumberedObject) int {
	d.highest++
	obj.Number = d.highest
	d.objects[d.highest] = obj
	return d.highest
}

func (d *fakeDest) CreateIssue(ctx context.Context, req *model.IssueRequest) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.writes++

	n := d.consume(&model.NumberedObject{
		Kind:   types.KindIssue,
		Title:  req.Title,
		Body:   req.Body,
		Labels: req.Labels,
		State:  "open",
	})
	if d.onCreate != nil {
		if err := d.onCreate(d, n); err != nil {
			return 0, err
		}
	}
	return n, nil
}

func (d *fakeDest) EditIssue(ctx context.Context, number int, req *model.IssueRequest) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.writes++

	obj, ok := d.objects[number]
	if !ok {
		return &types.PermanentError{StatusCode: http.StatusNotFound, Message: "Not Found"}
	}
	obj.Title, obj.Body, obj.Labels = req.Title, req.Body, req.Labels
	if req.State != "" {
		obj.State = req.State
		obj.StateReason = ""
	}
	return nil
}

func (d *fakeDest) CloseIssue(ctx context.Context, number int, reason string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.writes++

	if d.onClose != nil {
		if err := d.onClose(d, number); err != nil {
			return err
		}
	}
	obj, ok := d.objects[number]
	if !ok {
		return &types.PermanentError{StatusCode: http.StatusNotFound, Message: "Not Found"}
	}
	obj.State = "closed"
	obj.StateReason = reason
	return nil
}

func (d *fakeDest) CreatePullRequest(ctx context.Context, req *model.PullRequestRequest) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.writes++

	if d.onCreatePR != nil {
		if err := d.onCreatePR(d, req); err != nil {
			return 0, err
		}
	}
	if _, ok := d.branches[req.Head]; !ok {
		return 0, &types.PermanentError{StatusCode: http.StatusUnprocessableEntity, Message: "Validation Failed; head invalid"}
	}
	if _, ok := d.branches[req.Base]; !ok {
		return 0, &types.PermanentError{StatusCode: http.StatusUnprocessableEntity, Message: "Validation Failed; base invalid"}
	}

	n := d.consume(&model.NumberedObject{
		Kind:        types.KindPullRequest,
		Title:       req.Title,
		Body:        req.Body,
		State:       "open",
		PullRequest: &model.PullRequestInfo{HeadRef: req.Head, BaseRef: req.Base, Draft: req.Draft},
	})
	if d.onCreate != nil {
		if err := d.onCreate(d, n); err != nil {
			return 0, err
		}
	}
	return n, nil
}

func (d *fakeDest) ListComments(ctx context.Context, number int) ([]*model.Comment, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.comments[number]), nil
}

func (d *fakeDest) CreateComment(ctx context.Context, number int, body string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.writes++

	if d.onCreateComment != nil {
		if err := d.onCreateComment(d, number); err != nil {
			return err
		}
	}
	d.nextCommentID++
	d.comments[number] = append(d.comments[number], &model.Comment{ID: d.nextCommentID, Body: body})
	return nil
}

func (d *fakeDest) ListReviewComments(ctx context.Context, number int) ([]*model.Comment, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.reviews[number]), nil
}

func (d *fakeDest) CreateReviewComment(ctx context.Context, number int, loc *model.ReviewLocation, body string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.writes++

	if !d.commits[loc.CommitID] {
		return &types.PermanentError{StatusCode: http.StatusUnprocessableEntity, Message: "Validation Failed; commit_id is not part of the pull request"}
	}
	d.nextCommentID++
	review := *loc
	d.reviews[number] = append(d.reviews[number], &model.Comment{ID: d.nextCommentID, Body: body, Review: &review})
	return nil
}

func (d *fakeDest) ListLabels(ctx context.Context) ([]*model.Label, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.labels), nil
}

func (d *fakeDest) CreateLabel(ctx context.Context, label *model.Label) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.writes++
	d.labels = append(d.labels, label)
	return nil
}

func (d *fakeDest) CommitExists(ctx context.Context, sha string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.commits[sha], nil
}

func (d *fakeDest) BranchSHA(ctx context.Context, name string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.branches[name], nil
}

func (d *fakeDest) DefaultBranch(ctx context.Context) (string, error) {
	return "main", nil
}

func (d *fakeDest) CreateBranch(ctx context.Context, name, sha string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.writes++

	if _, ok := d.branches[name]; ok {
		return &types.PermanentError{StatusCode: http.StatusUnprocessableEntity, Message: "Reference already exists"}
	}
	if !d.commits[sha] {
		return &types.PermanentError{StatusCode: http.StatusUnprocessableEntity, Message: "Object does not exist"}
	}
	d.branches[name] = sha
	return nil
}

func (d *fakeDest) CreateEmptyCommit(ctx context.Context, parentSHA, message string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.writes++

	sha := fmt.Sprintf("empty-on-%s-%d", parentSHA, len(d.commits))
	d.commits[sha] = true
	return sha, nil
}

func (d *fakeDest) GetReleaseByTag(ctx context.Context, tag string) (*model.Release, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	r, ok := d.releases[tag]
	if !ok {
		return nil, nil
	}
	copied := *r
	copied.Assets = slices.Clone(r.Assets)
	return &copied, nil
}

func (d *fakeDest) CreateRelease(ctx context.Context, release *model.Release) (*model.Release, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.writes++

	d.nextReleaseID++
	created := *release
	created.ID = d.nextReleaseID
	created.Assets = nil
	d.releases[release.TagName] = &created
	copied := created
	return &copied, nil
}

func (d *fakeDest) UploadAsset(ctx context.Context, releaseID int64, name, contentType string, file *os.File) error {
	content, err := io.ReadAll(file)
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.writes++

	d.uploads = append(d.uploads, upload{ReleaseID: releaseID, Name: name, ContentType: contentType, Content: string(content)})
	for _, r := range d.releases {
		if r.ID == releaseID {
			r.Assets = append(r.Assets, &model.Asset{Name: name, ContentType: contentType, Size: int64(len(content))})
		}
	}
	return nil
}

func (d *fakeDest) writeCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.writes
}

func (d *fakeDest) object(n int) *model.NumberedObject {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.objects[n]
}
