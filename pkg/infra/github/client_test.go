package github_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/reposync/pkg/domain/model"
	"github.com/m-mizutani/reposync/pkg/domain/types"
	githubinfra "github.com/m-mizutani/reposync/pkg/infra/github"
)

var testRepo = types.RepoRef{Owner: "acme", Name: "widgets"}

func newTestClient(t *testing.T, handler http.Handler, opts ...githubinfra.Option) *githubinfra.Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	opts = append([]githubinfra.Option{
		githubinfra.WithBaseURL(server.URL),
		githubinfra.WithToken("test-token"),
		githubinfra.WithRetry(3, time.Millisecond),
		githubinfra.WithDiscussions(false),
	}, opts...)

	client, err := githubinfra.NewClient(testRepo, opts...)
	gt.NoError(t, err)
	return client
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	fmt.Fprint(w, body)
}

func TestNewClient_CredentialValidation(t *testing.T) {
	t.Run("token and app are exclusive", func(t *testing.T) {
		_, err := githubinfra.NewClient(testRepo,
			githubinfra.WithToken("x"),
			githubinfra.WithApp(1, 2, []byte("key")),
		)
		gt.Error(t, err)
	})

	t.Run("app requires all fields", func(t *testing.T) {
		_, err := githubinfra.NewClient(testRepo, githubinfra.WithApp(1, 0, []byte("key")))
		gt.Error(t, err)
	})

	t.Run("token only", func(t *testing.T) {
		client, err := githubinfra.NewClient(testRepo, githubinfra.WithToken("x"))
		gt.NoError(t, err)
		gt.Value(t, client.Repo()).Equal(testRepo)
	})
}

func TestClient_ListNumberedPage(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v3/repos/acme/widgets/issues", func(w http.ResponseWriter, r *http.Request) {
		gt.String(t, r.URL.Query().Get("direction")).Equal("asc")
		gt.String(t, r.URL.Query().Get("state")).Equal("all")
		gt.String(t, r.Header.Get("Authorization")).Equal("Bearer test-token")

		w.Header().Set("Link", fmt.Sprintf(`<http://%s/api/v3/repos/acme/widgets/issues?page=2>; rel="next", <http://%s/api/v3/repos/acme/widgets/issues?page=3>; rel="last"`, r.Host, r.Host))
		writeJSON(w, http.StatusOK, `[
			{"number": 1, "title": "bug", "state": "closed", "state_reason": "completed", "user": {"login": "alice"}, "labels": [{"name": "bug"}]},
			{"number": 2, "title": "fix", "state": "open", "user": {"login": "bob"}, "pull_request": {"url": "https://example.com/pulls/2"}}
		]`)
	})

	client := newTestClient(t, mux)
	page, err := client.ListNumberedPage(context.Background(), 1)
	gt.NoError(t, err)
	gt.A(t, page.Items).Length(2)
	gt.Number(t, page.Next).Equal(2)
	gt.Number(t, page.Last).Equal(3)

	gt.Value(t, page.Items[0].Kind).Equal(types.KindIssue)
	gt.Value(t, page.Items[0].Author).Equal("alice")
	gt.Value(t, page.Items[0].Labels).Equal([]string{"bug"})
	gt.True(t, page.Items[0].IsClosed())
	gt.Value(t, page.Items[1].Kind).Equal(types.KindPullRequest)
}

func TestClient_ReadRetriesTransientFailure(t *testing.T) {
	var attempts atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v3/repos/acme/widgets/issues/7", func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			writeJSON(w, http.StatusBadGateway, `{"message": "bad gateway"}`)
			return
		}
		writeJSON(w, http.StatusOK, `{"number": 7, "title": "seven", "state": "open"}`)
	})

	client := newTestClient(t, mux)
	obj, err := client.GetNumbered(context.Background(), 7)
	gt.NoError(t, err)
	gt.Value(t, obj).NotNil()
	gt.Value(t, obj.Title).Equal("seven")
	gt.Number(t, attempts.Load()).Equal(3)
}

func TestClient_ReadGivesUpAfterRetryBudget(t *testing.T) {
	var attempts atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v3/repos/acme/widgets/issues/7", func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		writeJSON(w, http.StatusServiceUnavailable, `{"message": "unavailable"}`)
	})

	client := newTestClient(t, mux)
	_, err := client.GetNumbered(context.Background(), 7)
	gt.Error(t, err)

	var tr *types.TransientError
	gt.True(t, errors.As(err, &tr))
	gt.Number(t, tr.StatusCode).Equal(http.StatusServiceUnavailable)
	// first attempt plus three retries
	gt.Number(t, attempts.Load()).Equal(4)
}

func TestClient_WriteDoesNotRetryTransientFailure(t *testing.T) {
	var attempts atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v3/repos/acme/widgets/issues", func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		writeJSON(w, http.StatusBadGateway, `{"message": "bad gateway"}`)
	})

	client := newTestClient(t, mux)
	_, err := client.CreateIssue(context.Background(), &model.IssueRequest{Title: "t", Body: "b"})
	gt.Error(t, err)
	gt.True(t, types.IsRetryable(err))
	gt.Number(t, attempts.Load()).Equal(1)
}

func TestClient_WriteRetriesRateLimit(t *testing.T) {
	var attempts atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v3/repos/acme/widgets/issues", func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) == 1 {
			w.Header().Set("Retry-After", "0")
			writeJSON(w, http.StatusTooManyRequests, `{"message": "slow down"}`)
			return
		}
		writeJSON(w, http.StatusCreated, `{"number": 12}`)
	})

	client := newTestClient(t, mux)
	number, err := client.CreateIssue(context.Background(), &model.IssueRequest{Title: "t", Body: "b"})
	gt.NoError(t, err)
	gt.Number(t, number).Equal(12)
	gt.Number(t, attempts.Load()).Equal(2)
}

func TestClient_RateLimitBeyondMaxWaitIsNotRetried(t *testing.T) {
	var attempts atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v3/repos/acme/widgets/issues/1", func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.Header().Set("Retry-After", "3600")
		writeJSON(w, http.StatusTooManyRequests, `{"message": "slow down"}`)
	})

	client := newTestClient(t, mux, githubinfra.WithMaxRateLimitWait(time.Minute))
	_, err := client.GetNumbered(context.Background(), 1)
	gt.Error(t, err)

	var rl *types.RateLimitedError
	gt.True(t, errors.As(err, &rl))
	gt.Value(t, rl.RetryAfter).Equal(time.Hour)
	gt.Number(t, attempts.Load()).Equal(1)
}

func TestClient_PermanentFailureIsClassified(t *testing.T) {
	var attempts atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v3/repos/acme/widgets/pulls", func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		writeJSON(w, http.StatusUnprocessableEntity, `{"message": "Validation Failed", "errors": [{"resource": "PullRequest", "code": "custom", "message": "No commits between main and feature"}]}`)
	})

	client := newTestClient(t, mux)
	_, err := client.CreatePullRequest(context.Background(), &model.PullRequestRequest{Title: "t", Head: "feature", Base: "main"})
	gt.Error(t, err)

	var perm *types.PermanentError
	gt.True(t, errors.As(err, &perm))
	gt.Number(t, perm.StatusCode).Equal(http.StatusUnprocessableEntity)
	gt.String(t, perm.Message).Contains("No commits between")
	gt.Number(t, attempts.Load()).Equal(1)
}

func TestClient_CreateReviewComment(t *testing.T) {
	mux := http.NewServeMux()
	var got map[string]any
	mux.HandleFunc("POST /api/v3/repos/acme/widgets/pulls/4/comments", func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			writeJSON(w, http.StatusBadRequest, `{"message":"bad body"}`)
			return
		}
		if got["path"] == "gone.go" {
			writeJSON(w, http.StatusUnprocessableEntity, `{"message":"Validation Failed","errors":[{"field":"path"}]}`)
			return
		}
		writeJSON(w, http.StatusCreated, `{"id":1}`)
	})
	client := newTestClient(t, mux)
	ctx := context.Background()

	loc := &model.ReviewLocation{Path: "main.go", Line: 12, CommitID: "abc"}
	gt.NoError(t, client.CreateReviewComment(ctx, 4, loc, "nit"))
	gt.Value(t, got["path"]).Equal("main.go")
	gt.Value(t, got["line"]).Equal(float64(12))
	gt.Value(t, got["commit_id"]).Equal("abc")
	gt.Value(t, got["side"]).Equal("RIGHT")
	gt.Value(t, got["body"]).Equal("nit")

	err := client.CreateReviewComment(ctx, 4, &model.ReviewLocation{Path: "gone.go", Line: 1, CommitID: "abc"}, "nit")
	gt.Error(t, err)
	gt.Number(t, types.StatusCodeOf(err)).Equal(http.StatusUnprocessableEntity)
}

func TestClient_GetNumbered(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v3/repos/acme/widgets/issues/{number}", func(w http.ResponseWriter, r *http.Request) {
		switch r.PathValue("number") {
		case "1":
			writeJSON(w, http.StatusOK, `{"number": 1, "title": "one", "state": "open"}`)
		case "2":
			writeJSON(w, http.StatusGone, `{"message": "This issue was deleted"}`)
		default:
			writeJSON(w, http.StatusNotFound, `{"message": "Not Found"}`)
		}
	})
	client := newTestClient(t, mux)
	ctx := context.Background()

	t.Run("existing", func(t *testing.T) {
		obj, err := client.GetNumbered(ctx, 1)
		gt.NoError(t, err)
		gt.Value(t, obj.Title).Equal("one")
		gt.False(t, obj.Deleted)
	})

	t.Run("deleted", func(t *testing.T) {
		obj, err := client.GetNumbered(ctx, 2)
		gt.NoError(t, err)
		gt.Value(t, obj).NotNil()
		gt.True(t, obj.Deleted)
	})

	t.Run("absent", func(t *testing.T) {
		obj, err := client.GetNumbered(ctx, 3)
		gt.NoError(t, err)
		gt.Value(t, obj).Nil()
	})
}

func TestClient_HighestNumber(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v3/repos/acme/widgets/issues", func(w http.ResponseWriter, r *http.Request) {
		gt.String(t, r.URL.Query().Get("direction")).Equal("desc")
		writeJSON(w, http.StatusOK, `[{"number": 5}]`)
	})
	mux.HandleFunc("GET /api/v3/repos/acme/widgets/issues/{number}", func(w http.ResponseWriter, r *http.Request) {
		n, _ := strconv.Atoi(r.PathValue("number"))
		if n <= 7 {
			writeJSON(w, http.StatusGone, `{"message": "This issue was deleted"}`)
			return
		}
		writeJSON(w, http.StatusNotFound, `{"message": "Not Found"}`)
	})

	t.Run("probes past deleted issues", func(t *testing.T) {
		client := newTestClient(t, mux)
		n, err := client.HighestNumber(context.Background())
		gt.NoError(t, err)
		gt.Number(t, n).Equal(7)
	})

	t.Run("includes discussions", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("GET /api/v3/repos/acme/widgets/issues", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, `[{"number": 3}]`)
		})
		mux.HandleFunc("GET /api/v3/repos/acme/widgets/issues/{number}", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusNotFound, `{"message": "Not Found"}`)
		})
		mux.HandleFunc("POST /api/graphql", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, `{"data": {"repository": {"discussions": {"nodes": [{"number": 9}]}}}}`)
		})

		client := newTestClient(t, mux, githubinfra.WithDiscussions(true))
		n, err := client.HighestNumber(context.Background())
		gt.NoError(t, err)
		gt.Number(t, n).Equal(9)
	})

	t.Run("empty repository", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("GET /api/v3/repos/acme/widgets/issues", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, `[]`)
		})
		mux.HandleFunc("GET /api/v3/repos/acme/widgets/issues/{number}", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusNotFound, `{"message": "Not Found"}`)
		})

		client := newTestClient(t, mux)
		n, err := client.HighestNumber(context.Background())
		gt.NoError(t, err)
		gt.Number(t, n).Equal(0)
	})
}

func TestClient_CommitExists(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v3/repos/acme/widgets/git/commits/{sha}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("sha") == "abc" {
			writeJSON(w, http.StatusOK, `{"sha": "abc", "tree": {"sha": "tree1"}}`)
			return
		}
		writeJSON(w, http.StatusNotFound, `{"message": "Not Found"}`)
	})
	client := newTestClient(t, mux)

	ok, err := client.CommitExists(context.Background(), "abc")
	gt.NoError(t, err)
	gt.True(t, ok)

	ok, err = client.CommitExists(context.Background(), "def")
	gt.NoError(t, err)
	gt.False(t, ok)
}

func TestClient_GetReleaseByTag(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v3/repos/acme/widgets/releases/tags/{tag}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("tag") == "v1.0.0" {
			writeJSON(w, http.StatusOK, `{"id": 10, "tag_name": "v1.0.0", "assets": [{"id": 1, "name": "a.tar.gz", "size": 42}]}`)
			return
		}
		writeJSON(w, http.StatusNotFound, `{"message": "Not Found"}`)
	})
	client := newTestClient(t, mux)

	release, err := client.GetReleaseByTag(context.Background(), "v1.0.0")
	gt.NoError(t, err)
	gt.Number(t, release.ID).Equal(10)
	gt.A(t, release.Assets).Length(1)
	gt.Number(t, release.Assets[0].Size).Equal(42)

	release, err = client.GetReleaseByTag(context.Background(), "v2.0.0")
	gt.NoError(t, err)
	gt.Value(t, release).Nil()
}

func TestClient_WithRealAPI(t *testing.T) {
	token := os.Getenv("TEST_GITHUB_TOKEN")
	repo := os.Getenv("TEST_GITHUB_REPO")
	if token == "" || repo == "" {
		t.Skip("TEST_GITHUB_TOKEN and TEST_GITHUB_REPO are not set")
	}

	ref, err := types.ParseRepoRef(repo)
	gt.NoError(t, err)

	client, err := githubinfra.NewClient(ref, githubinfra.WithToken(token))
	gt.NoError(t, err)

	n, err := client.HighestNumber(context.Background())
	gt.NoError(t, err)
	t.Log("highest number:", n)

	labels, err := client.ListLabels(context.Background())
	gt.NoError(t, err)
	t.Log("labels:", len(labels))
}
