//go:build integration

package integration

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/Sternrassler/repo-backfill/internal/testutil"
	"github.com/Sternrassler/repo-backfill/pkg/cache"
	"github.com/Sternrassler/repo-backfill/pkg/github"
	"github.com/Sternrassler/repo-backfill/pkg/search"
	"github.com/Sternrassler/repo-backfill/pkg/store"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func newGitHubClient(t *testing.T, mock *testutil.MockGitHub, redisClient *redis.Client) *github.Client {
	t.Helper()

	cfg := github.DefaultConfig("repo-search-integration/1.0")
	cfg.BaseURL = mock.URL()
	cfg.Redis = redisClient

	client, err := github.New(cfg)
	if err != nil {
		t.Fatalf("github.New() error = %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func settle(t *testing.T, r *search.Result) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.Controller.Wait(ctx); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
}

// TestFullBackfillFlow drives a session end to end, from an empty Postgres
// store through the GitHub mock and the sequential writer to local reads.
func TestFullBackfillFlow(t *testing.T) {
	db, cleanupDB := setupPostgres(t)
	defer cleanupDB()
	redisClient, cleanupRedis := setupRedis(t)
	defer cleanupRedis()

	mock := testutil.NewMockGitHub()
	defer mock.Close()
	mock.SetRepos(testutil.Repos("ui", 70))

	pg := store.NewPostgresStore(db, zerolog.Nop())
	writer := store.NewWriter(pg, 0, zerolog.Nop())
	defer writer.Close()

	coord := search.NewCoordinator(pg, writer, newGitHubClient(t, mock, redisClient), search.DefaultConfig())
	ctx := context.Background()

	r := coord.Search(ctx, "ui")

	page, err := r.View.Page(ctx, 0)
	if err != nil {
		t.Fatalf("Page(0) error = %v", err)
	}
	if len(page.Items) != 0 {
		t.Fatalf("empty store returned %d items", len(page.Items))
	}
	settle(t, r)

	reqs := mock.Requests()
	if len(reqs) != 1 || reqs[0].Page != 1 || reqs[0].PerPage != 50 {
		t.Fatalf("requests = %+v, want one fetch of page 1 size 50", reqs)
	}

	page, err = r.View.Page(ctx, 0)
	if err != nil {
		t.Fatalf("Page(0) error = %v", err)
	}
	if len(page.Items) != 20 || !page.HasMore || page.Items[0].Name != "ui-1" {
		t.Fatalf("page 0 = %d items, has_more %v", len(page.Items), page.HasMore)
	}

	// Page 2 holds rows 40..49, the last stored ones.
	page, err = r.View.Page(ctx, 2)
	if err != nil {
		t.Fatalf("Page(2) error = %v", err)
	}
	if len(page.Items) != 10 {
		t.Fatalf("page 2 = %d items, want 10", len(page.Items))
	}
	settle(t, r)

	if r.Session.Cursor() != 3 {
		t.Errorf("Cursor() = %d, want 3", r.Session.Cursor())
	}
	count, err := r.View.Count(ctx)
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if count != 70 {
		t.Errorf("Count() = %d, want 70", count)
	}
}

// TestRateLimitedFetchRetriesSamePage checks that a GitHub rate limit
// reaches the error stream and that the next signal refetches the page.
func TestRateLimitedFetchRetriesSamePage(t *testing.T) {
	mock := testutil.NewMockGitHub()
	defer mock.Close()
	mock.SetRepos(testutil.Repos("ui", 3))
	mock.QueueResponse(testutil.NewErrorResponse(http.StatusForbidden, "rate limited"))

	mem := store.NewMemoryStore()
	writer := store.NewWriter(mem, 0, zerolog.Nop())
	defer writer.Close()

	coord := search.NewCoordinator(mem, writer, newGitHubClient(t, mock, nil), search.DefaultConfig())
	ctx := context.Background()

	r := coord.Search(ctx, "ui")
	r.View.Page(ctx, 0)
	settle(t, r)

	messages := r.Errors.Messages()
	if len(messages) != 1 || messages[0] != "rate limited (HTTP 403)" {
		t.Fatalf("errors = %v", messages)
	}
	if r.Session.Cursor() != 1 {
		t.Errorf("Cursor() = %d, want 1", r.Session.Cursor())
	}

	r.View.Page(ctx, 0)
	settle(t, r)

	reqs := mock.Requests()
	if len(reqs) != 2 || reqs[1].Page != 1 {
		t.Fatalf("requests = %+v, want retry of page 1", reqs)
	}
	if mem.Len() != 3 {
		t.Errorf("stored %d repos, want 3", mem.Len())
	}
}

func TestCacheHitAndNotModified(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	mock := testutil.NewMockGitHub()
	defer mock.Close()
	mock.SetRepos(testutil.Repos("ui", 3))

	client := newGitHubClient(t, mock, redisClient)
	ctx := context.Background()

	if _, err := client.FetchPage(ctx, "ui", 1, 50); err != nil {
		t.Fatalf("first FetchPage() error = %v", err)
	}
	if _, err := client.FetchPage(ctx, "ui", 1, 50); err != nil {
		t.Fatalf("cached FetchPage() error = %v", err)
	}
	if mock.RequestCount() != 1 {
		t.Fatalf("requests = %d, want 1 (cache hit)", mock.RequestCount())
	}

	// Force the entry stale so the next call revalidates.
	keys, err := redisClient.Keys(ctx, "github:*"+"/search/repositories"+"*").Result()
	if err != nil || len(keys) != 1 {
		t.Fatalf("cache keys = %v, err %v", keys, err)
	}
	manager := cache.NewManager(redisClient)
	key := cache.Key{Endpoint: github.SearchEndpoint, QueryParams: map[string][]string{
		"q": {"ui " + github.SearchQualifier}, "sort": {"stars"}, "page": {"1"}, "per_page": {"50"},
	}}
	if err := manager.Refresh(ctx, key, time.Now().Add(-time.Second)); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}

	mock.QueueResponse(testutil.NewNotModifiedResponse())
	repos, err := client.FetchPage(ctx, "ui", 1, 50)
	if err != nil {
		t.Fatalf("revalidated FetchPage() error = %v", err)
	}
	if len(repos) != 3 {
		t.Errorf("got %d repos from revalidated cache, want 3", len(repos))
	}

	reqs := mock.Requests()
	if len(reqs) != 2 || reqs[1].Header.Get("If-None-Match") == "" {
		t.Errorf("second request should be conditional, got %+v", reqs)
	}
}

func TestRateLimitBlocksBeforeRequest(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	mock := testutil.NewMockGitHub()
	defer mock.Close()
	mock.QueueResponse(testutil.NewRateLimitResponse())

	client := newGitHubClient(t, mock, redisClient)
	ctx := context.Background()

	client.FetchPage(ctx, "ui", 1, 50)
	_, err := client.FetchPage(ctx, "ui", 1, 50)
	if !errors.Is(err, github.ErrRateLimited) {
		t.Fatalf("error = %v, want ErrRateLimited", err)
	}
	if mock.RequestCount() != 1 {
		t.Errorf("requests = %d, want 1", mock.RequestCount())
	}
}
