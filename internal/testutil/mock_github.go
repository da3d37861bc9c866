// Package testutil provides testing utilities for the repo-backfill module.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/Sternrassler/repo-backfill/pkg/repo"
)

// SearchPath is the GitHub repository search endpoint.
const SearchPath = "/search/repositories"

// MockResponse defines a canned response for one request.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// SearchRequest is one recorded call to the search endpoint.
type SearchRequest struct {
	Query   string
	Page    int
	PerPage int
	Sort    string
	Header  http.Header
}

// MockGitHub is a configurable mock of the GitHub search API. By default it
// serves pages from Repos, paged by the request's page and per_page.
type MockGitHub struct {
	server *httptest.Server

	mu        sync.RWMutex
	repos     []repo.Repo
	responses []MockResponse
	handler   http.HandlerFunc
	requests  []SearchRequest
}

// NewMockGitHub creates and starts a mock server.
func NewMockGitHub() *MockGitHub {
	mock := &MockGitHub{}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.record(r)

		mock.mu.Lock()
		handler := mock.handler
		var canned *MockResponse
		if len(mock.responses) > 0 {
			canned = &mock.responses[0]
			mock.responses = mock.responses[1:]
		}
		mock.mu.Unlock()

		switch {
		case canned != nil:
			writeMockResponse(w, *canned)
		case handler != nil:
			handler(w, r)
		default:
			mock.defaultHandler(w, r)
		}
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockGitHub) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockGitHub) Close() {
	m.server.Close()
}

// SetRepos sets the result set served by the default handler, already in
// star order.
func (m *MockGitHub) SetRepos(repos []repo.Repo) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.repos = repos
}

// QueueResponse makes the next request receive resp. Queued responses are
// served in order before falling back to the handler.
func (m *MockGitHub) QueueResponse(resp MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, resp)
}

// SetHandler replaces the default handler.
func (m *MockGitHub) SetHandler(handler http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handler = handler
}

// Requests returns a copy of the recorded search requests.
func (m *MockGitHub) Requests() []SearchRequest {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]SearchRequest, len(m.requests))
	copy(out, m.requests)
	return out
}

// RequestCount returns the number of requests received.
func (m *MockGitHub) RequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.requests)
}

func (m *MockGitHub) record(r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	perPage, _ := strconv.Atoi(q.Get("per_page"))

	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, SearchRequest{
		Query:   q.Get("q"),
		Page:    page,
		PerPage: perPage,
		Sort:    q.Get("sort"),
		Header:  r.Header.Clone(),
	})
}

func (m *MockGitHub) defaultHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != SearchPath {
		writeMockResponse(w, NewErrorResponse(http.StatusNotFound, "Not Found"))
		return
	}

	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	perPage, _ := strconv.Atoi(q.Get("per_page"))
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 30
	}

	m.mu.RLock()
	all := m.repos
	m.mu.RUnlock()

	start := (page - 1) * perPage
	items := []repo.Repo{}
	if start < len(all) {
		end := start + perPage
		if end > len(all) {
			end = len(all)
		}
		items = all[start:end]
	}

	writeMockResponse(w, NewSearchResponse(len(all), items))
}

func writeMockResponse(w http.ResponseWriter, resp MockResponse) {
	if resp.Delay > 0 {
		time.Sleep(resp.Delay)
	}
	for key, value := range resp.Headers {
		w.Header().Set(key, value)
	}
	w.WriteHeader(resp.StatusCode)
	if resp.Body != "" {
		w.Write([]byte(resp.Body))
	}
}

func rateLimitHeaders(remaining int) map[string]string {
	return map[string]string{
		"X-RateLimit-Limit":     "30",
		"X-RateLimit-Remaining": strconv.Itoa(remaining),
		"X-RateLimit-Reset":     strconv.FormatInt(time.Now().Add(time.Minute).Unix(), 10),
		"X-RateLimit-Resource":  "search",
		"Content-Type":          "application/json; charset=utf-8",
	}
}

// NewSearchResponse creates a 200 OK search response with an ETag.
func NewSearchResponse(total int, items []repo.Repo) MockResponse {
	body, err := json.Marshal(map[string]any{
		"total_count":        total,
		"incomplete_results": false,
		"items":              items,
	})
	if err != nil {
		panic(fmt.Sprintf("marshal mock search response: %v", err))
	}

	headers := rateLimitHeaders(29)
	headers["ETag"] = fmt.Sprintf(`W/"%x"`, len(body))
	headers["Cache-Control"] = "private, max-age=60, s-maxage=60"

	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       string(body),
		Headers:    headers,
	}
}

// NewErrorResponse creates a GitHub-style JSON error response.
func NewErrorResponse(status int, message string) MockResponse {
	body, _ := json.Marshal(map[string]string{
		"message":           message,
		"documentation_url": "https://docs.github.com/rest",
	})
	return MockResponse{
		StatusCode: status,
		Body:       string(body),
		Headers:    rateLimitHeaders(20),
	}
}

// NewRateLimitResponse creates the 403 GitHub returns when the search
// budget is exhausted.
func NewRateLimitResponse() MockResponse {
	resp := NewErrorResponse(http.StatusForbidden, "API rate limit exceeded")
	resp.Headers = rateLimitHeaders(0)
	return resp
}

// NewNotModifiedResponse creates a 304 Not Modified response.
func NewNotModifiedResponse() MockResponse {
	headers := rateLimitHeaders(29)
	headers["Cache-Control"] = "private, max-age=60, s-maxage=60"
	return MockResponse{
		StatusCode: http.StatusNotModified,
		Headers:    headers,
	}
}

// Repos builds n repositories named prefix-1..prefix-n with descending stars.
func Repos(prefix string, n int) []repo.Repo {
	repos := make([]repo.Repo, n)
	for i := range repos {
		name := fmt.Sprintf("%s-%d", prefix, i+1)
		repos[i] = repo.Repo{
			ID:       int64(1000 + i),
			Name:     name,
			FullName: "acme/" + name,
			URL:      (&url.URL{Scheme: "https", Host: "github.com", Path: "/acme/" + name}).String(),
			Stars:    10 * (n - i),
			Forks:    i,
		}
	}
	return repos
}
