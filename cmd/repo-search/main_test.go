package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Sternrassler/repo-backfill/internal/config"
	"github.com/Sternrassler/repo-backfill/internal/testutil"
	"github.com/Sternrassler/repo-backfill/pkg/pagination"
	"github.com/Sternrassler/repo-backfill/pkg/repo"
	"github.com/gorilla/websocket"
)

// sliceFetcher serves repos in remote pages, failing while err is set.
type sliceFetcher struct {
	mu    sync.Mutex
	repos []repo.Repo
	err   error
	calls int
}

func (f *sliceFetcher) FetchPage(ctx context.Context, query string, page, perPage int) ([]repo.Repo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	start := (page - 1) * perPage
	if start >= len(f.repos) {
		return []repo.Repo{}, nil
	}
	end := start + perPage
	if end > len(f.repos) {
		end = len(f.repos)
	}
	return append([]repo.Repo(nil), f.repos[start:end]...), nil
}

func newTestApp(t *testing.T, fetcher pagination.PageFetcher) *app {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Server.MaxSessions = 2

	a, err := newApp(context.Background(), cfg, fetcher)
	if err != nil {
		t.Fatalf("newApp() error = %v", err)
	}
	t.Cleanup(func() { a.Close() })
	return a
}

func newTestServer(t *testing.T, fetcher pagination.PageFetcher) (*server, *httptest.Server) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	srv := newServer(ctx, newTestApp(t, fetcher))
	ts := httptest.NewServer(srv.routes())
	t.Cleanup(func() {
		ts.Close()
		srv.sessions.closeAll()
	})
	return srv, ts
}

func createSession(t *testing.T, baseURL, query string) sessionResponse {
	t.Helper()
	resp, err := http.Post(baseURL+"/search?q="+query, "", nil)
	if err != nil {
		t.Fatalf("POST /search error = %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("POST /search status = %d body = %s", resp.StatusCode, body)
	}

	var out sessionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode session: %v", err)
	}
	return out
}

func getPage(t *testing.T, baseURL, id string, index string) (int, pageResponse) {
	t.Helper()
	resp, err := http.Get(baseURL + "/sessions/" + id + "/pages/" + index)
	if err != nil {
		t.Fatalf("GET page error = %v", err)
	}
	defer resp.Body.Close()

	var out pageResponse
	if resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			t.Fatalf("decode page: %v", err)
		}
	}
	return resp.StatusCode, out
}

func waitSession(t *testing.T, srv *server, id string) {
	t.Helper()
	parsed, err := parseID(id)
	if err != nil {
		t.Fatalf("parse session id: %v", err)
	}
	result, ok := srv.sessions.get(parsed)
	if !ok {
		t.Fatalf("session %s not registered", id)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := result.Controller.Wait(ctx); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
}

func TestHealthEndpoint(t *testing.T) {
	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()

	healthHandler(w, req)

	resp := w.Result()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}
	if string(body) != "OK" {
		t.Errorf("Expected body 'OK', got %s", string(body))
	}
}

func TestReadyEndpoint_NoBackends(t *testing.T) {
	_, ts := newTestServer(t, &sliceFetcher{})

	resp, err := http.Get(ts.URL + "/ready")
	if err != nil {
		t.Fatalf("GET /ready error = %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	_, ts := newTestServer(t, &sliceFetcher{})
	createSession(t, ts.URL, "ui")

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics error = %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	bodyStr := string(body)
	if !strings.Contains(bodyStr, "# HELP") || !strings.Contains(bodyStr, "# TYPE") {
		t.Error("Expected Prometheus format metrics output")
	}
	if !strings.Contains(bodyStr, "search_sessions_total") {
		t.Error("Expected metrics output to contain search_sessions_total")
	}
}

func TestSearchAndPage(t *testing.T) {
	fetcher := &sliceFetcher{repos: testutil.Repos("ui", 3)}
	srv, ts := newTestServer(t, fetcher)

	session := createSession(t, ts.URL, "ui")
	if session.Query != "ui" || session.Cursor != 1 {
		t.Errorf("session = %+v", session)
	}

	status, page := getPage(t, ts.URL, session.SessionID, "0")
	if status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	if len(page.Items) != 0 {
		t.Errorf("first read returned %d items, want 0", len(page.Items))
	}

	waitSession(t, srv, session.SessionID)

	status, page = getPage(t, ts.URL, session.SessionID, "0")
	if status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	if len(page.Items) != 3 {
		t.Fatalf("second read returned %d items, want 3", len(page.Items))
	}
	if page.Items[0].Name != "ui-1" {
		t.Errorf("first item = %s, want ui-1 (most stars)", page.Items[0].Name)
	}
	waitSession(t, srv, session.SessionID)
}

func TestSearch_Validation(t *testing.T) {
	_, ts := newTestServer(t, &sliceFetcher{})

	resp, err := http.Post(ts.URL+"/search", "", nil)
	if err != nil {
		t.Fatalf("POST error = %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("missing q status = %d, want 400", resp.StatusCode)
	}
}

func TestPage_Errors(t *testing.T) {
	_, ts := newTestServer(t, &sliceFetcher{})
	session := createSession(t, ts.URL, "ui")

	tests := []struct {
		name   string
		id     string
		page   string
		status int
	}{
		{"invalid id", "not-a-uuid", "0", http.StatusBadRequest},
		{"unknown session", "6f1c0a4e-3c1b-4f55-9d6a-0b8f5d9c2a11", "0", http.StatusNotFound},
		{"negative page", session.SessionID, "-1", http.StatusBadRequest},
		{"non numeric page", session.SessionID, "two", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, _ := getPage(t, ts.URL, tt.id, tt.page)
			if status != tt.status {
				t.Errorf("status = %d, want %d", status, tt.status)
			}
		})
	}
}

func TestDeleteSession(t *testing.T) {
	srv, ts := newTestServer(t, &sliceFetcher{})
	session := createSession(t, ts.URL, "ui")

	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/sessions/"+session.SessionID, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE error = %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("status = %d, want 204", resp.StatusCode)
	}
	if srv.sessions.len() != 0 {
		t.Errorf("registry holds %d sessions, want 0", srv.sessions.len())
	}
}

func TestErrorsWebsocket(t *testing.T) {
	fetcher := &sliceFetcher{err: errors.New("rate limited")}
	srv, ts := newTestServer(t, fetcher)
	session := createSession(t, ts.URL, "ui")

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/sessions/" + session.SessionID + "/errors"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial error = %v", err)
	}
	defer conn.Close()

	getPage(t, ts.URL, session.SessionID, "0")
	waitSession(t, srv, session.SessionID)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg errorMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("ReadJSON error = %v", err)
	}
	if msg.Message != "rate limited" || msg.SessionID != session.SessionID {
		t.Errorf("message = %+v", msg)
	}
}

func TestRunSearch(t *testing.T) {
	fetcher := &sliceFetcher{repos: testutil.Repos("cli", 25)}
	a := newTestApp(t, fetcher)

	var out, errOut bytes.Buffer
	err := runSearch(context.Background(), a.coordinator, "cli", 3, 2*time.Second, &out, &errOut)
	if err != nil {
		t.Fatalf("runSearch() error = %v", err)
	}

	text := out.String()
	if !strings.Contains(text, "acme/cli-1 ") {
		t.Errorf("output missing first repo:\n%s", text)
	}
	if !strings.Contains(text, "25. acme/cli-25") {
		t.Errorf("output missing last repo:\n%s", text)
	}
	if errOut.Len() != 0 {
		t.Errorf("unexpected error output: %s", errOut.String())
	}
}

func TestRunSearch_ReportsFetchErrors(t *testing.T) {
	fetcher := &sliceFetcher{err: errors.New("rate limited")}
	a := newTestApp(t, fetcher)

	var out, errOut bytes.Buffer
	if err := runSearch(context.Background(), a.coordinator, "ui", 1, 2*time.Second, &out, &errOut); err != nil {
		t.Fatalf("runSearch() error = %v", err)
	}

	if !strings.Contains(errOut.String(), "fetch failed: rate limited") {
		t.Errorf("error output = %q", errOut.String())
	}
	if !strings.Contains(out.String(), "No repositories found") {
		t.Errorf("output = %q", out.String())
	}
}
