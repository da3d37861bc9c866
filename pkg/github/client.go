// Package github fetches repository search pages from the GitHub REST API
// with shared rate limiting and ETag caching.
package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/repo-backfill/pkg/cache"
	"github.com/Sternrassler/repo-backfill/pkg/logging"
	"github.com/Sternrassler/repo-backfill/pkg/ratelimit"
	"github.com/Sternrassler/repo-backfill/pkg/repo"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	// DefaultBaseURL is the public GitHub REST API.
	DefaultBaseURL = "https://api.github.com"

	// SearchEndpoint is the repository search path.
	SearchEndpoint = "/search/repositories"

	// SearchQualifier restricts matches to repository name and description.
	SearchQualifier = "in:name,description"

	// APIVersion is sent as X-GitHub-Api-Version.
	APIVersion = "2022-11-28"

	// maxErrorBody bounds how much of an error response is read.
	maxErrorBody = 64 << 10
)

var (
	githubRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "github_requests_total",
		Help: "Total GitHub search requests by status",
	}, []string{"status"})

	githubRequestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "github_request_duration_seconds",
		Help:    "GitHub search request duration in seconds",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
	})

	githubErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "github_errors_total",
		Help: "Total failed GitHub search fetches by class",
	}, []string{"class"})
)

// Config holds the client configuration.
type Config struct {
	// BaseURL of the REST API. Defaults to DefaultBaseURL.
	BaseURL string

	// Token is an optional personal access token. Unauthenticated search is
	// limited to 10 requests per minute.
	Token string

	// UserAgent header (required by GitHub).
	UserAgent string

	// Redis enables the response cache and the shared rate-limit state.
	// Optional.
	Redis *redis.Client

	// Timeout for a single request.
	Timeout time.Duration
}

// DefaultConfig returns a configuration for the public API without Redis.
func DefaultConfig(userAgent string) Config {
	return Config{
		BaseURL:   DefaultBaseURL,
		UserAgent: userAgent,
		Timeout:   30 * time.Second,
	}
}

// Client fetches search pages. It makes exactly one HTTP request per
// FetchPage call and never retries.
type Client struct {
	httpClient  *http.Client
	baseURL     *url.URL
	rateLimiter *ratelimit.Tracker
	cache       *cache.Manager
	config      Config
	logger      zerolog.Logger
}

// New creates a new GitHub search client.
func New(cfg Config) (*Client, error) {
	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}

	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	baseURL, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if baseURL.Scheme != "http" && baseURL.Scheme != "https" {
		return nil, fmt.Errorf("base url must be http or https (got %q)", cfg.BaseURL)
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	logger := logging.NewLogger("github-client")

	c := &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    baseURL,
		config:     cfg,
		logger:     logger,
	}
	if cfg.Redis != nil {
		c.rateLimiter = ratelimit.NewTracker(cfg.Redis, logger)
		c.cache = cache.NewManager(cfg.Redis)
	}

	return c, nil
}

// searchResponse is the GitHub search envelope.
type searchResponse struct {
	TotalCount        int         `json:"total_count"`
	IncompleteResults bool        `json:"incomplete_results"`
	Items             []repo.Repo `json:"items"`
}

// FetchPage fetches one page of repositories matching query, ordered by
// stars. Pages are 1-based. Failures are returned as *FetchError.
func (c *Client) FetchPage(ctx context.Context, query string, page, perPage int) ([]repo.Repo, error) {
	startTime := time.Now()
	defer func() {
		githubRequestDuration.Observe(time.Since(startTime).Seconds())
	}()

	c.logger.Debug().
		Str("query", query).
		Int("page", page).
		Int("per_page", perPage).
		Msg("Fetching search page")

	// Step 1: Check shared rate limit
	if c.rateLimiter != nil {
		allowed, err := c.rateLimiter.ShouldAllowRequest(ctx)
		if err != nil {
			return nil, c.fail(&FetchError{Class: ErrorClassNetwork, Message: err.Error(), Err: err})
		}
		if !allowed {
			githubRequestsTotal.WithLabelValues("rate_limited").Inc()
			return nil, c.fail(&FetchError{
				Class:   ErrorClassRateLimit,
				Message: ErrRateLimited.Error(),
				Err:     ErrRateLimited,
			})
		}
	}

	req, err := c.newSearchRequest(ctx, query, page, perPage)
	if err != nil {
		return nil, err
	}

	// Step 2: Check cache
	cacheKey := cache.Key{Endpoint: SearchEndpoint, QueryParams: req.URL.Query()}
	var cachedEntry *cache.Entry
	if c.cache != nil {
		cachedEntry, err = c.cache.Get(ctx, cacheKey)
		if err != nil && !errors.Is(err, cache.ErrCacheMiss) {
			c.logger.Warn().Err(err).Msg("Cache get error")
		}
	}

	if cachedEntry != nil && !cachedEntry.IsExpired() {
		githubRequestsTotal.WithLabelValues("cache").Inc()
		return c.decode(cachedEntry.Data)
	}

	// Step 3: Make conditional request for a stale entry
	if cachedEntry != nil && cachedEntry.CanRevalidate() {
		cache.AddConditionalHeaders(req, cachedEntry)
		cache.ConditionalRequestsSent.Inc()
		c.logger.Debug().Str("etag", cachedEntry.ETag).Msg("Making conditional request")
	}

	// Step 4: Execute the single request
	resp, err := c.httpClient.Do(req)
	if err != nil {
		githubRequestsTotal.WithLabelValues("network_error").Inc()
		c.logger.Error().Err(err).Int("page", page).Msg("HTTP request failed")
		return nil, c.fail(&FetchError{Class: ErrorClassNetwork, Message: err.Error(), Err: err})
	}
	defer resp.Body.Close()

	githubRequestsTotal.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()

	if c.rateLimiter != nil {
		if err := c.rateLimiter.UpdateFromHeaders(ctx, resp.Header); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to update rate limit from headers")
		}
	}

	// Step 5: Handle 304 Not Modified
	if resp.StatusCode == http.StatusNotModified && cachedEntry != nil {
		cache.NotModifiedResponses.Inc()
		c.logger.Debug().Int("page", page).Msg("304 Not Modified - using cache")

		refreshed, _ := cache.ResponseToEntry(resp)
		if refreshed != nil {
			if err := c.cache.Refresh(ctx, cacheKey, refreshed.Expires); err != nil {
				c.logger.Warn().Err(err).Msg("Failed to refresh cache entry")
			}
		}
		return c.decode(cachedEntry.Data)
	}

	// Step 6: Handle HTTP errors
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		class := classifyStatus(resp)
		message := errorMessage(resp)
		c.logger.Warn().
			Int("status", resp.StatusCode).
			Str("error_class", string(class)).
			Str("message", message).
			Msg("GitHub search error")
		return nil, c.fail(&FetchError{StatusCode: resp.StatusCode, Class: class, Message: message})
	}

	// Step 7: Cache and decode
	if c.cache == nil {
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, c.fail(&FetchError{Class: ErrorClassNetwork, Message: err.Error(), Err: err})
		}
		return c.decode(body)
	}

	entry, err := cache.ResponseToEntry(resp)
	if err != nil {
		return nil, c.fail(&FetchError{Class: ErrorClassNetwork, Message: err.Error(), Err: err})
	}
	if err := c.cache.Set(ctx, cacheKey, entry); err != nil {
		c.logger.Warn().Err(err).Msg("Failed to cache response")
	}
	return c.decode(entry.Data)
}

func (c *Client) newSearchRequest(ctx context.Context, query string, page, perPage int) (*http.Request, error) {
	params := url.Values{}
	params.Set("q", query+" "+SearchQualifier)
	params.Set("sort", "stars")
	params.Set("page", strconv.Itoa(page))
	params.Set("per_page", strconv.Itoa(perPage))

	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + SearchEndpoint
	u.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", APIVersion)
	if c.config.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.Token)
	}
	return req, nil
}

func (c *Client) decode(data []byte) ([]repo.Repo, error) {
	var body searchResponse
	if err := json.Unmarshal(data, &body); err != nil {
		return nil, c.fail(&FetchError{
			Class:   ErrorClassDecode,
			Message: fmt.Sprintf("decode search response: %v", err),
			Err:     err,
		})
	}
	if body.Items == nil {
		return []repo.Repo{}, nil
	}
	return body.Items, nil
}

func (c *Client) fail(err *FetchError) error {
	githubErrorsTotal.WithLabelValues(string(err.Class)).Inc()
	return err
}

// errorMessage extracts GitHub's JSON "message", falling back to the raw
// body and then the status line.
func errorMessage(resp *http.Response) string {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	var body struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(data, &body) == nil && body.Message != "" {
		return body.Message
	}
	if text := strings.TrimSpace(string(data)); text != "" {
		return text
	}
	return resp.Status
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}
