package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Sort selects the provider-side ordering of search results.
type Sort string

const (
	SortRelevance  Sort = "relevance"
	SortPopularity Sort = "viewCount"
	SortRecency    Sort = "date"
)

// ErrQuotaExceeded is the typed signal for the provider's distinguished
// quota-exceeded condition. It is never retried.
var ErrQuotaExceeded = errors.New("provider quota exceeded")

// Item is a single search result.
type Item struct {
	ID           string
	Title        string
	Description  string
	ChannelTitle string
	PublishedAt  time.Time
}

// Page is one page of search results. An empty NextPageToken means the
// query's continuation is exhausted.
type Page struct {
	Items         []Item
	NextPageToken string
}

// Details carries the per-video fields fetched separately from search.
type Details struct {
	DurationSeconds int
	ViewCount       int64
	LikeCount       int64
}

// Searcher defines the provider operations the pipeline consumes.
type Searcher interface {
	Search(ctx context.Context, query, pageToken string, sort Sort) (*Page, error)
	Details(ctx context.Context, id string) (*Details, error)
}

// Client provides access to the video platform API.
type Client struct {
	apiKey     string
	baseURL    string
	pageSize   int
	httpClient *http.Client
	limiter    *rate.Limiter
	sleeper    func(time.Duration)
}

var _ Searcher = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithPageSize overrides the number of results requested per page.
func WithPageSize(size int) Option {
	return func(c *Client) {
		if size > 0 {
			c.pageSize = size
		}
	}
}

// WithRateLimit overrides the pacing between requests.
func WithRateLimit(requestsPerSecond float64) Option {
	return func(c *Client) {
		if requestsPerSecond > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), 1)
		}
	}
}

// WithSleeper overrides how the retry backoff sleeps (useful for tests).
func WithSleeper(sleeper func(time.Duration)) Option {
	return func(c *Client) {
		if sleeper != nil {
			c.sleeper = sleeper
		}
	}
}

// New creates a provider client.
func New(apiKey, baseURL string, opts ...Option) (*Client, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("provider api key required")
	}
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return nil, errors.New("provider base url required")
	}
	client := &Client{
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		pageSize:   25,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(2), 1),
		sleeper:    time.Sleep,
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

type searchResponse struct {
	NextPageToken string `json:"nextPageToken"`
	Items         []struct {
		ID struct {
			VideoID string `json:"videoId"`
		} `json:"id"`
		Snippet struct {
			Title        string `json:"title"`
			Description  string `json:"description"`
			ChannelTitle string `json:"channelTitle"`
			PublishedAt  string `json:"publishedAt"`
		} `json:"snippet"`
	} `json:"items"`
}

type videosResponse struct {
	Items []struct {
		ContentDetails struct {
			Duration string `json:"duration"`
		} `json:"contentDetails"`
		Statistics struct {
			ViewCount string `json:"viewCount"`
			LikeCount string `json:"likeCount"`
		} `json:"statistics"`
	} `json:"items"`
}

type errorResponse struct {
	Error struct {
		Code   int    `json:"code"`
		Status string `json:"status"`
		Errors []struct {
			Reason string `json:"reason"`
		} `json:"errors"`
	} `json:"error"`
}

// Search issues a single paginated search call.
func (c *Client) Search(ctx context.Context, query, pageToken string, sort Sort) (*Page, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errors.New("query must not be empty")
	}
	if sort == "" {
		sort = SortRelevance
	}

	params := url.Values{}
	params.Set("part", "snippet")
	params.Set("type", "video")
	params.Set("q", query)
	params.Set("order", string(sort))
	params.Set("maxResults", strconv.Itoa(c.pageSize))
	params.Set("key", c.apiKey)
	if pageToken != "" {
		params.Set("pageToken", pageToken)
	}

	var payload searchResponse
	if err := c.getJSON(ctx, "/search", params, &payload); err != nil {
		return nil, fmt.Errorf("search %q: %w", query, err)
	}

	page := &Page{NextPageToken: payload.NextPageToken}
	for _, entry := range payload.Items {
		if entry.ID.VideoID == "" {
			continue
		}
		item := Item{
			ID:           entry.ID.VideoID,
			Title:        entry.Snippet.Title,
			Description:  entry.Snippet.Description,
			ChannelTitle: entry.Snippet.ChannelTitle,
		}
		if t, err := time.Parse(time.RFC3339, entry.Snippet.PublishedAt); err == nil {
			item.PublishedAt = t
		}
		page.Items = append(page.Items, item)
	}
	return page, nil
}

// Details fetches duration and engagement counts for one video.
func (c *Client) Details(ctx context.Context, id string) (*Details, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, errors.New("video id must not be empty")
	}

	params := url.Values{}
	params.Set("part", "contentDetails,statistics")
	params.Set("id", id)
	params.Set("key", c.apiKey)

	var payload videosResponse
	if err := c.getJSON(ctx, "/videos", params, &payload); err != nil {
		return nil, fmt.Errorf("details %s: %w", id, err)
	}
	if len(payload.Items) == 0 {
		return nil, fmt.Errorf("details %s: video not found", id)
	}

	entry := payload.Items[0]
	details := &Details{}
	seconds, err := ParseISODuration(entry.ContentDetails.Duration)
	if err != nil {
		return nil, fmt.Errorf("details %s: parse duration %q: %w", id, entry.ContentDetails.Duration, err)
	}
	details.DurationSeconds = seconds
	if entry.Statistics.ViewCount != "" {
		details.ViewCount, _ = strconv.ParseInt(entry.Statistics.ViewCount, 10, 64)
	}
	if entry.Statistics.LikeCount != "" {
		details.LikeCount, _ = strconv.ParseInt(entry.Statistics.LikeCount, 10, 64)
	}
	return details, nil
}

// getJSON performs a GET with pacing and a single retry for transient
// failures. Quota-exceeded responses are returned immediately as
// ErrQuotaExceeded; read-only calls are safe to retry once on timeouts and
// 5xx responses.
func (c *Client) getJSON(ctx context.Context, path string, params url.Values, target any) error {
	endpoint, err := url.Parse(c.baseURL + path)
	if err != nil {
		return fmt.Errorf("parse provider url: %w", err)
	}
	endpoint.RawQuery = params.Encode()

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		if attempt > 0 {
			c.sleeper(time.Duration(attempt) * time.Second)
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limit wait: %w", err)
		}

		retryable, err := c.doOnce(ctx, endpoint.String(), target)
		if err == nil {
			return nil
		}
		if !retryable {
			return err
		}
		lastErr = err
	}
	return lastErr
}

func (c *Client) doOnce(ctx context.Context, endpoint string, target any) (retryable bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return false, fmt.Errorf("build request: %w", err)
	}

	requestStart := time.Now()
	resp, err := c.httpClient.Do(req)
	latency := time.Since(requestStart)
	if err != nil {
		return isTransient(err), fmt.Errorf("execute request (latency=%v): %w", latency, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errPayload errorResponse
		_ = json.NewDecoder(resp.Body).Decode(&errPayload)
		if quotaExceeded(resp.StatusCode, errPayload) {
			return false, ErrQuotaExceeded
		}
		return resp.StatusCode >= 500, fmt.Errorf("provider returned %d (latency=%v)", resp.StatusCode, latency)
	}

	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return false, fmt.Errorf("decode provider response: %w", err)
	}
	return false, nil
}

func quotaExceeded(status int, payload errorResponse) bool {
	if status != http.StatusForbidden && status != http.StatusTooManyRequests {
		return false
	}
	for _, detail := range payload.Error.Errors {
		switch detail.Reason {
		case "quotaExceeded", "dailyLimitExceeded", "rateLimitExceeded":
			return true
		}
	}
	return status == http.StatusTooManyRequests
}

func isTransient(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return urlErr.Timeout() || urlErr.Temporary()
	}
	return false
}
