package provider

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
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cinefluent/sublearn/internal/subtitle"
	"github.com/cinefluent/sublearn/pkg/log"
)

const (
	DefaultBaseURL   = "https://api.opensubtitles.com/api/v1"
	DefaultUserAgent = "sublearn v1.0"

	defaultTimeout     = 30 * time.Second
	defaultMinInterval = time.Second
	initialQuota       = 200

	// quotaLowWater is the refusal threshold; quotaWarnWater only logs
	quotaLowWater  = 1
	quotaWarnWater = 5

	// resultExpiry is the cache TTL hint attached to search results
	resultExpiry = 48 * time.Hour
)

// ErrRateLimited reports that the request was refused (or rejected) because
// the provider quota is exhausted.
var ErrRateLimited = errors.New("provider rate limit reached")

// Client is a rate-limited client for an OpenSubtitles-style subtitle
// index. Safe for concurrent use.
type Client struct {
	apiKey      string
	userAgent   string
	baseURL     string
	minInterval time.Duration
	httpClient  *http.Client
	now         func() time.Time

	mu                 sync.Mutex
	rateLimitRemaining int
	rateLimitReset     time.Time
	lastRequestTime    time.Time
	totalRequests      uint64
	successfulRequests uint64
	failedRequests     uint64
}

// Config configures the provider client. APIKey is required; everything
// else has defaults.
type Config struct {
	APIKey      string
	UserAgent   string
	BaseURL     string
	Timeout     time.Duration
	MinInterval time.Duration
}

// Query describes one subtitle search
type Query struct {
	Title         string
	Year          int
	ExternalID    string // e.g. IMDb id
	Languages     []string
	EpisodeNumber int
}

// Stats is a snapshot of the client's usage counters
type Stats struct {
	TotalRequests      uint64    `json:"total_requests"`
	SuccessfulRequests uint64    `json:"successful_requests"`
	FailedRequests     uint64    `json:"failed_requests"`
	SuccessRate        float64   `json:"success_rate"` // percent
	RateLimitRemaining int       `json:"rate_limit_remaining"`
	RateLimitReset     time.Time `json:"rate_limit_reset"`
}

func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("provider api key is required")
	}
	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	minInterval := cfg.MinInterval
	if minInterval < 0 {
		minInterval = defaultMinInterval
	}

	return &Client{
		apiKey:             cfg.APIKey,
		userAgent:          userAgent,
		baseURL:            baseURL,
		minInterval:        minInterval,
		httpClient:         &http.Client{Timeout: timeout},
		now:                time.Now,
		rateLimitRemaining: initialQuota,
	}, nil
}

// waitForSlot enforces the minimum request interval and the quota
// low-water mark. Returns ErrRateLimited without issuing any request when
// the quota is exhausted and the reset time has not passed.
func (c *Client) waitForSlot(ctx context.Context) error {
	c.mu.Lock()
	now := c.now()
	if c.rateLimitRemaining <= quotaLowWater {
		if !c.rateLimitReset.IsZero() && now.After(c.rateLimitReset) {
			c.rateLimitRemaining = initialQuota
		} else {
			c.mu.Unlock()
			return ErrRateLimited
		}
	}
	if c.rateLimitRemaining <= quotaWarnWater {
		log.Warn("Provider quota low: %d remaining", c.rateLimitRemaining)
	}

	wait := c.minInterval - now.Sub(c.lastRequestTime)
	c.lastRequestTime = now
	if wait > 0 {
		c.lastRequestTime = now.Add(wait)
	}
	c.mu.Unlock()

	if wait <= 0 {
		return nil
	}
	select {
	case <-time.After(wait):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// updateRateLimit refreshes quota state from response headers
func (c *Client) updateRateLimit(resp *http.Response) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if remaining := resp.Header.Get("X-RateLimit-Remaining"); remaining != "" {
		if n, err := strconv.Atoi(remaining); err == nil {
			c.rateLimitRemaining = n
		}
	}
	if reset := resp.Header.Get("X-RateLimit-Reset"); reset != "" {
		if ts, err := strconv.ParseInt(reset, 10, 64); err == nil {
			c.rateLimitReset = time.Unix(ts, 0)
		}
	}
}

func (c *Client) countResult(success bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalRequests++
	if success {
		c.successfulRequests++
	} else {
		c.failedRequests++
	}
}

type searchResponse struct {
	Data []searchItem `json:"data"`
}

type searchItem struct {
	ID         string `json:"id"`
	Attributes struct {
		Language      string  `json:"language"`
		Release       string  `json:"release"`
		URL           string  `json:"url"`
		FileSize      int64   `json:"file_size"`
		DownloadCount int     `json:"download_count"`
		Ratings       float64 `json:"ratings"`
		Encoding      string  `json:"encoding"`
		MovieHash     string  `json:"moviehash"`
	} `json:"attributes"`
}

// Search issues one query against the provider index and parses the ranked
// descriptor list. Quota exhaustion surfaces as ErrRateLimited before any
// request goes out.
func (c *Client) Search(ctx context.Context, query Query) ([]subtitle.Metadata, error) {
	if err := c.waitForSlot(ctx); err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("query", strings.TrimSpace(query.Title))
	if query.EpisodeNumber > 0 {
		params.Set("type", "episode")
		params.Set("episode_number", strconv.Itoa(query.EpisodeNumber))
	} else {
		params.Set("type", "movie")
	}
	if query.Year > 0 {
		params.Set("year", strconv.Itoa(query.Year))
	}
	if query.ExternalID != "" {
		params.Set("imdb_id", query.ExternalID)
	}
	if len(query.Languages) > 0 {
		params.Set("languages", strings.Join(query.Languages, ","))
	}
	params.Set("moviehash_match", "include")
	params.Set("order_by", "download_count")
	params.Set("order_direction", "desc")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/subtitles?"+params.Encode(), nil)
	if err != nil {
		c.countResult(false)
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.countResult(false)
		return nil, fmt.Errorf("provider request failed: %w", err)
	}
	defer resp.Body.Close()
	c.updateRateLimit(resp)

	switch {
	case resp.StatusCode == http.StatusOK:
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			c.countResult(false)
			return nil, fmt.Errorf("failed to read response: %w", err)
		}
		var parsed searchResponse
		if err := json.Unmarshal(body, &parsed); err != nil {
			c.countResult(false)
			return nil, fmt.Errorf("failed to parse response: %w", err)
		}
		c.countResult(true)
		return c.parseResults(parsed), nil

	case resp.StatusCode == http.StatusTooManyRequests:
		log.Warn("Provider rate limit exceeded, backing off until %s", c.resetTime())
		c.mu.Lock()
		c.rateLimitRemaining = 0
		c.mu.Unlock()
		c.countResult(false)
		return nil, ErrRateLimited

	default:
		log.Error("Provider API error: status %d", resp.StatusCode)
		c.countResult(false)
		return nil, fmt.Errorf("provider API error: status %d", resp.StatusCode)
	}
}

func (c *Client) parseResults(parsed searchResponse) []subtitle.Metadata {
	now := c.now().UTC()

	ret := make([]subtitle.Metadata, 0, len(parsed.Data))
	for _, item := range parsed.Data {
		attrs := item.Attributes
		language := attrs.Language
		if language == "" {
			language = "unknown"
		}
		release := attrs.Release
		if release == "" {
			release = "Unknown"
		}
		encoding := attrs.Encoding
		if encoding == "" {
			encoding = "utf-8"
		}

		ret = append(ret, subtitle.Metadata{
			ID:            uuid.NewString(),
			Language:      language,
			Title:         fmt.Sprintf("%s - %s", release, language),
			Source:        subtitle.SourceExternal,
			FileURL:       attrs.URL,
			FileSize:      attrs.FileSize,
			DownloadCount: attrs.DownloadCount,
			Rating:        attrs.Ratings,
			ReleaseInfo:   attrs.Release,
			Encoding:      encoding,
			ExternalID:    item.ID,
			Hash:          attrs.MovieHash,
			CreatedAt:     now,
			ExpiresAt:     now.Add(resultExpiry),
		})
	}
	return ret
}

// Download fetches raw subtitle content. Empty payloads are rejected.
func (c *Client) Download(ctx context.Context, fileURL string) ([]byte, error) {
	if fileURL == "" {
		return nil, fmt.Errorf("no file URL provided")
	}
	if err := c.waitForSlot(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		c.countResult(false)
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.countResult(false)
		return nil, fmt.Errorf("subtitle download failed: %w", err)
	}
	defer resp.Body.Close()
	c.updateRateLimit(resp)

	if resp.StatusCode != http.StatusOK {
		c.countResult(false)
		return nil, fmt.Errorf("subtitle download failed: status %d", resp.StatusCode)
	}

	content, err := io.ReadAll(resp.Body)
	if err != nil {
		c.countResult(false)
		return nil, fmt.Errorf("failed to read subtitle content: %w", err)
	}
	if len(content) == 0 {
		c.countResult(false)
		return nil, fmt.Errorf("downloaded subtitle file is empty")
	}

	c.countResult(true)
	return content, nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Api-Key", c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
}

func (c *Client) resetTime() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rateLimitReset
}

// QuotaRemaining returns the current rate-limit quota
func (c *Client) QuotaRemaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rateLimitRemaining
}

// Stats returns a snapshot of the usage counters
func (c *Client) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	rate := 0.0
	if c.totalRequests > 0 {
		rate = float64(c.successfulRequests) / float64(c.totalRequests) * 100
	}
	return Stats{
		TotalRequests:      c.totalRequests,
		SuccessfulRequests: c.successfulRequests,
		FailedRequests:     c.failedRequests,
		SuccessRate:        rate,
		RateLimitRemaining: c.rateLimitRemaining,
		RateLimitReset:     c.rateLimitReset,
	}
}
