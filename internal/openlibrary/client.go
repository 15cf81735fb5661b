package openlibrary

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	BaseURL       = "https://openlibrary.org"
	CoversBaseURL = "https://covers.openlibrary.org"
	UserAgent     = "shelfbrowse/1.0 (https://github.com/shelfarr/shelfbrowse)"

	searchFields = "key,title,author_name,author_key,first_publish_year,edition_count,cover_i,language,subject,content"
)

// StatusError is returned when Open Library answers with a non-2xx status
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("search failed with status %d", e.StatusCode)
	}
	return fmt.Sprintf("search failed with status %d: %s", e.StatusCode, e.Body)
}

// Options configures a Client. Zero values fall back to the package defaults.
type Options struct {
	BaseURL   string
	UserAgent string
	Timeout   time.Duration
	// RateLimit is the sustained request rate per second; 0 disables limiting.
	RateLimit float64
	RateBurst int
	// HTTPClient replaces the default client, mostly for tests.
	HTTPClient *http.Client
}

// Client is an Open Library API client
type Client struct {
	httpClient *http.Client
	baseURL    string
	userAgent  string
	limiter    *rate.Limiter
}

// NewClientWithOptions creates a new Open Library client
func NewClientWithOptions(opts Options) *Client {
	c := &Client{
		httpClient: opts.HTTPClient,
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		userAgent:  opts.UserAgent,
	}
	if c.httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		c.httpClient = &http.Client{Timeout: timeout}
	}
	if c.baseURL == "" {
		c.baseURL = BaseURL
	}
	if c.userAgent == "" {
		c.userAgent = UserAgent
	}
	if opts.RateLimit > 0 {
		burst := opts.RateBurst
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}
	return c
}

// doRequest performs an HTTP request with proper headers, honouring the rate limit
func (c *Client) doRequest(req *http.Request) (*http.Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(req.Context()); err != nil {
			return nil, fmt.Errorf("rate limit: %w", err)
		}
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
	return c.httpClient.Do(req)
}

// SearchBooks searches for books using the search API
func (c *Client) SearchBooks(ctx context.Context, query string, limit, offset int) (*SearchResponse, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("limit", strconv.Itoa(limit))
	params.Set("offset", strconv.Itoa(offset))
	params.Set("fields", searchFields)

	reqURL := fmt.Sprintf("%s/search.json?%s", c.baseURL, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.doRequest(req)
	if err != nil {
		return nil, fmt.Errorf("performing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var result SearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	return &result, nil
}

// GetCoverURL returns the URL for a cover image
func GetCoverURL(coverID int, size string) string {
	// size can be "S", "M", or "L"
	if size == "" {
		size = "M"
	}
	return fmt.Sprintf("%s/b/id/%d-%s.jpg", CoversBaseURL, coverID, size)
}

// GetWorkURL returns the public page for a work key like "/works/OL45804W"
func GetWorkURL(key string) string {
	if key != "" && !strings.HasPrefix(key, "/") {
		key = "/" + key
	}
	return BaseURL + key
}

// ExtractOLID extracts the OLID from a key path like "/works/OL123W"
func ExtractOLID(key string) string {
	parts := strings.Split(key, "/")
	if len(parts) > 0 {
		return parts[len(parts)-1]
	}
	return key
}

// Test tests the connection to Open Library
func (c *Client) Test(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/search.json?q=test&limit=1", nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.doRequest(req)
	if err != nil {
		return fmt.Errorf("connection failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	return nil
}
