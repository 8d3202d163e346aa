// Package client provides the HTTP client for the merchant listing API with
// page caching, error classification and metrics.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/merchant-catalog-export/pkg/cache"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for listing API operations.
var (
	catalogRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_requests_total",
		Help: "Total listing API requests by class and status",
	}, []string{"class", "status"})

	catalogRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "catalog_request_duration_seconds",
		Help:    "Listing API request duration in seconds by class",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 20},
	}, []string{"class"})

	catalogErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_errors_total",
		Help: "Total listing API errors by class",
	}, []string{"error_class"})
)

// ErrorClass represents a classification of listing API failures.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx and other unexpected statuses.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassNetwork represents network/timeout errors.
	ErrorClassNetwork ErrorClass = "network"

	// ErrorClassDecode represents a body that is not the expected JSON document.
	ErrorClassDecode ErrorClass = "decode"
)

// Client talks to the merchant listing API.
type Client struct {
	httpClient *http.Client
	cache      *cache.Manager
	config     Config
	logger     zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// BaseURL is the listing root, e.g. "https://merchant.example.com/eng/gestione/getlist".
	// Requests go to {BaseURL}/class/{class}.
	BaseURL string

	// Headers are sent with every request (accept, cookie, origin, referer, user-agent).
	// The session cookie lives here and nowhere else.
	Headers map[string]string

	// Timeout per request.
	Timeout time.Duration

	// Cache stores successful cacheable pages. Nil disables caching.
	Cache *cache.Manager

	// CacheTTL is how long a cached page stays valid.
	CacheTTL time.Duration
}

// DefaultConfig returns a configuration with the timeouts used by the scraper.
func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL: baseURL,
		Headers: map[string]string{
			"Accept":           "application/json",
			"X-Requested-With": "XMLHttpRequest",
		},
		Timeout:  20 * time.Second,
		CacheTTL: time.Hour,
	}
}

// New creates a new listing API client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}

	u, err := url.Parse(cfg.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("base url must be absolute (got %q)", cfg.BaseURL)
	}

	if cfg.Timeout <= 0 {
		return nil, fmt.Errorf("timeout must be > 0 (got %s)", cfg.Timeout)
	}

	if cfg.Cache != nil && cfg.CacheTTL <= 0 {
		return nil, fmt.Errorf("cache ttl must be > 0 when caching is enabled")
	}

	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		cache:  cfg.Cache,
		config: cfg,
		logger: log.With().Str("component", "catalog-client").Logger(),
	}, nil
}

// PageRequest selects one page of a listing class.
type PageRequest struct {
	Class    string
	PageNo   int
	PageSize int

	// Cacheable allows the page to be served from and stored in the cache.
	// Reference data is cacheable, product pages are not.
	Cacheable bool
}

// Page is one decoded listing page.
type Page struct {
	Records []json.RawMessage

	// TotalCount is the server-reported record count, 0 when unknown.
	TotalCount int

	// Cached is true when the page came from the cache without a request.
	Cached bool
}

type listResponse struct {
	Records    *[]json.RawMessage `json:"records"`
	TotalCount json.RawMessage   `json:"totalCount"`
}

// ListPage fetches and decodes one page.
func (c *Client) ListPage(ctx context.Context, pr PageRequest) (*Page, error) {
	if pr.Class == "" {
		return nil, fmt.Errorf("listing class is required")
	}
	if pr.PageNo < 1 || pr.PageSize < 1 {
		return nil, fmt.Errorf("page number and size must be >= 1 (got %d, %d)", pr.PageNo, pr.PageSize)
	}

	cacheKey := cache.CacheKey{
		Endpoint: "class/" + pr.Class,
		QueryParams: url.Values{
			"pageNo":   []string{strconv.Itoa(pr.PageNo)},
			"pageSize": []string{strconv.Itoa(pr.PageSize)},
		},
	}

	if c.cache != nil && pr.Cacheable {
		entry, err := c.cache.Get(ctx, cacheKey)
		switch {
		case err == nil:
			page, decodeErr := decodePage(entry.Data)
			if decodeErr == nil {
				c.logger.Debug().
					Str("class", pr.Class).
					Int("page", pr.PageNo).
					Msg("Listing page served from cache")
				catalogRequestsTotal.WithLabelValues(pr.Class, "cached").Inc()
				page.Cached = true
				return page, nil
			}
			c.logger.Warn().Err(decodeErr).Str("class", pr.Class).Msg("Discarding undecodable cache entry")
		case err != cache.ErrCacheMiss:
			c.logger.Warn().Err(err).Str("class", pr.Class).Msg("Cache get error")
		}
	}

	req, err := c.newListRequest(ctx, pr)
	if err != nil {
		return nil, err
	}

	resp, err := c.Do(req, pr.Class)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		catalogErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			ErrorClass: ErrorClassNetwork,
			Message:    "read response body",
			Err:        err,
		}
	}

	page, err := decodePage(body)
	if err != nil {
		catalogErrorsTotal.WithLabelValues(string(ErrorClassDecode)).Inc()
		msg := "malformed listing response"
		if strings.Contains(resp.Header.Get("Content-Type"), "html") {
			msg = "listing response is HTML, the session cookie has probably expired"
		}
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			ErrorClass: ErrorClassDecode,
			Message:    msg,
			Err:        err,
		}
	}

	if c.cache != nil && pr.Cacheable {
		entry := cache.NewEntry(body, resp.StatusCode, c.config.CacheTTL)
		if err := c.cache.Set(ctx, cacheKey, entry); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to cache listing page")
		} else {
			c.logger.Debug().
				Str("class", pr.Class).
				Int("page", pr.PageNo).
				Dur("ttl", entry.TTL()).
				Msg("Cached listing page")
		}
	}

	return page, nil
}

// newListRequest builds the form POST expected by the listing endpoint.
// The rand query pair only defeats intermediate caches.
func (c *Client) newListRequest(ctx context.Context, pr PageRequest) (*http.Request, error) {
	form := url.Values{}
	form.Set("pageNo", strconv.Itoa(pr.PageNo))
	form.Set("pageSize", strconv.Itoa(pr.PageSize))
	form.Set("sort", "")
	form.Set("dir", "")
	form.Set("session", "false")
	form.Set("sessionId", "")

	query := url.Values{}
	query.Add("rand", strconv.Itoa(1000+rand.IntN(9000)))
	query.Add("rand", strconv.Itoa(1000+rand.IntN(9000)))

	endpoint := c.config.BaseURL + "/class/" + url.PathEscape(pr.Class) + "?" + query.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded; charset=UTF-8")
	return req, nil
}

// Do performs a request with the configured headers, error classification
// and metrics. A non-2xx status is returned as *APIError with the body closed.
// There is no retry: callers stop on the first error.
func (c *Client) Do(req *http.Request, class string) (*http.Response, error) {
	startTime := time.Now()
	defer func() {
		catalogRequestDuration.WithLabelValues(class).Observe(time.Since(startTime).Seconds())
	}()

	for key, value := range c.config.Headers {
		if key == "Content-Type" && req.Header.Get("Content-Type") != "" {
			continue
		}
		req.Header.Set(key, value)
	}

	c.logger.Debug().
		Str("class", class).
		Str("method", req.Method).
		Str("url", req.URL.Redacted()).
		Msg("Executing listing request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		errClass := c.classifyError(nil, err)
		catalogErrorsTotal.WithLabelValues(string(errClass)).Inc()
		catalogRequestsTotal.WithLabelValues(class, "network_error").Inc()
		c.logger.Error().Err(err).Str("class", class).Msg("HTTP request failed")
		return nil, &APIError{ErrorClass: errClass, Message: "request failed", Err: err}
	}

	catalogRequestsTotal.WithLabelValues(class, strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		errClass := c.classifyError(resp, nil)
		catalogErrorsTotal.WithLabelValues(string(errClass)).Inc()

		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()

		c.logger.Warn().
			Str("class", class).
			Int("status", resp.StatusCode).
			Str("error_class", string(errClass)).
			Msg("Listing request error")

		return nil, &APIError{
			StatusCode: resp.StatusCode,
			ErrorClass: errClass,
			Message:    strings.TrimSpace(resp.Status + " " + string(bytes.TrimSpace(snippet))),
		}
	}

	return resp, nil
}

// classifyError categorizes an error for observability and handling.
func (c *Client) classifyError(resp *http.Response, err error) ErrorClass {
	if err != nil {
		return ErrorClassNetwork
	}

	switch {
	case resp.StatusCode >= 500:
		return ErrorClassServer
	default:
		return ErrorClassClient
	}
}

// errMissingRecords rejects JSON bodies without a records list, such as
// {"success":false,"message":"session expired"}.
var errMissingRecords = errors.New("listing response has no records field")

// decodePage parses {"records": [...], "totalCount": N}. An absent or null
// records field is an error; an empty list is a valid empty page.
func decodePage(body []byte) (*Page, error) {
	var lr listResponse
	if err := json.Unmarshal(body, &lr); err != nil {
		return nil, fmt.Errorf("decode listing: %w", err)
	}

	if lr.Records == nil {
		return nil, errMissingRecords
	}

	return &Page{
		Records:    *lr.Records,
		TotalCount: parseTotalCount(lr.TotalCount),
	}, nil
}

// parseTotalCount accepts a JSON number or a numeric string. Anything else is
// treated as unknown (0).
func parseTotalCount(raw json.RawMessage) int {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return 0
	}

	s := string(raw)
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0
		}
	}

	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f > 0 {
		return int(f)
	}
	return 0
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

// GetCache returns the cache manager (for testing).
func (c *Client) GetCache() *cache.Manager {
	return c.cache
}
