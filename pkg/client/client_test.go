package client

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/Sternrassler/merchant-catalog-export/internal/testutil"
	"github.com/Sternrassler/merchant-catalog-export/pkg/cache"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// setupTestRedis creates a test Redis client.
func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15, // Use a separate DB for tests
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available for testing: %v", err)
	}

	if err := client.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("Failed to flush test DB: %v", err)
	}

	t.Cleanup(func() {
		client.FlushDB(context.Background())
		client.Close()
	})

	return client
}

func newTestClient(t *testing.T, mock *testutil.MockMerchant, mutate func(*Config)) *Client {
	t.Helper()

	cfg := DefaultConfig(mock.URL())
	cfg.Headers["Cookie"] = "PHPSESSID=test"
	if mutate != nil {
		mutate(&cfg)
	}

	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c
}

func TestNew_Validation(t *testing.T) {
	redisClient := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	defer redisClient.Close()

	tests := []struct {
		name        string
		config      Config
		expectError bool
		errorMsg    string
	}{
		{
			name:        "valid config",
			config:      DefaultConfig("https://merchant.example.com/eng/gestione/getlist"),
			expectError: false,
		},
		{
			name:        "empty base url",
			config:      Config{Timeout: time.Second},
			expectError: true,
			errorMsg:    "base url is required",
		},
		{
			name:        "relative base url",
			config:      Config{BaseURL: "/getlist", Timeout: time.Second},
			expectError: true,
			errorMsg:    `base url must be absolute (got "/getlist")`,
		},
		{
			name:        "zero timeout",
			config:      Config{BaseURL: "https://merchant.example.com"},
			expectError: true,
			errorMsg:    "timeout must be > 0 (got 0s)",
		},
		{
			name: "cache without ttl",
			config: Config{
				BaseURL: "https://merchant.example.com",
				Timeout: time.Second,
				Cache:   cache.NewManager(redisClient),
			},
			expectError: true,
			errorMsg:    "cache ttl must be > 0 when caching is enabled",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := New(tt.config)

			if tt.expectError {
				if err == nil {
					t.Errorf("Expected error but got nil")
					return
				}
				if tt.errorMsg != "" && err.Error() != tt.errorMsg {
					t.Errorf("Error message = %q, want %q", err.Error(), tt.errorMsg)
				}
			} else {
				if err != nil {
					t.Errorf("Unexpected error: %v", err)
					return
				}
				if client == nil {
					t.Error("Client is nil")
				}
			}
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig("https://merchant.example.com/")

	if cfg.BaseURL != "https://merchant.example.com/" {
		t.Errorf("BaseURL = %q", cfg.BaseURL)
	}
	if cfg.Timeout <= 0 {
		t.Errorf("Timeout = %v, should be > 0", cfg.Timeout)
	}
	if cfg.CacheTTL <= 0 {
		t.Errorf("CacheTTL = %v, should be > 0", cfg.CacheTTL)
	}
	if cfg.Headers["X-Requested-With"] != "XMLHttpRequest" {
		t.Errorf("X-Requested-With = %q", cfg.Headers["X-Requested-With"])
	}
}

func TestClassifyError(t *testing.T) {
	client := &Client{logger: zerolog.Nop()}

	tests := []struct {
		name       string
		statusCode int
		err        error
		expected   ErrorClass
	}{
		{name: "network error", err: io.EOF, expected: ErrorClassNetwork},
		{name: "client error 404", statusCode: 404, expected: ErrorClassClient},
		{name: "client error 403", statusCode: 403, expected: ErrorClassClient},
		{name: "server error 500", statusCode: 500, expected: ErrorClassServer},
		{name: "server error 503", statusCode: 503, expected: ErrorClassServer},
		{name: "unexpected redirect", statusCode: 302, expected: ErrorClassClient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var resp *http.Response
			if tt.statusCode > 0 {
				resp = &http.Response{StatusCode: tt.statusCode}
			}
			if got := client.classifyError(resp, tt.err); got != tt.expected {
				t.Errorf("classifyError() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestListPage_RequestShape(t *testing.T) {
	mock := testutil.NewMockMerchant()
	defer mock.Close()
	mock.SetClass("Dati_Compatibilita", `{"id":1}`, `{"id":2}`, `{"id":3}`)

	c := newTestClient(t, mock, nil)

	page, err := c.ListPage(context.Background(), PageRequest{Class: "Dati_Compatibilita", PageNo: 2, PageSize: 2})
	if err != nil {
		t.Fatalf("ListPage() error = %v", err)
	}

	if len(page.Records) != 1 || string(page.Records[0]) != `{"id":3}` {
		t.Errorf("Records = %s, want [{\"id\":3}]", page.Records)
	}
	if page.TotalCount != 3 {
		t.Errorf("TotalCount = %d, want 3", page.TotalCount)
	}
	if page.Cached {
		t.Error("Cached = true without a cache")
	}

	reqs := mock.ListRequests("Dati_Compatibilita")
	if len(reqs) != 1 {
		t.Fatalf("server saw %d requests, want 1", len(reqs))
	}
	req := reqs[0]

	wantForm := map[string]string{
		"pageNo": "2", "pageSize": "2", "sort": "", "dir": "", "session": "false", "sessionId": "",
	}
	for key, want := range wantForm {
		if _, ok := req.Form[key]; !ok {
			t.Errorf("form field %q missing", key)
			continue
		}
		if got := req.Form.Get(key); got != want {
			t.Errorf("form %s = %q, want %q", key, got, want)
		}
	}

	rands := req.Query["rand"]
	if len(rands) != 2 {
		t.Errorf("rand query values = %v, want 2", rands)
	}
	for _, r := range rands {
		if len(r) != 4 {
			t.Errorf("rand = %q, want 4 digits", r)
		}
	}

	if got := req.Header.Get("Cookie"); got != "PHPSESSID=test" {
		t.Errorf("Cookie = %q", got)
	}
	if got := req.Header.Get("Content-Type"); !strings.HasPrefix(got, "application/x-www-form-urlencoded") {
		t.Errorf("Content-Type = %q", got)
	}
}

func TestListPage_TotalCountForms(t *testing.T) {
	tests := []struct {
		name  string
		total any
		want  int
	}{
		{name: "number", total: 42, want: 42},
		{name: "numeric string", total: "42", want: 42},
		{name: "missing", total: nil, want: 0},
		{name: "garbage string", total: "many", want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := testutil.NewMockMerchant()
			defer mock.Close()
			mock.SetClassWithTotal("Dati_Prodotto", tt.total, `{"id":"P1"}`)

			c := newTestClient(t, mock, nil)
			page, err := c.ListPage(context.Background(), PageRequest{Class: "Dati_Prodotto", PageNo: 1, PageSize: 20})
			if err != nil {
				t.Fatalf("ListPage() error = %v", err)
			}
			if page.TotalCount != tt.want {
				t.Errorf("TotalCount = %d, want %d", page.TotalCount, tt.want)
			}
		})
	}
}

func TestListPage_Errors(t *testing.T) {
	tests := []struct {
		name      string
		response  testutil.MockResponse
		wantClass ErrorClass
		wantMsg   string
	}{
		{
			name:      "server error",
			response:  testutil.NewServerErrorResponse(),
			wantClass: ErrorClassServer,
		},
		{
			name:      "forbidden",
			response:  testutil.MockResponse{StatusCode: http.StatusForbidden, Body: "no"},
			wantClass: ErrorClassClient,
		},
		{
			name:      "malformed json",
			response:  testutil.NewMalformedResponse(),
			wantClass: ErrorClassDecode,
			wantMsg:   "malformed listing response",
		},
		{
			name:      "login page",
			response:  testutil.NewLoginPageResponse(),
			wantClass: ErrorClassDecode,
			wantMsg:   "session cookie",
		},
		{
			name:      "records missing",
			response:  testutil.MockResponse{Body: `{"success":false,"message":"session expired"}`},
			wantClass: ErrorClassDecode,
			wantMsg:   "malformed listing response",
		},
		{
			name:      "records null",
			response:  testutil.MockResponse{Body: `{"records":null,"totalCount":5}`},
			wantClass: ErrorClassDecode,
		},
		{
			name:      "records not a list",
			response:  testutil.MockResponse{Body: `{"records": {"id": 1}}`},
			wantClass: ErrorClassDecode,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := testutil.NewMockMerchant()
			defer mock.Close()
			mock.FailPage("Dati_Prodotto", 1, tt.response)

			c := newTestClient(t, mock, nil)
			_, err := c.ListPage(context.Background(), PageRequest{Class: "Dati_Prodotto", PageNo: 1, PageSize: 20})

			var apiErr *APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("ListPage() error = %v, want *APIError", err)
			}
			if apiErr.ErrorClass != tt.wantClass {
				t.Errorf("ErrorClass = %q, want %q", apiErr.ErrorClass, tt.wantClass)
			}
			if tt.wantMsg != "" && !strings.Contains(apiErr.Message, tt.wantMsg) {
				t.Errorf("Message = %q, want it to contain %q", apiErr.Message, tt.wantMsg)
			}
		})
	}
}

func TestListPage_EmptyRecordsIsEmptyPage(t *testing.T) {
	mock := testutil.NewMockMerchant()
	defer mock.Close()
	mock.FailPage("Dati_Prodotto", 1, testutil.MockResponse{Body: `{"records":[],"totalCount":0}`})

	c := newTestClient(t, mock, nil)
	page, err := c.ListPage(context.Background(), PageRequest{Class: "Dati_Prodotto", PageNo: 1, PageSize: 20})
	if err != nil {
		t.Fatalf("ListPage() error = %v", err)
	}
	if len(page.Records) != 0 {
		t.Errorf("Records = %d, want 0", len(page.Records))
	}
}

func TestListPage_MissingRecordsNotCached(t *testing.T) {
	redisClient := setupTestRedis(t)

	mock := testutil.NewMockMerchant()
	defer mock.Close()
	mock.FailPage("Dati_Compatibilita", 1, testutil.MockResponse{Body: `{"success":false,"message":"session expired"}`})

	manager := cache.NewManager(redisClient)
	c := newTestClient(t, mock, func(cfg *Config) {
		cfg.Cache = manager
		cfg.CacheTTL = time.Minute
	})

	req := PageRequest{Class: "Dati_Compatibilita", PageNo: 1, PageSize: 100, Cacheable: true}
	if _, err := c.ListPage(context.Background(), req); ClassOf(err) != ErrorClassDecode {
		t.Fatalf("ListPage() error = %v, want decode error", err)
	}

	key := cache.CacheKey{
		Endpoint:    "class/Dati_Compatibilita",
		QueryParams: url.Values{"pageNo": []string{"1"}, "pageSize": []string{"100"}},
	}
	if _, err := manager.Get(context.Background(), key); !errors.Is(err, cache.ErrCacheMiss) {
		t.Errorf("cache Get() error = %v, want ErrCacheMiss", err)
	}
}

type countingTransport struct {
	next  http.RoundTripper
	calls int
}

func (ct *countingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	ct.calls++
	return ct.next.RoundTrip(req)
}

func TestListPage_CustomHTTPClient(t *testing.T) {
	mock := testutil.NewMockMerchant()
	defer mock.Close()
	mock.SetClass("Dati_Prodotto", `{"id":"P1"}`)

	transport := &countingTransport{next: http.DefaultTransport}
	c := newTestClient(t, mock, nil)
	c.SetHTTPClient(&http.Client{Transport: transport, Timeout: 5 * time.Second})

	if _, err := c.ListPage(context.Background(), PageRequest{Class: "Dati_Prodotto", PageNo: 1, PageSize: 20}); err != nil {
		t.Fatalf("ListPage() error = %v", err)
	}
	if transport.calls != 1 {
		t.Errorf("transport saw %d requests, want 1", transport.calls)
	}
}

func TestListPage_NetworkError(t *testing.T) {
	mock := testutil.NewMockMerchant()
	c := newTestClient(t, mock, nil)
	mock.Close()

	_, err := c.ListPage(context.Background(), PageRequest{Class: "Dati_Prodotto", PageNo: 1, PageSize: 20})
	if ClassOf(err) != ErrorClassNetwork {
		t.Errorf("ClassOf(err) = %q, want network (err = %v)", ClassOf(err), err)
	}
}

func TestListPage_InvalidRequest(t *testing.T) {
	c, err := New(DefaultConfig("https://merchant.example.com"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	for _, pr := range []PageRequest{
		{PageNo: 1, PageSize: 1},
		{Class: "X", PageNo: 0, PageSize: 1},
		{Class: "X", PageNo: 1, PageSize: 0},
	} {
		if _, err := c.ListPage(context.Background(), pr); err == nil {
			t.Errorf("ListPage(%+v) error = nil", pr)
		}
	}
}

func TestListPage_CacheHitSkipsRequest(t *testing.T) {
	redisClient := setupTestRedis(t)

	mock := testutil.NewMockMerchant()
	defer mock.Close()
	mock.SetClass("Dati_Compatibilita", `{"id":1}`)

	c := newTestClient(t, mock, func(cfg *Config) {
		cfg.Cache = cache.NewManager(redisClient)
		cfg.CacheTTL = time.Minute
	})

	req := PageRequest{Class: "Dati_Compatibilita", PageNo: 1, PageSize: 100, Cacheable: true}
	first, err := c.ListPage(context.Background(), req)
	if err != nil {
		t.Fatalf("first ListPage() error = %v", err)
	}
	second, err := c.ListPage(context.Background(), req)
	if err != nil {
		t.Fatalf("second ListPage() error = %v", err)
	}

	if first.Cached || !second.Cached {
		t.Errorf("Cached = %v, %v; want false, true", first.Cached, second.Cached)
	}
	if got := len(mock.ListRequests("Dati_Compatibilita")); got != 1 {
		t.Errorf("server saw %d requests, want 1", got)
	}
	if string(second.Records[0]) != `{"id":1}` || second.TotalCount != 1 {
		t.Errorf("cached page = %+v", second)
	}
}

func TestListPage_NotCacheableBypassesCache(t *testing.T) {
	redisClient := setupTestRedis(t)

	mock := testutil.NewMockMerchant()
	defer mock.Close()
	mock.SetClass("Dati_Prodotto", `{"id":"P1"}`)

	c := newTestClient(t, mock, func(cfg *Config) {
		cfg.Cache = cache.NewManager(redisClient)
		cfg.CacheTTL = time.Minute
	})

	req := PageRequest{Class: "Dati_Prodotto", PageNo: 1, PageSize: 20}
	for i := 0; i < 2; i++ {
		if _, err := c.ListPage(context.Background(), req); err != nil {
			t.Fatalf("ListPage() error = %v", err)
		}
	}

	if got := len(mock.ListRequests("Dati_Prodotto")); got != 2 {
		t.Errorf("server saw %d requests, want 2", got)
	}
}

func TestParseTotalCount(t *testing.T) {
	tests := []struct {
		raw  string
		want int
	}{
		{`12`, 12},
		{`"12"`, 12},
		{`" 12 "`, 12},
		{`12.0`, 12},
		{`null`, 0},
		{``, 0},
		{`-3`, 0},
		{`"abc"`, 0},
		{`true`, 0},
	}

	for _, tt := range tests {
		if got := parseTotalCount([]byte(tt.raw)); got != tt.want {
			t.Errorf("parseTotalCount(%s) = %d, want %d", tt.raw, got, tt.want)
		}
	}
}
