// Package testutil provides a mock merchant listing API for tests.
package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

// MockResponse defines a canned response for a path or a single page.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// ListRequest is one listing call as seen by the server.
type ListRequest struct {
	Class    string
	PageNo   int
	PageSize int
	Form     url.Values
	Query    url.Values
	Header   http.Header
}

// listing is the data behind one class.
type listing struct {
	records    []json.RawMessage
	totalCount any
}

// MockMerchant is a configurable mock of the merchant listing API. Listing
// classes are served under /class/{name}; any other path can be given a
// handler, which is how tests serve images.
type MockMerchant struct {
	server   *httptest.Server
	mu       sync.RWMutex
	classes  map[string]*listing
	failures map[string]MockResponse
	handlers map[string]func(w http.ResponseWriter, r *http.Request)

	// Tracking
	RequestCount int
	Requests     []ListRequest
}

// NewMockMerchant creates and starts a mock merchant server.
func NewMockMerchant() *MockMerchant {
	mock := &MockMerchant{
		classes:  make(map[string]*listing),
		failures: make(map[string]MockResponse),
		handlers: make(map[string]func(w http.ResponseWriter, r *http.Request)),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.RequestCount++
		mock.mu.Unlock()

		if class, ok := strings.CutPrefix(r.URL.Path, "/class/"); ok {
			mock.serveListing(w, r, class)
			return
		}

		mock.mu.RLock()
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.RUnlock()

		if exists {
			handler(w, r)
			return
		}
		http.NotFound(w, r)
	}))

	return mock
}

// URL returns the mock server URL. It doubles as the listing base URL.
func (m *MockMerchant) URL() string {
	return m.server.URL
}

// Client returns an HTTP client wired to the server.
func (m *MockMerchant) Client() *http.Client {
	return m.server.Client()
}

// Close shuts down the mock server.
func (m *MockMerchant) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockMerchant) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.Requests = nil
}

// SetClass serves records (raw JSON objects) for class. totalCount is
// reported as len(records).
func (m *MockMerchant) SetClass(class string, records ...string) {
	m.SetClassWithTotal(class, len(records), records...)
}

// SetClassWithTotal serves records for class and reports totalCount as given.
// total may be an int, a string or nil (field omitted).
func (m *MockMerchant) SetClassWithTotal(class string, total any, records ...string) {
	raw := make([]json.RawMessage, len(records))
	for i, r := range records {
		raw[i] = json.RawMessage(r)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.classes[class] = &listing{records: raw, totalCount: total}
}

// FailPage makes page pageNo of class answer with resp instead of data.
func (m *MockMerchant) FailPage(class string, pageNo int, resp MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[failureKey(class, pageNo)] = resp
}

// SetHandler sets a custom handler for a non-listing path.
func (m *MockMerchant) SetHandler(path string, handler func(w http.ResponseWriter, r *http.Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a simple response for a non-listing path.
func (m *MockMerchant) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		writeResponse(w, resp)
	})
}

// SetImage serves body as an image at path.
func (m *MockMerchant) SetImage(path string, body []byte) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.WriteHeader(http.StatusOK)
		w.Write(body)
	})
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockMerchant) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// ListRequests returns the listing calls made for class, in order.
func (m *MockMerchant) ListRequests(class string) []ListRequest {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []ListRequest
	for _, req := range m.Requests {
		if req.Class == class {
			out = append(out, req)
		}
	}
	return out
}

func (m *MockMerchant) serveListing(w http.ResponseWriter, r *http.Request, class string) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	pageNo, _ := strconv.Atoi(r.PostForm.Get("pageNo"))
	pageSize, _ := strconv.Atoi(r.PostForm.Get("pageSize"))

	m.mu.Lock()
	m.Requests = append(m.Requests, ListRequest{
		Class:    class,
		PageNo:   pageNo,
		PageSize: pageSize,
		Form:     r.PostForm,
		Query:    r.URL.Query(),
		Header:   r.Header.Clone(),
	})
	failure, failed := m.failures[failureKey(class, pageNo)]
	data, known := m.classes[class]
	m.mu.Unlock()

	if failed {
		writeResponse(w, failure)
		return
	}

	if pageNo < 1 || pageSize < 1 {
		http.Error(w, "bad paging", http.StatusBadRequest)
		return
	}

	body := map[string]any{"records": []json.RawMessage{}}
	if known {
		start := (pageNo - 1) * pageSize
		if start < len(data.records) {
			end := min(start+pageSize, len(data.records))
			body["records"] = data.records[start:end]
		}
		if data.totalCount != nil {
			body["totalCount"] = data.totalCount
		}
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	json.NewEncoder(w).Encode(body)
}

func writeResponse(w http.ResponseWriter, resp MockResponse) {
	if resp.Delay > 0 {
		time.Sleep(resp.Delay)
	}
	for key, value := range resp.Headers {
		w.Header().Set(key, value)
	}
	status := resp.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	if resp.Body != "" {
		w.Write([]byte(resp.Body))
	}
}

func failureKey(class string, pageNo int) string {
	return class + "#" + strconv.Itoa(pageNo)
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"error": "Internal server error"}`,
		Headers:    map[string]string{"Content-Type": "application/json; charset=utf-8"},
	}
}

// NewMalformedResponse creates a 200 response whose body is not JSON.
func NewMalformedResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       `{"records": [`,
		Headers:    map[string]string{"Content-Type": "application/json; charset=utf-8"},
	}
}

// NewLoginPageResponse creates the HTML page served when the session cookie has expired.
func NewLoginPageResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       `<!DOCTYPE html><html><body><form action="/login"></form></body></html>`,
		Headers:    map[string]string{"Content-Type": "text/html; charset=utf-8"},
	}
}
