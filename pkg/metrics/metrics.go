// Package metrics provides the Prometheus registry used by the exporter and
// the textfile dump for node_exporter.
// All metrics are defined in their respective packages (client, cache,
// pagination, ratelimit, images) to maintain modularity and avoid circular
// dependencies.
//
// This package provides documentation and reference for all available metrics.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the default Prometheus registry used by the exporter.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Gatherer collects the metrics written by WriteTextfile.
var Gatherer prometheus.Gatherer = prometheus.DefaultGatherer

// WriteTextfile writes every metric of g in the Prometheus text format to
// path, the way node_exporter's textfile collector expects it. A nil g uses
// Gatherer. The file is replaced atomically.
func WriteTextfile(path string, g prometheus.Gatherer) error {
	if path == "" {
		return fmt.Errorf("metrics file path is required")
	}
	if g == nil {
		g = Gatherer
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create metrics directory: %w", err)
	}

	if err := prometheus.WriteToTextfile(path, g); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}

// Metrics Documentation
//
// Request Metrics (pkg/client):
//   - catalog_requests_total{class, status} (Counter): Listing requests by class and HTTP status ("cached" for cache hits)
//   - catalog_request_duration_seconds{class} (Histogram): Request duration by class
//   - catalog_errors_total{error_class} (Counter): Errors by class (client, server, network, decode)
//
// Paging Metrics (pkg/pagination):
//   - catalog_pages_fetched_total{class} (Counter): Non-empty pages delivered
//   - catalog_records_fetched_total{class} (Counter): Records delivered
//
// Throttle Metrics (pkg/ratelimit):
//   - catalog_throttle_waits_total{name} (Counter): Pauses between requests
//   - catalog_throttle_wait_seconds_total{name} (Counter): Time spent pausing
//
// Cache Metrics (pkg/cache):
//   - catalog_cache_hits_total{layer="redis"} (Counter): Cache hits by layer
//   - catalog_cache_misses_total (Counter): Cache misses
//   - catalog_cache_size_bytes{layer="redis"} (Gauge): Bytes moved through the cache
//   - catalog_cache_errors_total{operation} (Counter): Cache operation errors
//
// Image Metrics (pkg/images):
//   - catalog_image_downloads_total{outcome} (Counter): Image jobs by outcome
//   - catalog_image_queue_depth (Gauge): Jobs waiting for a worker
//
// Run Metrics (internal/scrape):
//   - catalog_products_total{compatibility} (Gauge): Products of the last run with/without compatibility
//   - catalog_last_run_timestamp_seconds (Gauge): End of the last run
//   - catalog_last_run_duration_seconds (Gauge): Duration of the last run
//
// Example Prometheus Queries:
//
//   # Compatibility coverage of the last run
//   catalog_products_total{compatibility="yes"} / ignoring(compatibility) sum(catalog_products_total)
//
//   # Stale export (no run for a day)
//   time() - catalog_last_run_timestamp_seconds > 86400
//
//   # Listing error rate
//   rate(catalog_errors_total[1h])
//
//   # Rejected images
//   catalog_image_downloads_total{outcome="rejected"}
