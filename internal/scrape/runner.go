// Package scrape runs one export: reference data, index, product paging with
// enrichment and image downloads, then the CSV.
package scrape

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Sternrassler/merchant-catalog-export/internal/config"
	"github.com/Sternrassler/merchant-catalog-export/pkg/cache"
	"github.com/Sternrassler/merchant-catalog-export/pkg/catalog"
	"github.com/Sternrassler/merchant-catalog-export/pkg/client"
	"github.com/Sternrassler/merchant-catalog-export/pkg/compat"
	"github.com/Sternrassler/merchant-catalog-export/pkg/export"
	"github.com/Sternrassler/merchant-catalog-export/pkg/images"
	"github.com/Sternrassler/merchant-catalog-export/pkg/metrics"
	"github.com/Sternrassler/merchant-catalog-export/pkg/pagination"
	"github.com/Sternrassler/merchant-catalog-export/pkg/ratelimit"
	"github.com/gofrs/flock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LockFileName is created in the image directory while a run is active.
const LockFileName = ".catalog-export.lock"

// ErrLocked is returned when another run holds the lock.
var ErrLocked = errors.New("another export is running")

var (
	productsGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "catalog_products_total",
		Help: "Products exported by the last run, split by compatibility",
	}, []string{"compatibility"})

	lastRunTimestamp = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "catalog_last_run_timestamp_seconds",
		Help: "Unix time the last run finished",
	})

	lastRunDuration = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "catalog_last_run_duration_seconds",
		Help: "Duration of the last run",
	})
)

// Runner executes exports for one configuration.
type Runner struct {
	cfg        *config.Config
	lister     pagination.PageLister
	downloader images.Downloader
	redis      *redis.Client
	ownsRedis  bool
	logger     zerolog.Logger
	runID      string
}

// Option customizes a Runner.
type Option func(*Runner)

// WithLister replaces the listing client (tests).
func WithLister(l pagination.PageLister) Option {
	return func(r *Runner) { r.lister = l }
}

// WithDownloader replaces the image materializer (tests).
func WithDownloader(d images.Downloader) Option {
	return func(r *Runner) { r.downloader = d }
}

// WithRedis uses an existing Redis client for the page cache.
func WithRedis(c *redis.Client) Option {
	return func(r *Runner) { r.redis = c }
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(r *Runner) { r.logger = logger }
}

// WithRunID sets the identifier reported for this run.
func WithRunID(id string) Option {
	return func(r *Runner) { r.runID = id }
}

// New creates a runner. The listing client and materializer are built from
// cfg unless supplied as options.
func New(cfg *config.Config, opts ...Option) (*Runner, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	r := &Runner{
		cfg:    cfg,
		logger: log.With().Str("component", "scrape").Logger(),
	}
	for _, opt := range opts {
		opt(r)
	}

	if r.lister == nil {
		lister, err := r.newClient()
		if err != nil {
			r.Close()
			return nil, err
		}
		r.lister = lister
	}

	if r.downloader == nil && cfg.Images.Enabled {
		r.downloader = images.NewMaterializer(images.Config{
			Timeout: cfg.ImageTimeout(),
			Headers: cfg.ImageHeaders(),
		})
	}

	return r, nil
}

func (r *Runner) newClient() (*client.Client, error) {
	clientCfg := client.DefaultConfig(r.cfg.API.BaseURL)
	clientCfg.Headers = r.cfg.Headers()
	clientCfg.Timeout = r.cfg.APITimeout()

	if r.cfg.Cache.Enabled {
		if r.redis == nil {
			opts, err := redis.ParseURL(r.cfg.Cache.RedisURL)
			if err != nil {
				return nil, fmt.Errorf("parse redis url: %w", err)
			}
			r.redis = redis.NewClient(opts)
			r.ownsRedis = true
		}
		clientCfg.Cache = cache.NewManager(r.redis)
		clientCfg.CacheTTL = r.cfg.CacheTTL()
	}

	c, err := client.New(clientCfg)
	if err != nil {
		return nil, fmt.Errorf("create listing client: %w", err)
	}
	return c, nil
}

// Close releases the Redis connection opened by New.
func (r *Runner) Close() error {
	if r.redis != nil && r.ownsRedis {
		r.ownsRedis = false
		return r.redis.Close()
	}
	return nil
}

// Run performs one export. Fetch failures are logged and the run continues
// with what was collected; only a held lock or a failed CSV write is
// returned as an error. The report is returned in every case.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	report := &Report{
		RunID:         r.runID,
		Started:       time.Now(),
		ImagesEnabled: r.cfg.Images.Enabled,
		CSVPath:       r.cfg.Output.CSVPath,
	}
	defer func() {
		report.Duration = time.Since(report.Started)
		report.Interrupted = ctx.Err() != nil
	}()

	unlock, err := r.lock()
	if err != nil {
		return report, err
	}
	defer unlock()

	r.logger.Info().
		Str("base_url", r.cfg.API.BaseURL).
		Int("max_pages", r.cfg.Products.MaxPages).
		Bool("images", r.cfg.Images.Enabled).
		Bool("cache", r.cfg.Cache.Enabled).
		Msg("Starting catalog export")

	index := r.buildIndex(ctx, report)

	products := r.scrapeProducts(ctx, index, report)

	if len(products) == 0 {
		r.logger.Warn().Msg("No products collected, nothing written")
	} else {
		if err := export.WriteFile(r.cfg.Output.CSVPath, products); err != nil {
			r.logger.Error().Err(err).Str("path", r.cfg.Output.CSVPath).Msg("CSV write failed")
			return report, fmt.Errorf("write csv: %w", err)
		}
		report.CSVWritten = true
		r.logger.Info().
			Str("path", r.cfg.Output.CSVPath).
			Int("products", len(products)).
			Msg("CSV written")
	}

	report.Duration = time.Since(report.Started)
	r.publishMetrics(report)

	return report, nil
}

// lock takes the run lock in the image directory.
func (r *Runner) lock() (func(), error) {
	if err := os.MkdirAll(r.cfg.Images.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create image directory: %w", err)
	}

	lockPath := filepath.Join(r.cfg.Images.Dir, LockFileName)
	fl := flock.New(lockPath)

	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w (lock %s)", ErrLocked, lockPath)
	}

	return func() {
		if err := fl.Unlock(); err != nil {
			r.logger.Warn().Err(err).Msg("Failed to release run lock")
		}
	}, nil
}

// buildIndex fetches both reference classes and builds the index from
// whatever was retrieved.
func (r *Runner) buildIndex(ctx context.Context, report *Report) *compat.Index {
	fetcher := pagination.NewFetcher(r.lister, pagination.Config{
		PageSize:  r.cfg.Reference.PageSize,
		Cacheable: r.cfg.Cache.Enabled,
		Delay:     ratelimit.Fixed(r.cfg.ReferenceDelay()),
	}, r.logger)

	rawRecords, sum, err := fetcher.FetchAll(ctx, compat.ClassCompatibility)
	report.Compatibility = sum
	if err != nil {
		report.addFetchError(compat.ClassCompatibility, err)
		r.logger.Warn().Err(err).Int("records", len(rawRecords)).Msg("Compatibility fetch incomplete, keeping partial data")
	}

	rawLinks, sum, err := fetcher.FetchAll(ctx, compat.ClassRelationship)
	report.Relationships = sum
	if err != nil {
		report.addFetchError(compat.ClassRelationship, err)
		r.logger.Warn().Err(err).Int("records", len(rawLinks)).Msg("Relationship fetch incomplete, keeping partial data")
	}

	records, skippedRecords := compat.DecodeRecords(rawRecords)
	links, skippedLinks := compat.DecodeRelationships(rawLinks)
	if skippedRecords+skippedLinks > 0 {
		r.logger.Warn().
			Int("records", skippedRecords).
			Int("relationships", skippedLinks).
			Msg("Skipped undecodable reference records")
	}

	opts := []compat.Option{compat.WithLogger(r.logger)}
	if r.cfg.Compatibility.Duplicates == config.DuplicatesFirstWins {
		opts = append(opts, compat.WithDuplicatePolicy(compat.FirstWins))
	}
	if r.cfg.Compatibility.LogUnresolved {
		opts = append(opts, compat.WithUnresolvedPolicy(compat.LogUnresolved))
	}

	index := compat.BuildIndex(records, links, opts...)
	report.Index = index.Stats()

	r.logger.Info().
		Int("records", report.Index.Records).
		Int("relationships", report.Index.Relationships).
		Int("linked", report.Index.Linked).
		Int("dropped", report.Index.Dropped).
		Int("products", report.Index.Products).
		Msg("Compatibility index built")

	return index
}

// scrapeProducts pages the product class, enriching each record and queueing
// its images as the page arrives.
func (r *Runner) scrapeProducts(ctx context.Context, index *compat.Index, report *Report) []*catalog.Product {
	enricher := &catalog.Enricher{
		Index: index,
		Images: catalog.ImageURLs{
			MainBaseURL:    r.cfg.Images.MainBaseURL,
			GalleryBaseURL: r.cfg.Images.GalleryBaseURL,
			Dir:            r.cfg.Images.Dir,
			Disabled:       !r.cfg.Images.Enabled || r.downloader == nil,
		},
	}

	var pool *images.Pool
	if !enricher.Images.Disabled {
		pool = images.NewPool(ctx, r.downloader, images.PoolConfig{
			Workers:   r.cfg.Images.Workers,
			QueueSize: r.cfg.Images.QueueSize,
		}, r.logger)
	}

	lo, hi := r.cfg.ProductDelay()
	fetcher := pagination.NewFetcher(r.lister, pagination.Config{
		PageSize: r.cfg.Products.PageSize,
		MaxPages: r.cfg.Products.MaxPages,
		Delay:    ratelimit.Between(lo, hi),
	}, r.logger)

	var products []*catalog.Product
	sum, err := fetcher.Each(ctx, catalog.ClassProducts, func(page client.Page) error {
		decoded, skipped := catalog.DecodeProducts(page.Records)
		report.SkippedProducts += skipped

		for _, p := range decoded {
			res := enricher.Enrich(p)
			products = append(products, p)

			if res.HasCompatibility() {
				report.WithCompatibility++
			}

			r.logger.Debug().
				Str("product_id", string(res.ProductID)).
				Str("name", p.Name()).
				Bool("compatibility", res.HasCompatibility()).
				Int("images", len(res.Jobs)).
				Msg("Enriched product")

			if pool != nil {
				for _, job := range res.Jobs {
					pool.Submit(job)
				}
			}
		}
		return nil
	})
	report.Products = sum
	if err != nil {
		report.addFetchError(catalog.ClassProducts, err)
		r.logger.Warn().Err(err).Int("products", len(products)).Msg("Product fetch incomplete, keeping partial data")
	}

	if pool != nil {
		report.Images = pool.Close()
	}

	report.ProductsTotal = len(products)
	return products
}

func (r *Runner) publishMetrics(report *Report) {
	productsGauge.WithLabelValues("yes").Set(float64(report.WithCompatibility))
	productsGauge.WithLabelValues("no").Set(float64(report.WithoutCompatibility()))
	lastRunTimestamp.SetToCurrentTime()
	lastRunDuration.Set(report.Duration.Seconds())

	if r.cfg.Output.MetricsFile == "" {
		return
	}
	if err := metrics.WriteTextfile(r.cfg.Output.MetricsFile, nil); err != nil {
		r.logger.Warn().Err(err).Str("path", r.cfg.Output.MetricsFile).Msg("Metrics textfile not written")
	}
}
