package pagination

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Sternrassler/merchant-catalog-export/pkg/client"
	"github.com/Sternrassler/merchant-catalog-export/pkg/ratelimit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

var (
	pagesFetchedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_pages_fetched_total",
		Help: "Total listing pages delivered by class",
	}, []string{"class"})

	recordsFetchedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_records_fetched_total",
		Help: "Total listing records delivered by class",
	}, []string{"class"})
)

// StopReason tells why a paging loop ended.
type StopReason string

const (
	StopEmptyPage  StopReason = "empty_page"
	StopTotalCount StopReason = "total_count"
	StopMaxPages   StopReason = "max_pages"
	StopError      StopReason = "error"
	StopCancelled  StopReason = "cancelled"
)

// Config holds fetcher configuration.
type Config struct {
	// PageSize is sent as pageSize on every request.
	PageSize int

	// MaxPages caps the number of pages read. 0 means no cap.
	MaxPages int

	// Cacheable lets the client serve pages from its cache.
	Cacheable bool

	// Delay is the pause between consecutive network requests.
	Delay ratelimit.Delay
}

// PageLister is the interface the listing client implements for single-page fetching.
type PageLister interface {
	ListPage(ctx context.Context, req client.PageRequest) (*client.Page, error)
}

// Summary describes a finished paging loop.
type Summary struct {
	Class       string
	Pages       int
	CachedPages int
	Records     int
	TotalCount  int
	Stop        StopReason
	Duration    time.Duration
}

// Fetcher reads every page of a listing class in order.
type Fetcher struct {
	lister PageLister
	config Config
	logger zerolog.Logger
}

// NewFetcher creates a new fetcher.
func NewFetcher(lister PageLister, config Config, logger zerolog.Logger) *Fetcher {
	if config.PageSize <= 0 {
		config.PageSize = 100
	}
	if config.MaxPages < 0 {
		config.MaxPages = 0
	}

	return &Fetcher{
		lister: lister,
		config: config,
		logger: logger,
	}
}

// Each calls fn with every non-empty page of class. Paging stops early on a
// request error, a callback error or a cancelled context; the returned
// Summary then covers the pages already handed to fn.
func (f *Fetcher) Each(ctx context.Context, class string, fn func(client.Page) error) (Summary, error) {
	start := time.Now()
	sum := Summary{Class: class}
	throttle := ratelimit.NewThrottle(class, f.config.Delay, f.logger)

	finish := func(reason StopReason, err error) (Summary, error) {
		sum.Stop = reason
		sum.Duration = time.Since(start)

		event := f.logger.Info()
		if err != nil {
			event = f.logger.Warn().Err(err)
		}
		event.
			Str("class", class).
			Int("pages", sum.Pages).
			Int("cached_pages", sum.CachedPages).
			Int("records", sum.Records).
			Int("total_count", sum.TotalCount).
			Str("stop", string(reason)).
			Dur("duration", sum.Duration).
			Msg("Listing fetch finished")

		return sum, err
	}

	lastCached := false
	for pageNo := 1; ; pageNo++ {
		if f.config.MaxPages > 0 && pageNo > f.config.MaxPages {
			return finish(StopMaxPages, nil)
		}

		if pageNo > 1 && !lastCached {
			if err := throttle.Wait(ctx); err != nil {
				return finish(StopCancelled, err)
			}
		}

		page, err := f.lister.ListPage(ctx, client.PageRequest{
			Class:     class,
			PageNo:    pageNo,
			PageSize:  f.config.PageSize,
			Cacheable: f.config.Cacheable,
		})
		if err != nil {
			if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
				return finish(StopCancelled, err)
			}
			return finish(StopError, fmt.Errorf("fetch %s page %d: %w", class, pageNo, err))
		}
		lastCached = page.Cached

		if len(page.Records) == 0 {
			return finish(StopEmptyPage, nil)
		}

		sum.Pages++
		sum.Records += len(page.Records)
		if page.Cached {
			sum.CachedPages++
		}
		if page.TotalCount > 0 {
			sum.TotalCount = page.TotalCount
		}
		pagesFetchedTotal.WithLabelValues(class).Inc()
		recordsFetchedTotal.WithLabelValues(class).Add(float64(len(page.Records)))

		f.logger.Info().
			Str("class", class).
			Int("page", pageNo).
			Int("records", len(page.Records)).
			Int("accumulated", sum.Records).
			Int("total_count", page.TotalCount).
			Bool("cached", page.Cached).
			Msg("Fetched listing page")

		if err := fn(*page); err != nil {
			return finish(StopError, fmt.Errorf("handle %s page %d: %w", class, pageNo, err))
		}

		if page.TotalCount > 0 && sum.Records >= page.TotalCount {
			return finish(StopTotalCount, nil)
		}
	}
}

// FetchAll accumulates every record of class. On failure it returns the
// records read so far together with the error.
func (f *Fetcher) FetchAll(ctx context.Context, class string) ([]json.RawMessage, Summary, error) {
	var records []json.RawMessage
	sum, err := f.Each(ctx, class, func(p client.Page) error {
		records = append(records, p.Records...)
		return nil
	})
	return records, sum, err
}
