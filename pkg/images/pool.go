package images

import (
	"context"
	"errors"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

var (
	imageDownloadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_image_downloads_total",
		Help: "Image download attempts by outcome",
	}, []string{"outcome"})

	imageQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "catalog_image_queue_depth",
		Help: "Image jobs waiting for a worker",
	})
)

// Downloader is implemented by Materializer.
type Downloader interface {
	Download(ctx context.Context, job Job) (Outcome, error)
}

// PoolConfig holds the worker pool configuration.
type PoolConfig struct {
	// Workers is the number of parallel downloads. One worker reproduces the
	// strictly sequential behaviour of the scraper.
	Workers int

	// QueueSize is the number of jobs buffered before Submit blocks.
	QueueSize int
}

// DefaultPoolConfig returns a sequential pool.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		Workers:   1,
		QueueSize: 64,
	}
}

// Stats counts pool outcomes.
type Stats struct {
	Submitted  int
	Duplicates int
	Downloaded int
	Exists     int
	Rejected   int
	Failed     int
	Skipped    int
}

// Pool decouples image materialization from page processing.
type Pool struct {
	ctx        context.Context
	downloader Downloader
	logger     zerolog.Logger
	jobs       chan Job
	wg         sync.WaitGroup

	submitMu sync.Mutex
	closed   bool
	seen     map[string]struct{}

	statsMu sync.Mutex
	stats   Stats
}

// NewPool starts the workers. Jobs submitted after ctx is cancelled are dropped.
func NewPool(ctx context.Context, d Downloader, cfg PoolConfig, logger zerolog.Logger) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize < 0 {
		cfg.QueueSize = 0
	}

	p := &Pool{
		ctx:        ctx,
		downloader: d,
		logger:     logger,
		jobs:       make(chan Job, cfg.QueueSize),
		seen:       make(map[string]struct{}),
	}

	for i := 0; i < cfg.Workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	return p
}

// Submit queues a job. The same destination path is only queued once per pool.
// It returns false when the job was not queued.
func (p *Pool) Submit(job Job) bool {
	p.submitMu.Lock()
	defer p.submitMu.Unlock()

	if p.closed {
		return false
	}

	if dest := job.Path(); dest != "" {
		if _, dup := p.seen[dest]; dup {
			p.record(func(s *Stats) { s.Duplicates++ })
			return false
		}
		p.seen[dest] = struct{}{}
	}

	select {
	case p.jobs <- job:
		p.record(func(s *Stats) { s.Submitted++ })
		imageQueueDepth.Inc()
		return true
	case <-p.ctx.Done():
		return false
	}
}

// Close stops accepting jobs, waits for queued ones and returns the totals.
func (p *Pool) Close() Stats {
	p.submitMu.Lock()
	if !p.closed {
		p.closed = true
		close(p.jobs)
	}
	p.submitMu.Unlock()

	p.wg.Wait()
	return p.Stats()
}

// Stats returns a snapshot of the counters.
func (p *Pool) Stats() Stats {
	p.statsMu.Lock()
	defer p.statsMu.Unlock()
	return p.stats
}

func (p *Pool) record(fn func(*Stats)) {
	p.statsMu.Lock()
	fn(&p.stats)
	p.statsMu.Unlock()
}

func (p *Pool) worker(workerID int) {
	defer p.wg.Done()
	processed := 0

	for job := range p.jobs {
		imageQueueDepth.Dec()

		if p.ctx.Err() != nil {
			p.record(func(s *Stats) { s.Skipped++ })
			imageDownloadsTotal.WithLabelValues(string(OutcomeSkipped)).Inc()
			continue
		}

		outcome, err := p.downloader.Download(p.ctx, job)
		imageDownloadsTotal.WithLabelValues(string(outcome)).Inc()
		processed++

		switch outcome {
		case OutcomeDownloaded:
			p.record(func(s *Stats) { s.Downloaded++ })
			p.logger.Debug().Str("url", job.URL).Str("path", job.Path()).Msg("Image downloaded")
		case OutcomeExists:
			p.record(func(s *Stats) { s.Exists++ })
		case OutcomeRejected:
			p.record(func(s *Stats) { s.Rejected++ })
			p.logger.Warn().Err(err).Str("url", job.URL).Msg("Image skipped")
		case OutcomeSkipped:
			p.record(func(s *Stats) { s.Skipped++ })
		default:
			p.record(func(s *Stats) { s.Failed++ })
			if errors.Is(err, context.Canceled) {
				p.logger.Debug().Str("url", job.URL).Msg("Image download cancelled")
				continue
			}
			p.logger.Error().Err(err).Str("url", job.URL).Msg("Image download failed")
		}
	}

	p.logger.Debug().
		Int("worker_id", workerID).
		Int("jobs_processed", processed).
		Msg("Image worker completed")
}
