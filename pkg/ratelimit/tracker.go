package ratelimit

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for request throttling.
var (
	throttleWaitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_throttle_waits_total",
		Help: "Total number of pauses between listing requests",
	}, []string{"name"})

	throttleWaitSeconds = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_throttle_wait_seconds_total",
		Help: "Total time spent pausing between listing requests",
	}, []string{"name"})
)

// Throttle pauses between consecutive requests of one listing class.
type Throttle struct {
	name   string
	delay  Delay
	logger zerolog.Logger

	// sleep is replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewThrottle creates a throttle that pauses for delay on every Wait.
// name labels the metrics and log lines, usually the listing class.
func NewThrottle(name string, delay Delay, logger zerolog.Logger) *Throttle {
	return &Throttle{
		name:   name,
		delay:  delay,
		logger: logger,
		sleep:  sleepContext,
	}
}

// Delay returns the configured pause.
func (t *Throttle) Delay() Delay {
	if t == nil {
		return Delay{}
	}
	return t.delay
}

// Wait pauses for the next delay or until ctx is done. A nil Throttle never
// waits. The context error is returned when the pause is cut short.
func (t *Throttle) Wait(ctx context.Context) error {
	if t == nil || t.delay.IsZero() {
		return ctx.Err()
	}

	d := t.delay.Next()

	t.logger.Debug().
		Str("name", t.name).
		Dur("pause", d).
		Msg("Throttling before next request")

	throttleWaitsTotal.WithLabelValues(t.name).Inc()
	start := time.Now()
	err := t.sleep(ctx, d)
	throttleWaitSeconds.WithLabelValues(t.name).Add(time.Since(start).Seconds())

	return err
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
