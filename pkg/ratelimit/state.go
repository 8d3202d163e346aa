// Package ratelimit spaces out listing requests so the merchant backend is
// not hammered. Each listing class has its own Delay: a fixed pause for the
// reference tables and a random pause for product pages.
package ratelimit

import (
	"fmt"
	"math/rand/v2"
	"time"
)

// Delay is a pause drawn uniformly from [Min, Max].
type Delay struct {
	Min time.Duration `json:"min"`
	Max time.Duration `json:"max"`
}

// Fixed returns a Delay that always waits d.
func Fixed(d time.Duration) Delay {
	return Delay{Min: d, Max: d}
}

// Between returns a Delay drawn uniformly from [lo, hi].
func Between(lo, hi time.Duration) Delay {
	return Delay{Min: lo, Max: hi}
}

// Validate checks that the bounds are non-negative and ordered.
func (d Delay) Validate() error {
	if d.Min < 0 || d.Max < 0 {
		return fmt.Errorf("delay must be >= 0 (got %s..%s)", d.Min, d.Max)
	}
	if d.Max < d.Min {
		return fmt.Errorf("delay max must be >= min (got %s..%s)", d.Min, d.Max)
	}
	return nil
}

// IsZero reports whether the delay never waits.
func (d Delay) IsZero() bool {
	return d.Max <= 0
}

// Next returns the next pause. Min is returned when Max <= Min.
func (d Delay) Next() time.Duration {
	if d.Max <= d.Min {
		return d.Min
	}
	return d.Min + rand.N(d.Max-d.Min+1)
}

// String formats the delay as "500ms" or "1s..2.5s".
func (d Delay) String() string {
	if d.Max <= d.Min {
		return d.Min.String()
	}
	return d.Min.String() + ".." + d.Max.String()
}
