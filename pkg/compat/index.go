package compat

import (
	"github.com/rs/zerolog"
)

// UnresolvedPolicy decides what happens to a relationship that cannot be
// resolved: a missing product id, a missing compatibility id, or a
// compatibility id with no definition.
type UnresolvedPolicy int

const (
	// DropUnresolved drops the link silently. Reference data is routinely
	// incomplete, so this is the default.
	DropUnresolved UnresolvedPolicy = iota

	// LogUnresolved drops the link and emits a debug log line for it.
	LogUnresolved
)

// DuplicatePolicy decides which definition wins when two compatibility
// records share an id.
type DuplicatePolicy int

const (
	// LastWins keeps the definition seen last in input order.
	LastWins DuplicatePolicy = iota

	// FirstWins keeps the definition seen first in input order.
	FirstWins
)

// Stats summarizes an index build.
type Stats struct {
	Records       int // compatibility definitions supplied
	Unkeyed       int // definitions ignored for lack of an id
	Duplicates    int // definitions sharing an id with an earlier one
	Relationships int // links supplied
	Linked        int // links resolved into a descriptor
	Dropped       int // links dropped as unresolved
	Products      int // distinct products with at least one descriptor
}

// Option configures BuildIndex.
type Option func(*buildOptions)

type buildOptions struct {
	unresolved UnresolvedPolicy
	duplicates DuplicatePolicy
	logger     zerolog.Logger
}

// WithUnresolvedPolicy sets the policy for unresolvable links.
func WithUnresolvedPolicy(p UnresolvedPolicy) Option {
	return func(o *buildOptions) { o.unresolved = p }
}

// WithDuplicatePolicy sets the policy for duplicate compatibility ids.
func WithDuplicatePolicy(p DuplicatePolicy) Option {
	return func(o *buildOptions) { o.duplicates = p }
}

// WithLogger sets the logger used by LogUnresolved.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *buildOptions) { o.logger = logger }
}

// Index maps a product id to its descriptors in relationship order.
// It is read-only once built.
type Index struct {
	byProduct map[ID][]Descriptor
	stats     Stats
}

// BuildIndex joins relationship links against compatibility definitions.
func BuildIndex(records []Record, links []Relationship, opts ...Option) *Index {
	o := buildOptions{
		unresolved: DropUnresolved,
		duplicates: LastWins,
		logger:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	stats := Stats{
		Records:       len(records),
		Relationships: len(links),
	}

	byID := make(map[ID]Record, len(records))
	for _, r := range records {
		if r.ID == "" {
			stats.Unkeyed++
			continue
		}
		if _, seen := byID[r.ID]; seen {
			stats.Duplicates++
			if o.duplicates == FirstWins {
				continue
			}
		}
		byID[r.ID] = r
	}

	byProduct := make(map[ID][]Descriptor)
	for i, l := range links {
		if l.ProductID == "" || l.CompatibilityID == "" {
			stats.Dropped++
			o.dropped(i, l, "missing id")
			continue
		}

		r, ok := byID[l.CompatibilityID]
		if !ok {
			stats.Dropped++
			o.dropped(i, l, "unknown compatibility id")
			continue
		}

		byProduct[l.ProductID] = append(byProduct[l.ProductID], r.Descriptor())
		stats.Linked++
	}
	stats.Products = len(byProduct)

	return &Index{byProduct: byProduct, stats: stats}
}

func (o *buildOptions) dropped(pos int, l Relationship, reason string) {
	if o.unresolved != LogUnresolved {
		return
	}
	o.logger.Debug().
		Int("position", pos).
		Str("product_id", string(l.ProductID)).
		Str("compatibility_id", string(l.CompatibilityID)).
		Str("reason", reason).
		Msg("Dropped unresolved relationship")
}

// Lookup returns the descriptors of a product, or nil when it has none.
// The returned slice must not be modified.
func (ix *Index) Lookup(productID ID) []Descriptor {
	if ix == nil {
		return nil
	}
	return ix.byProduct[productID]
}

// Len returns the number of products with at least one descriptor.
func (ix *Index) Len() int {
	if ix == nil {
		return 0
	}
	return len(ix.byProduct)
}

// Stats returns the counters collected while building the index.
func (ix *Index) Stats() Stats {
	if ix == nil {
		return Stats{}
	}
	return ix.stats
}
