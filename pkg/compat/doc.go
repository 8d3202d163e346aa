// Package compat joins vehicle compatibility reference data with the
// product-to-compatibility relationship table and renders the result as a
// human-readable compatibility string per product.
//
// The reference data comes from two listing classes of the merchant API:
// compatibility definitions (brand, model, trim, year range, displacement)
// and relationship records linking a product id to a compatibility id.
//
// Example usage:
//
//	records, _ := compat.DecodeRecords(rawCompat)
//	links, _ := compat.DecodeRelationships(rawLinks)
//	index := compat.BuildIndex(records, links)
//	text := compat.Format(index.Lookup(productID))
//
// Building the index never fails: links whose product or compatibility id is
// missing, or whose compatibility id has no definition, are dropped according
// to the configured UnresolvedPolicy and counted in Stats.Dropped.
package compat
