package cache

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// KeyPrefix starts every key written by the Manager.
const KeyPrefix = "catalog"

// CacheKey represents a unique identifier for a cached listing page.
type CacheKey struct {
	// Endpoint is the listing path relative to the base URL (e.g. "class/Dati_Compatibilita")
	Endpoint string

	// QueryParams are the paging parameters (e.g. {"pageNo": "1", "pageSize": "100"})
	QueryParams url.Values
}

// String generates a deterministic cache key string.
// Format: catalog:endpoint:param1=val1:param2=val2
//
// Example:
//
//	catalog:class/Dati_Compatibilita:pageNo=1:pageSize=100
func (k CacheKey) String() string {
	parts := []string{KeyPrefix}

	endpoint := strings.Trim(k.Endpoint, "/")
	if endpoint != "" {
		parts = append(parts, endpoint)
	}

	// Add query params (sorted for determinism)
	if len(k.QueryParams) > 0 {
		queryKeys := make([]string, 0, len(k.QueryParams))
		for key := range k.QueryParams {
			queryKeys = append(queryKeys, key)
		}
		sort.Strings(queryKeys)

		for _, key := range queryKeys {
			parts = append(parts, fmt.Sprintf("%s=%s", key, k.QueryParams.Get(key)))
		}
	}

	return strings.Join(parts, ":")
}

// Pattern returns the Redis match pattern covering every page of endpoint.
func Pattern(endpoint string) string {
	endpoint = strings.Trim(endpoint, "/")
	if endpoint == "" {
		return KeyPrefix + ":*"
	}
	return KeyPrefix + ":" + endpoint + ":*"
}
