// Package cache stores listing pages in Redis.
//
// Only reference classes (compatibility records and product links) are
// cached. They change rarely, are large, and a second run within the TTL can
// then skip most of the slow paging. Product pages are never cached.
//
// # Basic Usage
//
//	redisClient := redis.NewClient(&redis.Options{
//		Addr: "localhost:6379",
//	})
//
//	manager := cache.NewManager(redisClient)
//
//	key := cache.CacheKey{
//		Endpoint:    "class/Dati_Compatibilita",
//		QueryParams: url.Values{"pageNo": []string{"1"}, "pageSize": []string{"100"}},
//	}
//
//	entry, err := manager.Get(ctx, key)
//	if err == cache.ErrCacheMiss {
//		// fetch the page, then:
//		_ = manager.Set(ctx, key, cache.NewEntry(body, 200, time.Hour))
//	}
//
// Keys never include the random query pair the listing endpoint is called
// with, so the same page always maps to the same key.
//
// # Metrics
//
//   - catalog_cache_hits_total{layer="redis"} - Cache hits
//   - catalog_cache_misses_total - Cache misses
//   - catalog_cache_size_bytes{layer="redis"} - Bytes read and written
//   - catalog_cache_errors_total{operation} - Cache operation errors
package cache
