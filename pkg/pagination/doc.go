// Package pagination walks a listing class page by page.
//
// The merchant backend reports a totalCount but gives no page count, and it
// does not tolerate parallel paging, so pages are read strictly in order with
// a pause between requests. The loop stops on the first empty page, once the
// accumulated record count reaches totalCount, or after MaxPages pages.
//
// Example usage:
//
//	fetcher := pagination.NewFetcher(apiClient, pagination.Config{
//		PageSize:  100,
//		Cacheable: true,
//		Delay:     ratelimit.Fixed(500 * time.Millisecond),
//	}, logger)
//	records, err := fetcher.FetchAll(ctx, "Dati_Compatibilita")
//	if err != nil {
//		// records still holds every page read before the failure
//	}
//
// Each streams pages to a callback instead of accumulating them, which is how
// product pages are enriched while the scrape is still running.
package pagination
