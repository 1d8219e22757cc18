// Package pagination fetches every page of a paginated ESI endpoint.
//
// ESI reports the page count in the X-Pages header. The first page is
// fetched alone to learn it; the remaining pages are fetched by a worker pool
// through the same client pipeline, so each page is cached and retried
// independently.
//
// Example usage:
//
//	fetcher := pagination.NewBatchFetcher(esiClient, pagination.DefaultConfig())
//	pages, err := fetcher.FetchAllPages(ctx, "/markets/10000002/orders/")
//	orders, err := pagination.MergeArrays(pages)
package pagination
