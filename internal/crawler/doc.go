// Package crawler runs the crawl loop over the frontier.
//
// # Loop
//
// Each worker repeatedly claims a seed domain, makes sure its root URL is in
// the frontier and then claims the domain's URLs one at a time, shallowest
// first. A claimed URL is extracted with the worker's own browser, its
// anchors are handed to the link processor and the URL is marked visited, or
// error when extraction failed. The domain is completed when its frontier is
// empty or when a claimed URL reaches the domain's maximum depth.
//
// # Failure handling
//
// A failing page or link never stops the crawl. Store failures during a
// URL are logged and the loop moves on; only claims that keep failing after
// retries end the run with a *FatalError.
//
// # Cancellation
//
// Cancelling the context stops every worker between URLs and between
// domains. Claims left in_progress are taken over by the next run, which
// uses a different run id, once their lease has expired. While Run is
// active it renews the leases of everything it holds.
//
// # Usage
//
//	o := crawler.New(store, linkproc.New(store), newExtractor,
//		crawler.WithWorkers(4),
//		crawler.WithLogger(logger))
//	stats, err := o.Run(ctx)
package crawler
