// Package metrics exposes crawl progress as Prometheus metrics.
//
// Every recording method is safe to call on a nil *Metrics, so components
// record unconditionally and the CLI decides whether metrics exist.
package metrics
