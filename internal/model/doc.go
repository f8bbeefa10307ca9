// Package model defines the records that flow between the crawl frontier,
// the extraction engine and the link processor.
//
// This package contains the following main types:
//   - SeedDomain: A configured domain and its crawl lifecycle
//   - CrawledURL: One discovered URL row in a domain's frontier
//   - Relationship: A parent to child discovery edge
//   - Anchor: A raw anchor fragment produced by page extraction
//   - Seed: One entry of the seed configuration
//
// The types carry no persistence logic. Storage backends in the database
// package map them to and from table rows.
package model
