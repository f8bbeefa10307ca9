// Package main provides the entry point for the depthcrawl CLI.
//
// depthcrawl crawls seed domains breadth-first up to a per-domain depth with
// a headless browser and records every discovered link and the page it was
// found on. The frontier lives in SQLite or PostgreSQL, so an interrupted
// crawl resumes where it stopped.
//
// Usage:
//
//	depthcrawl seed example.com
//	depthcrawl crawl
//	depthcrawl status
//
// See --help for all available options.
package main

func main() {
	Execute()
}
