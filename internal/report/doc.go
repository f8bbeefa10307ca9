// Package report renders the crawl status of every seed domain.
//
// Build reads the frontier store into a Status value. Writers render it:
//   - SimpleWriter: plain text for terminals
//   - JSONWriter: structured output for tooling
//   - MarkdownWriter: tables and a mermaid pie chart of URL statuses
//
// Writers implement the Writer interface and can be combined with MultiWriter.
package report
