package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/nao1215/depthcrawl/internal/model"
)

// SimpleWriter outputs a plain text table for terminals.
type SimpleWriter struct {
	baseWriter

	// showEmpty prints the header even when no domain is seeded.
	showEmpty bool
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithShowEmpty configures the writer to print headers for an empty store.
func WithShowEmpty(show bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.showEmpty = show
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{baseWriter: newBaseWriter(output)}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write implements Writer.
func (w *SimpleWriter) Write(status *Status) (int, error) {
	var sb strings.Builder

	if len(status.Domains) == 0 && !w.showEmpty {
		sb.WriteString("No seed domains. Run 'depthcrawl seed' first.\n")
		return w.output.Write([]byte(sb.String()))
	}

	w.writeHeader(&sb, status)
	w.writeDomains(&sb, status)
	w.writeTotals(&sb, status)

	return w.output.Write([]byte(sb.String()))
}

func (w *SimpleWriter) writeHeader(sb *strings.Builder, status *Status) {
	sb.WriteString(strings.Repeat("=", 78))
	sb.WriteString("\n")
	sb.WriteString("CRAWL STATUS\n")
	sb.WriteString(strings.Repeat("=", 78))
	sb.WriteString("\n")
	fmt.Fprintf(sb, "Generated: %s\n\n", status.GeneratedAt.Format("2006-01-02 15:04:05 MST"))
}

func (w *SimpleWriter) writeDomains(sb *strings.Builder, status *Status) {
	fmt.Fprintf(sb, "%-30s %-12s %7s %7s %7s %7s %7s\n",
		"DOMAIN", "STATUS", "DEPTH", "LINKS", "VISITED", "ERROR", "QUEUED")
	for _, d := range status.Domains {
		fmt.Fprintf(sb, "%-30s %-12s %7s %7d %7d %7d %7d\n",
			truncateString(d.Name, 30),
			d.Status,
			fmt.Sprintf("%d/%d", d.CurrentDepth, d.MaxDepth),
			d.UniqueLinks,
			d.URLs[model.URLVisited],
			d.URLs[model.URLError],
			d.URLs[model.URLNotVisited]+d.URLs[model.URLInProgress],
		)
	}
	sb.WriteString("\n")
}

func (w *SimpleWriter) writeTotals(sb *strings.Builder, status *Status) {
	domains := status.DomainTotals()
	urls := status.URLTotals()

	sb.WriteString(strings.Repeat("-", 78))
	sb.WriteString("\n")
	fmt.Fprintf(sb, "Domains: %d pending, %d in progress, %d completed\n",
		domains[model.DomainPending], domains[model.DomainInProgress], domains[model.DomainCompleted])
	fmt.Fprintf(sb, "URLs:    %d not visited, %d in progress, %d visited, %d error\n",
		urls[model.URLNotVisited], urls[model.URLInProgress], urls[model.URLVisited], urls[model.URLError])
}

// truncateString truncates s to maxLen bytes with an ellipsis.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
