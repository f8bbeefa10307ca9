package report

import (
	"fmt"
	"io"
	"strconv"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"

	"github.com/nao1215/depthcrawl/internal/model"
)

// MarkdownWriter outputs the status as GitHub-flavored Markdown.
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{baseWriter: newBaseWriter(output)}
}

// Write implements Writer.
func (w *MarkdownWriter) Write(status *Status) (int, error) {
	md := markdown.NewMarkdown(w.output)

	md.H1("Crawl Status")
	md.PlainText("")
	md.PlainTextf("Generated %s", status.GeneratedAt.Format("2006-01-02 15:04:05 MST"))
	md.PlainText("")

	if len(status.Domains) == 0 {
		md.Note("No seed domains. Run `depthcrawl seed` first.")
		return len(md.String()), md.Build()
	}

	w.writeDomains(md, status)
	w.writeURLSummary(md, status)
	w.writeAlert(md, status)

	return len(md.String()), md.Build()
}

func (w *MarkdownWriter) writeDomains(md *markdown.Markdown, status *Status) {
	md.H2("Domains")
	md.PlainText("")

	rows := make([][]string, len(status.Domains))
	for i, d := range status.Domains {
		rows[i] = []string{
			"`" + d.Name + "`",
			w.domainStatusText(d.Status),
			strconv.Itoa(d.CurrentDepth) + "/" + strconv.Itoa(d.MaxDepth),
			strconv.Itoa(d.UniqueLinks),
			strconv.Itoa(d.Edges),
			strconv.Itoa(d.URLs[model.URLVisited]),
			strconv.Itoa(d.URLs[model.URLError]),
			strconv.Itoa(d.URLs[model.URLNotVisited] + d.URLs[model.URLInProgress]),
		}
	}

	md.Table(markdown.TableSet{
		Header: []string{"Domain", "Status", "Depth", "Unique Links", "Edges", "Visited", "Error", "Queued"},
		Rows:   rows,
	})
	md.PlainText("")
}

func (w *MarkdownWriter) domainStatusText(s model.DomainStatus) string {
	switch s {
	case model.DomainCompleted:
		return "✅ completed"
	case model.DomainInProgress:
		return "🔄 in progress"
	default:
		return "⏳ pending"
	}
}

func (w *MarkdownWriter) writeURLSummary(md *markdown.Markdown, status *Status) {
	totals := status.URLTotals()

	md.H2("URL Status")
	md.PlainText("")

	rows := make([][]string, 0, len(model.AllURLStatuses()))
	var sum int
	for _, s := range model.AllURLStatuses() {
		rows = append(rows, []string{s.String(), strconv.Itoa(totals[s])})
		sum += totals[s]
	}
	rows = append(rows, []string{"**Total**", "**" + strconv.Itoa(sum) + "**"})

	md.Table(markdown.TableSet{
		Header: []string{"Status", "Count"},
		Rows:   rows,
	})
	md.PlainText("")

	if sum > 0 {
		w.writePieChart(md, totals)
	}
}

func (w *MarkdownWriter) writePieChart(md *markdown.Markdown, totals map[model.URLStatus]int) {
	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("URL Status Distribution"),
		piechart.WithShowData(true),
	)
	for _, s := range model.AllURLStatuses() {
		if totals[s] > 0 {
			chart.LabelAndIntValue(s.String(), uint64(totals[s]))
		}
	}

	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

func (w *MarkdownWriter) writeAlert(md *markdown.Markdown, status *Status) {
	totals := status.URLTotals()
	domains := status.DomainTotals()

	switch {
	case totals[model.URLError] > 0:
		md.Warningf("%d URL(s) failed extraction and will not be retried.", totals[model.URLError])
	case domains[model.DomainCompleted] == len(status.Domains):
		md.Tip("All seed domains are completed.")
	default:
		md.Note(fmt.Sprintf("%d of %d seed domain(s) completed.", domains[model.DomainCompleted], len(status.Domains)))
	}
	md.PlainText("")
}
