package report

import (
	"encoding/json"
	"io"

	"github.com/nao1215/depthcrawl/internal/model"
)

// JSONWriter outputs the status as a single JSON document. The document is
// the Status itself followed by run-wide totals, so it decodes back into a
// Status.
type JSONWriter struct {
	baseWriter

	indent       bool
	indentPrefix string
	indentString string
}

// JSONWriterOption configures a JSONWriter.
type JSONWriterOption func(*JSONWriter)

// WithIndent enables indented output.
func WithIndent(prefix, indent string) JSONWriterOption {
	return func(w *JSONWriter) {
		w.indent = true
		w.indentPrefix = prefix
		w.indentString = indent
	}
}

// WithPrettyPrint is WithIndent("", "  ").
func WithPrettyPrint() JSONWriterOption {
	return WithIndent("", "  ")
}

// NewJSONWriter creates a JSONWriter. Output is compact unless an indent
// option is given.
func NewJSONWriter(output io.Writer, opts ...JSONWriterOption) *JSONWriter {
	w := &JSONWriter{baseWriter: newBaseWriter(output)}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

type jsonTotals struct {
	Domains map[model.DomainStatus]int `json:"domains"`
	URLs    map[model.URLStatus]int    `json:"urls"`
}

type jsonDocument struct {
	*Status
	Totals jsonTotals `json:"totals"`
}

// Write implements Writer.
func (w *JSONWriter) Write(status *Status) (int, error) {
	doc := jsonDocument{
		Status: status,
		Totals: jsonTotals{
			Domains: status.DomainTotals(),
			URLs:    status.URLTotals(),
		},
	}

	var (
		data []byte
		err  error
	)
	if w.indent {
		data, err = json.MarshalIndent(doc, w.indentPrefix, w.indentString)
	} else {
		data, err = json.Marshal(doc)
	}
	if err != nil {
		return 0, err
	}

	data = append(data, '\n')
	return w.output.Write(data)
}
