package report

import (
	"encoding/json"
	"io"

	"github.com/nao1215/sitemirror/internal/model"
)

// JSONWriter outputs the complete report as JSON for tool integration.
type JSONWriter struct {
	baseWriter

	// version is written next to the report; empty omits it.
	version string

	indent       bool
	indentPrefix string
	indentString string
}

// JSONWriterOption configures a JSONWriter.
type JSONWriterOption func(*JSONWriter)

// WithIndent enables pretty-printed JSON output.
// The prefix is prepended to each line, and indent is used for each level.
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

// WithVersion records the sitemirror version in the output.
func WithVersion(version string) JSONWriterOption {
	return func(w *JSONWriter) {
		w.version = version
	}
}

// NewJSONWriter creates a JSONWriter that outputs to the given writer.
func NewJSONWriter(output io.Writer, opts ...JSONWriterOption) *JSONWriter {
	w := &JSONWriter{
		baseWriter: newBaseWriter(output),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// JSONReport wraps a report with its summary and the version that
// produced it.
type JSONReport struct {
	// Version is the sitemirror version that generated this report.
	Version string `json:"version,omitempty"`

	// Summary holds the counts shown at the end of a run.
	Summary model.Summary `json:"summary"`

	// Failures lists the failed records, sorted by URL.
	Failures []model.Record `json:"failures"`

	// Report is the complete run report.
	Report *model.MirrorReport `json:"report"`
}

// Write outputs the report in JSON format.
func (w *JSONWriter) Write(report *model.MirrorReport) (int, error) {
	failures := report.Failures()
	if failures == nil {
		failures = []model.Record{}
	}
	return w.writeJSON(JSONReport{
		Version:  w.version,
		Summary:  report.Summarize(),
		Failures: failures,
		Report:   report,
	})
}

func (w *JSONWriter) writeJSON(v any) (int, error) {
	var (
		data []byte
		err  error
	)
	if w.indent {
		data, err = json.MarshalIndent(v, w.indentPrefix, w.indentString)
	} else {
		data, err = json.Marshal(v)
	}
	if err != nil {
		return 0, err
	}

	data = append(data, '\n')
	return w.output.Write(data)
}
