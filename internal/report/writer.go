package report

import (
	"fmt"
	"io"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/nao1215/sitemirror/internal/model"
)

// Writer outputs a mirror report.
type Writer interface {
	// Write outputs the report to the configured destination.
	// Returns the number of bytes written and any error encountered.
	Write(report *model.MirrorReport) (int, error)
}

// MultiWriter writes to multiple Writers, e.g. the terminal and a file.
type MultiWriter struct {
	writers []Writer
}

// NewMultiWriter creates a Writer that writes to all provided Writers.
func NewMultiWriter(writers ...Writer) *MultiWriter {
	return &MultiWriter{writers: writers}
}

// Write outputs the report to all configured Writers.
// Returns the total bytes written across all writers.
// Stops on first error encountered.
func (m *MultiWriter) Write(report *model.MirrorReport) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.Write(report)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// baseWriter provides common functionality for report writers.
type baseWriter struct {
	output io.Writer
}

func newBaseWriter(output io.Writer) baseWriter {
	return baseWriter{output: output}
}

var titleCaser = cases.Title(language.English)

// kindLabel returns the display name of a kind, e.g. "Stylesheet".
func kindLabel(kind string) string {
	return titleCaser.String(kind)
}

// kindCounts returns the per-kind counts of a summary in display order,
// leaving out kinds with nothing mirrored.
func kindCounts(s model.Summary) []kindCount {
	var counts []kindCount
	for _, k := range model.Kinds() {
		if n := s.ByKind[k.String()]; n > 0 {
			counts = append(counts, kindCount{label: kindLabel(k.String()), n: n})
		}
	}
	return counts
}

type kindCount struct {
	label string
	n     int
}

// statusText describes the outcome of a run in one line.
func statusText(report *model.MirrorReport) string {
	switch report.Status {
	case model.RunStatusCanceled:
		return "Canceled (partial mirror)"
	case model.RunStatusError:
		if report.Error != "" {
			return "Error - " + report.Error
		}
		return "Error"
	default:
		return "Complete"
	}
}

// humanBytes formats a byte count with a binary unit.
func humanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
