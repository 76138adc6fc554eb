package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/nao1215/sitemirror/internal/model"
)

// SimpleWriter outputs a plain text summary for terminal display.
type SimpleWriter struct {
	baseWriter

	// verbose adds error messages, referrers and the off-site list.
	verbose bool
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithVerbose enables verbose output with additional details.
func WithVerbose(verbose bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.verbose = verbose
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{
		baseWriter: newBaseWriter(output),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write outputs the report in human-readable format.
func (w *SimpleWriter) Write(report *model.MirrorReport) (int, error) {
	var sb strings.Builder
	summary := report.Summarize()

	w.writeHeader(&sb, report)
	w.writeSummary(&sb, report, summary)
	w.writeFailures(&sb, report)
	w.writeRewriteErrors(&sb, report)
	w.writeOffSite(&sb, report)
	w.writeFooter(&sb)

	return io.WriteString(w.output, sb.String())
}

func section(sb *strings.Builder, title string) {
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")
	sb.WriteString(title)
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n\n")
}

func (w *SimpleWriter) writeHeader(sb *strings.Builder, report *model.MirrorReport) {
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
	sb.WriteString("                         SITEMIRROR REPORT\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n\n")

	fmt.Fprintf(sb, "Seed URL:       %s\n", report.SeedURL)
	fmt.Fprintf(sb, "Output:         %s\n", report.OutputDir)
	fmt.Fprintf(sb, "Started:        %s\n", report.StartedAt.Format("2006-01-02 15:04:05 MST"))
	if d := report.Duration(); d > 0 {
		fmt.Fprintf(sb, "Duration:       %s\n", d.Round(time.Millisecond))
	}
	fmt.Fprintf(sb, "Status:         %s\n", statusText(report))
	if p := report.Platform; p != nil {
		if p.Webflow {
			fmt.Fprintf(sb, "Platform:       Webflow (%s)\n", strings.Join(p.Indicators, ", "))
		} else {
			sb.WriteString("Platform:       not recognized as Webflow\n")
		}
	}
	if report.SitemapPath != "" {
		fmt.Fprintf(sb, "Sitemap:        %s\n", report.SitemapPath)
	}
	sb.WriteString("\n")
}

func (w *SimpleWriter) writeSummary(sb *strings.Builder, report *model.MirrorReport, s model.Summary) {
	section(sb, "SUMMARY")

	fmt.Fprintf(sb, "  Pages mirrored:   %d\n", s.Pages)
	fmt.Fprintf(sb, "  Assets mirrored:  %d\n", s.Assets)
	fmt.Fprintf(sb, "  Failed:           %d\n", s.Failed)
	if s.NotAttempted > 0 {
		fmt.Fprintf(sb, "  Not attempted:    %d\n", s.NotAttempted)
	}
	fmt.Fprintf(sb, "  Off-site skipped: %d\n", s.OffSite)
	if s.Skipped > 0 {
		fmt.Fprintf(sb, "  Over page limit:  %d\n", s.Skipped)
	}
	fmt.Fprintf(sb, "  Files rewritten:  %d\n", s.Rewritten)
	fmt.Fprintf(sb, "  Bytes written:    %s\n", humanBytes(s.Bytes))
	sb.WriteString("\n")

	counts := kindCounts(s)
	if len(counts) == 0 {
		return
	}
	sb.WriteString("  By kind:\n")
	for _, c := range counts {
		fmt.Fprintf(sb, "    %-12s %d\n", c.label, c.n)
	}
	sb.WriteString("\n")
}

func (w *SimpleWriter) writeFailures(sb *strings.Builder, report *model.MirrorReport) {
	failures := report.Failures()
	if len(failures) == 0 {
		return
	}

	section(sb, "FAILURES")
	for _, f := range failures {
		fmt.Fprintf(sb, "  [%s] %s\n", failureLabel(f), f.URL)
		if w.verbose {
			if f.Error != "" {
				fmt.Fprintf(sb, "    Error:    %s\n", f.Error)
			}
			if f.Referrer != "" {
				fmt.Fprintf(sb, "    Found on: %s\n", f.Referrer)
			}
		}
	}
	sb.WriteString("\n")
}

func (w *SimpleWriter) writeRewriteErrors(sb *strings.Builder, report *model.MirrorReport) {
	if len(report.RewriteErrors) == 0 {
		return
	}

	section(sb, "REWRITE ERRORS")
	for _, msg := range report.RewriteErrors {
		fmt.Fprintf(sb, "  * %s\n", msg)
	}
	sb.WriteString("\n")
}

func (w *SimpleWriter) writeOffSite(sb *strings.Builder, report *model.MirrorReport) {
	if !w.verbose || len(report.OffSite) == 0 {
		return
	}

	section(sb, "OFF-SITE REFERENCES")
	for _, u := range report.OffSite {
		fmt.Fprintf(sb, "  - %s\n", u)
	}
	sb.WriteString("\n")
}

func (w *SimpleWriter) writeFooter(sb *strings.Builder) {
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
	sb.WriteString("Report generated by sitemirror\n")
	sb.WriteString("https://github.com/nao1215/sitemirror\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
}

// failureLabel is the failure class, with the HTTP status for http errors.
func failureLabel(r model.Record) string {
	label := r.Failure
	if label == "" {
		label = "failed"
	}
	if r.StatusCode != 0 {
		label = fmt.Sprintf("%s %d", label, r.StatusCode)
	}
	return label
}
