package report

import (
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"

	"github.com/nao1215/sitemirror/internal/model"
)

// MarkdownWriter outputs reports in Markdown format, for sharing a run's
// result in an issue or a pull request.
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{
		baseWriter: newBaseWriter(output),
	}
}

// Write outputs the report in Markdown format.
func (w *MarkdownWriter) Write(report *model.MirrorReport) (int, error) {
	md := markdown.NewMarkdown(w.output)
	summary := report.Summarize()

	w.writeHeader(md, report)
	w.writeSummary(md, report, summary)
	w.writeFailures(md, report)
	w.writeRewriteErrors(md, report)
	w.writeOffSite(md, report)
	w.writeFooter(md)

	return len(md.String()), md.Build()
}

func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, report *model.MirrorReport) {
	md.H1("Mirror Report")
	md.PlainText("")

	rows := [][]string{
		{"Seed URL", "`" + report.SeedURL + "`"},
		{"Output", "`" + report.OutputDir + "`"},
		{"Started", report.StartedAt.Format("2006-01-02 15:04:05 MST")},
	}
	if d := report.Duration(); d > 0 {
		rows = append(rows, []string{"Duration", d.Round(time.Millisecond).String()})
	}
	rows = append(rows, []string{"Status", statusIcon(report.Status) + " " + statusText(report)})
	if p := report.Platform; p != nil {
		platform := "Not recognized as Webflow"
		if p.Webflow {
			platform = "Webflow (" + strings.Join(p.Indicators, ", ") + ")"
		}
		rows = append(rows, []string{"Platform", platform})
	}
	if report.SitemapPath != "" {
		rows = append(rows, []string{"Sitemap", "`" + report.SitemapPath + "`"})
	}

	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows:   rows,
	})
	md.PlainText("")
}

func statusIcon(status model.RunStatus) string {
	switch status {
	case model.RunStatusCanceled:
		return "⚠️"
	case model.RunStatusError:
		return "❌"
	default:
		return "✅"
	}
}

func (w *MarkdownWriter) writeSummary(md *markdown.Markdown, report *model.MirrorReport, s model.Summary) {
	md.H2("Summary")
	md.PlainText("")

	rows := [][]string{
		{"Pages mirrored", strconv.Itoa(s.Pages)},
		{"Assets mirrored", strconv.Itoa(s.Assets)},
		{"Failed", strconv.Itoa(s.Failed)},
		{"Not attempted", strconv.Itoa(s.NotAttempted)},
		{"Off-site references", strconv.Itoa(s.OffSite)},
		{"Over page limit", strconv.Itoa(s.Skipped)},
		{"Files rewritten", strconv.Itoa(s.Rewritten)},
		{"Bytes written", humanBytes(s.Bytes)},
	}
	md.Table(markdown.TableSet{
		Header: []string{"Metric", "Count"},
		Rows:   rows,
	})
	md.PlainText("")

	if counts := kindCounts(s); len(counts) > 0 {
		w.writePieChart(md, counts)
	}
	w.writeAlert(md, report, s)
}

// writePieChart writes a mermaid pie chart of mirrored files by kind.
func (w *MarkdownWriter) writePieChart(md *markdown.Markdown, counts []kindCount) {
	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Mirrored Files by Kind"),
		piechart.WithShowData(true),
	)
	for _, c := range counts {
		chart.LabelAndIntValue(c.label, uint64(c.n)) //nolint:gosec // counts are never negative
	}

	md.PlainText("")
	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

func (w *MarkdownWriter) writeAlert(md *markdown.Markdown, report *model.MirrorReport, s model.Summary) {
	switch {
	case report.Status == model.RunStatusError:
		md.Cautionf("The run failed: %s", report.Error)
	case report.Status == model.RunStatusCanceled:
		md.Warningf("The run was canceled. %d URL(s) were not attempted; the mirror is partial.", s.NotAttempted)
	case s.Failed > 0:
		md.Importantf("%d URL(s) could not be mirrored. Links to them point to missing files.", s.Failed)
	case len(report.RewriteErrors) > 0:
		md.Note("Some files could not be rewritten and still reference the live site.")
	default:
		md.Tip("Every discovered URL was mirrored.")
	}
	md.PlainText("")
}

func (w *MarkdownWriter) writeFailures(md *markdown.Markdown, report *model.MirrorReport) {
	failures := report.Failures()
	if len(failures) == 0 {
		return
	}

	md.H2("Failures")
	md.PlainText("")

	rows := make([][]string, len(failures))
	for i, f := range failures {
		status := "-"
		if f.StatusCode != 0 {
			status = strconv.Itoa(f.StatusCode)
		}
		failure := f.Failure
		if failure == "" {
			failure = "-"
		}
		referrer := f.Referrer
		if referrer == "" {
			referrer = "-"
		}
		rows[i] = []string{
			truncateString(f.URL, 80),
			kindLabel(f.Kind.String()),
			failure,
			status,
			truncateString(referrer, 60),
		}
	}
	md.Table(markdown.TableSet{
		Header: []string{"URL", "Kind", "Failure", "Status", "Found On"},
		Rows:   rows,
	})
	md.PlainText("")
}

func (w *MarkdownWriter) writeRewriteErrors(md *markdown.Markdown, report *model.MirrorReport) {
	if len(report.RewriteErrors) == 0 {
		return
	}
	md.H2("Rewrite Errors")
	md.PlainText("")
	md.BulletList(report.RewriteErrors...)
	md.PlainText("")
}

func (w *MarkdownWriter) writeOffSite(md *markdown.Markdown, report *model.MirrorReport) {
	if len(report.OffSite) == 0 {
		return
	}
	md.H2("Off-Site References")
	md.PlainText("")
	md.Details(strconv.Itoa(len(report.OffSite))+" reference(s) left pointing to other sites",
		"- "+strings.Join(report.OffSite, "\n- "))
	md.PlainText("")
}

func (w *MarkdownWriter) writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*Report generated by [sitemirror](https://github.com/nao1215/sitemirror)*")
}

// truncateString truncates a string to maxLen characters with ellipsis.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
