// Package report writes the result of a mirror run.
//
// Three formats are available behind the Writer interface:
//   - SimpleWriter: a plain text summary for the terminal
//   - MarkdownWriter: a Markdown document with tables and a Mermaid chart
//   - JSONWriter: the complete report for other tools
//
// Every format lists the failed URLs with their failure class, so a run
// that finished with failures is still diagnosable from its report alone.
package report
