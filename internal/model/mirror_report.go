package model

import (
	"slices"
	"strings"
	"time"
)

// RunStatus is the overall result of a mirror run.
type RunStatus string

const (
	// RunStatusComplete means the frontier drained normally.
	RunStatusComplete RunStatus = "complete"
	// RunStatusCanceled means a stop signal ended the run early.
	RunStatusCanceled RunStatus = "canceled"
	// RunStatusError means a step failed fatally.
	RunStatusError RunStatus = "error"
)

// Record is the serializable view of a frontier entry.
type Record struct {
	// URL is the normalized URL.
	URL string `json:"url"`

	// Kind is the final classification.
	Kind Kind `json:"kind"`

	// State is the terminal (or, after cancellation, pending) state.
	State State `json:"state"`

	// LocalPath is the slash-separated path relative to the output root.
	LocalPath string `json:"local_path,omitempty"`

	// FinalURL is the redirect target, when the server redirected.
	FinalURL string `json:"final_url,omitempty"`

	// StatusCode is the HTTP status of the response, when one was received.
	StatusCode int `json:"status_code,omitempty"`

	// Size is the number of bytes written to disk.
	Size int64 `json:"size,omitempty"`

	// Failure is the failure class (timeout, http-error, ...) for failed entries.
	Failure string `json:"failure,omitempty"`

	// Error is the human-readable failure message.
	Error string `json:"error,omitempty"`

	// Referrer is the page this URL was discovered on.
	Referrer string `json:"referrer,omitempty"`

	// Rewritten is set once the file's references have been localized.
	// A rewritten file is never rewritten again.
	Rewritten bool `json:"-"`
}

// Mirrored reports whether the record was written to disk.
func (r Record) Mirrored() bool {
	return r.State == StateDone
}

// Platform holds the result of site platform detection.
type Platform struct {
	// Webflow is true when at least one Webflow indicator was found.
	Webflow bool `json:"webflow"`

	// Indicators lists the evidence that was found.
	Indicators []string `json:"indicators,omitempty"`

	// Generator is the content of <meta name="generator">, if any.
	Generator string `json:"generator,omitempty"`
}

// Summary holds the counts shown at the end of a run.
type Summary struct {
	Pages        int            `json:"pages"`
	Assets       int            `json:"assets"`
	Failed       int            `json:"failed"`
	NotAttempted int            `json:"not_attempted"`
	OffSite      int            `json:"off_site"`
	Skipped      int            `json:"skipped"`
	Rewritten    int            `json:"rewritten"`
	ByKind       map[string]int `json:"by_kind,omitempty"`
	Bytes        int64          `json:"bytes"`
}

// MirrorReport is the complete result of one mirror run.
type MirrorReport struct {
	// ID identifies the run in the history database.
	ID string `json:"id"`

	// SeedURL is the normalized start URL.
	SeedURL string `json:"seed_url"`

	// OutputDir is the mirror root directory.
	OutputDir string `json:"output_dir"`

	// StartedAt and FinishedAt bound the run.
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	// Status is the overall outcome.
	Status RunStatus `json:"status"`

	// Records holds one record per unique normalized URL, sorted by URL.
	Records []Record `json:"records"`

	// OffSite lists references that were recorded but not fetched.
	OffSite []string `json:"off_site,omitempty"`

	// Skipped is the number of page references dropped by the page limit.
	Skipped int `json:"skipped,omitempty"`

	// Rewritten is the number of files changed by the rewriter.
	Rewritten int `json:"rewritten"`

	// RewriteErrors lists per-file rewrite failures.
	RewriteErrors []string `json:"rewrite_errors,omitempty"`

	// Platform is the detection result for the seed page.
	Platform *Platform `json:"platform,omitempty"`

	// SitemapPath is set when a sitemap was written.
	SitemapPath string `json:"sitemap_path,omitempty"`

	// Error is the message of a fatal step error.
	Error string `json:"error,omitempty"`
}

// NewMirrorReport creates an empty report for the given run.
func NewMirrorReport(id, seedURL, outputDir string) *MirrorReport {
	return &MirrorReport{
		ID:        id,
		SeedURL:   seedURL,
		OutputDir: outputDir,
		StartedAt: time.Now(),
		Status:    RunStatusComplete,
		Records:   make([]Record, 0),
	}
}

// Failures returns the failed records, sorted by URL.
func (r *MirrorReport) Failures() []Record {
	var failed []Record
	for _, rec := range r.Records {
		if rec.State == StateFailed {
			failed = append(failed, rec)
		}
	}
	slices.SortFunc(failed, func(a, b Record) int {
		return strings.Compare(a.URL, b.URL)
	})
	return failed
}

// MirroredPages returns the URLs of the pages that were written to disk, sorted.
func (r *MirrorReport) MirroredPages() []string {
	var pages []string
	for _, rec := range r.Records {
		if rec.Mirrored() && rec.Kind == KindPage {
			pages = append(pages, rec.URL)
		}
	}
	slices.Sort(pages)
	return pages
}

// Summarize computes the summary counts from the records.
func (r *MirrorReport) Summarize() Summary {
	s := Summary{
		OffSite:   len(r.OffSite),
		Skipped:   r.Skipped,
		Rewritten: r.Rewritten,
		ByKind:    make(map[string]int),
	}
	for _, rec := range r.Records {
		switch rec.State {
		case StateDone:
			if rec.Kind == KindPage {
				s.Pages++
			} else {
				s.Assets++
			}
			s.ByKind[rec.Kind.String()]++
			s.Bytes += rec.Size
		case StateFailed:
			s.Failed++
		case StatePending, StateInFlight:
			s.NotAttempted++
		}
	}
	return s
}

// Duration returns how long the run took.
func (r *MirrorReport) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
