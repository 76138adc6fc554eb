package database

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nao1215/sitemirror/internal/model"
)

// setupTestDB creates a temporary database for testing.
func setupTestDB(t *testing.T) *MirrorDB {
	t.Helper()

	db, err := Open(t.TempDir(), DefaultOptions())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newReport(id, seed string, started time.Time) *model.MirrorReport {
	return &model.MirrorReport{
		ID:         id,
		SeedURL:    seed,
		OutputDir:  "/tmp/out",
		StartedAt:  started,
		FinishedAt: started.Add(3 * time.Second),
		Status:     model.RunStatusComplete,
		Records: []model.Record{
			{URL: seed, Kind: model.KindPage, State: model.StateDone, LocalPath: "index.html", StatusCode: 200, Size: 120},
			{URL: seed + "css/site.css", Kind: model.KindStylesheet, State: model.StateDone, LocalPath: "css/site.css", StatusCode: 200, Size: 40},
			{URL: seed + "images/missing.png", Kind: model.KindImage, State: model.StateFailed, StatusCode: 404, Failure: "http-error"},
			{URL: seed + "later", Kind: model.KindPage, State: model.StatePending},
		},
		Rewritten: 1,
	}
}

func TestOpen(t *testing.T) {
	t.Parallel()

	t.Run("creates database in new directory", func(t *testing.T) {
		t.Parallel()

		dbDir := filepath.Join(t.TempDir(), "newdir", "subdir")
		db, err := Open(dbDir, DefaultOptions())
		if err != nil {
			t.Fatalf("failed to open database: %v", err)
		}
		defer db.Close()

		if _, err := os.Stat(filepath.Join(dbDir, FileName)); err != nil {
			t.Errorf("database file was not created: %v", err)
		}
		if db.Path() != filepath.Join(dbDir, FileName) {
			t.Errorf("Path() = %q", db.Path())
		}
	})

	t.Run("CreateIfNotExists=false returns error when database does not exist", func(t *testing.T) {
		t.Parallel()

		_, err := Open(filepath.Join(t.TempDir(), "missing"), Options{CreateIfNotExists: false})
		if err == nil {
			t.Fatal("expected error for missing database")
		}
	})

	t.Run("CreateIfNotExists=false opens existing database", func(t *testing.T) {
		t.Parallel()

		dbDir := t.TempDir()
		db, err := Open(dbDir, DefaultOptions())
		if err != nil {
			t.Fatalf("failed to create database: %v", err)
		}
		_ = db.Close()

		db, err = Open(dbDir, Options{CreateIfNotExists: false, EnableWAL: true})
		if err != nil {
			t.Fatalf("failed to reopen database: %v", err)
		}
		_ = db.Close()
	})
}

func TestSaveAndGetRun(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	ctx := t.Context()
	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	report := newReport("", "https://example.webflow.io/", started)
	report.Platform = &model.Platform{Webflow: true, Indicators: []string{"generator"}}
	if err := db.SaveRun(ctx, report); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}
	if report.ID == "" {
		t.Fatal("expected SaveRun to assign an ID")
	}

	got, err := db.GetRun(ctx, report.ID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.SeedURL != report.SeedURL || got.Status != model.RunStatusComplete {
		t.Errorf("got %+v", got)
	}
	if len(got.Records) != 4 {
		t.Errorf("records = %d, want 4", len(got.Records))
	}
	if got.Platform == nil || !got.Platform.Webflow {
		t.Errorf("platform = %+v", got.Platform)
	}
	if !got.StartedAt.Equal(started) {
		t.Errorf("StartedAt = %v, want %v", got.StartedAt, started)
	}

	if _, err := db.GetRun(ctx, "no-such-run"); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("GetRun(missing) error = %v, want ErrRunNotFound", err)
	}
}

func TestSaveRunReplacesExistingID(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	ctx := t.Context()

	report := newReport("run-1", "https://example.webflow.io/", time.Now())
	if err := db.SaveRun(ctx, report); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}
	report.Records = report.Records[:1]
	report.Status = model.RunStatusCanceled
	if err := db.SaveRun(ctx, report); err != nil {
		t.Fatalf("SaveRun again: %v", err)
	}

	entries, err := db.Entries(ctx, "run-1", nil)
	if err != nil {
		t.Fatalf("Entries: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("entries = %d, want 1", len(entries))
	}
	runs, err := db.ListRuns(ctx, "")
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 1 || runs[0].Status != model.RunStatusCanceled {
		t.Errorf("runs = %+v", runs)
	}
}

func TestListRuns(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	ctx := t.Context()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	reports := []*model.MirrorReport{
		newReport("a1", "https://a.webflow.io/", base),
		newReport("a2", "https://a.webflow.io/", base.Add(time.Hour)),
		newReport("b1", "https://b.webflow.io/", base.Add(30*time.Minute)),
	}
	for _, r := range reports {
		if err := db.SaveRun(ctx, r); err != nil {
			t.Fatalf("SaveRun(%s): %v", r.ID, err)
		}
	}

	runs, err := db.ListRuns(ctx, "https://a.webflow.io/")
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 2 || runs[0].ID != "a2" || runs[1].ID != "a1" {
		t.Fatalf("runs = %+v, want a2 then a1", runs)
	}
	if runs[0].Summary.Pages != 1 || runs[0].Summary.Assets != 1 || runs[0].Summary.Failed != 1 || runs[0].Summary.NotAttempted != 1 {
		t.Errorf("summary = %+v", runs[0].Summary)
	}
	if runs[0].FinishedAt.Sub(runs[0].StartedAt) != 3*time.Second {
		t.Errorf("duration = %v", runs[0].FinishedAt.Sub(runs[0].StartedAt))
	}

	all, err := db.ListRuns(ctx, "")
	if err != nil {
		t.Fatalf("ListRuns(all): %v", err)
	}
	if len(all) != 3 || all[1].ID != "b1" {
		t.Errorf("all runs = %+v", all)
	}

	sites, err := db.ListSites(ctx)
	if err != nil {
		t.Fatalf("ListSites: %v", err)
	}
	if len(sites) != 2 || sites[0] != "https://a.webflow.io/" {
		t.Errorf("sites = %v", sites)
	}

	latest, err := db.LatestRun(ctx, "https://a.webflow.io/")
	if err != nil {
		t.Fatalf("LatestRun: %v", err)
	}
	if latest.ID != "a2" {
		t.Errorf("LatestRun = %s, want a2", latest.ID)
	}
	if _, err := db.LatestRun(ctx, "https://c.webflow.io/"); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("LatestRun(unknown) error = %v", err)
	}
}

func TestEntries(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	ctx := t.Context()

	if err := db.SaveRun(ctx, newReport("run", "https://example.webflow.io/", time.Now())); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}

	failed := model.StateFailed
	entries, err := db.Entries(ctx, "run", &failed)
	if err != nil {
		t.Fatalf("Entries: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("failed entries = %d, want 1", len(entries))
	}
	e := entries[0]
	if e.Kind != model.KindImage || e.StatusCode != 404 || e.Failure != "http-error" {
		t.Errorf("entry = %+v", e)
	}

	all, err := db.Entries(ctx, "run", nil)
	if err != nil {
		t.Fatalf("Entries(all): %v", err)
	}
	if len(all) != 4 {
		t.Fatalf("entries = %d, want 4", len(all))
	}
	if all[0].URL != "https://example.webflow.io/" || all[0].LocalPath != "index.html" {
		t.Errorf("first entry = %+v", all[0])
	}
}

func TestDeleteRun(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	ctx := t.Context()

	if err := db.SaveRun(ctx, newReport("run", "https://example.webflow.io/", time.Now())); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}
	if err := db.DeleteRun(ctx, "run"); err != nil {
		t.Fatalf("DeleteRun: %v", err)
	}
	if _, err := db.GetRun(ctx, "run"); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("GetRun after delete error = %v", err)
	}
	entries, err := db.Entries(ctx, "run", nil)
	if err != nil {
		t.Fatalf("Entries: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("entries left after delete: %d", len(entries))
	}
	if err := db.DeleteRun(ctx, "run"); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("second DeleteRun error = %v", err)
	}
}

func TestParseTimestamp(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want time.Time
	}{
		{"2026-03-01T12:00:00.500000000Z", time.Date(2026, 3, 1, 12, 0, 0, 500000000, time.UTC)},
		{"2026-03-01 12:00:00", time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)},
		{"not a time", time.Time{}},
	}
	for _, tt := range tests {
		if got := parseTimestamp(tt.in); !got.Equal(tt.want) {
			t.Errorf("parseTimestamp(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
