package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nao1215/sitemirror/internal/model"
)

// FileName is the name of the database file inside the database directory.
const FileName = "sitemirror.db"

// ErrRunNotFound is returned when no run has the requested ID.
var ErrRunNotFound = errors.New("run not found")

// MirrorDB records mirror runs and their frontier records.
type MirrorDB struct {
	db     *sql.DB
	dbPath string
}

// Options configures MirrorDB behavior.
type Options struct {
	// CreateIfNotExists creates the directory and the database file if
	// they don't exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates the database in dbDir.
// If CreateIfNotExists is false and the database doesn't exist, an error is returned.
func Open(dbDir string, opts Options) (*MirrorDB, error) {
	dbPath := filepath.Join(dbDir, FileName)

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("database not found at %s (use CreateIfNotExists option to create)", dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else if err := os.MkdirAll(dbDir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// mode=rw refuses to create a missing file. The busy timeout lets a
	// second process wait for the writer instead of failing with SQLITE_BUSY.
	mode := "rw"
	if opts.CreateIfNotExists {
		mode = "rwc"
	}
	dsn := dbPath + "?mode=" + mode + "&_pragma=busy_timeout(5000)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	mdb := &MirrorDB{
		db:     db,
		dbPath: dbPath,
	}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := mdb.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return mdb, nil
}

// Path returns the path of the database file.
func (mdb *MirrorDB) Path() string {
	return mdb.dbPath
}

// Close closes the database connection.
func (mdb *MirrorDB) Close() error {
	return mdb.db.Close()
}

func (mdb *MirrorDB) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		seed_url TEXT NOT NULL,
		output_dir TEXT NOT NULL,
		started_at TEXT NOT NULL,
		finished_at TEXT,
		status TEXT NOT NULL,
		summary_json TEXT NOT NULL,
		report_json TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_seed ON runs(seed_url);
	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);

	-- One row per frontier record of a run
	CREATE TABLE IF NOT EXISTS entries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		url TEXT NOT NULL,
		kind TEXT NOT NULL,
		state TEXT NOT NULL,
		local_path TEXT,
		status_code INTEGER,
		size INTEGER,
		failure TEXT,
		UNIQUE(run_id, url)
	);

	CREATE INDEX IF NOT EXISTS idx_entries_run ON entries(run_id);
	CREATE INDEX IF NOT EXISTS idx_entries_state ON entries(run_id, state);
	`

	_, err := mdb.db.ExecContext(context.Background(), schema)
	return err
}

// SaveRun stores a finished report and its records in one transaction.
// A report without an ID is given a new UUID, which is written back to it.
// Saving a report with an existing ID replaces the earlier run.
func (mdb *MirrorDB) SaveRun(ctx context.Context, report *model.MirrorReport) (err error) {
	if report.ID == "" {
		report.ID = uuid.NewString()
	}

	reportJSON, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to serialize report: %w", err)
	}
	summaryJSON, err := json.Marshal(report.Summarize())
	if err != nil {
		return fmt.Errorf("failed to serialize summary: %w", err)
	}

	tx, err := mdb.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM entries WHERE run_id = ?`, report.ID); err != nil {
		return fmt.Errorf("failed to clear entries: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
	INSERT INTO runs (id, seed_url, output_dir, started_at, finished_at, status, summary_json, report_json)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		seed_url = excluded.seed_url,
		output_dir = excluded.output_dir,
		started_at = excluded.started_at,
		finished_at = excluded.finished_at,
		status = excluded.status,
		summary_json = excluded.summary_json,
		report_json = excluded.report_json
	`,
		report.ID,
		report.SeedURL,
		report.OutputDir,
		report.StartedAt.UTC().Format(timestampLayout),
		formatTimestamp(report.FinishedAt),
		string(report.Status),
		string(summaryJSON),
		string(reportJSON),
	)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
	INSERT INTO entries (run_id, url, kind, state, local_path, status_code, size, failure)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare entry insert: %w", err)
	}
	defer stmt.Close()

	for _, rec := range report.Records {
		_, err = stmt.ExecContext(ctx,
			report.ID,
			rec.URL,
			rec.Kind.String(),
			rec.State.String(),
			rec.LocalPath,
			rec.StatusCode,
			rec.Size,
			rec.Failure,
		)
		if err != nil {
			return fmt.Errorf("failed to save entry %s: %w", rec.URL, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run: %w", err)
	}
	return nil
}

// GetRun loads the full report of a run.
func (mdb *MirrorDB) GetRun(ctx context.Context, id string) (*model.MirrorReport, error) {
	var reportJSON string
	err := mdb.db.QueryRowContext(ctx, `SELECT report_json FROM runs WHERE id = ?`, id).Scan(&reportJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return decodeReport(reportJSON)
}

// LatestRun loads the most recent run of a seed URL.
func (mdb *MirrorDB) LatestRun(ctx context.Context, seedURL string) (*model.MirrorReport, error) {
	query := `
	SELECT report_json FROM runs
	WHERE seed_url = ?
	ORDER BY started_at DESC
	LIMIT 1
	`

	var reportJSON string
	err := mdb.db.QueryRowContext(ctx, query, seedURL).Scan(&reportJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: no run for %s", ErrRunNotFound, seedURL)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest run: %w", err)
	}
	return decodeReport(reportJSON)
}

func decodeReport(reportJSON string) (*model.MirrorReport, error) {
	var report model.MirrorReport
	if err := json.Unmarshal([]byte(reportJSON), &report); err != nil {
		return nil, fmt.Errorf("failed to parse report: %w", err)
	}
	return &report, nil
}

// RunMetadata is the summary of a run, used to list history without
// loading full reports.
type RunMetadata struct {
	ID         string
	SeedURL    string
	OutputDir  string
	StartedAt  time.Time
	FinishedAt time.Time
	Status     model.RunStatus
	Summary    model.Summary
}

// ListRuns returns the runs of seedURL, newest first. An empty seedURL
// lists the runs of every site.
func (mdb *MirrorDB) ListRuns(ctx context.Context, seedURL string) ([]RunMetadata, error) {
	query := `
	SELECT id, seed_url, output_dir, started_at, finished_at, status, summary_json
	FROM runs
	WHERE ? = '' OR seed_url = ?
	ORDER BY started_at DESC
	`

	rows, err := mdb.db.QueryContext(ctx, query, seedURL, seedURL)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var results []RunMetadata
	for rows.Next() {
		var (
			meta        RunMetadata
			started     string
			finished    sql.NullString
			status      string
			summaryJSON string
		)
		if err := rows.Scan(&meta.ID, &meta.SeedURL, &meta.OutputDir, &started, &finished, &status, &summaryJSON); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		meta.StartedAt = parseTimestamp(started)
		if finished.Valid {
			meta.FinishedAt = parseTimestamp(finished.String)
		}
		meta.Status = model.RunStatus(status)
		if err := json.Unmarshal([]byte(summaryJSON), &meta.Summary); err != nil {
			meta.Summary = model.Summary{}
		}
		results = append(results, meta)
	}

	return results, rows.Err()
}

// ListSites returns every seed URL that has at least one saved run.
func (mdb *MirrorDB) ListSites(ctx context.Context) ([]string, error) {
	rows, err := mdb.db.QueryContext(ctx, `SELECT DISTINCT seed_url FROM runs ORDER BY seed_url`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sites: %w", err)
	}
	defer rows.Close()

	var sites []string
	for rows.Next() {
		var site string
		if err := rows.Scan(&site); err != nil {
			return nil, fmt.Errorf("failed to scan site: %w", err)
		}
		sites = append(sites, site)
	}

	return sites, rows.Err()
}

// Entries returns the records of a run in the given state, sorted by URL.
// A nil state returns every record.
func (mdb *MirrorDB) Entries(ctx context.Context, runID string, state *model.State) ([]model.Record, error) {
	query := `
	SELECT url, kind, state, local_path, status_code, size, failure
	FROM entries
	WHERE run_id = ? AND (? = '' OR state = ?)
	ORDER BY url
	`

	filter := ""
	if state != nil {
		filter = state.String()
	}

	rows, err := mdb.db.QueryContext(ctx, query, runID, filter, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	defer rows.Close()

	var records []model.Record
	for rows.Next() {
		var (
			rec        model.Record
			kind       string
			st         string
			localPath  sql.NullString
			statusCode sql.NullInt64
			size       sql.NullInt64
			failure    sql.NullString
		)
		if err := rows.Scan(&rec.URL, &kind, &st, &localPath, &statusCode, &size, &failure); err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		if err := rec.Kind.UnmarshalText([]byte(kind)); err != nil {
			return nil, fmt.Errorf("entry %s: %w", rec.URL, err)
		}
		if err := rec.State.UnmarshalText([]byte(st)); err != nil {
			return nil, fmt.Errorf("entry %s: %w", rec.URL, err)
		}
		rec.LocalPath = localPath.String
		rec.StatusCode = int(statusCode.Int64)
		rec.Size = size.Int64
		rec.Failure = failure.String
		records = append(records, rec)
	}

	return records, rows.Err()
}

// DeleteRun removes a run and its entries.
func (mdb *MirrorDB) DeleteRun(ctx context.Context, id string) error {
	if _, err := mdb.db.ExecContext(ctx, `DELETE FROM entries WHERE run_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete entries: %w", err)
	}
	res, err := mdb.db.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return nil
}

// formatTimestamp stores times in UTC so that the text columns sort
// chronologically. The zero time is stored as NULL.
func formatTimestamp(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(timestampLayout)
}

// timestampLayout has a fixed width so that stored times compare as text.
const timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

// timestampFormats contains the timestamp formats that SQLite may return.
// More specific formats come first.
var timestampFormats = []string{
	timestampLayout,
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999",
}

// parseTimestamp returns the zero time when no format matches.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
