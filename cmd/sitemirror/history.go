package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/nao1215/sitemirror/internal/config"
	"github.com/nao1215/sitemirror/internal/database"
	"github.com/nao1215/sitemirror/internal/model"
	"github.com/nao1215/sitemirror/internal/report"
)

// NewHistoryCmd creates the history command.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [url]",
		Short: "Show past mirror runs",
		Long: `History lists the runs recorded in the history database, newest first.

With a URL, only the runs of that seed URL are listed. With --run, the
summary of one run is printed, including every URL that failed.

Examples:
  # List every recorded run
  sitemirror history

  # List the runs of one site
  sitemirror history https://example.webflow.io

  # Show one run in detail
  sitemirror history --run 0b5c1f7e-...

  # Show the latest run of a site as JSON
  sitemirror history --latest --json https://example.webflow.io

  # List every site that has been mirrored
  sitemirror history --sites`,
		Args: cobra.MaximumNArgs(1),
		RunE: runHistoryCmd,
	}

	cmd.Flags().StringP("run", "r", "",
		"Show the run with this ID")
	cmd.Flags().BoolP("latest", "l", false,
		"Show the latest run of the given URL")
	cmd.Flags().BoolP("sites", "s", false,
		"List every seed URL that has a recorded run")
	cmd.Flags().BoolP("json", "j", false,
		"Output in JSON format")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output a run in Markdown format")
	cmd.Flags().String("db-dir", "",
		"Directory of the history database (default: XDG data directory)")

	return cmd
}

func runHistoryCmd(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	runID, err := flags.GetString("run")
	if err != nil {
		return err
	}
	latest, err := flags.GetBool("latest")
	if err != nil {
		return err
	}
	sites, err := flags.GetBool("sites")
	if err != nil {
		return err
	}
	jsonOutput, err := flags.GetBool("json")
	if err != nil {
		return err
	}
	markdownOutput, err := flags.GetBool("markdown")
	if err != nil {
		return err
	}
	dbDir, err := flags.GetString("db-dir")
	if err != nil {
		return err
	}
	if dbDir == "" {
		dbDir = config.XDGDataDir()
	}

	// Validate arguments before opening the database.
	if jsonOutput && markdownOutput {
		return config.ErrConflictingReportFormats
	}
	var seedURL string
	if len(args) == 1 {
		seed, err := model.ParseURL(args[0], nil)
		if err != nil {
			return fmt.Errorf("%w: %w", config.ErrInvalidSeedURL, err)
		}
		seedURL = seed.String()
	}
	if latest && seedURL == "" {
		return errors.New("--latest requires a URL")
	}

	db, err := database.Open(dbDir, database.DefaultOptions())
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	switch {
	case sites:
		return listSites(ctx, db, out, jsonOutput)
	case runID != "":
		run, err := db.GetRun(ctx, runID)
		if err != nil {
			return err
		}
		return showRun(run, out, jsonOutput, markdownOutput)
	case latest:
		run, err := db.LatestRun(ctx, seedURL)
		if err != nil {
			return err
		}
		return showRun(run, out, jsonOutput, markdownOutput)
	default:
		return listRuns(ctx, db, out, seedURL, jsonOutput)
	}
}

func listSites(ctx context.Context, db *database.MirrorDB, out io.Writer, jsonOutput bool) error {
	sites, err := db.ListSites(ctx)
	if err != nil {
		return err
	}
	if jsonOutput {
		if sites == nil {
			sites = []string{}
		}
		return writeJSON(out, sites)
	}
	if len(sites) == 0 {
		fmt.Fprintln(out, "No mirrored sites recorded")
		return nil
	}
	fmt.Fprintf(out, "Mirrored sites (%d):\n\n", len(sites))
	for _, site := range sites {
		fmt.Fprintf(out, "  • %s\n", site)
	}
	return nil
}

// historyEntry is the JSON form of a listed run.
type historyEntry struct {
	ID         string        `json:"id"`
	SeedURL    string        `json:"seed_url"`
	OutputDir  string        `json:"output_dir"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Status     string        `json:"status"`
	Summary    model.Summary `json:"summary"`
}

func listRuns(ctx context.Context, db *database.MirrorDB, out io.Writer, seedURL string, jsonOutput bool) error {
	runs, err := db.ListRuns(ctx, seedURL)
	if err != nil {
		return err
	}

	if jsonOutput {
		entries := make([]historyEntry, 0, len(runs))
		for _, r := range runs {
			entries = append(entries, historyEntry{
				ID:         r.ID,
				SeedURL:    r.SeedURL,
				OutputDir:  r.OutputDir,
				StartedAt:  r.StartedAt,
				FinishedAt: r.FinishedAt,
				Status:     string(r.Status),
				Summary:    r.Summary,
			})
		}
		return writeJSON(out, entries)
	}

	if len(runs) == 0 {
		if seedURL != "" {
			fmt.Fprintf(out, "No runs recorded for %s\n", seedURL)
		} else {
			fmt.Fprintln(out, "No runs recorded")
		}
		return nil
	}

	fmt.Fprintf(out, "Mirror runs (%d):\n\n", len(runs))
	fmt.Fprintf(out, "  %-36s  %-19s  %-8s  %5s  %6s  %6s  %s\n",
		"ID", "Date", "Status", "Pages", "Assets", "Failed", "Seed URL")
	fmt.Fprintln(out, "  "+strings.Repeat("-", 110))
	for _, r := range runs {
		fmt.Fprintf(out, "  %-36s  %-19s  %-8s  %5d  %6d  %6d  %s\n",
			r.ID,
			r.StartedAt.Local().Format("2006-01-02 15:04:05"),
			r.Status,
			r.Summary.Pages,
			r.Summary.Assets,
			r.Summary.Failed,
			r.SeedURL,
		)
	}

	fmt.Fprintln(out, "\nUse 'sitemirror history --run <id>' to show the details of a run.")
	return nil
}

func showRun(run *model.MirrorReport, out io.Writer, jsonOutput, markdownOutput bool) error {
	var w report.Writer
	switch {
	case jsonOutput:
		w = report.NewJSONWriter(out, report.WithPrettyPrint())
	case markdownOutput:
		w = report.NewMarkdownWriter(out)
	default:
		w = report.NewSimpleWriter(out, report.WithVerbose(true))
	}
	_, err := w.Write(run)
	return err
}

func writeJSON(out io.Writer, v any) error {
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
