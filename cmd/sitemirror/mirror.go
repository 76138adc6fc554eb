package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/nao1215/sitemirror/internal/config"
	"github.com/nao1215/sitemirror/internal/crawler"
	"github.com/nao1215/sitemirror/internal/database"
	"github.com/nao1215/sitemirror/internal/extract"
	"github.com/nao1215/sitemirror/internal/fetcher"
	"github.com/nao1215/sitemirror/internal/localpath"
	smlog "github.com/nao1215/sitemirror/internal/log"
	"github.com/nao1215/sitemirror/internal/model"
	"github.com/nao1215/sitemirror/internal/pipeline"
	"github.com/nao1215/sitemirror/internal/report"
	"github.com/nao1215/sitemirror/internal/rewrite"
	"github.com/nao1215/sitemirror/internal/storage"
	"github.com/nao1215/sitemirror/internal/transport"
)

// errMirrorCanceled is returned when a signal ended the run early. The
// partial mirror is still rewritten and reported.
var errMirrorCanceled = errors.New("mirror canceled; the output is a partial mirror")

// NewMirrorCmd creates the mirror command.
func NewMirrorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mirror <url>",
		Short: "Mirror a Webflow site into a local directory",
		Long: `Mirror crawls the site behind <url>, downloads every page and asset that
belongs to it, and rewrites references so the copy works from local files.

Pages land at <path>/index.html; stylesheets, scripts, images and media land
under css/, js/, images/ and media/. The output directory is cleared before
the crawl starts.

Examples:
  # Mirror a site into ./out
  sitemirror mirror https://example.webflow.io

  # Mirror into ./site, remove the Webflow badge and write sitemap.xml
  sitemirror mirror https://example.webflow.io -o site --remove-badge --sitemap

  # Mirror a password-protected site through a SOCKS5 proxy
  sitemirror mirror https://example.webflow.io --cookie "wf_auth=..." --proxy socks5://127.0.0.1:1080

  # Print the summary as JSON
  sitemirror mirror --json https://example.webflow.io

Per-site settings can be kept in a .sitemirror file; see 'sitemirror init'.`,
		Args: cobra.ExactArgs(1),
		RunE: runMirrorCmd,
	}

	// Output
	cmd.Flags().StringP("output", "o", config.DefaultOutputDir,
		"Output directory (cleared before mirroring; its parent must exist)")
	cmd.Flags().Bool("remove-badge", false,
		"Remove the \"Made in Webflow\" badge from mirrored scripts")
	cmd.Flags().Bool("sitemap", false,
		"Write sitemap.xml listing every mirrored page")
	cmd.Flags().Bool("strict", false,
		"Fail when the seed page shows no sign of being a Webflow site")

	// Crawl behavior
	cmd.Flags().IntP("concurrency", "c", config.DefaultConcurrency,
		"Number of URLs fetched at once")
	cmd.Flags().Duration("delay", config.DefaultDelay,
		"Minimum gap between two requests to the same host (0 disables)")
	cmd.Flags().DurationP("timeout", "t", config.DefaultTimeout,
		"Timeout for each request")
	cmd.Flags().Int("retries", config.DefaultRetries,
		"Retries after a timeout, connection error, 429 or 5xx response")
	cmd.Flags().Duration("backoff", config.DefaultInitialBackoff,
		"Wait before the first retry; doubles for every further retry")
	cmd.Flags().Int64("max-size", config.DefaultMaxBodySize,
		"Largest file in bytes that is mirrored")
	cmd.Flags().IntP("max-pages", "p", 0,
		"Maximum number of pages to mirror (0 = unlimited)")

	// Requests
	cmd.Flags().String("proxy", "",
		"Route requests through an HTTP or SOCKS5 proxy (e.g., socks5://127.0.0.1:1080)")
	cmd.Flags().String("user-agent", config.DefaultUserAgent,
		"User-Agent header")
	cmd.Flags().String("cookie", "",
		"Cookie header sent with every request (e.g., a wf_auth session)")
	cmd.Flags().StringToStringP("header", "H", nil,
		"Extra request header as Name=Value (repeatable)")

	// Scope
	cmd.Flags().StringSlice("allow-host", nil,
		"Extra asset host suffix to mirror (repeatable)")
	cmd.Flags().StringSlice("ignore", nil,
		"Path glob that is not crawled (repeatable, e.g., \"/blog/*\")")
	cmd.Flags().StringSlice("follow", nil,
		"Path glob that is crawled; when set, nothing else is (repeatable)")

	// Configuration file
	cmd.Flags().String("config", "",
		"Configuration file path (default: .sitemirror in current or home directory)")

	// Report flags
	cmd.Flags().BoolP("json", "j", false,
		"Print the summary as JSON (mutually exclusive with --markdown)")
	cmd.Flags().BoolP("markdown", "m", false,
		"Print the summary as Markdown (mutually exclusive with --json)")
	cmd.Flags().String("report", "",
		"Write the summary to a file instead of stdout")

	// History
	cmd.Flags().Bool("no-history", false,
		"Do not record the run in the history database")
	cmd.Flags().String("db-dir", "",
		"Directory of the history database (default: XDG data directory)")

	return cmd
}

func runMirrorCmd(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd, args)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger := smlog.NewSecureLogger(cmd.ErrOrStderr(), smlog.VerbosityFrom(cfg.Verbose, cfg.Quiet))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return runMirror(ctx, cfg, logger, cmd.OutOrStdout())
}

// buildConfig creates a Config from cobra command flags and the
// configuration file. Flags given on the command line win over the file.
func buildConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg := config.NewConfig()
	flags := cmd.Flags()
	cfg.SeedURL = args[0]

	var err error
	if cfg.OutputDir, err = flags.GetString("output"); err != nil {
		return nil, err
	}
	if cfg.RemoveBadge, err = flags.GetBool("remove-badge"); err != nil {
		return nil, err
	}
	if cfg.Sitemap, err = flags.GetBool("sitemap"); err != nil {
		return nil, err
	}
	if cfg.Strict, err = flags.GetBool("strict"); err != nil {
		return nil, err
	}
	if cfg.Concurrency, err = flags.GetInt("concurrency"); err != nil {
		return nil, err
	}
	if cfg.Delay, err = flags.GetDuration("delay"); err != nil {
		return nil, err
	}
	if cfg.Timeout, err = flags.GetDuration("timeout"); err != nil {
		return nil, err
	}
	if cfg.Retries, err = flags.GetInt("retries"); err != nil {
		return nil, err
	}
	if cfg.InitialBackoff, err = flags.GetDuration("backoff"); err != nil {
		return nil, err
	}
	if cfg.MaxBodySize, err = flags.GetInt64("max-size"); err != nil {
		return nil, err
	}
	if cfg.MaxPages, err = flags.GetInt("max-pages"); err != nil {
		return nil, err
	}
	if cfg.ProxyURL, err = flags.GetString("proxy"); err != nil {
		return nil, err
	}
	if cfg.UserAgent, err = flags.GetString("user-agent"); err != nil {
		return nil, err
	}
	if cfg.Cookie, err = flags.GetString("cookie"); err != nil {
		return nil, err
	}
	if cfg.Headers, err = flags.GetStringToString("header"); err != nil {
		return nil, err
	}
	allowHosts, err := flags.GetStringSlice("allow-host")
	if err != nil {
		return nil, err
	}
	cfg.AllowedHosts = append(cfg.AllowedHosts, allowHosts...)
	if cfg.IgnorePatterns, err = flags.GetStringSlice("ignore"); err != nil {
		return nil, err
	}
	if cfg.FollowPatterns, err = flags.GetStringSlice("follow"); err != nil {
		return nil, err
	}
	if cfg.JSONReport, err = flags.GetBool("json"); err != nil {
		return nil, err
	}
	if cfg.MarkdownReport, err = flags.GetBool("markdown"); err != nil {
		return nil, err
	}
	if cfg.ReportFile, err = flags.GetString("report"); err != nil {
		return nil, err
	}
	noHistory, err := flags.GetBool("no-history")
	if err != nil {
		return nil, err
	}
	cfg.SaveHistory = !noHistory
	dbDir, err := flags.GetString("db-dir")
	if err != nil {
		return nil, err
	}
	if dbDir != "" {
		cfg.DBDir = dbDir
	}
	cfg.Verbose = boolFlag(cmd, "verbose")
	cfg.Quiet = boolFlag(cmd, "quiet")

	if cfg.ConfigFilePath, err = flags.GetString("config"); err != nil {
		return nil, err
	}
	if err := loadSiteConfig(cfg, cmd); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadSiteConfig reads the configuration file and applies the seed host's
// settings. An explicitly given file must exist; otherwise a missing file
// is not an error.
func loadSiteConfig(cfg *config.Config, cmd *cobra.Command) error {
	explicitConfigPath := cfg.ConfigFilePath != ""
	configPath := config.FindConfigFile(cfg.ConfigFilePath)
	switch {
	case configPath != "":
		file, err := config.LoadConfigFile(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
		cfg.SiteConfigs = file
	case explicitConfigPath:
		return fmt.Errorf("%w: %s", config.ErrConfigNotFound, cfg.ConfigFilePath)
	default:
		return nil
	}

	seed, err := model.ParseURL(cfg.SeedURL, nil)
	if err != nil {
		// Validate reports the bad seed URL.
		return nil
	}
	cfg.ApplySite(cfg.SiteConfigs.GetSiteConfig(seed.Hostname()), cmd.Flags().Changed)
	return nil
}

// runMirror wires the components for one run, executes the pipeline, records
// the run and prints the summary.
func runMirror(ctx context.Context, cfg *config.Config, logger *slog.Logger, stdout io.Writer) error {
	seed, err := model.ParseURL(cfg.SeedURL, nil)
	if err != nil {
		return fmt.Errorf("%w: %w", config.ErrInvalidSeedURL, err)
	}

	client, err := transport.NewClient(
		transport.WithProxy(cfg.ProxyURL),
		transport.WithTimeout(cfg.Timeout),
		transport.WithUserAgent(cfg.UserAgent),
		transport.WithCookie(cfg.Cookie),
		transport.WithHeaders(cfg.Headers),
		transport.WithSiteHost(seed.Host),
	)
	if err != nil {
		return fmt.Errorf("failed to create HTTP client: %w", err)
	}
	if client.ProxyAddress() != "" {
		logger.Info("using proxy", "proxy", cfg.ProxyURL)
	}

	p := buildPipeline(cfg, seed, client, logger)
	mirrorReport := model.NewMirrorReport(uuid.NewString(), seed.String(), cfg.OutputDir)

	logger.Info("starting mirror",
		"seed", seed.String(),
		"output", cfg.OutputDir,
		"concurrency", cfg.Concurrency,
		"steps", p.StepNames(),
	)

	runErr := p.Execute(ctx, mirrorReport)
	mirrorReport.FinishedAt = time.Now()

	if cfg.SaveHistory {
		// Saving must not be cut short by the signal that ended the crawl.
		if err := saveRun(context.WithoutCancel(ctx), cfg.DBDir, mirrorReport, logger); err != nil {
			logger.Warn("failed to save run history", "error", err)
		}
	}

	if err := outputReport(cfg, mirrorReport, stdout); err != nil {
		logger.Error("report failed", "error", err)
	}

	if runErr != nil {
		return runErr
	}
	if mirrorReport.Status == model.RunStatusCanceled {
		return errMirrorCanceled
	}
	return nil
}

// buildPipeline assembles the steps of a run from the configuration.
func buildPipeline(cfg *config.Config, seed *url.URL, client *transport.Client, logger *slog.Logger) *pipeline.Pipeline {
	store := storage.New(cfg.OutputDir)
	scope := extract.NewScope(seed,
		extract.WithAllowedHosts(cfg.AllowedHosts),
		extract.WithIgnorePatterns(cfg.IgnorePatterns),
		extract.WithFollowPatterns(cfg.FollowPatterns),
	)

	f := fetcher.NewHTTPFetcher(client.HTTPClient(),
		fetcher.WithRetries(cfg.Retries),
		fetcher.WithInitialBackoff(cfg.InitialBackoff),
		fetcher.WithMaxBodySize(cfg.MaxBodySize),
		fetcher.WithRedirectFilter(scope.Mirrorable),
		fetcher.WithLogger(logger),
	)

	c := crawler.New(f, localpath.NewResolver(), store,
		crawler.WithConcurrency(cfg.Concurrency),
		crawler.WithDelay(cfg.Delay),
		crawler.WithPageLimit(cfg.MaxPages),
		crawler.WithFetchBudget(cfg.FetchBudget()),
		crawler.WithScope(scope),
		crawler.WithLogger(logger),
	)

	var rules []rewrite.Rule
	if cfg.RemoveBadge {
		rules = append(rules, rewrite.BadgeRule())
	}

	p := pipeline.New(pipeline.WithLogger(logger))
	p.AddSteps(
		pipeline.NewPrepareStep(store, logger),
		pipeline.NewCrawlStep(c, seed),
		pipeline.NewDetectStep(store,
			pipeline.WithStrict(cfg.Strict),
			pipeline.WithBadgeWarning(cfg.RemoveBadge),
			pipeline.WithDetectLogger(logger),
		),
		pipeline.NewRewriteStep(store, scope, logger, rules...),
	)
	if cfg.Sitemap {
		p.AddStep(pipeline.NewSitemapStep(store))
	}
	return p
}

// saveRun records the run in the history database.
func saveRun(ctx context.Context, dbDir string, mirrorReport *model.MirrorReport, logger *slog.Logger) error {
	db, err := database.Open(dbDir, database.DefaultOptions())
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.SaveRun(ctx, mirrorReport); err != nil {
		return err
	}
	logger.Debug("run saved to history", "id", mirrorReport.ID, "db", db.Path())
	return nil
}

// outputReport writes the summary in the requested format. Quiet mode
// prints nothing unless a report file was requested.
func outputReport(cfg *config.Config, mirrorReport *model.MirrorReport, stdout io.Writer) error {
	output := stdout
	if cfg.ReportFile != "" {
		dir := filepath.Dir(cfg.ReportFile)
		if dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0750); err != nil {
				return fmt.Errorf("failed to create report directory: %w", err)
			}
		}
		// Reports may name session-protected URLs; keep them private.
		f, err := os.OpenFile(cfg.ReportFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
		if err != nil {
			return fmt.Errorf("failed to create report file: %w", err)
		}
		defer f.Close()
		output = f
	} else if cfg.Quiet {
		return nil
	}

	var w report.Writer
	switch {
	case cfg.JSONReport:
		w = report.NewJSONWriter(output, report.WithPrettyPrint(), report.WithVersion(getVersion()))
	case cfg.MarkdownReport:
		w = report.NewMarkdownWriter(output)
	default:
		w = report.NewSimpleWriter(output, report.WithVerbose(cfg.Verbose))
	}
	_, err := w.Write(mirrorReport)
	return err
}
