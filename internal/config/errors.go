package config

import "errors"

// Configuration validation errors returned by Config.Validate.
var (
	// ErrNoSeedURL is returned when no start URL was given.
	ErrNoSeedURL = errors.New("no URL specified: provide the site to mirror")

	// ErrInvalidSeedURL is returned when the start URL is not an absolute
	// http(s) URL with a host.
	ErrInvalidSeedURL = errors.New("invalid URL: must be an absolute http or https URL")

	// ErrNoOutputDir is returned when the output directory is empty.
	ErrNoOutputDir = errors.New("no output directory specified")

	// ErrInvalidTimeout is returned when the timeout is not positive.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrInvalidConcurrency is returned when the worker count is not positive.
	ErrInvalidConcurrency = errors.New("invalid concurrency: must be positive")

	// ErrInvalidDelay is returned when the politeness delay is negative.
	ErrInvalidDelay = errors.New("invalid delay: must be non-negative")

	// ErrInvalidRetries is returned when the retry count is negative.
	ErrInvalidRetries = errors.New("invalid retries: must be non-negative")

	// ErrInvalidBackoff is returned when the initial backoff is negative.
	ErrInvalidBackoff = errors.New("invalid backoff: must be non-negative")

	// ErrInvalidMaxBodySize is returned when the max body size is negative.
	ErrInvalidMaxBodySize = errors.New("invalid max size: must be non-negative")

	// ErrInvalidMaxPages is returned when the page limit is negative.
	ErrInvalidMaxPages = errors.New("invalid max pages: must be non-negative")

	// ErrConflictingVerbosity is returned when --verbose and --quiet are
	// both given.
	ErrConflictingVerbosity = errors.New("conflicting verbosity: --verbose and --quiet cannot be used together")

	// ErrConflictingReportFormats is returned when --json and --markdown
	// are both given.
	ErrConflictingReportFormats = errors.New("conflicting report formats: --json and --markdown cannot be used together")
)
