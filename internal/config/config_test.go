package config

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"
)

// TestNewConfig documents the defaults.
func TestNewConfig(t *testing.T) {
	t.Parallel()

	cfg := NewConfig()

	tests := []struct {
		name string
		ok   bool
	}{
		{"output directory is out", cfg.OutputDir == "out"},
		{"concurrency is 8", cfg.Concurrency == 8},
		{"delay is 200ms", cfg.Delay == 200*time.Millisecond},
		{"timeout is 30s", cfg.Timeout == 30*time.Second},
		{"retries is 3", cfg.Retries == 3},
		{"initial backoff is 500ms", cfg.InitialBackoff == 500*time.Millisecond},
		{"max size is 50MiB", cfg.MaxBodySize == 50<<20},
		{"pages are unlimited", cfg.MaxPages == 0},
		{"webflow CDN is allowed", slices.Equal(cfg.AllowedHosts, []string{"website-files.com"})},
		{"history is saved", cfg.SaveHistory},
		{"badge is kept", !cfg.RemoveBadge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if !tt.ok {
				t.Errorf("unexpected default: %+v", cfg)
			}
		})
	}
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	valid := func() *Config {
		cfg := NewConfig()
		cfg.SeedURL = "https://example.webflow.io/"
		return cfg
	}

	tests := []struct {
		name   string
		modify func(*Config)
		want   error
	}{
		{"valid config", func(*Config) {}, nil},
		{"missing URL", func(c *Config) { c.SeedURL = "" }, ErrNoSeedURL},
		{"relative URL", func(c *Config) { c.SeedURL = "/about" }, ErrInvalidSeedURL},
		{"ftp URL", func(c *Config) { c.SeedURL = "ftp://example.com/" }, ErrInvalidSeedURL},
		{"empty output", func(c *Config) { c.OutputDir = "" }, ErrNoOutputDir},
		{"zero timeout", func(c *Config) { c.Timeout = 0 }, ErrInvalidTimeout},
		{"zero concurrency", func(c *Config) { c.Concurrency = 0 }, ErrInvalidConcurrency},
		{"negative delay", func(c *Config) { c.Delay = -time.Second }, ErrInvalidDelay},
		{"zero delay is allowed", func(c *Config) { c.Delay = 0 }, nil},
		{"negative retries", func(c *Config) { c.Retries = -1 }, ErrInvalidRetries},
		{"negative backoff", func(c *Config) { c.InitialBackoff = -1 }, ErrInvalidBackoff},
		{"negative max size", func(c *Config) { c.MaxBodySize = -1 }, ErrInvalidMaxBodySize},
		{"negative max pages", func(c *Config) { c.MaxPages = -1 }, ErrInvalidMaxPages},
		{"verbose and quiet", func(c *Config) { c.Verbose, c.Quiet = true, true }, ErrConflictingVerbosity},
		{"json and markdown", func(c *Config) { c.JSONReport, c.MarkdownReport = true, true }, ErrConflictingReportFormats},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := valid()
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.want == nil {
				if err != nil {
					t.Errorf("expected nil, got %v", err)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestFetchBudget(t *testing.T) {
	t.Parallel()

	cfg := &Config{Timeout: 10 * time.Second, Retries: 3, InitialBackoff: time.Second}
	// 4 attempts of 10s plus waits of 1s, 2s and 4s.
	if got, want := cfg.FetchBudget(), 47*time.Second; got != want {
		t.Errorf("FetchBudget() = %v, want %v", got, want)
	}

	cfg = &Config{Timeout: 5 * time.Second}
	if got := cfg.FetchBudget(); got != 5*time.Second {
		t.Errorf("FetchBudget() without retries = %v", got)
	}
}

func TestApplySite(t *testing.T) {
	t.Parallel()

	delay := Duration(2 * time.Second)
	site := SiteConfig{
		Cookie:         "wf_auth=abc",
		UserAgent:      "custom/1.0",
		Headers:        map[string]string{"X-Token": "file", "X-Extra": "1"},
		AllowedHosts:   []string{"cdn.example.com", "website-files.com"},
		IgnorePatterns: []string{"/drafts/*"},
		Delay:          &delay,
		Concurrency:    2,
	}

	t.Run("file values fill unset options", func(t *testing.T) {
		t.Parallel()

		cfg := NewConfig()
		cfg.ApplySite(site, nil)

		if cfg.Cookie != "wf_auth=abc" || cfg.UserAgent != "custom/1.0" {
			t.Errorf("cookie/user agent not applied: %+v", cfg)
		}
		if cfg.Delay != 2*time.Second || cfg.Concurrency != 2 {
			t.Errorf("delay/concurrency not applied: %v %d", cfg.Delay, cfg.Concurrency)
		}
		if !slices.Equal(cfg.AllowedHosts, []string{"website-files.com", "cdn.example.com"}) {
			t.Errorf("AllowedHosts = %v", cfg.AllowedHosts)
		}
		if !slices.Equal(cfg.IgnorePatterns, []string{"/drafts/*"}) {
			t.Errorf("IgnorePatterns = %v", cfg.IgnorePatterns)
		}
	})

	t.Run("command line wins", func(t *testing.T) {
		t.Parallel()

		cfg := NewConfig()
		cfg.Delay = 0
		cfg.Concurrency = 16
		cfg.Headers = map[string]string{"X-Token": "flag"}
		explicit := func(name string) bool { return name == "delay" || name == "concurrency" }
		cfg.ApplySite(site, explicit)

		if cfg.Delay != 0 || cfg.Concurrency != 16 {
			t.Errorf("explicit flags overridden: %v %d", cfg.Delay, cfg.Concurrency)
		}
		if cfg.Headers["X-Token"] != "flag" || cfg.Headers["X-Extra"] != "1" {
			t.Errorf("Headers = %v", cfg.Headers)
		}
	})
}

func TestFileGetSiteConfig(t *testing.T) {
	t.Parallel()

	delay := Duration(time.Second)
	file := &File{
		Defaults: SiteConfig{
			Cookie:       "default=1",
			Headers:      map[string]string{"X-Default": "d"},
			AllowedHosts: []string{"cdn.default.com"},
		},
		Sites: map[string]SiteConfig{
			"Example.Webflow.io": {
				Cookie:       "site=2",
				Headers:      map[string]string{"X-Site": "s"},
				AllowedHosts: []string{"cdn.site.com"},
				Delay:        &delay,
			},
		},
	}

	t.Run("unknown host gets defaults", func(t *testing.T) {
		t.Parallel()

		sc := file.GetSiteConfig("other.webflow.io")
		if sc.Cookie != "default=1" || sc.Delay != nil {
			t.Errorf("unexpected config %+v", sc)
		}
	})

	t.Run("site overrides and merges", func(t *testing.T) {
		t.Parallel()

		sc := file.GetSiteConfig("example.webflow.io")
		if sc.Cookie != "site=2" {
			t.Errorf("Cookie = %q", sc.Cookie)
		}
		if sc.Headers["X-Default"] != "d" || sc.Headers["X-Site"] != "s" {
			t.Errorf("Headers = %v", sc.Headers)
		}
		if !slices.Equal(sc.AllowedHosts, []string{"cdn.default.com", "cdn.site.com"}) {
			t.Errorf("AllowedHosts = %v", sc.AllowedHosts)
		}
		if sc.Delay == nil || time.Duration(*sc.Delay) != time.Second {
			t.Errorf("Delay = %v", sc.Delay)
		}
	})

	t.Run("defaults are not modified", func(t *testing.T) {
		t.Parallel()

		_ = file.GetSiteConfig("example.webflow.io")
		if len(file.Defaults.Headers) != 1 || len(file.Defaults.AllowedHosts) != 1 {
			t.Errorf("defaults mutated: %+v", file.Defaults)
		}
	})
}

func TestLoadConfigFile(t *testing.T) {
	t.Parallel()

	t.Run("missing file", func(t *testing.T) {
		t.Parallel()

		cfg, err := LoadConfigFile(filepath.Join(t.TempDir(), ".sitemirror"))
		if !errors.Is(err, ErrConfigNotFound) {
			t.Fatalf("expected ErrConfigNotFound, got %v", err)
		}
		if cfg != nil {
			t.Error("expected nil config")
		}
	})

	t.Run("valid file", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), ".sitemirror")
		content := `defaults:
  userAgent: "mirror-bot/1.0"
  delay: 500ms
sites:
  example.webflow.io:
    cookie: "wf_auth=xyz"
    headers:
      Authorization: "Bearer token"
    allowedHosts:
      - assets.example.com
    ignorePatterns:
      - "/drafts/*"
    concurrency: 4
`
		if err := os.WriteFile(path, []byte(content), 0600); err != nil {
			t.Fatal(err)
		}

		cf, err := LoadConfigFile(path)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cf.Defaults.UserAgent != "mirror-bot/1.0" {
			t.Errorf("UserAgent = %q", cf.Defaults.UserAgent)
		}
		if cf.Defaults.Delay == nil || time.Duration(*cf.Defaults.Delay) != 500*time.Millisecond {
			t.Errorf("Delay = %v", cf.Defaults.Delay)
		}
		site := cf.Sites["example.webflow.io"]
		if site.Cookie != "wf_auth=xyz" || site.Headers["Authorization"] != "Bearer token" || site.Concurrency != 4 {
			t.Errorf("site = %+v", site)
		}
	})

	t.Run("invalid duration", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), ".sitemirror")
		if err := os.WriteFile(path, []byte("defaults:\n  delay: soon\n"), 0600); err != nil {
			t.Fatal(err)
		}
		if _, err := LoadConfigFile(path); err == nil {
			t.Error("expected error for invalid duration")
		}
	})

	t.Run("invalid YAML", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), ".sitemirror")
		if err := os.WriteFile(path, []byte(`invalid: yaml: [}`), 0600); err != nil {
			t.Fatal(err)
		}
		if _, err := LoadConfigFile(path); err == nil {
			t.Error("expected error for invalid YAML")
		}
	})

	t.Run("initializes nil Sites map", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), ".sitemirror")
		if err := os.WriteFile(path, []byte("defaults: {}\n"), 0600); err != nil {
			t.Fatal(err)
		}
		cf, err := LoadConfigFile(path)
		if err != nil {
			t.Fatal(err)
		}
		if cf.Sites == nil {
			t.Error("expected Sites map to be initialized")
		}
	})
}

func TestFindConfigFile(t *testing.T) {
	t.Parallel()

	t.Run("explicit path", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), "custom.yaml")
		if err := os.WriteFile(path, []byte("defaults: {}"), 0600); err != nil {
			t.Fatal(err)
		}
		if got := FindConfigFile(path); got != path {
			t.Errorf("FindConfigFile() = %q, want %q", got, path)
		}
	})

	t.Run("missing explicit path", func(t *testing.T) {
		t.Parallel()

		if got := FindConfigFile(filepath.Join(t.TempDir(), "missing.yaml")); got != "" {
			t.Errorf("FindConfigFile() = %q, want empty", got)
		}
	})
}

func TestXDGDirs(t *testing.T) {
	t.Parallel()

	if filepath.Base(XDGDataDir()) != AppName {
		t.Errorf("XDGDataDir() = %q", XDGDataDir())
	}
	if filepath.Base(XDGConfigDir()) != AppName {
		t.Errorf("XDGConfigDir() = %q", XDGConfigDir())
	}
}
