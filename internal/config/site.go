package config

import (
	"maps"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration written as a Go duration string ("500ms")
// in the configuration file.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(strings.TrimSpace(value.Value))
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// SiteConfig holds the settings for one site.
type SiteConfig struct {
	// Cookie is sent with every request, e.g. a password-protected page
	// session: "wf_auth=...".
	Cookie string `yaml:"cookie,omitempty"`

	// Headers are added to every request.
	Headers map[string]string `yaml:"headers,omitempty"`

	// UserAgent overrides the default User-Agent.
	UserAgent string `yaml:"userAgent,omitempty"`

	// AllowedHosts are extra asset host suffixes to mirror.
	AllowedHosts []string `yaml:"allowedHosts,omitempty"`

	// IgnorePatterns are path globs that are not crawled.
	IgnorePatterns []string `yaml:"ignorePatterns,omitempty"`

	// FollowPatterns, when set, are the only path globs that are crawled.
	FollowPatterns []string `yaml:"followPatterns,omitempty"`

	// Delay overrides the per-host politeness delay.
	Delay *Duration `yaml:"delay,omitempty"`

	// Concurrency overrides the worker count.
	Concurrency int `yaml:"concurrency,omitempty"`
}

// File is the structure of the .sitemirror configuration file.
type File struct {
	// Sites maps a host name (e.g. "example.webflow.io") to its settings.
	Sites map[string]SiteConfig `yaml:"sites,omitempty"`

	// Defaults apply to every site unless overridden.
	Defaults SiteConfig `yaml:"defaults,omitempty"`
}

// GetSiteConfig returns the settings for host: the defaults overridden
// by the host's own entry. Host matching ignores case.
func (cf *File) GetSiteConfig(host string) SiteConfig {
	result := cf.Defaults
	result.Headers = maps.Clone(cf.Defaults.Headers)

	site, ok := cf.Sites[host]
	if !ok {
		for name, sc := range cf.Sites {
			if strings.EqualFold(name, host) {
				site, ok = sc, true
				break
			}
		}
	}
	if !ok {
		return result
	}

	if site.Cookie != "" {
		result.Cookie = site.Cookie
	}
	if site.UserAgent != "" {
		result.UserAgent = site.UserAgent
	}
	if len(site.Headers) > 0 {
		if result.Headers == nil {
			result.Headers = make(map[string]string, len(site.Headers))
		}
		maps.Copy(result.Headers, site.Headers)
	}
	if len(site.AllowedHosts) > 0 {
		result.AllowedHosts = append(append([]string(nil), result.AllowedHosts...), site.AllowedHosts...)
	}
	if len(site.IgnorePatterns) > 0 {
		result.IgnorePatterns = site.IgnorePatterns
	}
	if len(site.FollowPatterns) > 0 {
		result.FollowPatterns = site.FollowPatterns
	}
	if site.Delay != nil {
		result.Delay = site.Delay
	}
	if site.Concurrency > 0 {
		result.Concurrency = site.Concurrency
	}
	return result
}
