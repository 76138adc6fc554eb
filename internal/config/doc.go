// Package config provides the configuration of a mirror run: crawl and
// fetch limits, output options, and per-site settings loaded from the
// .sitemirror YAML file.
package config
