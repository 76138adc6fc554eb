// Package main provides the entry point for the sitemirror CLI.
//
// sitemirror downloads a published Webflow site, with its pages, stylesheets,
// scripts, images and media, and rewrites every reference so that the copy
// browses offline or from any static host.
//
// Usage:
//
//	sitemirror mirror https://example.webflow.io -o out
//	sitemirror history
//
// See --help for all available options.
package main

func main() {
	Execute()
}
