// Package pipeline runs the stages of a mirror run in sequence.
//
// A run is a Pipeline of Steps sharing one model.MirrorReport:
//
//	prepare -> crawl -> detect -> rewrite -> sitemap
//
// Only the crawl talks to the network. The steps after it work on the
// files already written and implement Finisher, so they still run when the
// crawl was interrupted and the partial mirror stays usable offline.
package pipeline
