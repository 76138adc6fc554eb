// Package model defines the data structures shared by the mirror engine.
//
// This package contains the following main types:
//   - Reference: a normalized URL together with how it was discovered
//   - Kind and Hint: the classification of a resource and its markup context
//   - Entry and Outcome: the frontier's per-URL lifecycle record
//   - MirrorReport: the result of one run, persisted in the history database
//
// The types live in their own package because the crawler, the rewriter,
// the reports and the database all need them.
package model
