// Package database stores the history of mirror runs in SQLite.
//
// Every run is saved with its summary and the full report, and each frontier
// record is kept as a row so that failures of past runs can be queried
// without decoding the report. The database is a single file in the XDG data
// directory and is opened with modernc.org/sqlite, which needs no cgo.
package database
