// Package frontier provides the deduplicated work queue that drives a crawl.
//
// The Frontier owns the visited set and the per-URL state machine. Workers
// pull references with Dequeue, and report the result with MarkDone or
// MarkFailed. Every normalized URL is handed out at most once, which is
// what makes traversal of cyclic link graphs terminate.
//
// # Draining
//
// Dequeue blocks while there is nothing pending but some entry is still in
// flight, because an in-flight page may discover more work. When both the
// queue and the in-flight count are empty, every blocked worker is released
// and Dequeue returns false: the crawl is complete.
package frontier
