// Package localpath maps remote URLs to files inside the mirror.
//
// A Resolver hands out one local path per normalized URL and guarantees
// that no two URLs share a path, appending a short SHA3-derived
// discriminator when the preferred path is taken. Relative and Join convert
// between local paths and the relative references written into mirrored
// HTML, CSS and JavaScript.
package localpath
