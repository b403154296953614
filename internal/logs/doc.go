// Package logs reads the daemon log file for the CLI tail surface.
//
// Offsets are plain byte positions into the file; a negative offset means
// "start from the last N lines". Follow mode polls with bounded waits so
// `imxup logs --follow` streams new lines without holding the file open, and
// callers supply context cancellation so polling shuts down cleanly.
package logs
