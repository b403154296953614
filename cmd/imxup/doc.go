// Command imxup is the CLI for the gallery upload daemon. It talks to a
// running daemon over the IPC socket and falls back to direct queue store
// access for read-only commands when the daemon is offline.
package main
