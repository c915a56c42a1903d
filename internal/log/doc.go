// Package log provides leveled diagnostics for egressbind.
//
// Debug lines are only emitted in verbose mode. Info lines go to stdout,
// error lines to stderr, and warnings to both streams so that a warning
// about missing binding configuration is visible whichever stream the
// operator watches.
package log
