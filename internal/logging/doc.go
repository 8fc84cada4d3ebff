// Package logging builds the slog loggers used across waveline and defines
// the standardized attribute keys components log with. Console output renders
// compact "TIME LEVEL component: msg key=value" lines; json output is meant
// for aggregation. The format defaults to console on a TTY and json elsewhere.
package logging
