// Package config loads, validates, and normalizes waveline configuration.
//
// Configuration is a single TOML file (see sample_config.toml) with
// credential overrides taken from the process environment so secrets can be
// kept out of the file. All path values are tilde-expanded and absolutized
// during load; callers receive a Config whose directories are ready for
// EnsureDirectories.
package config
