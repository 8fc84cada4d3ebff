// Package main hosts the waveline CLI entrypoint and command graph.
//
// The Cobra-based command tree starts the API server and the transcode
// worker pool, inspects and repairs the ingestion ledger, and scaffolds
// configuration. It centralizes configuration resolution and structured
// logging setup so subcommands can focus on user experience instead of
// wiring.
//
// Keep this package lean: add new functionality by extending the internal
// packages first, then surface it through dedicated commands or flags here.
package main
