// Package worker consumes transcode jobs from the durable queue and produces
// the derived audio formats.
//
// Each delivery runs in a private scratch directory: fetch the original,
// run both transcodes concurrently (either failure cancels both), upload the
// outputs concurrently, then publish completion in one atomic ledger update.
// The handler classifies every attempt as done, retry, or fatal and maps that
// onto the queue's acknowledge/retry/stop semantics; the final permitted
// attempt drives the record to failed so no job ends in limbo. Scratch
// cleanup runs unconditionally.
package worker
