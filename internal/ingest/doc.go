// Package ingest admits uploaded audio into the processing pipeline.
//
// Admission validates required metadata, checks the codec with ffprobe,
// fingerprints the content, and dedupes against the ledger before any
// externally visible state is created. New content is stored, recorded as
// pending, and handed to the job queue in that order, so a queued job always
// references a committed record. Duplicate submissions, concurrent or not,
// collapse onto the surviving record as a cache hit.
package ingest
