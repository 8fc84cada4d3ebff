// Package blobstore stores original and derived audio objects in S3-compatible
// storage.
//
// The Store interface is the seam the ingest, worker, and delivery paths use;
// the MinIO-backed implementation auto-creates the configured bucket on
// startup and maps missing-object responses to a tagged error so callers can
// distinguish a torn-down object from a transport failure. Object keys follow
// a fixed layout under recordings/{record-id}/ defined in keys.go.
package blobstore
