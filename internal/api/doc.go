// Package api exposes the upload pipeline over HTTP.
//
// The server hosts four endpoints under /api/v1: multipart upload admission,
// record status, variant download (streamed or redirected to a presigned
// URL), and a health probe. Errors cross the boundary as a stable JSON
// envelope {"error": {"kind", "message", "details"}} with the kind-to-status
// mapping owned by the errkind package.
package api
