package blobstore

import (
	"path"
	"strings"

	"waveline/internal/ledger"
)

// OriginalKey returns the object key for a record's untouched upload. The
// extension is taken from the submitted filename so the original keeps its
// container hint; an empty or dotless filename falls back to .bin.
func OriginalKey(recordID, filename string) string {
	ext := strings.ToLower(path.Ext(filename))
	if ext == "" || ext == "." {
		ext = ".bin"
	}
	return path.Join("recordings", recordID, "original"+ext)
}

// DerivedKey returns the object key for a transcoded variant.
func DerivedKey(recordID string, format ledger.Format) string {
	return path.Join("recordings", recordID, string(format)+"."+string(format))
}

// ContentTypeForKey maps an object key to the MIME type served on download.
func ContentTypeForKey(key string) string {
	switch strings.ToLower(path.Ext(key)) {
	case ".mp3":
		return "audio/mpeg"
	case ".wav":
		return "audio/wav"
	case ".ogg", ".oga", ".opus":
		return "audio/ogg"
	case ".flac":
		return "audio/flac"
	case ".m4a", ".mp4":
		return "audio/mp4"
	case ".webm":
		return "audio/webm"
	default:
		return "application/octet-stream"
	}
}
