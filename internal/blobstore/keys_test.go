package blobstore_test

import (
	"testing"

	"waveline/internal/blobstore"
	"waveline/internal/ledger"
)

func TestOriginalKeyKeepsExtension(t *testing.T) {
	cases := []struct {
		filename string
		want     string
	}{
		{"voice-note.opus", "recordings/rec-1/original.opus"},
		{"Upper.OGG", "recordings/rec-1/original.ogg"},
		{"no-extension", "recordings/rec-1/original.bin"},
		{"", "recordings/rec-1/original.bin"},
		{"dir/nested.webm", "recordings/rec-1/original.webm"},
	}
	for _, tc := range cases {
		if got := blobstore.OriginalKey("rec-1", tc.filename); got != tc.want {
			t.Fatalf("OriginalKey(%q) = %q, want %q", tc.filename, got, tc.want)
		}
	}
}

func TestDerivedKeyLayout(t *testing.T) {
	if got := blobstore.DerivedKey("rec-2", ledger.FormatMP3); got != "recordings/rec-2/mp3.mp3" {
		t.Fatalf("unexpected mp3 key: %s", got)
	}
	if got := blobstore.DerivedKey("rec-2", ledger.FormatWAV); got != "recordings/rec-2/wav.wav" {
		t.Fatalf("unexpected wav key: %s", got)
	}
}

func TestContentTypeForKey(t *testing.T) {
	cases := map[string]string{
		"recordings/x/mp3.mp3":       "audio/mpeg",
		"recordings/x/wav.wav":       "audio/wav",
		"recordings/x/original.opus": "audio/ogg",
		"recordings/x/original.flac": "audio/flac",
		"recordings/x/original.bin":  "application/octet-stream",
	}
	for key, want := range cases {
		if got := blobstore.ContentTypeForKey(key); got != want {
			t.Fatalf("ContentTypeForKey(%q) = %q, want %q", key, got, want)
		}
	}
}
