package testsupport

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"waveline/internal/config"
	"waveline/internal/ledger"
)

// MustOpenLedger opens a ledger.Store for tests and registers cleanup.
func MustOpenLedger(t testing.TB, cfg *config.Config) *ledger.Store {
	t.Helper()

	store, err := ledger.Open(cfg)
	if err != nil {
		t.Fatalf("ledger.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewRecord creates a pending ingestion record for tests using the provided
// store. The content hash must be unique within the test database.
func NewRecord(t testing.TB, store *ledger.Store, contentHash string) *ledger.Record {
	t.Helper()

	rec := &ledger.Record{
		ID:          uuid.NewString(),
		ContentHash: contentHash,
		Source:      "test-suite",
		OriginalKey: "recordings/" + contentHash + "/original.opus",
	}
	created, deduped, err := store.Create(context.Background(), rec)
	if err != nil {
		t.Fatalf("store.Create: %v", err)
	}
	if deduped {
		t.Fatalf("store.Create: unexpected dedupe for hash %s", contentHash)
	}
	return created
}
