// Package ledger persists ingestion records in SQLite and enforces their
// lifecycle rules.
//
// Every accepted upload gets exactly one record, keyed by a UUID and guarded
// by a unique content-hash constraint that makes the database the arbiter of
// duplicate submissions. Records move from pending to exactly one terminal
// state, completed or failed, and terminal states never change. Completion
// publishes all derived object locations in a single guarded UPDATE so no
// reader ever sees a completed record with a partial derived set.
//
// Schema changes bump the version in schema.go; users clear the database to
// adopt the new schema.
package ledger
