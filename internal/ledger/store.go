package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"waveline/internal/config"
)

// ErrNotPending is returned when a terminal transition targets a record that
// is no longer pending. Terminal states are immutable.
var ErrNotPending = errors.New("record is not pending")

// Store manages ingestion-record persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the ledger database and applies the schema.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	dbPath := filepath.Join(cfg.Paths.DataDir, "ledger.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// Ping verifies the database connection is usable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Create inserts a new pending record. When the content hash collides with an
// existing record the unique constraint is authoritative: the surviving
// record is re-read and returned with deduped=true, and no new state is
// created. The caller's candidate record is returned with deduped=false on a
// plain insert.
func (s *Store) Create(ctx context.Context, rec *Record) (*Record, bool, error) {
	if rec == nil {
		return nil, false, errors.New("record is nil")
	}
	if strings.TrimSpace(rec.ID) == "" {
		return nil, false, errors.New("record id is required")
	}
	if strings.TrimSpace(rec.ContentHash) == "" {
		return nil, false, errors.New("content hash is required")
	}

	now := time.Now().UTC()
	rec.Status = StatusPending
	rec.CreatedAt = now
	rec.UpdatedAt = now
	timestamp := now.Format(time.RFC3339Nano)

	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO ingestion_records (
            id, content_hash, source, external_ref, original_key,
            status, attempts, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID,
		rec.ContentHash,
		rec.Source,
		nullableString(rec.ExternalRef),
		rec.OriginalKey,
		rec.Status,
		0,
		timestamp,
		timestamp,
	)
	if err != nil {
		if isUniqueViolation(err) {
			existing, ferr := s.FindByHash(ctx, rec.ContentHash)
			if ferr != nil {
				return nil, false, fmt.Errorf("fetch existing record after conflict: %w", ferr)
			}
			if existing == nil {
				return nil, false, fmt.Errorf("insert record: %w", err)
			}
			return existing, true, nil
		}
		return nil, false, fmt.Errorf("insert record: %w", err)
	}

	return rec, false, nil
}

// GetByID fetches a record by identifier. A missing record returns (nil, nil).
func (s *Store) GetByID(ctx context.Context, id string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM ingestion_records WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get record: %w", err)
	}
	return rec, nil
}

// FindByHash returns the record matching a content hash, or nil.
func (s *Store) FindByHash(ctx context.Context, contentHash string) (*Record, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+recordColumns+` FROM ingestion_records WHERE content_hash = ?`,
		contentHash,
	)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find by hash: %w", err)
	}
	return rec, nil
}

// MarkCompleted transitions a pending record to completed, publishing every
// derived location in the same UPDATE so readers never observe a completed
// record with a partial derived set. Returns ErrNotPending when the record is
// already terminal, and an error when any derived format is missing a key.
func (s *Store) MarkCompleted(ctx context.Context, id string, derived map[Format]string) error {
	for _, format := range DerivedFormats() {
		if strings.TrimSpace(derived[format]) == "" {
			return fmt.Errorf("mark completed: missing %s location", format)
		}
	}
	derivedJSON, err := json.Marshal(derived)
	if err != nil {
		return fmt.Errorf("marshal derived locations: %w", err)
	}

	res, err := s.db.ExecContext(
		ctx,
		`UPDATE ingestion_records
         SET status = ?, derived_json = ?, error_message = NULL, updated_at = ?
         WHERE id = ? AND status = ?`,
		StatusCompleted,
		string(derivedJSON),
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
		StatusPending,
	)
	if err != nil {
		return fmt.Errorf("mark completed: %w", err)
	}
	return requireTransition(res)
}

// MarkFailed transitions a pending record to failed, recording the final
// error and the attempt count that exhausted the retry budget.
func (s *Store) MarkFailed(ctx context.Context, id, message string, attempts int) error {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE ingestion_records
         SET status = ?, error_message = ?, attempts = ?, updated_at = ?
         WHERE id = ? AND status = ?`,
		StatusFailed,
		nullableString(message),
		attempts,
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
		StatusPending,
	)
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	return requireTransition(res)
}

// RecordAttempt stores the latest delivery attempt count on a pending record.
// Attempts on terminal records are ignored; redelivery after completion is
// the queue's business, not the ledger's.
func (s *Store) RecordAttempt(ctx context.Context, id string, attempts int) error {
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE ingestion_records SET attempts = ?, updated_at = ?
         WHERE id = ? AND status = ?`,
		attempts,
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
		StatusPending,
	)
	if err != nil {
		return fmt.Errorf("record attempt: %w", err)
	}
	return nil
}

// List returns records filtered by status set (or all records when no status
// is provided), oldest first.
func (s *Store) List(ctx context.Context, statuses ...Status) ([]*Record, error) {
	var (
		rows *sql.Rows
		err  error
	)

	baseQuery := `SELECT ` + recordColumns + ` FROM ingestion_records`
	orderClause := ` ORDER BY created_at`

	if len(statuses) == 0 {
		rows, err = s.db.QueryContext(ctx, baseQuery+orderClause)
	} else {
		placeholders := makePlaceholders(len(statuses))
		args := make([]any, len(statuses))
		for i, status := range statuses {
			args[i] = status
		}
		query := baseQuery + ` WHERE status IN (` + placeholders + `)` + orderClause
		rows, err = s.db.QueryContext(ctx, query, args...)
	}
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Stats returns a count of records grouped by status.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM ingestion_records GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("ledger stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

// Health aggregates record state for diagnostic output.
func (s *Store) Health(ctx context.Context) (HealthSummary, error) {
	stats, err := s.Stats(ctx)
	if err != nil {
		return HealthSummary{}, err
	}
	health := HealthSummary{}
	for status, count := range stats {
		health.Total += count
		switch status {
		case StatusPending:
			health.Pending += count
		case StatusCompleted:
			health.Completed += count
		case StatusFailed:
			health.Failed += count
		}
	}
	return health, nil
}

func requireTransition(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotPending
	}
	return nil
}

const recordColumns = "id, content_hash, source, external_ref, original_key, derived_json, status, error_message, attempts, created_at, updated_at"

func scanRecord(scanner interface{ Scan(dest ...any) error }) (*Record, error) {
	var (
		id           string
		contentHash  string
		source       string
		externalRef  sql.NullString
		originalKey  string
		derivedJSON  sql.NullString
		statusStr    string
		errorMessage sql.NullString
		attempts     int
		createdRaw   string
		updatedRaw   string
	)

	if err := scanner.Scan(
		&id,
		&contentHash,
		&source,
		&externalRef,
		&originalKey,
		&derivedJSON,
		&statusStr,
		&errorMessage,
		&attempts,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	rec := &Record{
		ID:           id,
		ContentHash:  contentHash,
		Source:       source,
		ExternalRef:  externalRef.String,
		OriginalKey:  originalKey,
		Status:       Status(statusStr),
		ErrorMessage: errorMessage.String,
		Attempts:     attempts,
	}

	if derivedJSON.Valid && derivedJSON.String != "" {
		derived := make(map[Format]string)
		if err := json.Unmarshal([]byte(derivedJSON.String), &derived); err != nil {
			return nil, fmt.Errorf("decode derived locations: %w", err)
		}
		rec.Derived = derived
	}

	if created, err := parseTimeString(createdRaw); err == nil {
		rec.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		rec.UpdatedAt = updated
	}
	return rec, nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
