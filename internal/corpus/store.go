package corpus

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"promptsmith/internal/logging"

	_ "modernc.org/sqlite"
)

// Store persists reference records in SQLite, keyed by origin.
type Store struct {
	mu        sync.RWMutex
	db        *sql.DB
	storePath string
}

// NewStore opens (or creates) the reference store at path.
func NewStore(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create corpus directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open corpus database: %w", err)
	}

	s := &Store{
		db:        db,
		storePath: path,
	}

	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ensure schema: %w", err)
	}

	logging.Corpus("Store initialized: path=%s", path)
	return s, nil
}

// ensureSchema creates the necessary tables.
func (s *Store) ensureSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS reference_records (
		origin TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		body TEXT NOT NULL,
		category TEXT,
		tags_json TEXT,
		fetched_at DATETIME
	);

	CREATE INDEX IF NOT EXISTS idx_records_category ON reference_records(category);
	CREATE INDEX IF NOT EXISTS idx_records_fetched ON reference_records(fetched_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Upsert inserts or replaces a record by origin.
func (s *Store) Upsert(rec ReferenceRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.upsertLocked(rec)
}

// UpsertBatch inserts or replaces records in a single transaction.
func (s *Store) UpsertBatch(recs []ReferenceRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	for _, rec := range recs {
		tags, err := json.Marshal(rec.Tags)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to marshal tags: %w", err)
		}
		if _, err := tx.Exec(`
			INSERT OR REPLACE INTO reference_records
			(origin, title, body, category, tags_json, fetched_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			rec.Origin, rec.Title, rec.Body, rec.Category, string(tags), rec.FetchedAt,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to upsert record %q: %w", rec.Origin, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}

	logging.CorpusDebug("Upserted %d records", len(recs))
	return nil
}

func (s *Store) upsertLocked(rec ReferenceRecord) error {
	tags, err := json.Marshal(rec.Tags)
	if err != nil {
		return fmt.Errorf("failed to marshal tags: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT OR REPLACE INTO reference_records
		(origin, title, body, category, tags_json, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		rec.Origin, rec.Title, rec.Body, rec.Category, string(tags), rec.FetchedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert record %q: %w", rec.Origin, err)
	}
	return nil
}

// List returns all stored records.
func (s *Store) List() ([]ReferenceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT origin, title, body, category, tags_json, fetched_at
		FROM reference_records
		ORDER BY origin`)
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	defer rows.Close()

	var records []ReferenceRecord
	for rows.Next() {
		var rec ReferenceRecord
		var tagsJSON sql.NullString
		var fetchedAt sql.NullTime

		if err := rows.Scan(&rec.Origin, &rec.Title, &rec.Body, &rec.Category, &tagsJSON, &fetchedAt); err != nil {
			logging.Get(logging.CategoryCorpus).Warn("Failed to scan record: %v", err)
			continue
		}

		if tagsJSON.Valid && tagsJSON.String != "" {
			if err := json.Unmarshal([]byte(tagsJSON.String), &rec.Tags); err != nil {
				rec.Tags = nil
			}
		}
		if fetchedAt.Valid {
			rec.FetchedAt = fetchedAt.Time
		}

		records = append(records, rec)
	}

	return records, rows.Err()
}

// Count returns the number of stored records.
func (s *Store) Count() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM reference_records`).Scan(&n)
	return n, err
}

// Prune removes records fetched before the cutoff.
func (s *Store) Prune(olderThan time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`DELETE FROM reference_records WHERE fetched_at < ?`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("failed to prune records: %w", err)
	}

	n, _ := res.RowsAffected()
	if n > 0 {
		logging.Corpus("Pruned %d stale records", n)
	}
	return n, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
