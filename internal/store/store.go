package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

type Store struct {
	DB *sql.DB
}

// ErrNotFound is returned when a record lookup matches no row.
var ErrNotFound = errors.New("record not found")

// StoreError wraps persistence-layer failures so callers can distinguish
// them from extraction and analysis failures.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store: %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// UploadRecord is one persisted upload outcome. Records are append-only and
// never mutated after creation.
type UploadRecord struct {
	ID            int64     `json:"id"`
	Filename      string    `json:"filename"`
	ExtractedText string    `json:"extracted_text"`
	ASOPAnalysis  string    `json:"asop_analysis"`
	CreatedAt     time.Time `json:"created_at"`
}

// UploadSummary is the list-view projection of an upload. Extracted text and
// analysis are excluded to keep the retrieval response small.
type UploadSummary struct {
	ID        int64     `json:"id"`
	Filename  string    `json:"filename"`
	CreatedAt time.Time `json:"created_at"`
}

// NewWithDSN constructs the Store using an explicit Postgres DSN
func NewWithDSN(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	return newStore(ctx, db)
}

// newStore verifies connectivity and the schema, closing the handle on
// failure so construction never leaks a connection pool.
func newStore(ctx context.Context, db *sql.DB) (*Store, error) {
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	s := &Store{DB: db}
	if err := s.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// EnsureSchema creates the uploads relation if absent. Safe to run on every
// startup.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.DB.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS uploads (
    id BIGSERIAL PRIMARY KEY,
    filename TEXT NOT NULL,
    extracted_text TEXT NOT NULL,
    asop_analysis TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_uploads_created_at ON uploads (created_at);
`)
	if err != nil {
		return &StoreError{Op: "ensure schema", Err: err}
	}
	return nil
}

// InsertUpload atomically creates one upload record with a server-assigned id
// and timestamp.
func (s *Store) InsertUpload(ctx context.Context, filename, extractedText, analysis string) (UploadRecord, error) {
	if filename == "" {
		return UploadRecord{}, &StoreError{Op: "insert upload", Err: errors.New("filename required")}
	}
	rec := UploadRecord{
		Filename:      filename,
		ExtractedText: extractedText,
		ASOPAnalysis:  analysis,
	}
	err := s.DB.QueryRowContext(ctx, `
INSERT INTO uploads (filename, extracted_text, asop_analysis)
VALUES ($1,$2,$3)
RETURNING id, created_at
`, filename, extractedText, analysis).Scan(&rec.ID, &rec.CreatedAt)
	if err != nil {
		return UploadRecord{}, &StoreError{Op: "insert upload", Err: err}
	}
	return rec, nil
}

// ListUploads returns summaries of all uploads, newest first. Ties on
// created_at break by id so the ordering matches insertion order.
func (s *Store) ListUploads(ctx context.Context) ([]UploadSummary, error) {
	rows, err := s.DB.QueryContext(ctx, `
SELECT id, filename, created_at
FROM uploads
ORDER BY created_at DESC, id DESC
`)
	if err != nil {
		return nil, &StoreError{Op: "list uploads", Err: err}
	}
	defer rows.Close()

	items := []UploadSummary{}
	for rows.Next() {
		var it UploadSummary
		if err := rows.Scan(&it.ID, &it.Filename, &it.CreatedAt); err != nil {
			return nil, &StoreError{Op: "list uploads", Err: err}
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, &StoreError{Op: "list uploads", Err: err}
	}
	return items, nil
}

// GetUpload returns the full record for one upload, including extracted text
// and analysis.
func (s *Store) GetUpload(ctx context.Context, id int64) (UploadRecord, error) {
	var rec UploadRecord
	err := s.DB.QueryRowContext(ctx, `
SELECT id, filename, extracted_text, asop_analysis, created_at
FROM uploads
WHERE id=$1
`, id).Scan(&rec.ID, &rec.Filename, &rec.ExtractedText, &rec.ASOPAnalysis, &rec.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return UploadRecord{}, ErrNotFound
	}
	if err != nil {
		return UploadRecord{}, &StoreError{Op: "get upload", Err: err}
	}
	return rec, nil
}
