package store

import (
    "context"
    "database/sql"
    "errors"
    "strings"
    "time"

    "github.com/local/chopdok/internal/apperr"
)

// DocumentSchema creates the tables behind folder metadata and summaries.
var DocumentSchema = []string{
    `CREATE TABLE IF NOT EXISTS directories (
        path TEXT PRIMARY KEY,
        first_seen DATETIME DEFAULT CURRENT_TIMESTAMP
    )`,
    `CREATE TABLE IF NOT EXISTS summaries (
        file_path TEXT PRIMARY KEY,
        summary TEXT,
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP
    )`,
    `CREATE TABLE IF NOT EXISTS proposed_names (
        file_path TEXT PRIMARY KEY,
        proposed_name TEXT,
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP
    )`,
}

// Directory is a row of the directories table.
type Directory struct {
    Path      string    `json:"path"`
    FirstSeen time.Time `json:"firstSeen"`
}

// Summary is a row of the summaries table.
type Summary struct {
    FilePath  string    `json:"filePath"`
    Summary   string    `json:"summary"`
    CreatedAt time.Time `json:"createdAt"`
}

// ProposedName is a row of the proposed_names table.
type ProposedName struct {
    FilePath     string    `json:"filePath"`
    ProposedName string    `json:"proposedName"`
    CreatedAt    time.Time `json:"createdAt"`
}

// DocumentStore persists directory first-seen times, summaries and proposed names.
type DocumentStore struct {
    db *DB
}

func NewDocumentStore(db *DB) *DocumentStore { return &DocumentStore{db: db} }

// OpenDocumentStore opens path and applies DocumentSchema.
func OpenDocumentStore(ctx context.Context, path string) (*DocumentStore, error) {
    db, err := Open(ctx, path, DocumentSchema...)
    if err != nil { return nil, err }
    return NewDocumentStore(db), nil
}

func (s *DocumentStore) DB() *DB     { return s.db }
func (s *DocumentStore) Close() error { return s.db.Close() }

// RecordDirectory remembers path; the first call fixes its first-seen time.
func (s *DocumentStore) RecordDirectory(ctx context.Context, path string) error {
    if strings.TrimSpace(path) == "" { return apperr.Validation("directory path is empty") }
    if _, err := s.db.sql.ExecContext(ctx, `INSERT OR IGNORE INTO directories (path) VALUES (?)`, path); err != nil {
        return queryErr(err, "record directory")
    }
    return nil
}

// GetFirstSeen returns when path was first recorded, or nil if never.
func (s *DocumentStore) GetFirstSeen(ctx context.Context, path string) (*time.Time, error) {
    var raw string
    err := s.db.sql.QueryRowContext(ctx,
        `SELECT strftime('%Y-%m-%dT%H:%M:%SZ', first_seen) FROM directories WHERE path = ?`, path).Scan(&raw)
    if errors.Is(err, sql.ErrNoRows) { return nil, nil }
    if err != nil { return nil, queryErr(err, "get first seen") }
    t, err := parseTime(raw)
    if err != nil { return nil, queryErr(err, "get first seen") }
    return &t, nil
}

// GetSummary returns the stored summary text for filePath, or nil.
func (s *DocumentStore) GetSummary(ctx context.Context, filePath string) (*string, error) {
    rec, err := s.GetSummaryRecord(ctx, filePath)
    if err != nil || rec == nil { return nil, err }
    return &rec.Summary, nil
}

// GetSummaryRecord returns the full summaries row for filePath, or nil.
func (s *DocumentStore) GetSummaryRecord(ctx context.Context, filePath string) (*Summary, error) {
    var (
        text sql.NullString
        raw  string
    )
    err := s.db.sql.QueryRowContext(ctx,
        `SELECT summary, strftime('%Y-%m-%dT%H:%M:%SZ', created_at) FROM summaries WHERE file_path = ?`, filePath).Scan(&text, &raw)
    if errors.Is(err, sql.ErrNoRows) { return nil, nil }
    if err != nil { return nil, queryErr(err, "get summary") }
    created, err := parseTime(raw)
    if err != nil { return nil, queryErr(err, "get summary") }
    return &Summary{FilePath: filePath, Summary: text.String, CreatedAt: created}, nil
}

// UpsertSummary stores summary for filePath, replacing any previous one.
func (s *DocumentStore) UpsertSummary(ctx context.Context, filePath, summary string) error {
    if strings.TrimSpace(filePath) == "" { return apperr.Validation("summary file path is empty") }
    if _, err := s.db.sql.ExecContext(ctx,
        `INSERT OR REPLACE INTO summaries (file_path, summary) VALUES (?, ?)`, filePath, summary); err != nil {
        return queryErr(err, "upsert summary")
    }
    return nil
}

// GetProposedName returns the proposed name for filePath, or nil.
func (s *DocumentStore) GetProposedName(ctx context.Context, filePath string) (*string, error) {
    var name sql.NullString
    err := s.db.sql.QueryRowContext(ctx,
        `SELECT proposed_name FROM proposed_names WHERE file_path = ?`, filePath).Scan(&name)
    if errors.Is(err, sql.ErrNoRows) { return nil, nil }
    if err != nil { return nil, queryErr(err, "get proposed name") }
    return &name.String, nil
}

func (s *DocumentStore) UpsertProposedName(ctx context.Context, filePath, name string) error {
    if strings.TrimSpace(filePath) == "" { return apperr.Validation("proposed name file path is empty") }
    if strings.TrimSpace(name) == "" { return apperr.Validation("proposed name is empty") }
    if _, err := s.db.sql.ExecContext(ctx,
        `INSERT OR REPLACE INTO proposed_names (file_path, proposed_name) VALUES (?, ?)`, filePath, name); err != nil {
        return queryErr(err, "upsert proposed name")
    }
    return nil
}
