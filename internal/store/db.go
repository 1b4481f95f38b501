package store

import (
    "context"
    "database/sql"
    "fmt"
    "os"
    "path/filepath"
    "strings"
    "time"

    "github.com/rs/zerolog/log"
    _ "modernc.org/sqlite"

    "github.com/local/chopdok/internal/apperr"
)

// DB is an open SQLite database. It is created once at startup and passed
// to every store that needs it.
type DB struct {
    sql  *sql.DB
    path string
}

// Open opens (creating if needed) the SQLite file at path, verifies the
// connection and applies the given schema statements. An unusable database
// is reported as a backend-unavailable error.
func Open(ctx context.Context, path string, schema ...string) (*DB, error) {
    if strings.TrimSpace(path) == "" { return nil, apperr.Validation("database path is empty") }
    dsn := path
    if path != ":memory:" {
        if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
            return nil, apperr.BackendUnavailable(err, "create database dir for %s", path)
        }
        dsn = "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
    }
    sqldb, err := sql.Open("sqlite", dsn)
    if err != nil { return nil, apperr.BackendUnavailable(err, "open database %s", path) }
    if path == ":memory:" {
        // every new connection would get its own empty database
        sqldb.SetMaxOpenConns(1)
    }

    pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
    defer cancel()
    if err := sqldb.PingContext(pingCtx); err != nil {
        _ = sqldb.Close()
        return nil, apperr.BackendUnavailable(err, "connect database %s", path)
    }

    for _, stmt := range schema {
        if _, err := sqldb.ExecContext(ctx, stmt); err != nil {
            _ = sqldb.Close()
            return nil, apperr.BackendUnavailable(err, "migrate database %s", path)
        }
    }
    log.Info().Str("path", path).Int("statements", len(schema)).Msg("database ready")
    return &DB{sql: sqldb, path: path}, nil
}

func (db *DB) Close() error { return db.sql.Close() }

func (db *DB) Path() string { return db.path }

// Ping checks the database is still reachable.
func (db *DB) Ping(ctx context.Context) error {
    if err := db.sql.PingContext(ctx); err != nil {
        return apperr.BackendUnavailable(err, "ping database %s", db.path)
    }
    return nil
}

// queryErr wraps driver failures so callers see a structured error.
func queryErr(err error, op string) error {
    return apperr.BackendUnavailable(err, "%s", op)
}

const sqliteTime = time.RFC3339

func parseTime(s string) (time.Time, error) {
    t, err := time.Parse(sqliteTime, s)
    if err != nil { return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err) }
    return t, nil
}
