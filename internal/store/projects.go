package store

import (
    "context"
    "database/sql"
    "errors"
    "strings"

    "github.com/local/chopdok/internal/apperr"
)

// ProjectSchema creates the project, tender and offer tables.
var ProjectSchema = []string{
    `CREATE TABLE IF NOT EXISTS projects (
        prjid TEXT PRIMARY KEY,
        name TEXT,
        status TEXT DEFAULT 'ACTIVE'
    )`,
    `CREATE TABLE IF NOT EXISTS ausschreibungen (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        prjid TEXT,
        version TEXT,
        lot_number TEXT,
        company TEXT,
        path TEXT,
        FOREIGN KEY (prjid) REFERENCES projects (prjid)
    )`,
    `CREATE TABLE IF NOT EXISTS angebote (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        prjid TEXT,
        version TEXT,
        lot_number TEXT,
        company TEXT,
        path TEXT,
        FOREIGN KEY (prjid) REFERENCES projects (prjid)
    )`,
}

// ProjectStatus is the lifecycle state of a project.
type ProjectStatus string

const (
    StatusTender   ProjectStatus = "TENDER"
    StatusActive   ProjectStatus = "ACTIVE"
    StatusArchived ProjectStatus = "ARCHIVED"
    StatusClosed   ProjectStatus = "CLOSED"
)

// ParseProjectStatus accepts a status name in any case.
func ParseProjectStatus(s string) (ProjectStatus, error) {
    switch st := ProjectStatus(strings.ToUpper(strings.TrimSpace(s))); st {
    case StatusTender, StatusActive, StatusArchived, StatusClosed:
        return st, nil
    }
    return "", apperr.Validation("unknown project status %q", s)
}

// Project is a row of the projects table.
type Project struct {
    ID     string        `json:"prjid"`
    Name   string        `json:"name"`
    Status ProjectStatus `json:"status"`
}

// Ausschreibung is a tender filed under a project.
type Ausschreibung struct {
    ID        int64   `json:"id"`
    ProjectID string  `json:"prjid"`
    Version   *string `json:"version"`
    LotNumber *string `json:"lot_number"`
    Company   *string `json:"company"`
    Path      string  `json:"path"`
}

// Angebot is an offer filed under a project.
type Angebot struct {
    ID        int64   `json:"id"`
    ProjectID string  `json:"prjid"`
    Version   *string `json:"version"`
    LotNumber *string `json:"lot_number"`
    Company   *string `json:"company"`
    Path      string  `json:"path"`
}

// ProjectStore persists projects and their tenders and offers.
type ProjectStore struct {
    db *DB
}

func NewProjectStore(db *DB) *ProjectStore { return &ProjectStore{db: db} }

// OpenProjectStore opens path and applies ProjectSchema.
func OpenProjectStore(ctx context.Context, path string) (*ProjectStore, error) {
    db, err := Open(ctx, path, ProjectSchema...)
    if err != nil { return nil, err }
    return NewProjectStore(db), nil
}

func (s *ProjectStore) DB() *DB     { return s.db }
func (s *ProjectStore) Close() error { return s.db.Close() }

// ListProjects returns projects with the given status; empty means ACTIVE.
func (s *ProjectStore) ListProjects(ctx context.Context, status ProjectStatus) ([]Project, error) {
    if status == "" { status = StatusActive }
    if _, err := ParseProjectStatus(string(status)); err != nil { return nil, err }
    rows, err := s.db.sql.QueryContext(ctx, `SELECT prjid, name, status FROM projects WHERE status = ? ORDER BY prjid`, string(status))
    if err != nil { return nil, queryErr(err, "list projects") }
    defer rows.Close()

    out := []Project{}
    for rows.Next() {
        p, err := scanProject(rows)
        if err != nil { return nil, err }
        out = append(out, *p)
    }
    if err := rows.Err(); err != nil { return nil, queryErr(err, "list projects") }
    return out, nil
}

type rowScanner interface {
    Scan(dest ...any) error
}

func scanProject(r rowScanner) (*Project, error) {
    var (
        p      Project
        name   sql.NullString
        status sql.NullString
    )
    if err := r.Scan(&p.ID, &name, &status); err != nil { return nil, err }
    p.Name = name.String
    p.Status = ProjectStatus(status.String)
    return &p, nil
}

// GetProject returns the project with id, or nil when it does not exist.
func (s *ProjectStore) GetProject(ctx context.Context, id string) (*Project, error) {
    row := s.db.sql.QueryRowContext(ctx, `SELECT prjid, name, status FROM projects WHERE prjid = ?`, id)
    p, err := scanProject(row)
    if errors.Is(err, sql.ErrNoRows) { return nil, nil }
    if err != nil { return nil, queryErr(err, "get project") }
    return p, nil
}

// UpdateProjectStatus changes a project's status.
func (s *ProjectStore) UpdateProjectStatus(ctx context.Context, id string, status ProjectStatus) error {
    if _, err := ParseProjectStatus(string(status)); err != nil { return err }
    res, err := s.db.sql.ExecContext(ctx, `UPDATE projects SET status = ? WHERE prjid = ?`, string(status), id)
    if err != nil { return queryErr(err, "update project status") }
    if n, err := res.RowsAffected(); err == nil && n == 0 {
        return apperr.NotFound("project %q not found", id)
    }
    return nil
}

// ProjectStatusCounts returns the number of projects per status.
func (s *ProjectStore) ProjectStatusCounts(ctx context.Context) (map[ProjectStatus]int, error) {
    rows, err := s.db.sql.QueryContext(ctx, `SELECT status, COUNT(*) FROM projects GROUP BY status`)
    if err != nil { return nil, queryErr(err, "count project statuses") }
    defer rows.Close()

    out := map[ProjectStatus]int{}
    for rows.Next() {
        var (
            status sql.NullString
            n      int
        )
        if err := rows.Scan(&status, &n); err != nil { return nil, queryErr(err, "count project statuses") }
        out[ProjectStatus(status.String)] = n
    }
    if err := rows.Err(); err != nil { return nil, queryErr(err, "count project statuses") }
    return out, nil
}

// UpsertProject inserts p or updates the name and status of an existing row.
func (s *ProjectStore) UpsertProject(ctx context.Context, p Project) error {
    if strings.TrimSpace(p.ID) == "" { return apperr.Validation("project id is empty") }
    if p.Status == "" { p.Status = StatusActive }
    if _, err := ParseProjectStatus(string(p.Status)); err != nil { return err }
    _, err := s.db.sql.ExecContext(ctx, `
        INSERT INTO projects (prjid, name, status) VALUES (?, ?, ?)
        ON CONFLICT(prjid) DO UPDATE SET name = excluded.name, status = excluded.status`,
        p.ID, p.Name, string(p.Status))
    if err != nil { return queryErr(err, "upsert project") }
    return nil
}

// ListAusschreibungen returns the tenders of projectID, or all when empty.
func (s *ProjectStore) ListAusschreibungen(ctx context.Context, projectID string) ([]Ausschreibung, error) {
    rows, err := s.listFilings(ctx, "ausschreibungen", projectID)
    if err != nil { return nil, err }
    out := make([]Ausschreibung, 0, len(rows))
    for _, f := range rows { out = append(out, Ausschreibung(f)) }
    return out, nil
}

// ListAngebote returns the offers of projectID, or all when empty.
func (s *ProjectStore) ListAngebote(ctx context.Context, projectID string) ([]Angebot, error) {
    rows, err := s.listFilings(ctx, "angebote", projectID)
    if err != nil { return nil, err }
    out := make([]Angebot, 0, len(rows))
    for _, f := range rows { out = append(out, Angebot(f)) }
    return out, nil
}

// UpsertAusschreibung inserts a tender or updates the path of the row with
// the same project, version, lot and company. It returns the row id.
func (s *ProjectStore) UpsertAusschreibung(ctx context.Context, a Ausschreibung) (int64, error) {
    return s.upsertFiling(ctx, "ausschreibungen", filing(a))
}

// UpsertAngebot is UpsertAusschreibung for offers.
func (s *ProjectStore) UpsertAngebot(ctx context.Context, a Angebot) (int64, error) {
    return s.upsertFiling(ctx, "angebote", filing(a))
}

// filing is the shared shape of tenders and offers.
type filing struct {
    ID        int64
    ProjectID string
    Version   *string
    LotNumber *string
    Company   *string
    Path      string
}

// table is always one of the two literal names above.
func (s *ProjectStore) listFilings(ctx context.Context, table, projectID string) ([]filing, error) {
    q := `SELECT id, prjid, version, lot_number, company, path FROM ` + table
    var args []any
    if projectID != "" {
        q += ` WHERE prjid = ?`
        args = append(args, projectID)
    }
    q += ` ORDER BY id`
    rows, err := s.db.sql.QueryContext(ctx, q, args...)
    if err != nil { return nil, queryErr(err, "list "+table) }
    defer rows.Close()

    var out []filing
    for rows.Next() {
        var (
            f                         filing
            prj, ver, lot, comp, path sql.NullString
        )
        if err := rows.Scan(&f.ID, &prj, &ver, &lot, &comp, &path); err != nil {
            return nil, queryErr(err, "list "+table)
        }
        f.ProjectID, f.Path = prj.String, path.String
        f.Version, f.LotNumber, f.Company = nullable(ver), nullable(lot), nullable(comp)
        out = append(out, f)
    }
    if err := rows.Err(); err != nil { return nil, queryErr(err, "list "+table) }
    return out, nil
}

func (s *ProjectStore) upsertFiling(ctx context.Context, table string, f filing) (int64, error) {
    if strings.TrimSpace(f.ProjectID) == "" { return 0, apperr.Validation("%s entry has no project id", table) }

    var id int64
    err := s.db.sql.QueryRowContext(ctx,
        `SELECT id FROM `+table+` WHERE prjid = ? AND version IS ? AND lot_number IS ? AND company IS ?`,
        f.ProjectID, f.Version, f.LotNumber, f.Company).Scan(&id)
    switch {
    case err == nil:
        if _, err := s.db.sql.ExecContext(ctx, `UPDATE `+table+` SET path = ? WHERE id = ?`, f.Path, id); err != nil {
            return 0, queryErr(err, "update "+table)
        }
        return id, nil
    case !errors.Is(err, sql.ErrNoRows):
        return 0, queryErr(err, "find "+table)
    }

    res, err := s.db.sql.ExecContext(ctx,
        `INSERT INTO `+table+` (prjid, version, lot_number, company, path) VALUES (?, ?, ?, ?, ?)`,
        f.ProjectID, f.Version, f.LotNumber, f.Company, f.Path)
    if err != nil { return 0, queryErr(err, "insert "+table) }
    return res.LastInsertId()
}

func nullable(ns sql.NullString) *string {
    if !ns.Valid { return nil }
    s := ns.String
    return &s
}
