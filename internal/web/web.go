// Package web serves the document REST API: projects, folder listings,
// files, summaries and proposed names.
package web

import (
    "context"
    "encoding/json"
    "net/http"
    "strings"
    "time"

    "github.com/gorilla/mux"
    "github.com/rs/zerolog"
    "golang.org/x/crypto/bcrypt"

    "github.com/local/chopdok/internal/apperr"
    "github.com/local/chopdok/internal/filetype"
    "github.com/local/chopdok/internal/folders"
    "github.com/local/chopdok/internal/logger"
    "github.com/local/chopdok/internal/metrics"
    "github.com/local/chopdok/internal/statuscheck"
    "github.com/local/chopdok/internal/store"
    "github.com/local/chopdok/internal/summarizer"
)

// Summarizer produces and stores a summary for an uploaded document.
type Summarizer interface {
    Summarize(ctx context.Context, req summarizer.Request) (summarizer.Result, error)
}

// SummaryReader reads stored summaries, usually through the redis cache.
type SummaryReader interface {
    GetSummary(ctx context.Context, filePath string) (*string, error)
}

// NameStore reads and writes proposed file names.
type NameStore interface {
    GetProposedName(ctx context.Context, filePath string) (*string, error)
    UpsertProposedName(ctx context.Context, filePath, name string) error
}

// Dependencies wires the handlers to their backends. Health and Summarizer
// may be nil.
type Dependencies struct {
    Projects   *store.ProjectStore
    Names      NameStore
    Summaries  SummaryReader
    Folders    *folders.Lister
    Summarizer Summarizer
    Health     *statuscheck.Checker
    // Basic auth on /api; disabled when PasswordHash is empty.
    AuthUser         string
    AuthPasswordHash string
    MaxUploadBytes   int64
}

// Web holds the handlers of the document API.
type Web struct {
    deps     Dependencies
    detector *filetype.Detector
    log      zerolog.Logger
}

func New(deps Dependencies) *Web {
    if deps.MaxUploadBytes <= 0 { deps.MaxUploadBytes = 200 << 20 }
    return &Web{deps: deps, detector: filetype.New(), log: logger.Component("web")}
}

// Router builds the complete router. extra registers further route groups,
// e.g. the split session API, behind the same middleware.
func (w *Web) Router(extra ...func(*mux.Router)) *mux.Router {
    r := mux.NewRouter()
    r.Use(w.observe, w.requireAuth)
    w.RegisterRoutes(r)
    for _, reg := range extra {
        reg(r)
    }
    r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
    r.HandleFunc("/health", w.handleHealth).Methods(http.MethodGet)
    return r
}

func (w *Web) RegisterRoutes(r *mux.Router) {
    api := r.PathPrefix("/api").Subrouter()
    api.HandleFunc("/projects", w.handleProjects).Methods(http.MethodGet)
    api.HandleFunc("/projects/statuses", w.handleProjectStatuses).Methods(http.MethodGet)
    api.HandleFunc("/projects/{id}", w.handleProject).Methods(http.MethodGet)
    api.HandleFunc("/projects/{id}/status", w.handleProjectStatus).Methods(http.MethodPut)
    api.HandleFunc("/ausschreibungen", w.handleAusschreibungen).Methods(http.MethodGet)
    api.HandleFunc("/angebote", w.handleAngebote).Methods(http.MethodGet)
    api.HandleFunc("/import-projects", w.handleImportProjects).Methods(http.MethodPost)

    api.HandleFunc("/list-folder", w.handleListFolder).Methods(http.MethodGet)
    api.HandleFunc("/scan-root", w.handleScanRoot).Methods(http.MethodGet)
    api.HandleFunc("/file", w.handleFile).Methods(http.MethodGet)

    api.HandleFunc("/summary", w.handleSummary).Methods(http.MethodGet, http.MethodPost)
    api.HandleFunc("/summarize", w.handleSummarize).Methods(http.MethodPost)
    api.HandleFunc("/proposed-name", w.handleGetProposedName).Methods(http.MethodGet)
    api.HandleFunc("/proposed-name", w.handleSetProposedName).Methods(http.MethodPost)
}

// statusRecorder captures the response code for metrics.
type statusRecorder struct {
    http.ResponseWriter
    code int
}

func (s *statusRecorder) WriteHeader(code int) {
    s.code = code
    s.ResponseWriter.WriteHeader(code)
}

func (w *Web) observe(next http.Handler) http.Handler {
    return http.HandlerFunc(func(wr http.ResponseWriter, r *http.Request) {
        start := time.Now()
        rec := &statusRecorder{ResponseWriter: wr, code: http.StatusOK}
        next.ServeHTTP(rec, r)

        route := "unmatched"
        if cur := mux.CurrentRoute(r); cur != nil {
            if tpl, err := cur.GetPathTemplate(); err == nil { route = tpl }
        }
        dur := time.Since(start)
        metrics.ObserveHTTP(route, r.Method, rec.code, dur)
        ev := w.log.Debug()
        if rec.code >= 500 { ev = w.log.Warn() }
        ev.Str("method", r.Method).Str("route", route).Int("status", rec.code).Dur("took", dur).Msg("request")
    })
}

// requireAuth checks HTTP basic credentials against the bcrypt hash for
// everything under /api.
func (w *Web) requireAuth(next http.Handler) http.Handler {
    return http.HandlerFunc(func(wr http.ResponseWriter, r *http.Request) {
        if w.deps.AuthPasswordHash == "" || !strings.HasPrefix(r.URL.Path, "/api/") {
            next.ServeHTTP(wr, r)
            return
        }
        user, pass, ok := r.BasicAuth()
        if ok && user == w.deps.AuthUser &&
            bcrypt.CompareHashAndPassword([]byte(w.deps.AuthPasswordHash), []byte(pass)) == nil {
            next.ServeHTTP(wr, r)
            return
        }
        wr.Header().Set("WWW-Authenticate", `Basic realm="chopdok"`)
        writeJSON(wr, http.StatusUnauthorized, map[string]string{"error": "unauthorized", "message": "invalid credentials"})
    })
}

func (w *Web) handleHealth(wr http.ResponseWriter, r *http.Request) {
    if w.deps.Health == nil {
        writeJSON(wr, http.StatusOK, map[string]any{"ok": true})
        return
    }
    sum := w.deps.Health.Summary(r.Context())
    code := http.StatusOK
    if !sum.Healthy() { code = http.StatusServiceUnavailable }
    writeJSON(wr, code, map[string]any{"ok": sum.Healthy(), "checks": sum})
}

func writeJSON(wr http.ResponseWriter, status int, v any) {
    wr.Header().Set("Content-Type", "application/json")
    wr.WriteHeader(status)
    _ = json.NewEncoder(wr).Encode(v)
}

// decodeJSON reads a JSON body into v, reporting malformed input as a
// validation error.
func decodeJSON(r *http.Request, v any) error {
    if err := json.NewDecoder(r.Body).Decode(v); err != nil {
        return apperr.Validation("request body must be valid JSON")
    }
    return nil
}
