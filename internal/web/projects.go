package web

import (
    "net/http"

    "github.com/gorilla/mux"

    "github.com/local/chopdok/internal/apperr"
    "github.com/local/chopdok/internal/store"
)

func (w *Web) handleProjects(wr http.ResponseWriter, r *http.Request) {
    var status store.ProjectStatus
    if q := r.URL.Query().Get("status"); q != "" {
        st, err := store.ParseProjectStatus(q)
        if err != nil { apperr.WriteHTTP(wr, err); return }
        status = st
    }
    projects, err := w.deps.Projects.ListProjects(r.Context(), status)
    if err != nil { apperr.WriteHTTP(wr, err); return }
    writeJSON(wr, http.StatusOK, projects)
}

func (w *Web) handleProjectStatuses(wr http.ResponseWriter, r *http.Request) {
    counts, err := w.deps.Projects.ProjectStatusCounts(r.Context())
    if err != nil { apperr.WriteHTTP(wr, err); return }
    writeJSON(wr, http.StatusOK, counts)
}

func (w *Web) handleProject(wr http.ResponseWriter, r *http.Request) {
    id := mux.Vars(r)["id"]
    p, err := w.deps.Projects.GetProject(r.Context(), id)
    if err != nil { apperr.WriteHTTP(wr, err); return }
    if p == nil { apperr.WriteHTTP(wr, apperr.NotFound("project %q not found", id)); return }
    writeJSON(wr, http.StatusOK, p)
}

func (w *Web) handleProjectStatus(wr http.ResponseWriter, r *http.Request) {
    id := mux.Vars(r)["id"]
    var body struct {
        Status string `json:"status"`
    }
    if err := decodeJSON(r, &body); err != nil { apperr.WriteHTTP(wr, err); return }
    st, err := store.ParseProjectStatus(body.Status)
    if err != nil { apperr.WriteHTTP(wr, err); return }
    if err := w.deps.Projects.UpdateProjectStatus(r.Context(), id, st); err != nil {
        apperr.WriteHTTP(wr, err)
        return
    }
    w.log.Info().Str("prjid", id).Str("status", string(st)).Msg("project status updated")
    p, err := w.deps.Projects.GetProject(r.Context(), id)
    if err != nil { apperr.WriteHTTP(wr, err); return }
    writeJSON(wr, http.StatusOK, p)
}

func (w *Web) handleAusschreibungen(wr http.ResponseWriter, r *http.Request) {
    rows, err := w.deps.Projects.ListAusschreibungen(r.Context(), r.URL.Query().Get("projectId"))
    if err != nil { apperr.WriteHTTP(wr, err); return }
    writeJSON(wr, http.StatusOK, rows)
}

func (w *Web) handleAngebote(wr http.ResponseWriter, r *http.Request) {
    rows, err := w.deps.Projects.ListAngebote(r.Context(), r.URL.Query().Get("projectId"))
    if err != nil { apperr.WriteHTTP(wr, err); return }
    writeJSON(wr, http.StatusOK, rows)
}

// handleImportProjects parses the top-level directory names under the root
// into projects, tenders and offers.
func (w *Web) handleImportProjects(wr http.ResponseWriter, r *http.Request) {
    n, err := w.deps.Folders.ImportProjects(r.Context(), w.deps.Projects)
    if err != nil { apperr.WriteHTTP(wr, err); return }
    writeJSON(wr, http.StatusOK, map[string]any{"success": true, "imported": n})
}
