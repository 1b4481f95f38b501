package orchestrator

import (
    "encoding/json"
    "errors"
    "mime"
    "net/http"
    "strconv"
    "strings"

    "github.com/gorilla/mux"

    "github.com/local/chopdok/internal/apperr"
    "github.com/local/chopdok/internal/partition"
    "github.com/local/chopdok/internal/pdfsplit"
)

// RegisterRoutes mounts the split session API under /api/split/sessions.
// maxUpload caps the multipart body; zero means 200 MiB.
func (o *Orchestrator) RegisterRoutes(r *mux.Router, maxUpload int64) {
    if maxUpload <= 0 { maxUpload = 200 << 20 }
    h := &handlers{o: o, maxUpload: maxUpload}
    sr := r.PathPrefix("/api/split/sessions").Subrouter()
    sr.HandleFunc("", h.create).Methods(http.MethodPost)
    sr.HandleFunc("", h.list).Methods(http.MethodGet)
    sr.HandleFunc("/{id}", h.get).Methods(http.MethodGet)
    sr.HandleFunc("/{id}", h.remove).Methods(http.MethodDelete)
    sr.HandleFunc("/{id}/plan", h.plan).Methods(http.MethodPut)
    sr.HandleFunc("/{id}/parts", h.parts).Methods(http.MethodGet)
    sr.HandleFunc("/{id}/parts/{n:[0-9]+}", h.part).Methods(http.MethodGet)
    sr.HandleFunc("/{id}/parts/{n:[0-9]+}/name", h.rename).Methods(http.MethodPut)
    sr.HandleFunc("/{id}/toggle-split/{page:[0-9]+}", h.toggleSplit).Methods(http.MethodPost)
    sr.HandleFunc("/{id}/toggle-delete/{page:[0-9]+}", h.toggleDelete).Methods(http.MethodPost)
    sr.HandleFunc("/{id}/process", h.process).Methods(http.MethodPost)
    sr.HandleFunc("/{id}/archive", h.archive).Methods(http.MethodGet)
    sr.HandleFunc("/{id}/delete-pages", h.deletePages).Methods(http.MethodPost)
    sr.HandleFunc("/{id}/pages/{page:[0-9]+}/thumbnail", h.thumbnail).Methods(http.MethodGet)
    sr.HandleFunc("/{id}/export", h.export).Methods(http.MethodPost)
}

type handlers struct {
    o         *Orchestrator
    maxUpload int64
}

func writeJSON(w http.ResponseWriter, status int, v any) {
    w.Header().Set("Content-Type", "application/json")
    w.WriteHeader(status)
    _ = json.NewEncoder(w).Encode(v)
}

func sendFile(w http.ResponseWriter, name, contentType string, data []byte) {
    w.Header().Set("Content-Type", contentType)
    w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
    w.Header().Set("Content-Length", strconv.Itoa(len(data)))
    _, _ = w.Write(data)
}

func intVar(r *http.Request, name string) int {
    n, _ := strconv.Atoi(mux.Vars(r)[name])
    return n
}

// create accepts a multipart "file" upload or JSON {"path": "..."} naming a
// PDF under the document root.
func (h *handlers) create(w http.ResponseWriter, r *http.Request) {
    if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
        var req struct{ Path string `json:"path"` }
        if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Path == "" {
            apperr.WriteHTTP(w, apperr.Validation("body must be JSON with a path")); return
        }
        info, err := h.o.CreateFromPath(r.Context(), req.Path)
        if err != nil { apperr.WriteHTTP(w, err); return }
        writeJSON(w, http.StatusCreated, info)
        return
    }

    r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
    file, hdr, err := r.FormFile("file")
    if err != nil {
        var tooBig *http.MaxBytesError
        if errors.As(err, &tooBig) {
            apperr.WriteHTTP(w, apperr.Input(err, "upload exceeds %d bytes", h.maxUpload)); return
        }
        apperr.WriteHTTP(w, apperr.Validation("multipart field file is required")); return
    }
    defer file.Close()
    info, err := h.o.Create(r.Context(), hdr.Filename, file)
    if err != nil { apperr.WriteHTTP(w, err); return }
    writeJSON(w, http.StatusCreated, info)
}

func (h *handlers) list(w http.ResponseWriter, r *http.Request) {
    writeJSON(w, http.StatusOK, h.o.List())
}

func (h *handlers) get(w http.ResponseWriter, r *http.Request) {
    info, err := h.o.Get(mux.Vars(r)["id"])
    if err != nil { apperr.WriteHTTP(w, err); return }
    writeJSON(w, http.StatusOK, info)
}

func (h *handlers) parts(w http.ResponseWriter, r *http.Request) {
    info, err := h.o.Get(mux.Vars(r)["id"])
    if err != nil { apperr.WriteHTTP(w, err); return }
    writeJSON(w, http.StatusOK, info.Parts)
}

func (h *handlers) remove(w http.ResponseWriter, r *http.Request) {
    if err := h.o.Delete(mux.Vars(r)["id"]); err != nil { apperr.WriteHTTP(w, err); return }
    w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) plan(w http.ResponseWriter, r *http.Request) {
    var st partition.State
    if err := json.NewDecoder(r.Body).Decode(&st); err != nil {
        apperr.WriteHTTP(w, apperr.Validation("invalid plan: %v", err)); return
    }
    info, err := h.o.SetPlan(mux.Vars(r)["id"], st)
    if err != nil { apperr.WriteHTTP(w, err); return }
    writeJSON(w, http.StatusOK, info)
}

func (h *handlers) rename(w http.ResponseWriter, r *http.Request) {
    var req struct{ Name string `json:"name"` }
    if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
        apperr.WriteHTTP(w, apperr.Validation("invalid body: %v", err)); return
    }
    n := intVar(r, "n")
    if n < 1 { apperr.WriteHTTP(w, apperr.NotFound("part %d not found", n)); return }
    info, err := h.o.Rename(mux.Vars(r)["id"], n-1, req.Name)
    if err != nil { apperr.WriteHTTP(w, err); return }
    writeJSON(w, http.StatusOK, info)
}

func (h *handlers) toggleSplit(w http.ResponseWriter, r *http.Request) {
    info, err := h.o.ToggleSplit(mux.Vars(r)["id"], intVar(r, "page"))
    if err != nil { apperr.WriteHTTP(w, err); return }
    writeJSON(w, http.StatusOK, info)
}

func (h *handlers) toggleDelete(w http.ResponseWriter, r *http.Request) {
    info, err := h.o.ToggleDelete(mux.Vars(r)["id"], intVar(r, "page"))
    if err != nil { apperr.WriteHTTP(w, err); return }
    writeJSON(w, http.StatusOK, info)
}

func (h *handlers) process(w http.ResponseWriter, r *http.Request) {
    res, err := h.o.Process(r.Context(), mux.Vars(r)["id"])
    if err != nil { apperr.WriteHTTP(w, err); return }
    writeJSON(w, http.StatusOK, res)
}

func (h *handlers) part(w http.ResponseWriter, r *http.Request) {
    out, err := h.o.Part(r.Context(), mux.Vars(r)["id"], intVar(r, "n"))
    if err != nil { apperr.WriteHTTP(w, err); return }
    sendFile(w, out.FileName, "application/pdf", out.Data)
}

func (h *handlers) archive(w http.ResponseWriter, r *http.Request) {
    data, err := h.o.Archive(r.Context(), mux.Vars(r)["id"])
    if err != nil { apperr.WriteHTTP(w, err); return }
    sendFile(w, pdfsplit.ArchiveName, "application/zip", data)
}

func (h *handlers) deletePages(w http.ResponseWriter, r *http.Request) {
    out, err := h.o.DeletePages(r.Context(), mux.Vars(r)["id"])
    if err != nil { apperr.WriteHTTP(w, err); return }
    sendFile(w, out.FileName, "application/pdf", out.Data)
}

func (h *handlers) thumbnail(w http.ResponseWriter, r *http.Request) {
    th, err := h.o.Thumbnail(mux.Vars(r)["id"], intVar(r, "page"))
    if err != nil { apperr.WriteHTTP(w, err); return }
    w.Header().Set("Content-Type", "image/jpeg")
    w.Header().Set("Cache-Control", "private, max-age=600")
    _, _ = w.Write(th.JPEG)
}

func (h *handlers) export(w http.ResponseWriter, r *http.Request) {
    exp, err := h.o.Export(r.Context(), mux.Vars(r)["id"])
    if err != nil { apperr.WriteHTTP(w, err); return }
    writeJSON(w, http.StatusCreated, exp)
}
