package web

import (
    "net/http"
    "os"

    "github.com/local/chopdok/internal/apperr"
)

// handleListFolder lists ?path= relative to the root; empty means the root.
func (w *Web) handleListFolder(wr http.ResponseWriter, r *http.Request) {
    entries, err := w.deps.Folders.ListFolder(r.Context(), r.URL.Query().Get("path"))
    if err != nil { apperr.WriteHTTP(wr, err); return }
    writeJSON(wr, http.StatusOK, entries)
}

func (w *Web) handleScanRoot(wr http.ResponseWriter, r *http.Request) {
    items, err := w.deps.Folders.ScanRoot(r.Context())
    if err != nil { apperr.WriteHTTP(wr, err); return }
    writeJSON(wr, http.StatusOK, items)
}

// handleFile streams a file under the root with its detected content type.
func (w *Web) handleFile(wr http.ResponseWriter, r *http.Request) {
    f, err := w.deps.Folders.OpenFile(r.URL.Query().Get("path"))
    if err != nil { apperr.WriteHTTP(wr, err); return }

    ct, err := w.detector.ContentType(f.Path)
    if err != nil { apperr.WriteHTTP(wr, apperr.IO(err, "detect type of %q", f.Key)); return }
    fh, err := os.Open(f.Path)
    if err != nil { apperr.WriteHTTP(wr, apperr.IO(err, "open %q", f.Key)); return }
    defer fh.Close()

    wr.Header().Set("Content-Type", ct)
    http.ServeContent(wr, r, f.Info.Name(), f.Info.ModTime(), fh)
}
