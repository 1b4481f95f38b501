package web

import (
    "errors"
    "io"
    "net/http"
    "strings"

    "github.com/local/chopdok/internal/apperr"
    "github.com/local/chopdok/internal/summarizer"
)

// handleSummary returns the stored summary for a path given as ?path= on
// GET or as {"path": ...} on POST. A missing summary is null, not an error.
func (w *Web) handleSummary(wr http.ResponseWriter, r *http.Request) {
    path := r.URL.Query().Get("path")
    if r.Method == http.MethodPost {
        var body struct {
            Path string `json:"path"`
        }
        if err := decodeJSON(r, &body); err != nil { apperr.WriteHTTP(wr, err); return }
        path = body.Path
    }
    if strings.TrimSpace(path) == "" {
        apperr.WriteHTTP(wr, apperr.Validation("path is required"))
        return
    }
    summary, err := w.deps.Summaries.GetSummary(r.Context(), path)
    if err != nil { apperr.WriteHTTP(wr, err); return }
    writeJSON(wr, http.StatusOK, map[string]any{"success": true, "summary": summary})
}

// handleSummarize takes a multipart upload with file, modelProvider,
// modelOption and promptTemplate, plus an optional store path.
func (w *Web) handleSummarize(wr http.ResponseWriter, r *http.Request) {
    if w.deps.Summarizer == nil {
        apperr.WriteHTTP(wr, apperr.BackendUnavailable(nil, "summarization is not configured"))
        return
    }
    r.Body = http.MaxBytesReader(wr, r.Body, w.deps.MaxUploadBytes)
    file, hdr, err := r.FormFile("file")
    if err != nil {
        var tooBig *http.MaxBytesError
        if errors.As(err, &tooBig) {
            apperr.WriteHTTP(wr, apperr.Validation("upload exceeds %d bytes", tooBig.Limit))
            return
        }
        apperr.WriteHTTP(wr, apperr.Validation("missing file"))
        return
    }
    defer file.Close()
    content, err := io.ReadAll(file)
    if err != nil { apperr.WriteHTTP(wr, apperr.Input(err, "read upload %q", hdr.Filename)); return }

    res, err := w.deps.Summarizer.Summarize(r.Context(), summarizer.Request{
        FileName:       hdr.Filename,
        Path:           r.FormValue("path"),
        Content:        content,
        Provider:       r.FormValue("modelProvider"),
        Model:          r.FormValue("modelOption"),
        PromptTemplate: r.FormValue("promptTemplate"),
    })
    if err != nil {
        w.log.Warn().Err(err).Str("file", hdr.Filename).Msg("summarize failed")
        apperr.WriteHTTP(wr, err)
        return
    }
    writeJSON(wr, http.StatusOK, map[string]any{"success": true, "summary": res.Summary, "path": res.Path, "backend": res.Backend})
}

func (w *Web) handleGetProposedName(wr http.ResponseWriter, r *http.Request) {
    path := r.URL.Query().Get("path")
    if strings.TrimSpace(path) == "" {
        apperr.WriteHTTP(wr, apperr.Validation("path is required"))
        return
    }
    name, err := w.deps.Names.GetProposedName(r.Context(), path)
    if err != nil { apperr.WriteHTTP(wr, err); return }
    writeJSON(wr, http.StatusOK, map[string]any{"success": true, "proposedName": name})
}

func (w *Web) handleSetProposedName(wr http.ResponseWriter, r *http.Request) {
    var body struct {
        Path         string `json:"path"`
        ProposedName string `json:"proposedName"`
    }
    if err := decodeJSON(r, &body); err != nil { apperr.WriteHTTP(wr, err); return }
    if strings.TrimSpace(body.Path) == "" || strings.TrimSpace(body.ProposedName) == "" {
        apperr.WriteHTTP(wr, apperr.Validation("path and proposedName are required"))
        return
    }
    if err := w.deps.Names.UpsertProposedName(r.Context(), body.Path, body.ProposedName); err != nil {
        apperr.WriteHTTP(wr, err)
        return
    }
    writeJSON(wr, http.StatusOK, map[string]any{"success": true, "proposedName": body.ProposedName})
}
