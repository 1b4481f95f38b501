// Package orchestrator keeps split sessions: one uploaded PDF, the user's
// plan for it and the documents produced from that plan.
package orchestrator

import (
    "context"
    "io"
    "sort"
    "sync"
    "time"

    "github.com/google/uuid"
    "github.com/rs/zerolog"

    "github.com/local/chopdok/internal/apperr"
    "github.com/local/chopdok/internal/imagerender"
    "github.com/local/chopdok/internal/logger"
    "github.com/local/chopdok/internal/metrics"
    "github.com/local/chopdok/internal/partition"
    "github.com/local/chopdok/internal/pdfsplit"
    "github.com/local/chopdok/internal/storage"
)

// Exporter uploads finished archives. storage.S3Exporter implements it.
type Exporter interface {
    Upload(ctx context.Context, fileName string, data []byte, contentType string, meta map[string]string) (storage.Export, error)
}

// PathResolver maps a root relative path to a file on disk.
type PathResolver interface {
    Resolve(rel string) (full string, key string, err error)
}

type Dependencies struct {
    Exporter   Exporter     // optional
    Files      PathResolver // optional, enables sessions from files under the root
    Thumbnails imagerender.Options
    TTL        time.Duration
    Now        func() time.Time
    // Workers bounds concurrent part extraction; zero means one per CPU.
    Workers    int
}

type Orchestrator struct {
    deps Dependencies
    log  zerolog.Logger

    materialize func(ctx context.Context, src *pdfsplit.Source, parts []partition.Part) ([]pdfsplit.Output, error)

    mu       sync.RWMutex
    sessions map[string]*session
}

func New(deps Dependencies) *Orchestrator {
    if deps.TTL <= 0 { deps.TTL = 30 * time.Minute }
    if deps.Now == nil { deps.Now = time.Now }
    o := &Orchestrator{deps: deps, log: logger.Component("split"), sessions: map[string]*session{}}
    o.materialize = func(ctx context.Context, src *pdfsplit.Source, parts []partition.Part) ([]pdfsplit.Output, error) {
        return src.MaterializeParts(ctx, parts, deps.Workers)
    }
    return o
}

// session is guarded by its own mutex. generation changes whenever the plan
// changes or outputs are released, so a Process that started earlier can tell
// its results are stale.
type session struct {
    mu         sync.Mutex
    id         string
    src        *pdfsplit.Source
    state      partition.State
    generation uint64
    outputs    []pdfsplit.Output
    created    time.Time
    touched    time.Time
}

// Info describes a session to clients.
type Info struct {
    ID        string           `json:"id"`
    FileName  string           `json:"fileName"`
    PageCount int              `json:"pageCount"`
    Size      int              `json:"size"`
    Plan      partition.State  `json:"plan"`
    Parts     []partition.Part `json:"parts"`
    Processed bool             `json:"processed"`
    Created   time.Time        `json:"created"`
}

// PartResult is one materialized part as returned by Process.
type PartResult struct {
    Index    int    `json:"index"`
    Number   int    `json:"number"`
    Name     string `json:"name"`
    FileName string `json:"fileName"`
    Pages    []int  `json:"pages"`
    Empty    bool   `json:"empty"`
    Size     int    `json:"size"`
}

// Create snapshots the PDF read from r and opens a session on it.
func (o *Orchestrator) Create(ctx context.Context, name string, r io.Reader) (Info, error) {
    src, err := pdfsplit.Open(r, name)
    if err != nil { return Info{}, err }
    return o.add(src), nil
}

// CreateFromPath opens a session on a PDF under the document root.
func (o *Orchestrator) CreateFromPath(ctx context.Context, rel string) (Info, error) {
    if o.deps.Files == nil { return Info{}, apperr.Validation("no document root configured") }
    full, _, err := o.deps.Files.Resolve(rel)
    if err != nil { return Info{}, err }
    src, err := pdfsplit.OpenFile(full)
    if err != nil { return Info{}, err }
    return o.add(src), nil
}

func (o *Orchestrator) add(src *pdfsplit.Source) Info {
    now := o.deps.Now()
    s := &session{
        id:      uuid.NewString(),
        src:     src,
        state:   partition.State{PageCount: src.PageCount()},
        created: now,
        touched: now,
    }
    o.mu.Lock()
    o.sessions[s.id] = s
    n := len(o.sessions)
    o.mu.Unlock()
    metrics.SetActiveSessions(n)
    o.log.Info().Str("session", s.id).Str("file", src.Name()).Int("pages", src.PageCount()).Int("size", src.Size()).Msg("split session created")

    s.mu.Lock()
    defer s.mu.Unlock()
    return s.info()
}

func (o *Orchestrator) get(id string) (*session, error) {
    o.mu.RLock()
    s, ok := o.sessions[id]
    o.mu.RUnlock()
    if !ok { return nil, apperr.NotFound("split session %s not found", id) }
    return s, nil
}

// with runs fn under the session lock and refreshes its idle timer.
func (o *Orchestrator) with(id string, fn func(s *session) error) error {
    s, err := o.get(id)
    if err != nil { return err }
    s.mu.Lock()
    defer s.mu.Unlock()
    s.touched = o.deps.Now()
    return fn(s)
}

func (s *session) info() Info {
    return Info{
        ID: s.id, FileName: s.src.Name(), PageCount: s.src.PageCount(), Size: s.src.Size(),
        Plan: s.state, Parts: partition.ComputeParts(s.state), Processed: s.outputs != nil, Created: s.created,
    }
}

// replan swaps in a new plan and drops outputs computed from the old one.
func (s *session) replan(st partition.State) {
    st.PageCount = s.src.PageCount()
    s.state = st.Normalize()
    s.outputs = nil
    s.generation++
}

// Get returns the session with its current parts preview.
func (o *Orchestrator) Get(id string) (Info, error) {
    var info Info
    err := o.with(id, func(s *session) error { info = s.info(); return nil })
    return info, err
}

// SetPlan replaces the session's split points, deletions and names.
// Out of range pages are dropped.
func (o *Orchestrator) SetPlan(id string, st partition.State) (Info, error) {
    var info Info
    err := o.with(id, func(s *session) error {
        s.replan(st)
        info = s.info()
        return nil
    })
    return info, err
}

func (o *Orchestrator) ToggleSplit(id string, page int) (Info, error) {
    return o.update(id, func(st partition.State) partition.State { return st.ToggleSplit(page) })
}

func (o *Orchestrator) ToggleDelete(id string, page int) (Info, error) {
    return o.update(id, func(st partition.State) partition.State { return st.ToggleDelete(page) })
}

// Rename sets the display name of the part at 0-based index. Only parts of
// the current plan can be renamed.
func (o *Orchestrator) Rename(id string, index int, name string) (Info, error) {
    var info Info
    err := o.with(id, func(s *session) error {
        if n := len(partition.ComputeParts(s.state)); index < 0 || index >= n {
            return apperr.NotFound("part %d not found, plan has %d parts", index+1, n)
        }
        s.replan(s.state.SetName(index, name))
        info = s.info()
        return nil
    })
    return info, err
}

func (o *Orchestrator) update(id string, fn func(partition.State) partition.State) (Info, error) {
    var info Info
    err := o.with(id, func(s *session) error {
        s.replan(fn(s.state))
        info = s.info()
        return nil
    })
    return info, err
}

// Process materializes every part of the current plan. Results are kept for
// downloads unless the session was changed or removed in the meantime, in
// which case they are discarded.
func (o *Orchestrator) Process(ctx context.Context, id string) ([]PartResult, error) {
    outs, err := o.process(ctx, id)
    if err != nil { return nil, err }
    res := make([]PartResult, len(outs))
    for i, out := range outs {
        res[i] = PartResult{
            Index: out.Part.Index, Number: out.Part.Number(), Name: out.Part.Name, FileName: out.FileName,
            Pages: out.Part.Pages, Empty: out.Part.Empty, Size: len(out.Data),
        }
    }
    return res, nil
}

func (o *Orchestrator) process(ctx context.Context, id string) ([]pdfsplit.Output, error) {
    s, err := o.get(id)
    if err != nil { return nil, err }

    s.mu.Lock()
    s.touched = o.deps.Now()
    if s.outputs != nil {
        outs := s.outputs
        s.mu.Unlock()
        return outs, nil
    }
    src, gen := s.src, s.generation
    parts := partition.ComputeParts(s.state)
    s.mu.Unlock()

    outs, err := o.materialize(ctx, src, parts)
    if err != nil { return nil, err }

    s.mu.Lock()
    defer s.mu.Unlock()
    if s.generation != gen {
        o.log.Info().Str("session", id).Msg("session changed during processing, results discarded")
        return nil, apperr.Validation("split session %s changed while processing; results discarded", id)
    }
    s.outputs = outs
    return outs, nil
}

// Part returns the document for 1-based part number n, processing first if needed.
func (o *Orchestrator) Part(ctx context.Context, id string, n int) (pdfsplit.Output, error) {
    outs, err := o.process(ctx, id)
    if err != nil { return pdfsplit.Output{}, err }
    if n < 1 || n > len(outs) { return pdfsplit.Output{}, apperr.NotFound("part %d not found", n) }
    return outs[n-1], nil
}

// Archive zips every part, processing first if needed.
func (o *Orchestrator) Archive(ctx context.Context, id string) ([]byte, error) {
    outs, err := o.process(ctx, id)
    if err != nil { return nil, err }
    return pdfsplit.ArchiveBytes(outs)
}

// DeletePages produces the whole document minus the plan's deleted pages,
// ignoring split points.
func (o *Orchestrator) DeletePages(ctx context.Context, id string) (pdfsplit.Output, error) {
    s, err := o.get(id)
    if err != nil { return pdfsplit.Output{}, err }
    s.mu.Lock()
    s.touched = o.deps.Now()
    src, deleted := s.src, append([]int(nil), s.state.DeletedPages...)
    s.mu.Unlock()
    return src.DeletePages(ctx, deleted)
}

// Thumbnail renders 1-based page as a JPEG preview.
func (o *Orchestrator) Thumbnail(id string, page int) (*imagerender.Thumbnail, error) {
    s, err := o.get(id)
    if err != nil { return nil, err }
    s.mu.Lock()
    s.touched = o.deps.Now()
    src := s.src
    s.mu.Unlock()
    if page < 1 || page > src.PageCount() {
        return nil, apperr.Input(nil, "page %d out of range 1..%d", page, src.PageCount())
    }
    th, err := imagerender.RenderPage(src.Bytes(), page, o.deps.Thumbnails)
    if err != nil { return nil, apperr.IO(err, "render page %d", page) }
    return th, nil
}

// Export uploads the session's archive.
func (o *Orchestrator) Export(ctx context.Context, id string) (storage.Export, error) {
    if o.deps.Exporter == nil { return storage.Export{}, apperr.BackendUnavailable(nil, "archive export is not configured") }
    s, err := o.get(id)
    if err != nil { return storage.Export{}, err }
    data, err := o.Archive(ctx, id)
    if err != nil { return storage.Export{}, err }
    exp, err := o.deps.Exporter.Upload(ctx, pdfsplit.ArchiveName, data, "application/zip",
        map[string]string{"session": id, "source": s.src.Name()})
    if err != nil { return storage.Export{}, apperr.BackendUnavailable(err, "archive export failed") }
    return exp, nil
}

// Delete clears the session and releases its source and outputs.
func (o *Orchestrator) Delete(id string) error {
    o.mu.Lock()
    s, ok := o.sessions[id]
    delete(o.sessions, id)
    n := len(o.sessions)
    o.mu.Unlock()
    if !ok { return apperr.NotFound("split session %s not found", id) }
    metrics.SetActiveSessions(n)

    s.mu.Lock()
    s.outputs = nil
    s.generation++
    s.mu.Unlock()
    o.log.Info().Str("session", id).Msg("split session cleared")
    return nil
}

// List returns all sessions, oldest first.
func (o *Orchestrator) List() []Info {
    o.mu.RLock()
    all := make([]*session, 0, len(o.sessions))
    for _, s := range o.sessions { all = append(all, s) }
    o.mu.RUnlock()

    out := make([]Info, 0, len(all))
    for _, s := range all {
        s.mu.Lock()
        out = append(out, s.info())
        s.mu.Unlock()
    }
    sort.Slice(out, func(i, j int) bool { return out[i].Created.Before(out[j].Created) })
    return out
}

func (o *Orchestrator) Count() int {
    o.mu.RLock()
    defer o.mu.RUnlock()
    return len(o.sessions)
}
