package statuscheck

import (
    "context"
    "errors"
    "fmt"
    "net/http"
    "os"
    "os/exec"
    "strings"
    "time"
)

// Pinger is anything that can report whether it is reachable: the SQLite
// stores, the redis summary cache and the S3 exporter.
type Pinger interface {
    Ping(ctx context.Context) error
}

// Checker aggregates health checks for the dependencies the service uses.
type Checker struct {
    documents  Pinger
    projects   Pinger
    cache      Pinger
    export     Pinger
    httpClient *http.Client
    ollamaURL  string
    python     string
    script     string
    soffice    string
}

// Options configures the Checker. Nil pingers and empty URLs are reported
// as not configured.
type Options struct {
    Documents  Pinger
    Projects   Pinger
    Cache      Pinger
    Export     Pinger
    HTTPClient *http.Client
    OllamaURL  string
    Python     string
    Script     string
    Soffice    string
}

// Status represents the readiness of a subsystem.
type Status struct {
    OK       bool   `json:"ok"`
    Optional bool   `json:"optional,omitempty"`
    Message  string `json:"message"`
}

// Summary bundles all subsystem statuses.
type Summary struct {
    Documents   Status `json:"documents"`
    Projects    Status `json:"projects"`
    Cache       Status `json:"cache"`
    Export      Status `json:"export"`
    Ollama      Status `json:"ollama"`
    Script      Status `json:"script"`
    LibreOffice Status `json:"libreoffice"`
}

// Healthy is true when every required subsystem is up. Optional ones
// (cache, export, model backends) only degrade features.
func (s Summary) Healthy() bool {
    for _, st := range []Status{s.Documents, s.Projects, s.Cache, s.Export, s.Ollama, s.Script, s.LibreOffice} {
        if !st.OK && !st.Optional {
            return false
        }
    }
    return true
}

// New creates a new Checker with the provided options.
func New(opts Options) *Checker {
    client := opts.HTTPClient
    if client == nil {
        client = &http.Client{Timeout: 5 * time.Second}
    }
    python := opts.Python
    if python == "" { python = "python" }
    return &Checker{
        documents:  opts.Documents,
        projects:   opts.Projects,
        cache:      opts.Cache,
        export:     opts.Export,
        httpClient: client,
        ollamaURL:  strings.TrimRight(strings.TrimSpace(opts.OllamaURL), "/"),
        python:     python,
        script:     opts.Script,
        soffice:    opts.Soffice,
    }
}

// Summary returns the current status snapshot.
func (c *Checker) Summary(ctx context.Context) Summary {
    return Summary{
        Documents:   c.ping(ctx, c.documents, false),
        Projects:    c.ping(ctx, c.projects, false),
        Cache:       c.ping(ctx, c.cache, true),
        Export:      c.ping(ctx, c.export, true),
        Ollama:      c.checkOllama(ctx),
        Script:      c.checkScript(),
        LibreOffice: c.checkLibreOffice(),
    }
}

func (c *Checker) ping(ctx context.Context, p Pinger, optional bool) Status {
    if p == nil {
        return Status{OK: false, Optional: optional, Message: "not configured"}
    }
    ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
    defer cancel()
    if err := p.Ping(ctx); err != nil {
        return Status{OK: false, Optional: optional, Message: trimError(err)}
    }
    return Status{OK: true, Optional: optional, Message: "Connected"}
}

func (c *Checker) checkOllama(ctx context.Context) Status {
    if c.ollamaURL == "" {
        return Status{OK: false, Optional: true, Message: "URL not configured"}
    }
    req, _ := http.NewRequestWithContext(ctx, http.MethodGet, c.ollamaURL+"/api/tags", nil)
    resp, err := c.httpClient.Do(req)
    if err != nil {
        return Status{OK: false, Optional: true, Message: trimError(err)}
    }
    defer resp.Body.Close()
    if resp.StatusCode >= 400 {
        return Status{OK: false, Optional: true, Message: fmt.Sprintf("HTTP %d", resp.StatusCode)}
    }
    return Status{OK: true, Optional: true, Message: "Available"}
}

func (c *Checker) checkScript() Status {
    if _, err := exec.LookPath(c.python); err != nil {
        return Status{OK: false, Optional: true, Message: "Interpreter not found"}
    }
    if c.script == "" {
        return Status{OK: false, Optional: true, Message: "Script not configured"}
    }
    if _, err := os.Stat(c.script); err != nil {
        return Status{OK: false, Optional: true, Message: "Script not found"}
    }
    return Status{OK: true, Optional: true, Message: "Available"}
}

func (c *Checker) checkLibreOffice() Status {
    if c.soffice == "" {
        return Status{OK: false, Optional: true, Message: "not configured"}
    }
    if _, err := exec.LookPath(c.soffice); err != nil {
        return Status{OK: false, Optional: true, Message: "Binary not found"}
    }
    return Status{OK: true, Optional: true, Message: "Available"}
}

func trimError(err error) string {
    if err == nil {
        return ""
    }
    var netErr interface{ Timeout() bool }
    if errors.As(err, &netErr) && netErr.Timeout() {
        return "timeout"
    }
    msg := err.Error()
    if len(msg) > 120 {
        return msg[:120]
    }
    return msg
}
