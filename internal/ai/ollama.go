package ai

import (
    "bufio"
    "bytes"
    "context"
    "encoding/json"
    "errors"
    "net/http"
    "strings"

    "github.com/rs/zerolog/log"
)

// OllamaClient talks to a local Ollama server's /api/generate endpoint.
type OllamaClient struct {
    http    *http.Client
    baseURL string
}

func NewOllamaClient(baseURL string, hc *http.Client) *OllamaClient {
    if hc == nil { hc = DefaultHTTPClient(0) }
    return &OllamaClient{http: hc, baseURL: strings.TrimRight(baseURL, "/")}
}

func (c *OllamaClient) Name() string { return "ollama" }

type ollamaGenerateReq struct {
    Model  string `json:"model"`
    Prompt string `json:"prompt"`
    System string `json:"system,omitempty"`
}

type ollamaChunk struct {
    Response        string `json:"response"`
    Done            bool   `json:"done"`
    Error           string `json:"error"`
    PromptEvalCount int    `json:"prompt_eval_count"`
    EvalCount       int    `json:"eval_count"`
}

// Do streams the generation and concatenates the response fragments.
// Lines that are not valid JSON are skipped.
func (c *OllamaClient) Do(ctx context.Context, req Request) (Response, error) {
    body, _ := json.Marshal(ollamaGenerateReq{Model: req.Model, Prompt: req.Prompt, System: req.SystemPrompt})
    httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(body))
    if err != nil { return Response{}, err }
    httpReq.Header.Set("Content-Type", "application/json")

    resp, err := c.http.Do(httpReq)
    if err != nil { return Response{}, err }
    defer resp.Body.Close()
    if resp.StatusCode < 200 || resp.StatusCode >= 300 { return Response{}, statusError(c.Name(), resp) }

    var (
        out strings.Builder
        r   Response
    )
    sc := bufio.NewScanner(resp.Body)
    sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
    for sc.Scan() {
        line := strings.TrimSpace(sc.Text())
        if line == "" { continue }
        var chunk ollamaChunk
        if err := json.Unmarshal([]byte(line), &chunk); err != nil {
            log.Warn().Err(err).Str("provider", c.Name()).Msg("skipping malformed stream line")
            continue
        }
        if chunk.Error != "" { return Response{}, errors.New("ollama: " + chunk.Error) }
        out.WriteString(chunk.Response)
        if chunk.Done {
            r.TokensIn, r.TokensOut = chunk.PromptEvalCount, chunk.EvalCount
            break
        }
    }
    if err := sc.Err(); err != nil { return Response{}, err }
    r.Text = out.String()
    return r, nil
}
