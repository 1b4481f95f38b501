package ai

import (
    "bytes"
    "context"
    "encoding/json"
    "errors"
    "net/http"
    "strings"
)

type AnthropicClient struct{ http *http.Client; baseURL string; apiKey string }

func NewAnthropicClient(baseURL, apiKey string, hc *http.Client) *AnthropicClient {
    if hc == nil { hc = DefaultHTTPClient(0) }
    if baseURL == "" { baseURL = "https://api.anthropic.com/v1" }
    return &AnthropicClient{http: hc, baseURL: strings.TrimRight(baseURL, "/"), apiKey: apiKey}
}
func (c *AnthropicClient) Name() string { return "anthropic" }

type anthropicMessage struct{ Role string `json:"role"`; Content string `json:"content"` }

type anthropicMsgReq struct {
    Model     string             `json:"model"`
    MaxTokens int                `json:"max_tokens"`
    System    string             `json:"system,omitempty"`
    Messages  []anthropicMessage `json:"messages"`
}

type anthropicMsgResp struct {
    Content []struct{ Text string `json:"text"` } `json:"content"`
    Usage   struct{ InputTokens int `json:"input_tokens"`; OutputTokens int `json:"output_tokens"` } `json:"usage"`
}

func (c *AnthropicClient) Do(ctx context.Context, req Request) (Response, error) {
    if c.apiKey == "" { return Response{}, errors.New("missing ANTHROPIC_API_KEY") }
    maxTokens := req.MaxTokens
    if maxTokens <= 0 { maxTokens = 1024 }
    payload := anthropicMsgReq{Model: req.Model, MaxTokens: maxTokens, System: req.SystemPrompt,
        Messages: []anthropicMessage{{Role: "user", Content: req.Prompt}}}
    body, _ := json.Marshal(payload)
    httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/messages", bytes.NewReader(body))
    if err != nil { return Response{}, err }
    httpReq.Header.Set("x-api-key", c.apiKey)
    httpReq.Header.Set("anthropic-version", "2023-06-01")
    httpReq.Header.Set("Content-Type", "application/json")
    resp, err := c.http.Do(httpReq)
    if err != nil { return Response{}, err }
    defer resp.Body.Close()
    if resp.StatusCode < 200 || resp.StatusCode >= 300 { return Response{}, statusError(c.Name(), resp) }
    var r anthropicMsgResp
    if err := json.NewDecoder(resp.Body).Decode(&r); err != nil { return Response{}, err }
    if len(r.Content) == 0 { return Response{}, ErrNoOutput }
    var text strings.Builder
    for _, part := range r.Content { text.WriteString(part.Text) }
    return Response{Text: text.String(), TokensIn: r.Usage.InputTokens, TokensOut: r.Usage.OutputTokens}, nil
}
