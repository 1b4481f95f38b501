package ai

import (
    "bytes"
    "context"
    "encoding/json"
    "errors"
    "net/http"
    "strings"
)

// OpenAIClient speaks the chat completions API. baseURL may point at any
// OpenAI compatible server.
type OpenAIClient struct{
    http    *http.Client
    baseURL string
    apiKey  string
}

func NewOpenAIClient(baseURL, apiKey string, hc *http.Client) *OpenAIClient {
    if hc == nil { hc = DefaultHTTPClient(0) }
    if baseURL == "" { baseURL = "https://api.openai.com/v1" }
    return &OpenAIClient{http: hc, baseURL: strings.TrimRight(baseURL, "/"), apiKey: apiKey}
}
func (c *OpenAIClient) Name() string { return "openai" }

type openAIMessage struct {
    Role    string `json:"role"`
    Content string `json:"content"`
}

type openAIChatReq struct {
    Model       string          `json:"model"`
    Messages    []openAIMessage `json:"messages"`
    Temperature float64         `json:"temperature"`
    MaxTokens   int             `json:"max_tokens,omitempty"`
}

type openAIChatResp struct {
    Choices []struct {
        Message struct {
            Content string `json:"content"`
        } `json:"message"`
    } `json:"choices"`
    Usage struct {
        PromptTokens     int `json:"prompt_tokens"`
        CompletionTokens int `json:"completion_tokens"`
    } `json:"usage"`
}

func (c *OpenAIClient) Do(ctx context.Context, req Request) (Response, error) {
    if c.apiKey == "" {
        return Response{}, errors.New("missing OPENAI_API_KEY")
    }

    var messages []openAIMessage
    if req.SystemPrompt != "" {
        messages = append(messages, openAIMessage{Role: "system", Content: req.SystemPrompt})
    }
    messages = append(messages, openAIMessage{Role: "user", Content: req.Prompt})

    body, _ := json.Marshal(openAIChatReq{Model: req.Model, Messages: messages, Temperature: 0, MaxTokens: req.MaxTokens})
    httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
    if err != nil { return Response{}, err }
    httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
    httpReq.Header.Set("Content-Type", "application/json")

    resp, err := c.http.Do(httpReq)
    if err != nil {
        return Response{}, err
    }
    defer resp.Body.Close()

    if resp.StatusCode < 200 || resp.StatusCode >= 300 {
        return Response{}, statusError(c.Name(), resp)
    }

    var r openAIChatResp
    if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
        return Response{}, err
    }
    if len(r.Choices) == 0 {
        return Response{}, ErrNoOutput
    }

    return Response{
        Text:      r.Choices[0].Message.Content,
        TokensIn:  r.Usage.PromptTokens,
        TokensOut: r.Usage.CompletionTokens,
    }, nil
}
