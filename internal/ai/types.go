package ai

import (
    "context"
    "errors"
    "fmt"
    "net/http"
    "time"
)

// Request is a single prompt sent to a text generation backend.
type Request struct {
    Model        string
    Prompt       string
    SystemPrompt string
    MaxTokens    int
}

type Response struct {
    Text      string
    TokensIn  int
    TokensOut int
}

// Client interface for providers like Ollama, OpenAI, Anthropic.
type Client interface {
    Name() string
    Do(ctx context.Context, req Request) (Response, error)
}

var (
    ErrRateLimited = errors.New("rate_limited")
    ErrNoOutput    = errors.New("empty model output")
)

func IsRateLimited(err error) bool { return errors.Is(err, ErrRateLimited) }

// HTTPError represents a non-2xx answer from a provider.
type HTTPError struct {
    StatusCode int
    Body       string
    Provider   string
}

func (e *HTTPError) Error() string {
    return fmt.Sprintf("HTTP %d from %s: %s", e.StatusCode, e.Provider, e.Body)
}

func (e *HTTPError) Unwrap() error {
    if e.StatusCode == http.StatusTooManyRequests { return ErrRateLimited }
    return nil
}

// DefaultHTTPClient is used when a constructor gets a nil client.
func DefaultHTTPClient(timeout time.Duration) *http.Client {
    if timeout <= 0 { timeout = 120 * time.Second }
    return &http.Client{Timeout: timeout}
}

func statusError(provider string, resp *http.Response) error {
    buf := make([]byte, 512)
    n, _ := resp.Body.Read(buf)
    return &HTTPError{StatusCode: resp.StatusCode, Body: string(buf[:n]), Provider: provider}
}
