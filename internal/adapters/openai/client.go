package openai

import (
    "bytes"
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "net/http"
    "strings"

    "github.com/HamedShams/sprint-lens/internal/config"
    "github.com/rs/zerolog"
)

type Client struct {
    key   string
    model string
    http  *http.Client
    log   zerolog.Logger
}

func NewClient(cfg config.Config, log zerolog.Logger) *Client {
    return &Client{ key: cfg.OpenAIKey, model: cfg.OpenAIModel, http: &http.Client{ Timeout: cfg.OpenAITimeout }, log: log }
}

// Summarize turns an analysis result into a short coach note for the digest.
func (c *Client) Summarize(ctx context.Context, payload any) (string, error) {
    if strings.TrimSpace(c.key) == "" { return "", errors.New("openai: missing key") }
    body := map[string]any{
        "model": c.model,
        "messages": []map[string]string{
            {"role":"system","content":"You are a senior agile coach. Given a board's sprint metrics, maturity classification, and capacity summary, produce a concise actionable note: what improved, what regressed, and the single most useful next step."},
            {"role":"user","content": fmt.Sprintf("%v", payload)},
        },
        "temperature": 0.2,
    }
    b, _ := json.Marshal(body)
    req, _ := http.NewRequestWithContext(ctx, http.MethodPost, "https://api.openai.com/v1/chat/completions", bytes.NewReader(b))
    req.Header.Set("Authorization", "Bearer "+c.key)
    req.Header.Set("Content-Type", "application/json")
    resp, err := c.http.Do(req)
    if err != nil { return "", err }
    defer resp.Body.Close()
    if resp.StatusCode >= 300 { return "", fmt.Errorf("openai status=%d", resp.StatusCode) }
    var out struct{ Choices []struct{ Message struct{ Content string `json:"content"` } `json:"message"` } `json:"choices"` }
    if err := json.NewDecoder(resp.Body).Decode(&out); err != nil { return "", err }
    if len(out.Choices) == 0 { return "", errors.New("openai: no choices") }
    return out.Choices[0].Message.Content, nil
}
