package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// AnalyzeRequest carries a recorded utterance to the analysis service.
type AnalyzeRequest struct {
	ReferenceText string `json:"reference_text"`
	AudioURL      string `json:"audio_url,omitempty"`
	AudioBase64   string `json:"audio_base64,omitempty"`
	Language      string `json:"language,omitempty"`
}

// AnalyzeResult is the analyzer verdict. Raw keeps the full payload for storage.
type AnalyzeResult struct {
	Score      float64         `json:"score"`
	Transcript string          `json:"transcript"`
	Passed     bool            `json:"passed"`
	Raw        json.RawMessage `json:"-"`
}

// Client is a thin HTTP client for the external pronunciation analyzer.
// The analysis itself lives in that service; this client only forwards audio
// and surfaces the returned verdict.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient builds a client for the given base URL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

// Analyze submits an utterance and returns the analyzer verdict.
func (c *Client) Analyze(ctx context.Context, req AnalyzeRequest) (*AnalyzeResult, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal analyze request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/analyze", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build analyze request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("call speech service: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("speech service returned status %d", resp.StatusCode)
	}

	var raw json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode analyze response: %w", err)
	}

	var result AnalyzeResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("parse analyze response: %w", err)
	}
	result.Raw = raw
	return &result, nil
}
