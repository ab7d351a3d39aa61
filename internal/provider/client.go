// Package provider talks to an Anthropic-compatible messages endpoint. The
// harness uses it to administer exam tasks: one prompt in, one free-text
// answer out. Answer extraction and grading live elsewhere.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

type Config struct {
	BaseURL string
	APIKey  string
	Version string
	Beta    string
	Timeout time.Duration
}

type Client struct {
	baseURL string
	apiKey  string
	version string
	beta    string
	client  *http.Client
}

func NewClient(cfg Config) *Client {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.anthropic.com"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	version := cfg.Version
	if version == "" {
		version = "2023-06-01"
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  cfg.APIKey,
		version: version,
		beta:    cfg.Beta,
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *Client) CreateMessage(ctx context.Context, req MessageRequest) (*MessageResponse, error) {
	body, err := c.doJSON(ctx, http.MethodPost, "/v1/messages", req)
	if err != nil {
		return nil, err
	}
	var resp MessageResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode message response: %w", err)
	}
	return &resp, nil
}

func (c *Client) ListModels(ctx context.Context) (*ModelsResponse, error) {
	body, err := c.doJSON(ctx, http.MethodGet, "/v1/models", nil)
	if err != nil {
		return nil, err
	}
	var resp ModelsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode models response: %w", err)
	}
	return &resp, nil
}

// Complete sends a single-turn exam prompt and returns the concatenated text
// blocks of the answer.
func (c *Client) Complete(ctx context.Context, model, system, prompt string, maxTokens int) (string, Usage, error) {
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	req := MessageRequest{
		Model:     model,
		MaxTokens: maxTokens,
		Messages: []Message{
			{Role: "user", Content: prompt},
		},
	}
	if strings.TrimSpace(system) != "" {
		req.System = system
	}
	resp, err := c.CreateMessage(ctx, req)
	if err != nil {
		return "", Usage{}, err
	}
	parts := make([]string, 0, len(resp.Content))
	for _, block := range resp.Content {
		if block.Type == "text" && strings.TrimSpace(block.Text) != "" {
			parts = append(parts, strings.TrimSpace(block.Text))
		}
	}
	return strings.Join(parts, "\n"), resp.Usage, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, body any) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	request, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if reader != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		request.Header.Set("x-api-key", c.apiKey)
	}
	request.Header.Set("anthropic-version", c.version)
	if c.beta != "" {
		request.Header.Set("anthropic-beta", c.beta)
	}

	response, err := c.client.Do(request)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer response.Body.Close()

	bodyBytes, readErr := io.ReadAll(response.Body)
	if readErr != nil {
		return nil, fmt.Errorf("read response body: %w", readErr)
	}
	if response.StatusCode < 200 || response.StatusCode >= 300 {
		envelope, ok := ParseAPIErrorEnvelope(bodyBytes)
		if !ok {
			return nil, fmt.Errorf("api status %d: %s", response.StatusCode, string(bodyBytes))
		}
		return nil, &APIError{StatusCode: response.StatusCode, Envelope: envelope, Body: bodyBytes}
	}
	return bodyBytes, nil
}

func IsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}
