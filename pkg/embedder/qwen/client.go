// Package qwen provides an embedder.Provider implementation backed by
// Alibaba Cloud DashScope's text-embedding API, offered as an alternate
// embedder for deployments that cannot reach OpenAI.
package qwen

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client implements embedder.Provider against the DashScope API.
type Client struct {
	client     *http.Client
	apiKey     string
	model      string
	baseURL    string
	dimensions int
}

// Config configures a DashScope-backed Client.
type Config struct {
	APIKey     string
	Model      string // default "text-embedding-v4"
	BaseURL    string // default DashScope's public endpoint
	Dimensions int    // default 1536
	HTTPClient *http.Client
}

// NewClient creates a new DashScope embedder client.
func NewClient(cfg *Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("qwen: API key is required")
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://dashscope.aliyuncs.com/api/v1"
	}

	model := cfg.Model
	if model == "" {
		model = "text-embedding-v4"
	}

	dimensions := cfg.Dimensions
	if dimensions == 0 {
		dimensions = 1536
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	return &Client{
		client:     client,
		apiKey:     cfg.APIKey,
		model:      model,
		baseURL:    baseURL,
		dimensions: dimensions,
	}, nil
}

type dashscopeResponse struct {
	Output struct {
		Embeddings []struct {
			Embedding []float32 `json:"embedding"`
		} `json:"embeddings"`
	} `json:"output"`
}

func (c *Client) request(ctx context.Context, texts []string) (*dashscopeResponse, error) {
	reqBody := map[string]interface{}{
		"model": c.model,
		"input": map[string]interface{}{"texts": texts},
		"parameters": map[string]interface{}{
			"dimension": c.dimensions,
		},
		"text_type": "document",
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("qwen: marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/services/embeddings/text-embedding/text-embedding", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("qwen: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("qwen: send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("qwen: request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var out dashscopeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("qwen: decode response: %w", err)
	}
	return &out, nil
}

// Embed converts a single text string into a vector embedding.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := c.request(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(resp.Output.Embeddings) == 0 {
		return nil, errors.New("qwen: no embeddings returned")
	}
	return resp.Output.Embeddings[0].Embedding, nil
}

// EmbedBatch converts multiple text strings into vector embeddings in a single round trip.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := c.request(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(resp.Output.Embeddings) != len(texts) {
		return nil, fmt.Errorf("qwen: unexpected number of results (got %d, expected %d)", len(resp.Output.Embeddings), len(texts))
	}

	embeddings := make([][]float32, len(texts))
	for i, e := range resp.Output.Embeddings {
		embeddings[i] = e.Embedding
	}
	return embeddings, nil
}

// Dimensions returns the configured vector dimension.
func (c *Client) Dimensions() int {
	return c.dimensions
}

// Close is a no-op; DashScope's HTTP client needs no explicit teardown.
func (c *Client) Close() error {
	return nil
}
