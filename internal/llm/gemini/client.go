// Package gemini implements llm.Generator with the Google Gen AI SDK.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/kalambet/watchfeed/internal/llm"
	"github.com/kalambet/watchfeed/internal/metrics"
)

// Client wraps a genai client for plain text generation.
type Client struct {
	client *genai.Client
}

// New creates a Gemini client. baseURL overrides the API endpoint and is
// empty in production.
func New(ctx context.Context, apiKey, baseURL string) (*Client, error) {
	if apiKey == "" {
		return nil, llm.ErrNotConfigured
	}
	cfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL}
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}
	return &Client{client: client}, nil
}

// GenerateText implements llm.Generator.
func (c *Client) GenerateText(ctx context.Context, req llm.Request) (string, error) {
	var config *genai.GenerateContentConfig
	if req.MaxOutputTokens > 0 {
		config = &genai.GenerateContentConfig{MaxOutputTokens: int32(req.MaxOutputTokens)}
	}

	start := time.Now()
	result, err := c.client.Models.GenerateContent(ctx, req.Model, genai.Text(req.Prompt), config)
	metrics.ObserveUpstream("gemini", time.Since(start).Seconds())
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}

	if result == nil || len(result.Candidates) == 0 || result.Candidates[0].Content == nil {
		return "", errors.New("gemini: empty response")
	}
	var sb strings.Builder
	for _, part := range result.Candidates[0].Content.Parts {
		if part != nil {
			sb.WriteString(part.Text)
		}
	}
	if sb.Len() == 0 {
		return "", errors.New("gemini: response has no text")
	}
	return sb.String(), nil
}
