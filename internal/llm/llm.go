// Package llm defines the text-generation contract shared by the AI
// backends used for translation.
package llm

import (
	"context"
	"errors"
)

// Provider names accepted in the ai_provider setting.
const (
	ProviderOpenRouter = "openrouter"
	ProviderOllama     = "ollama"
	ProviderGemini     = "gemini"
)

// Per-owner settings keys.
const (
	KeyProvider = "ai_provider"
	KeyModel    = "ai_model"
	KeyAPIKey   = "ai_api_key"
)

// ErrNotConfigured is returned when an owner has no usable AI provider,
// model or key.
var ErrNotConfigured = errors.New("AI provider not configured")

// Request is one text generation call.
type Request struct {
	Model           string
	Prompt          string
	MaxOutputTokens int
}

// Generator produces text for a prompt.
type Generator interface {
	GenerateText(ctx context.Context, req Request) (string, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, req Request) (string, error)

func (f GeneratorFunc) GenerateText(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

// Settings is an owner's AI configuration.
type Settings struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
	APIKey   string `json:"-"`
}

// NeedsAPIKey reports whether the provider requires a key.
func NeedsAPIKey(provider string) bool {
	return provider != ProviderOllama
}

// ValidProvider reports whether name is a supported provider.
func ValidProvider(name string) bool {
	switch name {
	case ProviderOpenRouter, ProviderOllama, ProviderGemini:
		return true
	}
	return false
}

// Configured reports whether s is complete enough to generate text.
func (s Settings) Configured() bool {
	if !ValidProvider(s.Provider) || s.Model == "" {
		return false
	}
	return !NeedsAPIKey(s.Provider) || s.APIKey != ""
}
