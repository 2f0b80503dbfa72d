// Package factory resolves an owner's AI settings into a concrete
// llm.Generator.
package factory

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kalambet/watchfeed/internal/llm"
	"github.com/kalambet/watchfeed/internal/llm/gemini"
	"github.com/kalambet/watchfeed/internal/llm/ollama"
	"github.com/kalambet/watchfeed/internal/llm/openrouter"
	"github.com/kalambet/watchfeed/internal/storage"
)

// SettingsReader reads a per-owner setting.
type SettingsReader interface {
	GetSetting(ownerID, key string) (string, error)
}

// Options holds backend endpoints. Empty values use each backend's default.
type Options struct {
	OpenRouterBaseURL string
	OllamaBaseURL     string
	GeminiBaseURL     string
}

type Factory struct {
	settings SettingsReader
	opts     Options
}

func New(settings SettingsReader, opts Options) *Factory {
	return &Factory{settings: settings, opts: opts}
}

// Settings loads the owner's AI settings. Missing keys yield empty fields.
func (f *Factory) Settings(ownerID string) (llm.Settings, error) {
	var s llm.Settings
	for key, dst := range map[string]*string{
		llm.KeyProvider: &s.Provider,
		llm.KeyModel:    &s.Model,
		llm.KeyAPIKey:   &s.APIKey,
	} {
		v, err := f.settings.GetSetting(ownerID, key)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			return llm.Settings{}, fmt.Errorf("reading %s: %w", key, err)
		}
		*dst = strings.TrimSpace(v)
	}
	return s, nil
}

// ForOwner returns a generator for the owner's configured backend together
// with the settings it was built from. llm.ErrNotConfigured means provider,
// model or key is missing.
func (f *Factory) ForOwner(ctx context.Context, ownerID string) (llm.Generator, llm.Settings, error) {
	s, err := f.Settings(ownerID)
	if err != nil {
		return nil, llm.Settings{}, err
	}
	if !s.Configured() {
		return nil, s, llm.ErrNotConfigured
	}

	switch s.Provider {
	case llm.ProviderOpenRouter:
		return openrouter.NewClient(s.APIKey, f.opts.OpenRouterBaseURL), s, nil
	case llm.ProviderOllama:
		return ollama.New(f.opts.OllamaBaseURL), s, nil
	case llm.ProviderGemini:
		g, err := gemini.New(ctx, s.APIKey, f.opts.GeminiBaseURL)
		if err != nil {
			return nil, s, err
		}
		return g, s, nil
	}
	return nil, s, llm.ErrNotConfigured
}

type modelLister interface {
	ListModels(ctx context.Context) ([]string, error)
}

// ListModels lists the models offered by the given provider. apiKey is
// only used by providers that require one.
func (f *Factory) ListModels(ctx context.Context, provider, apiKey string) ([]string, error) {
	var l modelLister
	switch provider {
	case llm.ProviderOpenRouter:
		l = openrouter.NewClient(apiKey, f.opts.OpenRouterBaseURL)
	case llm.ProviderOllama:
		l = ollama.New(f.opts.OllamaBaseURL)
	default:
		return nil, fmt.Errorf("listing models is not supported for provider %q", provider)
	}
	return l.ListModels(ctx)
}
