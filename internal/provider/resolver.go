package provider

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/time/rate"

	"github.com/kalambet/watchfeed/internal/storage"
)

// KeyAPIKey is the per-owner settings key holding the provider API key.
const KeyAPIKey = "provider_api_key"

// SettingsReader reads a per-owner setting.
type SettingsReader interface {
	GetSetting(ownerID, key string) (string, error)
}

// Resolver builds a provider client scoped to one owner's credentials. All
// clients share one rate limiter.
type Resolver struct {
	settings    SettingsReader
	fallbackKey string
	baseURL     string
	limiter     *rate.Limiter
}

// NewResolver creates a Resolver. fallbackKey is used for owners without a
// stored key; ratePerMinute <= 0 disables rate limiting.
func NewResolver(settings SettingsReader, fallbackKey, baseURL string, ratePerMinute int) *Resolver {
	var limiter *rate.Limiter
	if ratePerMinute > 0 {
		limiter = rate.NewLimiter(rate.Limit(float64(ratePerMinute)/60), 1)
	}
	return &Resolver{
		settings:    settings,
		fallbackKey: fallbackKey,
		baseURL:     baseURL,
		limiter:     limiter,
	}
}

// ForOwner returns a client using the owner's key. ErrNotConfigured means
// neither the owner nor the server has a key.
func (r *Resolver) ForOwner(ownerID string) (Fetcher, error) {
	key, err := r.settings.GetSetting(ownerID, KeyAPIKey)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("reading provider key: %w", err)
	}
	key = strings.TrimSpace(key)
	if key == "" {
		key = r.fallbackKey
	}
	if key == "" {
		return nil, ErrNotConfigured
	}
	return NewClient(key, r.baseURL, r.limiter), nil
}
