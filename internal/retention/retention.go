// Package retention computes the time windows that decide which posts are
// accepted by a fetch and which stored posts are purged.
package retention

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/kalambet/watchfeed/internal/storage"
)

const (
	// MaxRetentionDays bounds how long any post is kept, whatever the owner
	// configured.
	MaxRetentionDays = 7

	DefaultRetentionDays        = 1
	DefaultFetchIntervalMinutes = 0

	KeyRetentionDays        = "retention_days"
	KeyFetchIntervalMinutes = "fetch_interval_minutes"
)

var (
	AllowedRetentionDays        = []int{1, 2, 3, 5, 7}
	AllowedFetchIntervalMinutes = []int{0, 15, 30, 60, 120, 240, 360, 720, 1440}
)

// Config is the effective retention configuration of one watchlist.
type Config struct {
	FetchIntervalMinutes int `json:"fetchIntervalMinutes"`
	RetentionDays        int `json:"retentionDays"`
}

// SettingsReader reads a per-owner setting, returning storage.ErrNotFound
// for a missing key. *storage.Store satisfies it.
type SettingsReader interface {
	GetSetting(ownerID, key string) (string, error)
}

// FormatTimestamp renders t in the stored timestamp domain: UTC RFC3339,
// whose lexical order matches chronological order.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// Cutoff returns now minus days whole days.
func Cutoff(now time.Time, days int) time.Time {
	return now.Add(-time.Duration(days) * 24 * time.Hour).UTC()
}

// IsWithinRetention reports whether a post created at createdAt survives the cutoff.
func IsWithinRetention(createdAt, cutoff time.Time) bool {
	return !createdAt.Before(cutoff)
}

// FetchCutoff is the oldest creation time a fetch accepts for the given
// configured retention. Values above the maximum window are clamped.
func FetchCutoff(now time.Time, days int) time.Time {
	if days <= 0 {
		days = DefaultRetentionDays
	}
	return Cutoff(now, min(days, MaxRetentionDays))
}

// PurgeCutoff is the creation time before which stored posts are deleted.
func PurgeCutoff(now time.Time) time.Time {
	return Cutoff(now, MaxRetentionDays)
}

// ScopedKey returns the watchlist-scoped form of a settings key.
func ScopedKey(key, watchlistID string) string {
	return key + ":" + watchlistID
}

func ValidRetentionDays(days int) bool {
	return slices.Contains(AllowedRetentionDays, days)
}

func ValidFetchInterval(minutes int) bool {
	return slices.Contains(AllowedFetchIntervalMinutes, minutes)
}

// Resolve returns the effective configuration of a watchlist: the
// watchlist-scoped setting, else the owner's global setting, else the
// default. Stored values outside the allowed sets are skipped. An empty
// watchlistID resolves the owner's global configuration.
func Resolve(settings SettingsReader, ownerID, watchlistID string) (Config, error) {
	days, err := resolveInt(settings, ownerID, watchlistID, KeyRetentionDays, ValidRetentionDays, DefaultRetentionDays)
	if err != nil {
		return Config{}, err
	}
	interval, err := resolveInt(settings, ownerID, watchlistID, KeyFetchIntervalMinutes, ValidFetchInterval, DefaultFetchIntervalMinutes)
	if err != nil {
		return Config{}, err
	}
	return Config{FetchIntervalMinutes: interval, RetentionDays: days}, nil
}

func resolveInt(settings SettingsReader, ownerID, watchlistID, key string, valid func(int) bool, fallback int) (int, error) {
	keys := []string{key}
	if watchlistID != "" {
		keys = []string{ScopedKey(key, watchlistID), key}
	}
	for _, k := range keys {
		raw, err := settings.GetSetting(ownerID, k)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			return 0, fmt.Errorf("reading setting %s: %w", k, err)
		}
		v, err := strconv.Atoi(raw)
		if err != nil || !valid(v) {
			continue
		}
		return v, nil
	}
	return fallback, nil
}
