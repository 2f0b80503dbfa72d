package config

import (
	"errors"
	"fmt"
	"math"
	"net/url"
	"os"
	"slices"
	"strconv"
	"strings"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kBool
)

const envPrefix = "WATCHFEED_"

// keySpec binds a dotted config key to its env var and Config field. check,
// when set, validates the typed value wherever it comes from: the config
// file, the environment or `config set`.
type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	check   func(v any) error
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: envPrefix + "SERVER_PORT",
		check:   intBetween(1, 65535),
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.owner_id", typ: kString, env: envPrefix + "SERVER_OWNER_ID",
		check:   nonEmpty,
		apply:   func(cfg *Config, v any) { cfg.Server.OwnerID = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.OwnerID },
	},
	{
		key: "storage.data_dir", typ: kString, env: envPrefix + "STORAGE_DATA_DIR",
		check:   nonEmpty,
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "log.level", typ: kString, env: envPrefix + "LOG_LEVEL",
		check:   oneOf("debug", "info", "warn", "error"),
		apply:   func(cfg *Config, v any) { cfg.Log.Level = strings.ToLower(v.(string)) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
	{
		key: "provider.base_url", typ: kString, env: envPrefix + "PROVIDER_BASE_URL",
		check:   httpURL,
		apply:   func(cfg *Config, v any) { cfg.Provider.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Provider.BaseURL },
	},
	{
		key: "provider.api_key", typ: kString, env: envPrefix + "PROVIDER_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Provider.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Provider.APIKey },
	},
	{
		key: "provider.rate_per_minute", typ: kInt, env: envPrefix + "PROVIDER_RATE_PER_MINUTE",
		check:   intBetween(1, 10000),
		apply:   func(cfg *Config, v any) { cfg.Provider.RatePerMinute = v.(int) },
		extract: func(cfg Config) any { return cfg.Provider.RatePerMinute },
	},
	{
		key: "provider.page_size", typ: kInt, env: envPrefix + "PROVIDER_PAGE_SIZE",
		check:   intBetween(1, 200),
		apply:   func(cfg *Config, v any) { cfg.Provider.PageSize = v.(int) },
		extract: func(cfg Config) any { return cfg.Provider.PageSize },
	},
	{
		key: "ai.max_output_tokens", typ: kInt, env: envPrefix + "AI_MAX_OUTPUT_TOKENS",
		check:   intBetween(1, 65536),
		apply:   func(cfg *Config, v any) { cfg.AI.MaxOutputTokens = v.(int) },
		extract: func(cfg Config) any { return cfg.AI.MaxOutputTokens },
	},
	{
		key: "openrouter.base_url", typ: kString, env: envPrefix + "OPENROUTER_BASE_URL",
		check:   httpURL,
		apply:   func(cfg *Config, v any) { cfg.AI.OpenRouterBaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.AI.OpenRouterBaseURL },
	},
	{
		key: "ollama.base_url", typ: kString, env: envPrefix + "OLLAMA_BASE_URL",
		check:   httpURL,
		apply:   func(cfg *Config, v any) { cfg.AI.OllamaBaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.AI.OllamaBaseURL },
	},
	{
		// Empty means the SDK's default endpoint.
		key: "gemini.base_url", typ: kString, env: envPrefix + "GEMINI_BASE_URL",
		check: func(v any) error {
			if v.(string) == "" {
				return nil
			}
			return httpURL(v)
		},
		apply:   func(cfg *Config, v any) { cfg.AI.GeminiBaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.AI.GeminiBaseURL },
	},
	{
		key: "scheduler.enabled", typ: kBool, env: envPrefix + "SCHEDULER_ENABLED",
		apply:   func(cfg *Config, v any) { cfg.Scheduler.Enabled = v.(bool) },
		extract: func(cfg Config) any { return cfg.Scheduler.Enabled },
	},
	{
		key: "scheduler.poll_interval", typ: kString, env: envPrefix + "SCHEDULER_POLL_INTERVAL",
		check: func(v any) error {
			_, err := SchedulerConfig{PollInterval: v.(string)}.PollDuration()
			return err
		},
		apply:   func(cfg *Config, v any) { cfg.Scheduler.PollInterval = v.(string) },
		extract: func(cfg Config) any { return cfg.Scheduler.PollInterval },
	},
}

func lookupSpec(key string) (keySpec, bool) {
	i := slices.IndexFunc(specs, func(s keySpec) bool { return s.key == key })
	if i < 0 {
		return keySpec{}, false
	}
	return specs[i], true
}

// parse converts a raw value into the spec's type and validates it. raw is a
// decoded JSON value from the config file or a string from the environment
// or the command line.
func (s keySpec) parse(raw any) (any, error) {
	var v any
	switch s.typ {
	case kString:
		str, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("%s: expected a string, got %v", s.key, raw)
		}
		v = strings.TrimSpace(str)
	case kInt:
		switch n := raw.(type) {
		case float64:
			if n != math.Trunc(n) || n < math.MinInt32 || n > math.MaxInt32 {
				return nil, fmt.Errorf("%s: %v is not an integer", s.key, n)
			}
			v = int(n)
		case string:
			i, err := strconv.Atoi(strings.TrimSpace(n))
			if err != nil {
				return nil, fmt.Errorf("%s: %q is not an integer", s.key, n)
			}
			v = i
		default:
			return nil, fmt.Errorf("%s: expected an integer, got %v", s.key, raw)
		}
	case kBool:
		switch b := raw.(type) {
		case bool:
			v = b
		case string:
			pb, err := strconv.ParseBool(strings.TrimSpace(b))
			if err != nil {
				return nil, fmt.Errorf("%s: %q is not a boolean", s.key, b)
			}
			v = pb
		default:
			return nil, fmt.Errorf("%s: expected a boolean, got %v", s.key, raw)
		}
	}
	if s.check != nil {
		if err := s.check(v); err != nil {
			return nil, fmt.Errorf("%s: %w", s.key, err)
		}
	}
	return v, nil
}

func intBetween(lo, hi int) func(any) error {
	return func(v any) error {
		if n := v.(int); n < lo || n > hi {
			return fmt.Errorf("%d is outside %d..%d", n, lo, hi)
		}
		return nil
	}
}

func oneOf(allowed ...string) func(any) error {
	return func(v any) error {
		if !slices.Contains(allowed, strings.ToLower(v.(string))) {
			return fmt.Errorf("%q is not one of %s", v, strings.Join(allowed, ", "))
		}
		return nil
	}
}

func nonEmpty(v any) error {
	if v.(string) == "" {
		return errors.New("must not be empty")
	}
	return nil
}

func httpURL(v any) error {
	u, err := url.Parse(v.(string))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%q is not an http(s) URL", v)
	}
	return nil
}

// applyFile applies every non-secret key present in the config file. An
// invalid value fails the load so a typo is not silently replaced by a
// default.
func applyFile(cfg *Config, f *configFile) error {
	for _, s := range specs {
		raw, ok := f.values[s.key]
		if !ok || s.secret {
			continue
		}
		v, err := s.parse(raw)
		if err != nil {
			return fmt.Errorf("config file %s: %w", f.path, err)
		}
		s.apply(cfg, v)
	}
	return nil
}

// applyEnvOverrides applies WATCHFEED_* variables. Invalid values are
// reported and skipped.
func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		v, err := s.parse(raw)
		if err != nil {
			fmt.Fprintf(os.Stderr, "[WARN] ignoring %s: %v\n", s.env, err)
			continue
		}
		s.apply(cfg, v)
	}
}
