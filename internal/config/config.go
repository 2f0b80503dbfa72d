package config

import (
	"fmt"
	"time"
)

type Config struct {
	Server    ServerConfig
	Storage   StorageConfig
	Log       LogConfig
	Provider  ProviderConfig
	AI        AIConfig
	Scheduler SchedulerConfig
}

type ServerConfig struct {
	Port int
	// OwnerID is used for requests that carry no X-Owner-ID header.
	OwnerID string
}

type StorageConfig struct {
	DataDir string
}

type LogConfig struct {
	Level string
}

type ProviderConfig struct {
	BaseURL       string
	APIKey        string
	RatePerMinute int
	PageSize      int
}

type AIConfig struct {
	MaxOutputTokens   int
	OpenRouterBaseURL string
	OllamaBaseURL     string
	GeminiBaseURL     string
}

type SchedulerConfig struct {
	Enabled      bool
	PollInterval string
}

// PollDuration parses the scheduler poll interval.
func (s SchedulerConfig) PollDuration() (time.Duration, error) {
	d, err := time.ParseDuration(s.PollInterval)
	if err != nil {
		return 0, fmt.Errorf("invalid scheduler.poll_interval %q: %w", s.PollInterval, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("scheduler.poll_interval must be positive, got %q", s.PollInterval)
	}
	return d, nil
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:    4100,
			OwnerID: "local",
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Log: LogConfig{
			Level: "info",
		},
		Provider: ProviderConfig{
			BaseURL:       "https://api.twitterapi.io",
			RatePerMinute: 60,
			PageSize:      30,
		},
		AI: AIConfig{
			MaxOutputTokens:   1024,
			OpenRouterBaseURL: "https://openrouter.ai/api/v1",
			OllamaBaseURL:     "http://localhost:11434",
		},
		Scheduler: SchedulerConfig{
			Enabled:      true,
			PollInterval: "1m",
		},
	}
}

// Load reads configuration from $XDG_CONFIG_HOME/watchfeed/config.json,
// then applies WATCHFEED_* environment overrides. Secrets are only read from
// the environment.
func Load() (Config, error) {
	return loadWith(readConfigFile(configFilePath()))
}

func loadWith(f *configFile) (Config, error) {
	cfg := defaults()
	if err := applyFile(&cfg, f); err != nil {
		return Config{}, err
	}
	applyEnvOverrides(&cfg)
	return cfg, nil
}
