package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeTempConfig(t *testing.T, content string) *configFile {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return readConfigFile(path)
}

// TestDefaults verifies all default values are applied when loading an empty config file.
func TestDefaults(t *testing.T) {
	b := writeTempConfig(t, `{}`)

	cfg, err := loadWith(b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 4100 {
		t.Errorf("Server.Port = %d, want 4100", cfg.Server.Port)
	}
	if cfg.Server.OwnerID != "local" {
		t.Errorf("Server.OwnerID = %q, want %q", cfg.Server.OwnerID, "local")
	}
	if cfg.Provider.RatePerMinute != 60 {
		t.Errorf("Provider.RatePerMinute = %d, want 60", cfg.Provider.RatePerMinute)
	}
	if cfg.Provider.PageSize != 30 {
		t.Errorf("Provider.PageSize = %d, want 30", cfg.Provider.PageSize)
	}
	if cfg.AI.MaxOutputTokens != 1024 {
		t.Errorf("AI.MaxOutputTokens = %d, want 1024", cfg.AI.MaxOutputTokens)
	}
	if cfg.AI.OllamaBaseURL != "http://localhost:11434" {
		t.Errorf("AI.OllamaBaseURL = %q", cfg.AI.OllamaBaseURL)
	}
	if !cfg.Scheduler.Enabled {
		t.Error("Scheduler.Enabled = false, want true")
	}
	if d, err := cfg.Scheduler.PollDuration(); err != nil || d != time.Minute {
		t.Errorf("PollDuration() = %v, %v; want 1m", d, err)
	}
}

// TestFileParsing verifies that fields are read from the JSON config file.
func TestFileParsing(t *testing.T) {
	b := writeTempConfig(t, `{
  "server.port": 5000,
  "server.owner_id": "alice",
  "storage.data_dir": "/tmp/watchfeed-test",
  "log.level": "debug",
  "provider.base_url": "http://upstream.test",
  "provider.page_size": "50",
  "openrouter.base_url": "http://router.test",
  "scheduler.enabled": false,
  "scheduler.poll_interval": "30s"
}`)
	t.Setenv("WATCHFEED_SERVER_PORT", "")

	cfg, err := loadWith(b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 5000 {
		t.Errorf("Server.Port = %d, want 5000", cfg.Server.Port)
	}
	if cfg.Server.OwnerID != "alice" {
		t.Errorf("Server.OwnerID = %q", cfg.Server.OwnerID)
	}
	if cfg.Storage.DataDir != "/tmp/watchfeed-test" {
		t.Errorf("Storage.DataDir = %q", cfg.Storage.DataDir)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q", cfg.Log.Level)
	}
	if cfg.Provider.BaseURL != "http://upstream.test" {
		t.Errorf("Provider.BaseURL = %q", cfg.Provider.BaseURL)
	}
	if cfg.Provider.PageSize != 50 {
		t.Errorf("Provider.PageSize = %d, want 50", cfg.Provider.PageSize)
	}
	if cfg.AI.OpenRouterBaseURL != "http://router.test" {
		t.Errorf("AI.OpenRouterBaseURL = %q", cfg.AI.OpenRouterBaseURL)
	}
	if cfg.Scheduler.Enabled {
		t.Error("Scheduler.Enabled = true, want false")
	}
	if d, _ := cfg.Scheduler.PollDuration(); d != 30*time.Second {
		t.Errorf("PollDuration() = %v, want 30s", d)
	}
}

// TestEnvOverride verifies that environment variables override file values.
func TestEnvOverride(t *testing.T) {
	b := writeTempConfig(t, `{"server.port": 5000}`)

	t.Setenv("WATCHFEED_SERVER_PORT", "6000")
	t.Setenv("WATCHFEED_PROVIDER_API_KEY", "env-key")
	t.Setenv("WATCHFEED_SCHEDULER_ENABLED", "false")

	cfg, err := loadWith(b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 6000 {
		t.Errorf("Server.Port = %d, want 6000", cfg.Server.Port)
	}
	if cfg.Provider.APIKey != "env-key" {
		t.Errorf("Provider.APIKey = %q, want %q", cfg.Provider.APIKey, "env-key")
	}
	if cfg.Scheduler.Enabled {
		t.Error("Scheduler.Enabled = true, want false")
	}
}

// TestSecretNotReadFromFile verifies secrets only come from the environment.
func TestSecretNotReadFromFile(t *testing.T) {
	b := writeTempConfig(t, `{"provider.api_key": "file-key"}`)
	t.Setenv("WATCHFEED_PROVIDER_API_KEY", "")

	cfg, err := loadWith(b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Provider.APIKey != "" {
		t.Errorf("Provider.APIKey = %q, want empty", cfg.Provider.APIKey)
	}
}

func TestInvalidIntInFile(t *testing.T) {
	b := writeTempConfig(t, `{"server.port": 12.5}`)

	if _, err := loadWith(b); err == nil {
		t.Fatal("expected error for non-integer port")
	}
}

func TestEmptyOwnerRejected(t *testing.T) {
	b := writeTempConfig(t, `{"server.owner_id": ""}`)

	_, err := loadWith(b)
	if err == nil || !strings.Contains(err.Error(), "owner_id") {
		t.Fatalf("err = %v, want owner_id error", err)
	}
}

func TestInvalidValuesInFileRejected(t *testing.T) {
	for _, content := range []string{
		`{"log.level": "verbose"}`,
		`{"server.port": 70000}`,
		`{"provider.page_size": 0}`,
		`{"provider.base_url": "upstream.test"}`,
		`{"scheduler.poll_interval": "soon"}`,
		`{"scheduler.enabled": "maybe"}`,
	} {
		b := writeTempConfig(t, content)
		if _, err := loadWith(b); err == nil {
			t.Errorf("loadWith(%s) returned nil error", content)
		}
	}
}

func TestInvalidEnvValueKeepsPrevious(t *testing.T) {
	b := writeTempConfig(t, `{"log.level": "warn"}`)
	t.Setenv("WATCHFEED_LOG_LEVEL", "loud")
	t.Setenv("WATCHFEED_PROVIDER_RATE_PER_MINUTE", "0")

	cfg, err := loadWith(b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("Log.Level = %q, want warn", cfg.Log.Level)
	}
	if cfg.Provider.RatePerMinute != 60 {
		t.Errorf("Provider.RatePerMinute = %d, want 60", cfg.Provider.RatePerMinute)
	}
}

func TestPollDurationInvalid(t *testing.T) {
	for _, v := range []string{"soon", "0s", "-1m"} {
		if _, err := (SchedulerConfig{PollInterval: v}).PollDuration(); err == nil {
			t.Errorf("PollDuration(%q) returned nil error", v)
		}
	}
}

func TestSetKey(t *testing.T) {
	b := writeTempConfig(t, `{}`)

	if err := setKey(b, "server.port", "7000"); err != nil {
		t.Fatalf("setKey port: %v", err)
	}
	if err := setKey(b, "scheduler.enabled", "false"); err != nil {
		t.Fatalf("setKey enabled: %v", err)
	}
	if err := setKey(b, "server.port", "abc"); err == nil {
		t.Error("expected error for non-integer value")
	}
	if err := setKey(b, "scheduler.poll_interval", "soon"); err == nil {
		t.Error("expected error for invalid duration")
	}
	if err := setKey(b, "provider.rate_per_minute", "0"); err == nil {
		t.Error("expected error for zero rate")
	}
	if err := setKey(b, "provider.api_key", "x"); err == nil {
		t.Error("expected error for secret key")
	}
	if err := setKey(b, "nope", "x"); err == nil || !strings.Contains(err.Error(), "server.port") {
		t.Errorf("unknown key err = %v, want list of valid keys", err)
	}

	cfg, err := loadWith(readConfigFile(b.path))
	if err != nil {
		t.Fatalf("loadWith: %v", err)
	}
	if cfg.Server.Port != 7000 {
		t.Errorf("Server.Port = %d, want 7000", cfg.Server.Port)
	}
	if cfg.Scheduler.Enabled {
		t.Error("Scheduler.Enabled = true, want false")
	}
}

func TestShowAllHidesSecrets(t *testing.T) {
	cfg := defaults()
	cfg.Provider.APIKey = "hidden"
	for _, k := range ShowAll(cfg) {
		if k.Key == "provider.api_key" {
			t.Fatal("ShowAll listed a secret key")
		}
		if k.Value == "hidden" {
			t.Fatal("ShowAll leaked a secret value")
		}
	}
	for _, k := range ValidKeys() {
		if k == "provider.api_key" {
			t.Fatal("ValidKeys listed a secret key")
		}
	}
}

func TestAPITokenGeneratedOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secrets.json")

	first, err := apiTokenFromFile(path)
	if err != nil {
		t.Fatalf("apiTokenFromFile: %v", err)
	}
	if len(first) != 64 {
		t.Errorf("token length = %d, want 64", len(first))
	}
	second, err := apiTokenFromFile(path)
	if err != nil {
		t.Fatalf("apiTokenFromFile: %v", err)
	}
	if first != second {
		t.Error("token changed between calls")
	}
}

func TestAPITokenEnvWins(t *testing.T) {
	t.Setenv("WATCHFEED_API_TOKEN", "from-env")
	tok, err := GetAPIToken()
	if err != nil {
		t.Fatalf("GetAPIToken: %v", err)
	}
	if tok != "from-env" {
		t.Errorf("token = %q, want from-env", tok)
	}
}
