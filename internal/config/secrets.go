package config

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

const (
	apiTokenEnv = envPrefix + "API_TOKEN"
	apiTokenKey = "api_token"
)

func secretsFilePath() string {
	return xdgPath("XDG_DATA_HOME", filepath.Join(".local", "share"), "secrets.json")
}

// GetAPIToken returns the bearer token guarding the HTTP API. The
// WATCHFEED_API_TOKEN environment variable wins; otherwise the token is read
// from the secrets file and generated on first use.
func GetAPIToken() (string, error) {
	if tok := os.Getenv(apiTokenEnv); tok != "" {
		return tok, nil
	}
	return apiTokenFromFile(secretsFilePath())
}

func apiTokenFromFile(path string) (string, error) {
	secrets, err := readSecrets(path)
	if err != nil {
		return "", err
	}
	if tok := secrets[apiTokenKey]; tok != "" {
		return tok, nil
	}

	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating api token: %w", err)
	}
	tok := hex.EncodeToString(buf)
	secrets[apiTokenKey] = tok
	if err := writeSecrets(path, secrets); err != nil {
		return "", err
	}
	return tok, nil
}

func readSecrets(path string) (map[string]string, error) {
	secrets := make(map[string]string)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return secrets, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading secrets file: %w", err)
	}
	if err := json.Unmarshal(data, &secrets); err != nil {
		return nil, fmt.Errorf("parsing secrets file: %w", err)
	}
	if secrets == nil {
		secrets = make(map[string]string)
	}
	return secrets, nil
}

func writeSecrets(path string, secrets map[string]string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating secrets dir: %w", err)
	}
	out, err := json.MarshalIndent(secrets, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, out, 0o600)
}
