package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

const appDir = "watchfeed"

// xdgPath joins name under $<env>/watchfeed, falling back to
// ~/<homeRel>/watchfeed and then to the working directory.
func xdgPath(env, homeRel, name string) string {
	dir := os.Getenv(env)
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return filepath.Join(".", appDir, name)
		}
		dir = filepath.Join(home, homeRel)
	}
	return filepath.Join(dir, appDir, name)
}

func defaultDataDir() string {
	return xdgPath("XDG_DATA_HOME", filepath.Join(".local", "share"), "")
}

func configFilePath() string {
	return xdgPath("XDG_CONFIG_HOME", ".config", "config.json")
}

// configFile is the flat JSON object behind `watchfeed config`. Keys are the
// dotted names of the specs table; values are stored typed (numbers, bools,
// strings) and checked against their spec when read.
type configFile struct {
	path   string
	values map[string]any
}

// readConfigFile loads path. A missing file is an empty config; an unreadable
// or malformed one is reported on stderr and treated as empty, so a broken
// file never blocks `config set` from repairing it.
func readConfigFile(path string) *configFile {
	f := &configFile{path: path, values: make(map[string]any)}
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "[WARN] could not read config file %s: %v. Using default values.\n", path, err)
		}
		return f
	}
	if err := json.Unmarshal(data, &f.values); err != nil {
		fmt.Fprintf(os.Stderr, "[WARN] could not parse config file %s: %v. Using default values.\n", path, err)
		f.values = make(map[string]any)
	}
	return f
}

func (f *configFile) write() error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}
	data, err := json.MarshalIndent(f.values, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(f.path, data, 0o600)
}
