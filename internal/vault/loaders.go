package vault

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Loader retrieves provider secrets from a source (env vars, file, remote
// vault). Keys are provider names.
type Loader func() (map[string]string, error)

// EnvLoader returns a Loader that reads environment variables with the
// given prefix. "BRAINSTEM_SECRET_OPENAI=sk-x" becomes provider "openai".
// Missing variables are silently omitted.
func EnvLoader(prefix string) Loader {
	return func() (map[string]string, error) {
		vals := make(map[string]string)
		for _, kv := range os.Environ() {
			key, val, ok := strings.Cut(kv, "=")
			if !ok || val == "" {
				continue
			}
			name, found := strings.CutPrefix(key, prefix)
			if !found || name == "" {
				continue
			}
			vals[strings.ToLower(name)] = val
		}
		return vals, nil
	}
}

// credentialsFile is the on-disk shape of credentials.toml.
type credentialsFile struct {
	Providers map[string]string `toml:"providers"`
}

// FileLoader returns a Loader that reads a credentials.toml file. A missing
// file yields an empty map; a malformed file is an error.
func FileLoader(path string) Loader {
	return func() (map[string]string, error) {
		var cf credentialsFile
		if _, err := toml.DecodeFile(path, &cf); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return map[string]string{}, nil
			}
			return nil, fmt.Errorf("parse credentials file %s: %w", path, err)
		}
		if cf.Providers == nil {
			return map[string]string{}, nil
		}
		return cf.Providers, nil
	}
}

// DefaultCredentialsPath returns the conventional credentials.toml location:
// $BRAINSTEM_CREDENTIALS if set, otherwise ~/.config/brainstem/credentials.toml.
func DefaultCredentialsPath() string {
	if p := os.Getenv("BRAINSTEM_CREDENTIALS"); p != "" {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "credentials.toml"
	}
	return filepath.Join(home, ".config", "brainstem", "credentials.toml")
}
