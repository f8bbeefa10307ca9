package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the configuration file looked up in the working directory.
const DefaultConfigFile = ".depthcrawl.yaml"

// candidateNames are tried in the working directory, then in the XDG config
// directory as config.yaml and config.toml.
var candidateNames = []string{DefaultConfigFile, ".depthcrawl.yml", ".depthcrawl.toml"}

// Load resolves the configuration file and returns the configuration with
// file values over defaults, together with the path that was read. Without
// any file the defaults are returned with an empty path. An explicit path
// that does not exist is an error.
func Load(explicit string) (*Config, string, error) {
	path := FindConfigFile(explicit)
	if path == "" {
		if explicit != "" {
			return nil, "", fmt.Errorf("%w: %s", ErrConfigNotFound, explicit)
		}
		return NewConfig(), "", nil
	}

	cfg, err := LoadConfigFile(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

// LoadConfigFile reads a YAML or TOML file, chosen by extension, over
// NewConfig defaults. Unknown keys are rejected.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // user-provided config path is intentional
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := NewConfig()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		// A file without documents decodes to io.EOF and keeps the defaults.
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	case ".toml":
		dec := toml.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
	return cfg, nil
}

// FindConfigFile searches for the configuration file in this order:
//  1. configPath, when given
//  2. .depthcrawl.yaml, .depthcrawl.yml or .depthcrawl.toml in the working directory
//  3. config.yaml or config.toml in the XDG config directory
//
// It returns an empty string when nothing is found.
func FindConfigFile(configPath string) string {
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}
		return ""
	}

	if cwd, err := os.Getwd(); err == nil {
		for _, name := range candidateNames {
			p := filepath.Join(cwd, name)
			if _, err := os.Stat(p); err == nil {
				return p
			}
		}
	}

	for _, name := range []string{"config.yaml", "config.toml"} {
		p := filepath.Join(XDGConfigDir(), name)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}
