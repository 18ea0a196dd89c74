package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
	"gopkg.in/yaml.v3"

	"url-spider/pkg/utils"
)

const appName = "url-spider"

// DefaultPath returns $XDG_CONFIG_HOME/url-spider/config.yaml
func DefaultPath() string {
	return filepath.Join(xdg.ConfigHome, appName, "config.yaml")
}

// DefaultStateDir returns the directory used for on-disk visited sets when state_dir is unset
func DefaultStateDir() string {
	return filepath.Join(xdg.StateHome, appName)
}

// Load reads and parses a YAML config file. A missing file at the default path is not an error;
// the zero config is returned so Validate can fill in defaults.
func Load(path string) (*AppConfig, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return &AppConfig{}, nil
		}
		return nil, fmt.Errorf("%w: read config %s: %w", utils.ErrFilesystem, path, err)
	}

	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: parse config %s: %w", utils.ErrConfigValidation, path, err)
	}
	return &cfg, nil
}

// LoadAndValidate loads the file and applies defaults
func LoadAndValidate(path string) (*AppConfig, []string, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, nil, err
	}
	warnings, err := cfg.Validate()
	if err != nil {
		return nil, warnings, err
	}
	if cfg.StateDir == "" {
		cfg.StateDir = DefaultStateDir()
	}
	return cfg, warnings, nil
}
