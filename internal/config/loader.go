package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"gopkg.in/yaml.v3"

	"integrate/pkg/logging"
)

const (
	userConfigDir  = ".config/integrate"
	configFileName = "config.yaml"
)

// DefaultConfigPath returns ~/.config/integrate.
func DefaultConfigPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine user config directory: %w", err)
	}
	return filepath.Join(homeDir, userConfigDir), nil
}

// Only the braced form is expanded, so literal '$' in values survives.
var envRefPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

func expandEnv(data []byte) []byte {
	return envRefPattern.ReplaceAllFunc(data, func(ref []byte) []byte {
		name := string(envRefPattern.FindSubmatch(ref)[1])
		value, ok := os.LookupEnv(name)
		if !ok {
			logging.Warn("Config", "Environment variable %s is not set", name)
		}
		return []byte(value)
	})
}

// Load reads config.yaml from configPath on top of the defaults and
// validates the result. A missing file yields the defaults.
func Load(configPath string) (Config, error) {
	configFilePath := filepath.Join(configPath, configFileName)
	cfg := DefaultConfig()

	data, err := os.ReadFile(configFilePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logging.Info("Config", "No config.yaml found at %s, using defaults", configFilePath)
			return cfg, nil
		}
		return Config{}, fmt.Errorf("failed to read %s: %w", configFilePath, err)
	}

	if err := yaml.Unmarshal(expandEnv(data), &cfg); err != nil {
		return Config{}, NewConfigurationError(configFilePath, "", "", ErrorTypeParse, err.Error())
	}
	if err := cfg.validate(configFilePath); err != nil {
		return Config{}, err
	}

	logging.Info("Config", "Loaded configuration from %s", configFilePath)
	return cfg, nil
}
