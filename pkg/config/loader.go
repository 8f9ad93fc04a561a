package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Initialize loads, validates, and returns ready-to-use configuration.
//
// Steps performed:
//  1. Read the YAML file
//  2. Expand environment variables ({{.VAR}} syntax)
//  3. Parse YAML into Settings
//  4. Apply default values
//  5. Validate
func Initialize(path string) (*Settings, error) {
	log := slog.With("config_file", path)
	log.Info("Initializing configuration")

	settings, err := load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := settings.validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	log.Info("Configuration initialized successfully",
		"approved_roots", len(settings.Claude.ApprovedRoots),
		"api_enabled", settings.API.Addr != "")

	return settings, nil
}

func load(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return nil, err
	}

	data = ExpandEnv(data)

	var settings Settings
	if err := yaml.Unmarshal(data, &settings); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}

	settings.applyDefaults()
	return &settings, nil
}

func (s *Settings) validate() error {
	if s.Telegram.Token == "" {
		return NewValidationError("telegram", "token", ErrMissingRequiredField)
	}
	if len(s.Claude.ApprovedRoots) == 0 {
		return NewValidationError("claude", "approved_roots", ErrMissingRequiredField)
	}
	for i, root := range s.Claude.ApprovedRoots {
		if !filepath.IsAbs(root) {
			return NewValidationError("claude",
				fmt.Sprintf("approved_roots[%d]", i), ErrInvalidValue)
		}
	}
	if s.Claude.IdleTimeout < 0 {
		return NewValidationError("claude", "idle_timeout", ErrInvalidValue)
	}
	if s.Progress.RolloverThreshold < 100 {
		return NewValidationError("progress", "rollover_threshold", ErrInvalidValue)
	}
	return nil
}
