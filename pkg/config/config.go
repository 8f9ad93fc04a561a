// Package config loads and validates the teleclaude.yaml configuration file.
//
// Settings are loaded once at startup: the YAML is read, environment
// variables are expanded with {{.VAR}} template syntax, defaults are applied
// to unset fields, and the result is validated before any component starts.
package config

import (
	"os"
	"path/filepath"
	"time"
)

// Settings is the fully resolved runtime configuration.
type Settings struct {
	Telegram Telegram `yaml:"telegram"`
	Claude   Claude   `yaml:"claude"`
	Progress Progress `yaml:"progress"`
	Media    Media    `yaml:"media"`
	Database Database `yaml:"database"`
	API      API      `yaml:"api"`
}

// Telegram holds messaging transport settings.
type Telegram struct {
	// Token is the bot API token, usually supplied as {{.TELEGRAM_BOT_TOKEN}}.
	Token string `yaml:"token"`
	// AllowedUserIDs restricts the bot to the listed Telegram user ids.
	// Empty means no restriction.
	AllowedUserIDs []int64 `yaml:"allowed_user_ids"`
}

// Claude holds backend agent settings.
type Claude struct {
	// Binary is the CLI executable name or path.
	Binary string `yaml:"binary"`
	// ApprovedRoots bound all tool-driven file access. Every working
	// directory selected via the repo browser must live under one of them.
	ApprovedRoots []string `yaml:"approved_roots"`
	// DefaultDirectory is the working directory before the user picks one.
	DefaultDirectory string `yaml:"default_directory"`
	// Model overrides the CLI default model when set.
	Model string `yaml:"model"`
	// HistoryPath is the shared session history log (history.jsonl).
	HistoryPath string `yaml:"history_path"`
	// ProjectsRoot holds per-session transcripts written by the CLI.
	ProjectsRoot string `yaml:"projects_root"`
	// SkillsRoot is the personal skills directory.
	SkillsRoot string `yaml:"skills_root"`
	// CommandsRoot is the legacy personal commands directory.
	CommandsRoot string `yaml:"commands_root"`
	// PluginRegistryPath is the installed-plugins JSON registry.
	PluginRegistryPath string `yaml:"plugin_registry_path"`
	// SettingsPath is the shared settings file carrying enabledPlugins.
	SettingsPath string `yaml:"settings_path"`
	// IdleTimeout ends a user's backend connection after inactivity.
	IdleTimeout time.Duration `yaml:"idle_timeout"`
}

// Progress holds live progress message tuning.
type Progress struct {
	// EditInterval is the minimum gap between edits of the live message.
	EditInterval time.Duration `yaml:"edit_interval"`
	// RolloverThreshold is the rendered-size limit that forces a new message.
	RolloverThreshold int `yaml:"rollover_threshold"`
}

// Media holds attachment handling settings.
type Media struct {
	// AlbumWindow is the sliding quiet period before an album is released.
	AlbumWindow time.Duration `yaml:"album_window"`
}

// Database holds sqlite settings.
type Database struct {
	Path string `yaml:"path"`
}

// API holds the ops HTTP server settings.
type API struct {
	// Addr is the listen address. Empty disables the server.
	Addr string `yaml:"addr"`
}

// applyDefaults fills unset fields with built-in values.
func (s *Settings) applyDefaults() {
	home, _ := os.UserHomeDir()
	claudeDir := filepath.Join(home, ".claude")

	if s.Claude.Binary == "" {
		s.Claude.Binary = "claude"
	}
	if s.Claude.HistoryPath == "" {
		s.Claude.HistoryPath = filepath.Join(claudeDir, "history.jsonl")
	}
	if s.Claude.ProjectsRoot == "" {
		s.Claude.ProjectsRoot = filepath.Join(claudeDir, "projects")
	}
	if s.Claude.SkillsRoot == "" {
		s.Claude.SkillsRoot = filepath.Join(claudeDir, "skills")
	}
	if s.Claude.CommandsRoot == "" {
		s.Claude.CommandsRoot = filepath.Join(claudeDir, "commands")
	}
	if s.Claude.PluginRegistryPath == "" {
		s.Claude.PluginRegistryPath = filepath.Join(claudeDir, "plugins", "installed_plugins.json")
	}
	if s.Claude.SettingsPath == "" {
		s.Claude.SettingsPath = filepath.Join(claudeDir, "settings.json")
	}
	if s.Claude.IdleTimeout == 0 {
		s.Claude.IdleTimeout = time.Hour
	}
	if s.Claude.DefaultDirectory == "" && len(s.Claude.ApprovedRoots) > 0 {
		s.Claude.DefaultDirectory = s.Claude.ApprovedRoots[0]
	}
	if s.Progress.EditInterval == 0 {
		s.Progress.EditInterval = 2 * time.Second
	}
	if s.Progress.RolloverThreshold == 0 {
		s.Progress.RolloverThreshold = 4000
	}
	if s.Media.AlbumWindow == 0 {
		s.Media.AlbumWindow = time.Second
	}
	if s.Database.Path == "" {
		s.Database.Path = "teleclaude.db"
	}
}
