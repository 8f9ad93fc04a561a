package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "teleclaude.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestInitialize_Valid(t *testing.T) {
	path := writeConfig(t, `
telegram:
  token: "12345:abc"
  allowed_user_ids: [42]
claude:
  approved_roots: ["/work"]
  idle_timeout: 30m
progress:
  edit_interval: 3s
`)

	settings, err := Initialize(path)
	require.NoError(t, err)

	assert.Equal(t, "12345:abc", settings.Telegram.Token)
	assert.Equal(t, []int64{42}, settings.Telegram.AllowedUserIDs)
	assert.Equal(t, []string{"/work"}, settings.Claude.ApprovedRoots)
	assert.Equal(t, 30*time.Minute, settings.Claude.IdleTimeout)
	assert.Equal(t, 3*time.Second, settings.Progress.EditInterval)
}

func TestInitialize_Defaults(t *testing.T) {
	path := writeConfig(t, `
telegram:
  token: "12345:abc"
claude:
  approved_roots: ["/work"]
`)

	settings, err := Initialize(path)
	require.NoError(t, err)

	assert.Equal(t, "claude", settings.Claude.Binary)
	assert.Equal(t, time.Hour, settings.Claude.IdleTimeout)
	assert.Equal(t, "/work", settings.Claude.DefaultDirectory)
	assert.Equal(t, 2*time.Second, settings.Progress.EditInterval)
	assert.Equal(t, 4000, settings.Progress.RolloverThreshold)
	assert.Equal(t, time.Second, settings.Media.AlbumWindow)
	assert.Contains(t, settings.Claude.HistoryPath, "history.jsonl")
	assert.NotEmpty(t, settings.Database.Path)
}

func TestInitialize_EnvExpansion(t *testing.T) {
	t.Setenv("TEST_BOT_TOKEN", "99:secret")

	path := writeConfig(t, `
telegram:
  token: "{{.TEST_BOT_TOKEN}}"
claude:
  approved_roots: ["/work"]
`)

	settings, err := Initialize(path)
	require.NoError(t, err)
	assert.Equal(t, "99:secret", settings.Telegram.Token)
}

func TestInitialize_MissingFile(t *testing.T) {
	_, err := Initialize("/nonexistent/teleclaude.yaml")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConfigNotFound)
}

func TestInitialize_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "telegram: [not: valid")
	_, err := Initialize(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidYAML)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Settings)
		wantErr error
	}{
		{
			name:    "missing token",
			mutate:  func(s *Settings) { s.Telegram.Token = "" },
			wantErr: ErrMissingRequiredField,
		},
		{
			name:    "no approved roots",
			mutate:  func(s *Settings) { s.Claude.ApprovedRoots = nil },
			wantErr: ErrMissingRequiredField,
		},
		{
			name:    "relative approved root",
			mutate:  func(s *Settings) { s.Claude.ApprovedRoots = []string{"work"} },
			wantErr: ErrInvalidValue,
		},
		{
			name:    "tiny rollover threshold",
			mutate:  func(s *Settings) { s.Progress.RolloverThreshold = 10 },
			wantErr: ErrInvalidValue,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &Settings{
				Telegram: Telegram{Token: "t"},
				Claude:   Claude{ApprovedRoots: []string{"/work"}},
			}
			s.applyDefaults()
			tt.mutate(s)
			err := s.validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)

			var verr *ValidationError
			assert.ErrorAs(t, err, &verr)
		})
	}
}
