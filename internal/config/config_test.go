// ABOUTME: Tests for YAML configuration loading, env expansion, and validation
// ABOUTME: Uses temp files and t.Setenv to exercise the full Load path

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
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

const validConfig = `
matrix:
  homeserver: https://matrix.example.org
  user_id: "@loom:example.org"
  access_token: syt_secret
anthropic:
  api_key: sk-ant-test
  model: claude-sonnet-4-5
  max_tokens: 4096
conversation:
  mention_token: "@loom"
  system_prompt: "You are a helpful assistant."
  inline_limit: 3000
  request_timeout: 5m
dedupe:
  ttl: 10m
  max_size: 5000
logging:
  level: debug
  format: json
`

func TestLoad_ValidConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, validConfig))
	require.NoError(t, err)

	assert.Equal(t, "https://matrix.example.org", cfg.Matrix.Homeserver)
	assert.Equal(t, "@loom:example.org", cfg.Matrix.UserID)
	assert.Equal(t, "claude-sonnet-4-5", cfg.Anthropic.Model)
	assert.Equal(t, 4096, cfg.Anthropic.MaxTokens)
	assert.Equal(t, "@loom", cfg.Conversation.MentionToken)
	assert.Equal(t, 3000, cfg.Conversation.InlineLimit)
	assert.Equal(t, 5*time.Minute, cfg.Conversation.RequestTimeout)
	assert.Equal(t, 10*time.Minute, cfg.Dedupe.TTL)
	assert.Equal(t, 5000, cfg.Dedupe.MaxSize)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoad_ExpandsEnvVars(t *testing.T) {
	t.Setenv("TL_TOKEN", "syt_from_env")
	t.Setenv("TL_API_KEY", "sk-ant-from-env")

	cfg, err := Load(writeConfig(t, `
matrix:
  homeserver: https://matrix.example.org
  user_id: "@loom:example.org"
  access_token: ${TL_TOKEN}
anthropic:
  api_key: ${TL_API_KEY}
`))
	require.NoError(t, err)
	assert.Equal(t, "syt_from_env", cfg.Matrix.AccessToken)
	assert.Equal(t, "sk-ant-from-env", cfg.Anthropic.APIKey)
}

func TestLoad_UnsetEnvVarBecomesEmpty(t *testing.T) {
	_, err := Load(writeConfig(t, `
matrix:
  homeserver: https://matrix.example.org
  user_id: "@loom:example.org"
  access_token: ${TL_DEFINITELY_UNSET_VAR}
anthropic:
  api_key: sk-ant-test
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "matrix.access_token is required")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading config file")
}

func TestLoad_MalformedYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "matrix: [not: a: mapping"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing config file")
}

func TestLoad_BadDuration(t *testing.T) {
	_, err := Load(writeConfig(t, `
matrix:
  homeserver: https://matrix.example.org
  user_id: "@loom:example.org"
  access_token: tok
anthropic:
  api_key: sk-ant-test
conversation:
  request_timeout: five minutes
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing request_timeout")
}

func TestValidate_RequiredFields(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "missing homeserver",
			mutate:  func(c *Config) { c.Matrix.Homeserver = "" },
			wantErr: "matrix.homeserver is required",
		},
		{
			name:    "missing user id",
			mutate:  func(c *Config) { c.Matrix.UserID = "" },
			wantErr: "matrix.user_id is required",
		},
		{
			name:    "missing access token",
			mutate:  func(c *Config) { c.Matrix.AccessToken = "" },
			wantErr: "matrix.access_token is required",
		},
		{
			name:    "missing api key",
			mutate:  func(c *Config) { c.Anthropic.APIKey = "" },
			wantErr: "anthropic.api_key is required",
		},
		{
			name:    "negative max tokens",
			mutate:  func(c *Config) { c.Anthropic.MaxTokens = -1 },
			wantErr: "anthropic.max_tokens",
		},
		{
			name:    "negative inline limit",
			mutate:  func(c *Config) { c.Conversation.InlineLimit = -1 },
			wantErr: "conversation.inline_limit",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Config{
				Matrix: MatrixConfig{
					Homeserver:  "https://matrix.example.org",
					UserID:      "@loom:example.org",
					AccessToken: "tok",
				},
				Anthropic: AnthropicConfig{APIKey: "sk-ant-test"},
			}
			tt.mutate(&cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidate_MinimalConfigPasses(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
matrix:
  homeserver: https://matrix.example.org
  user_id: "@loom:example.org"
  access_token: tok
anthropic:
  api_key: sk-ant-test
`))
	require.NoError(t, err)
	assert.Zero(t, cfg.Conversation.RequestTimeout)
	assert.Empty(t, cfg.Cache.Path)
}
