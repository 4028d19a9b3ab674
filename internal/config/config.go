// ABOUTME: Configuration loading and parsing for threadloom
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete threadloom configuration
type Config struct {
	Matrix       MatrixConfig       `yaml:"matrix"`
	Anthropic    AnthropicConfig    `yaml:"anthropic"`
	Conversation ConversationConfig `yaml:"conversation"`
	Cache        CacheConfig        `yaml:"cache"`
	Dedupe       DedupeConfig       `yaml:"dedupe"`
	Logging      LoggingConfig      `yaml:"logging"`
}

// MatrixConfig holds Matrix homeserver connection configuration
type MatrixConfig struct {
	Homeserver  string `yaml:"homeserver"`
	UserID      string `yaml:"user_id"`
	AccessToken string `yaml:"access_token"`
	// DeviceID pins the session for end-to-end encryption; leave empty to let
	// the homeserver assign one on first login.
	DeviceID string `yaml:"device_id"`
	// CryptoDBPath is the SQLite file backing the E2EE key store.
	CryptoDBPath string `yaml:"crypto_db_path"`
	// PickleKey encrypts the crypto store at rest.
	PickleKey string `yaml:"pickle_key"`
	// AllowedRooms restricts where sessions may start; empty means any room.
	AllowedRooms []string `yaml:"allowed_rooms"`
}

// AnthropicConfig holds model backend configuration
type AnthropicConfig struct {
	APIKey    string `yaml:"api_key"`
	Model     string `yaml:"model"`
	MaxTokens int    `yaml:"max_tokens"`
}

// ConversationConfig holds orchestrator behavior configuration
type ConversationConfig struct {
	// MentionToken marks a top-level message as addressed to the bot.
	// Defaults to the Matrix user's localpart mention if empty.
	MentionToken string `yaml:"mention_token"`
	SystemPrompt string `yaml:"system_prompt"`
	WorkingEmoji string `yaml:"working_emoji"`
	InlineLimit  int    `yaml:"inline_limit"`

	RequestTimeout time.Duration `yaml:"-"`

	// Raw string value for YAML unmarshaling
	RequestTimeoutRaw string `yaml:"request_timeout"`
}

// CacheConfig holds attachment cache configuration
type CacheConfig struct {
	// Path is the SQLite file for attachment bytes; empty selects the
	// in-memory cache.
	Path string `yaml:"path"`
}

// DedupeConfig holds event deduplication configuration
type DedupeConfig struct {
	TTL     time.Duration `yaml:"-"`
	MaxSize int           `yaml:"max_size"`

	// Raw string value for YAML unmarshaling
	TTLRaw string `yaml:"ttl"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Parse duration fields
	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	// Match ${VAR_NAME} pattern
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Matrix.Homeserver == "" {
		return fmt.Errorf("matrix.homeserver is required")
	}
	if c.Matrix.UserID == "" {
		return fmt.Errorf("matrix.user_id is required")
	}
	if c.Matrix.AccessToken == "" {
		return fmt.Errorf("matrix.access_token is required")
	}

	if c.Anthropic.APIKey == "" {
		return fmt.Errorf("anthropic.api_key is required")
	}
	if c.Anthropic.MaxTokens < 0 {
		return fmt.Errorf("anthropic.max_tokens must not be negative")
	}

	if c.Conversation.InlineLimit < 0 {
		return fmt.Errorf("conversation.inline_limit must not be negative")
	}

	if c.Dedupe.MaxSize < 0 {
		return fmt.Errorf("dedupe.max_size must not be negative")
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Conversation.RequestTimeoutRaw != "" {
		cfg.Conversation.RequestTimeout, err = time.ParseDuration(cfg.Conversation.RequestTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing request_timeout %q: %w", cfg.Conversation.RequestTimeoutRaw, err)
		}
	}

	if cfg.Dedupe.TTLRaw != "" {
		cfg.Dedupe.TTL, err = time.ParseDuration(cfg.Dedupe.TTLRaw)
		if err != nil {
			return fmt.Errorf("parsing dedupe ttl %q: %w", cfg.Dedupe.TTLRaw, err)
		}
	}

	return nil
}
