// Package config loads the duetd server configuration from a YAML file with
// ${VAR} environment expansion, fills defaults and validates the result.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the duetd server configuration.
type Config struct {
	HTTP         HTTPConfig         `yaml:"http"`
	Providers    ProvidersConfig    `yaml:"providers"`
	Gateway      GatewayConfig      `yaml:"gateway"`
	Conversation ConversationConfig `yaml:"conversation"`
	Storage      StorageConfig      `yaml:"storage"`
	Logging      LoggingConfig      `yaml:"logging"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// ProvidersConfig holds model provider credentials and model selection. An
// empty APIKey disables that provider.
type ProvidersConfig struct {
	OpenAI    OpenAIConfig    `yaml:"openai"`
	Anthropic AnthropicConfig `yaml:"anthropic"`
}

// OpenAIConfig holds OpenAI settings.
type OpenAIConfig struct {
	APIKey         string `yaml:"api_key"`
	Model          string `yaml:"model"`
	EmbeddingModel string `yaml:"embedding_model"`
}

// AnthropicConfig holds Anthropic settings.
type AnthropicConfig struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

// GatewayConfig holds retry and throttling settings for the generation
// gateway.
type GatewayConfig struct {
	MaxAttempts       int `yaml:"max_attempts"`
	InitialBackoffSec int `yaml:"initial_backoff_sec"`
	WindowLimit       int `yaml:"window_limit"`
	WindowSec         int `yaml:"window_sec"`
	LocalEmbeddingDim int `yaml:"local_embedding_dim"`
}

// ConversationConfig holds the session timing parameters.
type ConversationConfig struct {
	TotalSec         int `yaml:"total_sec"`
	WrapThresholdSec int `yaml:"wrap_threshold_sec"`
	TurnIntervalSec  int `yaml:"turn_interval_sec"`
}

// StorageConfig selects and configures the persistence backend.
type StorageConfig struct {
	// Driver is "memory" or "redis".
	Driver        string   `yaml:"driver"`
	Addrs         []string `yaml:"addrs"`
	Username      string   `yaml:"username"`
	Password      string   `yaml:"password"`
	DB            int      `yaml:"db"`
	KeyPrefix     string   `yaml:"key_prefix"`
	SessionTTLSec int      `yaml:"session_ttl_sec"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json or text
}

// Load reads configuration from the given YAML file, substitutes ${VAR} and
// ${VAR:-default} expressions from the environment, applies defaults and
// validates.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	return Parse(data)
}

// Parse builds a Config from raw YAML bytes.
func Parse(data []byte) (Config, error) {
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Default returns the configuration used when no file is given: in-memory
// storage, local embeddings, no providers.
func Default() Config {
	var cfg Config
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.Port <= 0 {
		c.HTTP.Port = 8080
	}
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 10
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Gateway.MaxAttempts <= 0 {
		c.Gateway.MaxAttempts = 3
	}
	if c.Gateway.InitialBackoffSec <= 0 {
		c.Gateway.InitialBackoffSec = 1
	}
	if c.Gateway.WindowLimit <= 0 {
		c.Gateway.WindowLimit = 60
	}
	if c.Gateway.WindowSec <= 0 {
		c.Gateway.WindowSec = 60
	}
	if c.Gateway.LocalEmbeddingDim <= 0 {
		c.Gateway.LocalEmbeddingDim = 256
	}
	if c.Conversation.TotalSec <= 0 {
		c.Conversation.TotalSec = 180
	}
	if c.Conversation.WrapThresholdSec <= 0 {
		c.Conversation.WrapThresholdSec = 170
	}
	if c.Conversation.TurnIntervalSec <= 0 {
		c.Conversation.TurnIntervalSec = 6
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "memory"
	}
	if c.Storage.KeyPrefix == "" {
		c.Storage.KeyPrefix = "duetmatch"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	switch c.Storage.Driver {
	case "memory":
	case "redis":
		if len(c.Storage.Addrs) == 0 {
			return fmt.Errorf("storage.addrs is required for the redis driver")
		}
	default:
		return fmt.Errorf("storage.driver must be \"memory\" or \"redis\", got %q", c.Storage.Driver)
	}
	if c.Conversation.WrapThresholdSec >= c.Conversation.TotalSec {
		return fmt.Errorf("conversation.wrap_threshold_sec (%d) must be below conversation.total_sec (%d)",
			c.Conversation.WrapThresholdSec, c.Conversation.TotalSec)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error, got %q", c.Logging.Level)
	}
	return nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment
// variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1])
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
