package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/spf13/viper"
)

// ConfigLoader handles loading configuration from files.
type ConfigLoader interface {
	Load(path string) (*Config, error)
	LoadWithDefaults(path string) (*Config, error)
}

// viperConfigLoader implements ConfigLoader using Viper.
type viperConfigLoader struct {
	validator ConfigValidator
}

// NewConfigLoader creates a new ConfigLoader instance.
func NewConfigLoader(validator ConfigValidator) ConfigLoader {
	return &viperConfigLoader{
		validator: validator,
	}
}

// Load loads configuration from the specified file path.
// Returns an error if the file doesn't exist or cannot be parsed.
func (l *viperConfigLoader) Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Interpolate ${VAR} references in string-valued fields so secrets
	// never have to live in the file itself.
	applyInterpolation(&cfg)

	if err := l.validator.Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// LoadWithDefaults loads configuration from the specified file path.
// If the file doesn't exist, returns the default configuration.
func (l *viperConfigLoader) LoadWithDefaults(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := DefaultConfig()
		if err := l.validator.Validate(cfg); err != nil {
			return nil, fmt.Errorf("default configuration validation failed: %w", err)
		}
		return cfg, nil
	}

	return l.Load(path)
}

// envVarPattern matches ${VAR_NAME} references.
var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// interpolateString replaces ${VAR_NAME} with environment variable
// values; unresolved references stay literal.
func interpolateString(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := strings.TrimSuffix(strings.TrimPrefix(match, "${"), "}")
		if envValue := os.Getenv(varName); envValue != "" {
			return envValue
		}
		return match
	})
}

// applyInterpolation interpolates environment variables into every
// string field that may carry a path or credential.
func applyInterpolation(cfg *Config) {
	cfg.Storage.Path = interpolateString(cfg.Storage.Path)
	cfg.Vector.Path = interpolateString(cfg.Vector.Path)

	cfg.Embedder.APIKey = interpolateString(cfg.Embedder.APIKey)
	cfg.Embedder.BaseURL = interpolateString(cfg.Embedder.BaseURL)
	cfg.Embedder.Model = interpolateString(cfg.Embedder.Model)

	cfg.LLM.Provider = interpolateString(cfg.LLM.Provider)
	cfg.LLM.Model = interpolateString(cfg.LLM.Model)
	cfg.LLM.APIKey = interpolateString(cfg.LLM.APIKey)
	cfg.LLM.BaseURL = interpolateString(cfg.LLM.BaseURL)

	cfg.Sandbox.Interpreter = interpolateString(cfg.Sandbox.Interpreter)
	cfg.Sandbox.TempDir = interpolateString(cfg.Sandbox.TempDir)

	cfg.Logging.Level = interpolateString(cfg.Logging.Level)
	cfg.Logging.Format = interpolateString(cfg.Logging.Format)

	cfg.Notify.SMTPHost = interpolateString(cfg.Notify.SMTPHost)
	cfg.Notify.SMTPUser = interpolateString(cfg.Notify.SMTPUser)
	cfg.Notify.SMTPPassword = interpolateString(cfg.Notify.SMTPPassword)
	cfg.Notify.From = interpolateString(cfg.Notify.From)
}
