package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/kimjoonhwaan/metaworkflow/internal/memory/embedder"
)

// Config is the root configuration for the metaworkflow engine.
type Config struct {
	Storage   StorageConfig           `mapstructure:"storage" yaml:"storage" validate:"required"`
	Vector    VectorConfig            `mapstructure:"vector" yaml:"vector"`
	Embedder  embedder.EmbedderConfig `mapstructure:"embedder" yaml:"embedder"`
	LLM       LLMConfig               `mapstructure:"llm" yaml:"llm"`
	Sandbox   SandboxConfig           `mapstructure:"sandbox" yaml:"sandbox"`
	HTTP      HTTPConfig              `mapstructure:"http" yaml:"http"`
	Knowledge KnowledgeConfig         `mapstructure:"knowledge" yaml:"knowledge"`
	Domains   []DomainConfig          `mapstructure:"domains" yaml:"domains,omitempty"`
	Logging   LoggingConfig           `mapstructure:"logging" yaml:"logging"`
	Notify    NotifyConfig            `mapstructure:"notify" yaml:"notify,omitempty"`
}

// StorageConfig configures the relational store.
type StorageConfig struct {
	Path           string        `mapstructure:"path" yaml:"path"`
	MaxConnections int           `mapstructure:"max_connections" yaml:"max_connections" validate:"min=1,max=100"`
	BusyTimeout    time.Duration `mapstructure:"busy_timeout" yaml:"busy_timeout"`
	WALMode        bool          `mapstructure:"wal_mode" yaml:"wal_mode"`
}

// VectorConfig configures the vector index backing store.
type VectorConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// LLMConfig configures the provider used for llm_call steps and the
// validation auto-fix pass.
type LLMConfig struct {
	Provider    string  `mapstructure:"provider" yaml:"provider"`
	Model       string  `mapstructure:"model" yaml:"model"`
	APIKey      string  `mapstructure:"api_key" yaml:"api_key,omitempty"`
	BaseURL     string  `mapstructure:"base_url" yaml:"base_url,omitempty"`
	Temperature float64 `mapstructure:"temperature" yaml:"temperature" validate:"min=0,max=2"`
	MaxTokens   int     `mapstructure:"max_tokens" yaml:"max_tokens" validate:"min=0"`
	Timeout     int     `mapstructure:"timeout" yaml:"timeout" validate:"min=0"`
}

// SandboxConfig configures script subprocess execution.
type SandboxConfig struct {
	Interpreter string        `mapstructure:"interpreter" yaml:"interpreter"`
	Timeout     time.Duration `mapstructure:"timeout" yaml:"timeout"`
	TempDir     string        `mapstructure:"temp_dir" yaml:"temp_dir,omitempty"`
}

// HTTPConfig configures the API client.
type HTTPConfig struct {
	Timeout         time.Duration `mapstructure:"timeout" yaml:"timeout"`
	CacheTTL        time.Duration `mapstructure:"cache_ttl" yaml:"cache_ttl"`
	CacheMaxEntries int           `mapstructure:"cache_max_entries" yaml:"cache_max_entries" validate:"min=0"`
}

// KnowledgeConfig tunes metadata embedding and hybrid retrieval.
type KnowledgeConfig struct {
	// MetadataBlobLimit bounds the embedded metadata blob in characters.
	// Document bodies are never embedded.
	MetadataBlobLimit int     `mapstructure:"metadata_blob_limit" yaml:"metadata_blob_limit" validate:"min=0"`
	SummaryMaxWords   int     `mapstructure:"summary_max_words" yaml:"summary_max_words" validate:"min=0"`
	MaxKeywords       int     `mapstructure:"max_keywords" yaml:"max_keywords" validate:"min=0"`
	SemanticWeight    float64 `mapstructure:"semantic_weight" yaml:"semantic_weight" validate:"min=0,max=1"`
	DefaultLimit      int     `mapstructure:"default_limit" yaml:"default_limit" validate:"min=1"`
}

// DomainConfig registers one knowledge domain with its distinguishing
// terms for query classification.
type DomainConfig struct {
	Name     string   `mapstructure:"name" yaml:"name" validate:"required"`
	Keywords []string `mapstructure:"keywords" yaml:"keywords"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// NotifyConfig carries the SMTP parameters for the external email
// transport. The transport itself lives outside the core; notification
// steps fall back to the log transport when it is absent.
type NotifyConfig struct {
	SMTPHost     string `mapstructure:"smtp_host" yaml:"smtp_host,omitempty"`
	SMTPPort     int    `mapstructure:"smtp_port" yaml:"smtp_port,omitempty"`
	SMTPUser     string `mapstructure:"smtp_user" yaml:"smtp_user,omitempty"`
	SMTPPassword string `mapstructure:"smtp_password" yaml:"smtp_password,omitempty"`
	From         string `mapstructure:"from" yaml:"from,omitempty"`
}

// DefaultHomeDir returns the default application home directory.
func DefaultHomeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".metaworkflow"
	}
	return filepath.Join(home, ".metaworkflow")
}

// DefaultConfigPath returns the default config file path under homeDir.
func DefaultConfigPath(homeDir string) string {
	return filepath.Join(homeDir, "config.yaml")
}

// DefaultConfig returns the configuration used when no config file
// exists. Credentials come from the environment via ${VAR} interpolation
// when a file is present, or directly from env fallbacks here.
func DefaultConfig() *Config {
	home := DefaultHomeDir()
	return &Config{
		Storage: StorageConfig{
			Path:           filepath.Join(home, "metaworkflow.db"),
			MaxConnections: 10,
			BusyTimeout:    5 * time.Second,
			WALMode:        true,
		},
		Vector: VectorConfig{
			Path: filepath.Join(home, "vectors.db"),
		},
		Embedder: embedder.DefaultEmbedderConfig(),
		LLM: LLMConfig{
			Provider:    "openai",
			Model:       "gpt-4o-mini",
			APIKey:      os.Getenv("OPENAI_API_KEY"),
			Temperature: 0.2,
			MaxTokens:   2048,
			Timeout:     60,
		},
		Sandbox: SandboxConfig{
			Interpreter: "python3",
			Timeout:     300 * time.Second,
		},
		HTTP: HTTPConfig{
			Timeout:         30 * time.Second,
			CacheTTL:        5 * time.Minute,
			CacheMaxEntries: 1024,
		},
		Knowledge: KnowledgeConfig{
			MetadataBlobLimit: 600,
			SummaryMaxWords:   60,
			MaxKeywords:       10,
			SemanticWeight:    0.7,
			DefaultLimit:      5,
		},
		Domains: []DomainConfig{
			{Name: "naver", Keywords: []string{"naver", "네이버", "blog", "news", "cafe"}},
			{Name: "weather", Keywords: []string{"weather", "forecast", "temperature", "날씨"}},
			{Name: "kakao", Keywords: []string{"kakao", "카카오", "kakaotalk"}},
			{Name: "google", Keywords: []string{"google", "gmail", "sheets", "drive"}},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}
