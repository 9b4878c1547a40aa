// Package config loads the service configuration from YAML.
// Values not present in the file keep the defaults returned by Default.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Corpus provider kinds.
const (
	ProviderSynthetic = "synthetic"
	ProviderPostgres  = "postgres"
)

// Config holds the patient search service configuration.
type Config struct {
	Env      string         `yaml:"env"` // local, dev, docker, prod
	HTTP     HTTPConfig     `yaml:"http"`
	Logging  LoggingConfig  `yaml:"logging"`
	Corpus   CorpusConfig   `yaml:"corpus"`
	Postgres PostgresConfig `yaml:"postgres"`
	Redis    RedisConfig    `yaml:"redis"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Search   SearchSettings `yaml:"search"`
	Sync     SyncSettings   `yaml:"sync"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// CorpusConfig selects and bounds the patient data source.
type CorpusConfig struct {
	Provider        string        `yaml:"provider"`         // synthetic, postgres
	SyntheticSize   int           `yaml:"synthetic_size"`   // number of generated patients
	ProviderTimeout time.Duration `yaml:"provider_timeout"` // latency bound for one snapshot fetch
	DataDir         string        `yaml:"data_dir"`         // snapshot persistence directory; empty disables
}

// PostgresConfig holds the production patient store connection.
type PostgresConfig struct {
	DSN          string `yaml:"dsn"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

// RedisConfig holds the corpus cache settings.
type RedisConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Addr      string        `yaml:"addr"`
	Password  string        `yaml:"password"`
	DB        int           `yaml:"db"`
	KeyPrefix string        `yaml:"key_prefix"`
	TTL       time.Duration `yaml:"ttl"`
}

// KafkaConfig holds the optional message-channel bridge settings.
type KafkaConfig struct {
	Enabled       bool     `yaml:"enabled"`
	Brokers       []string `yaml:"brokers"`
	GroupID       string   `yaml:"group_id"`
	RequestTopic  string   `yaml:"request_topic"`
	ResponseTopic string   `yaml:"response_topic"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Env: "local",
		HTTP: HTTPConfig{
			Port:            8080,
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			MaxBodyBytes:    1 << 20,
		},
		Corpus: CorpusConfig{
			Provider:        ProviderSynthetic,
			SyntheticSize:   60,
			ProviderTimeout: 5 * time.Second,
		},
		Postgres: PostgresConfig{
			MaxOpenConns: 10,
			MaxIdleConns: 2,
		},
		Redis: RedisConfig{
			Addr:      "localhost:6379",
			KeyPrefix: "patient-search:",
			TTL:       10 * time.Minute,
		},
		Kafka: KafkaConfig{
			GroupID:       "patient-search",
			RequestTopic:  "patient-search.requests",
			ResponseTopic: "patient-search.responses",
		},
		Search: DefaultSearchSettings(),
		Sync:   DefaultSyncSettings(),
	}
}

// Load reads configuration from a YAML file on top of Default().
// An empty path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, cfg.Validate()
	}

	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	data = expandEnvVars(data)

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	switch c.Corpus.Provider {
	case ProviderSynthetic:
		if c.Corpus.SyntheticSize <= 0 {
			return fmt.Errorf("corpus.synthetic_size must be positive, got %d", c.Corpus.SyntheticSize)
		}
	case ProviderPostgres:
		if c.Postgres.DSN == "" {
			return fmt.Errorf("postgres.dsn is required when corpus.provider is %q", ProviderPostgres)
		}
	default:
		return fmt.Errorf("corpus.provider must be %q or %q, got %q", ProviderSynthetic, ProviderPostgres, c.Corpus.Provider)
	}
	if c.Corpus.ProviderTimeout <= 0 {
		return fmt.Errorf("corpus.provider_timeout must be positive")
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required when redis is enabled")
	}
	if c.Kafka.Enabled {
		if len(c.Kafka.Brokers) == 0 {
			return fmt.Errorf("kafka.brokers is required when kafka is enabled")
		}
		if c.Kafka.RequestTopic == "" || c.Kafka.ResponseTopic == "" {
			return fmt.Errorf("kafka.request_topic and kafka.response_topic are required when kafka is enabled")
		}
	}
	if problems := c.Search.Validate(); len(problems) > 0 {
		return fmt.Errorf("search: %s", problems[0])
	}
	if problems := c.Sync.Validate(); len(problems) > 0 {
		return fmt.Errorf("sync: %s", problems[0])
	}
	return nil
}

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnvVars substitutes ${VAR} references; bare $ signs are left alone.
func expandEnvVars(data []byte) []byte {
	return envVarPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		name := envVarPattern.FindSubmatch(match)[1]
		return []byte(os.Getenv(string(name)))
	})
}
