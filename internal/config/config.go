package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration
type Config struct {
	API       APIConfig       `yaml:"api"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	OpenAI    OpenAIConfig    `yaml:"openai"`
	Matching  MatchingConfig  `yaml:"matching"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// APIConfig represents HTTP server configuration
type APIConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	IdleTimeout    time.Duration `yaml:"idle_timeout"`
	EnableCORS     bool          `yaml:"enable_cors"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
	AllowedMethods []string      `yaml:"allowed_methods"`
	AllowedHeaders []string      `yaml:"allowed_headers"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// DatabaseConfig represents PostgreSQL configuration
type DatabaseConfig struct {
	DSN          string        `yaml:"dsn"`
	MaxOpenConns int           `yaml:"max_open_conns"`
	MaxIdleConns int           `yaml:"max_idle_conns"`
	QueryTimeout time.Duration `yaml:"query_timeout"`
}

// RedisConfig represents the query-embedding cache configuration
type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	Prefix   string        `yaml:"prefix"`
	TTL      time.Duration `yaml:"ttl"`
}

// KafkaConfig represents the query/job event stream configuration
type KafkaConfig struct {
	Enabled    bool          `yaml:"enabled"`
	Brokers    []string      `yaml:"brokers"`
	QueryTopic string        `yaml:"query_topic"`
	JobTopic   string        `yaml:"job_topic"`
	Timeout    time.Duration `yaml:"timeout"`
}

// OpenAIConfig represents embedding and chat provider configuration
type OpenAIConfig struct {
	APIKey             string        `yaml:"api_key"`
	EmbeddingModel     string        `yaml:"embedding_model"`
	EmbeddingDimension int           `yaml:"embedding_dimension"`
	ChatModel          string        `yaml:"chat_model"`
	Temperature        float32       `yaml:"temperature"`
	MaxTokens          int           `yaml:"max_tokens"`
	RequestTimeout     time.Duration `yaml:"request_timeout"`
	MaxRetries         int           `yaml:"max_retries"`
}

// MatchingConfig represents similarity matching and routing configuration.
// SimilarityThreshold is the single most important tuning knob of the
// system: too low serves wrong local answers with false confidence, too
// high sends unnecessary traffic to the fallback model. It is a pointer
// because 0 is a legal threshold and must not collapse into the default.
type MatchingConfig struct {
	SimilarityThreshold *float64 `yaml:"similarity_threshold"`
	TopK                int      `yaml:"top_k"`
}

// PipelineConfig represents embedding maintenance configuration.
// FailureTolerance is a pointer for the same reason as the similarity
// threshold: an explicit 0 means strict, not "use the default".
type PipelineConfig struct {
	BatchSize        int           `yaml:"batch_size"`
	FailureTolerance *float64      `yaml:"failure_tolerance"`
	JobTimeout       time.Duration `yaml:"job_timeout"`
	Workers          int           `yaml:"workers"`
	QueueSize        int           `yaml:"queue_size"`
}

// RateLimitConfig represents provider-side rate limits
type RateLimitConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute"`
	TokensPerMinute   int `yaml:"tokens_per_minute"`
}

// Load loads configuration from the given path, falling back to the
// CONFIG_PATH environment variable and then the default location.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	if path == "" {
		path = "config/config.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyDefaults()

	// The API key never lives in the config file in deployed environments.
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		cfg.OpenAI.APIKey = key
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.API.Host == "" {
		c.API.Host = "0.0.0.0"
	}
	if c.API.Port == 0 {
		c.API.Port = 8080
	}
	if c.API.ReadTimeout == 0 {
		c.API.ReadTimeout = 30 * time.Second
	}
	if c.API.WriteTimeout == 0 {
		c.API.WriteTimeout = 30 * time.Second
	}
	if c.API.IdleTimeout == 0 {
		c.API.IdleTimeout = 120 * time.Second
	}
	if c.API.RequestTimeout == 0 {
		c.API.RequestTimeout = 30 * time.Second
	}
	if len(c.API.AllowedOrigins) == 0 {
		c.API.AllowedOrigins = []string{"*"}
	}
	if len(c.API.AllowedMethods) == 0 {
		c.API.AllowedMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	}
	if len(c.API.AllowedHeaders) == 0 {
		c.API.AllowedHeaders = []string{"*"}
	}

	if c.Database.MaxOpenConns == 0 {
		c.Database.MaxOpenConns = 20
	}
	if c.Database.MaxIdleConns == 0 {
		c.Database.MaxIdleConns = 5
	}
	if c.Database.QueryTimeout == 0 {
		c.Database.QueryTimeout = 10 * time.Second
	}

	if c.Redis.Addr == "" {
		c.Redis.Addr = "localhost:6379"
	}
	if c.Redis.Prefix == "" {
		c.Redis.Prefix = "answerhub:embeddings"
	}
	if c.Redis.TTL == 0 {
		c.Redis.TTL = time.Hour
	}

	if len(c.Kafka.Brokers) == 0 {
		c.Kafka.Brokers = []string{"localhost:9092"}
	}
	if c.Kafka.QueryTopic == "" {
		c.Kafka.QueryTopic = "answerhub.queries"
	}
	if c.Kafka.JobTopic == "" {
		c.Kafka.JobTopic = "answerhub.jobs"
	}
	if c.Kafka.Timeout == 0 {
		c.Kafka.Timeout = 10 * time.Second
	}

	if c.OpenAI.EmbeddingModel == "" {
		c.OpenAI.EmbeddingModel = "text-embedding-3-small"
	}
	if c.OpenAI.EmbeddingDimension == 0 {
		c.OpenAI.EmbeddingDimension = 1536
	}
	if c.OpenAI.ChatModel == "" {
		c.OpenAI.ChatModel = "gpt-4o-mini"
	}
	if c.OpenAI.MaxTokens == 0 {
		c.OpenAI.MaxTokens = 500
	}
	if c.OpenAI.RequestTimeout == 0 {
		c.OpenAI.RequestTimeout = 30 * time.Second
	}
	if c.OpenAI.MaxRetries == 0 {
		c.OpenAI.MaxRetries = 3
	}

	if c.Matching.SimilarityThreshold == nil {
		threshold := 0.8
		c.Matching.SimilarityThreshold = &threshold
	}
	if c.Matching.TopK == 0 {
		c.Matching.TopK = 5
	}

	if c.Pipeline.BatchSize == 0 {
		c.Pipeline.BatchSize = 10
	}
	if c.Pipeline.FailureTolerance == nil {
		tolerance := 0.2
		c.Pipeline.FailureTolerance = &tolerance
	}
	if c.Pipeline.JobTimeout == 0 {
		c.Pipeline.JobTimeout = 10 * time.Minute
	}
	if c.Pipeline.Workers == 0 {
		c.Pipeline.Workers = 2
	}
	if c.Pipeline.QueueSize == 0 {
		c.Pipeline.QueueSize = 16
	}

	if c.RateLimit.RequestsPerMinute == 0 {
		c.RateLimit.RequestsPerMinute = 45
	}
	if c.RateLimit.TokensPerMinute == 0 {
		c.RateLimit.TokensPerMinute = 200000
	}
}
