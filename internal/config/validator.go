package config

import (
	"fmt"
	"strings"
)

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	if err := c.validateDatabase(); err != nil {
		return fmt.Errorf("database config error: %v", err)
	}

	if err := c.validateOpenAI(); err != nil {
		return fmt.Errorf("openai config error: %v", err)
	}

	if err := c.validateMatching(); err != nil {
		return fmt.Errorf("matching config error: %v", err)
	}

	if err := c.validatePipeline(); err != nil {
		return fmt.Errorf("pipeline config error: %v", err)
	}

	if err := c.validateKafka(); err != nil {
		return fmt.Errorf("kafka config error: %v", err)
	}

	return nil
}

func (c *Config) validateDatabase() error {
	if c.Database.DSN == "" {
		return fmt.Errorf("dsn is required")
	}

	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("max_idle_conns (%d) exceeds max_open_conns (%d)",
			c.Database.MaxIdleConns, c.Database.MaxOpenConns)
	}

	return nil
}

func (c *Config) validateOpenAI() error {
	if c.OpenAI.APIKey == "" {
		return fmt.Errorf("api_key is required (set OPENAI_API_KEY)")
	}

	if c.OpenAI.EmbeddingDimension <= 0 {
		return fmt.Errorf("embedding_dimension must be positive")
	}

	if c.OpenAI.Temperature < 0 || c.OpenAI.Temperature > 2 {
		return fmt.Errorf("temperature must be in [0, 2], got %v", c.OpenAI.Temperature)
	}

	return nil
}

func (c *Config) validateMatching() error {
	if c.Matching.SimilarityThreshold == nil {
		return fmt.Errorf("similarity_threshold is required")
	}

	// Cosine similarity is normalized to [-1, 1]; a threshold outside that
	// range would route everything one way.
	if *c.Matching.SimilarityThreshold < -1 || *c.Matching.SimilarityThreshold > 1 {
		return fmt.Errorf("similarity_threshold must be in [-1, 1], got %v", *c.Matching.SimilarityThreshold)
	}

	if c.Matching.TopK <= 0 {
		return fmt.Errorf("top_k must be positive")
	}

	return nil
}

func (c *Config) validatePipeline() error {
	if c.Pipeline.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be positive")
	}

	if c.Pipeline.FailureTolerance == nil {
		return fmt.Errorf("failure_tolerance is required")
	}

	if *c.Pipeline.FailureTolerance < 0 || *c.Pipeline.FailureTolerance > 1 {
		return fmt.Errorf("failure_tolerance must be in [0, 1], got %v", *c.Pipeline.FailureTolerance)
	}

	if c.Pipeline.Workers <= 0 {
		return fmt.Errorf("workers must be positive")
	}

	return nil
}

func (c *Config) validateKafka() error {
	if !c.Kafka.Enabled {
		return nil
	}

	if len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("brokers is required when kafka is enabled")
	}

	for _, broker := range c.Kafka.Brokers {
		if !strings.Contains(broker, ":") {
			return fmt.Errorf("invalid broker format: %s (expected host:port)", broker)
		}
	}

	return nil
}
