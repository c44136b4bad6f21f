package types

import "time"

// DLQRetryConfig controls replay of jobs archived in the Mongo dead letter
// collection.
type DLQRetryConfig struct {
	BatchSize      int           `json:"batch_size"`
	RetryInterval  time.Duration `json:"retry_interval"`
	MaxRetryCount  int           `json:"max_retry_count"`
	BackoffFactor  float64       `json:"backoff_factor"`
	DatabaseName   string        `json:"database_name"`
	CollectionName string        `json:"collection_name"`
}

// WithDefaults fills every unset field. DatabaseName has no default.
func (c DLQRetryConfig) WithDefaults() DLQRetryConfig {
	if c.BatchSize <= 0 {
		c.BatchSize = 50
	}
	if c.RetryInterval <= 0 {
		c.RetryInterval = time.Minute
	}
	if c.MaxRetryCount <= 0 {
		c.MaxRetryCount = 3
	}
	if c.BackoffFactor < 1 {
		c.BackoffFactor = 2
	}
	if c.CollectionName == "" {
		c.CollectionName = "dlq_jobs"
	}
	return c
}
