// Package application wires feature engineering, preprocessing, artifact
// storage, experiment tracking, and model serving into the training and
// inference flows.
package application

import (
	"time"

	"github.com/ahrav/go-bankprep/infrastructure/tracking"
	"github.com/ahrav/go-bankprep/internal/domain"
)

// ConfigVersion is the configuration file format this package reads.
const ConfigVersion = "1.0.0"

// AccessKeyEnv overrides ServingConfig.AccessKey when set, so the model
// access key never has to live in a config file.
const AccessKeyEnv = "BANKPREP_ACCESS_KEY"

// PipelineConfig is the complete configuration of a training or inference
// run and the root of the YAML configuration file.
// Sections absent from the file keep the values of DefaultPipelineConfig.
type PipelineConfig struct {
	// Version is the configuration format version.
	Version string `yaml:"version" validate:"required,semver"`

	// Schema overrides the default bank-marketing feature schema. When
	// present it replaces the default whole; it is never merged.
	Schema *domain.FeatureSchema `yaml:"schema,omitempty" validate:"omitempty"`

	Input    InputConfig    `yaml:"input"`
	Engineer EngineerConfig `yaml:"engineer"`
	Storage  StorageConfig  `yaml:"storage"`
	Tracking TrackingConfig `yaml:"tracking"`
	Serving  ServingConfig  `yaml:"serving"`
}

// InputConfig describes raw input files.
type InputConfig struct {
	// Delimiter separates fields of raw input. The bank-marketing export
	// uses ";".
	Delimiter string `yaml:"delimiter" validate:"required,len=1"`

	// RowIDColumn names the optional traceability column.
	RowIDColumn string `yaml:"row_id_column" validate:"required,featurename"`
}

// EngineerConfig tunes feature engineering.
type EngineerConfig struct {
	// Workers is the number of goroutines rows are spread across.
	Workers int `yaml:"workers" validate:"min=1,max=256"`
}

// StorageConfig selects and configures the artifact store.
type StorageConfig struct {
	// Backend is "fs" or "s3".
	Backend string `yaml:"backend" validate:"required,oneof=fs s3"`

	// Root is the directory of the filesystem backend.
	Root string `yaml:"root"`

	S3 S3StorageConfig `yaml:"s3"`
}

// S3StorageConfig configures the S3 backend. Empty credentials fall back
// to the SDK's anonymous access.
type S3StorageConfig struct {
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
	Endpoint  string `yaml:"endpoint" validate:"omitempty,url"`
	Region    string `yaml:"region"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`

	// MaxRetries bounds retries of transient S3 failures.
	MaxRetries uint64 `yaml:"max_retries" validate:"max=20"`

	// Backoff is the first Fibonacci backoff step.
	Backoff time.Duration `yaml:"backoff" validate:"omitempty,min=1ms"`
}

// TrackingConfig locates the experiment tracker and the metric used to
// pick the best run.
type TrackingConfig struct {
	// IndexKey is the artifact-store key of the run index.
	IndexKey string `yaml:"index_key" validate:"required"`

	// User derives the experiment name when Experiment is empty.
	User string `yaml:"user" validate:"omitempty,max=64"`

	// Experiment names the experiment runs are recorded under.
	Experiment string `yaml:"experiment" validate:"omitempty,max=255"`

	// Metric is the run metric maximized by best-run selection.
	Metric string `yaml:"metric" validate:"required"`
}

// ServingConfig configures the model serving client.
type ServingConfig struct {
	Endpoint  string `yaml:"endpoint" validate:"omitempty,url"`
	AccessKey string `yaml:"access_key"`

	// Timeout bounds one HTTP request.
	Timeout time.Duration `yaml:"timeout" validate:"omitempty,min=1s,max=10m"`

	// Concurrency is the number of rows scored in parallel.
	Concurrency int `yaml:"concurrency" validate:"min=1,max=64"`

	// RateLimit caps requests per second. Zero disables limiting.
	RateLimit float64 `yaml:"rate_limit" validate:"gte=0"`
	Burst     int     `yaml:"burst" validate:"gte=0"`

	// MaxRetries bounds retries of retryable serving errors.
	MaxRetries     int           `yaml:"max_retries" validate:"gte=0,lte=10"`
	RetryBaseDelay time.Duration `yaml:"retry_base_delay" validate:"omitempty,min=1ms"`
	RetryMaxDelay  time.Duration `yaml:"retry_max_delay" validate:"omitempty,min=1ms"`

	// CircuitFailures opens the circuit after that many consecutive
	// failures. Zero disables the breaker.
	CircuitFailures int           `yaml:"circuit_failures" validate:"gte=0"`
	CircuitCooldown time.Duration `yaml:"circuit_cooldown" validate:"omitempty,min=1ms"`
}

// DefaultPipelineConfig returns the configuration used when no file is given.
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		Version: ConfigVersion,
		Input: InputConfig{
			Delimiter:   ";",
			RowIDColumn: domain.RowIDField,
		},
		Engineer: EngineerConfig{Workers: 4},
		Storage: StorageConfig{
			Backend: "fs",
			Root:    "artifacts",
			S3: S3StorageConfig{
				Region:     "us-east-1",
				MaxRetries: 5,
				Backoff:    time.Second,
			},
		},
		Tracking: TrackingConfig{
			IndexKey: tracking.DefaultIndexKey,
			User:     "default",
			Metric:   "test_f1",
		},
		Serving: ServingConfig{
			Timeout:         30 * time.Second,
			Concurrency:     4,
			RateLimit:       10,
			Burst:           10,
			MaxRetries:      3,
			RetryBaseDelay:  500 * time.Millisecond,
			RetryMaxDelay:   10 * time.Second,
			CircuitFailures: 5,
			CircuitCooldown: 30 * time.Second,
		},
	}
}

// FeatureSchema returns the configured schema or the default one.
func (c *PipelineConfig) FeatureSchema() domain.FeatureSchema {
	if c.Schema != nil {
		return *c.Schema
	}
	return domain.DefaultFeatureSchema()
}

// ExperimentName returns the experiment runs are recorded under.
func (c *PipelineConfig) ExperimentName() string {
	if c.Tracking.Experiment != "" {
		return c.Tracking.Experiment
	}
	return tracking.ExperimentName(c.Tracking.User)
}

// InputDelimiter returns the raw input delimiter as a rune.
func (c *PipelineConfig) InputDelimiter() rune {
	for _, r := range c.Input.Delimiter {
		return r
	}
	return ';'
}
