package application

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/ahrav/go-bankprep/internal/domain"
	"github.com/ahrav/go-bankprep/internal/ports"
)

// featureNamePattern admits the column names of the bank-marketing export,
// such as "emp.var.rate" and "day_of_week".
var featureNamePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_.\-]*$`)

// ConfigLoader parses, overlays, and validates pipeline configuration files.
type ConfigLoader struct {
	validator *validator.Validate
	getenv    func(string) string
}

// NewConfigLoader creates a loader with the custom validators registered.
// NewConfigLoader returns an error if validator registration fails.
func NewConfigLoader() (*ConfigLoader, error) {
	v := validator.New()
	// Report yaml names in validation errors so they match the file.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("yaml"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	if err := registerCustomValidators(v); err != nil {
		return nil, fmt.Errorf("failed to register validators: %w", err)
	}
	return &ConfigLoader{validator: v, getenv: os.Getenv}, nil
}

// LoadFromFile reads and validates the configuration at path.
func (cl *ConfigLoader) LoadFromFile(path string) (*PipelineConfig, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ports.NewConfigError(path, fmt.Errorf("%w: %w", ports.ErrConfigNotFound, err))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return cl.Parse(data)
}

// LoadFromReader reads and validates configuration from r.
func (cl *ConfigLoader) LoadFromReader(r io.Reader) (*PipelineConfig, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return cl.Parse(data)
}

// Parse decodes YAML over DefaultPipelineConfig, applies environment
// overrides, and validates the result. Unknown keys are rejected so that a
// misspelled option never silently falls back to its default.
func (cl *ConfigLoader) Parse(data []byte) (*PipelineConfig, error) {
	cfg := DefaultPipelineConfig()
	if len(bytes.TrimSpace(data)) > 0 {
		decoder := yaml.NewDecoder(bytes.NewReader(data))
		decoder.KnownFields(true) // Strict mode - fail on unknown fields.
		if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("YAML decode failed: %w: %w", domain.ErrInvalidConfiguration, err)
		}
	}
	if err := cl.Finalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Finalize applies environment overrides to cfg and validates it.
// Use it for configurations built in code rather than parsed.
func (cl *ConfigLoader) Finalize(cfg *PipelineConfig) error {
	if key := cl.getenv(AccessKeyEnv); key != "" {
		cfg.Serving.AccessKey = key
	}
	if err := cl.validator.Struct(cfg); err != nil {
		return fmt.Errorf("struct validation failed: %w: %w", domain.ErrInvalidConfiguration, err)
	}
	if err := validateSemantics(cfg); err != nil {
		return fmt.Errorf("semantic validation failed: %w", err)
	}
	return nil
}

// validateSemantics enforces rules that span fields.
func validateSemantics(cfg *PipelineConfig) error {
	verr := domain.NewValidationError("PipelineConfig")

	if err := cfg.FeatureSchema().Validate(); err != nil {
		verr.AddError(err.Error())
	}

	switch cfg.Storage.Backend {
	case "fs":
		if strings.TrimSpace(cfg.Storage.Root) == "" {
			verr.AddError("storage.root is required for the fs backend")
		}
	case "s3":
		if strings.TrimSpace(cfg.Storage.S3.Bucket) == "" {
			verr.AddError("storage.s3.bucket is required for the s3 backend")
		}
		if (cfg.Storage.S3.AccessKey == "") != (cfg.Storage.S3.SecretKey == "") {
			verr.AddError("storage.s3.access_key and storage.s3.secret_key must be set together")
		}
	}

	if cfg.Tracking.Experiment == "" && cfg.Tracking.User == "" {
		verr.AddError("tracking.experiment or tracking.user is required")
	}

	s := cfg.Serving
	if s.RateLimit > 0 && s.Burst < 1 {
		verr.AddError("serving.burst must be at least 1 when serving.rate_limit is set")
	}
	if s.RetryBaseDelay > 0 && s.RetryMaxDelay > 0 && s.RetryMaxDelay < s.RetryBaseDelay {
		verr.AddError("serving.retry_max_delay must not be less than serving.retry_base_delay")
	}
	if s.Endpoint != "" && s.AccessKey == "" {
		verr.AddError(fmt.Sprintf("serving.access_key or $%s is required with serving.endpoint", AccessKeyEnv))
	}

	if verr.HasErrors() {
		return verr
	}
	return nil
}

// registerCustomValidators registers the semver and featurename tags used
// by PipelineConfig and domain.FeatureSchema.
func registerCustomValidators(v *validator.Validate) error {
	if err := v.RegisterValidation("semver", validateSemver); err != nil {
		return fmt.Errorf("failed to register semver validator: %w", err)
	}
	if err := v.RegisterValidation("featurename", validateFeatureName); err != nil {
		return fmt.Errorf("failed to register featurename validator: %w", err)
	}
	return nil
}

// validateSemver validates that a string follows semantic versioning
// format (X.Y.Z where X, Y, Z are non-negative integers).
func validateSemver(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	var major, minor, patch int
	n, err := fmt.Sscanf(value, "%d.%d.%d", &major, &minor, &patch)
	return err == nil && n == 3 && major >= 0 && minor >= 0 && patch >= 0
}

// validateFeatureName rejects empty names and names with whitespace or
// punctuation other than "_", "." and "-".
func validateFeatureName(fl validator.FieldLevel) bool {
	return featureNamePattern.MatchString(fl.Field().String())
}
