package application

import (
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/ahrav/go-bankprep/infrastructure/dataio"
	"github.com/ahrav/go-bankprep/infrastructure/features"
	"github.com/ahrav/go-bankprep/infrastructure/middleware"
	"github.com/ahrav/go-bankprep/infrastructure/preprocessing"
	"github.com/ahrav/go-bankprep/infrastructure/serving"
	"github.com/ahrav/go-bankprep/infrastructure/storage"
	"github.com/ahrav/go-bankprep/infrastructure/tracking"
	"github.com/ahrav/go-bankprep/internal/ports"
)

// Components is the set of collaborators built from one PipelineConfig.
// Trainers, loaders, and inferencers created from it share the same store,
// tracker, and observability.
type Components struct {
	Config   *PipelineConfig
	Engineer *features.Engineer
	Store    ports.ArtifactStore
	Tracker  *tracking.Tracker
	Codec    preprocessing.Codec
	Metrics  ports.MetricsCollector
	Observer ports.StageObserver
	Logger   *slog.Logger
}

// NewComponents builds the engineer, artifact store, and tracker described
// by cfg. metrics may be nil.
func NewComponents(cfg *PipelineConfig, metrics ports.MetricsCollector) (*Components, error) {
	engineer, err := features.NewEngineer(cfg.FeatureSchema(), features.WithWorkers(cfg.Engineer.Workers))
	if err != nil {
		return nil, fmt.Errorf("create feature engineer: %w", err)
	}

	store, err := NewArtifactStore(cfg.Storage)
	if err != nil {
		return nil, err
	}

	tracker, err := tracking.NewTracker(store, cfg.Tracking.IndexKey)
	if err != nil {
		return nil, fmt.Errorf("create experiment tracker: %w", err)
	}

	logger := slog.Default()
	return &Components{
		Config:   cfg,
		Engineer: engineer,
		Store:    store,
		Tracker:  tracker,
		Codec:    preprocessing.Codec{Logger: logger},
		Metrics:  metrics,
		Observer: middleware.NewOTelStageObserver(metrics),
		Logger:   logger,
	}, nil
}

// NewArtifactStore returns the filesystem or S3 store selected by cfg.
func NewArtifactStore(cfg StorageConfig) (ports.ArtifactStore, error) {
	switch cfg.Backend {
	case "s3":
		client := storage.NewS3Client(storage.S3Config{
			Endpoint:  cfg.S3.Endpoint,
			Region:    cfg.S3.Region,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
		})
		store, err := storage.NewS3Store(client, cfg.S3.Bucket,
			storage.WithPrefix(cfg.S3.Prefix),
			storage.WithRetries(cfg.S3.MaxRetries, cfg.S3.Backoff),
		)
		if err != nil {
			return nil, fmt.Errorf("create s3 store: %w", err)
		}
		return store, nil
	default:
		store, err := storage.NewFileStore(cfg.Root)
		if err != nil {
			return nil, fmt.Errorf("create file store: %w", err)
		}
		return store, nil
	}
}

// NewTrainer returns a Trainer for one run. An empty runID generates one.
// The run id is stamped into the artifact metadata and the tracked run.
func (c *Components) NewTrainer(runID string) (*Trainer, error) {
	if runID == "" {
		runID = uuid.NewString()
	}
	pipeline, err := preprocessing.NewPipeline(c.Engineer.Schema(), c.Engineer.Version(),
		preprocessing.WithRunID(runID),
		preprocessing.WithLogger(c.Logger),
	)
	if err != nil {
		return nil, fmt.Errorf("create preprocessing pipeline: %w", err)
	}
	return NewTrainer(TrainerConfig{
		Engineer:     c.Engineer,
		Preprocessor: pipeline,
		Codec:        c.Codec,
		Store:        c.Store,
		Tracker:      c.Tracker,
		Experiment:   c.Config.ExperimentName(),
		RunID:        runID,
		Observer:     c.Observer,
		Metrics:      c.Metrics,
		Logger:       c.Logger,
	})
}

// NewArtifactLoader returns a loader bound to the configured store and tracker.
func (c *Components) NewArtifactLoader() (*ArtifactLoader, error) {
	return NewArtifactLoader(ArtifactLoaderConfig{
		Store:    c.Store,
		Codec:    c.Codec,
		Engineer: c.Engineer,
		Tracker:  c.Tracker,
		Observer: c.Observer,
		Logger:   c.Logger,
	})
}

// NewModelServer builds the serving client and its middleware chain:
// tracing, metrics, circuit breaker, retry, rate limit, then per-request
// timeout, outermost first.
func (c *Components) NewModelServer() (*serving.Client, error) {
	s := c.Config.Serving
	if s.Endpoint == "" {
		return nil, ports.NewConfigError("serving.endpoint", ports.ErrConfigNotFound)
	}
	if s.AccessKey == "" {
		return nil, ports.NewConfigError("serving.access_key",
			fmt.Errorf("%w: set it in the config or $%s", ports.ErrConfigNotFound, AccessKeyEnv))
	}
	chain := []serving.Middleware{serving.TracingMiddleware("bankprep-serving")}
	if c.Metrics != nil {
		chain = append(chain, serving.MetricsMiddleware(c.Metrics))
	}
	if s.CircuitFailures > 0 {
		chain = append(chain, serving.CircuitBreakerMiddleware(serving.NewCircuitBreaker(s.CircuitFailures, s.CircuitCooldown)))
	}
	if s.MaxRetries > 0 {
		chain = append(chain, serving.RetryMiddleware(s.MaxRetries, s.RetryBaseDelay, s.RetryMaxDelay))
	}
	if s.RateLimit > 0 {
		chain = append(chain, serving.RateLimitMiddleware(rate.Limit(s.RateLimit), s.Burst))
	}
	if s.Timeout > 0 {
		chain = append(chain, serving.TimeoutMiddleware(s.Timeout))
	}

	client, err := serving.NewClient(serving.ClientConfig{
		Endpoint:    s.Endpoint,
		AccessKey:   s.AccessKey,
		Timeout:     s.Timeout,
		Concurrency: s.Concurrency,
		Middleware:  chain,
	})
	if err != nil {
		return nil, fmt.Errorf("create model server client: %w", err)
	}
	return client, nil
}

// NewInferencer returns an Inferencer over a loaded preprocessor. server
// may be nil when only Prepare and Transform are needed.
func (c *Components) NewInferencer(p ports.FittedPreprocessor, server ports.ModelServer) (*Inferencer, error) {
	return NewInferencer(InferencerConfig{
		Engineer:     c.Engineer,
		Preprocessor: p,
		Server:       server,
		Reader: dataio.Reader{
			Delimiter:   c.Config.InputDelimiter(),
			RowIDColumn: c.Config.Input.RowIDColumn,
		},
		Observer: c.Observer,
		Metrics:  c.Metrics,
		Logger:   c.Logger,
	})
}
