package application

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/ahrav/go-bankprep/internal/domain"
	"github.com/ahrav/go-bankprep/internal/ports"
)

// ArtifactLoader loads fitted preprocessors from an ArtifactStore and keeps
// them for the life of the process. Artifacts are immutable and content
// addressed, so a cached entry never goes stale.
type ArtifactLoader struct {
	store    ports.ArtifactStore
	codec    ports.ArtifactCodec
	tracker  ports.ExperimentTracker
	engineer ports.FeatureEngineer
	observer ports.StageObserver
	logger   *slog.Logger

	// cache maps artifact keys to decoded preprocessors. Cached values are
	// shared between callers and are never mutated.
	cache   map[string]ports.FittedPreprocessor
	cacheMu sync.RWMutex

	// sf prevents duplicate fetch and decode when several goroutines ask
	// for the same key at once.
	sf singleflight.Group
}

// ArtifactLoaderConfig holds the collaborators of an ArtifactLoader.
type ArtifactLoaderConfig struct {
	Store ports.ArtifactStore
	Codec ports.ArtifactCodec

	// Engineer pins the feature engineering version and schema every
	// loaded artifact must have been fit with.
	Engineer ports.FeatureEngineer

	// Tracker resolves best runs. Nil leaves LoadBest unavailable.
	Tracker ports.ExperimentTracker

	Observer ports.StageObserver
	Logger   *slog.Logger
}

// NewArtifactLoader validates cfg and returns a loader with an empty cache.
func NewArtifactLoader(cfg ArtifactLoaderConfig) (*ArtifactLoader, error) {
	switch {
	case cfg.Store == nil:
		return nil, fmt.Errorf("loader store can't be nil: %w", domain.ErrInvalidConfiguration)
	case cfg.Codec == nil:
		return nil, fmt.Errorf("loader codec can't be nil: %w", domain.ErrInvalidConfiguration)
	case cfg.Engineer == nil:
		return nil, fmt.Errorf("loader engineer can't be nil: %w", domain.ErrInvalidConfiguration)
	}
	l := &ArtifactLoader{
		store:    cfg.Store,
		codec:    cfg.Codec,
		tracker:  cfg.Tracker,
		engineer: cfg.Engineer,
		observer: cfg.Observer,
		logger:   cfg.Logger,
		cache:    make(map[string]ports.FittedPreprocessor),
	}
	if l.observer == nil {
		l.observer = ports.NoopStageObserver{}
	}
	if l.logger == nil {
		l.logger = slog.Default()
	}
	return l, nil
}

// Load returns the preprocessor stored under key. The stored bytes must
// hash to key, decode cleanly, and match the engineer's version and schema;
// otherwise nothing is cached and an error is returned.
func (l *ArtifactLoader) Load(ctx context.Context, key string) (ports.FittedPreprocessor, error) {
	if p, ok := l.cached(key); ok {
		return p, nil
	}

	v, err, _ := l.sf.Do(key, func() (any, error) {
		// Check cache inside singleflight to handle race between cache check
		// and singleflight group execution.
		if p, ok := l.cached(key); ok {
			return p, nil
		}

		var p ports.FittedPreprocessor
		err := runStage(ctx, l.observer, StageLoad, 1, func(ctx context.Context) error {
			data, err := l.store.Get(ctx, key)
			if err != nil {
				return err
			}
			if got := l.codec.Key(data); got != key {
				return fmt.Errorf("%w: content of %s hashes to %s", domain.ErrArtifactCorrupt, key, got)
			}
			p, err = l.codec.Decode(data, l.engineer.Version(), l.engineer.Schema())
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("load artifact %s: %w", key, err)
		}

		l.cachePreprocessor(key, p)
		l.logger.InfoContext(ctx, "preprocessor loaded", "key", key, "columns", len(p.Columns()))
		return p, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(ports.FittedPreprocessor), nil
}

// LoadBest resolves the run of experiment with the highest metric and loads
// its artifact. Runs fit on a different schema are rejected.
func (l *ArtifactLoader) LoadBest(
	ctx context.Context,
	experiment, metric string,
) (ports.FittedPreprocessor, domain.Run, error) {
	if l.tracker == nil {
		return nil, domain.Run{}, fmt.Errorf("no experiment tracker configured: %w", domain.ErrInvalidConfiguration)
	}
	run, err := l.tracker.BestRun(ctx, experiment, metric)
	if err != nil {
		return nil, domain.Run{}, fmt.Errorf("resolve best run: %w", err)
	}
	if want := l.engineer.Schema().Fingerprint(); run.SchemaFingerprint != "" && run.SchemaFingerprint != want {
		return nil, run, &domain.SchemaMismatchError{
			Row:      -1,
			Reason:   "schema fingerprint",
			Expected: want,
			Actual:   run.SchemaFingerprint,
		}
	}
	p, err := l.Load(ctx, run.ArtifactKey)
	if err != nil {
		return nil, run, err
	}
	return p, run, nil
}

// ClearCache drops every cached preprocessor.
func (l *ArtifactLoader) ClearCache() {
	l.cacheMu.Lock()
	defer l.cacheMu.Unlock()

	l.cache = make(map[string]ports.FittedPreprocessor)
}

func (l *ArtifactLoader) cached(key string) (ports.FittedPreprocessor, bool) {
	l.cacheMu.RLock()
	defer l.cacheMu.RUnlock()

	p, ok := l.cache[key]
	return p, ok
}

func (l *ArtifactLoader) cachePreprocessor(key string, p ports.FittedPreprocessor) {
	l.cacheMu.Lock()
	defer l.cacheMu.Unlock()

	l.cache[key] = p
}
