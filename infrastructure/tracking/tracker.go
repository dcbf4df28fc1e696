// Package tracking records training runs and answers best-run queries.
package tracking

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/ahrav/go-bankprep/internal/domain"
	"github.com/ahrav/go-bankprep/internal/ports"
)

var _ ports.ExperimentTracker = (*Tracker)(nil)

// DefaultIndexKey is where the run index lives in the backing store.
const DefaultIndexKey = "runs/index.yaml"

// ExperimentName returns the per-user experiment name runs are grouped under.
func ExperimentName(user string) string { return "BANK_MARKETING_EXPERIMENTS_" + user }

type runIndex struct {
	Runs []domain.Run `yaml:"runs"`
}

// Tracker keeps a YAML run index in an ArtifactStore. Writes within one
// process are serialized; the index is replaced whole on every write, so a
// reader sees either the previous or the new index.
type Tracker struct {
	store ports.ArtifactStore
	key   string
	mu    sync.Mutex
}

// NewTracker returns a tracker whose index lives under key in store. An
// empty key uses DefaultIndexKey.
func NewTracker(store ports.ArtifactStore, key string) (*Tracker, error) {
	if store == nil {
		return nil, fmt.Errorf("tracker store can't be nil: %w", domain.ErrInvalidConfiguration)
	}
	if key == "" {
		key = DefaultIndexKey
	}
	return &Tracker{store: store, key: key}, nil
}

func (t *Tracker) load(ctx context.Context) (runIndex, error) {
	var idx runIndex
	data, err := t.store.Get(ctx, t.key)
	if errors.Is(err, domain.ErrArtifactNotFound) {
		return idx, nil
	}
	if err != nil {
		return idx, fmt.Errorf("load run index: %w", err)
	}
	if err := yaml.Unmarshal(data, &idx); err != nil {
		return idx, fmt.Errorf("parse run index %s: %w", t.key, err)
	}
	return idx, nil
}

// RecordRun appends run to the index. Run ids are unique.
func (t *Tracker) RecordRun(ctx context.Context, run domain.Run) error {
	if strings.TrimSpace(run.ID) == "" || strings.TrimSpace(run.Experiment) == "" {
		return fmt.Errorf("run id and experiment are required: %w", domain.ErrInvalidConfiguration)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	idx, err := t.load(ctx)
	if err != nil {
		return err
	}
	if slices.ContainsFunc(idx.Runs, func(r domain.Run) bool { return r.ID == run.ID }) {
		return fmt.Errorf("run %s already recorded: %w", run.ID, domain.ErrInvalidConfiguration)
	}
	idx.Runs = append(idx.Runs, run)

	data, err := yaml.Marshal(idx)
	if err != nil {
		return fmt.Errorf("encode run index: %w", err)
	}
	if err := t.store.Put(ctx, t.key, data); err != nil {
		return fmt.Errorf("save run index: %w", err)
	}
	return nil
}

// Runs returns every recorded run of experiment in recording order.
func (t *Tracker) Runs(ctx context.Context, experiment string) ([]domain.Run, error) {
	idx, err := t.load(ctx)
	if err != nil {
		return nil, err
	}
	var out []domain.Run
	for _, r := range idx.Runs {
		if r.Experiment == experiment {
			out = append(out, r)
		}
	}
	return out, nil
}

// BestRun returns the run of experiment with the highest finite value of
// metric. Ties go to the run that started first, then to the smaller id.
func (t *Tracker) BestRun(ctx context.Context, experiment, metric string) (domain.Run, error) {
	runs, err := t.Runs(ctx, experiment)
	if err != nil {
		return domain.Run{}, err
	}

	var best *domain.Run
	for i := range runs {
		r := &runs[i]
		v, ok := r.Metrics[metric]
		if !ok || math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		if best == nil || better(r, best, metric) {
			best = r
		}
	}
	if best == nil {
		return domain.Run{}, fmt.Errorf("experiment %q has no run with metric %q: %w", experiment, metric, ports.ErrRunNotFound)
	}
	return *best, nil
}

func better(a, b *domain.Run, metric string) bool {
	av, bv := a.Metrics[metric], b.Metrics[metric]
	if av != bv {
		return av > bv
	}
	if !a.StartedAt.Equal(b.StartedAt) {
		return a.StartedAt.Before(b.StartedAt)
	}
	return a.ID < b.ID
}
