package tracking

import (
	"context"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-bankprep/infrastructure/storage"
	"github.com/ahrav/go-bankprep/internal/domain"
	"github.com/ahrav/go-bankprep/internal/ports"
)

var t0 = time.Date(2025, 2, 10, 9, 0, 0, 0, time.UTC)

func newTracker(t *testing.T) *Tracker {
	t.Helper()
	store, err := storage.NewFileStore(filepath.Join(t.TempDir(), "tracking"))
	require.NoError(t, err)
	tr, err := NewTracker(store, "")
	require.NoError(t, err)
	return tr
}

func run(id, experiment string, f1 float64, started time.Time) domain.Run {
	return domain.Run{
		ID:          id,
		Experiment:  experiment,
		Metrics:     map[string]float64{"test_f1": f1},
		ArtifactKey: "preprocessors/" + id + ".json",
		StartedAt:   started,
	}
}

func TestExperimentName(t *testing.T) {
	assert.Equal(t, "BANK_MARKETING_EXPERIMENTS_alice", ExperimentName("alice"))
}

func TestTracker_BestRun(t *testing.T) {
	ctx := context.Background()
	exp := ExperimentName("alice")

	tests := []struct {
		name   string
		runs   []domain.Run
		wantID string
	}{
		{
			name: "highest metric wins",
			runs: []domain.Run{
				run("a", exp, 0.61, t0),
				run("b", exp, 0.74, t0.Add(time.Hour)),
				run("c", exp, 0.70, t0.Add(2*time.Hour)),
			},
			wantID: "b",
		},
		{
			name: "tie goes to earliest start",
			runs: []domain.Run{
				run("late", exp, 0.8, t0.Add(time.Hour)),
				run("early", exp, 0.8, t0),
			},
			wantID: "early",
		},
		{
			name: "tie on start goes to smaller id",
			runs: []domain.Run{
				run("z", exp, 0.8, t0),
				run("m", exp, 0.8, t0),
			},
			wantID: "m",
		},
		{
			name: "other experiments and non-finite metrics are ignored",
			runs: []domain.Run{
				run("other", "BANK_MARKETING_EXPERIMENTS_bob", 0.99, t0),
				run("nan", exp, math.NaN(), t0),
				run("ok", exp, 0.5, t0),
				{ID: "no-metric", Experiment: exp, StartedAt: t0},
			},
			wantID: "ok",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := newTracker(t)
			for _, r := range tt.runs {
				require.NoError(t, tr.RecordRun(ctx, r))
			}
			best, err := tr.BestRun(ctx, exp, "test_f1")
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, best.ID)
		})
	}
}

func TestTracker_BestRunNotFound(t *testing.T) {
	tr := newTracker(t)
	_, err := tr.BestRun(context.Background(), ExperimentName("nobody"), "test_f1")
	assert.ErrorIs(t, err, ports.ErrRunNotFound)
}

func TestTracker_RecordRunPersists(t *testing.T) {
	ctx := context.Background()
	store, err := storage.NewFileStore(t.TempDir())
	require.NoError(t, err)

	first, err := NewTracker(store, "idx.yaml")
	require.NoError(t, err)
	want := run("r1", "exp", 0.7, t0)
	want.SchemaFingerprint = "abc"
	require.NoError(t, first.RecordRun(ctx, want))

	second, err := NewTracker(store, "idx.yaml")
	require.NoError(t, err)
	runs, err := second.Runs(ctx, "exp")
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, want.ID, runs[0].ID)
	assert.Equal(t, want.Metrics, runs[0].Metrics)
	assert.Equal(t, want.ArtifactKey, runs[0].ArtifactKey)
	assert.Equal(t, "abc", runs[0].SchemaFingerprint)
	assert.True(t, want.StartedAt.Equal(runs[0].StartedAt))
}

func TestTracker_RecordRunValidation(t *testing.T) {
	ctx := context.Background()
	tr := newTracker(t)

	assert.ErrorIs(t, tr.RecordRun(ctx, domain.Run{Experiment: "e"}), domain.ErrInvalidConfiguration)
	assert.ErrorIs(t, tr.RecordRun(ctx, domain.Run{ID: "x"}), domain.ErrInvalidConfiguration)

	require.NoError(t, tr.RecordRun(ctx, run("dup", "e", 1, t0)))
	assert.ErrorIs(t, tr.RecordRun(ctx, run("dup", "e", 1, t0)), domain.ErrInvalidConfiguration)
}

func TestNewTracker_RequiresStore(t *testing.T) {
	_, err := NewTracker(nil, "")
	assert.ErrorIs(t, err, domain.ErrInvalidConfiguration)
}
