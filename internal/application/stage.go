package application

import (
	"context"
	"time"

	"github.com/ahrav/go-bankprep/internal/ports"
)

// Stage names reported to ports.StageObserver.
const (
	StageEngineer  = "engineer"
	StageFit       = "fit"
	StageTransform = "transform"
	StageStore     = "store"
	StageLoad      = "load"
	StageScore     = "score"
)

// runStage brackets fn with observer callbacks.
func runStage(
	ctx context.Context,
	observer ports.StageObserver,
	stage string,
	rows int,
	fn func(ctx context.Context) error,
) error {
	start := time.Now()
	ctx = observer.StageStarted(ctx, stage, rows)
	err := fn(ctx)
	observer.StageFinished(ctx, stage, rows, time.Since(start), err)
	return err
}

// recordUnknown exports unseen-category counts per feature.
func recordUnknown(metrics ports.MetricsCollector, unknown map[string]int) {
	if metrics == nil {
		return
	}
	for feature, n := range unknown {
		if n > 0 {
			metrics.RecordCounter(ports.MetricUnknownCategories, float64(n), map[string]string{"feature": feature})
		}
	}
}
