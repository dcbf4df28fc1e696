package middleware

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-bankprep/internal/domain"
	"github.com/ahrav/go-bankprep/internal/ports"
)

type counterCall struct {
	metric string
	value  float64
	labels map[string]string
}

type fakeCollector struct {
	mu        sync.Mutex
	latencies []string
	counters  []counterCall
}

func (f *fakeCollector) RecordLatency(op string, _ time.Duration, _ map[string]string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.latencies = append(f.latencies, op)
}

func (f *fakeCollector) RecordCounter(metric string, value float64, labels map[string]string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counters = append(f.counters, counterCall{metric, value, labels})
}

func (f *fakeCollector) RecordGauge(string, float64, map[string]string) {}
func (f *fakeCollector) RecordHistogram(string, float64, map[string]string) {}

func TestOTelStageObserver_Success(t *testing.T) {
	// Given an observer backed by a collector
	collector := &fakeCollector{}
	obs := NewOTelStageObserver(collector)

	// When a stage succeeds
	ctx := obs.StageStarted(context.Background(), "transform", 10)
	require.NotNil(t, ctx)
	obs.StageFinished(ctx, "transform", 10, 5*time.Millisecond, nil)

	// Then latency and rows are recorded with a success status
	assert.Equal(t, []string{"transform"}, collector.latencies)
	require.Len(t, collector.counters, 1)
	assert.Equal(t, ports.MetricRows, collector.counters[0].metric)
	assert.Equal(t, 10.0, collector.counters[0].value)
	assert.Equal(t, "success", collector.counters[0].labels["status"])
}

func TestOTelStageObserver_BatchFailure(t *testing.T) {
	collector := &fakeCollector{}
	obs := NewOTelStageObserver(collector)

	batch := domain.NewBatchError("feature engineering", 4)
	batch.Add(domain.NewSchemaError("age", 0, "a"))
	batch.Add(domain.NewSchemaError("age", 2, "c"))

	ctx := obs.StageStarted(context.Background(), "engineer", 4)
	obs.StageFinished(ctx, "engineer", 4, time.Millisecond, batch)

	require.Len(t, collector.counters, 2)
	assert.Equal(t, "error", collector.counters[0].labels["status"])
	assert.Equal(t, ports.MetricRowFailures, collector.counters[1].metric)
	assert.Equal(t, 2.0, collector.counters[1].value)
}

func TestOTelStageObserver_NilMetrics(t *testing.T) {
	obs := NewOTelStageObserver(nil)
	ctx := obs.StageStarted(context.Background(), "fit", 1)
	assert.NotPanics(t, func() {
		obs.StageFinished(ctx, "fit", 1, time.Millisecond, errors.New("boom"))
	})
}

func TestNoopStageObserver(t *testing.T) {
	var obs ports.StageObserver = ports.NoopStageObserver{}
	ctx := context.Background()
	assert.Equal(t, ctx, obs.StageStarted(ctx, "fit", 1))
	assert.NotPanics(t, func() { obs.StageFinished(ctx, "fit", 1, 0, nil) })
}
