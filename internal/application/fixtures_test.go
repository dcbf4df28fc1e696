package application

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-bankprep/internal/domain"
	"github.com/ahrav/go-bankprep/internal/ports"
)

// testComponents builds components over a filesystem store in a temp dir.
func testComponents(t *testing.T, metrics ports.MetricsCollector) *Components {
	t.Helper()
	cfg := DefaultPipelineConfig()
	cfg.Storage.Root = t.TempDir()
	cfg.Tracking.User = "tester"

	c, err := NewComponents(&cfg, metrics)
	require.NoError(t, err)
	return c
}

// countingStore wraps an ArtifactStore and counts Get calls.
type countingStore struct {
	ports.ArtifactStore
	gets atomic.Int64
}

func (s *countingStore) Get(ctx context.Context, key string) ([]byte, error) {
	s.gets.Add(1)
	return s.ArtifactStore.Get(ctx, key)
}

// memStore is an in-memory ArtifactStore.
type memStore struct {
	mu   sync.Mutex
	data map[string][]byte
	puts int
}

func newMemStore() *memStore { return &memStore{data: make(map[string][]byte)} }

func (s *memStore) Put(_ context.Context, key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.puts++
	s.data[key] = slices.Clone(data)
	return nil
}

func (s *memStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.data[key]
	if !ok {
		return nil, ports.NewStorageError("mem", key, "get", domain.ErrArtifactNotFound)
	}
	return slices.Clone(d), nil
}

func (s *memStore) Exists(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.data[key]
	return ok, nil
}

// fakeServer predicts label 1 for every row and keeps the matrix it saw.
type fakeServer struct {
	mu     sync.Mutex
	matrix *domain.FeatureMatrix
	err    error
}

func (s *fakeServer) Predict(_ context.Context, m *domain.FeatureMatrix) ([]domain.Prediction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.matrix = m
	if s.err != nil {
		return nil, s.err
	}
	out := make([]domain.Prediction, m.Len())
	for i := range out {
		out[i] = domain.Prediction{Row: i, RowID: m.RowIDs[i], Label: 1, Probability: 0.75}
	}
	return out, nil
}

// recordingMetrics keeps counters and gauges by metric and label set.
type recordingMetrics struct {
	mu       sync.Mutex
	counters map[string]float64
	gauges   map[string]float64
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{counters: make(map[string]float64), gauges: make(map[string]float64)}
}

func metricKey(metric string, labels map[string]string) string {
	key := metric
	names := make([]string, 0, len(labels))
	for k := range labels {
		names = append(names, k)
	}
	slices.Sort(names)
	for _, k := range names {
		key += "," + k + "=" + labels[k]
	}
	return key
}

func (m *recordingMetrics) RecordLatency(string, time.Duration, map[string]string) {}

func (m *recordingMetrics) RecordCounter(metric string, value float64, labels map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[metricKey(metric, labels)] += value
}

func (m *recordingMetrics) RecordGauge(metric string, value float64, labels map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gauges[metricKey(metric, labels)] = value
}

func (m *recordingMetrics) RecordHistogram(string, float64, map[string]string) {}

func (m *recordingMetrics) counter(metric string, labels map[string]string) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counters[metricKey(metric, labels)]
}

func (m *recordingMetrics) gauge(metric string) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gauges[metric]
}
