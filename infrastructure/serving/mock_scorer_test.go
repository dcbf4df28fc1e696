package serving

import (
	"context"
	"sync"
	"time"
)

// mockScorer is a configurable Scorer for middleware tests.
type mockScorer struct {
	mu sync.Mutex

	Response      RowResponse
	Err           error
	Delay         time.Duration
	FailFirst     int
	Calls         int
	CallTimes     []time.Time
	LastRequest   RowRequest
	LastHadCancel bool
}

func newMockScorer() *mockScorer {
	return &mockScorer{Response: RowResponse{Label: 1, Probability: 0.9}}
}

func (m *mockScorer) Score(ctx context.Context, req RowRequest) (RowResponse, error) {
	m.mu.Lock()
	m.Calls++
	m.CallTimes = append(m.CallTimes, time.Now())
	m.LastRequest = req
	_, m.LastHadCancel = ctx.Deadline()
	call := m.Calls
	delay := m.Delay
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			return RowResponse{}, ctx.Err()
		case <-time.After(delay):
		}
	}
	if call <= m.FailFirst || (m.FailFirst == 0 && m.Err != nil) {
		return RowResponse{}, m.Err
	}
	return m.Response, nil
}

func (m *mockScorer) Endpoint() string { return "mock://model" }

func (m *mockScorer) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Calls
}

// recordingCollector captures metrics for assertions.
type recordingCollector struct {
	mu         sync.Mutex
	counters   map[string]float64
	histograms map[string][]float64
	labels     []map[string]string
}

func newRecordingCollector() *recordingCollector {
	return &recordingCollector{counters: map[string]float64{}, histograms: map[string][]float64{}}
}

func (c *recordingCollector) RecordLatency(string, time.Duration, map[string]string) {}

func (c *recordingCollector) RecordCounter(metric string, value float64, labels map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counters[metric] += value
	c.labels = append(c.labels, labels)
}

func (c *recordingCollector) RecordGauge(string, float64, map[string]string) {}

func (c *recordingCollector) RecordHistogram(metric string, value float64, _ map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.histograms[metric] = append(c.histograms[metric], value)
}
