package ml

import "sync"

// MockMetrics implements MetricsInterface and TrainingMetrics for testing
type MockMetrics struct {
	mu          sync.Mutex
	predictions int
	failures    map[string]int
	latencySum  float64
	latencyObs  int
	values      []float64
	modelAge    float64
	dropped     map[string]int
	mae, r2     float64
	trainSecs   float64
}

func (m *MockMetrics) PredictionsInc() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.predictions++
}

func (m *MockMetrics) PredictionFailuresInc(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failures == nil {
		m.failures = make(map[string]int)
	}
	m.failures[kind]++
}

func (m *MockMetrics) PredictionLatencyObserve(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latencySum += v
	m.latencyObs++
}

func (m *MockMetrics) PredictionValueObserve(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values = append(m.values, v)
}

func (m *MockMetrics) ModelAgeSet(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.modelAge = v
}

func (m *MockMetrics) TrainingRecordsDroppedAdd(reason string, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.dropped == nil {
		m.dropped = make(map[string]int)
	}
	m.dropped[reason] += n
}

func (m *MockMetrics) TrainingResultSet(mae, r2 float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mae, m.r2 = mae, r2
}

func (m *MockMetrics) TrainingDurationObserve(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trainSecs = v
}
