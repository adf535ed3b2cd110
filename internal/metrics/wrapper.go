package metrics

import "github.com/prometheus/client_golang/prometheus"

// Interfaces for metrics to avoid circular imports
type MetricsCounter interface {
	Inc()
}

type MetricsGauge interface {
	Set(float64)
	Add(float64)
}

// MetricsWrapper adapts Metrics to the interfaces the ml and dashboard
// packages consume.
type MetricsWrapper struct {
	m *Metrics
}

func NewWrapper(m *Metrics) *MetricsWrapper {
	return &MetricsWrapper{m: m}
}

// Metrics returns the wrapped instruments.
func (w *MetricsWrapper) Metrics() *Metrics {
	return w.m
}

func (w *MetricsWrapper) PredictionsInc() {
	w.m.Predictions.Inc()
}

func (w *MetricsWrapper) PredictionFailuresInc(kind string) {
	w.m.PredictionFailures.WithLabelValues(kind).Inc()
}

func (w *MetricsWrapper) PredictionLatencyObserve(v float64) {
	w.m.PredictionLatency.Observe(v)
}

func (w *MetricsWrapper) PredictionValueObserve(v float64) {
	w.m.PredictionValues.Observe(v)
}

func (w *MetricsWrapper) ModelAgeSet(v float64) {
	w.m.ModelAge.Set(v)
}

func (w *MetricsWrapper) TrainingRecordsDroppedAdd(reason string, n int) {
	w.m.RecordsDropped.WithLabelValues(reason).Add(float64(n))
}

func (w *MetricsWrapper) TrainingResultSet(mae, r2 float64) {
	w.m.TrainingMAE.Set(mae)
	w.m.TrainingR2.Set(r2)
}

func (w *MetricsWrapper) TrainingDurationObserve(v float64) {
	w.m.TrainingDuration.Observe(v)
}

func (w *MetricsWrapper) FormSubmissions() MetricsCounter {
	return &CounterWrapper{w.m.FormSubmissions}
}

func (w *MetricsWrapper) WSClients() MetricsGauge {
	return &GaugeWrapper{w.m.WSClients}
}

type CounterWrapper struct {
	c prometheus.Counter
}

func (cw *CounterWrapper) Inc() {
	cw.c.Inc()
}

type GaugeWrapper struct {
	g prometheus.Gauge
}

func (gw *GaugeWrapper) Set(v float64) {
	gw.g.Set(v)
}

func (gw *GaugeWrapper) Add(v float64) {
	gw.g.Add(v)
}
