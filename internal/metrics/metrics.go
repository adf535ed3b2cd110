// Package metrics provides Prometheus metrics collection for the OTP predictor.
// It defines the serving, training and presentation metrics exposed on the
// /metrics endpoint of the serving process.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// Metrics holds all Prometheus metrics for the predictor.
type Metrics struct {
	// Serving metrics
	Predictions        prometheus.Counter     // Total number of successful predictions
	PredictionFailures *prometheus.CounterVec // Failed predictions by error kind
	PredictionLatency  prometheus.Histogram   // Prediction latency in seconds
	PredictionValues   prometheus.Histogram   // Distribution of predicted on-time percentages
	ModelAge           prometheus.Gauge       // Age of the served model in seconds

	// Training metrics
	TrainingMAE      prometheus.Gauge       // Held-out mean absolute error of the last run
	TrainingR2       prometheus.Gauge       // Held-out R² of the last run
	RecordsDropped   *prometheus.CounterVec // Corpus records dropped by reason
	TrainingDuration prometheus.Histogram   // Wall time of training runs

	// Presentation metrics
	FormSubmissions prometheus.Counter // Total number of form submissions
	WSClients       prometheus.Gauge   // Open websocket feed connections
}

// New creates and registers all Prometheus metrics using the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates metrics with a custom registry (useful for testing).
func NewWithRegistry(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		Predictions: factory.NewCounter(prometheus.CounterOpts{
			Name: "predictions_total",
			Help: "Total number of successful predictions",
		}),
		PredictionFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "prediction_failures_total",
			Help: "Total number of failed predictions by error kind",
		}, []string{"kind"}),
		PredictionLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "prediction_latency_seconds",
			Help:    "Prediction latency in seconds",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		}),
		PredictionValues: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "prediction_values",
			Help:    "Distribution of predicted on-time arrival percentages",
			Buckets: prometheus.LinearBuckets(0, 10, 11),
		}),
		ModelAge: factory.NewGauge(prometheus.GaugeOpts{
			Name: "model_age_seconds",
			Help: "Age of the served model in seconds",
		}),
		TrainingMAE: factory.NewGauge(prometheus.GaugeOpts{
			Name: "training_mae",
			Help: "Held-out mean absolute error of the last training run",
		}),
		TrainingR2: factory.NewGauge(prometheus.GaugeOpts{
			Name: "training_r2",
			Help: "Held-out coefficient of determination of the last training run",
		}),
		RecordsDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "training_records_dropped_total",
			Help: "Corpus records dropped during cleaning by reason",
		}, []string{"reason"}),
		TrainingDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "training_duration_seconds",
			Help:    "Duration of training runs in seconds",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
		}),
		FormSubmissions: factory.NewCounter(prometheus.CounterOpts{
			Name: "form_submissions_total",
			Help: "Total number of prediction form submissions",
		}),
		WSClients: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ws_clients",
			Help: "Number of open websocket feed connections",
		}),
	}
}

// FailureRate returns failed predictions over all predictions, or 0 if none
// have been recorded. The health endpoint reports it.
func (m *Metrics) FailureRate() float64 {
	ok := metricValue(m.Predictions)

	var failed float64
	ch := make(chan prometheus.Metric, 8)
	go func() {
		m.PredictionFailures.Collect(ch)
		close(ch)
	}()
	for c := range ch {
		failed += metricValue(c)
	}

	total := ok + failed
	if total == 0 {
		return 0
	}
	return failed / total
}

func metricValue(c prometheus.Metric) float64 {
	pb := &dto.Metric{}
	if err := c.Write(pb); err != nil {
		return 0
	}
	return pb.GetCounter().GetValue()
}
