package ml

import (
	"context"
	"fmt"
	"os"
	"time"

	"otp-predictor/internal/features"

	"github.com/rs/zerolog/log"
)

// MetricsInterface defines metrics methods needed by the predictor
type MetricsInterface interface {
	PredictionsInc()
	PredictionFailuresInc(kind string)
	PredictionLatencyObserve(float64)
	PredictionValueObserve(float64)
	ModelAgeSet(float64)
}

// Predictor serves a loaded pipeline. It owns no mutable state, so one
// instance is shared by every request handler.
type Predictor struct {
	pipeline  *FittedPipeline
	modelPath string
	loadedAt  time.Time
	metrics   MetricsInterface
}

// NewPredictor wraps an already fitted pipeline.
func NewPredictor(p *FittedPipeline, metrics MetricsInterface) (*Predictor, error) {
	if p == nil {
		return nil, ErrNotFitted
	}
	pr := &Predictor{
		pipeline: p,
		loadedAt: time.Now(),
		metrics:  metrics,
	}
	if metrics != nil && !p.Metadata.TrainedAt.IsZero() {
		metrics.ModelAgeSet(time.Since(p.Metadata.TrainedAt).Seconds())
	}
	return pr, nil
}

// LoadPredictor reads the artifact at path once and wraps it.
func LoadPredictor(path string, metrics MetricsInterface) (*Predictor, error) {
	p, err := LoadPipeline(path)
	if err != nil {
		return nil, err
	}

	pr, err := NewPredictor(p, metrics)
	if err != nil {
		return nil, err
	}
	pr.modelPath = path

	if info, err := os.Stat(path); err == nil {
		log.Info().
			Str("model_path", path).
			Str("version", p.Metadata.Version).
			Int("trees", p.Metadata.Trees).
			Int64("size_bytes", info.Size()).
			Msg("Model loaded successfully")
	}
	return pr, nil
}

// Predict returns the predicted on-time arrival percentage for row.
func (p *Predictor) Predict(ctx context.Context, row features.FeatureRow) (float64, error) {
	if p == nil {
		return 0, fmt.Errorf("predictor is nil")
	}

	start := time.Now()
	defer func() {
		if p.metrics != nil {
			p.metrics.PredictionLatencyObserve(time.Since(start).Seconds())
		}
	}()

	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	default:
	}

	pred, err := p.pipeline.Predict(row)
	if err != nil {
		kind := KindOf(err)
		log.Error().
			Err(err).
			Str("kind", string(kind)).
			Strs("categorical", row.Categorical).
			Floats64("numeric", row.Numeric).
			Msg("Prediction failed")
		if p.metrics != nil {
			p.metrics.PredictionFailuresInc(string(kind))
		}
		return 0, err
	}

	if p.metrics != nil {
		p.metrics.PredictionsInc()
		p.metrics.PredictionValueObserve(pred)
	}

	log.Debug().
		Strs("categorical", row.Categorical).
		Floats64("numeric", row.Numeric).
		Float64("prediction", pred).
		Msg("Prediction successful")

	return pred, nil
}

// Metadata describes the served model.
func (p *Predictor) Metadata() ModelMetadata {
	return p.pipeline.Metadata
}

// ModelPath is the artifact the predictor was loaded from, if any.
func (p *Predictor) ModelPath() string {
	return p.modelPath
}

// Uptime is the time since the model was loaded.
func (p *Predictor) Uptime() time.Duration {
	return time.Since(p.loadedAt)
}

// KnownCategory reports whether value was seen in the given categorical
// column at training time. Unknown values still predict; they encode to zeros.
func (p *Predictor) KnownCategory(field features.Field, value string) bool {
	for i, f := range features.CategoricalFields {
		if f == field {
			return p.pipeline.Preprocessor.Encoder.Known(i, value)
		}
	}
	return false
}
