package ml

import (
	"fmt"
	"time"

	"otp-predictor/internal/features"
)

// ModelMetadata describes a fitted pipeline.
type ModelMetadata struct {
	Version      string    `json:"version"`
	TrainedAt    time.Time `json:"trained_at"`
	Columns      []string  `json:"columns"`
	EncodedWidth int       `json:"encoded_width"`
	Trees        int       `json:"trees"`
	MaxDepth     int       `json:"max_depth"`
	DeepestTree  int       `json:"deepest_tree"`
	Seed         int64     `json:"seed"`
	TrainRows    int       `json:"train_rows"`
	TestRows     int       `json:"test_rows"`
	DroppedRows  int       `json:"dropped_rows"`
	MAE          float64   `json:"mae"`
	R2           float64   `json:"r2"`
}

// FittedPipeline is the trained preprocessing + forest pair. It is never
// mutated after Train returns, so a single value can serve concurrent
// requests.
type FittedPipeline struct {
	Metadata     ModelMetadata `json:"metadata"`
	Preprocessor *Preprocessor `json:"preprocessor"`
	Forest       *RandomForest `json:"forest"`
}

// Predict returns the on-time arrival percentage for one feature row.
// Every failure is a *PredictionError.
func (p *FittedPipeline) Predict(row features.FeatureRow) (pred float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			pred = 0
			err = &PredictionError{Kind: KindUnknown, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	if p == nil || p.Preprocessor == nil || p.Forest == nil {
		return 0, &PredictionError{Kind: KindUnknown, Err: ErrNotFitted}
	}

	x, err := p.Preprocessor.Transform(row)
	if err != nil {
		return 0, asPredictionError(err)
	}
	pred, err = p.Forest.Predict(x)
	if err != nil {
		return 0, asPredictionError(err)
	}
	return pred, nil
}

// PredictBatch predicts every row, stopping at the first failure.
func (p *FittedPipeline) PredictBatch(rows []features.FeatureRow) ([]float64, error) {
	out := make([]float64, len(rows))
	for i, row := range rows {
		v, err := p.Predict(row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

// Columns returns the training column order.
func (p *FittedPipeline) Columns() []string {
	return append([]string{}, p.Preprocessor.Columns...)
}

func asPredictionError(err error) error {
	if _, ok := err.(*PredictionError); ok {
		return err
	}
	return &PredictionError{Kind: KindUnknown, Err: err}
}
