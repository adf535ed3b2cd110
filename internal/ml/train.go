package ml

import (
	"context"
	"fmt"
	"time"

	"otp-predictor/internal/features"

	"github.com/rs/zerolog/log"
)

// TrainOptions configures a training run.
type TrainOptions struct {
	Forest       ForestConfig
	TestFraction float64
}

// DefaultTrainOptions is the production configuration: 300 trees, seed 42,
// 80/20 split.
func DefaultTrainOptions() TrainOptions {
	return TrainOptions{
		Forest:       DefaultForestConfig(),
		TestFraction: 0.2,
	}
}

// Comparison pairs a held-out record with its prediction.
type Comparison struct {
	Route     string    `json:"route"`
	Airline   string    `json:"airline"`
	Month     time.Time `json:"month"`
	Actual    float64   `json:"actual"`
	Predicted float64   `json:"predicted"`
}

// Evaluation is the held-out quality of a training run.
type Evaluation struct {
	MAE         float64        `json:"mae"`
	R2          float64        `json:"r2"`
	TrainRows   int            `json:"train_rows"`
	TestRows    int            `json:"test_rows"`
	Dropped     map[string]int `json:"dropped"`
	Duration    time.Duration  `json:"duration"`
	Comparisons []Comparison   `json:"comparisons"`

	// Importance ranks input columns on the held-out rows.
	Importance []FeatureImportance `json:"importance,omitempty"`
}

// TrainingMetrics receives training outcomes; nil is allowed.
type TrainingMetrics interface {
	TrainingRecordsDroppedAdd(reason string, n int)
	TrainingResultSet(mae, r2 float64)
	TrainingDurationObserve(float64)
}

// TrainFromRaw cleans raw corpus rows and trains on the survivors.
func TrainFromRaw(ctx context.Context, raws []features.RawRecord, opts TrainOptions, m TrainingMetrics) (*FittedPipeline, *Evaluation, error) {
	cleaned := features.Clean(raws)

	log.Info().
		Int("rows", len(raws)).
		Int("kept", len(cleaned.Records)).
		Int("dropped", cleaned.DroppedTotal()).
		Msg("Corpus cleaned")

	if m != nil {
		for reason, n := range cleaned.Dropped {
			m.TrainingRecordsDroppedAdd(reason, n)
		}
	}

	pipe, eval, err := Train(ctx, cleaned.Records, opts, m)
	if err != nil {
		return nil, nil, err
	}
	eval.Dropped = cleaned.Dropped
	pipe.Metadata.DroppedRows = cleaned.DroppedTotal()
	return pipe, eval, nil
}

// Train splits the cleaned records, fits the encoder and forest on the train
// partition and scores the held-out partition.
func Train(ctx context.Context, records []features.HistoricalRecord, opts TrainOptions, m TrainingMetrics) (*FittedPipeline, *Evaluation, error) {
	if len(records) < 2 {
		return nil, nil, fmt.Errorf("%w: have %d records", ErrEmptyDataset, len(records))
	}
	start := time.Now()

	trainIdx, testIdx := TrainTestSplit(len(records), opts.TestFraction, opts.Forest.Seed)

	trainRows := make([]features.FeatureRow, len(trainIdx))
	trainY := make([]float64, len(trainIdx))
	for k, i := range trainIdx {
		trainRows[k] = features.Transform(records[i])
		trainY[k] = records[i].OnTimeArrivalsPct
	}

	pre, err := FitPreprocessor(trainRows)
	if err != nil {
		return nil, nil, err
	}

	trainX := make([][]float64, len(trainRows))
	for k, row := range trainRows {
		x, err := pre.Transform(row)
		if err != nil {
			return nil, nil, fmt.Errorf("encode training row %d: %w", k, err)
		}
		trainX[k] = x
	}

	forest := NewRandomForest(opts.Forest)
	if err := forest.Fit(ctx, trainX, trainY); err != nil {
		return nil, nil, err
	}

	pipe := &FittedPipeline{
		Preprocessor: pre,
		Forest:       forest,
		Metadata: ModelMetadata{
			Version:      time.Now().UTC().Format("20060102-150405"),
			TrainedAt:    time.Now().UTC(),
			Columns:      pre.Columns,
			EncodedWidth: pre.Width(),
			Trees:        len(forest.Trees),
			MaxDepth:     opts.Forest.MaxDepth,
			DeepestTree:  forest.MaxTreeDepth(),
			Seed:         opts.Forest.Seed,
			TrainRows:    len(trainIdx),
			TestRows:     len(testIdx),
		},
	}

	eval, err := evaluate(pipe, records, testIdx, opts.Forest.Seed)
	if err != nil {
		return nil, nil, err
	}
	eval.TrainRows = len(trainIdx)
	eval.Duration = time.Since(start)
	pipe.Metadata.MAE = eval.MAE
	pipe.Metadata.R2 = eval.R2

	if m != nil {
		m.TrainingResultSet(eval.MAE, eval.R2)
		m.TrainingDurationObserve(eval.Duration.Seconds())
	}

	log.Info().
		Int("train_rows", eval.TrainRows).
		Int("test_rows", eval.TestRows).
		Int("encoded_width", pre.Width()).
		Float64("mae", eval.MAE).
		Float64("r2", eval.R2).
		Dur("duration", eval.Duration).
		Strs("top_features", TopFeatures(eval.Importance, 3)).
		Msg("Random forest trained")

	return pipe, eval, nil
}

func evaluate(pipe *FittedPipeline, records []features.HistoricalRecord, testIdx []int, seed int64) (*Evaluation, error) {
	eval := &Evaluation{TestRows: len(testIdx), Comparisons: make([]Comparison, 0, len(testIdx))}
	if len(testIdx) == 0 {
		return eval, nil
	}

	rows := make([]features.FeatureRow, len(testIdx))
	actual := make([]float64, len(testIdx))
	predicted := make([]float64, len(testIdx))
	for k, i := range testIdx {
		rec := records[i]
		rows[k] = features.Transform(rec)
		pred, err := pipe.Predict(rows[k])
		if err != nil {
			return nil, fmt.Errorf("score held-out row %d: %w", k, err)
		}
		actual[k] = rec.OnTimeArrivalsPct
		predicted[k] = pred
		eval.Comparisons = append(eval.Comparisons, Comparison{
			Route:     rec.Route,
			Airline:   rec.Airline,
			Month:     rec.Month,
			Actual:    rec.OnTimeArrivalsPct,
			Predicted: pred,
		})
	}

	eval.MAE = MeanAbsoluteError(actual, predicted)
	eval.R2 = R2Score(actual, predicted)

	imp, err := PermutationImportance(pipe, rows, actual, seed)
	if err != nil {
		return nil, fmt.Errorf("feature importance: %w", err)
	}
	eval.Importance = imp
	return eval, nil
}
