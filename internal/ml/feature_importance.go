package ml

import (
	"fmt"
	"math/rand"
	"sort"

	"otp-predictor/internal/features"
)

// FeatureImportance is the held-out error increase observed when one input
// column is shuffled across rows.
type FeatureImportance struct {
	Column      string  `json:"column"`
	MAEIncrease float64 `json:"mae_increase"`
}

// PermutationImportance scores every input column of rows against targets,
// most important first. Negative increases are kept; they mean the column
// adds noise on this sample.
func PermutationImportance(pipe *FittedPipeline, rows []features.FeatureRow, targets []float64, seed int64) ([]FeatureImportance, error) {
	if len(rows) != len(targets) {
		return nil, fmt.Errorf("have %d rows and %d targets", len(rows), len(targets))
	}
	if len(rows) < 2 {
		return nil, nil
	}

	baseline, err := pipe.PredictBatch(rows)
	if err != nil {
		return nil, err
	}
	baseMAE := MeanAbsoluteError(targets, baseline)

	rng := rand.New(rand.NewSource(seed))
	columns := rows[0].Columns
	nCat := len(rows[0].Categorical)

	out := make([]FeatureImportance, 0, len(columns))
	permuted := make([]features.FeatureRow, len(rows))
	for col, name := range columns {
		perm := rng.Perm(len(rows))
		for i, row := range rows {
			permuted[i] = shuffledRow(row, rows[perm[i]], col, nCat)
		}

		preds, err := pipe.PredictBatch(permuted)
		if err != nil {
			return nil, fmt.Errorf("permute %s: %w", name, err)
		}
		out = append(out, FeatureImportance{
			Column:      name,
			MAEIncrease: MeanAbsoluteError(targets, preds) - baseMAE,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].MAEIncrease > out[j].MAEIncrease
	})
	return out, nil
}

// shuffledRow copies row with column col taken from donor.
func shuffledRow(row, donor features.FeatureRow, col, nCat int) features.FeatureRow {
	r := features.FeatureRow{
		Columns:     row.Columns,
		Categorical: row.Categorical,
		Numeric:     row.Numeric,
	}
	if col < nCat {
		r.Categorical = append([]string{}, row.Categorical...)
		r.Categorical[col] = donor.Categorical[col]
	} else {
		r.Numeric = append([]float64{}, row.Numeric...)
		r.Numeric[col-nCat] = donor.Numeric[col-nCat]
	}
	return r
}

// TopFeatures returns the names of the n most important columns.
func TopFeatures(imp []FeatureImportance, n int) []string {
	if n > len(imp) {
		n = len(imp)
	}
	if n < 0 {
		n = 0
	}
	names := make([]string, 0, n)
	for _, fi := range imp[:n] {
		names = append(names, fi.Column)
	}
	return names
}
