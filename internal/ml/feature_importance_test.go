package ml

import (
	"testing"

	"otp-predictor/internal/features"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPermutationImportance_RanksEveryColumn(t *testing.T) {
	_, eval := trainSmall(t)

	require.Len(t, eval.Importance, len(features.Columns()))
	assert.ElementsMatch(t, features.Columns(), TopFeatures(eval.Importance, len(eval.Importance)))
	for i := 1; i < len(eval.Importance); i++ {
		assert.GreaterOrEqual(t, eval.Importance[i-1].MAEIncrease, eval.Importance[i].MAEIncrease)
	}
	assert.Greater(t, eval.Importance[0].MAEIncrease, 0.0)
}

func TestPermutationImportance_LeavesRowsIntact(t *testing.T) {
	pipe, _ := trainSmall(t)

	rows := []features.FeatureRow{sampleRow("A-B", "X"), sampleRow("C-D", "Z")}
	rows[1].Numeric[0] = 60
	before := []float64{rows[0].Numeric[0], rows[1].Numeric[0]}

	imp, err := PermutationImportance(pipe, rows, []float64{80, 70}, 1)
	require.NoError(t, err)
	assert.Len(t, imp, len(features.Columns()))

	assert.Equal(t, "X", rows[0].Categorical[3])
	assert.Equal(t, "Z", rows[1].Categorical[3])
	assert.Equal(t, before, []float64{rows[0].Numeric[0], rows[1].Numeric[0]})
}

func TestPermutationImportance_Edges(t *testing.T) {
	pipe, _ := trainSmall(t)

	_, err := PermutationImportance(pipe, []features.FeatureRow{sampleRow("A-B", "X")}, nil, 1)
	assert.Error(t, err)

	imp, err := PermutationImportance(pipe, []features.FeatureRow{sampleRow("A-B", "X")}, []float64{80}, 1)
	require.NoError(t, err)
	assert.Empty(t, imp)

	assert.Empty(t, TopFeatures(nil, 3))
	assert.Equal(t, []string{"b"}, TopFeatures([]FeatureImportance{{Column: "b", MAEIncrease: 2}, {Column: "a"}}, 1))
}
