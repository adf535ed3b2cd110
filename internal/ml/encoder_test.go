package ml

import (
	"encoding/json"
	"errors"
	"math"
	"testing"

	"otp-predictor/internal/features"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOneHotEncoder_FitSortsVocabulary(t *testing.T) {
	enc := &OneHotEncoder{}
	require.NoError(t, enc.Fit([][]string{{"b", "x"}, {"a", "x"}, {"c", "y"}}))

	assert.Equal(t, []string{"a", "b", "c"}, enc.Categories[0])
	assert.Equal(t, []string{"x", "y"}, enc.Categories[1])
	assert.Equal(t, 5, enc.Width())

	dst := make([]float64, enc.Width())
	require.NoError(t, enc.Encode([]string{"b", "y"}, dst))
	assert.Equal(t, []float64{0, 1, 0, 0, 1}, dst)
}

func TestOneHotEncoder_UnknownIsAllZero(t *testing.T) {
	enc := &OneHotEncoder{}
	require.NoError(t, enc.Fit([][]string{{"a", "x"}, {"b", "y"}}))

	dst := make([]float64, enc.Width())
	require.NoError(t, enc.Encode([]string{"never-seen", "x"}, dst))
	assert.Equal(t, []float64{0, 0, 1, 0}, dst)
	assert.False(t, enc.Known(0, "never-seen"))
	assert.True(t, enc.Known(1, "x"))
}

func TestOneHotEncoder_RestoredFromJSON(t *testing.T) {
	enc := &OneHotEncoder{}
	require.NoError(t, enc.Fit([][]string{{"a"}, {"b"}}))

	data, err := json.Marshal(enc)
	require.NoError(t, err)

	var restored OneHotEncoder
	require.NoError(t, json.Unmarshal(data, &restored))
	assert.Equal(t, 2, restored.Width())

	dst := make([]float64, 2)
	require.NoError(t, restored.Encode([]string{"b"}, dst))
	assert.Equal(t, []float64{0, 1}, dst)
}

func TestOneHotEncoder_NotFitted(t *testing.T) {
	enc := &OneHotEncoder{}
	err := enc.Encode([]string{"a"}, make([]float64, 1))
	assert.ErrorIs(t, err, ErrNotFitted)
}

func TestPreprocessor_Transform(t *testing.T) {
	rows := []features.FeatureRow{sampleRow("A-B", "X"), sampleRow("C-D", "Y")}
	pre, err := FitPreprocessor(rows)
	require.NoError(t, err)

	// route: 2, departing: 1, arriving: 1, airline: 2
	assert.Equal(t, 6+features.NumNumeric, pre.Width())

	x, err := pre.Transform(sampleRow("C-D", "X"))
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 1, 1, 1, 1, 0}, x[:6])
	assert.Equal(t, 120.0, x[6])
	assert.Equal(t, 2018.0, x[len(x)-1])
}

func TestPreprocessor_ShapeErrors(t *testing.T) {
	pre, err := FitPreprocessor([]features.FeatureRow{sampleRow("A-B", "X")})
	require.NoError(t, err)

	swapped := sampleRow("A-B", "X")
	swapped.Columns = append([]string{}, swapped.Columns...)
	swapped.Columns[0], swapped.Columns[3] = swapped.Columns[3], swapped.Columns[0]

	short := sampleRow("A-B", "X")
	short.Numeric = short.Numeric[:5]

	noColumns := sampleRow("A-B", "X")
	noColumns.Columns = nil

	for name, row := range map[string]features.FeatureRow{
		"reordered columns": swapped,
		"short numeric":     short,
		"no columns":        noColumns,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := pre.Transform(row)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrShapeMismatch), "got %v", err)
			assert.Equal(t, KindShapeMismatch, KindOf(err))
		})
	}
}

func TestPreprocessor_NonFiniteIsEncodingError(t *testing.T) {
	pre, err := FitPreprocessor([]features.FeatureRow{sampleRow("A-B", "X")})
	require.NoError(t, err)

	row := sampleRow("A-B", "X")
	row.Numeric[2] = math.NaN()

	_, err = pre.Transform(row)
	assert.ErrorIs(t, err, ErrEncoding)
	assert.Contains(t, err.Error(), "cancellations")
}
