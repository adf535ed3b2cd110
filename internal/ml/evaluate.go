package ml

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// TrainTestSplit shuffles n indexes with seed and holds out
// ceil(n*testFraction) of them for testing.
func TrainTestSplit(n int, testFraction float64, seed int64) (train, test []int) {
	if n == 0 {
		return nil, nil
	}
	nTest := int(math.Ceil(float64(n) * testFraction))
	if nTest >= n {
		nTest = n - 1
	}
	if nTest < 0 {
		nTest = 0
	}
	perm := rand.New(rand.NewSource(seed)).Perm(n)
	return perm[nTest:], perm[:nTest]
}

// MeanAbsoluteError is the mean of |actual - predicted|.
func MeanAbsoluteError(actual, predicted []float64) float64 {
	if len(actual) == 0 {
		return math.NaN()
	}
	return floats.Distance(actual, predicted, 1) / float64(len(actual))
}

// R2Score is the coefficient of determination of predicted against actual.
// It is always finite: fewer than two rows score 0, and a constant actual
// scores 1 when matched exactly and 0 otherwise.
func R2Score(actual, predicted []float64) float64 {
	if len(actual) < 2 {
		return 0
	}
	mean := stat.Mean(actual, nil)
	var ssTot float64
	for _, v := range actual {
		ssTot += (v - mean) * (v - mean)
	}
	if ssTot == 0 {
		if floats.Distance(actual, predicted, 2) == 0 {
			return 1
		}
		return 0
	}
	return stat.RSquaredFrom(predicted, actual, nil)
}
