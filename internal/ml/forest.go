package ml

import (
	"context"
	"fmt"
	"math/rand"
	"runtime"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// ForestConfig controls how a RandomForest is grown.
type ForestConfig struct {
	Trees           int   `json:"trees" yaml:"trees"`
	MaxDepth        int   `json:"max_depth" yaml:"maxDepth"` // 0 = unlimited
	MinSamplesSplit int   `json:"min_samples_split" yaml:"minSamplesSplit"`
	MinSamplesLeaf  int   `json:"min_samples_leaf" yaml:"minSamplesLeaf"`
	Seed            int64 `json:"seed" yaml:"seed"`
	Workers         int   `json:"-" yaml:"workers"` // 0 = runtime.NumCPU()
}

// DefaultForestConfig mirrors the production model: 300 fully grown trees.
func DefaultForestConfig() ForestConfig {
	return ForestConfig{
		Trees:           300,
		MaxDepth:        0,
		MinSamplesSplit: 2,
		MinSamplesLeaf:  1,
		Seed:            42,
	}
}

// RandomForest averages bootstrapped regression trees.
type RandomForest struct {
	Config    ForestConfig      `json:"config"`
	NFeatures int               `json:"n_features"`
	Trees     []*RegressionTree `json:"trees"`
}

// NewRandomForest returns an unfitted forest.
func NewRandomForest(cfg ForestConfig) *RandomForest {
	if cfg.MinSamplesSplit < 2 {
		cfg.MinSamplesSplit = 2
	}
	if cfg.MinSamplesLeaf < 1 {
		cfg.MinSamplesLeaf = 1
	}
	return &RandomForest{Config: cfg}
}

// Fit grows every tree on its own bootstrap sample. Tree i draws from a
// generator seeded with Seed+i, so the fitted forest does not depend on
// how trees are scheduled across workers.
func (f *RandomForest) Fit(ctx context.Context, x [][]float64, y []float64) error {
	if len(x) == 0 {
		return ErrEmptyDataset
	}
	if len(x) != len(y) {
		return fmt.Errorf("got %d samples and %d targets", len(x), len(y))
	}
	if f.Config.Trees <= 0 {
		return fmt.Errorf("forest needs at least one tree, got %d", f.Config.Trees)
	}

	nFeatures := len(x[0])
	for i, row := range x {
		if len(row) != nFeatures {
			return fmt.Errorf("sample %d has %d features, want %d", i, len(row), nFeatures)
		}
	}

	workers := f.Config.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	params := treeParams{
		maxDepth:        f.Config.MaxDepth,
		minSamplesSplit: f.Config.MinSamplesSplit,
		minSamplesLeaf:  f.Config.MinSamplesLeaf,
	}

	trees := make([]*RegressionTree, f.Config.Trees)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	n := len(x)
	for t := range trees {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rng := rand.New(rand.NewSource(f.Config.Seed + int64(t)))
			sample := make([]int, n)
			for i := range sample {
				sample[i] = rng.Intn(n)
			}
			trees[t] = fitTree(x, y, sample, params, rng)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("fit forest: %w", err)
	}

	f.NFeatures = nFeatures
	f.Trees = trees

	log.Debug().
		Int("trees", len(trees)).
		Int("features", nFeatures).
		Int("samples", n).
		Int("workers", workers).
		Msg("Random forest fitted")
	return nil
}

// Predict averages the trees' outputs for one encoded sample.
func (f *RandomForest) Predict(x []float64) (float64, error) {
	if len(f.Trees) == 0 {
		return 0, ErrNotFitted
	}
	if len(x) != f.NFeatures {
		return 0, shapeErrorf("encoded row has %d features, forest expects %d", len(x), f.NFeatures)
	}
	var sum float64
	for _, t := range f.Trees {
		sum += t.Predict(x)
	}
	return sum / float64(len(f.Trees)), nil
}

// MaxTreeDepth reports the deepest tree in the forest.
func (f *RandomForest) MaxTreeDepth() int {
	depth := 0
	for _, t := range f.Trees {
		depth = maxInt(depth, t.Depth())
	}
	return depth
}
