package ml

import (
	"math/rand"
	"sort"
)

const leafFeature = -1

// treeNode is one node of a fitted regression tree. Leaves carry
// Feature == -1 and the mean target of their samples in Value.
type treeNode struct {
	Feature   int     `json:"f"`
	Threshold float64 `json:"t,omitempty"`
	Left      int     `json:"l,omitempty"`
	Right     int     `json:"r,omitempty"`
	Value     float64 `json:"v"`
}

// RegressionTree is a CART tree grown with squared-error splits.
type RegressionTree struct {
	Nodes []treeNode `json:"nodes"`
}

type treeParams struct {
	maxDepth        int // 0 = unlimited
	minSamplesSplit int
	minSamplesLeaf  int
}

// minImpurityDecrease guards against splitting on floating point noise.
const minImpurityDecrease = 1e-12

type sortPair struct {
	v float64
	i int
}

type treeBuilder struct {
	x      [][]float64
	y      []float64
	params treeParams
	rng    *rand.Rand
	feats  []int
	pairs  []sortPair
	tree   *RegressionTree
}

// fitTree grows a tree on the samples listed in idx (duplicates allowed,
// as produced by bootstrapping).
func fitTree(x [][]float64, y []float64, idx []int, params treeParams, rng *rand.Rand) *RegressionTree {
	nFeatures := 0
	if len(x) > 0 {
		nFeatures = len(x[0])
	}
	b := &treeBuilder{
		x:      x,
		y:      y,
		params: params,
		rng:    rng,
		feats:  make([]int, nFeatures),
		pairs:  make([]sortPair, len(idx)),
		tree:   &RegressionTree{Nodes: make([]treeNode, 0, 2*len(idx)/maxInt(params.minSamplesLeaf, 1))},
	}
	for i := range b.feats {
		b.feats[i] = i
	}
	work := append([]int(nil), idx...)
	b.grow(work, 0)
	return b.tree
}

func (b *treeBuilder) grow(idx []int, depth int) int {
	var sum, sumSq float64
	for _, i := range idx {
		sum += b.y[i]
		sumSq += b.y[i] * b.y[i]
	}
	n := float64(len(idx))
	mean := sum / n

	self := len(b.tree.Nodes)
	b.tree.Nodes = append(b.tree.Nodes, treeNode{Feature: leafFeature, Value: mean})

	if len(idx) < b.params.minSamplesSplit || len(idx) < 2*b.params.minSamplesLeaf {
		return self
	}
	if b.params.maxDepth > 0 && depth >= b.params.maxDepth {
		return self
	}
	if sumSq-sum*mean <= minImpurityDecrease {
		return self
	}

	feature, threshold, ok := b.bestSplit(idx, sum)
	if !ok {
		return self
	}

	// Partition idx in place: left holds x <= threshold.
	lo, hi := 0, len(idx)-1
	for lo <= hi {
		if b.x[idx[lo]][feature] <= threshold {
			lo++
		} else {
			idx[lo], idx[hi] = idx[hi], idx[lo]
			hi--
		}
	}
	if lo == 0 || lo == len(idx) {
		return self
	}

	left := b.grow(idx[:lo], depth+1)
	right := b.grow(idx[lo:], depth+1)

	node := &b.tree.Nodes[self]
	node.Feature = feature
	node.Threshold = threshold
	node.Left = left
	node.Right = right
	return self
}

// bestSplit scans every feature in a random order and returns the split
// that maximises the between-children sum of squares.
func (b *treeBuilder) bestSplit(idx []int, total float64) (int, float64, bool) {
	n := len(idx)
	minLeaf := b.params.minSamplesLeaf

	b.rng.Shuffle(len(b.feats), func(i, j int) { b.feats[i], b.feats[j] = b.feats[j], b.feats[i] })

	parentProxy := total * total / float64(n)
	bestProxy := parentProxy + minImpurityDecrease
	bestFeature, bestThreshold := -1, 0.0

	pairs := b.pairs[:n]
	for _, f := range b.feats {
		constant := true
		first := b.x[idx[0]][f]
		for k, i := range idx {
			v := b.x[i][f]
			pairs[k] = sortPair{v: v, i: i}
			if v != first {
				constant = false
			}
		}
		if constant {
			continue
		}
		sort.Slice(pairs, func(a, c int) bool { return pairs[a].v < pairs[c].v })

		var leftSum float64
		for k := 0; k < n-1; k++ {
			leftSum += b.y[pairs[k].i]
			if pairs[k].v == pairs[k+1].v {
				continue
			}
			nLeft := k + 1
			nRight := n - nLeft
			if nLeft < minLeaf || nRight < minLeaf {
				continue
			}
			rightSum := total - leftSum
			proxy := leftSum*leftSum/float64(nLeft) + rightSum*rightSum/float64(nRight)
			if proxy > bestProxy {
				bestProxy = proxy
				bestFeature = f
				bestThreshold = pairs[k].v/2 + pairs[k+1].v/2
				if bestThreshold == pairs[k+1].v {
					bestThreshold = pairs[k].v
				}
			}
		}
	}

	return bestFeature, bestThreshold, bestFeature >= 0
}

// Predict walks the tree for one encoded sample.
func (t *RegressionTree) Predict(x []float64) float64 {
	i := 0
	for {
		node := &t.Nodes[i]
		if node.Feature == leafFeature {
			return node.Value
		}
		if x[node.Feature] <= node.Threshold {
			i = node.Left
		} else {
			i = node.Right
		}
	}
}

// Depth returns the length of the longest root-to-leaf path.
func (t *RegressionTree) Depth() int {
	var walk func(i int) int
	walk = func(i int) int {
		node := t.Nodes[i]
		if node.Feature == leafFeature {
			return 0
		}
		return 1 + maxInt(walk(node.Left), walk(node.Right))
	}
	if len(t.Nodes) == 0 {
		return 0
	}
	return walk(0)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
