package model

import (
	"fmt"
	"runtime"
	"slices"
	"sort"

	"golang.org/x/sync/errgroup"
)

// parallelMin is the node size from which features are searched
// concurrently.
const parallelMin = 512

// DecisionTree is a CART classifier using gini impurity. Training is
// deterministic: features are searched in index order and ties go to the
// lower feature and the lower threshold.
type DecisionTree struct {
	Params  Params `json:"params"`
	Classes []int  `json:"classes"`
	Width   int    `json:"width"`
	Root    *Node  `json:"root"`
}

// Node is a split when Left is set, otherwise a leaf. Rows with
// x[Feature] <= Threshold go left.
type Node struct {
	Feature   int     `json:"feature,omitempty"`
	Threshold float64 `json:"threshold,omitempty"`
	Left      *Node   `json:"left,omitempty"`
	Right     *Node   `json:"right,omitempty"`
	// Counts holds the training samples per class, aligned with Classes.
	Counts []int `json:"counts"`
	Label  int   `json:"label"`
}

func (n *Node) leaf() bool { return n.Left == nil }

func NewDecisionTree(p Params) *DecisionTree { return &DecisionTree{Params: p} }

func (t *DecisionTree) Fit(X [][]float64, y []int) error {
	if len(X) == 0 {
		return ErrEmptyTrainingSet
	}
	if len(y) != len(X) {
		return fmt.Errorf("%w: %d rows vs %d labels", ErrShape, len(X), len(y))
	}
	width := len(X[0])
	for i, row := range X {
		if len(row) != width {
			return fmt.Errorf("%w: row %d has %d features, want %d", ErrShape, i, len(row), width)
		}
	}
	if err := t.Params.Validate(); err != nil {
		return err
	}

	t.Classes = slices.Clone(y)
	slices.Sort(t.Classes)
	t.Classes = slices.Compact(t.Classes)
	t.Width = width

	b := builder{X: X, y: make([]int, len(y)), nClass: len(t.Classes), p: t.Params, classes: t.Classes}
	for i, label := range y {
		b.y[i], _ = slices.BinarySearch(t.Classes, label)
	}
	idx := make([]int, len(X))
	for i := range idx {
		idx[i] = i
	}
	t.Root = b.grow(idx, 0)
	return nil
}

func (t *DecisionTree) Predict(X [][]float64) ([]int, error) {
	if t.Root == nil {
		return nil, ErrNotFitted
	}
	out := make([]int, len(X))
	for i, row := range X {
		if len(row) != t.Width {
			return nil, fmt.Errorf("%w: row %d has %d features, want %d", ErrShape, i, len(row), t.Width)
		}
		n := t.Root
		for !n.leaf() {
			if row[n.Feature] <= n.Threshold {
				n = n.Left
			} else {
				n = n.Right
			}
		}
		out[i] = n.Label
	}
	return out, nil
}

// Depth is the number of split levels below the root.
func (t *DecisionTree) Depth() int { return depth(t.Root) }

func depth(n *Node) int {
	if n == nil || n.leaf() {
		return 0
	}
	return 1 + max(depth(n.Left), depth(n.Right))
}

type builder struct {
	X       [][]float64
	y       []int // class indexes
	nClass  int
	classes []int
	p       Params
}

type split struct {
	ok        bool
	feature   int
	threshold float64
	impurity  float64
	left      []int
	right     []int
}

func (b *builder) grow(idx []int, level int) *Node {
	counts := b.counts(idx)
	node := &Node{Counts: counts, Label: b.classes[argmax(counts)]}
	if len(idx) < b.p.MinSamplesSplit || (b.p.MaxDepth > 0 && level >= b.p.MaxDepth) || pure(counts) {
		return node
	}
	best := b.bestSplit(idx)
	if !best.ok || best.impurity >= gini(counts, len(idx)) {
		return node
	}
	node.Feature, node.Threshold = best.feature, best.threshold
	node.Left = b.grow(best.left, level+1)
	node.Right = b.grow(best.right, level+1)
	return node
}

func (b *builder) bestSplit(idx []int) split {
	width := len(b.X[0])
	found := make([]split, width)
	if len(idx) >= parallelMin {
		var g errgroup.Group
		g.SetLimit(runtime.GOMAXPROCS(0))
		for f := range width {
			g.Go(func() error {
				found[f] = b.searchFeature(idx, f)
				return nil
			})
		}
		_ = g.Wait()
	} else {
		for f := range width {
			found[f] = b.searchFeature(idx, f)
		}
	}

	var best split
	for _, s := range found {
		if s.ok && (!best.ok || s.impurity < best.impurity) {
			best = s
		}
	}
	return best
}

// searchFeature sweeps the rows sorted by feature f and returns the split
// with the lowest weighted gini that leaves MinSamplesLeaf on each side.
func (b *builder) searchFeature(idx []int, f int) split {
	order := slices.Clone(idx)
	sort.SliceStable(order, func(i, j int) bool { return b.X[order[i]][f] < b.X[order[j]][f] })

	n := len(order)
	left := make([]int, b.nClass)
	right := b.counts(order)
	best := split{feature: f}
	bestAt := -1
	for i := 0; i < n-1; i++ {
		c := b.y[order[i]]
		left[c]++
		right[c]--
		nl, nr := i+1, n-i-1
		lo, hi := b.X[order[i]][f], b.X[order[i+1]][f]
		if lo == hi || nl < b.p.MinSamplesLeaf || nr < b.p.MinSamplesLeaf {
			continue
		}
		imp := (float64(nl)*gini(left, nl) + float64(nr)*gini(right, nr)) / float64(n)
		if bestAt < 0 || imp < best.impurity {
			th := lo + (hi-lo)/2
			if th >= hi {
				th = lo
			}
			best.ok, best.impurity, best.threshold = true, imp, th
			bestAt = i
		}
	}
	if bestAt >= 0 {
		best.left = order[:bestAt+1]
		best.right = order[bestAt+1:]
	}
	return best
}

func (b *builder) counts(idx []int) []int {
	out := make([]int, b.nClass)
	for _, i := range idx {
		out[b.y[i]]++
	}
	return out
}

func gini(counts []int, n int) float64 {
	if n == 0 {
		return 0
	}
	g := 1.0
	for _, c := range counts {
		p := float64(c) / float64(n)
		g -= p * p
	}
	return g
}

func pure(counts []int) bool {
	nonZero := 0
	for _, c := range counts {
		if c > 0 {
			nonZero++
		}
	}
	return nonZero <= 1
}

func argmax(counts []int) int {
	best := 0
	for i := 1; i < len(counts); i++ {
		if counts[i] > counts[best] {
			best = i
		}
	}
	return best
}
