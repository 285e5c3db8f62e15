// Package gbm implements a gradient-boosted regression tree ensemble
// with squared-error loss and exact greedy split finding.
package gbm

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
)

// FormatVersion tags serialized ensembles
const FormatVersion = "cbio-gbm/1"

var (
	// ErrEmptyTrainingSet is returned when Fit receives no rows
	ErrEmptyTrainingSet = errors.New("gbm: empty training set")
	// ErrNotFitted is returned by Predict on a zero ensemble
	ErrNotFitted = errors.New("gbm: ensemble not fitted")
)

// Params controls boosting
type Params struct {
	NEstimators    int     `json:"n_estimators" yaml:"n_estimators" validate:"min=1"`
	LearningRate   float64 `json:"learning_rate" yaml:"learning_rate" validate:"gt=0,lte=1"`
	MaxDepth       int     `json:"max_depth" yaml:"max_depth" validate:"min=1,max=16"`
	Lambda         float64 `json:"lambda" yaml:"lambda" validate:"gte=0"`
	Gamma          float64 `json:"gamma" yaml:"gamma" validate:"gte=0"`
	MinChildWeight float64 `json:"min_child_weight" yaml:"min_child_weight" validate:"gte=0"`
}

// DefaultParams mirrors the production configuration
func DefaultParams() Params {
	return Params{
		NEstimators:    1000,
		LearningRate:   0.02,
		MaxDepth:       5,
		Lambda:         1,
		Gamma:          0,
		MinChildWeight: 1,
	}
}

func (p Params) check() error {
	switch {
	case p.NEstimators < 1:
		return fmt.Errorf("gbm: n_estimators must be >= 1, got %d", p.NEstimators)
	case p.LearningRate <= 0:
		return fmt.Errorf("gbm: learning_rate must be > 0, got %g", p.LearningRate)
	case p.MaxDepth < 1:
		return fmt.Errorf("gbm: max_depth must be >= 1, got %d", p.MaxDepth)
	case p.Lambda < 0 || p.Gamma < 0 || p.MinChildWeight < 0:
		return fmt.Errorf("gbm: lambda, gamma and min_child_weight must not be negative")
	}
	return nil
}

// Node is one tree node. Leaves have Feature == -1.
type Node struct {
	Feature   int     `json:"f"`
	Threshold float64 `json:"t,omitempty"`
	Left      int     `json:"l,omitempty"`
	Right     int     `json:"r,omitempty"`
	Value     float64 `json:"v,omitempty"` // leaf output, already scaled by the learning rate
}

// Tree is a flat node array rooted at index 0
type Tree struct {
	Nodes []Node `json:"nodes"`
}

func (t *Tree) predict(x []float64) float64 {
	i := 0
	for {
		n := t.Nodes[i]
		if n.Feature < 0 {
			return n.Value
		}
		if x[n.Feature] < n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

// Ensemble is a fitted model. Rows passed to Predict must have one value per
// entry of Features, in the same order.
type Ensemble struct {
	Format    string   `json:"format"`
	Features  []string `json:"features"`
	BaseScore float64  `json:"base_score"`
	Params    Params   `json:"params"`
	Trees     []Tree   `json:"trees"`
}

// Fit trains an ensemble on X (rows x features) against y.
// Training is deterministic: the same inputs always yield the same trees.
func Fit(X [][]float64, y []float64, features []string, p Params) (*Ensemble, error) {
	if err := p.check(); err != nil {
		return nil, err
	}
	if len(X) == 0 {
		return nil, ErrEmptyTrainingSet
	}
	if len(X) != len(y) {
		return nil, fmt.Errorf("gbm: %d rows but %d targets", len(X), len(y))
	}
	if len(features) == 0 {
		return nil, fmt.Errorf("gbm: no features")
	}
	if err := checkRows(X, len(features)); err != nil {
		return nil, err
	}
	for i, v := range y {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("gbm: target %d is not finite", i)
		}
	}

	n := len(X)
	base := 0.0
	for _, v := range y {
		base += v
	}
	base /= float64(n)

	// per-feature row order, sorted once and reused for every tree
	order := make([][]int, len(features))
	for f := range features {
		idx := make([]int, n)
		for i := range idx {
			idx[i] = i
		}
		sort.SliceStable(idx, func(a, b int) bool { return X[idx[a]][f] < X[idx[b]][f] })
		order[f] = idx
	}

	e := &Ensemble{
		Format:    FormatVersion,
		Features:  append([]string(nil), features...),
		BaseScore: base,
		Params:    p,
		Trees:     make([]Tree, 0, p.NEstimators),
	}

	pred := make([]float64, n)
	for i := range pred {
		pred[i] = base
	}
	grad := make([]float64, n)

	for t := 0; t < p.NEstimators; t++ {
		for i := range grad {
			grad[i] = pred[i] - y[i]
		}
		tree := growTree(X, grad, order, p)
		for i := range pred {
			pred[i] += tree.predict(X[i])
		}
		e.Trees = append(e.Trees, tree)
	}
	return e, nil
}

type split struct {
	gain      float64
	feature   int
	threshold float64
}

type frontier struct {
	node int
	g, h float64
	best split
}

// growTree builds one tree level by level. Hessians are all 1 for squared error,
// so the hessian sum of a node is its row count.
func growTree(X [][]float64, grad []float64, order [][]int, p Params) Tree {
	n := len(grad)
	t := Tree{Nodes: []Node{{Feature: -1}}}

	// pos[i] is the frontier slot of row i, -1 once it sits in a finished leaf
	pos := make([]int, n)
	root := frontier{node: 0, h: float64(n)}
	for _, g := range grad {
		root.g += g
	}
	level := []frontier{root}

	for depth := 0; depth < p.MaxDepth && len(level) > 0; depth++ {
		for k := range level {
			level[k].best = split{feature: -1}
		}

		gl := make([]float64, len(level))
		hl := make([]float64, len(level))
		last := make([]float64, len(level))
		seen := make([]bool, len(level))

		for f := range order {
			for k := range level {
				gl[k], hl[k], seen[k] = 0, 0, false
			}
			for _, i := range order[f] {
				k := pos[i]
				if k < 0 {
					continue
				}
				x := X[i][f]
				if seen[k] && x != last[k] {
					fr := &level[k]
					gr, hr := fr.g-gl[k], fr.h-hl[k]
					if hl[k] >= p.MinChildWeight && hr >= p.MinChildWeight {
						gain := 0.5*(score(gl[k], hl[k], p.Lambda)+score(gr, hr, p.Lambda)-score(fr.g, fr.h, p.Lambda)) - p.Gamma
						if gain > fr.best.gain {
							fr.best = split{gain: gain, feature: f, threshold: midpoint(last[k], x)}
						}
					}
				}
				gl[k] += grad[i]
				hl[k]++
				last[k] = x
				seen[k] = true
			}
		}

		var next []frontier
		remap := make([]int, len(level)*2)
		for k := range level {
			fr := level[k]
			if fr.best.feature < 0 {
				t.Nodes[fr.node].Value = leafValue(fr.g, fr.h, p)
				remap[2*k], remap[2*k+1] = -1, -1
				continue
			}
			left := len(t.Nodes)
			t.Nodes = append(t.Nodes, Node{Feature: -1}, Node{Feature: -1})
			t.Nodes[fr.node] = Node{Feature: fr.best.feature, Threshold: fr.best.threshold, Left: left, Right: left + 1}
			remap[2*k] = len(next)
			next = append(next, frontier{node: left})
			remap[2*k+1] = len(next)
			next = append(next, frontier{node: left + 1})
		}

		for i := range pos {
			k := pos[i]
			if k < 0 {
				continue
			}
			b := level[k].best
			if b.feature < 0 {
				pos[i] = -1
				continue
			}
			side := 2 * k
			if X[i][b.feature] >= b.threshold {
				side++
			}
			pos[i] = remap[side]
			next[pos[i]].g += grad[i]
			next[pos[i]].h++
		}
		level = next
	}

	for _, fr := range level {
		t.Nodes[fr.node].Value = leafValue(fr.g, fr.h, p)
	}
	return t
}

func score(g, h, lambda float64) float64 {
	return g * g / (h + lambda)
}

func leafValue(g, h float64, p Params) float64 {
	if h+p.Lambda == 0 {
		return 0
	}
	return -p.LearningRate * g / (h + p.Lambda)
}

// midpoint returns a threshold t with lo < t <= hi
func midpoint(lo, hi float64) float64 {
	t := lo + (hi-lo)/2
	if !(lo < t) {
		return hi
	}
	return t
}

func checkRows(X [][]float64, width int) error {
	for i, row := range X {
		if len(row) != width {
			return fmt.Errorf("gbm: row %d has %d values, want %d", i, len(row), width)
		}
		for j, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("gbm: row %d feature %d is not finite", i, j)
			}
		}
	}
	return nil
}

// Predict returns one prediction per row of X
func (e *Ensemble) Predict(X [][]float64) ([]float64, error) {
	if e == nil || len(e.Trees) == 0 {
		return nil, ErrNotFitted
	}
	if err := checkRows(X, len(e.Features)); err != nil {
		return nil, err
	}
	out := make([]float64, len(X))
	for i, x := range X {
		v := e.BaseScore
		for t := range e.Trees {
			v += e.Trees[t].predict(x)
		}
		out[i] = v
	}
	return out, nil
}

// SplitCounts returns how often each feature is used as a split, keyed by name
func (e *Ensemble) SplitCounts() map[string]int {
	counts := make(map[string]int, len(e.Features))
	for _, t := range e.Trees {
		for _, n := range t.Nodes {
			if n.Feature >= 0 {
				counts[e.Features[n.Feature]]++
			}
		}
	}
	return counts
}

// Encode serializes the ensemble
func (e *Ensemble) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// Decode parses and structurally validates a serialized ensemble
func Decode(data []byte) (*Ensemble, error) {
	var e Ensemble
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("gbm: decode: %w", err)
	}
	if e.Format != FormatVersion {
		return nil, fmt.Errorf("gbm: unsupported format %q", e.Format)
	}
	if len(e.Features) == 0 || len(e.Trees) == 0 {
		return nil, ErrNotFitted
	}
	for ti, t := range e.Trees {
		if len(t.Nodes) == 0 {
			return nil, fmt.Errorf("gbm: tree %d is empty", ti)
		}
		for ni, n := range t.Nodes {
			if n.Feature < 0 {
				continue
			}
			if n.Feature >= len(e.Features) ||
				n.Left <= ni || n.Left >= len(t.Nodes) ||
				n.Right <= ni || n.Right >= len(t.Nodes) {
				return nil, fmt.Errorf("gbm: tree %d node %d is malformed", ti, ni)
			}
		}
	}
	return &e, nil
}
