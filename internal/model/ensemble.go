// Package model evaluates the pre-trained gradient-boosted tree classifier.
// The ensemble is deserialized from a JSON artifact exported at training time
// and is immutable after loading.
package model

import (
	"encoding/json"
	"fmt"
	"math"
	"os"

	"gonum.org/v1/gonum/floats"
)

// Node is a single split or leaf in a decision tree. Leaves carry the margin
// contribution; internal nodes route on feature < threshold.
type Node struct {
	IsLeaf    bool    `json:"is_leaf"`
	Feature   int     `json:"feature"`
	Threshold float64 `json:"threshold"`
	Left      int     `json:"left"`
	Right     int     `json:"right"`
	Leaf      float64 `json:"leaf"`
	Cover     float64 `json:"cover"`
}

// Tree is one boosted round for a single output class.
type Tree struct {
	Class int    `json:"class"`
	Nodes []Node `json:"nodes"`

	// expected[i] is the cover-weighted mean leaf value beneath node i,
	// precomputed at load time for path attribution.
	expected []float64
}

// Ensemble is the full multi-class boosted tree model.
type Ensemble struct {
	NumClasses  int     `json:"num_classes"`
	NumFeatures int     `json:"num_features"`
	BaseScore   float64 `json:"base_score"`
	Trees       []Tree  `json:"trees"`
}

// Load reads and prepares an ensemble from its JSON artifact.
func Load(path string) (*Ensemble, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model file: %w", err)
	}

	var e Ensemble
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("failed to unmarshal model: %w", err)
	}

	if err := e.prepare(); err != nil {
		return nil, err
	}
	return &e, nil
}

// prepare validates tree structure and precomputes per-node expected values.
func (e *Ensemble) prepare() error {
	if e.NumClasses < 2 {
		return fmt.Errorf("model declares %d classes, need at least 2", e.NumClasses)
	}
	if e.NumFeatures <= 0 {
		return fmt.Errorf("model declares %d features", e.NumFeatures)
	}

	for i := range e.Trees {
		t := &e.Trees[i]
		if t.Class < 0 || t.Class >= e.NumClasses {
			return fmt.Errorf("tree %d targets unknown class %d", i, t.Class)
		}
		if len(t.Nodes) == 0 {
			return fmt.Errorf("tree %d has no nodes", i)
		}
		t.expected = make([]float64, len(t.Nodes))
		if _, _, err := t.computeExpected(0, make(map[int]bool)); err != nil {
			return fmt.Errorf("tree %d: %w", i, err)
		}
	}
	return nil
}

// computeExpected fills the expected-value table bottom-up. Returns the
// expected value and total cover of the subtree rooted at idx.
func (t *Tree) computeExpected(idx int, seen map[int]bool) (float64, float64, error) {
	if idx < 0 || idx >= len(t.Nodes) {
		return 0, 0, fmt.Errorf("node index %d out of range", idx)
	}
	if seen[idx] {
		return 0, 0, fmt.Errorf("cycle at node %d", idx)
	}
	seen[idx] = true

	n := t.Nodes[idx]
	if n.IsLeaf {
		t.expected[idx] = n.Leaf
		cover := n.Cover
		if cover <= 0 {
			cover = 1
		}
		return n.Leaf, cover, nil
	}

	leftVal, leftCover, err := t.computeExpected(n.Left, seen)
	if err != nil {
		return 0, 0, err
	}
	rightVal, rightCover, err := t.computeExpected(n.Right, seen)
	if err != nil {
		return 0, 0, err
	}

	total := leftCover + rightCover
	t.expected[idx] = (leftVal*leftCover + rightVal*rightCover) / total
	return t.expected[idx], total, nil
}

// leafValue walks one instance down the tree and returns its leaf margin.
func (t *Tree) leafValue(x []float64) float64 {
	idx := 0
	for {
		n := t.Nodes[idx]
		if n.IsLeaf {
			return n.Leaf
		}
		if x[n.Feature] < n.Threshold {
			idx = n.Left
		} else {
			idx = n.Right
		}
	}
}

// Margins computes the raw per-class margins for one instance.
func (e *Ensemble) Margins(x []float64) ([]float64, error) {
	if len(x) != e.NumFeatures {
		return nil, fmt.Errorf("instance has %d features, model expects %d", len(x), e.NumFeatures)
	}

	margins := make([]float64, e.NumClasses)
	for c := range margins {
		margins[c] = e.BaseScore
	}
	for i := range e.Trees {
		margins[e.Trees[i].Class] += e.Trees[i].leafValue(x)
	}
	return margins, nil
}

// PredictProbabilities scores a batch of instances and returns softmax class
// probabilities, columns in the model's fixed class order.
func (e *Ensemble) PredictProbabilities(batch [][]float64) ([][]float64, error) {
	if len(batch) == 0 {
		return nil, fmt.Errorf("empty batch")
	}

	out := make([][]float64, len(batch))
	for i, x := range batch {
		margins, err := e.Margins(x)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		out[i] = softmax(margins)
	}
	return out, nil
}

// Contributions decomposes one instance's margin for the given class into
// additive per-feature contributions plus a base value. Each split the
// instance passes through moves the running expectation; that movement is
// credited to the split feature, so contributions sum to margin minus base.
func (e *Ensemble) Contributions(x []float64, class int) ([]float64, float64, error) {
	if len(x) != e.NumFeatures {
		return nil, 0, fmt.Errorf("instance has %d features, model expects %d", len(x), e.NumFeatures)
	}
	if class < 0 || class >= e.NumClasses {
		return nil, 0, fmt.Errorf("unknown class %d", class)
	}

	contribs := make([]float64, e.NumFeatures)
	base := e.BaseScore

	for i := range e.Trees {
		t := &e.Trees[i]
		if t.Class != class {
			continue
		}
		base += t.expected[0]

		idx := 0
		for {
			n := t.Nodes[idx]
			if n.IsLeaf {
				break
			}
			next := n.Left
			if x[n.Feature] >= n.Threshold {
				next = n.Right
			}
			contribs[n.Feature] += t.expected[next] - t.expected[idx]
			idx = next
		}
	}
	return contribs, base, nil
}

func softmax(margins []float64) []float64 {
	probs := make([]float64, len(margins))
	max := floats.Max(margins)

	var sum float64
	for i, m := range margins {
		probs[i] = math.Exp(m - max)
		sum += probs[i]
	}
	floats.Scale(1/sum, probs)
	return probs
}
