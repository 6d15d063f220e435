// Package explain produces per-feature attributions for individual
// predictions and merges the two explanation methods into one ranking.
package explain

import (
	"fmt"

	"gonum.org/v1/gonum/floats"

	"github.com/0ritam/XAI-Dashboard/internal/model"
)

// Attribution is an exact additive decomposition of one prediction: the
// signed contributions sum to the predicted-class margin minus the base
// value.
type Attribution struct {
	Contributions []float64
	BaseValue     float64
	ClassIndex    int
}

// GlobalAttributor decomposes a single prediction from the tree structure
// directly, without sampling.
type GlobalAttributor interface {
	Attribute(instance []float64) (*Attribution, error)
}

// TreeAttributor walks the ensemble's decision paths to credit each split
// feature with the movement it causes in the running expectation.
type TreeAttributor struct {
	ensemble *model.Ensemble
}

// NewTreeAttributor builds an attributor over the loaded ensemble.
func NewTreeAttributor(ensemble *model.Ensemble) *TreeAttributor {
	return &TreeAttributor{ensemble: ensemble}
}

// Attribute explains the predicted class of one instance. The class is
// resolved from the model's own probabilities so multi-class output shapes
// collapse to the single relevant column.
func (t *TreeAttributor) Attribute(instance []float64) (*Attribution, error) {
	rows, err := t.ensemble.PredictProbabilities([][]float64{instance})
	if err != nil {
		return nil, fmt.Errorf("attribution scoring failed: %w", err)
	}
	class := floats.MaxIdx(rows[0])

	contribs, base, err := t.ensemble.Contributions(instance, class)
	if err != nil {
		return nil, fmt.Errorf("attribution decomposition failed: %w", err)
	}

	return &Attribution{
		Contributions: contribs,
		BaseValue:     base,
		ClassIndex:    class,
	}, nil
}
