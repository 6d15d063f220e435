// Package inference owns the request-time pipeline from student record to
// prediction: categorical encoding, feature assembly and classifier calls.
package inference

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// probabilitySumTolerance bounds the allowed drift of a probability
// distribution away from 1.
const probabilitySumTolerance = 1e-6

// Classifier is the trained model contract. Input is a batch of numeric
// instances; output is one probability row per instance, columns in a fixed
// class order.
type Classifier interface {
	PredictProbabilities(batch [][]float64) ([][]float64, error)
}

// PredictionResult is the outcome of classifying one feature vector.
type PredictionResult struct {
	Prediction    string             `json:"prediction"`
	Probabilities map[string]float64 `json:"probabilities"`
	Confidence    float64            `json:"confidence"`
	ClassIndex    int                `json:"-"`
}

// Predictor scores feature vectors against the loaded classifier.
type Predictor struct {
	model       Classifier
	classes     []string
	numFeatures int
}

// NewPredictor binds a classifier to its class-name order and expected
// feature width.
func NewPredictor(model Classifier, classes []string, numFeatures int) *Predictor {
	pinned := make([]string, len(classes))
	copy(pinned, classes)
	return &Predictor{model: model, classes: pinned, numFeatures: numFeatures}
}

// Predict classifies one feature vector. Shape disagreements surface as
// *SchemaMismatchError, classifier failures as *PredictionError; a wrong
// prediction is worse than a visible failure, so nothing is defaulted.
func (p *Predictor) Predict(v FeatureVector) (*PredictionResult, error) {
	if len(v) != p.numFeatures {
		return nil, &SchemaMismatchError{Got: len(v), Want: p.numFeatures}
	}

	rows, err := p.model.PredictProbabilities([][]float64{v})
	if err != nil {
		return nil, &PredictionError{Err: err}
	}
	if len(rows) != 1 {
		return nil, &PredictionError{Err: fmt.Errorf("expected 1 probability row, got %d", len(rows))}
	}

	probs := rows[0]
	if err := p.checkDistribution(probs); err != nil {
		return nil, &PredictionError{Err: err}
	}

	best := floats.MaxIdx(probs)
	byClass := make(map[string]float64, len(p.classes))
	for i, class := range p.classes {
		byClass[class] = probs[i]
	}

	return &PredictionResult{
		Prediction:    p.classes[best],
		Probabilities: byClass,
		Confidence:    probs[best],
		ClassIndex:    best,
	}, nil
}

func (p *Predictor) checkDistribution(probs []float64) error {
	if len(probs) != len(p.classes) {
		return fmt.Errorf("got %d probabilities for %d classes", len(probs), len(p.classes))
	}
	for i, prob := range probs {
		if prob < 0 || math.IsNaN(prob) {
			return fmt.Errorf("invalid probability %f for class %s", prob, p.classes[i])
		}
	}
	if sum := floats.Sum(probs); math.Abs(sum-1) > probabilitySumTolerance {
		return fmt.Errorf("probabilities sum to %f", sum)
	}
	return nil
}
