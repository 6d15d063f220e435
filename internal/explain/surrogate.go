package explain

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/0ritam/XAI-Dashboard/internal/artifacts"
)

// PredictFunc scores a batch of raw feature vectors and returns per-class
// probability rows.
type PredictFunc func(batch [][]float64) ([][]float64, error)

// SurrogateConfig tunes the local surrogate fit. The zero value is unusable;
// DefaultSurrogateConfig supplies the documented defaults.
type SurrogateConfig struct {
	Samples     int     `yaml:"samples"`
	Seed        int64   `yaml:"seed"`
	KernelWidth float64 `yaml:"kernel_width"`
	Ridge       float64 `yaml:"ridge"`
}

// DefaultSurrogateConfig returns the defaults used when configuration leaves
// the surrogate section empty.
func DefaultSurrogateConfig() SurrogateConfig {
	return SurrogateConfig{
		Samples:     200,
		Seed:        42,
		KernelWidth: 0.75,
		Ridge:       1e-3,
	}
}

// LocalExplanation is a fitted local linear approximation of the model
// around one instance.
type LocalExplanation struct {
	Weights         []float64
	Intercept       float64
	LocalPrediction float64
	ClassIndex      int
}

// LocalSurrogate fits an interpretable weighted linear model on perturbed
// samples around an instance. Sampling is seeded per call, so identical
// instances always produce identical explanations.
type LocalSurrogate struct {
	predict PredictFunc
	stats   artifacts.FeatureStats
	cfg     SurrogateConfig
}

// NewLocalSurrogate builds a surrogate explainer over the model's predict
// function and the training feature statistics.
func NewLocalSurrogate(predict PredictFunc, stats artifacts.FeatureStats, cfg SurrogateConfig) *LocalSurrogate {
	if cfg.Samples <= 0 {
		cfg = DefaultSurrogateConfig()
	}
	return &LocalSurrogate{predict: predict, stats: stats, cfg: cfg}
}

// ExplainInstance perturbs the instance, scores the perturbations with the
// real model and fits a distance-weighted ridge regression in standardized
// feature space. Coefficients approximate local feature influence on the
// predicted class.
func (s *LocalSurrogate) ExplainInstance(instance []float64) (*LocalExplanation, error) {
	p := len(instance)
	if p == 0 {
		return nil, fmt.Errorf("empty instance")
	}
	if len(s.stats.Stds) != p {
		return nil, fmt.Errorf("instance has %d features, stats cover %d", p, len(s.stats.Stds))
	}

	rows, err := s.predict([][]float64{instance})
	if err != nil {
		return nil, fmt.Errorf("surrogate anchor prediction failed: %w", err)
	}
	class := floats.MaxIdx(rows[0])

	rng := rand.New(rand.NewSource(s.cfg.Seed))
	n := s.cfg.Samples

	// Perturb in raw space, remember standardized offsets for the fit.
	batch := make([][]float64, n)
	offsets := make([][]float64, n)
	for i := 0; i < n; i++ {
		raw := make([]float64, p)
		z := make([]float64, p)
		for j := 0; j < p; j++ {
			std := s.stats.Stds[j]
			if std <= 0 {
				std = 1
			}
			noise := rng.NormFloat64()
			raw[j] = instance[j] + noise*std
			z[j] = noise
		}
		batch[i] = raw
		offsets[i] = z
	}

	scored, err := s.predict(batch)
	if err != nil {
		return nil, fmt.Errorf("surrogate sampling failed: %w", err)
	}
	if len(scored) != n {
		return nil, fmt.Errorf("scored %d of %d perturbations", len(scored), n)
	}

	weights, intercept, err := s.fit(offsets, scored, class)
	if err != nil {
		return nil, err
	}

	// The instance sits at the origin of the standardized offset space, so
	// the local model predicts the intercept there.
	return &LocalExplanation{
		Weights:         weights,
		Intercept:       intercept,
		LocalPrediction: intercept,
		ClassIndex:      class,
	}, nil
}

// fit solves the kernel-weighted ridge regression. Rows and targets are
// scaled by the square root of their proximity weight, reducing the problem
// to ordinary ridge normal equations.
func (s *LocalSurrogate) fit(offsets [][]float64, scored [][]float64, class int) ([]float64, float64, error) {
	n := len(offsets)
	p := len(offsets[0])
	kw2 := s.cfg.KernelWidth * s.cfg.KernelWidth * float64(p)

	design := mat.NewDense(n, p+1, nil)
	target := mat.NewVecDense(n, nil)

	for i, z := range offsets {
		d2 := floats.Dot(z, z)
		w := math.Sqrt(math.Exp(-d2 / kw2))

		design.Set(i, 0, w)
		for j, v := range z {
			design.Set(i, j+1, w*v)
		}
		if class >= len(scored[i]) {
			return nil, 0, fmt.Errorf("perturbation %d returned %d classes, need %d", i, len(scored[i]), class+1)
		}
		target.SetVec(i, w*scored[i][class])
	}

	var gram mat.Dense
	gram.Mul(design.T(), design)
	for j := 0; j <= p; j++ {
		gram.Set(j, j, gram.At(j, j)+s.cfg.Ridge)
	}

	var rhs mat.VecDense
	rhs.MulVec(design.T(), target)

	var beta mat.VecDense
	if err := beta.SolveVec(&gram, &rhs); err != nil {
		return nil, 0, fmt.Errorf("surrogate fit is singular: %w", err)
	}

	weights := make([]float64, p)
	for j := 0; j < p; j++ {
		weights[j] = beta.AtVec(j + 1)
	}
	return weights, beta.AtVec(0), nil
}
