package explain

import (
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"math"
	"sort"

	lru "github.com/hashicorp/golang-lru"
	"go.uber.org/zap"
)

const (
	// DefaultTopK bounds the returned ranking when configuration is silent.
	DefaultTopK = 10

	cacheSize = 1024

	methodShap = "shap"
	methodLime = "lime"
)

// Error means explanation failed outright: both methods were unavailable for
// a caller that requires a result. Single-method failures degrade instead.
type Error struct {
	ShapErr error
	LimeErr error
}

func (e *Error) Error() string {
	return fmt.Sprintf("both explanation methods failed: shap: %v; lime: %v", e.ShapErr, e.LimeErr)
}

// AttributionEntry is one feature's merged importance across both methods.
type AttributionEntry struct {
	Feature    string  `json:"feature"`
	Importance float64 `json:"importance"`
	Direction  string  `json:"direction"`
	ShapValue  float64 `json:"shap_value"`
	LimeValue  float64 `json:"lime_value"`
}

// Explanation is the merged, ranked output for one feature vector.
type Explanation struct {
	Entries         []AttributionEntry `json:"feature_importance"`
	BaseValue       float64            `json:"base_value"`
	Intercept       float64            `json:"intercept"`
	LocalPrediction float64            `json:"local_prediction"`
	DegradedMethods []string           `json:"degraded_methods,omitempty"`
}

// Aggregator runs both explanation methods independently and merges their
// per-feature attributions into a single ranked list. Each method's failure
// is isolated: the run continues with the other method's output and the
// failed method contributes zero for every feature.
type Aggregator struct {
	attributor   GlobalAttributor
	surrogate    *LocalSurrogate
	featureNames []string
	topK         int
	cache        *lru.Cache
	logger       *zap.Logger
}

// NewAggregator wires the two explainers together. topK <= 0 selects the
// default.
func NewAggregator(attributor GlobalAttributor, surrogate *LocalSurrogate, featureNames []string, topK int, logger *zap.Logger) (*Aggregator, error) {
	if topK <= 0 {
		topK = DefaultTopK
	}
	cache, err := lru.New(cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create explanation cache: %w", err)
	}

	pinned := make([]string, len(featureNames))
	copy(pinned, featureNames)

	return &Aggregator{
		attributor:   attributor,
		surrogate:    surrogate,
		featureNames: pinned,
		topK:         topK,
		cache:        cache,
		logger:       logger,
	}, nil
}

// Explain produces the merged ranking for one feature vector. Identical
// vectors hit the in-process cache; the surrogate's sampling is seeded, so a
// cache miss recomputes the same result. Returns *Error only when both
// methods fail.
func (a *Aggregator) Explain(vector []float64) (*Explanation, error) {
	key := fingerprint(vector)
	if cached, ok := a.cache.Get(key); ok {
		return cached.(*Explanation), nil
	}

	shapValues := make([]float64, len(vector))
	limeValues := make([]float64, len(vector))
	result := &Explanation{}

	attribution, shapErr := a.attributor.Attribute(vector)
	if shapErr != nil {
		a.logger.Warn("tree attribution failed, degrading to zero contributions", zap.Error(shapErr))
		result.DegradedMethods = append(result.DegradedMethods, methodShap)
	} else {
		copy(shapValues, attribution.Contributions)
		result.BaseValue = attribution.BaseValue
	}

	local, limeErr := a.surrogate.ExplainInstance(vector)
	if limeErr != nil {
		a.logger.Warn("local surrogate failed, degrading to zero weights", zap.Error(limeErr))
		result.DegradedMethods = append(result.DegradedMethods, methodLime)
	} else {
		copy(limeValues, local.Weights)
		result.Intercept = local.Intercept
		result.LocalPrediction = local.LocalPrediction
	}

	if shapErr != nil && limeErr != nil {
		return nil, &Error{ShapErr: shapErr, LimeErr: limeErr}
	}

	result.Entries = a.merge(shapValues, limeValues)
	a.cache.Add(key, result)
	return result, nil
}

// merge combines the two per-feature series: importance is the mean of the
// absolute contributions, direction is the sign of their sum (zero counts as
// negative). Output is sorted by importance descending, feature name
// breaking ties, truncated to top-K.
func (a *Aggregator) merge(shapValues, limeValues []float64) []AttributionEntry {
	entries := make([]AttributionEntry, 0, len(a.featureNames))
	for i, feature := range a.featureNames {
		if i >= len(shapValues) || i >= len(limeValues) {
			break
		}
		sv, lv := shapValues[i], limeValues[i]

		direction := "negative"
		if sv+lv > 0 {
			direction = "positive"
		}

		entries = append(entries, AttributionEntry{
			Feature:    feature,
			Importance: (math.Abs(sv) + math.Abs(lv)) / 2,
			Direction:  direction,
			ShapValue:  sv,
			LimeValue:  lv,
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Importance != entries[j].Importance {
			return entries[i].Importance > entries[j].Importance
		}
		return entries[i].Feature < entries[j].Feature
	})

	if len(entries) > a.topK {
		entries = entries[:a.topK]
	}
	return entries
}

// fingerprint hashes a vector's exact bit pattern for cache keying.
func fingerprint(vector []float64) uint64 {
	h := fnv.New64a()
	buf := make([]byte, 8)
	for _, v := range vector {
		binary.LittleEndian.PutUint64(buf, math.Float64bits(v))
		_, _ = h.Write(buf)
	}
	return h.Sum64()
}
