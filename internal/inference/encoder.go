package inference

import (
	"hash/fnv"
	"strings"

	"go.uber.org/zap"

	"github.com/0ritam/XAI-Dashboard/internal/artifacts"
	"github.com/0ritam/XAI-Dashboard/internal/models"
)

// UnknownPolicy selects the deterministic encoding used when a label encoder
// exists but has never seen the submitted value.
type UnknownPolicy string

const (
	// PolicyFirstClass encodes unknown labels as index 0, the encoder's
	// first (most common) class.
	PolicyFirstClass UnknownPolicy = "first-class"
	// PolicyHash encodes unknown labels as a stable FNV-1a hash modulo the
	// encoder's class count.
	PolicyHash UnknownPolicy = "hash"
)

// hashModulus bounds fallback codes for fields that have no encoder at all.
const hashModulus = 100

// EncoderAdapter resolves categorical labels to model-ready integers.
// Unknown values always resolve to a deterministic code; encoding never
// fails, so prediction availability wins over strict validation.
type EncoderAdapter struct {
	encoders map[string]*artifacts.LabelEncoder
	policy   UnknownPolicy
	logger   *zap.Logger
}

// NewEncoderAdapter wraps the loaded label encoders.
func NewEncoderAdapter(encoders map[string]*artifacts.LabelEncoder, policy UnknownPolicy, logger *zap.Logger) *EncoderAdapter {
	if policy == "" {
		policy = PolicyFirstClass
	}
	return &EncoderAdapter{encoders: encoders, policy: policy, logger: logger}
}

// Encode maps a raw categorical value to its integer code. Known labels get
// their learned index. Unknown labels degrade to the configured policy.
// Fields with no encoder use ordinal bucketing for band-shaped values and a
// stable hash otherwise.
func (a *EncoderAdapter) Encode(feature, raw string) int {
	enc, ok := a.encoders[feature]
	if !ok {
		return a.encodeWithoutEncoder(feature, raw)
	}

	idx, err := enc.Transform(raw)
	if err == nil {
		return idx
	}

	code := 0
	if a.policy == PolicyHash {
		code = int(stableHash(raw) % uint64(len(enc.Classes())))
	}
	a.logger.Warn("unknown category, using fallback",
		zap.String("feature", feature),
		zap.String("value", raw),
		zap.Int("fallback", code))
	return code
}

// encodeWithoutEncoder handles schema drift where a categorical feature has
// no shipped encoder. Band labels like "70-80%" map to their ordinal
// position; anything else gets a stable hash code.
func (a *EncoderAdapter) encodeWithoutEncoder(feature, raw string) int {
	if feature == "imd_band" {
		if pos := bandOrdinal(raw); pos >= 0 {
			return pos
		}
	}

	code := int(stableHash(raw) % hashModulus)
	a.logger.Warn("no encoder for feature, using hash fallback",
		zap.String("feature", feature),
		zap.String("value", raw),
		zap.Int("fallback", code))
	return code
}

// bandOrdinal returns the ordinal position of a deprivation band label, or
// -1 when the label matches no band. Matching is prefix-based so "70-80%"
// and "70-80" both resolve.
func bandOrdinal(raw string) int {
	trimmed := strings.TrimSuffix(strings.TrimSpace(raw), "%")
	for i, band := range models.IMDBands {
		if strings.TrimSuffix(string(band), "%") == trimmed {
			return i
		}
	}
	return -1
}

func stableHash(s string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return h.Sum64()
}
