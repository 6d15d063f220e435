package inference

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/0ritam/XAI-Dashboard/internal/artifacts"
)

func testEncoders(t *testing.T) map[string]*artifacts.LabelEncoder {
	t.Helper()

	encoders := make(map[string]*artifacts.LabelEncoder)
	for feature, classes := range map[string][]string{
		"gender":   {"F", "M"},
		"age_band": {"0-35", "35-55", "55<="},
		"region": {
			"East Anglian Region", "London Region", "Scotland", "South East Region",
		},
	} {
		enc, err := artifacts.NewLabelEncoder(classes)
		require.NoError(t, err)
		encoders[feature] = enc
	}
	return encoders
}

func TestEncodeKnownLabels(t *testing.T) {
	adapter := NewEncoderAdapter(testEncoders(t), PolicyFirstClass, zap.NewNop())

	assert.Equal(t, 1, adapter.Encode("gender", "M"))
	assert.Equal(t, 0, adapter.Encode("gender", "F"))
	assert.Equal(t, 2, adapter.Encode("region", "Scotland"))
	assert.Equal(t, 1, adapter.Encode("age_band", "35-55"))
}

func TestEncodeUnknownLabelFirstClassPolicy(t *testing.T) {
	adapter := NewEncoderAdapter(testEncoders(t), PolicyFirstClass, zap.NewNop())

	assert.Equal(t, 0, adapter.Encode("region", "Atlantis Region"))
	assert.Equal(t, 0, adapter.Encode("gender", "X"))
}

func TestEncodeUnknownLabelHashPolicy(t *testing.T) {
	adapter := NewEncoderAdapter(testEncoders(t), PolicyHash, zap.NewNop())

	first := adapter.Encode("region", "Atlantis Region")
	assert.Equal(t, first, adapter.Encode("region", "Atlantis Region"), "hash fallback must be stable")
	assert.GreaterOrEqual(t, first, 0)
	assert.Less(t, first, 4)
}

func TestEncodeDefaultsToFirstClassPolicy(t *testing.T) {
	adapter := NewEncoderAdapter(testEncoders(t), "", zap.NewNop())
	assert.Equal(t, 0, adapter.Encode("gender", "X"))
}

func TestEncodeWithoutEncoderUsesBandOrdinal(t *testing.T) {
	adapter := NewEncoderAdapter(map[string]*artifacts.LabelEncoder{}, PolicyFirstClass, zap.NewNop())

	assert.Equal(t, 7, adapter.Encode("imd_band", "70-80%"))
	assert.Equal(t, 7, adapter.Encode("imd_band", "70-80"))
	assert.Equal(t, 0, adapter.Encode("imd_band", "0-10%"))
	assert.Equal(t, 9, adapter.Encode("imd_band", "90-100%"))
}

func TestEncodeWithoutEncoderHashesNonBands(t *testing.T) {
	adapter := NewEncoderAdapter(map[string]*artifacts.LabelEncoder{}, PolicyFirstClass, zap.NewNop())

	code := adapter.Encode("imd_band", "not a band")
	assert.Equal(t, code, adapter.Encode("imd_band", "not a band"))
	assert.GreaterOrEqual(t, code, 0)
	assert.Less(t, code, hashModulus)

	other := adapter.Encode("mystery_column", "some value")
	assert.GreaterOrEqual(t, other, 0)
	assert.Less(t, other, hashModulus)
}

func TestBandOrdinal(t *testing.T) {
	assert.Equal(t, 1, bandOrdinal("10-20"))
	assert.Equal(t, 1, bandOrdinal(" 10-20% "))
	assert.Equal(t, -1, bandOrdinal("200-300%"))
	assert.Equal(t, -1, bandOrdinal(""))
}
