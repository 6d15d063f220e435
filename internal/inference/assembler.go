package inference

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/0ritam/XAI-Dashboard/internal/models"
)

// FeatureVector is the fixed-order numeric representation the classifier
// consumes. Column order is pinned at artifact-load time and identical for
// every vector produced during the life of the process.
type FeatureVector []float64

// categoricalColumns names the model columns resolved through the encoder
// adapter rather than read as numerics.
var categoricalColumns = map[string]bool{
	"gender":            true,
	"region":            true,
	"highest_education": true,
	"imd_band":          true,
	"age_band":          true,
	"disability":        true,
}

// Assembler converts validated student records into feature vectors matching
// the trained model's column schema.
type Assembler struct {
	encoder *EncoderAdapter
	columns []string
	logger  *zap.Logger
}

// NewAssembler pins the column order for the life of the process.
func NewAssembler(encoder *EncoderAdapter, columns []string, logger *zap.Logger) *Assembler {
	pinned := make([]string, len(columns))
	copy(pinned, columns)
	return &Assembler{encoder: encoder, columns: pinned, logger: logger}
}

// Columns returns the pinned column order.
func (a *Assembler) Columns() []string {
	out := make([]string, len(a.columns))
	copy(out, a.columns)
	return out
}

// Assemble validates the record and produces its feature vector. A column
// the record cannot supply is logged and excluded, leaving a degraded vector
// for the predictor to reject as a schema mismatch; validation failures are
// a *PreprocessingError.
func (a *Assembler) Assemble(s *models.StudentFeatures) (FeatureVector, error) {
	if s == nil {
		return nil, &PreprocessingError{Err: fmt.Errorf("nil student record")}
	}
	if err := s.Validate(); err != nil {
		return nil, &PreprocessingError{Err: err}
	}

	categoricals := s.CategoricalValues()
	vector := make(FeatureVector, 0, len(a.columns))

	for _, column := range a.columns {
		if categoricalColumns[column] {
			raw, ok := categoricals[column]
			if !ok {
				a.logger.Warn("model column missing from record, excluding", zap.String("column", column))
				continue
			}
			vector = append(vector, float64(a.encoder.Encode(column, raw)))
			continue
		}

		value, ok := s.NumericValue(column)
		if !ok {
			a.logger.Warn("model column missing from record, excluding", zap.String("column", column))
			continue
		}
		vector = append(vector, value)
	}

	return vector, nil
}
