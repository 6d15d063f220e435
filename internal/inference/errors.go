package inference

import "fmt"

// PreprocessingError means an input record could not be converted into a
// valid feature vector after every fallback. It is a client-input failure
// and is never retried.
type PreprocessingError struct {
	Field string
	Err   error
}

func (e *PreprocessingError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("preprocessing failed for %s: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("preprocessing failed: %v", e.Err)
}

func (e *PreprocessingError) Unwrap() error { return e.Err }

// SchemaMismatchError means the assembled vector disagrees with the model's
// fixed expected shape. Fatal for the request.
type SchemaMismatchError struct {
	Got  int
	Want int
}

func (e *SchemaMismatchError) Error() string {
	return fmt.Sprintf("feature vector has %d columns, model expects %d", e.Got, e.Want)
}

// PredictionError wraps a failure of the underlying classifier. It is always
// surfaced; the service never substitutes a guessed class.
type PredictionError struct {
	Err error
}

func (e *PredictionError) Error() string {
	return fmt.Sprintf("model prediction failed: %v", e.Err)
}

func (e *PredictionError) Unwrap() error { return e.Err }
