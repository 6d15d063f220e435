package artifacts

import "fmt"

// LabelEncoder maps categorical labels to the integer indices assigned at
// training time. Class order is significant and preserved from the artifact.
type LabelEncoder struct {
	classes []string
	index   map[string]int
}

// NewLabelEncoder builds an encoder over an ordered class list.
func NewLabelEncoder(classes []string) (*LabelEncoder, error) {
	if len(classes) == 0 {
		return nil, fmt.Errorf("empty class list")
	}

	index := make(map[string]int, len(classes))
	for i, c := range classes {
		if _, dup := index[c]; dup {
			return nil, fmt.Errorf("duplicate class %q", c)
		}
		index[c] = i
	}
	return &LabelEncoder{classes: classes, index: index}, nil
}

// Classes returns the known category labels in index order.
func (e *LabelEncoder) Classes() []string {
	out := make([]string, len(e.classes))
	copy(out, e.classes)
	return out
}

// Transform returns the learned index for a label, or an error for a label
// the encoder has never seen.
func (e *LabelEncoder) Transform(label string) (int, error) {
	idx, ok := e.index[label]
	if !ok {
		return 0, fmt.Errorf("unknown label %q", label)
	}
	return idx, nil
}
