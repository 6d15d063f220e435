// Package audit provides Elasticsearch indexing of prediction outcomes.
package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/elastic/go-elasticsearch/v8"

	"github.com/0ritam/XAI-Dashboard/internal/explain"
	"github.com/0ritam/XAI-Dashboard/internal/inference"
)

// PredictionEvent is one served prediction, as indexed for audit.
type PredictionEvent struct {
	Timestamp     time.Time            `json:"timestamp"`
	StudentID     int                  `json:"student_id"`
	Prediction    string               `json:"prediction"`
	Confidence    float64              `json:"confidence"`
	Probabilities map[string]float64   `json:"probabilities"`
	ModelVersion  string               `json:"model_version"`
	Explanation   *explain.Explanation `json:"explanation,omitempty"`
}

// Logger indexes prediction events. It is best-effort: callers log indexing
// failures and carry on, a lost audit record never fails a request.
type Logger struct {
	client *elasticsearch.Client
	index  string
}

// NewLogger creates an Elasticsearch-backed audit logger.
func NewLogger(addresses []string, username, password, index string) (*Logger, error) {
	cfg := elasticsearch.Config{
		Addresses: addresses,
		Username:  username,
		Password:  password,
	}

	client, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create Elasticsearch client: %w", err)
	}

	return &Logger{client: client, index: index}, nil
}

// LogPrediction indexes one prediction event.
func (l *Logger) LogPrediction(ctx context.Context, studentID int, result *inference.PredictionResult, modelVersion string, explanation *explain.Explanation) error {
	event := PredictionEvent{
		Timestamp:     time.Now().UTC(),
		StudentID:     studentID,
		Prediction:    result.Prediction,
		Confidence:    result.Confidence,
		Probabilities: result.Probabilities,
		ModelVersion:  modelVersion,
		Explanation:   explanation,
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal prediction event: %w", err)
	}

	res, err := l.client.Index(
		l.index,
		bytes.NewReader(payload),
		l.client.Index.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("failed to index prediction event: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("indexing prediction event returned %s", res.Status())
	}
	return nil
}
