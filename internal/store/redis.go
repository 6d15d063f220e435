// Package store persists explanation records in Redis for later retrieval.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/0ritam/XAI-Dashboard/internal/explain"
)

const (
	recordKeyPrefix = "xai:explanation:"
	recordExpiry    = 7 * 24 * time.Hour
	scanBatchSize   = 100
)

// ExplanationRecord is the persisted form of one explanation run.
type ExplanationRecord struct {
	ID           string               `json:"id"`
	StudentID    int                  `json:"student_id"`
	Prediction   string               `json:"prediction"`
	Confidence   float64              `json:"confidence"`
	ModelVersion string               `json:"model_version"`
	Explanation  *explain.Explanation `json:"explanation"`
	Timestamp    time.Time            `json:"timestamp"`
}

// Store is a Redis-backed record store.
type Store struct {
	client *redis.Client
}

// NewStore connects to Redis and verifies the connection.
func NewStore(redisURL string) (*Store, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("error parsing Redis URL: %w", err)
	}

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("error connecting to Redis: %w", err)
	}

	return &Store{client: client}, nil
}

// SaveExplanation stores a record under its ID with the standard expiry.
func (s *Store) SaveExplanation(ctx context.Context, record *ExplanationRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("error marshaling explanation record: %w", err)
	}

	key := recordKeyPrefix + record.ID
	if err := s.client.Set(ctx, key, data, recordExpiry).Err(); err != nil {
		return fmt.Errorf("error storing explanation record: %w", err)
	}
	return nil
}

// GetExplanation retrieves one record by ID.
func (s *Store) GetExplanation(ctx context.Context, id string) (*ExplanationRecord, error) {
	data, err := s.client.Get(ctx, recordKeyPrefix+id).Bytes()
	if err != nil {
		return nil, fmt.Errorf("error fetching explanation record: %w", err)
	}

	var record ExplanationRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("error unmarshaling explanation record: %w", err)
	}
	return &record, nil
}

// ListRecent returns every record stored within the given window.
func (s *Store) ListRecent(ctx context.Context, since time.Duration) ([]*ExplanationRecord, error) {
	cutoff := time.Now().Add(-since)

	var cursor uint64
	var result []*ExplanationRecord

	for {
		batch, next, err := s.client.Scan(ctx, cursor, recordKeyPrefix+"*", scanBatchSize).Result()
		if err != nil {
			return nil, fmt.Errorf("error scanning explanation records: %w", err)
		}

		for _, key := range batch {
			data, err := s.client.Get(ctx, key).Bytes()
			if err != nil {
				continue
			}

			var record ExplanationRecord
			if err := json.Unmarshal(data, &record); err != nil {
				continue
			}
			if record.Timestamp.Before(cutoff) {
				continue
			}
			result = append(result, &record)
		}

		cursor = next
		if cursor == 0 {
			break
		}
	}

	return result, nil
}

// Close closes the Redis connection.
func (s *Store) Close() error {
	return s.client.Close()
}
