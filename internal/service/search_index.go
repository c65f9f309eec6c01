package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/scorehub/scorehub-api/internal/models"
)

// SearchIndex pushes denormalised work summaries to the external search
// store. Callers treat failures as non-fatal.
type SearchIndex interface {
	UpsertWork(ctx context.Context, doc models.WorkSummaryDocument) error
	RemoveWork(ctx context.Context, workID string) error
}

// RedisSearchIndex stores one JSON document per work under a prefixed key.
type RedisSearchIndex struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
}

// NewRedisSearchIndex constructs a Redis-backed search index.
func NewRedisSearchIndex(client *redis.Client, keyPrefix string, ttl time.Duration) *RedisSearchIndex {
	if keyPrefix == "" {
		keyPrefix = "search:work:"
	}
	return &RedisSearchIndex{client: client, keyPrefix: keyPrefix, ttl: ttl}
}

// UpsertWork writes the summary document, replacing any previous version.
func (s *RedisSearchIndex) UpsertWork(ctx context.Context, doc models.WorkSummaryDocument) error {
	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal search document: %w", err)
	}
	if err := s.client.Set(ctx, s.keyPrefix+doc.WorkID, payload, s.ttl).Err(); err != nil {
		return fmt.Errorf("upsert search document: %w", err)
	}
	return nil
}

// RemoveWork deletes the work's document from the index.
func (s *RedisSearchIndex) RemoveWork(ctx context.Context, workID string) error {
	if err := s.client.Del(ctx, s.keyPrefix+workID).Err(); err != nil {
		return fmt.Errorf("remove search document: %w", err)
	}
	return nil
}
