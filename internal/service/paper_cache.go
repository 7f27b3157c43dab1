package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/perception-api/internal/dto"
)

// PaperListCache stores the per-student paper list in Redis. A nil client disables caching.
type PaperListCache struct {
	client *redis.Client
	ttl    time.Duration
	logger zerolog.Logger
}

// NewPaperListCache constructs the cache.
func NewPaperListCache(client *redis.Client, ttl time.Duration, logger zerolog.Logger) *PaperListCache {
	return &PaperListCache{
		client: client,
		ttl:    ttl,
		logger: logger.With().Str("component", "paper_cache").Logger(),
	}
}

func studentPapersKey(email string) string {
	return fmt.Sprintf("papers:student:%s", email)
}

// Get returns the cached list for a student.
func (c *PaperListCache) Get(ctx context.Context, email string) ([]dto.PaperSummary, bool) {
	if c == nil || c.client == nil {
		return nil, false
	}

	cached, err := c.client.Get(ctx, studentPapersKey(email)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn().Err(err).Msg("failed to read paper list cache")
		}
		return nil, false
	}

	var papers []dto.PaperSummary
	if err := json.Unmarshal([]byte(cached), &papers); err != nil {
		c.logger.Warn().Err(err).Msg("discarding malformed paper list cache entry")
		return nil, false
	}
	c.logger.Debug().Str("student", email).Msg("paper list cache hit")
	return papers, true
}

// Set stores the list for a student.
func (c *PaperListCache) Set(ctx context.Context, email string, papers []dto.PaperSummary) {
	if c == nil || c.client == nil {
		return
	}

	payload, err := json.Marshal(papers)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, studentPapersKey(email), payload, c.ttl).Err(); err != nil {
		c.logger.Warn().Err(err).Msg("failed to store paper list cache")
	}
}

// Invalidate drops the cached lists of the given students.
func (c *PaperListCache) Invalidate(ctx context.Context, emails ...string) {
	if c == nil || c.client == nil || len(emails) == 0 {
		return
	}

	keys := make([]string, 0, len(emails))
	for _, email := range emails {
		keys = append(keys, studentPapersKey(email))
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		c.logger.Warn().Err(err).Msg("failed to invalidate paper list cache")
	}
}
