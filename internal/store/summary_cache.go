package store

import (
    "context"
    "errors"
    "fmt"
    "time"

    redis "github.com/redis/go-redis/v9"
    "github.com/rs/zerolog/log"
)

// SummaryCache keeps recently read summaries in redis so folder listings
// and summary lookups avoid hitting SQLite for every file.
type SummaryCache struct {
    client *redis.Client
    ttl    time.Duration
}

func NewSummaryCache(redisURL string, ttl time.Duration) (*SummaryCache, error) {
    opt, err := redis.ParseURL(redisURL)
    if err != nil { return nil, err }
    c := redis.NewClient(opt)
    if err := c.Ping(context.Background()).Err(); err != nil { return nil, err }
    if ttl <= 0 { ttl = time.Hour }
    return &SummaryCache{client: c, ttl: ttl}, nil
}

func (c *SummaryCache) Close() error { return c.client.Close() }

func (c *SummaryCache) Ping(ctx context.Context) error { return c.client.Ping(ctx).Err() }

func (c *SummaryCache) key(filePath string) string {
    return fmt.Sprintf("chopdok:summary:%s", filePath)
}

// Get returns the cached summary and whether it was present.
func (c *SummaryCache) Get(ctx context.Context, filePath string) (string, bool, error) {
    res, err := c.client.Get(ctx, c.key(filePath)).Result()
    if errors.Is(err, redis.Nil) { return "", false, nil }
    if err != nil { return "", false, err }
    return res, true, nil
}

func (c *SummaryCache) Set(ctx context.Context, filePath, summary string) error {
    return c.client.Set(ctx, c.key(filePath), summary, c.ttl).Err()
}

func (c *SummaryCache) Delete(ctx context.Context, filePath string) error {
    return c.client.Del(ctx, c.key(filePath)).Err()
}

// Summaries reads and writes summaries through an optional cache.
// SQLite stays the source of truth; cache failures are logged and ignored.
type Summaries struct {
    docs  *DocumentStore
    cache *SummaryCache
}

// NewSummaries wraps docs. cache may be nil.
func NewSummaries(docs *DocumentStore, cache *SummaryCache) *Summaries {
    return &Summaries{docs: docs, cache: cache}
}

// GetSummary returns the summary for filePath, or nil when none is stored.
func (s *Summaries) GetSummary(ctx context.Context, filePath string) (*string, error) {
    if s.cache != nil {
        text, ok, err := s.cache.Get(ctx, filePath)
        if err != nil {
            log.Warn().Err(err).Str("path", filePath).Msg("summary cache read failed")
        } else if ok {
            return &text, nil
        }
    }
    text, err := s.docs.GetSummary(ctx, filePath)
    if err != nil || text == nil { return text, err }
    if s.cache != nil {
        if err := s.cache.Set(ctx, filePath, *text); err != nil {
            log.Warn().Err(err).Str("path", filePath).Msg("summary cache write failed")
        }
    }
    return text, nil
}

// UpsertSummary stores the summary and refreshes the cached copy.
func (s *Summaries) UpsertSummary(ctx context.Context, filePath, summary string) error {
    if err := s.docs.UpsertSummary(ctx, filePath, summary); err != nil { return err }
    if s.cache != nil {
        if err := s.cache.Set(ctx, filePath, summary); err != nil {
            log.Warn().Err(err).Str("path", filePath).Msg("summary cache write failed")
        }
    }
    return nil
}
