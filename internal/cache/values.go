package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/valuatech/portfolio-service/internal/models"
)

const valueSeriesPrefix = "values:"

// ValueCache caches portfolio value series responses in Redis. Entries are
// keyed per (portfolio, date range) and invalidated whenever a portfolio's
// holdings are rewritten. All failures are soft: callers fall back to the
// database.
type ValueCache struct {
	client *redis.Client
	ttl    time.Duration
	logger zerolog.Logger
}

// New creates a ValueCache over a Redis client
func New(client *redis.Client, ttl time.Duration, logger zerolog.Logger) *ValueCache {
	return &ValueCache{
		client: client,
		ttl:    ttl,
		logger: logger.With().Str("component", "cache").Logger(),
	}
}

func seriesKey(portfolio, start, end string) string {
	if portfolio == "" {
		portfolio = "*all*"
	}
	return fmt.Sprintf("%s%s:%s:%s", valueSeriesPrefix, portfolio, start, end)
}

// GetValueSeries returns a cached value series, or (nil, false) on miss or error
func (c *ValueCache) GetValueSeries(ctx context.Context, portfolio, start, end string) ([]models.PortfolioValue, bool) {
	data, err := c.client.Get(ctx, seriesKey(portfolio, start, end)).Bytes()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		c.logger.Warn().Err(err).Msg("cache read failed")
		return nil, false
	}

	var values []models.PortfolioValue
	if err := json.Unmarshal(data, &values); err != nil {
		c.logger.Warn().Err(err).Msg("cache entry corrupt, discarding")
		return nil, false
	}
	return values, true
}

// SetValueSeries stores a value series with the configured TTL
func (c *ValueCache) SetValueSeries(ctx context.Context, portfolio, start, end string, values []models.PortfolioValue) {
	data, err := json.Marshal(values)
	if err != nil {
		c.logger.Warn().Err(err).Msg("cache marshal failed")
		return
	}
	if err := c.client.Set(ctx, seriesKey(portfolio, start, end), data, c.ttl).Err(); err != nil {
		c.logger.Warn().Err(err).Msg("cache write failed")
	}
}

// InvalidatePortfolio drops every cached series that could include the
// portfolio, including combined all-portfolio entries
func (c *ValueCache) InvalidatePortfolio(ctx context.Context, portfolio string) {
	for _, pattern := range []string{
		valueSeriesPrefix + portfolio + ":*",
		valueSeriesPrefix + "*all*:*",
	} {
		iter := c.client.Scan(ctx, 0, pattern, 0).Iterator()
		for iter.Next(ctx) {
			if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
				c.logger.Warn().Err(err).Str("key", iter.Val()).Msg("cache invalidation failed")
			}
		}
		if err := iter.Err(); err != nil {
			c.logger.Warn().Err(err).Msg("cache scan failed")
		}
	}
}
