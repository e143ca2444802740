package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vitrine/vitrine/pkg/intent"
	"github.com/vitrine/vitrine/pkg/logger"
)

// CachedSearcher is a read-through redis cache in front of a Searcher.
// Cache failures never fail a search; they only cost a backend call.
type CachedSearcher struct {
	next   Searcher
	client redis.Cmdable
	ttl    time.Duration
	prefix string
	log    logger.Logger
}

// NewCachedSearcher wraps next. Keys are "{prefix}search:{normalized term}".
func NewCachedSearcher(next Searcher, client redis.Cmdable, prefix string, ttl time.Duration) *CachedSearcher {
	return &CachedSearcher{
		next:   next,
		client: client,
		ttl:    ttl,
		prefix: prefix,
		log:    logger.Component("catalog_cache"),
	}
}

func (c *CachedSearcher) key(term string) string {
	return c.prefix + "search:" + intent.Normalize(term)
}

// Search implements Searcher.
func (c *CachedSearcher) Search(ctx context.Context, term string) ([]Candidate, error) {
	key := c.key(term)

	raw, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var cached []Candidate
		if jerr := json.Unmarshal(raw, &cached); jerr == nil {
			return cached, nil
		}
		c.log.WarnContext(ctx, "discarding corrupt cache entry", "key", key)
	case errors.Is(err, redis.Nil):
	default:
		c.log.DebugContext(ctx, "search cache unavailable", "error", err)
	}

	items, err := c.next.Search(ctx, term)
	if err != nil {
		return nil, err
	}

	if data, jerr := json.Marshal(items); jerr == nil {
		if serr := c.client.Set(ctx, key, data, c.ttl).Err(); serr != nil {
			c.log.DebugContext(ctx, "search cache write failed", "error", serr)
		}
	}
	return items, nil
}

// Suggest passes through when the wrapped searcher also suggests.
func (c *CachedSearcher) Suggest(ctx context.Context, term string) ([]string, error) {
	if s, ok := c.next.(Suggester); ok {
		return s.Suggest(ctx, term)
	}
	return nil, ErrUnavailable
}
