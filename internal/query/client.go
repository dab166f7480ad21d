package query

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/learnio/learnio/internal/cache"
	"github.com/learnio/learnio/internal/events"
)

var ErrMutationInFlight = errors.New("a change to this item is already in progress")

const fetchTimeout = 15 * time.Second

// Client is the tag-invalidated read cache and mutation gate used by the portal
type Client struct {
	data     *cache.CacheHelper
	versions *cache.CacheHelper
	ttl      time.Duration
	logger   *slog.Logger

	group singleflight.Group

	mu       sync.Mutex
	inflight map[string]struct{}
}

func NewClient(cm *cache.CacheManager, ttl time.Duration, logger *slog.Logger) *Client {
	return &Client{
		data:     cm.Query,
		versions: cm.Version,
		ttl:      ttl,
		logger:   logger,
		inflight: make(map[string]struct{}),
	}
}

// Version is the current generation of a tag; it grows on every invalidation
func (c *Client) Version(ctx context.Context, tag Tag) (int64, error) {
	return c.versions.Counter(ctx, string(tag))
}

// Fetch reads key under tag through the cache. Concurrent callers of the same key share
// one fetch. A caller whose ctx ends first gets ctx.Err() and writes nothing.
func Fetch[T any](ctx context.Context, c *Client, tag Tag, key string, fetch func(ctx context.Context) (T, error)) (T, int64, error) {
	var zero T

	cacheable := true
	version, err := c.Version(ctx, tag)
	if err != nil {
		if !errors.Is(err, cache.ErrCacheNotAvailable) {
			c.logger.WarnContext(ctx, "Query cache unavailable, fetching directly", "tag", tag, "error", err)
		}
		cacheable = false
	}

	cacheKey := fmt.Sprintf("%s:%d:%s", tag, version, key)
	if cacheable {
		var cached T
		err := c.data.Get(ctx, cacheKey, &cached)
		if err == nil {
			return cached, version, nil
		}
		if !errors.Is(err, cache.ErrCacheNotFound) {
			c.logger.WarnContext(ctx, "Query cache read failed", "key", cacheKey, "error", err)
		}
	}

	// the shared fetch outlives any single caller
	results := c.group.DoChan(cacheKey, func() (interface{}, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), fetchTimeout)
		defer cancel()
		return fetch(fctx)
	})

	select {
	case <-ctx.Done():
		return zero, 0, ctx.Err()
	case res := <-results:
		if res.Err != nil {
			return zero, 0, res.Err
		}
		data, ok := res.Val.(T)
		if !ok {
			return zero, 0, fmt.Errorf("query %s: unexpected result type %T", cacheKey, res.Val)
		}
		if cacheable && ctx.Err() == nil {
			if err := c.data.Set(ctx, cacheKey, data, c.ttl); err != nil {
				c.logger.WarnContext(ctx, "Query cache write failed", "key", cacheKey, "error", err)
			}
		}
		return data, version, nil
	}
}

// Invalidate moves the given tags to a new version and drops their old entries
func (c *Client) Invalidate(ctx context.Context, tags ...Tag) error {
	var errs []error
	patterns := make([]string, 0, len(tags))
	for _, tag := range tags {
		if _, err := c.versions.Increment(ctx, string(tag)); err != nil && !errors.Is(err, cache.ErrCacheNotAvailable) {
			errs = append(errs, fmt.Errorf("invalidate %s: %w", tag, err))
		}
		patterns = append(patterns, string(tag)+":*")
	}

	// old versions are unreachable already; this only frees memory
	if err := c.data.InvalidatePatterns(ctx, patterns...); err != nil {
		c.logger.Debug("Failed to drop stale query entries", "tags", tags, "error", err)
	}
	return errors.Join(errs...)
}

func inflightKey(kind events.EventType, entity string) string {
	return family(kind) + ":" + entity
}

func (c *Client) begin(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, busy := c.inflight[key]; busy {
		return false
	}
	c.inflight[key] = struct{}{}
	return true
}

func (c *Client) end(key string) {
	c.mu.Lock()
	delete(c.inflight, key)
	c.mu.Unlock()
}

// InFlight reports whether a mutation of kind's family is running for entity
func (c *Client) InFlight(kind events.EventType, entity string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, busy := c.inflight[inflightKey(kind, entity)]
	return busy
}

// Mutate runs fn unless a mutation of the same family is already running for entity.
// The tags of kind are invalidated only when fn succeeds.
func (c *Client) Mutate(ctx context.Context, kind events.EventType, entity string, fn func(ctx context.Context) error) error {
	key := inflightKey(kind, entity)
	if !c.begin(key) {
		return ErrMutationInFlight
	}
	defer c.end(key)

	if err := fn(ctx); err != nil {
		return err
	}

	// the write happened; a caller that went away must not leave the cache stale
	if err := c.Invalidate(context.WithoutCancel(ctx), TagsFor(kind)...); err != nil {
		c.logger.ErrorContext(ctx, "Failed to invalidate after mutation",
			"kind", kind,
			"entity", entity,
			"error", err)
	}
	return nil
}

// HandleEvent invalidates the tags of a backend event; it is an events.Handler
func (c *Client) HandleEvent(ctx context.Context, event *events.Event) error {
	tags := TagsFor(event.Type)
	if len(tags) == 0 {
		return nil
	}
	c.logger.DebugContext(ctx, "Invalidating from event", "event_type", event.Type, "tags", tags)
	return c.Invalidate(ctx, tags...)
}
