// Package cache implements the two-tier cache layer in front of the IP
// Store: Redis as the primary tier, a bounded in-process LRU as fallback.
package cache

import (
	"container/list"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// InvalidateChannel is the Redis pub/sub channel the ingestion pipeline
// publishes to after a committed batch, bumping the layer's version.
const InvalidateChannel = "blacklist:cache:invalidate"

const (
	lruMaxEntries = 10_000
	lruMaxBytes   = 256 * 1024 * 1024
)

// value is the wrapper stored in both tiers so a read can detect whether the
// cached payload predates the current active-set version.
type value struct {
	Version uint64 `json:"version"`
	Payload []byte `json:"payload"`
}

// Layer is the cache layer described in §4.3: Redis primary, in-process LRU
// fallback, version-stamped values, single-log-per-transition circuit
// breaker on primary outage.
type Layer struct {
	redis   *redis.Client // nil when CACHE_URL is unset
	logger  *slog.Logger
	ttl     time.Duration
	version atomic.Uint64
	broken  atomic.Bool
	lru     *lru
}

// NewLayer creates a cache layer. rdb may be nil, in which case the layer
// operates entirely out of the in-process LRU tier.
func NewLayer(rdb *redis.Client, logger *slog.Logger, ttl time.Duration) *Layer {
	return &Layer{
		redis:  rdb,
		logger: logger,
		ttl:    ttl,
		lru:    newLRU(lruMaxEntries, lruMaxBytes),
	}
}

// Key builds a cache key from its component parts plus the layer's current
// version, so a version bump naturally misses every previously cached key
// without needing an explicit sweep.
func (l *Layer) Key(parts ...string) string {
	return fmt.Sprintf("v%d:%s", l.version.Load(), strings.Join(parts, ":"))
}

// Get returns the cached payload for key, trying Redis first and falling
// back to the in-process LRU on a primary-tier error.
func (l *Layer) Get(ctx context.Context, key string) ([]byte, bool) {
	if l.redis != nil {
		raw, err := l.redis.Get(ctx, key).Bytes()
		switch {
		case err == nil:
			l.recoverFromBreak()
			var v value
			if jsonErr := json.Unmarshal(raw, &v); jsonErr == nil && v.Version == l.version.Load() {
				return v.Payload, true
			}
		case errors.Is(err, redis.Nil):
			l.recoverFromBreak()
		default:
			l.trip(err)
		}
	}

	if payload, ok := l.lru.get(key, l.version.Load()); ok {
		return payload, true
	}
	return nil, false
}

// Set writes payload to both tiers under key.
func (l *Layer) Set(ctx context.Context, key string, payload []byte) {
	v := value{Version: l.version.Load(), Payload: payload}

	if l.redis != nil {
		if raw, err := json.Marshal(v); err == nil {
			if err := l.redis.Set(ctx, key, raw, l.ttl).Err(); err != nil {
				l.trip(err)
			} else {
				l.recoverFromBreak()
			}
		}
	}

	l.lru.set(key, v.Version, payload)
}

// GetOrLoad returns the cached payload for key, or calls load and caches its
// result on a miss. Every Query/Serving Layer handler wraps its origin read
// in this.
func (l *Layer) GetOrLoad(ctx context.Context, key string, load func(ctx context.Context) ([]byte, error)) ([]byte, error) {
	if payload, ok := l.Get(ctx, key); ok {
		return payload, nil
	}
	payload, err := load(ctx)
	if err != nil {
		return nil, err
	}
	l.Set(ctx, key, payload)
	return payload, nil
}

// Invalidate bumps the layer's current version, causing every subsequently
// read key built with an older version to miss.
func (l *Layer) Invalidate(newVersion uint64) {
	l.version.Store(newVersion)
}

// SubscribeInvalidation listens for invalidation events published by the
// ingestion pipeline and bumps the local version accordingly. It blocks
// until ctx is cancelled. No-op when rdb is nil.
func (l *Layer) SubscribeInvalidation(ctx context.Context) {
	if l.redis == nil {
		return
	}

	pubsub := l.redis.Subscribe(ctx, InvalidateChannel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var v uint64
			if _, err := fmt.Sscanf(msg.Payload, "%d", &v); err == nil {
				l.Invalidate(v)
			}
		}
	}
}

// PublishInvalidation publishes a new version to the invalidation channel.
// Called by the ingestion pipeline after a committed batch.
func PublishInvalidation(ctx context.Context, rdb *redis.Client, newVersion uint64) error {
	if rdb == nil {
		return nil
	}
	return rdb.Publish(ctx, InvalidateChannel, fmt.Sprintf("%d", newVersion)).Err()
}

// trip flips the breaker and logs once per healthy->broken transition,
// preventing log storms while Redis is down.
func (l *Layer) trip(err error) {
	if l.broken.CompareAndSwap(false, true) {
		l.logger.Warn("cache: primary tier unavailable, falling back to in-process tier", "error", err)
	}
}

// recoverFromBreak flips the breaker back and logs once per broken->healthy
// transition.
func (l *Layer) recoverFromBreak() {
	if l.broken.CompareAndSwap(true, false) {
		l.logger.Info("cache: primary tier recovered")
	}
}

// lru is a bounded, byte-size-tracked in-process fallback cache guarded by
// a mutex. No generic LRU library is wired anywhere in the retrieval pack
// (see DESIGN.md), so this is hand-rolled on container/list + map.
type lru struct {
	mu         sync.Mutex
	maxEntries int
	maxBytes   int
	curBytes   int
	ll         *list.List
	items      map[string]*list.Element
}

type lruEntry struct {
	key     string
	version uint64
	payload []byte
}

func newLRU(maxEntries, maxBytes int) *lru {
	return &lru{
		maxEntries: maxEntries,
		maxBytes:   maxBytes,
		ll:         list.New(),
		items:      make(map[string]*list.Element),
	}
}

func (c *lru) get(key string, version uint64) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		return nil, false
	}
	e := el.Value.(*lruEntry)
	if e.version != version {
		c.removeElement(el)
		return nil, false
	}
	c.ll.MoveToFront(el)
	return e.payload, true
}

func (c *lru) set(key string, version uint64, payload []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		c.removeElement(el)
	}

	size := len(key) + len(payload)
	if size > c.maxBytes {
		return // single entry too large to ever fit; skip caching it
	}

	el := c.ll.PushFront(&lruEntry{key: key, version: version, payload: payload})
	c.items[key] = el
	c.curBytes += size

	for c.curBytes > c.maxBytes || c.ll.Len() > c.maxEntries {
		oldest := c.ll.Back()
		if oldest == nil {
			break
		}
		c.removeElement(oldest)
	}
}

func (c *lru) removeElement(el *list.Element) {
	e := el.Value.(*lruEntry)
	c.ll.Remove(el)
	delete(c.items, e.key)
	c.curBytes -= len(e.key) + len(e.payload)
}
