package calendar

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"slotbook/backend/internal/availability"
	"slotbook/backend/internal/domain"
)

// Source is the connector surface the booking service consumes.
type Source interface {
	ListBusy(ctx context.Context, window availability.Interval) ([]availability.Interval, error)
	CreateEvent(ctx context.Context, ev domain.CalendarEvent) (string, error)
	DeleteEvent(ctx context.Context, eventID string) error
}

// KV is the subset of the redis client the cache uses.
type KV interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Incr(ctx context.Context, key string) *redis.IntCmd
}

// Cached keeps busy lookups in redis for a short TTL. Every event write bumps a
// generation counter, so later lookups miss instead of reading pre-write data.
type Cached struct {
	next   Source
	kv     KV
	ttl    time.Duration
	prefix string
	log    *slog.Logger
}

func NewCached(next Source, kv KV, ttl time.Duration, log *slog.Logger) *Cached {
	if ttl <= 0 {
		ttl = time.Minute
	}
	if log == nil {
		log = slog.Default()
	}
	return &Cached{
		next:   next,
		kv:     kv,
		ttl:    ttl,
		prefix: "slotbook:busy",
		log:    log.With(slog.String("component", "calendar.cache")),
	}
}

type cachedInterval struct {
	Start time.Time `json:"s"`
	End   time.Time `json:"e"`
}

func (c *Cached) generation(ctx context.Context) (int64, error) {
	v, err := c.kv.Get(ctx, c.prefix+":gen").Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(v, 10, 64)
}

func (c *Cached) key(gen int64, window availability.Interval) string {
	return fmt.Sprintf("%s:%d:%d:%d", c.prefix, gen, window.Start.Unix(), window.End.Unix())
}

func (c *Cached) ListBusy(ctx context.Context, window availability.Interval) ([]availability.Interval, error) {
	gen, err := c.generation(ctx)
	if err != nil {
		c.log.Warn("busy cache unavailable", slog.Any("err", err))
		return c.next.ListBusy(ctx, window)
	}
	key := c.key(gen, window)

	raw, err := c.kv.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var cached []cachedInterval
		if err := json.Unmarshal(raw, &cached); err == nil {
			out := make([]availability.Interval, 0, len(cached))
			for _, iv := range cached {
				out = append(out, availability.Interval{Start: iv.Start, End: iv.End})
			}
			return out, nil
		}
		c.log.Warn("busy cache entry unreadable", slog.String("key", key))
	case !errors.Is(err, redis.Nil):
		c.log.Warn("busy cache read failed", slog.Any("err", err))
	}

	busy, err := c.next.ListBusy(ctx, window)
	if err != nil {
		return nil, err
	}

	entries := make([]cachedInterval, 0, len(busy))
	for _, iv := range busy {
		entries = append(entries, cachedInterval{Start: iv.Start, End: iv.End})
	}
	if b, err := json.Marshal(entries); err == nil {
		if err := c.kv.Set(ctx, key, b, c.ttl).Err(); err != nil {
			c.log.Warn("busy cache write failed", slog.Any("err", err))
		}
	}
	return busy, nil
}

func (c *Cached) CreateEvent(ctx context.Context, ev domain.CalendarEvent) (string, error) {
	id, err := c.next.CreateEvent(ctx, ev)
	if err != nil {
		return "", err
	}
	c.invalidate(ctx)
	return id, nil
}

func (c *Cached) DeleteEvent(ctx context.Context, eventID string) error {
	if err := c.next.DeleteEvent(ctx, eventID); err != nil {
		return err
	}
	c.invalidate(ctx)
	return nil
}

func (c *Cached) invalidate(ctx context.Context) {
	if err := c.kv.Incr(ctx, c.prefix+":gen").Err(); err != nil {
		c.log.Warn("busy cache invalidation failed", slog.Any("err", err))
	}
}
