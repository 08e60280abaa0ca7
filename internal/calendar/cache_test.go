package calendar

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slotbook/backend/internal/availability"
	"slotbook/backend/internal/domain"
)

type memKV struct {
	mu   sync.Mutex
	data map[string]string
	down bool
}

func newMemKV() *memKV {
	return &memKV{data: map[string]string{}}
}

func (m *memKV) Get(ctx context.Context, key string) *redis.StringCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.down {
		return redis.NewStringResult("", errors.New("connection refused"))
	}
	v, ok := m.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (m *memKV) Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.down {
		return redis.NewStatusResult("", errors.New("connection refused"))
	}
	switch v := value.(type) {
	case []byte:
		m.data[key] = string(v)
	case string:
		m.data[key] = v
	}
	return redis.NewStatusResult("OK", nil)
}

func (m *memKV) Incr(ctx context.Context, key string) *redis.IntCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.down {
		return redis.NewIntResult(0, errors.New("connection refused"))
	}
	n, _ := strconv.ParseInt(m.data[key], 10, 64)
	n++
	m.data[key] = strconv.FormatInt(n, 10)
	return redis.NewIntResult(n, nil)
}

type countingSource struct {
	calls int
	busy  []availability.Interval
	err   error
}

func (s *countingSource) ListBusy(ctx context.Context, window availability.Interval) ([]availability.Interval, error) {
	s.calls++
	return s.busy, s.err
}

func (s *countingSource) CreateEvent(ctx context.Context, ev domain.CalendarEvent) (string, error) {
	return "evt", nil
}

func (s *countingSource) DeleteEvent(ctx context.Context, eventID string) error {
	return nil
}

var cacheWindow = availability.Interval{
	Start: time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
	End:   time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC),
}

func TestCached_HitsAfterFirstLookup(t *testing.T) {
	start := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	src := &countingSource{busy: []availability.Interval{{Start: start, End: start.Add(time.Hour)}}}
	c := NewCached(src, newMemKV(), time.Minute, nil)

	first, err := c.ListBusy(context.Background(), cacheWindow)
	require.NoError(t, err)
	second, err := c.ListBusy(context.Background(), cacheWindow)
	require.NoError(t, err)

	assert.Equal(t, 1, src.calls)
	require.Len(t, second, 1)
	assert.True(t, second[0].Start.Equal(first[0].Start))
	assert.True(t, second[0].End.Equal(first[0].End))
}

func TestCached_WritesInvalidate(t *testing.T) {
	src := &countingSource{}
	c := NewCached(src, newMemKV(), time.Minute, nil)
	ctx := context.Background()

	_, err := c.ListBusy(ctx, cacheWindow)
	require.NoError(t, err)
	_, err = c.CreateEvent(ctx, domain.CalendarEvent{})
	require.NoError(t, err)
	_, err = c.ListBusy(ctx, cacheWindow)
	require.NoError(t, err)
	require.NoError(t, c.DeleteEvent(ctx, "evt"))
	_, err = c.ListBusy(ctx, cacheWindow)
	require.NoError(t, err)

	assert.Equal(t, 3, src.calls)
}

func TestCached_RedisDownFallsThrough(t *testing.T) {
	kv := newMemKV()
	kv.down = true
	src := &countingSource{}
	c := NewCached(src, kv, time.Minute, nil)

	for i := 0; i < 2; i++ {
		_, err := c.ListBusy(context.Background(), cacheWindow)
		require.NoError(t, err)
	}
	assert.Equal(t, 2, src.calls)
}

func TestCached_SourceErrorNotCached(t *testing.T) {
	src := &countingSource{err: errors.New("boom")}
	c := NewCached(src, newMemKV(), time.Minute, nil)

	_, err := c.ListBusy(context.Background(), cacheWindow)
	require.Error(t, err)

	src.err = nil
	_, err = c.ListBusy(context.Background(), cacheWindow)
	require.NoError(t, err)
	assert.Equal(t, 2, src.calls)
}
