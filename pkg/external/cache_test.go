package external

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/genegpt-server/internal/domain"
	"github.com/genegpt-server/internal/metrics"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func TestCacheKey(t *testing.T) {
	a := CacheKey(domain.DBUniProt, "TP53", "")
	assert.Equal(t, a, CacheKey(domain.DBUniProt, "  tp53 ", ""))
	assert.NotEqual(t, a, CacheKey(domain.DBPDB, "TP53", ""))
	assert.NotEqual(t, a, CacheKey(domain.DBUniProt, "TP53", "isoforms"))
	assert.Contains(t, a, "genegpt:fetch:uniprot:")
}

func TestResultCache_Memory(t *testing.T) {
	m := metrics.New()
	cache, err := NewResultCache(domain.CacheConfig{Enabled: true, MemorySize: 10}, quietLogger(), m)
	require.NoError(t, err)
	ctx := context.Background()

	_, ok := cache.Get(ctx, domain.DBKEGG, "TP53", "")
	assert.False(t, ok)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheMissesTotal))

	require.NoError(t, cache.Set(ctx, domain.DBKEGG, "TP53", "", map[string]any{"gene": "TP53", "total_pathways": 2}))

	data, ok := cache.Get(ctx, domain.DBKEGG, "tp53", "")
	require.True(t, ok)
	assert.Equal(t, "TP53", data["gene"])
	// Entries round-trip through JSON in every tier.
	assert.Equal(t, float64(2), data["total_pathways"])
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheHitsTotal.WithLabelValues("memory")))
	assert.Equal(t, 1, cache.Len())

	data["gene"] = "mutated"
	again, ok := cache.Get(ctx, domain.DBKEGG, "TP53", "")
	require.True(t, ok)
	assert.Equal(t, "TP53", again["gene"])

	assert.NoError(t, cache.Ping(ctx))
	assert.NoError(t, cache.Close())
}

func TestResultCache_Stale(t *testing.T) {
	cache, err := NewResultCache(domain.CacheConfig{
		Enabled:   true,
		MemoryTTL: 10 * time.Millisecond,
		RedisTTL:  time.Hour,
	}, quietLogger(), nil)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, domain.DBString, "TP53", "", map[string]any{"query": "TP53"}))
	time.Sleep(30 * time.Millisecond)

	_, ok := cache.Get(ctx, domain.DBString, "TP53", "")
	assert.False(t, ok, "expired entries are not fresh")

	entry, ok := cache.Stale(ctx, domain.DBString, "TP53", "")
	require.True(t, ok)
	assert.Equal(t, "TP53", entry.Data["query"])
	assert.False(t, entry.Fresh(time.Now()))
}

func TestResultCache_BadRedisURL(t *testing.T) {
	_, err := NewResultCache(domain.CacheConfig{Enabled: true, RedisURL: "not-a-url"}, quietLogger(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse Redis URL")
}

func TestResultCache_Redis(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping Redis integration test in short mode")
	}

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Skipf("Docker not available: %v", err)
	}
	defer func() {
		require.NoError(t, container.Terminate(ctx))
	}()

	endpoint, err := container.Endpoint(ctx, "redis")
	require.NoError(t, err)

	m := metrics.New()
	cfg := domain.CacheConfig{Enabled: true, RedisURL: endpoint, RedisTTL: time.Hour, PoolSize: 2}
	writer, err := NewResultCache(cfg, quietLogger(), m)
	require.NoError(t, err)
	defer writer.Close()
	require.NoError(t, writer.Ping(ctx))

	require.NoError(t, writer.Set(ctx, domain.DBClinVar, "BRCA1", "", map[string]any{"gene": "BRCA1"}))

	// A second instance shares nothing but Redis.
	reader, err := NewResultCache(cfg, quietLogger(), m)
	require.NoError(t, err)
	defer reader.Close()

	data, ok := reader.Get(ctx, domain.DBClinVar, "BRCA1", "")
	require.True(t, ok)
	assert.Equal(t, "BRCA1", data["gene"])
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheHitsTotal.WithLabelValues("redis")))

	_, ok = reader.Get(ctx, domain.DBClinVar, "BRCA1", "")
	require.True(t, ok)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheHitsTotal.WithLabelValues("memory")))
}

type countingFetcher struct {
	calls int32
	err   error
	data  map[string]any
}

func (f *countingFetcher) Fetch(_ context.Context, _, _ string) (map[string]any, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.err != nil {
		return nil, f.err
	}
	return f.data, nil
}

func TestResilientFetcher_CacheHitSkipsClient(t *testing.T) {
	cache, err := NewResultCache(domain.CacheConfig{Enabled: true}, quietLogger(), nil)
	require.NoError(t, err)

	next := &countingFetcher{data: map[string]any{"gene": "TP53"}}
	f := NewResilientFetcher(domain.DBNCBI, next, cache, DefaultCircuitBreakerConfig(), quietLogger())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		data, err := f.Fetch(ctx, "TP53", "gene")
		require.NoError(t, err)
		assert.Equal(t, "TP53", data["gene"])
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&next.calls))
}

func TestResilientFetcher_ErrorsAreNotCached(t *testing.T) {
	cache, err := NewResultCache(domain.CacheConfig{Enabled: true}, quietLogger(), nil)
	require.NoError(t, err)

	next := &countingFetcher{err: errors.New("upstream exploded")}
	f := NewResilientFetcher(domain.DBKEGG, next, cache, DefaultCircuitBreakerConfig(), quietLogger())

	_, err = f.Fetch(context.Background(), "TP53", "")
	require.Error(t, err)
	_, err = f.Fetch(context.Background(), "TP53", "")
	require.Error(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&next.calls))
	assert.Equal(t, 0, cache.Len())
}

func TestResilientFetcher_NotFoundDoesNotTrip(t *testing.T) {
	next := &countingFetcher{err: notFoundf("no gene")}
	f := NewResilientFetcher(domain.DBEnsembl, next, nil, DefaultCircuitBreakerConfig(), quietLogger())

	for i := 0; i < 10; i++ {
		_, err := f.Fetch(context.Background(), "NOTAGENE", "")
		assert.ErrorIs(t, err, ErrNotFound)
	}
	assert.Equal(t, gobreaker.StateClosed, f.State())
	assert.Equal(t, int32(10), atomic.LoadInt32(&next.calls))
}

func TestResilientFetcher_OpenBreakerServesStale(t *testing.T) {
	cache, err := NewResultCache(domain.CacheConfig{
		Enabled:   true,
		MemoryTTL: 10 * time.Millisecond,
		RedisTTL:  time.Hour,
	}, quietLogger(), nil)
	require.NoError(t, err)

	var failing atomic.Bool
	next := domain.FetcherFunc(func(_ context.Context, term, _ string) (map[string]any, error) {
		if failing.Load() {
			return nil, errors.New("connection refused")
		}
		return map[string]any{"query": term}, nil
	})
	f := NewResilientFetcher(domain.DBString, next, cache, DefaultCircuitBreakerConfig(), quietLogger())
	ctx := context.Background()

	_, err = f.Fetch(ctx, "TP53", "")
	require.NoError(t, err)
	time.Sleep(30 * time.Millisecond)

	failing.Store(true)
	for i := 0; i < 3; i++ {
		_, _ = f.Fetch(ctx, "EGFR", "")
	}
	require.Equal(t, gobreaker.StateOpen, f.State())

	data, err := f.Fetch(ctx, "TP53", "")
	require.NoError(t, err)
	assert.Equal(t, "TP53", data["query"])

	_, err = f.Fetch(ctx, "BRCA1", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "circuit breaker open")
}

func TestCatalog(t *testing.T) {
	clients := map[domain.DBType]domain.Fetcher{
		domain.DBUniProt: &countingFetcher{data: map[string]any{}},
		domain.DBPDB:     &countingFetcher{err: errors.New("down")},
	}
	breaker := DefaultCircuitBreakerConfig()
	breaker.MinRequests = 1
	breaker.FailureRatio = 0.5

	images := NewImageSearchClient(domain.GoogleConfig{})
	c := newCatalog(clients, nil, images, breaker, quietLogger())

	assert.Equal(t, []string{"pdb", "uniprot"}, c.Databases())
	assert.False(t, c.ImageSearchEnabled())
	assert.NoError(t, c.Ping(context.Background()))

	fetchers := c.Fetchers()
	require.Len(t, fetchers, 2)
	_, err := fetchers[domain.DBPDB].Fetch(context.Background(), "1TUP", "")
	require.Error(t, err)

	states := c.BreakerStates()
	assert.Equal(t, "open", states["pdb"])
	assert.Equal(t, "closed", states["uniprot"])
	assert.NoError(t, c.Close())
}
