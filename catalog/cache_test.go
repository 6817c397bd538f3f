package catalog

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/codewandler/lullaby-go/device"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStorage struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemStorage() *memStorage {
	return &memStorage{data: map[string][]byte{}}
}

func (m *memStorage) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memStorage) Put(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *memStorage) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *memStorage) has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.data[key]
	return ok
}

const manifestJSON = `{
  "version": 3,
  "sounds": [
    {"id": "rain", "name": "Rain", "icon": "rain", "url": "https://cdn.example/rain.mp3"},
    {"id": "owl", "name": "Night Owl", "icon": "moon", "url": "https://cdn.example/owl.mp3"}
  ]
}`

func manifestServer(t *testing.T, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, "no-cache", r.Header.Get("Cache-Control"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(manifestJSON))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func failingServer(t *testing.T, status int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func seedCache(t *testing.T, s *memStorage, sounds []Sound, at time.Time) {
	t.Helper()
	data, err := json.Marshal(cacheEntry{Sounds: sounds, TimestampMs: at.UnixMilli()})
	require.NoError(t, err)
	require.NoError(t, s.Put(context.Background(), CacheKey, data))
}

func TestFetchRemoteWritesCache(t *testing.T) {
	var hits atomic.Int32
	srv := manifestServer(t, &hits)
	storage := newMemStorage()
	now := time.UnixMilli(1_700_000_000_000)

	c := New(Config{ManifestURL: srv.URL, Storage: storage, Now: func() time.Time { return now }})
	sounds := c.Fetch(context.Background())

	require.Len(t, sounds, 2)
	require.Equal(t, "owl", sounds[1].ID)
	require.Equal(t, device.URL("https://cdn.example/owl.mp3"), sounds[1].Source)

	raw, ok, _ := storage.Get(context.Background(), CacheKey)
	require.True(t, ok)
	var entry cacheEntry
	require.NoError(t, json.Unmarshal(raw, &entry))
	require.Equal(t, now.UnixMilli(), entry.TimestampMs)
	require.Equal(t, sounds, entry.Sounds)
}

func TestFetchFallsBackToFreshCache(t *testing.T) {
	srv := failingServer(t, http.StatusInternalServerError)
	storage := newMemStorage()
	now := time.UnixMilli(1_700_000_000_000)
	cached := []Sound{{ID: "cached", Name: "Cached", Source: device.URL("https://cdn.example/c.mp3")}}
	seedCache(t, storage, cached, now.Add(-23*time.Hour))

	c := New(Config{ManifestURL: srv.URL, Storage: storage, Now: func() time.Time { return now }})

	require.Equal(t, cached, c.Fetch(context.Background()))
}

func TestFetchDiscardsExpiredCache(t *testing.T) {
	srv := failingServer(t, http.StatusBadGateway)
	storage := newMemStorage()
	now := time.UnixMilli(1_700_000_000_000)
	seedCache(t, storage, []Sound{{ID: "stale"}}, now.Add(-25*time.Hour))

	c := New(Config{ManifestURL: srv.URL, Storage: storage, Now: func() time.Time { return now }})

	require.Nil(t, c.Fetch(context.Background()))
	require.False(t, storage.has(CacheKey))
}

func TestFetchMalformedManifestCountsAsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"version": 1, "sounds": [{"id": "x"`))
	}))
	t.Cleanup(srv.Close)

	storage := newMemStorage()
	c := New(Config{ManifestURL: srv.URL, Storage: storage})

	require.Nil(t, c.Fetch(context.Background()))
	require.False(t, storage.has(CacheKey))
}

func TestFetchRemoteReplacesCacheWholesale(t *testing.T) {
	var hits atomic.Int32
	srv := manifestServer(t, &hits)
	storage := newMemStorage()
	seedCache(t, storage, []Sound{{ID: "old-only"}}, time.Now())

	c := New(Config{ManifestURL: srv.URL, Storage: storage})
	sounds := c.Fetch(context.Background())

	_, found := Find(sounds, "old-only")
	require.False(t, found)
	require.Len(t, sounds, 2)
}

func TestSoundsLoadsOnceUntilRefresh(t *testing.T) {
	var hits atomic.Int32
	srv := manifestServer(t, &hits)
	storage := newMemStorage()
	c := New(Config{ManifestURL: srv.URL, Storage: storage})
	ctx := context.Background()

	c.Sounds(ctx)
	c.Sounds(ctx)
	require.EqualValues(t, 1, hits.Load())

	c.Invalidate(ctx)
	require.False(t, storage.has(CacheKey))
	require.EqualValues(t, 1, hits.Load())

	c.Refresh(ctx)
	require.EqualValues(t, 2, hits.Load())
}

func TestSoundsFallsBackToBundled(t *testing.T) {
	c := New(Config{ManifestURL: failingServer(t, http.StatusNotFound).URL})

	sounds := c.Sounds(context.Background())
	require.Equal(t, Bundled, sounds)

	s, ok := c.Lookup(context.Background(), "ocean")
	require.True(t, ok)
	require.Equal(t, device.Asset("ocean.mp3"), s.Source)

	_, ok = c.Lookup(context.Background(), "")
	require.False(t, ok)
}
