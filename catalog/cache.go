package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/codewandler/lullaby-go/device"
)

const (
	// CacheKey is the storage key of the cached manifest.
	CacheKey = "lullaby-sounds-cache"
	// DefaultTTL is how long a cached list stays usable.
	DefaultTTL = 24 * time.Hour
)

// ErrFetch marks an unreachable or malformed manifest. It never leaves the
// package; Fetch falls through to the cache instead.
var ErrFetch = errors.New("sound manifest fetch failed")

// Storage holds the cached manifest.
type Storage interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

type Config struct {
	ManifestURL string
	TTL         time.Duration
	HTTPClient  *http.Client
	Storage     Storage
	Logger      *slog.Logger
	Now         func() time.Time
}

// Cache is a read-through cache over the remote manifest.
type Cache struct {
	cfg Config

	mu     sync.Mutex
	loaded []Sound
}

func New(cfg Config) *Cache {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 15 * time.Second}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Cache{cfg: cfg}
}

// Fetch tries the remote manifest, then a cache entry younger than the TTL.
// It returns nil when both fail; the caller falls back to Bundled.
func (c *Cache) Fetch(ctx context.Context) []Sound {
	sounds, err := c.fetchRemote(ctx)
	if err == nil {
		c.store(ctx, sounds)
		return sounds
	}
	c.cfg.Logger.Warn("failed to fetch sound manifest", slog.Any("err", err))

	cached, err := c.readCache(ctx)
	if err != nil {
		c.cfg.Logger.Error("failed to read sound cache", slog.Any("err", err))
		return nil
	}
	if len(cached) > 0 {
		c.cfg.Logger.Info("using cached sounds", slog.Int("count", len(cached)))
		return cached
	}
	return nil
}

// Sounds returns the catalog, loading it at most once per run. When neither
// the remote manifest nor the cache are usable, Bundled is returned.
func (c *Cache) Sounds(ctx context.Context) []Sound {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.loaded == nil {
		c.loaded = c.Fetch(ctx)
		if c.loaded == nil {
			c.loaded = Bundled
		}
	}
	return slices.Clone(c.loaded)
}

// Lookup resolves a sound id against the loaded catalog, then Bundled.
func (c *Cache) Lookup(ctx context.Context, id string) (Sound, bool) {
	if s, ok := Find(c.Sounds(ctx), id); ok {
		return s, true
	}
	return Find(Bundled, id)
}

// Invalidate drops the cached manifest and the loaded list. It does not refetch.
func (c *Cache) Invalidate(ctx context.Context) {
	c.mu.Lock()
	c.loaded = nil
	c.mu.Unlock()

	if c.cfg.Storage == nil {
		return
	}
	if err := c.cfg.Storage.Delete(ctx, CacheKey); err != nil {
		c.cfg.Logger.Error("failed to clear sound cache", slog.Any("err", err))
	}
}

// Refresh invalidates and loads the catalog again.
func (c *Cache) Refresh(ctx context.Context) []Sound {
	c.Invalidate(ctx)
	return c.Sounds(ctx)
}

func (c *Cache) fetchRemote(ctx context.Context) ([]Sound, error) {
	if c.cfg.ManifestURL == "" {
		return nil, fmt.Errorf("no manifest url: %w", ErrFetch)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.ManifestURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrFetch, resp.StatusCode)
	}

	var m manifest
	if err := json.NewDecoder(resp.Body).Decode(&m); err != nil {
		return nil, fmt.Errorf("%w: decode manifest: %w", ErrFetch, err)
	}

	sounds := make([]Sound, 0, len(m.Sounds))
	for i, s := range m.Sounds {
		if s.ID == "" || s.URL == "" {
			return nil, fmt.Errorf("%w: sound %d lacks id or url", ErrFetch, i)
		}
		sounds = append(sounds, Sound{
			ID:     s.ID,
			Name:   s.Name,
			Icon:   s.Icon,
			Source: device.URL(s.URL),
		})
	}
	if len(sounds) == 0 {
		return nil, fmt.Errorf("%w: empty manifest", ErrFetch)
	}

	c.cfg.Logger.Debug("fetched sound manifest", slog.Int("version", m.Version), slog.Int("count", len(sounds)))
	return sounds, nil
}

func (c *Cache) store(ctx context.Context, sounds []Sound) {
	if c.cfg.Storage == nil {
		return
	}
	data, err := json.Marshal(cacheEntry{Sounds: sounds, TimestampMs: c.cfg.Now().UnixMilli()})
	if err != nil {
		c.cfg.Logger.Error("failed to encode sound cache", slog.Any("err", err))
		return
	}
	if err := c.cfg.Storage.Put(ctx, CacheKey, data); err != nil {
		c.cfg.Logger.Error("failed to write sound cache", slog.Any("err", err))
	}
}

func (c *Cache) readCache(ctx context.Context) ([]Sound, error) {
	if c.cfg.Storage == nil {
		return nil, nil
	}
	data, ok, err := c.cfg.Storage.Get(ctx, CacheKey)
	if err != nil || !ok {
		return nil, err
	}

	var entry cacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("decode sound cache: %w", err)
	}

	age := c.cfg.Now().Sub(time.UnixMilli(entry.TimestampMs))
	if age > c.cfg.TTL {
		c.cfg.Logger.Debug("sound cache expired", slog.Duration("age", age))
		if err := c.cfg.Storage.Delete(ctx, CacheKey); err != nil {
			c.cfg.Logger.Error("failed to discard expired sound cache", slog.Any("err", err))
		}
		return nil, nil
	}
	return entry.Sounds, nil
}
