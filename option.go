package lullaby

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/codewandler/lullaby-go/catalog"
	"github.com/codewandler/lullaby-go/player"
	"github.com/codewandler/lullaby-go/preview"
	"github.com/codewandler/lullaby-go/recorder"
)

// ManifestURLEnvVarName names the variable consulted for the sound manifest.
// Without a manifest url the catalog serves the cache or the bundled list.
const ManifestURLEnvVarName = "LULLABY_MANIFEST_URL"

type appConfig struct {
	logger          *slog.Logger
	storage         catalog.Storage
	manifestURL     string
	httpClient      *http.Client
	cacheTTL        time.Duration
	previewDuration time.Duration
	previewVolume   float64
	loopVoice       bool
	sleepAutoStop   bool
	sleepTick       time.Duration
	recordPoll      time.Duration
	playbackPoll    time.Duration
	now             func() time.Time
}

func (c *appConfig) validate(hw Hardware) error {
	switch {
	case hw.Output == nil:
		return fmt.Errorf("missing audio output")
	case hw.Input == nil:
		return fmt.Errorf("missing audio input")
	case hw.Permissions == nil:
		return fmt.Errorf("missing permission provider")
	case hw.Files == nil:
		return fmt.Errorf("missing file store")
	}
	return nil
}

type Option func(*appConfig)

func WithLogger(logger *slog.Logger) Option {
	return func(o *appConfig) {
		o.logger = logger
	}
}

func WithDefaultLogger() Option {
	return WithLogger(slog.Default())
}

// WithStorage persists the session and the sound cache. Without it nothing
// survives a restart.
func WithStorage(s catalog.Storage) Option {
	return func(o *appConfig) {
		o.storage = s
	}
}

func WithManifestURL(u string) Option {
	return func(o *appConfig) {
		o.manifestURL = u
	}
}

func WithEnvManifestURL(vars ...string) Option {
	return func(o *appConfig) {
		for _, envVarName := range vars {
			if u := os.Getenv(envVarName); u != "" {
				o.manifestURL = u
				return
			}
		}
	}
}

func WithHTTPClient(c *http.Client) Option {
	return func(o *appConfig) {
		o.httpClient = c
	}
}

func WithCacheTTL(ttl time.Duration) Option {
	return func(o *appConfig) {
		o.cacheTTL = ttl
	}
}

// WithPreview sets how long and how loud a sound is auditioned.
func WithPreview(d time.Duration, volume float64) Option {
	return func(o *appConfig) {
		o.previewDuration = d
		o.previewVolume = volume
	}
}

func WithLoopVoice(loop bool) Option {
	return func(o *appConfig) {
		o.loopVoice = loop
	}
}

// WithSleepTimerAutoStop controls whether an expired sleep timer stops playback.
func WithSleepTimerAutoStop(enabled bool) Option {
	return func(o *appConfig) {
		o.sleepAutoStop = enabled
	}
}

// WithPollIntervals overrides the recording, playback and sleep timer cadences.
func WithPollIntervals(record, playback, sleep time.Duration) Option {
	return func(o *appConfig) {
		o.recordPoll = record
		o.playbackPoll = playback
		o.sleepTick = sleep
	}
}

func WithClock(now func() time.Time) Option {
	return func(o *appConfig) {
		o.now = now
	}
}

func WithOptions(opts ...Option) Option {
	return func(o *appConfig) {
		for _, opt := range opts {
			opt(o)
		}
	}
}

func withDefaults() Option {
	return WithOptions(
		WithLogger(slog.New(slog.DiscardHandler)),
		WithEnvManifestURL(ManifestURLEnvVarName),
		WithHTTPClient(&http.Client{Timeout: 15 * time.Second}),
		WithCacheTTL(catalog.DefaultTTL),
		WithPreview(preview.DefaultDuration, preview.DefaultVolume),
		WithLoopVoice(false),
		WithSleepTimerAutoStop(true),
		WithPollIntervals(recorder.DefaultPollInterval, player.DefaultPollInterval, time.Second),
		WithClock(time.Now),
	)
}
