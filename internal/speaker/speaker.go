// Package speaker implements device.Output on the sound card through beep.
package speaker

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"math"
	"net/http"
	"os"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/codewandler/lullaby-go/device"
	"github.com/faiface/beep"
	"github.com/faiface/beep/effects"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/speaker"
	"github.com/faiface/beep/wav"
)

const bufferLatency = 100 * time.Millisecond

type Option func(*Output)

func WithLogger(logger *slog.Logger) Option {
	return func(o *Output) { o.logger = logger }
}

func WithHTTPClient(c *http.Client) Option {
	return func(o *Output) { o.http = c }
}

// Output mixes every loaded stream into the single beep speaker.
type Output struct {
	sampleRate beep.SampleRate
	assets     fs.FS
	http       *http.Client
	logger     *slog.Logger

	initOnce sync.Once
	initErr  error

	mu   sync.Mutex
	mode device.Mode
}

// New returns an output running at sampleRate. Asset sources are opened from
// assets.
func New(sampleRate int, assets fs.FS, opts ...Option) *Output {
	o := &Output{
		sampleRate: beep.SampleRate(sampleRate),
		assets:     assets,
		http:       &http.Client{Timeout: 30 * time.Second},
		logger:     slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *Output) init() error {
	o.initOnce.Do(func() {
		if err := speaker.Init(o.sampleRate, o.sampleRate.N(bufferLatency)); err != nil {
			o.initErr = fmt.Errorf("%w: init speaker: %w", device.ErrAudioFocusUnavailable, err)
		}
	})
	return o.initErr
}

// SetMode records the session mode. Desktop sound servers have no silent
// switch or background policy, so only recording is reflected in logs.
func (o *Output) SetMode(_ context.Context, mode device.Mode) error {
	o.mu.Lock()
	o.mode = mode
	o.mu.Unlock()
	o.logger.Debug("audio mode", slog.Bool("recording", mode.RecordingEnabled), slog.Bool("background", mode.BackgroundPlayback))
	return nil
}

func (o *Output) Load(ctx context.Context, src device.Source, opts device.LoadOptions) (device.Stream, error) {
	if err := o.init(); err != nil {
		return nil, err
	}

	rc, err := o.open(ctx, src)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", device.ErrAssetLoad, src, err)
	}

	decoded, format, err := decode(src.Ref, rc)
	if err != nil {
		rc.Close()
		return nil, fmt.Errorf("%w: decode %s: %w", device.ErrAssetLoad, src, err)
	}

	s := &stream{
		src:     src,
		decoded: decoded,
		format:  format,
		loop:    opts.Loop,
		logger:  o.logger,
	}

	var body beep.Streamer = decoded
	if opts.Loop {
		body = beep.Loop(-1, decoded)
	}
	if format.SampleRate != o.sampleRate {
		body = beep.Resample(4, format.SampleRate, o.sampleRate, body)
	}

	s.ctrl = &beep.Ctrl{Streamer: body, Paused: !opts.StartPlaying}
	s.volume = &effects.Volume{Streamer: s.ctrl, Base: 2}
	applyVolume(s.volume, opts.Volume)

	s.enqueue()
	o.logger.Debug("stream loaded", slog.String("src", src.String()), slog.Duration("duration", format.SampleRate.D(decoded.Len())))
	return s, nil
}

func (o *Output) open(ctx context.Context, src device.Source) (io.ReadCloser, error) {
	switch src.Kind {
	case device.SourceFile:
		return os.Open(device.PathFromURI(src.Ref))
	case device.SourceAsset:
		if o.assets == nil {
			return nil, fmt.Errorf("no asset filesystem")
		}
		return o.assets.Open(src.Ref)
	case device.SourceURL:
		return o.fetch(ctx, src.Ref)
	default:
		return nil, fmt.Errorf("unknown source kind %q", src.Kind)
	}
}

// fetch downloads a remote sound fully so that it can be looped and seeked.
func (o *Output) fetch(ctx context.Context, url string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := o.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return memFile{bytes.NewReader(data)}, nil
}

// memFile keeps Seek visible to the decoders, which io.NopCloser would hide.
type memFile struct{ *bytes.Reader }

func (memFile) Close() error { return nil }

func decode(ref string, rc io.ReadCloser) (beep.StreamSeekCloser, beep.Format, error) {
	ext := strings.ToLower(path.Ext(strings.SplitN(ref, "?", 2)[0]))
	switch ext {
	case ".wav":
		return wav.Decode(rc)
	case ".mp3", "":
		return mp3.Decode(rc)
	default:
		return nil, beep.Format{}, fmt.Errorf("unsupported format %q", ext)
	}
}

// applyVolume maps a linear [0,1] level onto the exponential beep scale.
func applyVolume(v *effects.Volume, level float64) {
	level = device.ClampVolume(level)
	v.Silent = level == 0
	if !v.Silent {
		v.Volume = math.Log2(level)
	}
}

type stream struct {
	src     device.Source
	decoded beep.StreamSeekCloser
	format  beep.Format
	loop    bool
	logger  *slog.Logger

	ctrl   *beep.Ctrl
	volume *effects.Volume

	// guarded by the speaker lock
	queued   bool
	finished bool
	unloaded bool
}

// enqueue hands the stream to the mixer followed by a finish marker.
func (s *stream) enqueue() {
	speaker.Lock()
	s.queued = true
	s.finished = false
	speaker.Unlock()

	speaker.Play(beep.Seq(s.volume, beep.Callback(func() {
		// runs inside the mixer, which already holds the speaker lock
		s.queued = false
		if !s.unloaded {
			s.finished = true
		}
	})))
}

func (s *stream) Play(context.Context) error {
	speaker.Lock()
	if s.unloaded {
		speaker.Unlock()
		return fmt.Errorf("%w: %s is unloaded", device.ErrAssetLoad, s.src)
	}
	requeue := !s.queued
	if requeue {
		if err := s.decoded.Seek(0); err != nil {
			speaker.Unlock()
			return fmt.Errorf("rewind %s: %w", s.src, err)
		}
	}
	s.ctrl.Paused = false
	speaker.Unlock()

	if requeue {
		s.enqueue()
	}
	return nil
}

func (s *stream) Pause(context.Context) error {
	speaker.Lock()
	s.ctrl.Paused = true
	speaker.Unlock()
	return nil
}

func (s *stream) Stop(context.Context) error {
	speaker.Lock()
	defer speaker.Unlock()
	s.ctrl.Paused = true
	if s.unloaded {
		return nil
	}
	if err := s.decoded.Seek(0); err != nil {
		return fmt.Errorf("rewind %s: %w", s.src, err)
	}
	return nil
}

func (s *stream) Unload(context.Context) error {
	speaker.Lock()
	if s.unloaded {
		speaker.Unlock()
		return nil
	}
	s.unloaded = true
	s.ctrl.Streamer = nil
	speaker.Unlock()

	if err := s.decoded.Close(); err != nil {
		return fmt.Errorf("close %s: %w", s.src, err)
	}
	return nil
}

func (s *stream) SetVolume(_ context.Context, v float64) error {
	speaker.Lock()
	applyVolume(s.volume, v)
	speaker.Unlock()
	return nil
}

func (s *stream) Status(context.Context) (device.Status, error) {
	speaker.Lock()
	defer speaker.Unlock()

	if s.unloaded {
		return device.Status{}, nil
	}
	return device.Status{
		Position:  s.format.SampleRate.D(s.decoded.Position()),
		Duration:  s.format.SampleRate.D(s.decoded.Len()),
		IsLoaded:  true,
		DidFinish: s.finished && !s.loop,
	}, nil
}
