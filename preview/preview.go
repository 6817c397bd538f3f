// Package preview auditions a single background sound for a few seconds.
package preview

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/codewandler/lullaby-go/catalog"
	"github.com/codewandler/lullaby-go/device"
	"github.com/codewandler/lullaby-go/focus"
	"github.com/codewandler/lullaby-go/internal/schedule"
)

const (
	DefaultDuration = 4 * time.Second
	DefaultVolume   = 0.5
)

type Option func(*Previewer)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Previewer) { p.logger = logger }
}

// WithDuration sets how long a preview plays before it stops by itself.
func WithDuration(d time.Duration) Option {
	return func(p *Previewer) { p.duration = d }
}

func WithVolume(v float64) Option {
	return func(p *Previewer) { p.volume = device.ClampVolume(v) }
}

// OnStart is called after a preview stream starts.
func OnStart(f func(catalog.Sound)) Option {
	return func(p *Previewer) { p.onStart = f }
}

// OnStop is called whenever a preview ends, for whatever reason.
func OnStop(f func(catalog.Sound)) Option {
	return func(p *Previewer) { p.onStop = f }
}

// Previewer holds at most one preview stream.
type Previewer struct {
	out      device.Output
	arb      *focus.Arbiter
	logger   *slog.Logger
	duration time.Duration
	volume   float64
	onStart  func(catalog.Sound)
	onStop   func(catalog.Sound)

	mu      sync.Mutex
	stream  device.Stream
	sound   catalog.Sound
	lease   *focus.Lease
	timer   *schedule.Task
	pending []func()
}

func New(out device.Output, arb *focus.Arbiter, opts ...Option) *Previewer {
	p := &Previewer{
		out:      out,
		arb:      arb,
		logger:   slog.New(slog.DiscardHandler),
		duration: DefaultDuration,
		volume:   DefaultVolume,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.arb == nil {
		p.arb = focus.NewArbiter(p.logger)
	}
	return p
}

func (p *Previewer) unlock() {
	pending := p.pending
	p.pending = nil
	p.mu.Unlock()
	for _, f := range pending {
		f()
	}
}

// Preview stops any running preview and plays sound at the preview volume. The
// stream stops by itself after the preview duration.
func (p *Previewer) Preview(ctx context.Context, sound catalog.Sound) error {
	p.mu.Lock()
	defer p.unlock()

	p.stopLocked(ctx)

	if sound.Source.IsZero() {
		return fmt.Errorf("preview %q: %w: no source", sound.ID, device.ErrAssetLoad)
	}

	// The stream only exists after Load, so revocation is bound to the lease.
	var lease *focus.Lease
	lease, err := p.arb.Acquire(ctx, focus.OwnerPreview, func(ctx context.Context) {
		p.revoked(ctx, lease)
	})
	if err != nil {
		return err
	}

	stream, err := p.out.Load(ctx, sound.Source, device.LoadOptions{
		Volume:       p.volume,
		StartPlaying: true,
	})
	if err != nil {
		lease.Release()
		if !errors.Is(err, device.ErrAudioFocusUnavailable) {
			err = fmt.Errorf("%w: %w", device.ErrAssetLoad, err)
		}
		return fmt.Errorf("preview %q: %w", sound.ID, err)
	}

	p.stream = stream
	p.sound = sound
	p.lease = lease
	p.timer = schedule.After(context.WithoutCancel(ctx), p.duration, func(ctx context.Context) {
		p.expire(ctx, stream)
	})

	p.logger.Debug("preview started", slog.String("sound", sound.ID))
	if f := p.onStart; f != nil {
		p.pending = append(p.pending, func() { f(sound) })
	}
	return nil
}

// StopPreview stops the running preview, if any, and cancels its timer.
func (p *Previewer) StopPreview(ctx context.Context) {
	p.mu.Lock()
	defer p.unlock()
	p.stopLocked(ctx)
}

// Active returns the sound being previewed.
func (p *Previewer) Active() (catalog.Sound, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stream == nil {
		return catalog.Sound{}, false
	}
	return p.sound, true
}

// Close force-stops any preview.
func (p *Previewer) Close(ctx context.Context) {
	p.StopPreview(ctx)
}

// expire fires for the stream it was scheduled for and ignores replacements.
func (p *Previewer) expire(ctx context.Context, stream device.Stream) {
	p.mu.Lock()
	defer p.unlock()

	if p.stream != stream {
		return
	}
	p.logger.Debug("preview expired", slog.String("sound", p.sound.ID))
	p.stopLocked(ctx)
}

func (p *Previewer) revoked(ctx context.Context, lease *focus.Lease) {
	p.mu.Lock()
	defer p.unlock()

	if p.lease != lease || p.stream == nil {
		return
	}
	p.lease = nil
	p.stopLocked(ctx)
}

func (p *Previewer) stopLocked(ctx context.Context) {
	p.timer.Cancel()
	p.timer = nil

	if p.stream == nil {
		return
	}
	stream, sound := p.stream, p.sound
	p.stream = nil
	p.sound = catalog.Sound{}

	if err := stream.Stop(ctx); err != nil {
		p.logger.Debug("failed to stop preview", slog.Any("err", err))
	}
	if err := stream.Unload(ctx); err != nil {
		p.logger.Warn("failed to unload preview", slog.Any("err", err))
	}

	p.lease.Release()
	p.lease = nil

	if f := p.onStop; f != nil {
		p.pending = append(p.pending, func() { f(sound) })
	}
}
