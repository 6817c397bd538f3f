// Package player plays a voice recording and a background sound together,
// each at its own volume.
package player

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/codewandler/lullaby-go/device"
	"github.com/codewandler/lullaby-go/focus"
	"github.com/codewandler/lullaby-go/internal/schedule"
)

const DefaultPollInterval = 250 * time.Millisecond

// State is reset to the zero value by Stop.
type State struct {
	IsPlaying bool
	Position  time.Duration
	Duration  time.Duration
	Err       string
}

// Config is the mix an Engine plays. Callbacks are invoked without the engine
// lock held.
type Config struct {
	VoiceURI         string
	Background       device.Source
	VoiceVolume      float64
	BackgroundVolume float64
	LoopVoice        bool

	// OnComplete receives the run that finished; see StopCompleted.
	OnComplete func(run uint64)
	OnError    func(error)
	OnState    func(State)
}

type Option func(*Engine)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

func WithPollInterval(d time.Duration) Option {
	return func(e *Engine) { e.pollInterval = d }
}

// Engine holds at most one voice stream and one background stream.
type Engine struct {
	out          device.Output
	arb          *focus.Arbiter
	logger       *slog.Logger
	pollInterval time.Duration

	mu         sync.Mutex
	cfg        Config
	voice      device.Stream
	background device.Stream
	lease      *focus.Lease
	poll       *schedule.Task
	gen        uint64
	run        uint64
	state      State
	completed  bool
	pending    []func()
}

func New(out device.Output, arb *focus.Arbiter, cfg Config, opts ...Option) *Engine {
	e := &Engine{
		out:          out,
		arb:          arb,
		logger:       slog.New(slog.DiscardHandler),
		pollInterval: DefaultPollInterval,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.arb == nil {
		e.arb = focus.NewArbiter(e.logger)
	}
	cfg.VoiceVolume = device.ClampVolume(cfg.VoiceVolume)
	cfg.BackgroundVolume = device.ClampVolume(cfg.BackgroundVolume)
	e.cfg = cfg
	return e
}

// unlock releases the engine lock and then runs queued callbacks.
func (e *Engine) unlock() {
	pending := e.pending
	e.pending = nil
	e.mu.Unlock()
	for _, f := range pending {
		f()
	}
}

// Play tears down whatever is loaded, then loads and starts the voice and the
// background. The background always loops. With neither configured Play only
// logs a warning.
func (e *Engine) Play(ctx context.Context) error {
	e.mu.Lock()
	defer e.unlock()

	e.teardownLocked(ctx)
	e.setStateLocked(State{})

	if e.cfg.VoiceURI == "" && e.cfg.Background.IsZero() {
		e.logger.Warn("nothing to play: no voice and no background selected")
		return nil
	}

	gen := e.gen
	lease, err := e.arb.Acquire(ctx, focus.OwnerPlayer, func(ctx context.Context) {
		e.revoked(ctx, gen)
	})
	if err != nil {
		return e.applyLocked(ctx, e.leadRoleLocked(), AcquirePolicy, err)
	}
	e.lease = lease

	if e.cfg.VoiceURI != "" {
		s, err := e.out.Load(ctx, device.File(e.cfg.VoiceURI), device.LoadOptions{
			Volume:       e.cfg.VoiceVolume,
			Loop:         e.cfg.LoopVoice,
			StartPlaying: true,
		})
		if err != nil {
			if err := e.failLocked(ctx, RoleVoice, err); err != nil {
				return err
			}
		} else {
			e.voice = s
		}
	}

	if !e.cfg.Background.IsZero() {
		s, err := e.out.Load(ctx, e.cfg.Background, device.LoadOptions{
			Volume:       e.cfg.BackgroundVolume,
			Loop:         true,
			StartPlaying: true,
		})
		if err != nil {
			if err := e.failLocked(ctx, RoleBackground, err); err != nil {
				return err
			}
		} else {
			e.background = s
		}
	}

	if e.voice == nil && e.background == nil {
		e.teardownLocked(ctx)
		return nil
	}

	e.completed = false
	e.run++
	e.setStateLocked(State{IsPlaying: true})
	if e.voice != nil {
		e.startPollLocked()
	}

	e.logger.Info("playback started",
		slog.String("voice", e.cfg.VoiceURI),
		slog.String("background", e.cfg.Background.String()))
	return nil
}

// Pause pauses both streams.
func (e *Engine) Pause(ctx context.Context) error {
	e.mu.Lock()
	defer e.unlock()

	if e.voice == nil && e.background == nil {
		return nil
	}
	for role, s := range e.streamsLocked() {
		if err := s.Pause(ctx); err != nil {
			e.logger.Warn("failed to pause stream", slog.String("role", string(role)), slog.Any("err", err))
		}
	}
	e.state.IsPlaying = false
	e.notifyStateLocked()
	return nil
}

// Resume continues both paused streams. Focus contention is handled like a
// failure during Play.
func (e *Engine) Resume(ctx context.Context) error {
	e.mu.Lock()
	defer e.unlock()

	if e.voice == nil && e.background == nil {
		return nil
	}

	for _, role := range []Role{RoleVoice, RoleBackground} {
		s := e.streamLocked(role)
		if s == nil {
			continue
		}
		err := s.Play(ctx)
		if err == nil {
			continue
		}
		if !errors.Is(err, device.ErrAudioFocusUnavailable) {
			e.logger.Warn("failed to resume stream", slog.String("role", string(role)), slog.Any("err", err))
			continue
		}
		if err := e.failLocked(ctx, role, err); err != nil {
			return err
		}
	}

	if e.voice == nil && e.background == nil {
		return nil
	}
	// a finished voice starts over, so tracking and completion start over too
	if e.voice != nil && e.poll == nil {
		e.completed = false
		e.run++
		e.startPollLocked()
	}
	e.state.IsPlaying = true
	e.state.Err = ""
	e.notifyStateLocked()
	return nil
}

// Stop tears both streams down and resets the state.
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	defer e.unlock()

	e.teardownLocked(ctx)
	e.setStateLocked(State{})
	return nil
}

// TogglePlayPause pauses while playing, resumes loaded but paused streams and
// starts a fresh Play when nothing is loaded.
func (e *Engine) TogglePlayPause(ctx context.Context) error {
	e.mu.Lock()
	playing := e.state.IsPlaying
	loaded := e.voice != nil || e.background != nil
	e.mu.Unlock()

	switch {
	case playing:
		return e.Pause(ctx)
	case loaded:
		return e.Resume(ctx)
	default:
		return e.Play(ctx)
	}
}

// SetVoiceVolume applies v, clamped, to the loaded voice and remembers it for
// the next Play.
func (e *Engine) SetVoiceVolume(ctx context.Context, v float64) {
	e.setVolume(ctx, RoleVoice, v)
}

// SetBackgroundVolume applies v, clamped, to the loaded background and
// remembers it for the next Play.
func (e *Engine) SetBackgroundVolume(ctx context.Context, v float64) {
	e.setVolume(ctx, RoleBackground, v)
}

func (e *Engine) setVolume(ctx context.Context, role Role, v float64) {
	e.mu.Lock()
	defer e.unlock()

	v = device.ClampVolume(v)
	if role == RoleVoice {
		e.cfg.VoiceVolume = v
	} else {
		e.cfg.BackgroundVolume = v
	}

	if s := e.streamLocked(role); s != nil {
		if err := s.SetVolume(ctx, v); err != nil {
			e.logger.Warn("failed to set volume", slog.String("role", string(role)), slog.Any("err", err))
		}
	}
}

// SetVoice changes the voice used by the next Play.
func (e *Engine) SetVoice(uri string) {
	e.mu.Lock()
	e.cfg.VoiceURI = uri
	e.mu.Unlock()
}

// SetBackground changes the background used by the next Play.
func (e *Engine) SetBackground(src device.Source) {
	e.mu.Lock()
	e.cfg.Background = src
	e.mu.Unlock()
}

func (e *Engine) SetLoopVoice(loop bool) {
	e.mu.Lock()
	e.cfg.LoopVoice = loop
	e.mu.Unlock()
}

func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Loaded reports whether a stream pair is currently held.
func (e *Engine) Loaded() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.voice != nil || e.background != nil
}

// StopCompleted stops the mix only if run is the one that completed last and
// nothing has been played or resumed since. It reports whether it stopped.
func (e *Engine) StopCompleted(ctx context.Context, run uint64) bool {
	e.mu.Lock()
	defer e.unlock()

	if !e.completed || e.run != run {
		return false
	}
	e.teardownLocked(ctx)
	e.setStateLocked(State{})
	return true
}

// Close mirrors Stop.
func (e *Engine) Close(ctx context.Context) {
	_ = e.Stop(ctx)
}

// failLocked applies the role policy to err. It returns the classified error
// when the attempt must abort, nil otherwise.
func (e *Engine) failLocked(ctx context.Context, role Role, err error) error {
	return e.applyLocked(ctx, role, Policies[role], err)
}

func (e *Engine) applyLocked(ctx context.Context, role Role, policy Policy, err error) error {
	err = classify(role, err)

	if !policy.Surface {
		e.logger.Warn("stream failed", slog.String("role", string(role)), slog.Any("err", err))
	} else {
		e.logger.Error("stream failed", slog.String("role", string(role)), slog.Any("err", err))
		e.state.IsPlaying = false
		e.state.Err = err.Error()
		e.notifyStateLocked()
		if f := e.cfg.OnError; f != nil {
			e.pending = append(e.pending, func() { f(err) })
		}
	}

	if !policy.AbortPlay {
		return nil
	}
	e.teardownLocked(ctx)
	return err
}

func (e *Engine) teardownLocked(ctx context.Context) {
	e.gen++
	e.completed = false
	e.poll.Cancel()
	e.poll = nil

	for role, s := range e.streamsLocked() {
		if err := s.Stop(ctx); err != nil {
			e.logger.Debug("failed to stop stream", slog.String("role", string(role)), slog.Any("err", err))
		}
		if err := s.Unload(ctx); err != nil {
			e.logger.Warn("failed to unload stream", slog.String("role", string(role)), slog.Any("err", err))
		}
	}
	e.voice = nil
	e.background = nil

	e.lease.Release()
	e.lease = nil
}

// leadRoleLocked names the first stream the mix would load.
func (e *Engine) leadRoleLocked() Role {
	if e.cfg.VoiceURI == "" && !e.cfg.Background.IsZero() {
		return RoleBackground
	}
	return RoleVoice
}

func (e *Engine) streamLocked(role Role) device.Stream {
	if role == RoleVoice {
		return e.voice
	}
	return e.background
}

func (e *Engine) streamsLocked() map[Role]device.Stream {
	m := make(map[Role]device.Stream, 2)
	if e.voice != nil {
		m[RoleVoice] = e.voice
	}
	if e.background != nil {
		m[RoleBackground] = e.background
	}
	return m
}

func (e *Engine) setStateLocked(st State) {
	e.state = st
	e.notifyStateLocked()
}

func (e *Engine) notifyStateLocked() {
	if f := e.cfg.OnState; f != nil {
		st := e.state
		e.pending = append(e.pending, func() { f(st) })
	}
}

// revoked runs when another owner takes the hardware from this stream pair.
func (e *Engine) revoked(ctx context.Context, gen uint64) {
	e.mu.Lock()
	defer e.unlock()

	if e.gen != gen {
		return
	}
	e.logger.Info("playback interrupted by another audio session")
	e.lease = nil
	e.teardownLocked(ctx)
	e.setStateLocked(State{})
}

func (e *Engine) startPollLocked() {
	gen := e.gen
	e.poll = schedule.Every(context.Background(), e.pollInterval, func(ctx context.Context) {
		e.sample(ctx, gen)
	})
}

// sample reads the voice position. Background position is not tracked.
func (e *Engine) sample(ctx context.Context, gen uint64) {
	e.mu.Lock()
	voice := e.voice
	if e.gen != gen || voice == nil {
		e.mu.Unlock()
		return
	}
	e.mu.Unlock()

	st, err := voice.Status(ctx)
	if err != nil {
		e.logger.Debug("failed to sample voice", slog.Any("err", err))
		return
	}

	e.mu.Lock()
	defer e.unlock()
	if e.gen != gen || e.voice != voice {
		return
	}

	e.state.Position = st.Position
	e.state.Duration = st.Duration

	if st.DidFinish && !e.cfg.LoopVoice && !e.completed {
		e.completed = true
		e.state.IsPlaying = false
		e.poll.Cancel()
		e.poll = nil
		e.logger.Info("voice finished", slog.Duration("duration", st.Duration))
		if f := e.cfg.OnComplete; f != nil {
			run := e.run
			e.pending = append(e.pending, func() { f(run) })
		}
	}
	e.notifyStateLocked()
}

