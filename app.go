// Package lullaby coordinates recording a voice, auditioning background
// sounds and playing the resulting mix with an optional sleep timer.
package lullaby

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/codewandler/lullaby-go/catalog"
	"github.com/codewandler/lullaby-go/device"
	"github.com/codewandler/lullaby-go/events"
	"github.com/codewandler/lullaby-go/focus"
	"github.com/codewandler/lullaby-go/internal/schedule"
	"github.com/codewandler/lullaby-go/player"
	"github.com/codewandler/lullaby-go/preview"
	"github.com/codewandler/lullaby-go/recorder"
	"github.com/codewandler/lullaby-go/session"
)

// Hardware bundles the platform collaborators.
type Hardware struct {
	Output      device.Output
	Input       device.Input
	Permissions device.Permissions
	Files       device.Files
}

// App is the entry point for a UI. Public methods are serialised, so each one
// observes the effects of the previous one.
type App struct {
	config *appConfig
	hw     Hardware
	logger *slog.Logger

	session  *session.Store
	catalog  *catalog.Cache
	focus    *focus.Arbiter
	recorder *recorder.Manager
	player   *player.Engine
	preview  *preview.Previewer

	mu          sync.Mutex
	closed      bool
	pendingTake string
	sleepWatch  *schedule.Task

	hmu     sync.RWMutex
	onEvent func(e any)
	onError func(e *events.ErrorEvent)
}

func New(hw Hardware, opts ...Option) *App {
	config := &appConfig{}
	withDefaults()(config)
	WithOptions(opts...)(config)

	a := &App{
		config: config,
		hw:     hw,
		logger: config.logger,
		focus:  focus.NewArbiter(config.logger.With(slog.String("component", "focus"))),
	}

	sessionOpts := []session.Option{
		session.WithClock(config.now),
		session.WithLogger(config.logger.With(slog.String("component", "session"))),
	}
	if config.storage != nil {
		sessionOpts = append(sessionOpts, session.WithStorage(config.storage))
	}
	a.session = session.New(sessionOpts...)

	a.catalog = catalog.New(catalog.Config{
		ManifestURL: config.manifestURL,
		TTL:         config.cacheTTL,
		HTTPClient:  config.httpClient,
		Storage:     config.storage,
		Logger:      config.logger.With(slog.String("component", "catalog")),
		Now:         config.now,
	})

	a.recorder = recorder.New(recorder.Config{
		Input:        hw.Input,
		Output:       hw.Output,
		Permissions:  hw.Permissions,
		Files:        hw.Files,
		Focus:        a.focus,
		Logger:       config.logger.With(slog.String("component", "recorder")),
		PollInterval: config.recordPoll,
		OnStatus:     a.recordingStatusChanged,
	})

	a.player = player.New(hw.Output, a.focus, player.Config{
		VoiceVolume:      session.DefaultVoiceVolume,
		BackgroundVolume: session.DefaultBackgroundVolume,
		LoopVoice:        config.loopVoice,
		OnComplete:       a.playbackComplete,
		OnError:          func(err error) { a.emitError("play", err) },
		OnState:          a.playbackStateChanged,
	},
		player.WithLogger(config.logger.With(slog.String("component", "player"))),
		player.WithPollInterval(config.playbackPoll),
	)

	a.preview = preview.New(hw.Output, a.focus,
		preview.WithLogger(config.logger.With(slog.String("component", "preview"))),
		preview.WithDuration(config.previewDuration),
		preview.WithVolume(config.previewVolume),
		preview.OnStart(func(s catalog.Sound) {
			a.emit(&events.PreviewEvent{BaseEvent: events.NewBaseEvent(events.TypePreviewStarted), SoundID: s.ID})
		}),
		preview.OnStop(func(s catalog.Sound) {
			a.emit(&events.PreviewEvent{BaseEvent: events.NewBaseEvent(events.TypePreviewStopped), SoundID: s.ID})
		}),
	)

	return a
}

// OnEvent registers the handler for every event. Handlers run synchronously;
// they may read state but must not call the mutating methods of the App.
func (a *App) OnEvent(h func(e any)) {
	a.hmu.Lock()
	a.onEvent = h
	a.hmu.Unlock()
}

func (a *App) OnError(h func(e *events.ErrorEvent)) {
	a.hmu.Lock()
	a.onError = h
	a.hmu.Unlock()
}

func (a *App) emit(evt any) {
	a.hmu.RLock()
	h := a.onEvent
	a.hmu.RUnlock()
	if h != nil {
		h(evt)
	}
}

func (a *App) emitError(op string, err error) {
	evt := events.NewErrorEvent(op, err)
	a.logger.Error("operation failed", slog.String("op", op), slog.Any("err", err))

	a.hmu.RLock()
	h := a.onError
	a.hmu.RUnlock()
	if h != nil {
		h(evt)
	}
	a.emit(evt)
}

// Open restores the persisted session.
func (a *App) Open(ctx context.Context) error {
	if err := a.config.validate(a.hw); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.session.Load(ctx); err != nil {
		return err
	}
	a.syncPlayerLocked(ctx)
	a.logger.Info("lullaby opened", slog.Int("presets", len(a.session.Presets())))
	return nil
}

// Close stops everything that holds the audio hardware and discards an
// unsaved recording.
func (a *App) Close(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return
	}
	a.closed = true

	a.sleepWatch.Cancel()
	a.sleepWatch = nil

	a.preview.Close(ctx)
	a.player.Close(ctx)
	a.recorder.Close(ctx)
	a.discardTakeLocked(ctx)
	a.session.SetPlaying(false)
}

func (a *App) lock() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return ErrClosed
	}
	return nil
}

// RequestPermission asks for microphone access.
func (a *App) RequestPermission(ctx context.Context) (bool, error) {
	if err := a.lock(); err != nil {
		return false, err
	}
	defer a.mu.Unlock()

	return a.recorder.RequestPermission(ctx)
}

// StartRecording discards an unsaved take, stops any audio and starts a new
// recording.
func (a *App) StartRecording(ctx context.Context) error {
	if err := a.lock(); err != nil {
		return err
	}
	defer a.mu.Unlock()

	a.preview.StopPreview(ctx)
	a.stopPlaybackLocked(ctx)
	a.discardTakeLocked(ctx)

	if err := a.recorder.Start(ctx); err != nil {
		a.emitError("record", err)
		return err
	}
	return nil
}

// StopRecording finishes the recording. The take stays pending until it is
// kept or discarded.
func (a *App) StopRecording(ctx context.Context) (string, error) {
	if err := a.lock(); err != nil {
		return "", err
	}
	defer a.mu.Unlock()

	uri, err := a.recorder.Stop(ctx)
	if err != nil {
		a.emitError("record", err)
		return "", err
	}
	if uri != "" {
		a.pendingTake = uri
	}
	return uri, nil
}

// KeepRecording makes the pending take the session voice.
func (a *App) KeepRecording(ctx context.Context) (string, error) {
	if err := a.lock(); err != nil {
		return "", err
	}
	defer a.mu.Unlock()

	if a.pendingTake == "" {
		return "", ErrNoPendingRecording
	}
	uri := a.pendingTake
	a.pendingTake = ""

	a.session.SetVoiceURI(uri)
	a.player.SetVoice(uri)
	a.logger.Info("recording kept", slog.String("uri", uri))
	return uri, nil
}

// SelectVoice uses an existing recording as the session voice. An empty uri
// removes the voice.
func (a *App) SelectVoice(ctx context.Context, uri string) error {
	if err := a.lock(); err != nil {
		return err
	}
	defer a.mu.Unlock()

	if uri != "" {
		info, err := a.hw.Files.Stat(ctx, uri)
		if err != nil {
			return fmt.Errorf("stat voice: %w", err)
		}
		if !info.Exists {
			return fmt.Errorf("%w: %s", ErrVoiceNotFound, uri)
		}
	}
	a.session.SetVoiceURI(uri)
	a.player.SetVoice(uri)
	return nil
}

// DiscardRecording deletes the pending take.
func (a *App) DiscardRecording(ctx context.Context) error {
	if err := a.lock(); err != nil {
		return err
	}
	defer a.mu.Unlock()

	a.discardTakeLocked(ctx)
	return nil
}

// PendingRecording returns the take awaiting keep or discard.
func (a *App) PendingRecording() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.pendingTake
}

func (a *App) RecordingStatus() recorder.Status {
	return a.recorder.Status()
}

func (a *App) discardTakeLocked(ctx context.Context) {
	if a.pendingTake == "" {
		return
	}
	a.recorder.DeleteAsset(ctx, a.pendingTake)
	a.pendingTake = ""
}

// Sounds returns the background sound catalog.
func (a *App) Sounds(ctx context.Context) []catalog.Sound {
	return a.catalog.Sounds(ctx)
}

// RefreshSounds drops the cached catalog and loads it again.
func (a *App) RefreshSounds(ctx context.Context) []catalog.Sound {
	return a.catalog.Refresh(ctx)
}

// SelectBackground picks the background sound for the mix. An empty id
// removes the background.
func (a *App) SelectBackground(ctx context.Context, id string) error {
	if err := a.lock(); err != nil {
		return err
	}
	defer a.mu.Unlock()

	if id == "" {
		a.session.SetBackgroundSound("")
		a.player.SetBackground(device.Source{})
		return nil
	}

	sound, ok := a.catalog.Lookup(ctx, id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSound, id)
	}
	a.session.SetBackgroundSound(sound.ID)
	a.player.SetBackground(sound.Source)
	return nil
}

// Preview auditions a catalog sound. Main playback is interrupted.
func (a *App) Preview(ctx context.Context, id string) error {
	if err := a.lock(); err != nil {
		return err
	}
	defer a.mu.Unlock()

	sound, ok := a.catalog.Lookup(ctx, id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSound, id)
	}

	if err := a.preview.Preview(ctx, sound); err != nil {
		if errors.Is(err, device.ErrAudioFocusUnavailable) {
			a.emitError("preview", err)
		} else {
			a.logger.Warn("preview failed", slog.String("sound", id), slog.Any("err", err))
		}
		return err
	}
	return nil
}

func (a *App) StopPreview(ctx context.Context) {
	if err := a.lock(); err != nil {
		return
	}
	defer a.mu.Unlock()
	a.preview.StopPreview(ctx)
}

// Play stops a running preview and plays the current mix.
func (a *App) Play(ctx context.Context) error {
	if err := a.lock(); err != nil {
		return err
	}
	defer a.mu.Unlock()

	a.preview.StopPreview(ctx)
	a.syncPlayerLocked(ctx)
	return a.player.Play(ctx)
}

func (a *App) Pause(ctx context.Context) error {
	if err := a.lock(); err != nil {
		return err
	}
	defer a.mu.Unlock()
	return a.player.Pause(ctx)
}

func (a *App) Resume(ctx context.Context) error {
	if err := a.lock(); err != nil {
		return err
	}
	defer a.mu.Unlock()
	return a.player.Resume(ctx)
}

func (a *App) Stop(ctx context.Context) error {
	if err := a.lock(); err != nil {
		return err
	}
	defer a.mu.Unlock()
	a.stopPlaybackLocked(ctx)
	return nil
}

func (a *App) TogglePlayPause(ctx context.Context) error {
	if err := a.lock(); err != nil {
		return err
	}
	defer a.mu.Unlock()

	if !a.player.Loaded() {
		a.preview.StopPreview(ctx)
		a.syncPlayerLocked(ctx)
	}
	return a.player.TogglePlayPause(ctx)
}

func (a *App) PlaybackState() player.State {
	return a.player.State()
}

func (a *App) SetVoiceVolume(ctx context.Context, v float64) {
	if err := a.lock(); err != nil {
		return
	}
	defer a.mu.Unlock()
	a.session.SetVoiceVolume(v)
	a.player.SetVoiceVolume(ctx, a.session.VoiceVolume())
}

func (a *App) SetBackgroundVolume(ctx context.Context, v float64) {
	if err := a.lock(); err != nil {
		return
	}
	defer a.mu.Unlock()
	a.session.SetBackgroundVolume(v)
	a.player.SetBackgroundVolume(ctx, a.session.BackgroundVolume())
}

func (a *App) stopPlaybackLocked(ctx context.Context) {
	if err := a.player.Stop(ctx); err != nil {
		a.logger.Warn("failed to stop playback", slog.Any("err", err))
	}
}

// syncPlayerLocked copies the session mix into the engine for the next Play.
func (a *App) syncPlayerLocked(ctx context.Context) {
	mix := a.session.Mix()

	a.player.SetVoice(mix.VoiceURI)

	var src device.Source
	if mix.BackgroundSoundID != "" {
		if sound, ok := a.catalog.Lookup(ctx, mix.BackgroundSoundID); ok {
			src = sound.Source
		} else {
			a.logger.Warn("background sound not in catalog", slog.String("sound", mix.BackgroundSoundID))
		}
	}
	a.player.SetBackground(src)

	a.player.SetVoiceVolume(ctx, mix.VoiceVolume)
	a.player.SetBackgroundVolume(ctx, mix.BackgroundVolume)
}

// SetSleepTimer arms the sleep timer; minutes <= 0 clears it.
func (a *App) SetSleepTimer(ctx context.Context, minutes int) (session.SleepTimer, error) {
	if err := a.lock(); err != nil {
		return session.SleepTimer{}, err
	}
	defer a.mu.Unlock()

	a.sleepWatch.Cancel()
	a.sleepWatch = nil

	t := a.session.SetSleepTimer(minutes)
	if minutes <= 0 {
		return t, nil
	}

	var task *schedule.Task
	task = schedule.Every(context.WithoutCancel(ctx), a.config.sleepTick, func(ctx context.Context) {
		a.sleepTick(ctx, &task)
	})
	a.sleepWatch = task

	a.logger.Info("sleep timer armed", slog.Int("minutes", minutes))
	return t, nil
}

func (a *App) ClearSleepTimer() {
	if err := a.lock(); err != nil {
		return
	}
	defer a.mu.Unlock()

	a.sleepWatch.Cancel()
	a.sleepWatch = nil
	a.session.ClearSleepTimer()
}

// SleepRemaining is derived from the armed end time.
func (a *App) SleepRemaining() (time.Duration, bool) {
	return a.session.SleepRemaining()
}

// sleepTick dereferences task only under the lock; it is assigned after the
// watcher goroutine starts.
func (a *App) sleepTick(ctx context.Context, task **schedule.Task) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed || a.sleepWatch != *task {
		return
	}
	t, ok := a.session.SleepTimer()
	if !ok {
		return
	}

	remaining := t.Remaining(a.config.now())
	a.emit(&events.SleepTimerTickEvent{
		BaseEvent:   events.NewBaseEvent(events.TypeSleepTimerTick),
		RemainingMs: remaining.Milliseconds(),
		EndEpochMs:  t.EndEpochMs,
	})
	if remaining > 0 {
		return
	}

	a.sleepWatch.Cancel()
	a.sleepWatch = nil
	a.session.ClearSleepTimer()
	a.emit(&events.SleepTimerExpiredEvent{
		BaseEvent: events.NewBaseEvent(events.TypeSleepTimerExpiry),
		Minutes:   t.Minutes,
	})

	if a.config.sleepAutoStop {
		a.logger.Info("sleep timer expired, stopping playback")
		a.stopPlaybackLocked(ctx)
	}
}

// SavePreset stores the current mix under name.
func (a *App) SavePreset(name string) (session.Preset, error) {
	if err := a.lock(); err != nil {
		return session.Preset{}, err
	}
	defer a.mu.Unlock()
	return a.session.SavePreset(name)
}

// LoadPreset makes the preset's mix current. Loaded volumes apply live; the
// voice and background apply on the next Play.
func (a *App) LoadPreset(ctx context.Context, id string) error {
	if err := a.lock(); err != nil {
		return err
	}
	defer a.mu.Unlock()

	p, ok := a.session.Preset(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPreset, id)
	}
	a.session.LoadPreset(p)
	a.syncPlayerLocked(ctx)
	return nil
}

func (a *App) DeletePreset(id string) error {
	if err := a.lock(); err != nil {
		return err
	}
	defer a.mu.Unlock()
	a.session.DeletePreset(id)
	return nil
}

func (a *App) Presets() []session.Preset {
	return a.session.Presets()
}

// Session returns a snapshot of the live session.
func (a *App) Session() session.State {
	return a.session.State()
}

// ResetSession stops playback and restores the default mix. Presets are kept.
func (a *App) ResetSession(ctx context.Context) error {
	if err := a.lock(); err != nil {
		return err
	}
	defer a.mu.Unlock()

	a.sleepWatch.Cancel()
	a.sleepWatch = nil
	a.stopPlaybackLocked(ctx)
	a.session.ResetSession()
	a.syncPlayerLocked(ctx)
	return nil
}

func (a *App) recordingStatusChanged(st recorder.Status) {
	a.emit(&events.RecordingStatusEvent{
		BaseEvent:   events.NewBaseEvent(events.TypeRecordingStatus),
		IsRecording: st.IsRecording,
		DurationMs:  st.Duration.Milliseconds(),
	})
}

func (a *App) playbackStateChanged(st player.State) {
	a.session.SetPlaying(st.IsPlaying)
	a.emit(&events.PlaybackStateEvent{
		BaseEvent:       events.NewBaseEvent(events.TypePlaybackState),
		IsPlaying:       st.IsPlaying,
		VoicePositionMs: st.Position.Milliseconds(),
		VoiceDurationMs: st.Duration.Milliseconds(),
		Error:           st.Err,
	})
}

// playbackComplete runs on the engine's poll goroutine. A completion that
// lost the race against a new Play or Resume is dropped.
func (a *App) playbackComplete(run uint64) {
	if err := a.lock(); err != nil {
		return
	}
	defer a.mu.Unlock()

	if !a.player.StopCompleted(context.Background(), run) {
		a.logger.Debug("ignoring superseded completion", slog.Uint64("run", run))
		return
	}
	a.emit(&events.PlaybackCompleteEvent{
		BaseEvent: events.NewBaseEvent(events.TypePlaybackComplete),
		VoiceURI:  a.session.VoiceURI(),
	})
}
