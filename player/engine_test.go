package player

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/codewandler/lullaby-go/device"
	"github.com/codewandler/lullaby-go/focus"
	"github.com/codewandler/lullaby-go/internal/devicetest"
	"github.com/stretchr/testify/require"
)

const voiceURI = "file:///rec/take-1.wav"

var rain = device.Asset("rain.mp3")

type recorder struct {
	mu   sync.Mutex
	errs []error
	runs []uint64
}

func (r *recorder) onError(err error) {
	r.mu.Lock()
	r.errs = append(r.errs, err)
	r.mu.Unlock()
}

func (r *recorder) onComplete(run uint64) {
	r.mu.Lock()
	r.runs = append(r.runs, run)
	r.mu.Unlock()
}

func (r *recorder) errors() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.errs)
}

func (r *recorder) completions() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.runs)
}

func (r *recorder) lastRun() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.runs[len(r.runs)-1]
}

func newEngine(t *testing.T, cfg Config) (*Engine, *devicetest.Output, *focus.Arbiter, *recorder) {
	t.Helper()
	out := &devicetest.Output{}
	arb := focus.NewArbiter(nil)
	rec := &recorder{}
	cfg.OnError = rec.onError
	cfg.OnComplete = rec.onComplete
	e := New(out, arb, cfg, WithPollInterval(5*time.Millisecond))
	t.Cleanup(func() { e.Close(context.Background()) })
	return e, out, arb, rec
}

func mix() Config {
	return Config{
		VoiceURI:         voiceURI,
		Background:       rain,
		VoiceVolume:      0.8,
		BackgroundVolume: 0.3,
	}
}

func TestPlayTwiceUnloadsBeforeLoading(t *testing.T) {
	e, out, _, _ := newEngine(t, mix())
	ctx := context.Background()

	require.NoError(t, e.Play(ctx))
	require.NoError(t, e.Play(ctx))

	log := out.Log()
	second := slices.Index(log, "load asset:rain.mp3#4")
	require.Positive(t, second)
	require.Less(t, slices.Index(log, "unload #1"), slices.Index(log, "load file:"+voiceURI+"#3"))
	require.Less(t, slices.Index(log, "unload #2"), slices.Index(log, "load file:"+voiceURI+"#3"))

	loaded := out.Loaded()
	require.Len(t, loaded, 2)
	require.Equal(t, []int{3, 4}, []int{loaded[0].ID(), loaded[1].ID()})
}

func TestBackgroundAlwaysLoops(t *testing.T) {
	for _, loopVoice := range []bool{false, true} {
		cfg := mix()
		cfg.LoopVoice = loopVoice
		e, out, _, _ := newEngine(t, cfg)

		require.NoError(t, e.Play(context.Background()))

		streams := out.Streams()
		require.Len(t, streams, 2)
		require.Equal(t, loopVoice, streams[0].Opts.Loop)
		require.Equal(t, 0.8, streams[0].Opts.Volume)
		require.True(t, streams[1].Opts.Loop)
		require.Equal(t, 0.3, streams[1].Opts.Volume)
	}
}

func TestPlayWithNothingSelectedIsNoop(t *testing.T) {
	e, out, arb, rec := newEngine(t, Config{})

	require.NoError(t, e.Play(context.Background()))

	require.Empty(t, out.Streams())
	require.False(t, e.State().IsPlaying)
	require.Empty(t, rec.errors())
	_, held := arb.Holder()
	require.False(t, held)
}

func TestVoiceLoadFailureAbortsPlay(t *testing.T) {
	e, out, arb, rec := newEngine(t, mix())
	out.LoadErr = func(src device.Source) error {
		if src.Kind == device.SourceFile {
			return errors.New("no such file")
		}
		return nil
	}

	err := e.Play(context.Background())
	require.ErrorIs(t, err, device.ErrAssetLoad)
	require.Equal(t, device.KindAssetLoadFailure, device.KindOf(err))

	require.Empty(t, out.Streams(), "background must not be attempted")
	require.Len(t, rec.errors(), 1)
	st := e.State()
	require.False(t, st.IsPlaying)
	require.NotEmpty(t, st.Err)
	_, held := arb.Holder()
	require.False(t, held)
}

func TestVoiceFocusFailureIsSurfacedOnce(t *testing.T) {
	e, out, _, rec := newEngine(t, mix())
	out.LoadErr = func(src device.Source) error {
		if src.Kind == device.SourceFile {
			return device.ErrAudioFocusUnavailable
		}
		return nil
	}

	err := e.Play(context.Background())
	require.ErrorIs(t, err, device.ErrAudioFocusUnavailable)
	require.Len(t, rec.errors(), 1)
	require.ErrorIs(t, rec.errors()[0], device.ErrAudioFocusUnavailable)
	require.False(t, e.State().IsPlaying)
}

func TestBackgroundFailureIsSwallowed(t *testing.T) {
	e, out, _, rec := newEngine(t, mix())
	out.LoadErr = func(src device.Source) error {
		if src.Kind == device.SourceAsset {
			return device.ErrAudioFocusUnavailable
		}
		return nil
	}

	require.NoError(t, e.Play(context.Background()))

	require.Empty(t, rec.errors())
	require.True(t, e.State().IsPlaying)
	loaded := out.Loaded()
	require.Len(t, loaded, 1)
	require.Equal(t, device.File(voiceURI), loaded[0].Src)
}

func TestStopThenToggleStartsFreshPlay(t *testing.T) {
	e, out, _, _ := newEngine(t, mix())
	ctx := context.Background()

	require.NoError(t, e.Play(ctx))
	require.NoError(t, e.Stop(ctx))
	require.Equal(t, State{}, e.State())
	require.Empty(t, out.Loaded())

	require.NoError(t, e.TogglePlayPause(ctx))

	require.Len(t, out.Streams(), 4)
	require.Len(t, out.Loaded(), 2)
	require.True(t, e.State().IsPlaying)
}

func TestToggleRoutesPauseAndResume(t *testing.T) {
	e, out, _, _ := newEngine(t, mix())
	ctx := context.Background()

	require.NoError(t, e.TogglePlayPause(ctx))
	require.Len(t, out.Streams(), 2)

	require.NoError(t, e.TogglePlayPause(ctx))
	require.False(t, e.State().IsPlaying)
	for _, s := range out.Loaded() {
		require.False(t, s.IsPlaying())
	}

	require.NoError(t, e.TogglePlayPause(ctx))
	require.True(t, e.State().IsPlaying)
	require.Len(t, out.Streams(), 2, "resume must not reload")
	for _, s := range out.Loaded() {
		require.True(t, s.IsPlaying())
	}
}

func TestVolumeIsLiveAndClamped(t *testing.T) {
	e, out, _, _ := newEngine(t, mix())
	ctx := context.Background()

	e.SetVoiceVolume(ctx, 0.1)
	e.SetBackgroundVolume(ctx, -4)
	require.Empty(t, out.Streams())

	require.NoError(t, e.Play(ctx))
	streams := out.Streams()
	require.Equal(t, 0.1, streams[0].Opts.Volume)
	require.Equal(t, 0.0, streams[1].Opts.Volume)

	e.SetVoiceVolume(ctx, 1.7)
	e.SetBackgroundVolume(ctx, 0.5)
	require.Equal(t, 1.0, streams[0].Volume())
	require.Equal(t, 0.5, streams[1].Volume())
	require.Len(t, out.Streams(), 2, "volume changes must not restart playback")
}

func TestCompletionFiresOnce(t *testing.T) {
	e, out, _, rec := newEngine(t, mix())

	require.NoError(t, e.Play(context.Background()))
	voice := out.Streams()[0]
	voice.Advance(2*time.Second, 5*time.Second)

	require.Eventually(t, func() bool {
		return e.State().Position == 2*time.Second
	}, time.Second, 5*time.Millisecond)
	require.Equal(t, 5*time.Second, e.State().Duration)

	voice.Finish()
	require.Eventually(t, func() bool { return rec.completions() == 1 }, time.Second, 5*time.Millisecond)

	time.Sleep(50 * time.Millisecond)
	require.Equal(t, 1, rec.completions())
	require.False(t, e.State().IsPlaying)
}

func TestResumeAfterCompletionTracksAgain(t *testing.T) {
	e, out, _, rec := newEngine(t, mix())
	ctx := context.Background()

	require.NoError(t, e.Play(ctx))
	voice := out.Streams()[0]
	voice.Finish()
	require.Eventually(t, func() bool { return rec.completions() == 1 }, time.Second, 5*time.Millisecond)
	require.False(t, e.State().IsPlaying)

	require.NoError(t, e.TogglePlayPause(ctx))
	require.True(t, e.State().IsPlaying)
	require.True(t, voice.IsPlaying())
	require.Len(t, out.Streams(), 2, "resume must not reload")

	voice.Advance(1500*time.Millisecond, 5*time.Second)
	require.Eventually(t, func() bool {
		return e.State().Position == 1500*time.Millisecond
	}, time.Second, 5*time.Millisecond)
	require.Equal(t, 5*time.Second, e.State().Duration)

	voice.Finish()
	require.Eventually(t, func() bool { return rec.completions() == 2 }, time.Second, 5*time.Millisecond)
	require.False(t, e.State().IsPlaying)
}

func TestStopCompletedIgnoresSupersededRun(t *testing.T) {
	e, out, _, rec := newEngine(t, mix())
	ctx := context.Background()

	require.NoError(t, e.Play(ctx))
	out.Streams()[0].Finish()
	require.Eventually(t, func() bool { return rec.completions() == 1 }, time.Second, 5*time.Millisecond)
	stale := rec.lastRun()

	require.NoError(t, e.Play(ctx))
	require.False(t, e.StopCompleted(ctx, stale))
	require.Len(t, out.Loaded(), 2)
	require.True(t, e.State().IsPlaying)

	out.Loaded()[0].Finish()
	require.Eventually(t, func() bool { return rec.completions() == 2 }, time.Second, 5*time.Millisecond)
	require.NotEqual(t, stale, rec.lastRun())
	require.True(t, e.StopCompleted(ctx, rec.lastRun()))
	require.Empty(t, out.Loaded())
	require.Equal(t, State{}, e.State())
}

func TestLoopingVoiceNeverCompletes(t *testing.T) {
	cfg := mix()
	cfg.LoopVoice = true
	e, out, _, rec := newEngine(t, cfg)

	require.NoError(t, e.Play(context.Background()))
	out.Streams()[0].Finish()

	time.Sleep(50 * time.Millisecond)
	require.Zero(t, rec.completions())
}

func TestResumeFocusFailureIsSurfaced(t *testing.T) {
	e, out, _, rec := newEngine(t, mix())
	ctx := context.Background()

	require.NoError(t, e.Play(ctx))
	require.NoError(t, e.Pause(ctx))
	out.Streams()[0].FailPlay(device.ErrAudioFocusUnavailable)

	err := e.Resume(ctx)
	require.ErrorIs(t, err, device.ErrAudioFocusUnavailable)
	require.Len(t, rec.errors(), 1)
	require.False(t, e.State().IsPlaying)
	require.Empty(t, out.Loaded())
}

func TestPreviewRevokesPlayback(t *testing.T) {
	e, out, arb, _ := newEngine(t, mix())
	ctx := context.Background()

	require.NoError(t, e.Play(ctx))

	lease, err := arb.Acquire(ctx, focus.OwnerPreview, nil)
	require.NoError(t, err)
	defer lease.Release()

	require.Empty(t, out.Loaded())
	require.Equal(t, State{}, e.State())
	require.False(t, e.Loaded())
}

func TestPlayFailsWhileRecording(t *testing.T) {
	e, out, arb, rec := newEngine(t, mix())
	ctx := context.Background()

	lease, err := arb.Acquire(ctx, focus.OwnerRecorder, nil)
	require.NoError(t, err)
	defer lease.Release()

	err = e.Play(ctx)
	require.ErrorIs(t, err, device.ErrAudioFocusUnavailable)
	require.Len(t, rec.errors(), 1)
	require.Empty(t, out.Streams())
}

func TestBackgroundOnlyFocusDenialNamesBackground(t *testing.T) {
	e, out, arb, rec := newEngine(t, Config{Background: rain})
	ctx := context.Background()

	lease, err := arb.Acquire(ctx, focus.OwnerRecorder, nil)
	require.NoError(t, err)
	defer lease.Release()

	err = e.Play(ctx)
	require.ErrorIs(t, err, device.ErrAudioFocusUnavailable)
	require.True(t, strings.HasPrefix(err.Error(), "background: "), err.Error())
	require.Len(t, rec.errors(), 1)
	require.Empty(t, out.Streams())
}

func TestCloseReleasesEverything(t *testing.T) {
	e, out, arb, _ := newEngine(t, mix())
	ctx := context.Background()

	require.NoError(t, e.Play(ctx))
	e.Close(ctx)

	require.Empty(t, out.Loaded())
	_, held := arb.Holder()
	require.False(t, held)
}
