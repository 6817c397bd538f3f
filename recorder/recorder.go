// Package recorder owns the microphone capture lifecycle.
package recorder

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/codewandler/lullaby-go/device"
	"github.com/codewandler/lullaby-go/focus"
	"github.com/codewandler/lullaby-go/internal/schedule"
)

const DefaultPollInterval = 100 * time.Millisecond

// Status is reset to the zero value whenever a recording starts or ends.
type Status struct {
	IsRecording bool
	Duration    time.Duration
}

type Config struct {
	Input       device.Input
	Output      device.Output
	Permissions device.Permissions
	Files       device.Files
	Focus       *focus.Arbiter

	Logger       *slog.Logger
	PollInterval time.Duration
	OnStatus     func(Status)
}

// Manager runs at most one capture at a time. States: idle, recording.
type Manager struct {
	cfg Config

	mu      sync.Mutex
	granted bool
	capture device.Capture
	lease   *focus.Lease
	poll    *schedule.Task
	gen     uint64
	status  Status
	pending []func()
}

func New(cfg Config) *Manager {
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.Focus == nil {
		cfg.Focus = focus.NewArbiter(cfg.Logger)
	}
	return &Manager{cfg: cfg}
}

// RequestPermission asks for microphone access. A grant is remembered for the
// lifetime of the manager; a denial is asked again on the next call.
func (m *Manager) RequestPermission(ctx context.Context) (bool, error) {
	m.mu.Lock()
	defer m.unlock()
	return m.requestLocked(ctx)
}

func (m *Manager) requestLocked(ctx context.Context) (bool, error) {
	if m.granted {
		return true, nil
	}

	granted, err := m.cfg.Permissions.RequestMicrophone(ctx)
	if err != nil {
		return false, fmt.Errorf("request microphone: %w", err)
	}
	m.granted = granted
	m.cfg.Logger.Debug("microphone permission", slog.Bool("granted", granted))
	return granted, nil
}

// Start begins a new capture. Without a grant the permission is requested once;
// a refusal returns device.ErrPermissionDenied. A capture left over from an
// aborted session is stopped and its file discarded first.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.unlock()

	granted, err := m.requestLocked(ctx)
	if err != nil {
		return err
	}
	if !granted {
		return device.ErrPermissionDenied
	}

	if m.capture != nil {
		m.cfg.Logger.Warn("discarding stale recording")
		if uri := m.stopLocked(ctx); uri != "" {
			m.deleteAsset(ctx, uri)
		}
	}

	m.gen++
	gen := m.gen
	lease, err := m.cfg.Focus.Acquire(ctx, focus.OwnerRecorder, func(ctx context.Context) {
		m.revoked(ctx, gen)
	})
	if err != nil {
		return err
	}

	if err := m.cfg.Output.SetMode(ctx, device.RecordingMode); err != nil {
		lease.Release()
		return fmt.Errorf("set recording mode: %w", err)
	}

	capture, err := m.cfg.Input.StartCapture(ctx)
	if err != nil {
		m.restoreMode(ctx)
		lease.Release()
		return fmt.Errorf("start capture: %w", err)
	}

	m.capture = capture
	m.lease = lease
	m.setStatusLocked(Status{IsRecording: true})
	m.poll = schedule.Every(context.WithoutCancel(ctx), m.cfg.PollInterval, func(ctx context.Context) {
		m.sample(ctx, gen)
	})

	m.cfg.Logger.Info("recording started")
	return nil
}

// Stop finalises the capture and returns the uri of the recorded asset, or ""
// when nothing was recording.
func (m *Manager) Stop(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.unlock()

	if m.capture == nil {
		return "", nil
	}
	uri, err := m.finishLocked(ctx)
	if err != nil {
		return "", err
	}
	m.cfg.Logger.Info("recording stopped", slog.String("uri", uri))
	return uri, nil
}

// DeleteAsset removes a recorded file if it is still there. Failures are
// logged and never returned.
func (m *Manager) DeleteAsset(ctx context.Context, uri string) {
	m.deleteAsset(ctx, uri)
}

func (m *Manager) deleteAsset(ctx context.Context, uri string) {
	if uri == "" || m.cfg.Files == nil {
		return
	}
	info, err := m.cfg.Files.Stat(ctx, uri)
	if err != nil {
		m.cfg.Logger.Warn("failed to inspect recording", slog.String("uri", uri),
			slog.Any("err", fmt.Errorf("%w: %w", device.ErrStorageCleanup, err)))
		return
	}
	if !info.Exists {
		return
	}
	if err := m.cfg.Files.Remove(ctx, uri); err != nil {
		m.cfg.Logger.Warn("failed to delete recording", slog.String("uri", uri),
			slog.Any("err", fmt.Errorf("%w: %w", device.ErrStorageCleanup, err)))
		return
	}
	m.cfg.Logger.Debug("recording deleted", slog.String("uri", uri))
}

func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Close force-stops an in-flight capture and discards what it wrote, so the
// microphone is never left claimed.
func (m *Manager) Close(ctx context.Context) {
	m.mu.Lock()
	defer m.unlock()

	if m.capture == nil {
		return
	}
	m.cfg.Logger.Info("force-stopping recording")
	if uri := m.stopLocked(ctx); uri != "" {
		m.deleteAsset(ctx, uri)
	}
}

// stopLocked finishes the capture, logging instead of returning failures.
func (m *Manager) stopLocked(ctx context.Context) string {
	uri, err := m.finishLocked(ctx)
	if err != nil {
		m.cfg.Logger.Error("failed to stop recording", slog.Any("err", err))
	}
	return uri
}

// finishLocked releases everything a capture holds. The hardware is always
// handed back, even when finalising the file fails.
func (m *Manager) finishLocked(ctx context.Context) (string, error) {
	m.poll.Cancel()
	m.poll = nil

	capture := m.capture
	m.capture = nil
	m.gen++

	uri, err := capture.Stop(ctx)

	m.restoreMode(ctx)
	m.lease.Release()
	m.lease = nil
	m.setStatusLocked(Status{})

	if err != nil {
		return "", fmt.Errorf("stop capture: %w", err)
	}
	return uri, nil
}

func (m *Manager) restoreMode(ctx context.Context) {
	if err := m.cfg.Output.SetMode(ctx, device.PlaybackMode); err != nil {
		m.cfg.Logger.Error("failed to restore playback mode", slog.Any("err", err))
	}
}

// revoked runs when another owner takes the hardware from this capture.
func (m *Manager) revoked(ctx context.Context, gen uint64) {
	m.mu.Lock()
	defer m.unlock()

	if m.gen != gen || m.capture == nil {
		return
	}
	m.lease = nil
	if uri := m.stopLocked(ctx); uri != "" {
		m.deleteAsset(ctx, uri)
	}
}

func (m *Manager) sample(ctx context.Context, gen uint64) {
	m.mu.Lock()
	if m.gen != gen || m.capture == nil {
		m.mu.Unlock()
		return
	}
	capture := m.capture
	m.mu.Unlock()

	st, err := capture.Status(ctx)
	if err != nil {
		m.cfg.Logger.Debug("failed to sample recording", slog.Any("err", err))
		return
	}

	m.mu.Lock()
	defer m.unlock()
	if m.gen != gen {
		return
	}
	m.setStatusLocked(Status{IsRecording: st.IsRecording, Duration: st.Duration})
}

func (m *Manager) setStatusLocked(st Status) {
	m.status = st
	if f := m.cfg.OnStatus; f != nil {
		m.pending = append(m.pending, func() { f(st) })
	}
}

// unlock releases the lock and then runs queued callbacks.
func (m *Manager) unlock() {
	pending := m.pending
	m.pending = nil
	m.mu.Unlock()
	for _, f := range pending {
		f()
	}
}
