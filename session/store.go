// Package session holds the current mix parameters and the saved presets.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/codewandler/lullaby-go/device"
	nanoid "github.com/matoous/go-nanoid/v2"
)

const (
	// StorageKey is the key the persisted subset is written under.
	StorageKey = "lullaby-session"

	DefaultVoiceVolume      = 0.8
	DefaultBackgroundVolume = 0.3
)

// SleepTimerOptions are the durations offered by the sleep timer, in minutes.
var SleepTimerOptions = []int{15, 30, 45, 60, 90}

var ErrEmptyPresetName = errors.New("preset name is empty")

// Storage persists the session subset that survives restarts.
type Storage interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, value []byte) error
}

// Mix is the voice/background combination with its two volumes. Empty
// VoiceURI or BackgroundSoundID means the track is absent.
type Mix struct {
	VoiceURI          string  `json:"voiceUri,omitempty"`
	BackgroundSoundID string  `json:"backgroundSound,omitempty"`
	VoiceVolume       float64 `json:"voiceVolume"`
	BackgroundVolume  float64 `json:"backgroundVolume"`
}

// Preset is an immutable named snapshot of a Mix.
type Preset struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Mix
	CreatedAt int64 `json:"createdAt"`
}

type SleepTimer struct {
	Minutes    int   `json:"minutes"`
	EndEpochMs int64 `json:"endEpochMs"`
}

// Remaining derives the time left at now; it never goes below zero.
func (t SleepTimer) Remaining(now time.Time) time.Duration {
	ms := t.EndEpochMs - now.UnixMilli()
	if ms < 0 {
		ms = 0
	}
	return time.Duration(ms) * time.Millisecond
}

// State is a copy of everything the store holds.
type State struct {
	Mix
	IsPlaying  bool
	SleepTimer *SleepTimer
	Presets    []Preset
}

type persisted struct {
	Presets          []Preset `json:"presets"`
	VoiceVolume      float64  `json:"voiceVolume"`
	BackgroundVolume float64  `json:"backgroundVolume"`
}

// Store is the single source of truth for the live session.
type Store struct {
	saveMu  sync.Mutex // orders writes to storage
	mu      sync.RWMutex
	mix     Mix
	playing bool
	timer   *SleepTimer
	presets []Preset

	storage  Storage
	now      func() time.Time
	newID    func() (string, error)
	logger   *slog.Logger
	onChange func(State)
}

type Option func(*Store)

func WithStorage(s Storage) Option {
	return func(st *Store) { st.storage = s }
}

func WithClock(now func() time.Time) Option {
	return func(st *Store) { st.now = now }
}

func WithLogger(logger *slog.Logger) Option {
	return func(st *Store) { st.logger = logger }
}

func WithIDFunc(f func() (string, error)) Option {
	return func(st *Store) { st.newID = f }
}

// OnChange registers a callback invoked after every mutation, outside the lock.
func OnChange(f func(State)) Option {
	return func(st *Store) { st.onChange = f }
}

func New(opts ...Option) *Store {
	s := &Store{
		mix: Mix{
			VoiceVolume:      DefaultVoiceVolume,
			BackgroundVolume: DefaultBackgroundVolume,
		},
		now:    time.Now,
		newID:  func() (string, error) { return nanoid.New() },
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load restores the persisted subset. Voice, background, playing flag and
// timer always start from defaults.
func (s *Store) Load(ctx context.Context) error {
	if s.storage == nil {
		return nil
	}
	data, ok, err := s.storage.Get(ctx, StorageKey)
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	if !ok {
		return nil
	}

	var p persisted
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("decode session: %w", err)
	}

	s.mu.Lock()
	s.presets = p.Presets
	s.mix.VoiceVolume = device.ClampVolume(p.VoiceVolume)
	s.mix.BackgroundVolume = device.ClampVolume(p.BackgroundVolume)
	s.mu.Unlock()

	s.logger.Debug("session restored", slog.Int("presets", len(p.Presets)))
	return nil
}

func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stateLocked()
}

func (s *Store) stateLocked() State {
	st := State{
		Mix:       s.mix,
		IsPlaying: s.playing,
		Presets:   slices.Clone(s.presets),
	}
	if s.timer != nil {
		t := *s.timer
		st.SleepTimer = &t
	}
	return st
}

func (s *Store) Mix() Mix {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mix
}

func (s *Store) VoiceURI() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mix.VoiceURI
}

func (s *Store) BackgroundSoundID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mix.BackgroundSoundID
}

func (s *Store) VoiceVolume() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mix.VoiceVolume
}

func (s *Store) BackgroundVolume() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mix.BackgroundVolume
}

func (s *Store) IsPlaying() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.playing
}

func (s *Store) Presets() []Preset {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.presets)
}

// Preset finds a preset by id.
func (s *Store) Preset(id string) (Preset, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := slices.IndexFunc(s.presets, func(p Preset) bool { return p.ID == id })
	if i < 0 {
		return Preset{}, false
	}
	return s.presets[i], true
}

func (s *Store) SetVoiceURI(uri string) {
	s.update(false, func() { s.mix.VoiceURI = uri })
}

func (s *Store) SetBackgroundSound(id string) {
	s.update(false, func() { s.mix.BackgroundSoundID = id })
}

// SetVoiceVolume stores v clamped to [0,1].
func (s *Store) SetVoiceVolume(v float64) {
	s.update(true, func() { s.mix.VoiceVolume = device.ClampVolume(v) })
}

// SetBackgroundVolume stores v clamped to [0,1].
func (s *Store) SetBackgroundVolume(v float64) {
	s.update(true, func() { s.mix.BackgroundVolume = device.ClampVolume(v) })
}

func (s *Store) SetPlaying(playing bool) {
	s.update(false, func() { s.playing = playing })
}

// SetSleepTimer arms the timer to end minutes from now. minutes <= 0 clears it.
func (s *Store) SetSleepTimer(minutes int) SleepTimer {
	if minutes <= 0 {
		s.ClearSleepTimer()
		return SleepTimer{}
	}
	t := SleepTimer{
		Minutes:    minutes,
		EndEpochMs: s.now().UnixMilli() + int64(minutes)*60_000,
	}
	s.update(false, func() { s.timer = &t })
	return t
}

func (s *Store) ClearSleepTimer() {
	s.update(false, func() { s.timer = nil })
}

// SleepTimer returns the armed timer, if any.
func (s *Store) SleepTimer() (SleepTimer, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.timer == nil {
		return SleepTimer{}, false
	}
	return *s.timer, true
}

// SleepRemaining derives the remaining time from the armed end time.
func (s *Store) SleepRemaining() (time.Duration, bool) {
	t, ok := s.SleepTimer()
	if !ok {
		return 0, false
	}
	return t.Remaining(s.now()), true
}

// SavePreset snapshots the current mix under name and appends it. Callers are
// expected to validate the name; an empty one leaves the store untouched.
func (s *Store) SavePreset(name string) (Preset, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Preset{}, ErrEmptyPresetName
	}
	id, err := s.newID()
	if err != nil {
		return Preset{}, fmt.Errorf("preset id: %w", err)
	}

	var p Preset
	s.update(true, func() {
		p = Preset{
			ID:        id,
			Name:      name,
			Mix:       s.mix,
			CreatedAt: s.now().UnixMilli(),
		}
		s.presets = append(s.presets, p)
	})
	return p, nil
}

// LoadPreset copies the preset's mix into the live session. The playing flag,
// timer and preset list are left alone.
func (s *Store) LoadPreset(p Preset) {
	s.update(true, func() {
		s.mix = Mix{
			VoiceURI:          p.VoiceURI,
			BackgroundSoundID: p.BackgroundSoundID,
			VoiceVolume:       device.ClampVolume(p.VoiceVolume),
			BackgroundVolume:  device.ClampVolume(p.BackgroundVolume),
		}
	})
}

// DeletePreset removes the preset with id; unknown ids are ignored.
func (s *Store) DeletePreset(id string) {
	s.update(true, func() {
		s.presets = slices.DeleteFunc(s.presets, func(p Preset) bool { return p.ID == id })
	})
}

// ResetSession restores the live mix to defaults. Presets are kept.
func (s *Store) ResetSession() {
	s.update(true, func() {
		s.mix = Mix{
			VoiceVolume:      DefaultVoiceVolume,
			BackgroundVolume: DefaultBackgroundVolume,
		}
		s.playing = false
		s.timer = nil
	})
}

func (s *Store) update(persist bool, f func()) {
	if persist {
		s.saveMu.Lock()
		defer s.saveMu.Unlock()
	}

	s.mu.Lock()
	f()
	st := s.stateLocked()
	var data []byte
	if persist && s.storage != nil {
		var err error
		data, err = json.Marshal(persisted{
			Presets:          s.presets,
			VoiceVolume:      s.mix.VoiceVolume,
			BackgroundVolume: s.mix.BackgroundVolume,
		})
		if err != nil {
			s.logger.Error("failed to encode session", slog.Any("err", err))
			data = nil
		}
	}
	s.mu.Unlock()

	if data != nil {
		if err := s.storage.Put(context.Background(), StorageKey, data); err != nil {
			s.logger.Error("failed to persist session", slog.Any("err", err))
		}
	}
	if s.onChange != nil {
		s.onChange(st)
	}
}
