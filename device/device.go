// Package device describes the hardware and platform collaborators the
// lullaby core talks to: the audio output, the microphone, the permission
// prompt and the local file store.
package device

import (
	"context"
	"math"
	"time"
)

type SourceKind string

const (
	SourceAsset SourceKind = "asset" // bundled with the application
	SourceURL   SourceKind = "url"   // fetched over HTTP
	SourceFile  SourceKind = "file"  // local recording
)

// Source references something loadable. Exactly one variant is set at a time.
type Source struct {
	Kind SourceKind `json:"kind"`
	Ref  string     `json:"ref"`
}

func Asset(name string) Source { return Source{Kind: SourceAsset, Ref: name} }

func URL(u string) Source { return Source{Kind: SourceURL, Ref: u} }

func File(uri string) Source { return Source{Kind: SourceFile, Ref: uri} }

func (s Source) IsZero() bool { return s.Ref == "" }

func (s Source) String() string {
	if s.IsZero() {
		return "<none>"
	}
	return string(s.Kind) + ":" + s.Ref
}

// LoadOptions control how a stream starts out.
type LoadOptions struct {
	Volume       float64
	Loop         bool
	StartPlaying bool
}

// Status is a snapshot of a loaded stream.
type Status struct {
	Position  time.Duration
	Duration  time.Duration
	IsLoaded  bool
	DidFinish bool
}

// Stream is a single loaded sound on the output device.
type Stream interface {
	Play(ctx context.Context) error
	Pause(ctx context.Context) error
	Stop(ctx context.Context) error
	Unload(ctx context.Context) error
	SetVolume(ctx context.Context, v float64) error
	Status(ctx context.Context) (Status, error)
}

// Mode is the platform audio-session mode.
type Mode struct {
	RecordingEnabled    bool
	AudibleInSilentMode bool
	BackgroundPlayback  bool
}

var (
	// RecordingMode is applied before capturing.
	RecordingMode = Mode{RecordingEnabled: true, AudibleInSilentMode: true}
	// PlaybackMode is restored after capturing.
	PlaybackMode = Mode{AudibleInSilentMode: true, BackgroundPlayback: true}
)

// Output loads streams onto the speaker.
type Output interface {
	Load(ctx context.Context, src Source, opts LoadOptions) (Stream, error)
	SetMode(ctx context.Context, mode Mode) error
}

// CaptureStatus is sampled while a capture is running.
type CaptureStatus struct {
	IsRecording bool
	Duration    time.Duration
}

// Capture is an in-flight microphone recording.
type Capture interface {
	Status(ctx context.Context) (CaptureStatus, error)
	// Stop finalises the recording and returns the uri of the written asset.
	Stop(ctx context.Context) (string, error)
}

// Input opens microphone captures.
type Input interface {
	StartCapture(ctx context.Context) (Capture, error)
}

// Permissions prompts for microphone access.
type Permissions interface {
	RequestMicrophone(ctx context.Context) (bool, error)
}

type FileInfo struct {
	Exists bool
}

// Files is the local file store recordings are written to.
type Files interface {
	Stat(ctx context.Context, uri string) (FileInfo, error)
	Remove(ctx context.Context, uri string) error
}

// ClampVolume limits v to [0,1].
func ClampVolume(v float64) float64 {
	switch {
	case v > 1:
		return 1
	case v < 0 || math.IsNaN(v):
		return 0
	default:
		return v
	}
}
