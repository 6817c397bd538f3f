// Package devicetest provides in-memory device collaborators that record the
// calls made on them.
package devicetest

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/codewandler/lullaby-go/device"
)

// Output is a fake speaker. Every call is appended to a shared log such as
// "load file:a.wav#1" or "unload #1".
type Output struct {
	mu      sync.Mutex
	log     []string
	modes   []device.Mode
	streams []*Stream

	// LoadErr, when set, decides the error returned by Load for src.
	LoadErr func(src device.Source) error
}

func (o *Output) Load(_ context.Context, src device.Source, opts device.LoadOptions) (device.Stream, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.LoadErr != nil {
		if err := o.LoadErr(src); err != nil {
			o.log = append(o.log, fmt.Sprintf("load-failed %s", src))
			return nil, err
		}
	}

	s := &Stream{
		out:     o,
		id:      len(o.streams) + 1,
		Src:     src,
		Opts:    opts,
		volume:  opts.Volume,
		loaded:  true,
		playing: opts.StartPlaying,
	}
	o.streams = append(o.streams, s)
	o.log = append(o.log, fmt.Sprintf("load %s#%d", src, s.id))
	return s, nil
}

func (o *Output) SetMode(_ context.Context, mode device.Mode) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.modes = append(o.modes, mode)
	return nil
}

func (o *Output) record(entry string) {
	o.mu.Lock()
	o.log = append(o.log, entry)
	o.mu.Unlock()
}

// Log returns a copy of the call log.
func (o *Output) Log() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return slices.Clone(o.log)
}

func (o *Output) Modes() []device.Mode {
	o.mu.Lock()
	defer o.mu.Unlock()
	return slices.Clone(o.modes)
}

// Streams returns every stream ever loaded, in load order.
func (o *Output) Streams() []*Stream {
	o.mu.Lock()
	defer o.mu.Unlock()
	return slices.Clone(o.streams)
}

// Loaded returns the streams that have not been unloaded.
func (o *Output) Loaded() []*Stream {
	o.mu.Lock()
	streams := slices.Clone(o.streams)
	o.mu.Unlock()

	var loaded []*Stream
	for _, s := range streams {
		if s.IsLoaded() {
			loaded = append(loaded, s)
		}
	}
	return loaded
}

// Stream is a fake loaded sound.
type Stream struct {
	out  *Output
	id   int
	Src  device.Source
	Opts device.LoadOptions

	mu       sync.Mutex
	volume   float64
	loaded   bool
	playing  bool
	position time.Duration
	duration time.Duration
	finished bool
	playErr  error
}

func (s *Stream) Play(context.Context) error {
	s.mu.Lock()
	err := s.playErr
	if err == nil {
		s.playing = true
		// a finished stream restarts from the top
		if s.finished {
			s.finished = false
			s.position = 0
		}
	}
	s.mu.Unlock()
	s.out.record(fmt.Sprintf("play #%d", s.id))
	return err
}

func (s *Stream) Pause(context.Context) error {
	s.mu.Lock()
	s.playing = false
	s.mu.Unlock()
	s.out.record(fmt.Sprintf("pause #%d", s.id))
	return nil
}

func (s *Stream) Stop(context.Context) error {
	s.mu.Lock()
	s.playing = false
	s.mu.Unlock()
	s.out.record(fmt.Sprintf("stop #%d", s.id))
	return nil
}

func (s *Stream) Unload(context.Context) error {
	s.mu.Lock()
	s.playing = false
	s.loaded = false
	s.mu.Unlock()
	s.out.record(fmt.Sprintf("unload #%d", s.id))
	return nil
}

func (s *Stream) SetVolume(_ context.Context, v float64) error {
	s.mu.Lock()
	s.volume = v
	s.mu.Unlock()
	return nil
}

func (s *Stream) Status(context.Context) (device.Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return device.Status{
		Position:  s.position,
		Duration:  s.duration,
		IsLoaded:  s.loaded,
		DidFinish: s.finished,
	}, nil
}

func (s *Stream) ID() int { return s.id }

func (s *Stream) Volume() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.volume
}

func (s *Stream) IsLoaded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loaded
}

func (s *Stream) IsPlaying() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playing
}

// Advance sets the reported position and duration.
func (s *Stream) Advance(position, duration time.Duration) {
	s.mu.Lock()
	s.position = position
	s.duration = duration
	s.mu.Unlock()
}

// Finish marks the stream as played through.
func (s *Stream) Finish() {
	s.mu.Lock()
	s.position = s.duration
	s.finished = true
	s.playing = false
	s.mu.Unlock()
}

// FailPlay makes subsequent Play calls return err.
func (s *Stream) FailPlay(err error) {
	s.mu.Lock()
	s.playErr = err
	s.mu.Unlock()
}

// Permissions answers microphone requests from a queue; the last answer repeats.
type Permissions struct {
	mu      sync.Mutex
	answers []bool
	calls   int
}

func NewPermissions(answers ...bool) *Permissions {
	return &Permissions{answers: answers}
}

func (p *Permissions) RequestMicrophone(context.Context) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if len(p.answers) == 0 {
		return false, nil
	}
	answer := p.answers[0]
	if len(p.answers) > 1 {
		p.answers = p.answers[1:]
	}
	return answer, nil
}

func (p *Permissions) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// Files is an in-memory file store.
type Files struct {
	mu        sync.Mutex
	files     map[string]bool
	RemoveErr error
}

func NewFiles() *Files {
	return &Files{files: map[string]bool{}}
}

func (f *Files) Stat(_ context.Context, uri string) (device.FileInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return device.FileInfo{Exists: f.files[uri]}, nil
}

func (f *Files) Remove(_ context.Context, uri string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.RemoveErr != nil {
		return f.RemoveErr
	}
	delete(f.files, uri)
	return nil
}

func (f *Files) Add(uri string) {
	f.mu.Lock()
	f.files[uri] = true
	f.mu.Unlock()
}

func (f *Files) Exists(uri string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.files[uri]
}

// Input hands out captures that write "file:///rec/take-N.wav" into Files.
type Input struct {
	Files    *Files
	StartErr error

	mu       sync.Mutex
	captures []*Capture
}

func (in *Input) StartCapture(context.Context) (device.Capture, error) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.StartErr != nil {
		return nil, in.StartErr
	}
	c := &Capture{
		files:     in.Files,
		uri:       fmt.Sprintf("file:///rec/take-%d.wav", len(in.captures)+1),
		recording: true,
	}
	in.captures = append(in.captures, c)
	return c, nil
}

// Last returns the most recent capture, or nil.
func (in *Input) Last() *Capture {
	in.mu.Lock()
	defer in.mu.Unlock()
	if len(in.captures) == 0 {
		return nil
	}
	return in.captures[len(in.captures)-1]
}

type Capture struct {
	files *Files
	uri   string

	mu        sync.Mutex
	recording bool
	elapsed   time.Duration
}

func (c *Capture) Status(context.Context) (device.CaptureStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return device.CaptureStatus{IsRecording: c.recording, Duration: c.elapsed}, nil
}

func (c *Capture) Stop(context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.recording {
		return "", nil
	}
	c.recording = false
	if c.files != nil {
		c.files.Add(c.uri)
	}
	return c.uri, nil
}

// Elapse sets the captured duration.
func (c *Capture) Elapse(d time.Duration) {
	c.mu.Lock()
	c.elapsed = d
	c.mu.Unlock()
}

func (c *Capture) URI() string { return c.uri }

func (c *Capture) IsRecording() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.recording
}
