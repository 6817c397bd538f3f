// Package mic implements device.Input and device.Permissions on the default
// PortAudio input device.
package mic

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/codewandler/lullaby-go/device"
	"github.com/codewandler/lullaby-go/internal/pcm"
	"github.com/gordonklaus/portaudio"
	nanoid "github.com/matoous/go-nanoid/v2"
	"github.com/smallnest/ringbuffer"
)

const (
	framesPerBuffer = 1024
	chunkDuration   = 100 * time.Millisecond
	ringDuration    = 2 * time.Second
)

type Option func(*Mic)

func WithLogger(logger *slog.Logger) Option {
	return func(m *Mic) { m.logger = logger }
}

// Mic records 16-bit mono WAV files into dir.
type Mic struct {
	dir        string
	sampleRate int
	logger     *slog.Logger

	mu          sync.Mutex
	initialized bool
}

func New(dir string, sampleRate int, opts ...Option) *Mic {
	m := &Mic{
		dir:        dir,
		sampleRate: sampleRate,
		logger:     slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Mic) init() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.initialized {
		return nil
	}
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("portaudio init: %w", err)
	}
	m.initialized = true
	return nil
}

// Close terminates PortAudio.
func (m *Mic) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.initialized {
		return nil
	}
	m.initialized = false
	return portaudio.Terminate()
}

// RequestMicrophone grants access when a default input device exists. Desktop
// systems have no runtime prompt.
func (m *Mic) RequestMicrophone(context.Context) (bool, error) {
	if err := m.init(); err != nil {
		return false, err
	}
	dev, err := portaudio.DefaultInputDevice()
	if err != nil {
		m.logger.Warn("no input device", slog.Any("err", err))
		return false, nil
	}
	return dev.MaxInputChannels > 0, nil
}

func (m *Mic) StartCapture(context.Context) (device.Capture, error) {
	if err := m.init(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create recordings dir: %w", err)
	}

	id, err := nanoid.New()
	if err != nil {
		return nil, fmt.Errorf("recording id: %w", err)
	}
	raw, err := os.CreateTemp(m.dir, "rec-"+id+"-*.pcm")
	if err != nil {
		return nil, fmt.Errorf("create recording: %w", err)
	}

	// capture at the device's own rate; the take is resampled on Stop
	params, err := m.inputParameters()
	if err != nil {
		raw.Close()
		os.Remove(raw.Name())
		return nil, err
	}
	captureRate := int(params.SampleRate)

	c := &capture{
		captureRate: captureRate,
		sampleRate:  m.sampleRate,
		raw:         raw,
		wavPath:     filepath.Join(m.dir, "rec-"+id+".wav"),
		ring:        ringbuffer.New(pcm.ChunkSize(captureRate, ringDuration, pcm.BytesPerSample, 1)).SetBlocking(true),
		done:        make(chan error, 1),
		logger:      m.logger,
	}

	stream, err := portaudio.OpenStream(params, c.process)
	if err != nil {
		raw.Close()
		os.Remove(raw.Name())
		return nil, fmt.Errorf("%w: open mic: %w", device.ErrAudioFocusUnavailable, err)
	}
	c.stream = stream

	go c.drain()

	if err := stream.Start(); err != nil {
		stream.Close()
		c.ring.CloseWriter()
		<-c.done
		raw.Close()
		os.Remove(raw.Name())
		return nil, fmt.Errorf("%w: start mic: %w", device.ErrAudioFocusUnavailable, err)
	}
	c.recording.Store(true)

	m.logger.Debug("capture started", slog.String("file", c.wavPath), slog.Int("rate", captureRate))
	return c, nil
}

func (m *Mic) inputParameters() (portaudio.StreamParameters, error) {
	dev, err := portaudio.DefaultInputDevice()
	if err != nil {
		return portaudio.StreamParameters{}, fmt.Errorf("%w: no input device: %w", device.ErrAudioFocusUnavailable, err)
	}
	params := portaudio.LowLatencyParameters(dev, nil)
	params.Input.Channels = 1
	params.FramesPerBuffer = framesPerBuffer
	if params.SampleRate <= 0 {
		params.SampleRate = float64(m.sampleRate)
	}
	return params, nil
}

type capture struct {
	captureRate int
	sampleRate  int
	stream      *portaudio.Stream
	ring        *ringbuffer.RingBuffer
	raw         *os.File
	wavPath     string
	done        chan error
	logger      *slog.Logger

	recording atomic.Bool
	captured  atomic.Int64
	stopOnce  sync.Once
	uri       string
	stopErr   error
}

// process runs on the PortAudio thread and must not block.
func (c *capture) process(in []int16) {
	buf := make([]byte, len(in)*pcm.BytesPerSample)
	for i, v := range in {
		binary.LittleEndian.PutUint16(buf[i*pcm.BytesPerSample:], uint16(v))
	}
	n, err := c.ring.TryWrite(buf)
	c.captured.Add(int64(len(in)))
	if err != nil {
		c.logger.Warn("dropped microphone samples", slog.Int("bytes", len(buf)-n), slog.Any("err", err))
	}
}

// drain moves audio from the ring into the raw file in fixed chunks.
func (c *capture) drain() {
	r := pcm.NewAudioChunkReader(c.ring, c.captureRate, chunkDuration)
	buf := make([]byte, r.ChunkSize())
	for {
		n, err := r.Read(buf)
		if n > 0 {
			if _, werr := c.raw.Write(buf[:n]); werr != nil {
				c.done <- fmt.Errorf("write recording: %w", werr)
				return
			}
		}
		if errors.Is(err, io.EOF) {
			c.done <- nil
			return
		}
		if err != nil {
			c.done <- fmt.Errorf("read ring: %w", err)
			return
		}
	}
}

func (c *capture) Status(context.Context) (device.CaptureStatus, error) {
	frames := c.captured.Load()
	return device.CaptureStatus{
		IsRecording: c.recording.Load(),
		Duration:    time.Duration(frames) * time.Second / time.Duration(c.captureRate),
	}, nil
}

// Stop closes the stream, flushes the ring and encodes the WAV file.
func (c *capture) Stop(context.Context) (string, error) {
	c.stopOnce.Do(func() {
		c.uri, c.stopErr = c.finish()
	})
	return c.uri, c.stopErr
}

func (c *capture) finish() (string, error) {
	c.recording.Store(false)

	if err := c.stream.Stop(); err != nil {
		c.logger.Warn("failed to stop mic", slog.Any("err", err))
	}
	if err := c.stream.Close(); err != nil {
		c.logger.Warn("failed to close mic", slog.Any("err", err))
	}

	c.ring.CloseWriter()
	drainErr := <-c.done

	rawPath := c.raw.Name()
	defer os.Remove(rawPath)
	if err := c.raw.Close(); err != nil {
		return "", fmt.Errorf("close recording: %w", err)
	}
	if drainErr != nil {
		return "", drainErr
	}

	data, err := os.ReadFile(rawPath)
	if err != nil {
		return "", fmt.Errorf("read recording: %w", err)
	}

	f, err := os.Create(c.wavPath)
	if err != nil {
		return "", fmt.Errorf("create wav: %w", err)
	}
	if err := pcm.EncodeWAV(f, data, c.captureRate, c.sampleRate); err != nil {
		f.Close()
		os.Remove(c.wavPath)
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close wav: %w", err)
	}

	return "file://" + c.wavPath, nil
}
