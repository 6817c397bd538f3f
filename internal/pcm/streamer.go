package pcm

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/faiface/beep"
	"github.com/faiface/beep/wav"
)

// Streamer plays mono PCM samples as a beep stream, duplicating the channel to
// stereo.
type Streamer struct {
	data []int16
	pos  int
}

func NewStreamer(b []byte) *Streamer {
	samples := make([]int16, len(b)/BytesPerSample)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(b[i*BytesPerSample:]))
	}
	return &Streamer{data: samples}
}

func (s *Streamer) Stream(samples [][2]float64) (n int, ok bool) {
	if s.pos >= len(s.data) {
		return 0, false
	}
	for i := range samples {
		if s.pos >= len(s.data) {
			return i, true
		}
		val := float64(s.data[s.pos]) / 32768.0
		samples[i][0] = val
		samples[i][1] = val
		s.pos++
	}
	return len(samples), true
}

func (s *Streamer) Err() error { return nil }

// Resample converts PCM from one sample rate to another.
func Resample(pcm []byte, fromRate, toRate int) ([]byte, error) {
	if fromRate == toRate {
		return pcm, nil
	}
	resampler := beep.Resample(3, beep.SampleRate(fromRate), beep.SampleRate(toRate), NewStreamer(pcm))

	buf := new(bytes.Buffer)
	samples := make([][2]float64, 1024)
	out := make([]byte, BytesPerSample)
	for {
		n, ok := resampler.Stream(samples)
		for i := 0; i < n; i++ {
			mono := clamp((samples[i][0] + samples[i][1]) / 2.0)
			binary.LittleEndian.PutUint16(out, uint16(int16(mono*32767)))
			buf.Write(out)
		}
		if !ok {
			break
		}
	}
	if err := resampler.Err(); err != nil {
		return nil, fmt.Errorf("resample: %w", err)
	}
	return buf.Bytes(), nil
}

// Format describes mono 16-bit audio at sampleRate.
func Format(sampleRate int) beep.Format {
	return beep.Format{
		SampleRate:  beep.SampleRate(sampleRate),
		NumChannels: 1,
		Precision:   BytesPerSample,
	}
}

// EncodeWAV writes pcm captured at fromRate as a WAV file at toRate.
func EncodeWAV(w io.WriteSeeker, pcm []byte, fromRate, toRate int) error {
	pcm, err := Resample(pcm, fromRate, toRate)
	if err != nil {
		return err
	}
	if err := wav.Encode(w, NewStreamer(pcm), Format(toRate)); err != nil {
		return fmt.Errorf("encode wav: %w", err)
	}
	return nil
}

func clamp(f float64) float64 {
	switch {
	case f > 1:
		return 1
	case f < -1:
		return -1
	default:
		return f
	}
}
