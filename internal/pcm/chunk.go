// Package pcm handles 16-bit little-endian mono PCM: fixed-size chunking,
// a beep streamer over raw samples, resampling and WAV encoding.
package pcm

import (
	"fmt"
	"io"
	"time"
)

const BytesPerSample = 2

// ChunkSize is the byte size of d worth of audio.
func ChunkSize(sampleRate int, d time.Duration, bytesPerSample int, channels int) int {
	frames := int(float64(sampleRate) * d.Seconds())
	return frames * bytesPerSample * channels
}

// ChunkReader hands out reads of exactly one chunk, except for the final
// short chunk before EOF.
type ChunkReader struct {
	r         io.Reader
	buf       []byte
	tmp       []byte
	chunkSize int
	eof       bool
}

func NewChunkReader(r io.Reader, chunkSize int) *ChunkReader {
	return &ChunkReader{
		r:         r,
		chunkSize: chunkSize,
		buf:       make([]byte, 0, chunkSize*2),
		tmp:       make([]byte, chunkSize),
	}
}

// NewAudioChunkReader chunks mono 16-bit audio in steps of d.
func NewAudioChunkReader(r io.Reader, sampleRate int, d time.Duration) *ChunkReader {
	return NewChunkReader(r, ChunkSize(sampleRate, d, BytesPerSample, 1))
}

func (c *ChunkReader) ChunkSize() int { return c.chunkSize }

func (c *ChunkReader) Read(p []byte) (int, error) {
	if len(p) < c.chunkSize {
		return 0, fmt.Errorf("buffer passed to Read must be at least %d bytes", c.chunkSize)
	}

	for len(c.buf) < c.chunkSize && !c.eof {
		n, err := c.r.Read(c.tmp)
		if n > 0 {
			c.buf = append(c.buf, c.tmp[:n]...)
		}
		if err == io.EOF {
			c.eof = true
			break
		}
		if err != nil {
			return 0, err
		}
	}

	if len(c.buf) == 0 && c.eof {
		return 0, io.EOF
	}

	n := min(c.chunkSize, len(c.buf))
	copy(p, c.buf[:n])
	c.buf = c.buf[n:]
	return n, nil
}
