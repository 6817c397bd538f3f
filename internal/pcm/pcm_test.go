package pcm

import (
	"bytes"
	"encoding/binary"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/faiface/beep/wav"
	"github.com/stretchr/testify/require"
)

func samples(vals ...int16) []byte {
	b := make([]byte, len(vals)*BytesPerSample)
	for i, v := range vals {
		binary.LittleEndian.PutUint16(b[i*BytesPerSample:], uint16(v))
	}
	return b
}

func TestChunkSize(t *testing.T) {
	require.Equal(t, 4_800, ChunkSize(24_000, 100*time.Millisecond, 2, 1))
	require.Equal(t, 3_200, NewAudioChunkReader(nil, 16_000, 100*time.Millisecond).ChunkSize())
}

func TestChunkReaderEmitsFullChunks(t *testing.T) {
	r := NewChunkReader(bytes.NewReader([]byte("0123456789")), 4)
	buf := make([]byte, 4)

	var got []string
	for {
		n, err := r.Read(buf)
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		got = append(got, string(buf[:n]))
	}
	require.Equal(t, []string{"0123", "4567", "89"}, got)
}

func TestChunkReaderRejectsShortBuffer(t *testing.T) {
	r := NewChunkReader(bytes.NewReader([]byte("0123")), 4)
	_, err := r.Read(make([]byte, 3))
	require.Error(t, err)
}

func TestStreamerDuplicatesChannel(t *testing.T) {
	s := NewStreamer(samples(0, 16384, -16384))

	buf := make([][2]float64, 2)
	n, ok := s.Stream(buf)
	require.True(t, ok)
	require.Equal(t, 2, n)
	require.Equal(t, [2]float64{0.5, 0.5}, buf[1])

	n, ok = s.Stream(buf)
	require.True(t, ok)
	require.Equal(t, 1, n)
	require.Equal(t, [2]float64{-0.5, -0.5}, buf[0])

	_, ok = s.Stream(buf)
	require.False(t, ok)
}

func TestResampleDoublesLength(t *testing.T) {
	in := samples(make([]int16, 800)...)

	out, err := Resample(in, 8_000, 16_000)
	require.NoError(t, err)
	require.InDelta(t, 2*len(in), len(out), 64)

	same, err := Resample(in, 8_000, 8_000)
	require.NoError(t, err)
	require.Equal(t, in, same)
}

func TestEncodeWAV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "take.wav")
	f, err := os.Create(path)
	require.NoError(t, err)

	require.NoError(t, EncodeWAV(f, samples(1, 2, 3, 4, 5, 6), 16_000, 16_000))
	require.NoError(t, f.Close())

	f, err = os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	s, format, err := wav.Decode(f)
	require.NoError(t, err)
	require.Equal(t, 16_000, int(format.SampleRate))
	require.Equal(t, 1, format.NumChannels)
	require.Equal(t, 6, s.Len())
}

func TestEncodeWAVResamplesToTargetRate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "take.wav")
	f, err := os.Create(path)
	require.NoError(t, err)

	require.NoError(t, EncodeWAV(f, samples(make([]int16, 4_800)...), 48_000, 16_000))
	require.NoError(t, f.Close())

	f, err = os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	s, format, err := wav.Decode(f)
	require.NoError(t, err)
	require.Equal(t, 16_000, int(format.SampleRate))
	require.InDelta(t, 1_600, s.Len(), 32)
}
