package device

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClampVolume(t *testing.T) {
	for _, tt := range []struct {
		in, want float64
	}{
		{-1, 0},
		{0, 0},
		{0.25, 0.25},
		{1, 1},
		{7, 1},
		{math.Inf(1), 1},
		{math.Inf(-1), 0},
		{math.NaN(), 0},
	} {
		require.Equal(t, tt.want, ClampVolume(tt.in), "input %v", tt.in)
	}
}

func TestKindOf(t *testing.T) {
	require.Equal(t, KindNone, KindOf(nil))
	require.Equal(t, KindPermissionDenied, KindOf(ErrPermissionDenied))
	require.Equal(t, KindAudioFocusUnavailable, KindOf(fmt.Errorf("voice: %w", ErrAudioFocusUnavailable)))
	require.Equal(t, KindAssetLoadFailure, KindOf(fmt.Errorf("%w: %w", ErrAssetLoad, errors.New("eof"))))
	require.Equal(t, KindStorageCleanupFailure, KindOf(ErrStorageCleanup))
	require.Equal(t, KindUnknown, KindOf(errors.New("boom")))
}

func TestSource(t *testing.T) {
	require.True(t, Source{}.IsZero())
	require.Equal(t, "<none>", Source{}.String())
	require.Equal(t, "asset:rain.mp3", Asset("rain.mp3").String())
	require.Equal(t, SourceFile, File("file:///a.wav").Kind)
}

func TestLocalFiles(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "take.wav")
	require.NoError(t, os.WriteFile(path, []byte("RIFF"), 0o644))

	var files LocalFiles
	uri := "file://" + path

	info, err := files.Stat(ctx, uri)
	require.NoError(t, err)
	require.True(t, info.Exists)

	require.NoError(t, files.Remove(ctx, uri))

	info, err = files.Stat(ctx, path)
	require.NoError(t, err)
	require.False(t, info.Exists)

	require.Equal(t, path, PathFromURI(uri))
	require.Equal(t, path, PathFromURI(path))
}
