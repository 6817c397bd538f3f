package focus

import (
	"context"
	"testing"

	"github.com/codewandler/lullaby-go/device"
	"github.com/stretchr/testify/require"
)

func TestAcquireRelease(t *testing.T) {
	a := NewArbiter(nil)

	l, err := a.Acquire(context.Background(), OwnerPlayer, nil)
	require.NoError(t, err)
	require.True(t, l.Held())

	owner, ok := a.Holder()
	require.True(t, ok)
	require.Equal(t, OwnerPlayer, owner)

	l.Release()
	require.False(t, l.Held())
	_, ok = a.Holder()
	require.False(t, ok)

	// second release is harmless
	l.Release()
}

func TestPreviewAndPlayerPreemptEachOther(t *testing.T) {
	a := NewArbiter(nil)
	ctx := context.Background()

	var revoked []Owner
	preview, err := a.Acquire(ctx, OwnerPreview, func(context.Context) { revoked = append(revoked, OwnerPreview) })
	require.NoError(t, err)

	player, err := a.Acquire(ctx, OwnerPlayer, func(context.Context) { revoked = append(revoked, OwnerPlayer) })
	require.NoError(t, err)
	require.Equal(t, []Owner{OwnerPreview}, revoked)
	require.False(t, preview.Held())
	require.True(t, player.Held())

	// stale release must not drop the new holder
	preview.Release()
	require.True(t, player.Held())

	_, err = a.Acquire(ctx, OwnerPreview, nil)
	require.NoError(t, err)
	require.Equal(t, []Owner{OwnerPreview, OwnerPlayer}, revoked)
}

func TestRecorderCannotBePreempted(t *testing.T) {
	a := NewArbiter(nil)
	ctx := context.Background()

	rec, err := a.Acquire(ctx, OwnerRecorder, nil)
	require.NoError(t, err)

	_, err = a.Acquire(ctx, OwnerPlayer, nil)
	require.ErrorIs(t, err, device.ErrAudioFocusUnavailable)

	_, err = a.Acquire(ctx, OwnerPreview, nil)
	require.ErrorIs(t, err, device.ErrAudioFocusUnavailable)
	require.True(t, rec.Held())

	rec.Release()
	_, err = a.Acquire(ctx, OwnerPlayer, nil)
	require.NoError(t, err)
}

func TestRecorderRevokesPlayback(t *testing.T) {
	a := NewArbiter(nil)
	ctx := context.Background()

	var revoked bool
	_, err := a.Acquire(ctx, OwnerPlayer, func(context.Context) { revoked = true })
	require.NoError(t, err)

	_, err = a.Acquire(ctx, OwnerRecorder, nil)
	require.NoError(t, err)
	require.True(t, revoked)
}

func TestRevokeMayReleaseItsLease(t *testing.T) {
	a := NewArbiter(nil)
	ctx := context.Background()

	var first *Lease
	first, err := a.Acquire(ctx, OwnerPreview, func(context.Context) { first.Release() })
	require.NoError(t, err)

	second, err := a.Acquire(ctx, OwnerPreview, nil)
	require.NoError(t, err)
	require.True(t, second.Held())
}
