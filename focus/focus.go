// Package focus arbitrates the exclusive audio hardware between the recorder,
// the playback engine and the preview.
package focus

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/codewandler/lullaby-go/device"
	nanoid "github.com/matoous/go-nanoid/v2"
)

type Owner string

const (
	OwnerRecorder Owner = "recorder"
	OwnerPlayer   Owner = "player"
	OwnerPreview  Owner = "preview"
)

func (o Owner) priority() int {
	switch o {
	case OwnerRecorder:
		return 2
	default:
		return 1
	}
}

// RevokeFunc tears the holder down when a competing owner takes the hardware.
// It must not call Acquire.
type RevokeFunc func(ctx context.Context)

// Arbiter hands out at most one Lease at a time.
type Arbiter struct {
	mu     sync.Mutex
	holder *Lease
	logger *slog.Logger
}

func NewArbiter(logger *slog.Logger) *Arbiter {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Arbiter{logger: logger}
}

// Lease is proof of holding the audio hardware.
type Lease struct {
	ID     string
	Owner  Owner
	arb    *Arbiter
	revoke RevokeFunc
}

// Acquire grants the hardware to owner. A holder of equal or lower priority is
// revoked first; a holder of higher priority makes Acquire fail with
// device.ErrAudioFocusUnavailable.
func (a *Arbiter) Acquire(ctx context.Context, owner Owner, revoke RevokeFunc) (*Lease, error) {
	id, err := nanoid.New()
	if err != nil {
		return nil, fmt.Errorf("lease id: %w", err)
	}
	lease := &Lease{ID: id, Owner: owner, arb: a, revoke: revoke}

	a.mu.Lock()
	prev := a.holder
	if prev != nil && prev.Owner.priority() > owner.priority() {
		a.mu.Unlock()
		a.logger.Debug("focus denied", slog.String("owner", string(owner)), slog.String("holder", string(prev.Owner)))
		return nil, fmt.Errorf("%s holds the audio hardware: %w", prev.Owner, device.ErrAudioFocusUnavailable)
	}
	a.holder = lease
	a.mu.Unlock()

	if prev != nil {
		a.logger.Debug("focus revoked", slog.String("owner", string(prev.Owner)), slog.String("by", string(owner)))
		if prev.revoke != nil {
			prev.revoke(ctx)
		}
	}

	a.logger.Debug("focus acquired", slog.String("owner", string(owner)), slog.String("lease", id))
	return lease, nil
}

// Holder returns the current owner, if any.
func (a *Arbiter) Holder() (Owner, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.holder == nil {
		return "", false
	}
	return a.holder.Owner, true
}

// Release gives the hardware back. Releasing a revoked or already released
// lease is a no-op. Safe on a nil lease.
func (l *Lease) Release() {
	if l == nil {
		return
	}
	a := l.arb
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.holder == l {
		a.holder = nil
		a.logger.Debug("focus released", slog.String("owner", string(l.Owner)), slog.String("lease", l.ID))
	}
}

// Held reports whether l is still the active lease.
func (l *Lease) Held() bool {
	if l == nil {
		return false
	}
	l.arb.mu.Lock()
	defer l.arb.mu.Unlock()
	return l.arb.holder == l
}
