package player

import (
	"errors"
	"fmt"

	"github.com/codewandler/lullaby-go/device"
)

// Role names one of the two streams of a mix.
type Role string

const (
	RoleVoice      Role = "voice"
	RoleBackground Role = "background"
)

// Policy decides what a stream failure does to the surrounding play attempt.
type Policy struct {
	// Surface reports the error through OnError and marks playback stopped.
	Surface bool
	// AbortPlay tears the attempt down; later streams are not attempted.
	AbortPlay bool
}

// Policies is consulted for every load, play and resume failure. The voice is
// the primary content; a broken ambient bed never blocks it.
var Policies = map[Role]Policy{
	RoleVoice:      {Surface: true, AbortPlay: true},
	RoleBackground: {Surface: false, AbortPlay: false},
}

// AcquirePolicy applies when the mix as a whole cannot get the audio hardware.
var AcquirePolicy = Policy{Surface: true, AbortPlay: true}

// classify keeps focus contention as is and files everything else under
// device.ErrAssetLoad.
func classify(role Role, err error) error {
	switch {
	case errors.Is(err, device.ErrAudioFocusUnavailable), errors.Is(err, device.ErrAssetLoad):
		return fmt.Errorf("%s: %w", role, err)
	default:
		return fmt.Errorf("%s: %w: %w", role, device.ErrAssetLoad, err)
	}
}
