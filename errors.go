package lullaby

import "errors"

var (
	ErrClosed             = errors.New("lullaby app is closed")
	ErrNoPendingRecording = errors.New("no recording waiting to be kept")
	ErrUnknownSound       = errors.New("unknown background sound")
	ErrUnknownPreset      = errors.New("unknown preset")
	ErrVoiceNotFound      = errors.New("voice recording not found")
)
