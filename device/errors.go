package device

import "errors"

var (
	// ErrPermissionDenied means microphone access was refused.
	ErrPermissionDenied = errors.New("microphone permission denied")
	// ErrAudioFocusUnavailable means another owner holds the audio hardware.
	ErrAudioFocusUnavailable = errors.New("audio focus not available")
	// ErrAssetLoad means a source could not be loaded or decoded.
	ErrAssetLoad = errors.New("audio asset could not be loaded")
	// ErrStorageCleanup means a temporary recording could not be deleted.
	ErrStorageCleanup = errors.New("recording cleanup failed")
)

type ErrorKind string

const (
	KindNone                  ErrorKind = ""
	KindPermissionDenied      ErrorKind = "permission_denied"
	KindAudioFocusUnavailable ErrorKind = "audio_focus_unavailable"
	KindAssetLoadFailure      ErrorKind = "asset_load_failure"
	KindStorageCleanupFailure ErrorKind = "storage_cleanup_failure"
	KindUnknown               ErrorKind = "unknown"
)

// KindOf classifies err into the error taxonomy.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrAudioFocusUnavailable):
		return KindAudioFocusUnavailable
	case errors.Is(err, ErrPermissionDenied):
		return KindPermissionDenied
	case errors.Is(err, ErrAssetLoad):
		return KindAssetLoadFailure
	case errors.Is(err, ErrStorageCleanup):
		return KindStorageCleanupFailure
	default:
		return KindUnknown
	}
}
