package events

type RecordingStatusEvent struct {
	BaseEvent
	IsRecording bool  `json:"is_recording"`
	DurationMs  int64 `json:"duration_ms"`
}

type PlaybackStateEvent struct {
	BaseEvent
	IsPlaying       bool   `json:"is_playing"`
	VoicePositionMs int64  `json:"voice_position_ms"`
	VoiceDurationMs int64  `json:"voice_duration_ms"`
	Error           string `json:"error,omitempty"`
}

type PlaybackCompleteEvent struct {
	BaseEvent
	VoiceURI string `json:"voice_uri"`
}

type PreviewEvent struct {
	BaseEvent
	SoundID string `json:"sound_id"`
}

type SleepTimerTickEvent struct {
	BaseEvent
	RemainingMs int64 `json:"remaining_ms"`
	EndEpochMs  int64 `json:"end_epoch_ms"`
}

type SleepTimerExpiredEvent struct {
	BaseEvent
	Minutes int `json:"minutes"`
}
