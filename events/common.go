// Package events defines the notifications an App emits to its UI.
package events

import nanoid "github.com/matoous/go-nanoid/v2"

const (
	TypeError            = "error"
	TypeRecordingStatus  = "recording.status"
	TypePlaybackState    = "playback.state"
	TypePlaybackComplete = "playback.complete"
	TypePreviewStarted   = "preview.started"
	TypePreviewStopped   = "preview.stopped"
	TypeSleepTimerTick   = "sleep_timer.tick"
	TypeSleepTimerExpiry = "sleep_timer.expired"
)

type BaseEvent struct {
	EventID string `json:"event_id"`
	Type    string `json:"type"`
}

func NewBaseEvent(eventType string) BaseEvent {
	id, err := nanoid.New()
	if err != nil {
		panic(err)
	}
	return BaseEvent{
		EventID: id,
		Type:    eventType,
	}
}
