package events

import (
	"fmt"

	"github.com/codewandler/lullaby-go/device"
)

// ErrorEvent reports a failure the user has to see.
type ErrorEvent struct {
	BaseEvent
	ErrorDetail ErrorDetail `json:"error"`
}

func (e *ErrorEvent) Error() string {
	return e.ErrorDetail.Error()
}

// ErrorDetail holds the details of the error.
type ErrorDetail struct {
	Kind    device.ErrorKind `json:"kind"`
	Op      string           `json:"op"`
	Message string           `json:"message"`
}

func (e *ErrorDetail) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

// NewErrorEvent classifies err for op.
func NewErrorEvent(op string, err error) *ErrorEvent {
	return &ErrorEvent{
		BaseEvent: NewBaseEvent(TypeError),
		ErrorDetail: ErrorDetail{
			Kind:    device.KindOf(err),
			Op:      op,
			Message: err.Error(),
		},
	}
}
