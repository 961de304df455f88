package session

import (
	"errors"

	"github.com/vovakirdan/fitroom-server/internal/core"
	"github.com/vovakirdan/fitroom-server/internal/store"
)

// NoticeKind classifies a user-facing notice.
type NoticeKind int

const (
	// NoticeTerminated means the session detached because the room is gone.
	NoticeTerminated NoticeKind = iota
	// NoticeWorkoutStarted means the creator started the workout.
	NoticeWorkoutStarted
	// NoticeReconnecting means updates are paused while the subscription is retried.
	NoticeReconnecting
	// NoticeError reports a failed request.
	NoticeError
)

func (k NoticeKind) String() string {
	switch k {
	case NoticeTerminated:
		return "terminated"
	case NoticeWorkoutStarted:
		return "workout_started"
	case NoticeReconnecting:
		return "reconnecting"
	default:
		return "error"
	}
}

// Notice is something worth telling the person holding the device.
type Notice struct {
	Kind    NoticeKind
	Reason  string // close reason for NoticeTerminated
	Message string
	Err     error
}

const (
	workoutStartedMessage = "The workout has started."
	reconnectingMessage   = "Connection lost. Reconnecting..."
	goneMessage           = "This room is no longer available."
)

func terminationMessage(reason string) string {
	switch reason {
	case store.ClosedReasonEnd:
		return "The room was ended by its creator."
	case store.ClosedReasonExit:
		return "The room creator has left."
	default:
		return "The room has been closed."
	}
}

// NoticeFor turns an error from create, join or a room command into a notice.
func NoticeFor(err error) Notice {
	n := Notice{Kind: NoticeError, Err: err}
	switch {
	case errors.Is(err, ErrStaleResponse):
		n.Message = "The request was cancelled."
	case errors.Is(err, core.ErrValidation):
		n.Message = "Please check what you entered and try again."
		var ce *core.CoreError
		if errors.As(err, &ce) && ce.Message != "" {
			n.Message = ce.Message
		}
	case errors.Is(err, core.ErrNotFound):
		n.Message = "No active room with this code."
	case errors.Is(err, core.ErrCapacity):
		n.Message = "This room is full."
	case errors.Is(err, core.ErrConflict):
		n.Message = "The room changed in the meantime. Please try again."
	case errors.Is(err, core.ErrUnauthorized):
		n.Message = "Only the room creator can do that."
	default:
		n.Message = "Something went wrong. Please try again."
	}
	return n
}
