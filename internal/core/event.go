package core

import "github.com/vovakirdan/fitroom-server/internal/store"

// EventKind is a notification the core emits to room members.
type EventKind int

const (
	// EventRoomSnapshot carries the current roster.
	EventRoomSnapshot EventKind = iota
	// EventWorkoutStarted is emitted once when the room turns running.
	EventWorkoutStarted
	// EventRoomEnded is emitted when the room is ended or exited.
	EventRoomEnded
	// EventError notifies a member about a rejected command.
	EventError
)

// Event is sent to room members to describe what happened.
type Event struct {
	Kind   EventKind
	Room   *store.Room
	Reason string // close reason for EventRoomEnded
	Error  *CoreError
}

// EventFor classifies a snapshot against the status the member saw before.
func EventFor(room *store.Room, previous store.RoomStatus) Event {
	switch {
	case room.Status == store.RoomStatusEnded:
		return Event{Kind: EventRoomEnded, Room: room, Reason: room.ClosedReason}
	case room.Status == store.RoomStatusRunning && previous != store.RoomStatusRunning:
		return Event{Kind: EventWorkoutStarted, Room: room}
	default:
		return Event{Kind: EventRoomSnapshot, Room: room}
	}
}

// ErrorEvent wraps err for delivery to a member.
func ErrorEvent(err error) Event {
	return Event{Kind: EventError, Error: AsCoreError(err)}
}
