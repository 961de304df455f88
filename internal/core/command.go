package core

import (
	"context"

	"github.com/vovakirdan/fitroom-server/internal/store"
)

// CommandKind describes what a room member wants to do.
type CommandKind int

const (
	// CommandStartWorkout marks the room running. Creator only.
	CommandStartWorkout CommandKind = iota
	// CommandEnd closes the room. Creator only.
	CommandEnd
	// CommandExit closes the room because the creator left. Creator only.
	CommandExit
	// CommandLeave removes the caller from the roster.
	CommandLeave
	// CommandUpdateScore reports the caller's current score.
	CommandUpdateScore
)

func (k CommandKind) String() string {
	switch k {
	case CommandStartWorkout:
		return "start"
	case CommandEnd:
		return "end"
	case CommandExit:
		return "exit"
	case CommandLeave:
		return "leave"
	case CommandUpdateScore:
		return "score"
	default:
		return "unknown"
	}
}

// Command represents an action requested by a room member.
type Command struct {
	Kind   CommandKind
	RoomID string
	Score  int
}

// Execute runs cmd on behalf of caller.
func (m *Manager) Execute(ctx context.Context, caller Identity, cmd Command) (*store.Room, error) {
	switch cmd.Kind {
	case CommandStartWorkout:
		return m.StartWorkout(ctx, cmd.RoomID, caller.ID)
	case CommandEnd:
		return m.EndRoom(ctx, cmd.RoomID, caller.ID)
	case CommandExit:
		return m.ExitRoom(ctx, cmd.RoomID, caller.ID)
	case CommandLeave:
		return m.LeaveRoom(ctx, cmd.RoomID, caller.ID)
	case CommandUpdateScore:
		return m.UpdateScore(ctx, cmd.RoomID, caller.ID, cmd.Score)
	default:
		return nil, coreError(ErrCodeBadRequest, ErrValidation, "unknown command")
	}
}
