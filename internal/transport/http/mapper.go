package http

import (
	"errors"
	"net/http"

	"github.com/vovakirdan/fitroom-server/internal/core"
	"github.com/vovakirdan/fitroom-server/internal/proto"
	"github.com/vovakirdan/fitroom-server/internal/store"
)

func roomToProto(room *store.Room) proto.Room {
	participants := make([]proto.Participant, 0, len(room.Participants))
	for _, p := range room.Participants {
		participants = append(participants, proto.Participant{
			UserID:      p.UserID,
			DisplayName: p.DisplayName,
			Score:       p.Score,
		})
	}
	return proto.Room{
		ID:           room.ID,
		Code:         room.Code,
		Capacity:     room.Capacity,
		Activity:     room.Activity,
		CreatorID:    room.CreatorID,
		Status:       string(room.Status),
		ClosedReason: room.ClosedReason,
		Version:      room.Version,
		Participants: participants,
		CreatedAt:    room.CreatedAt.UnixMilli(),
	}
}

func outboundFromEvent(event core.Event) proto.Outbound {
	switch event.Kind {
	case core.EventRoomSnapshot:
		return proto.Outbound{Type: proto.OutboundTypeEvent, Event: proto.EventRoom, Data: roomToProto(event.Room)}
	case core.EventWorkoutStarted:
		return proto.Outbound{Type: proto.OutboundTypeEvent, Event: proto.EventWorkoutStarted, Data: roomToProto(event.Room)}
	case core.EventRoomEnded:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventEnded,
			Data:  proto.EndedData{Room: roomToProto(event.Room), Reason: event.Reason},
		}
	case core.EventError:
		return errorOutbound(event.Error)
	default:
		return proto.Outbound{Type: proto.OutboundTypeError, Error: &proto.Error{Code: core.ErrCodeBadRequest, Msg: "unknown event"}}
	}
}

// errorOutbound converts err into an error frame. Store failures are reported
// without their cause.
func errorOutbound(err error) proto.Outbound {
	ce := core.AsCoreError(err)
	return proto.Outbound{Type: proto.OutboundTypeError, Error: &proto.Error{Code: ce.Code, Msg: ce.Message}}
}

func protoError(code, msg string) proto.Outbound {
	return proto.Outbound{Type: proto.OutboundTypeError, Error: &proto.Error{Code: code, Msg: msg}}
}

// statusFor maps a core error to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, core.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrCapacity), errors.Is(err, core.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, core.ErrUnauthorized):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}
