package proto

import "encoding/json"

// Inbound is the envelope for messages coming from the client.
type Inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

const (
	ProtocolVersion = 1

	InboundTypeHello = "hello"
	InboundTypeStart = "start"
	InboundTypeEnd   = "end"
	InboundTypeExit  = "exit"
	InboundTypeLeave = "leave"
	InboundTypeScore = "score"

	OutboundTypeEvent = "event"
	OutboundTypeError = "error"

	EventRoom           = "room"
	EventWorkoutStarted = "workout_started"
	EventEnded          = "ended"
)

// HelloData must be the first message on a connection.
type HelloData struct {
	Token    string `json:"token,omitempty"`
	Protocol int    `json:"protocol,omitempty"`
}

// ScoreData reports the sender's current score.
type ScoreData struct {
	Score *int `json:"score"`
}

// Outbound is the envelope for messages sent to the client.
type Outbound struct {
	Type  string `json:"type"`
	Event string `json:"event,omitempty"`
	Data  any    `json:"data,omitempty"`
	Error *Error `json:"error,omitempty"`
}

// Participant is one leaderboard row.
type Participant struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	Score       int    `json:"score"`
}

// Room is the wire form of a room snapshot. Participants are in join order.
type Room struct {
	ID           string        `json:"id"`
	Code         string        `json:"code"`
	Capacity     int           `json:"capacity"`
	Activity     string        `json:"activity"`
	CreatorID    string        `json:"creator_id"`
	Status       string        `json:"status"`
	ClosedReason string        `json:"closed_reason,omitempty"`
	Version      int64         `json:"version"`
	Participants []Participant `json:"participants"`
	CreatedAt    int64         `json:"created_at"`
}

// EndedData tells members the room is gone.
type EndedData struct {
	Room   Room   `json:"room"`
	Reason string `json:"reason,omitempty"`
}

// Error describes a protocol-level error response.
type Error struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}
