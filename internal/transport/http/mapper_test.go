package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vovakirdan/fitroom-server/internal/core"
	"github.com/vovakirdan/fitroom-server/internal/proto"
	"github.com/vovakirdan/fitroom-server/internal/store"
)

func TestOutboundFromEndedEvent(t *testing.T) {
	room := &store.Room{
		ID:           "r1",
		Code:         "4821",
		Capacity:     2,
		Activity:     "Squats",
		CreatorID:    "coach",
		Status:       store.RoomStatusEnded,
		ClosedReason: store.ClosedReasonExit,
		Version:      5,
		CreatedAt:    time.Unix(1_700_000_000, 0),
	}

	out := outboundFromEvent(core.EventFor(room, store.RoomStatusRunning))
	if out.Type != proto.OutboundTypeEvent || out.Event != proto.EventEnded {
		t.Fatalf("expected ended event, got %+v", out)
	}

	raw, err := json.Marshal(out)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded struct {
		Event string          `json:"event"`
		Data  proto.EndedData `json:"data"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.Event != "ended" || decoded.Data.Reason != "exit" || decoded.Data.Room.ID != "r1" {
		t.Fatalf("unexpected ended frame: %s", raw)
	}
	if decoded.Data.Room.Participants == nil {
		t.Fatalf("participants should encode as an empty list: %s", raw)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "validation", err: core.ErrValidation, want: http.StatusBadRequest},
		{name: "not found", err: core.ErrNotFound, want: http.StatusNotFound},
		{name: "capacity", err: core.ErrCapacity, want: http.StatusConflict},
		{name: "conflict", err: core.ErrConflict, want: http.StatusConflict},
		{name: "forbidden", err: core.Forbidden("nope"), want: http.StatusForbidden},
		{name: "other", err: errors.New("disk on fire"), want: http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := statusFor(tt.err); got != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, got)
			}
		})
	}
}

func TestHijackableWriterUnwrapsGin(t *testing.T) {
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)

	if got := hijackableWriter(c.Writer); got != http.ResponseWriter(rec) {
		t.Fatalf("expected the recorder gin wraps, got %T", got)
	}
}
