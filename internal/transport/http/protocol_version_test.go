package http

import (
	"context"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/vovakirdan/fitroom-server/internal/proto"
)

func TestProtocolVersionMismatch(t *testing.T) {
	env := newTestEnv(t, nil)
	creator, _ := env.guest(t, "coach")
	room := env.createRoom(t, creator, 2)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, env.wsURL(room.ID, nil), &websocket.DialOptions{
		HTTPHeader: map[string][]string{"Authorization": {"Bearer " + creator}},
	})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.CloseNow()

	sendHello(ctx, t, conn, proto.ProtocolVersion+1)

	outbound := readUntil(ctx, t, conn, func(o wireOutbound) bool { return true })
	if outbound.Type != proto.OutboundTypeError || outbound.Error == nil || outbound.Error.Code != "unsupported_version" {
		t.Fatalf("expected unsupported_version error, got %+v", outbound)
	}
	expectClosed(ctx, t, conn, websocket.StatusPolicyViolation)
}

func TestMatchingProtocolVersionIsAccepted(t *testing.T) {
	env := newTestEnv(t, nil)
	creator, _ := env.guest(t, "coach")
	room := env.createRoom(t, creator, 2)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	conn := env.dial(ctx, t, room.ID, creator)
	greeting := readUntil(ctx, t, conn, func(o wireOutbound) bool { return true })
	if greeting.Type != proto.OutboundTypeEvent || greeting.Event != proto.EventRoom {
		t.Fatalf("expected room snapshot, got %+v", greeting)
	}
}
