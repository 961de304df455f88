package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	stdhttp "net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/fitroom-server/internal/core"
	"github.com/vovakirdan/fitroom-server/internal/proto"
	"github.com/vovakirdan/fitroom-server/internal/session"
	"github.com/vovakirdan/fitroom-server/internal/store"
)

const (
	helloTimeout = 10 * time.Second

	errCodeUnsupportedProtocol = "unsupported_version"
)

var errRoomClosed = errors.New("room closed")

// frameError is a protocol mistake reported back to the client as-is.
type frameError struct {
	code string
	msg  string
}

func (e *frameError) Error() string { return e.msg }

func badFrame(msg string) error {
	return &frameError{code: core.ErrCodeBadRequest, msg: msg}
}

// WSHandler upgrades HTTP connections and bridges them to a room session.
type WSHandler struct {
	manager *core.Manager
	opts    session.Options
	log     *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(manager *core.Manager, opts session.Options, logger *zerolog.Logger) *WSHandler {
	return &WSHandler{manager: manager, opts: opts, log: logger}
}

// Handle serves GET /ws?room=<id>. The caller must already be authenticated
// and listed in the room (or be its creator).
func (h *WSHandler) Handle(c *gin.Context) {
	caller, ok := identityFrom(c)
	if !ok {
		c.JSON(stdhttp.StatusUnauthorized, ErrorResponse{Error: "unauthorized", Code: core.ErrCodeUnauthorized})
		return
	}
	roomID := c.Query("room")
	if roomID == "" {
		c.JSON(stdhttp.StatusBadRequest, ErrorResponse{Error: "room query parameter is required", Code: core.ErrCodeBadRequest})
		return
	}

	conn, err := websocket.Accept(hijackableWriter(c.Writer), c.Request, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.CloseNow()

	log := h.log.With().Str("room_id", roomID).Str("user_id", caller.ID).Logger()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	sess, err := h.open(ctx, conn, roomID, caller)
	if err != nil {
		if !errors.Is(err, errRoomClosed) {
			log.Debug().Err(err).Msg("ws session rejected")
		}
		status := websocket.StatusPolicyViolation
		if errors.Is(err, errRoomClosed) {
			status = websocket.StatusNormalClosure
		}
		conn.Close(status, closeReason(err))
		return
	}
	defer sess.Detach()
	log.Debug().Bool("creator", sess.IsCreator()).Msg("ws session attached")

	errCh := make(chan error, 2)
	go func() {
		errCh <- h.readLoop(ctx, conn, sess, &log)
	}()
	go func() {
		errCh <- h.writeLoop(ctx, conn, sess)
	}()

	err = <-errCh
	if errors.Is(err, errRoomClosed) {
		// Close while the reader is still running so it consumes the peer's
		// close frame and the handshake completes.
		conn.Close(websocket.StatusNormalClosure, errRoomClosed.Error())
	}
	cancel()
	<-errCh

	status := websocket.StatusNormalClosure
	reason := "closing"
	if err != nil && !errors.Is(err, errRoomClosed) && !errors.Is(err, context.Canceled) {
		if errors.Is(err, io.EOF) {
			err = nil
		}
		if s := websocket.CloseStatus(err); s != -1 {
			status = s
		}
		if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
			err = nil
		}
		if err != nil {
			if status == websocket.StatusNormalClosure {
				status = websocket.StatusInternalError
			}
			reason = closeReason(err)
			log.Warn().Err(err).Msg("ws connection closed with error")
		}
	}

	conn.Close(status, reason)
}

// hijackableWriter returns the writer gin wraps. gin refuses to hijack once
// the status line was flushed, and the upgrade flushes it first.
func hijackableWriter(w gin.ResponseWriter) stdhttp.ResponseWriter {
	if u, ok := w.(interface{ Unwrap() stdhttp.ResponseWriter }); ok {
		return u.Unwrap()
	}
	return w
}

// open performs the hello handshake and attaches a session for caller.
func (h *WSHandler) open(ctx context.Context, conn *websocket.Conn, roomID string, caller core.Identity) (*session.Session, error) {
	helloCtx, cancel := context.WithTimeout(ctx, helloTimeout)
	defer cancel()

	var in proto.Inbound
	if err := wsjson.Read(helloCtx, conn, &in); err != nil {
		return nil, fmt.Errorf("read hello: %w", err)
	}
	if in.Type != proto.InboundTypeHello {
		return nil, h.reject(ctx, conn, badFrame("first message must be hello"))
	}
	var hello proto.HelloData
	if len(in.Data) > 0 {
		if err := json.Unmarshal(in.Data, &hello); err != nil {
			return nil, h.reject(ctx, conn, badFrame("invalid hello payload"))
		}
	}
	if hello.Protocol != 0 && hello.Protocol != proto.ProtocolVersion {
		return nil, h.reject(ctx, conn, &frameError{
			code: errCodeUnsupportedProtocol,
			msg:  fmt.Sprintf("unsupported protocol version %d, server speaks %d", hello.Protocol, proto.ProtocolVersion),
		})
	}

	room, err := h.manager.GetRoom(ctx, roomID)
	if err != nil {
		return nil, h.reject(ctx, conn, err)
	}
	if room.CreatorID != caller.ID && !room.HasParticipant(caller.ID) {
		return nil, h.reject(ctx, conn, core.Forbidden("join the room before following it"))
	}
	if room.Status == store.RoomStatusEnded {
		if err := wsjson.Write(ctx, conn, outboundFromEvent(core.EventFor(room, room.Status))); err != nil {
			return nil, err
		}
		return nil, errRoomClosed
	}

	opts := h.opts
	opts.Logger = h.log
	sess := session.New(h.manager, room, caller, opts)
	if err := sess.Attach(ctx); err != nil {
		return nil, h.reject(ctx, conn, err)
	}

	// Attach only emits newer versions, so greet with the current snapshot.
	current := sess.Room()
	if err := wsjson.Write(ctx, conn, outboundFromEvent(core.Event{Kind: core.EventRoomSnapshot, Room: current})); err != nil {
		sess.Detach()
		return nil, err
	}
	return sess, nil
}

// reject sends err to the client and returns it.
func (h *WSHandler) reject(ctx context.Context, conn *websocket.Conn, err error) error {
	if writeErr := wsjson.Write(ctx, conn, frameFor(err)); writeErr != nil {
		h.log.Debug().Err(writeErr).Msg("write ws rejection")
	}
	return err
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, sess *session.Session, log *zerolog.Logger) error {
	for {
		var inbound proto.Inbound
		if err := wsjson.Read(ctx, conn, &inbound); err != nil {
			return err
		}

		if err := h.dispatch(ctx, sess, inbound); err != nil {
			log.Debug().Err(err).Str("type", inbound.Type).Msg("ws command rejected")
			if writeErr := wsjson.Write(ctx, conn, frameFor(err)); writeErr != nil {
				return writeErr
			}
		}
	}
}

func (h *WSHandler) dispatch(ctx context.Context, sess *session.Session, in proto.Inbound) error {
	switch in.Type {
	case proto.InboundTypeStart:
		return sess.StartWorkout(ctx)
	case proto.InboundTypeEnd:
		return sess.End(ctx)
	case proto.InboundTypeExit:
		return sess.Exit(ctx)
	case proto.InboundTypeLeave:
		return sess.Leave(ctx)
	case proto.InboundTypeScore:
		var data proto.ScoreData
		if err := json.Unmarshal(in.Data, &data); err != nil || data.Score == nil {
			return badFrame("score payload must carry a score")
		}
		return sess.UpdateScore(ctx, *data.Score)
	case proto.InboundTypeHello:
		return badFrame("hello already received")
	default:
		return badFrame("unknown message type")
	}
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, sess *session.Session) error {
	for {
		select {
		case event, ok := <-sess.Events():
			if !ok {
				return errRoomClosed
			}
			if err := wsjson.Write(ctx, conn, outboundFromEvent(event)); err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func frameFor(err error) proto.Outbound {
	var fe *frameError
	if errors.As(err, &fe) {
		return protoError(fe.code, fe.msg)
	}
	return errorOutbound(err)
}

// closeReason trims err to fit a close frame.
func closeReason(err error) string {
	const maxReason = 120
	reason := err.Error()
	if len(reason) > maxReason {
		reason = reason[:maxReason]
	}
	return reason
}
