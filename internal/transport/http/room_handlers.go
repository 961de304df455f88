package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/fitroom-server/internal/core"
)

// RoomHandlers provides HTTP handlers for room endpoints.
type RoomHandlers struct {
	manager *core.Manager
	log     *zerolog.Logger
}

// NewRoomHandlers creates a new room handlers instance.
func NewRoomHandlers(manager *core.Manager, logger *zerolog.Logger) *RoomHandlers {
	return &RoomHandlers{
		manager: manager,
		log:     logger,
	}
}

// CreateRoomRequest represents the create room request body.
type CreateRoomRequest struct {
	Capacity       int    `json:"capacity"`
	Activity       string `json:"activity" binding:"max=64"`
	IdempotencyKey string `json:"idempotency_key" binding:"max=128"`
}

// JoinRoomRequest represents the join room request body.
type JoinRoomRequest struct {
	Code        string `json:"code" binding:"required"`
	DisplayName string `json:"display_name" binding:"max=32"`
	Score       int    `json:"score"`
}

// ScoreRequest represents the score update body.
type ScoreRequest struct {
	Score *int `json:"score" binding:"required"`
}

func (h *RoomHandlers) fail(c *gin.Context, err error) {
	ce := core.AsCoreError(err)
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.log.Error().Err(err).Str("path", c.Request.URL.Path).Msg("room request failed")
	}
	c.JSON(status, ErrorResponse{Error: ce.Message, Code: ce.Code})
}

func (h *RoomHandlers) badRequest(c *gin.Context, err error) {
	h.log.Debug().Err(err).Str("path", c.Request.URL.Path).Msg("invalid request body")
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body", Code: core.ErrCodeBadRequest})
}

// mustIdentity returns the caller or aborts with 401.
func (h *RoomHandlers) mustIdentity(c *gin.Context) (core.Identity, bool) {
	id, ok := identityFrom(c)
	if !ok {
		h.log.Error().Msg("user_id not found in context")
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized", Code: core.ErrCodeUnauthorized})
	}
	return id, ok
}

// CreateRoom handles room creation.
// POST /api/rooms
func (h *RoomHandlers) CreateRoom(c *gin.Context) {
	caller, ok := h.mustIdentity(c)
	if !ok {
		return
	}

	var req CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	room, err := h.manager.CreateRoom(c.Request.Context(), core.CreateParams{
		Capacity:       req.Capacity,
		Activity:       req.Activity,
		CreatorID:      caller.ID,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, roomToProto(room))
}

// GetRoom returns a room by ID, ended or not.
// GET /api/rooms/:id
func (h *RoomHandlers) GetRoom(c *gin.Context) {
	room, err := h.manager.GetRoom(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, roomToProto(room))
}

// FindByCode returns the live room owning a code.
// GET /api/rooms/code/:code
func (h *RoomHandlers) FindByCode(c *gin.Context) {
	room, err := h.manager.FindByCode(c.Request.Context(), c.Param("code"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, roomToProto(room))
}

// JoinRoom adds the caller to a room by code.
// POST /api/rooms/join
func (h *RoomHandlers) JoinRoom(c *gin.Context) {
	caller, ok := h.mustIdentity(c)
	if !ok {
		return
	}

	var req JoinRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	room, err := h.manager.JoinRoom(c.Request.Context(), req.Code, core.JoinerFor(caller, req.DisplayName), req.Score)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, roomToProto(room))
}

// Command returns a handler running kind against the room in the path.
// POST /api/rooms/:id/{start,end,exit,leave}
func (h *RoomHandlers) Command(kind core.CommandKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, ok := h.mustIdentity(c)
		if !ok {
			return
		}
		h.execute(c, caller, core.Command{Kind: kind, RoomID: c.Param("id")})
	}
}

// UpdateScore reports the caller's score.
// PUT /api/rooms/:id/score
func (h *RoomHandlers) UpdateScore(c *gin.Context) {
	caller, ok := h.mustIdentity(c)
	if !ok {
		return
	}

	var req ScoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}
	h.execute(c, caller, core.Command{Kind: core.CommandUpdateScore, RoomID: c.Param("id"), Score: *req.Score})
}

func (h *RoomHandlers) execute(c *gin.Context, caller core.Identity, cmd core.Command) {
	room, err := h.manager.Execute(c.Request.Context(), caller, cmd)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.log.Debug().
		Str("room_id", room.ID).
		Str("user_id", caller.ID).
		Stringer("command", cmd.Kind).
		Int64("version", room.Version).
		Msg("room command applied")
	c.JSON(http.StatusOK, roomToProto(room))
}
