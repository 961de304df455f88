package http

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/fitroom-server/internal/auth"
	"github.com/vovakirdan/fitroom-server/internal/core"
)

// APIHandlers provides HTTP handlers for identity endpoints.
type APIHandlers struct {
	authService *auth.Service
	log         *zerolog.Logger
}

// NewAPIHandlers creates a new API handlers instance.
func NewAPIHandlers(authService *auth.Service, logger *zerolog.Logger) *APIHandlers {
	return &APIHandlers{
		authService: authService,
		log:         logger,
	}
}

// GuestRequest represents the guest login request body.
type GuestRequest struct {
	Name string `json:"name"`
}

// AuthResponse represents the authentication response body.
type AuthResponse struct {
	Token  string `json:"token"`
	UserID string `json:"user_id"`
	Name   string `json:"name,omitempty"`
}

// ErrorResponse represents an error response body.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// GuestLogin issues a fresh identity. The body is optional.
// POST /api/guest
func (h *APIHandlers) GuestLogin(c *gin.Context) {
	var req GuestRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		h.log.Debug().Err(err).Msg("invalid guest request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body", Code: core.ErrCodeBadRequest})
		return
	}

	guest, err := h.authService.IssueGuest(req.Name)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidName) {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "name is too long", Code: core.ErrCodeValidation})
			return
		}
		h.log.Error().Err(err).Msg("failed to issue guest identity")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	h.log.Info().Str("user_id", guest.UserID).Msg("guest identity issued")
	c.JSON(http.StatusOK, AuthResponse{Token: guest.Token, UserID: guest.UserID, Name: guest.Name})
}
