package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/fitroom-server/internal/auth"
	"github.com/vovakirdan/fitroom-server/internal/core"
)

const (
	// ContextKeyUserID is the context key for storing user ID.
	ContextKeyUserID = "user_id"
	// ContextKeyName is the context key for storing the token display name.
	ContextKeyName = "name"
	// ContextKeyRequestID is the context key for the request correlation ID.
	ContextKeyRequestID = "request_id"

	headerRequestID = "X-Request-ID"
)

// bearerToken extracts the token from "Authorization: Bearer <token>". When
// allowQuery is set, a token query parameter is accepted too, since browsers
// cannot set headers on WebSocket upgrades.
func bearerToken(c *gin.Context, allowQuery bool) (string, string) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		if allowQuery {
			if token := c.Query("token"); token != "" {
				return token, ""
			}
		}
		return "", "missing authorization header"
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", "invalid authorization header format"
	}
	return parts[1], ""
}

// AuthMiddleware validates the caller's JWT and stores the identity in the
// gin context.
func AuthMiddleware(authService *auth.Service, allowQuery bool, logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, problem := bearerToken(c, allowQuery)
		if problem != "" {
			logger.Debug().Str("path", c.Request.URL.Path).Msg(problem)
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: problem, Code: core.ErrCodeUnauthorized})
			return
		}

		claims, err := authService.ValidateToken(token)
		if err != nil {
			logger.Debug().Err(err).Msg("invalid token")
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid token", Code: core.ErrCodeUnauthorized})
			return
		}

		c.Set(ContextKeyUserID, claims.UserID())
		c.Set(ContextKeyName, claims.Name)
		c.Next()
	}
}

// identityFrom returns the identity AuthMiddleware stored.
func identityFrom(c *gin.Context) (core.Identity, bool) {
	id := c.GetString(ContextKeyUserID)
	if id == "" {
		return core.Identity{}, false
	}
	return core.Identity{ID: id, Name: c.GetString(ContextKeyName)}, true
}

// RequestIDMiddleware tags each request with an ID, reusing the client's
// X-Request-ID when present.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(headerRequestID)
		if id == "" || len(id) > 64 {
			id = uuid.NewString()
		}
		c.Set(ContextKeyRequestID, id)
		c.Header(headerRequestID, id)
		c.Next()
	}
}

// LoggerMiddleware creates a middleware that logs HTTP requests.
func LoggerMiddleware(logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		event := logger.Info()
		if status >= http.StatusInternalServerError {
			event = logger.Warn()
		}
		event.
			Str("request_id", c.GetString(ContextKeyRequestID)).
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Str("client_ip", c.ClientIP()).
			Dur("latency", time.Since(start)).
			Msg("http request")
	}
}
