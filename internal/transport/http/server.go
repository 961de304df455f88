package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/fitroom-server/internal/auth"
	"github.com/vovakirdan/fitroom-server/internal/config"
	"github.com/vovakirdan/fitroom-server/internal/core"
	"github.com/vovakirdan/fitroom-server/internal/session"
)

// NewServer builds the HTTP server exposing the room API and the WebSocket
// stream.
func NewServer(manager *core.Manager, authService *auth.Service, cfg *config.Config, logger *zerolog.Logger) *http.Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery(), RequestIDMiddleware(), LoggerMiddleware(logger))

	router.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	apiHandlers := NewAPIHandlers(authService, logger)
	roomHandlers := NewRoomHandlers(manager, logger)

	api := router.Group("/api", RateLimitMiddleware(cfg.RateLimitPerMinute))
	api.POST("/guest", apiHandlers.GuestLogin)

	rooms := api.Group("/rooms", AuthMiddleware(authService, false, logger))
	rooms.POST("", roomHandlers.CreateRoom)
	rooms.POST("/join", roomHandlers.JoinRoom)
	rooms.GET("/code/:code", roomHandlers.FindByCode)
	rooms.GET("/:id", roomHandlers.GetRoom)
	rooms.POST("/:id/start", roomHandlers.Command(core.CommandStartWorkout))
	rooms.POST("/:id/end", roomHandlers.Command(core.CommandEnd))
	rooms.POST("/:id/exit", roomHandlers.Command(core.CommandExit))
	rooms.POST("/:id/leave", roomHandlers.Command(core.CommandLeave))
	rooms.PUT("/:id/score", roomHandlers.UpdateScore)

	wsHandler := NewWSHandler(manager, sessionOptions(cfg.Session), logger)
	router.GET("/ws", AuthMiddleware(authService, true, logger), wsHandler.Handle)

	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

// sessionOptions converts validated config into session options. An
// unrecognised mode falls back to push.
func sessionOptions(cfg config.SessionConfig) session.Options {
	mode, err := session.ParseMode(cfg.Mode)
	if err != nil {
		mode = session.ModePush
	}
	return session.Options{
		Mode:            mode,
		PollInterval:    cfg.PollInterval,
		RetryBackoff:    cfg.RetryBackoff,
		MaxRetryBackoff: cfg.MaxRetryBackoff,
	}
}
