package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	stdhttp "net/http"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/vovakirdan/fitroom-server/internal/auth"
	"github.com/vovakirdan/fitroom-server/internal/config"
	"github.com/vovakirdan/fitroom-server/internal/core"
	"github.com/vovakirdan/fitroom-server/internal/fanout"
	"github.com/vovakirdan/fitroom-server/internal/fanout/redis"
	"github.com/vovakirdan/fitroom-server/internal/log"
	"github.com/vovakirdan/fitroom-server/internal/roomcode"
	"github.com/vovakirdan/fitroom-server/internal/store"
	"github.com/vovakirdan/fitroom-server/internal/store/sqlite"
	transporthttp "github.com/vovakirdan/fitroom-server/internal/transport/http"
)

const redisPingTimeout = 5 * time.Second

// App wires together the store, the room manager and the transport layer.
type App struct {
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	store           store.Store
	broker          fanout.Broker
	redis           *goredis.Client
	log             *zerolog.Logger

	// base parents every request context so hijacked WebSocket
	// connections see shutdown too.
	base       context.Context
	cancelBase context.CancelFunc
}

// New constructs the application with provided configuration.
func New(cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	a := &App{shutdownTimeout: cfg.ShutdownTimeout, log: logger}

	if err := a.initBroker(cfg.Fanout); err != nil {
		return nil, err
	}

	st, err := sqlite.New(cfg.DatabasePath, a.broker, log.Component(logger, "store"))
	if err != nil {
		a.cleanup()
		return nil, fmt.Errorf("init store: %w", err)
	}
	a.store = st
	logger.Info().Str("db_path", cfg.DatabasePath).Msg("database initialized")

	manager := core.NewManager(st, roomcode.NewGenerator(), core.Options{
		MaxCapacity: cfg.Rooms.MaxCapacity,
		CodeRetries: cfg.Rooms.CodeRetries,
	}, log.Component(logger, "rooms"))

	authService := auth.NewService(&auth.JWTConfig{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      cfg.TokenTTL,
	})

	a.base, a.cancelBase = context.WithCancel(context.Background())
	a.server = transporthttp.NewServer(manager, authService, cfg, log.Component(logger, "http"))
	a.server.BaseContext = func(net.Listener) context.Context { return a.base }

	return a, nil
}

func (a *App) initBroker(cfg config.FanoutConfig) error {
	if cfg.Backend != config.FanoutRedis {
		a.broker = fanout.NewLocal()
		a.log.Info().Str("backend", config.FanoutLocal).Msg("fanout initialized")
		return nil
	}

	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), redisPingTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return fmt.Errorf("connect redis %s: %w", cfg.RedisAddr, err)
	}

	a.redis = client
	a.broker = redis.New(client, cfg.ChannelPrefix, log.Component(a.log, "fanout"))
	a.log.Info().Str("backend", config.FanoutRedis).Str("addr", cfg.RedisAddr).Msg("fanout initialized")
	return nil
}

// Handler exposes the HTTP handler, mainly for tests.
func (a *App) Handler() stdhttp.Handler {
	return a.server.Handler
}

// Run starts the HTTP server and blocks until context cancellation or fatal error.
func (a *App) Run(ctx context.Context) error {
	defer a.cleanup()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.log.Info().Str("addr", a.server.Addr).Msg("http server listening")
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()

		a.log.Info().Msg("shutting down http server")
		a.cancelBase()
		return a.server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// cleanup closes the store, the broker and the redis client, in that order.
func (a *App) cleanup() {
	if a.cancelBase != nil {
		a.cancelBase()
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close store")
		} else {
			a.log.Info().Msg("store closed")
		}
	}
	if a.broker != nil {
		if err := a.broker.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close fanout broker")
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close redis client")
		}
	}
}
