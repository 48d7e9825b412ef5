// Package app wires configuration, storage, events, and observability into
// the running daemon.
package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"pbxcore/internal/archive"
	"pbxcore/internal/config"
	"pbxcore/internal/core"
	"pbxcore/internal/dispatch"
	"pbxcore/internal/events"
)

// App owns the daemon lifecycle.
type App struct {
	Cfg *config.Config
	Log zerolog.Logger

	Service    *core.Service
	Dispatcher *dispatch.Dispatcher
	Bus        *events.Bus
}

// NewApp constructs an app from loaded configuration.
func NewApp(cfg *config.Config, log zerolog.Logger) *App {
	return &App{Cfg: cfg, Log: log}
}

// Run assembles the dependency graph and blocks until shutdown.
func (a *App) Run() {
	ctx := context.Background()

	engine := core.DefaultRulesEngine()
	store, err := core.OpenPersistentStore(engine)
	if err != nil {
		a.Log.Fatal().Err(err).Msg("failed to open persistent store")
	}

	a.Bus = events.NewBus()
	unsubscribe := a.Bus.Subscribe(func(ev events.Event) {
		a.Log.Debug().Str("topic", ev.Topic).Str("kind", string(ev.Kind)).Str("entity_id", ev.EntityID).Msg("lifecycle event")
	})
	defer unsubscribe()

	publishers := []events.Publisher{a.Bus}
	var redisClient *redis.Client
	if a.Cfg.RedisURL != "" {
		redisClient = a.setupRedis()
		defer func() { _ = redisClient.Close() }()
		publishers = append(publishers, events.NewRedisPublisher(redisClient, a.Cfg.EventPrefix))
	}

	archStore, err := archive.Open(ctx)
	if err != nil {
		a.Log.Fatal().Err(err).Msg("failed to open archive store")
	}

	metrics := core.NewPrometheusMetricsRecorder(nil)

	a.Service = core.NewService(store,
		core.WithPublisher(events.NewMultiPublisher(publishers...)),
		core.WithArchiver(archive.NewRetiredArchiver(archStore)),
		core.WithLogger(a.Log),
		core.WithMetricsRecorder(metrics),
	)

	a.Dispatcher = dispatch.New(store, logCapability{log: a.Log},
		dispatch.WithLogger(a.Log),
		dispatch.WithRecorder(dispatch.NewMemoryRecorder()),
	)

	a.Log.Info().
		Str("storage_driver", a.Cfg.StorageDriver).
		Str("archive_driver", a.Cfg.ArchiveDriver).
		Int("dial_lists", len(a.Service.ListDialListMasters())).
		Int("dialplans", len(a.Service.ListDialplanMasters())).
		Msg("pbxcore started")

	httpServer := a.startHTTPServer()
	a.waitForShutdown(httpServer)
}

// logCapability stands in for an engine bridge: it records issued commands in
// the log stream. Deployments embedding a real engine connection supply their
// own dispatch.Capability.
type logCapability struct {
	log zerolog.Logger
}

func (c logCapability) Invoke(_ context.Context, channel, command, execID string) error {
	c.log.Info().Str("channel", channel).Str("command", command).Str("exec_id", execID).Msg("dialplan command issued")
	return nil
}

func (a *App) setupRedis() *redis.Client {
	opts, err := redis.ParseURL(a.Cfg.RedisURL)
	if err != nil {
		a.Log.Fatal().Err(err).Msg("invalid redis URL")
	}
	client := redis.NewClient(opts)
	if err := client.Ping(context.Background()).Err(); err != nil {
		a.Log.Error().Err(err).Msg("redis connection failed, event fan-out degraded")
	} else {
		a.Log.Info().Msg("redis connection established")
	}
	return client
}

func (a *App) startHTTPServer() *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, `{"status": "ok"}`)
	})

	addr := fmt.Sprintf(":%s", a.Cfg.Server.MetricsPort)
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		a.Log.Info().Str("port", a.Cfg.Server.MetricsPort).Msg("metrics and health server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.Log.Fatal().Err(err).Msg("metrics server failed")
		}
	}()
	return srv
}

func (a *App) waitForShutdown(httpServer *http.Server) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	a.Log.Info().Str("signal", sig.String()).Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		a.Log.Error().Err(err).Msg("metrics server shutdown failed")
	}
	a.Bus.Close()
	a.Log.Info().Msg("shutdown complete")
}
