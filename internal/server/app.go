// Package server wires the boda edge: the asset cache, the RSVP intake, the
// outbox with its resync scheduler, the admin routes and the gRPC health
// service. It handles startup ordering and graceful shutdown.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dmitrijs2005/boda/internal/cache"
	"github.com/dmitrijs2005/boda/internal/config"
	"github.com/dmitrijs2005/boda/internal/delivery"
	"github.com/dmitrijs2005/boda/internal/logging"
	"github.com/dmitrijs2005/boda/internal/outbox"
	"github.com/dmitrijs2005/boda/internal/resync"
	"github.com/dmitrijs2005/boda/internal/rsvp"
	"github.com/dmitrijs2005/boda/internal/server/admin"
	"github.com/dmitrijs2005/boda/internal/telemetry"
	"github.com/redis/go-redis/v9"

	gs "github.com/dmitrijs2005/boda/internal/server/grpc"
)

const shutdownTimeout = 10 * time.Second

type App struct {
	config    *config.Config
	logger    logging.Logger
	outbox    *outbox.SQLRepository
	cache     *cache.Manager
	scheduler *resync.Scheduler
	grpc      *gs.GRPCServer
	handler   http.Handler
	closers   []func() error
}

func NewApp(ctx context.Context, c *config.Config, l logging.Logger) (*App, error) {
	app := &App{config: c, logger: l}

	opts, err := outbox.PassphraseOptions(ctx, c.OutboxPassphrase, l)
	if err != nil {
		return nil, fmt.Errorf("outbox init error: %w", err)
	}
	ob, err := outbox.Open(ctx, c.OutboxDSN, opts...)
	if err != nil {
		return nil, fmt.Errorf("outbox init error: %w", err)
	}
	app.outbox = ob
	app.closers = append(app.closers, ob.Close)

	storage, err := app.newCacheStorage(ctx)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("cache storage init error: %w", err)
	}

	fetcher := cache.NewFetcher(&http.Client{Timeout: c.FetchTimeout}, c.MaxAssetBytes, cache.BreakerSettings{}, l)
	app.cache, err = cache.NewManager(c, storage, fetcher, l)
	if err != nil {
		app.Close()
		return nil, err
	}

	dc := delivery.NewClient(c.SubmissionEndpoint, c.DeliveryTimeout, l)
	if !dc.Configured() {
		l.Warn(ctx, "submission endpoint not configured, RSVPs will stay in the outbox")
	}

	coordinator := resync.NewCoordinator(ob, dc, l)
	app.scheduler = resync.NewScheduler(coordinator, dc, app.cache, resync.SchedulerConfig{
		OnlineCheckInterval:    c.OnlineCheckInterval,
		PeriodicUpdateInterval: c.PeriodicUpdateInterval,
		InitialBackoff:         c.ResyncInitialBackoff,
		MaxBackoff:             c.ResyncMaxBackoff,
	}, l)

	app.grpc = gs.NewGRPCServer(c.GRPCAddr, l)

	mux := http.NewServeMux()
	mux.Handle("/admin/", admin.NewHandler(app.scheduler, ob, c.SecretKey, l))
	mux.Handle("/rsvp", rsvp.NewHandler(dc, ob, app.scheduler, l))
	mux.Handle("/", app.cache)
	app.handler = mux

	return app, nil
}

func (app *App) newCacheStorage(ctx context.Context) (cache.Storage, error) {
	c := app.config
	switch c.CacheBackend {
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     c.RedisAddr,
			Password: c.RedisPassword,
			DB:       c.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("redis ping: %w", err)
		}
		app.closers = append(app.closers, client.Close)
		return cache.NewRedisStorage(client, c.RedisNamespace), nil

	case "s3":
		client, err := cache.NewS3Client(ctx, cache.S3Options{
			Region:       c.S3Region,
			AccessKey:    c.S3RootUser,
			SecretKey:    c.S3RootPassword,
			BaseEndpoint: c.S3BaseEndpoint,
		})
		if err != nil {
			return nil, err
		}
		return cache.NewS3Storage(client, c.S3Bucket, c.S3Prefix), nil

	default:
		return cache.NewMemoryStorage(), nil
	}
}

// Handler is the HTTP surface of the edge.
func (app *App) Handler() http.Handler { return app.handler }

// Close releases storage connections.
func (app *App) Close() {
	for i := len(app.closers) - 1; i >= 0; i-- {
		if err := app.closers[i](); err != nil {
			app.logger.Warn(context.Background(), "close failed", "error", err)
		}
	}
	app.closers = nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// prepareCache installs and activates the current cache version. A failure
// leaves the edge serving from the network only.
func (app *App) prepareCache(ctx context.Context) {
	if err := app.cache.Install(ctx); err != nil {
		app.logger.Error(ctx, "cache install failed, serving network only", "error", err)
		return
	}
	if err := app.cache.Activate(ctx); err != nil {
		app.logger.Error(ctx, "cache activation failed, serving network only", "error", err)
		return
	}
	app.grpc.SetServing(gs.CacheService, true)
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	srv := &http.Server{
		Addr:              app.config.HTTPAddr,
		Handler:           app.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		app.logger.Info(ctx, "Stopping HTTP server...")
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(sctx)
	}()

	app.logger.Info(ctx, "Starting HTTP server", "address", app.config.HTTPAddr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc) {
	if err := app.grpc.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

// Run starts the edge and blocks until ctx is cancelled or a signal
// arrives.
func (app *App) Run(ctx context.Context) error {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...", "cache", app.cache.CacheName())

	app.initSignalHandler(cancelFunc)

	shutdownTracing, err := telemetry.Setup(ctx, "boda-edge", app.config.CacheVersion, app.config.OTLPEndpoint)
	if err != nil {
		app.logger.Warn(ctx, "tracing disabled", "error", err)
	}

	app.grpc.SetServing(gs.OutboxService, true)
	app.prepareCache(ctx)

	var wg sync.WaitGroup

	wg.Add(3)
	go func() {
		defer wg.Done()
		app.scheduler.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		app.startGRPCServer(ctx, cancelFunc)
	}()
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()

	wg.Wait()
	app.cache.Wait()

	app.logger.Info(context.Background(), "Stopped")

	app.Close()

	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return shutdownTracing(sctx)
}
